//go:build tinygo

// Package main wires the servo core to an STM32G4 class board: TIM1
// center aligned PWM into the gate driver, injected ADC sampling for
// currents and rails, SPI1 to the on-board magnetic encoder, and the
// CLI plus serial bridge on the USART.
package main

import (
	"machine"

	"goservo/config"
	"goservo/core"
	"goservo/position"
	"goservo/protocol"
	"goservo/server"
	"goservo/servo"
)

const (
	pwmRateHz = 30000

	busIDSelf = 0x01
)

func main() {
	clock := newCycleClock()

	uart := machine.UART2
	uart.Configure(machine.UARTConfig{BaudRate: 460800})
	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})

	pwm := newBridgePWM(pwmRateHz)
	driver := newGateDriver(machine.PB2, machine.PB1) // enable, nFAULT
	adc := newInjectedADC()

	spi := newEncoderSPI(machine.SPI1, machine.PA4)
	onboard := newOnboardAS5047(spi)

	hw := servo.Hardware{
		PWM:    pwm,
		Driver: driver,
		ADC:    adc,
		Clock:  clock,
	}
	hw.Sources[0] = servo.SourceBinding{Onboard: onboard}

	posCfg := position.DefaultConfig()

	srv := servo.New(servo.DefaultConfig(), posCfg, servo.Motor{}, hw)
	front := server.New(srv)

	store := config.NewStore(newConfigFlash())
	front.CLI().SetPersister(store)
	if entries, err := store.Load(); err == nil {
		for _, e := range entries {
			if f, ok := srv.LookupConfigTag(e.Tag); ok {
				if v, ok := e.Float(); ok {
					f.Set(v)
				}
			}
		}
	}

	info := config.NewFirmwareInfo(hwFamily, hwRev, readDeviceUID)
	core.DebugPrintln("goservo " + info.UniqueIDString())

	// Serial bridge: frames over the USART, CLI tunneled inside.
	rx := protocol.NewFifoBuffer(256)
	txBuf := protocol.NewScratchOutput()
	bridge := protocol.NewTransport(txBuf,
		func(src, dst, flags uint8, payload []byte) []byte {
			if dst != busIDSelf {
				return nil
			}
			return front.ProcessFrame(payload)
		})

	// The control loop runs on its own goroutine, paced by the cycle
	// counter. TinyGo's scheduler gives it the core whenever it is
	// runnable; the background loop below yields every iteration.
	go func() {
		next := clock.Micros()
		period := uint32(1e6 / pwmRateHz)
		for {
			now := clock.Micros()
			if now-next < 1<<31 {
				next = now + period
				adc.Acquire()
				srv.ISRTick()
			}
		}
	}()

	bg := core.NewBackground(func() uint32 { return clock.Micros() / 1000 })
	bg.RegisterFunc(func() {
		var tmp [64]byte
		for {
			n, err := uart.Read(tmp[:])
			if n <= 0 || err != nil {
				break
			}
			rx.Write(tmp[:n])
		}
		bridge.Receive(rx)
		if out := txBuf.Result(); len(out) > 0 {
			uart.Write(out)
			txBuf.Reset()
		}
	})
	bg.RegisterFunc(front.Poll)
	bg.SetMillisecondHandler(srv.PollMillisecond)
	bg.Run()
}
