//go:build rp2040

// Package main wires the servo core to an RP2040 driver board: PWM
// slices into the gate driver, the on-chip ADC for currents and
// rails, a PIO state machine counting the quadrature encoder, hall
// inputs, an MCP2515 for the CAN side and USB CDC for the CLI.
package main

import (
	"machine"
	"time"

	"goservo/core"
	"goservo/encoder"
	"goservo/foc"
	"goservo/position"
	"goservo/server"
	"goservo/servo"
)

const (
	pwmRateHz = 25000
	busIDSelf = 0x01
)

func main() {
	time.Sleep(100 * time.Millisecond) // let USB enumerate

	core.SetDebugWriter(func(s string) { println(s) })

	clock := &rpClock{}
	pwm := newSlicePWM(pwmRateHz)
	driver := newGateDriver(machine.GPIO20, machine.GPIO21)
	adc := newBoardADC()

	quad, err := NewPIOQuadrature(0, 0, machine.GPIO10)
	if err != nil {
		core.DebugPrintln("pio quadrature: " + err.Error())
		return
	}

	hall := encoder.NewHall(encoder.HallConfig{}, readHallPins)

	posCfg := position.DefaultConfig()
	posCfg.Sources[0] = position.SourceConfig{
		Kind:          encoder.KindQuadrature,
		CPR:           4096,
		Sign:          1,
		Reference:     position.ReferenceRotor,
		GearRatio:     1,
		PLLFilterHz:   200,
		DebugOverride: foc.NaN(),
	}
	posCfg.Sources[1] = position.SourceConfig{
		Kind:          encoder.KindHall,
		CPR:           6,
		Sign:          1,
		Reference:     position.ReferenceRotor,
		GearRatio:     1,
		PLLFilterHz:   20,
		DebugOverride: foc.NaN(),
	}

	hw := servo.Hardware{
		PWM:    pwm,
		Driver: driver,
		ADC:    adc,
		Clock:  clock,
	}
	hw.Sources[0] = servo.SourceBinding{
		ISR: encoder.NewQuadratureHW(4096, quad),
	}
	hw.Sources[1] = servo.SourceBinding{ISR: hall}

	cfg := servo.DefaultConfig()
	cfg.RateHz = pwmRateHz

	srv := servo.New(cfg, posCfg, servo.Motor{}, hw)
	front := server.New(srv)

	can, canErr := newCANPort(busIDSelf)
	if canErr != nil {
		core.DebugPrintln("can init: " + canErr.Error())
	}

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

	cli := front.CLI()
	bg := core.NewBackground(func() uint32 { return clock.Micros() / 1000 })
	bg.RegisterFunc(func() {
		for machine.Serial.Buffered() > 0 {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				break
			}
			if out := cli.Feed([]byte{b}); len(out) > 0 {
				machine.Serial.Write(out)
			}
		}
	})
	if can != nil {
		bg.RegisterFunc(func() { can.poll(front) })
	}
	bg.RegisterFunc(front.Poll)
	bg.SetMillisecondHandler(srv.PollMillisecond)
	bg.Run()
}

// rpClock reads the RP2040 microsecond timer.
type rpClock struct{}

func (rpClock) Micros() uint32 {
	return uint32(time.Now().UnixMicro())
}

func readHallPins() uint8 {
	var v uint8
	if machine.GPIO13.Get() {
		v |= 1
	}
	if machine.GPIO14.Get() {
		v |= 2
	}
	if machine.GPIO15.Get() {
		v |= 4
	}
	return v
}
