//go:build rp2040

package main

import (
	"machine"

	"goservo/servo"
)

// slicePWM drives the three phase pairs from PWM slices sharing one
// period.
type slicePWM struct {
	pwm     [3]*machine.PWM
	ch      [3]uint8
	top     [3]uint32
	enabled bool
	braked  bool
}

var phasePins = [3]machine.Pin{machine.GPIO2, machine.GPIO4, machine.GPIO6}

func newSlicePWM(rateHz int) *slicePWM {
	p := &slicePWM{}
	slices := [3]*machine.PWM{machine.PWM1, machine.PWM2, machine.PWM3}
	for i, pin := range phasePins {
		pwm := slices[i]
		err := pwm.Configure(machine.PWMConfig{
			Period: uint64(1e9) / uint64(rateHz),
		})
		if err != nil {
			panic("pwm configure")
		}
		ch, err := pwm.Channel(pin)
		if err != nil {
			panic("pwm channel")
		}
		p.pwm[i] = pwm
		p.ch[i] = ch
		p.top[i] = pwm.Top()
	}
	return p
}

func (p *slicePWM) WriteDuties(a, b, c float32) {
	p.braked = false
	if !p.enabled {
		a, b, c = 0, 0, 0
	}
	d := [3]float32{a, b, c}
	for i := range d {
		p.pwm[i].Set(p.ch[i], uint32(d[i]*float32(p.top[i])))
	}
}

func (p *slicePWM) Enable(on bool) {
	p.enabled = on
	if !on {
		for i := range p.pwm {
			p.pwm[i].Set(p.ch[i], 0)
		}
	}
}

func (p *slicePWM) Brake() {
	p.braked = true
	for i := range p.pwm {
		p.pwm[i].Set(p.ch[i], 0)
	}
}

// gateDriver matches the STM32 target's enable/nFAULT handling.
type gateDriver struct {
	enable machine.Pin
	nfault machine.Pin
	on     bool
}

func newGateDriver(enable, nfault machine.Pin) *gateDriver {
	enable.Configure(machine.PinConfig{Mode: machine.PinOutput})
	nfault.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	enable.Low()
	return &gateDriver{enable: enable, nfault: nfault}
}

func (d *gateDriver) Enable(on bool) {
	d.on = on
	d.enable.Set(on)
}

func (d *gateDriver) Enabled() bool { return d.on }
func (d *gateDriver) Faulted() bool { return !d.nfault.Get() }

// boardADC samples the shunt amplifiers and rail divider with the
// on-chip ADC.
type boardADC struct {
	cur    [3]machine.ADC
	vsense machine.ADC
	tsense machine.ADC

	latest servo.Samples
}

func newBoardADC() *boardADC {
	machine.InitADC()
	a := &boardADC{
		cur: [3]machine.ADC{
			{Pin: machine.ADC0},
			{Pin: machine.ADC1},
			{Pin: machine.ADC2},
		},
		vsense: machine.ADC{Pin: machine.ADC3},
	}
	for i := range a.cur {
		a.cur[i].Configure(machine.ADCConfig{})
	}
	a.vsense.Configure(machine.ADCConfig{})
	return a
}

func (a *boardADC) Acquire() {
	a.latest = servo.Samples{
		Current: [3]uint16{
			a.cur[0].Get() >> 4,
			a.cur[1].Get() >> 4,
			a.cur[2].Get() >> 4,
		},
		VSense: a.vsense.Get() >> 4,
		// No temperature input is read on the RP2040 board; both
		// channels report a fixed count of 750 (25 C at the default
		// scale).
		TSense: uint16(750),
		MSense: uint16(750),
	}
}

func (a *boardADC) Latest() servo.Samples { return a.latest }
