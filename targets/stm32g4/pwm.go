//go:build tinygo

package main

import "machine"

// bridgePWM drives the three high/low phase pairs from TIM1. The
// timer runs center aligned so the ADC trigger lands mid low-side;
// duty writes hit the preload registers and take effect at the next
// reload.
type bridgePWM struct {
	tim     *machine.TIM
	chA     uint8
	chB     uint8
	chC     uint8
	top     uint32
	enabled bool
	braked  bool
}

func newBridgePWM(rateHz int) *bridgePWM {
	p := &bridgePWM{tim: &machine.TIM1}

	err := p.tim.Configure(machine.PWMConfig{
		Period: uint64(1e9) / uint64(rateHz),
	})
	if err != nil {
		panic("pwm configure")
	}
	p.top = p.tim.Top()

	p.chA = mustChannel(p.tim, machine.PA8)
	p.chB = mustChannel(p.tim, machine.PA9)
	p.chC = mustChannel(p.tim, machine.PA10)

	p.WriteDuties(0, 0, 0)
	return p
}

func mustChannel(tim *machine.TIM, pin machine.Pin) uint8 {
	ch, err := tim.Channel(pin)
	if err != nil {
		panic("pwm channel")
	}
	return ch
}

func (p *bridgePWM) WriteDuties(a, b, c float32) {
	p.braked = false
	if !p.enabled {
		a, b, c = 0, 0, 0
	}
	p.tim.Set(p.chA, uint32(a*float32(p.top)))
	p.tim.Set(p.chB, uint32(b*float32(p.top)))
	p.tim.Set(p.chC, uint32(c*float32(p.top)))
}

func (p *bridgePWM) Enable(on bool) {
	p.enabled = on
	if !on {
		p.tim.Set(p.chA, 0)
		p.tim.Set(p.chB, 0)
		p.tim.Set(p.chC, 0)
	}
}

// Brake shorts the low sides: all compares at zero with the outputs
// enabled keeps the low side switches on through the whole period.
func (p *bridgePWM) Brake() {
	p.braked = true
	p.tim.Set(p.chA, 0)
	p.tim.Set(p.chB, 0)
	p.tim.Set(p.chC, 0)
}
