//go:build tinygo

package main

import (
	"machine"

	"goservo/servo"
)

// injectedADC samples the three shunt amplifiers plus the rail and
// temperature dividers. The G4 hardware runs these as injected
// conversions off the TIM1 trigger; the TinyGo machine layer exposes
// one-shot reads, so Acquire latches a full set immediately before
// each control cycle, which the soft-timed loop calls at the same
// point the trigger would fire.
type injectedADC struct {
	cur    [3]machine.ADC
	vsense machine.ADC
	tsense machine.ADC
	msense machine.ADC

	latest servo.Samples
}

func newInjectedADC() *injectedADC {
	machine.InitADC()
	a := &injectedADC{
		cur: [3]machine.ADC{
			{Pin: machine.PA0},
			{Pin: machine.PA1},
			{Pin: machine.PA2},
		},
		vsense: machine.ADC{Pin: machine.PA3},
		tsense: machine.ADC{Pin: machine.PB0},
		msense: machine.ADC{Pin: machine.PB11},
	}
	for i := range a.cur {
		a.cur[i].Configure(machine.ADCConfig{})
	}
	a.vsense.Configure(machine.ADCConfig{})
	a.tsense.Configure(machine.ADCConfig{})
	a.msense.Configure(machine.ADCConfig{})
	return a
}

// Acquire latches one full sample set.
func (a *injectedADC) Acquire() {
	// machine.ADC.Get returns 16-bit scaled values; the sampler's
	// scales expect 12-bit counts.
	a.latest = servo.Samples{
		Current: [3]uint16{
			a.cur[0].Get() >> 4,
			a.cur[1].Get() >> 4,
			a.cur[2].Get() >> 4,
		},
		VSense: a.vsense.Get() >> 4,
		TSense: a.tsense.Get() >> 4,
		MSense: a.msense.Get() >> 4,
	}
}

func (a *injectedADC) Latest() servo.Samples { return a.latest }
