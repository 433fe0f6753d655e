// Package position fuses the configured encoder sources into a rotor
// electrical angle for commutation and an unwrapped output position
// for the outer control loops.
package position

import "math"

// PLL is a critically damped second order tracker. It smooths a noisy
// wrapped angle input and estimates its rate; between fresh samples it
// propagates on the estimated rate alone. Angles are in revolutions;
// Theta accumulates without wrapping so callers can difference it.
type PLL struct {
	kp float64
	ki float64

	Theta    float64 // unwrapped, revolutions
	Velocity float64 // revolutions/s

	initialized bool
}

// SetBandwidth derives the gains from a natural frequency in Hz with
// damping ratio 1.
func (p *PLL) SetBandwidth(hz float32) {
	wn := 2 * math.Pi * float64(hz)
	p.kp = 2 * wn
	p.ki = wn * wn
}

// Initialized reports whether the tracker has seen a sample.
func (p *PLL) Initialized() bool { return p.initialized }

// Reset forgets all state.
func (p *PLL) Reset() {
	p.Theta = 0
	p.Velocity = 0
	p.initialized = false
}

// Update advances the tracker with a fresh wrapped measurement in
// [0, 1) and returns the innovation (wrapped tracking error).
func (p *PLL) Update(measured, dt float64) float64 {
	if !p.initialized {
		p.Theta = measured
		p.Velocity = 0
		p.initialized = true
		return 0
	}
	err := wrapHalf(measured - wrap01(p.Theta))
	p.Theta += (p.Velocity + p.kp*err) * dt
	p.Velocity += p.ki * err * dt
	return err
}

// Propagate advances the tracker without a measurement.
func (p *PLL) Propagate(dt float64) {
	if !p.initialized {
		return
	}
	p.Theta += p.Velocity * dt
}

// Wrapped returns the tracked angle in [0, 1).
func (p *PLL) Wrapped() float64 { return wrap01(p.Theta) }

// wrap01 wraps to [0, 1).
func wrap01(x float64) float64 {
	r := x - math.Floor(x)
	if r >= 1 {
		r -= 1
	}
	return r
}

// wrapHalf wraps to [-0.5, 0.5).
func wrapHalf(x float64) float64 {
	r := wrap01(x)
	if r >= 0.5 {
		r -= 1
	}
	return r
}
