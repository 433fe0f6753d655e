package foc

import "math"

// SinCos caches the sine and cosine of an angle so that each transform
// in a control cycle reuses a single evaluation.
type SinCos struct {
	S float32
	C float32
}

// Cordic evaluates sin/cos from a q31 angle. On the G4 the hardware
// CORDIC block does this in five cycles; on other builds it falls back
// to the math library. The host build always takes the fallback.
type Cordic struct{}

// Compute returns the sine and cosine of a q31 angle (full int32 range
// maps [-pi, pi)).
func (Cordic) Compute(thetaQ31 int32) SinCos {
	theta := float64(thetaQ31) * (math.Pi / 2147483648.0)
	return SinCos{
		S: float32(math.Sin(theta)),
		C: float32(math.Cos(theta)),
	}
}

// Radians is a convenience for non-ISR callers.
func (c Cordic) Radians(theta float32) SinCos {
	return c.Compute(RadiansToQ31(theta))
}

// Clark converts three phase quantities to the stationary two phase
// (alpha, beta) frame.
func Clark(a, b, c float32) (x, y float32) {
	x = (2.0*a - b - c) * (1.0 / 3.0)
	y = (b - c) * (1.0 / Sqrt3)
	return x, y
}

// InverseClark converts (alpha, beta) back to three phase quantities.
func InverseClark(x, y float32) (a, b, c float32) {
	a = x
	b = (-x + Sqrt3*y) / 2.0
	c = (-x - Sqrt3*y) / 2.0
	return a, b, c
}

// Park rotates the stationary (alpha, beta) frame into the rotor (d, q)
// frame.
func Park(sc SinCos, x, y float32) (d, q float32) {
	d = sc.C*x + sc.S*y
	q = sc.C*y - sc.S*x
	return d, q
}

// InversePark rotates (d, q) back into the stationary frame.
func InversePark(sc SinCos, d, q float32) (x, y float32) {
	x = sc.C*d - sc.S*q
	y = sc.C*q + sc.S*d
	return x, y
}

// Dq performs the combined Clarke and Park transform directly from
// three phase quantities.
func Dq(sc SinCos, a, b, c float32) (d, q float32) {
	d = (2.0 / 3.0) * (a*sc.C +
		(Sqrt34*sc.S-0.5*sc.C)*b +
		(-Sqrt34*sc.S-0.5*sc.C)*c)
	q = (2.0 / 3.0) * (-sc.S*a -
		(-Sqrt34*sc.C-0.5*sc.S)*b -
		(Sqrt34*sc.C-0.5*sc.S)*c)
	return d, q
}

// InverseDq converts (d, q) directly to three phase quantities.
func InverseDq(sc SinCos, d, q float32) (a, b, c float32) {
	a = sc.C*d - sc.S*q
	b = (Sqrt34*sc.S-0.5*sc.C)*d - (-Sqrt34*sc.C-0.5*sc.S)*q
	c = (-Sqrt34*sc.S-0.5*sc.C)*d - (Sqrt34*sc.C-0.5*sc.S)*q
	return a, b, c
}
