// Package foc implements the field oriented control math used by the
// servo loop: frame transforms, current-loop regulators, the torque
// model and space vector modulation. Everything here is float32 and
// allocation free so it can run inside the PWM interrupt.
package foc

import "math"

const (
	Pi     = float32(math.Pi)
	TwoPi  = float32(2 * math.Pi)
	Sqrt3  = 1.7320508075688772
	Sqrt34 = 0.8660254037844386 // sqrt(3)/2
)

// Sqrt is a float32 convenience wrapper.
func Sqrt(x float32) float32 { return float32(math.Sqrt(float64(x))) }

// Abs is a float32 convenience wrapper.
func Abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// Copysign returns a value with the magnitude of x and the sign of y.
func Copysign(x, y float32) float32 {
	return float32(math.Copysign(float64(x), float64(y)))
}

// IsNaN reports whether x is a NaN without pulling in float64 math.
func IsNaN(x float32) bool { return x != x }

// NaN returns a float32 quiet NaN.
func NaN() float32 { return float32(math.NaN()) }

// Limit clamps x to [lo, hi].
func Limit(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// WrapZeroTwoPi wraps an angle to [0, 2pi).
func WrapZeroTwoPi(theta float32) float32 {
	r := float32(math.Mod(float64(theta), 2*math.Pi))
	if r < 0 {
		r += TwoPi
	}
	// Mod can return exactly 2pi after the negative adjustment when
	// theta is a tiny negative number.
	if r >= TwoPi {
		r -= TwoPi
	}
	return r
}

// WrapZeroOne wraps a revolution count to [0, 1).
func WrapZeroOne(x float32) float32 {
	r := x - float32(math.Floor(float64(x)))
	if r >= 1 {
		r -= 1
	}
	return r
}

// RadiansToQ31 converts an angle in radians to the q31 convention used
// by the CORDIC peripheral: the full int32 range maps [-pi, pi).
func RadiansToQ31(theta float32) int32 {
	w := float32(math.Mod(float64(theta), 2*math.Pi))
	if w >= Pi {
		w -= TwoPi
	} else if w < -Pi {
		w += TwoPi
	}
	return int32(w * (2147483648.0 / Pi))
}

// FromQ31 converts a q31 fixed point value to float in [-1, 1).
func FromQ31(v int32) float32 {
	return float32(v) * (1.0 / 2147483648.0)
}

// Q31ToRadians converts a q31 angle back to radians in [-pi, pi).
func Q31ToRadians(v int32) float32 {
	return FromQ31(v) * Pi
}

// Log2Approx is a fast base 2 logarithm approximation, accurate to a
// few parts in 1e4 over the normal float range.
func Log2Approx(x float32) float32 {
	vx := math.Float32bits(x)
	mx := (vx & 0x007FFFFF) | 0x3f000000
	y := float32(vx) * 1.1920928955078125e-7
	m := math.Float32frombits(mx)
	return y - 124.22551499 - 1.498030302*m - 1.72587999/(0.3520887068+m)
}

// Pow2Approx is the matching fast 2**p approximation.
func Pow2Approx(p float32) float32 {
	var offset float32
	if p < 0 {
		offset = 1.0
	}
	clipp := p
	if clipp < -126 {
		clipp = -126
	}
	w := float32(int32(clipp))
	z := clipp - w + offset
	v := uint32(int32((1 << 23) *
		(clipp + 121.2740575 + 27.7280233/(4.84252568-z) - 1.49012907*z)))
	return math.Float32frombits(v)
}
