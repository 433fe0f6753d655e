package foc

import (
	"math"
	"math/rand"
	"testing"
)

func TestSVPWMDutyBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const dMin, dMax = 0.02, 0.98
	for i := 0; i < 2000; i++ {
		theta := float32(rng.Float64() * 2 * math.Pi)
		mag := float32(rng.Float64() * 30)
		sc := Cordic{}.Radians(theta)
		va, vb, vc := InverseDq(sc, 0, mag)
		da, db, dc := SVPWM(va, vb, vc, 24.0, dMin, dMax)
		for _, d := range []float32{da, db, dc} {
			if d < 0 || d > 1 {
				t.Fatalf("duty %v outside [0,1]", d)
			}
		}
		mn := da
		if db < mn {
			mn = db
		}
		if dc < mn {
			mn = dc
		}
		if mn < dMin || mn > dMax {
			t.Fatalf("min duty %v outside [%v,%v]", mn, dMin, dMax)
		}
	}
}

func TestSVPWMCentersCommonMode(t *testing.T) {
	// Inside the linear region the min and max duty are symmetric
	// about 0.5.
	sc := Cordic{}.Radians(0.3)
	va, vb, vc := InverseDq(sc, 0, 5.0)
	da, db, dc := SVPWM(va, vb, vc, 24.0, 0.0, 1.0)
	mn := float64(da)
	mx := float64(da)
	for _, d := range []float64{float64(db), float64(dc)} {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
	}
	if math.Abs(mn+mx-1.0) > 1e-5 {
		t.Errorf("min+max = %v, want 1.0", mn+mx)
	}
}

func TestSVPWMZeroBus(t *testing.T) {
	da, db, dc := SVPWM(1, 2, 3, 0, 0.01, 0.99)
	if da != 0 || db != 0 || dc != 0 {
		t.Errorf("zero bus voltage should force zero duties")
	}
}

func TestVoltageClampMagnitude(t *testing.T) {
	d, q, clamped := VoltageClamp(3.0, 4.0, 2.5, false)
	if !clamped {
		t.Fatal("expected clamp")
	}
	mag := Sqrt(d*d + q*q)
	if Abs(mag-2.5) > 1e-5 {
		t.Errorf("clamped magnitude = %v, want 2.5", mag)
	}
	// Direction preserved without D priority.
	if Abs(d/q-0.75) > 1e-5 {
		t.Errorf("clamp changed direction: d=%v q=%v", d, q)
	}
}

func TestVoltageClampDPriority(t *testing.T) {
	d, q, clamped := VoltageClamp(2.0, 10.0, 2.5, true)
	if !clamped {
		t.Fatal("expected clamp")
	}
	if d != 2.0 {
		t.Errorf("d axis should keep its request, got %v", d)
	}
	want := Sqrt(2.5*2.5 - 4.0)
	if Abs(q-want) > 1e-5 {
		t.Errorf("q = %v, want %v", q, want)
	}
}

func TestVoltageClampNoOp(t *testing.T) {
	d, q, clamped := VoltageClamp(1.0, 1.0, 10.0, false)
	if clamped || d != 1.0 || q != 1.0 {
		t.Errorf("unexpected clamp: %v %v %v", d, q, clamped)
	}
}
