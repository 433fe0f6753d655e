package foc

import "testing"

func TestPIDProportional(t *testing.T) {
	cfg := PIDConfig{Kp: 2.0, Sign: 1}
	var st PIDState
	st.Clear()
	pid := PID{Config: &cfg, State: &st}

	out := pid.Apply(1.0, 0.0, 0, 0, 1000, DefaultApplyOptions())
	if Abs(out-2.0) > 1e-6 {
		t.Errorf("Apply = %v, want 2.0", out)
	}
	if Abs(st.Error-1.0) > 1e-6 {
		t.Errorf("error = %v", st.Error)
	}
}

func TestPIDIntegralLimit(t *testing.T) {
	cfg := PIDConfig{Ki: 100.0, ILimit: 0.5, Sign: 1}
	var st PIDState
	st.Clear()
	pid := PID{Config: &cfg, State: &st}

	for i := 0; i < 10000; i++ {
		pid.Apply(1.0, 0.0, 0, 0, 1000, DefaultApplyOptions())
	}
	if st.Integral != 0.5 {
		t.Errorf("integral = %v, want clamp at 0.5", st.Integral)
	}
}

func TestPIDIntegralRateLimit(t *testing.T) {
	cfg := PIDConfig{Ki: 1000.0, IRateLimit: 1.0, ILimit: 100.0, Sign: 1}
	var st PIDState
	st.Clear()
	pid := PID{Config: &cfg, State: &st}

	pid.Apply(10.0, 0.0, 0, 0, 1000, DefaultApplyOptions())
	// One cycle at 1 kHz with a rate limit of 1/s allows 0.001.
	if Abs(st.Integral-0.001) > 1e-7 {
		t.Errorf("integral = %v, want 0.001", st.Integral)
	}
}

func TestPIDDesiredRateLimit(t *testing.T) {
	cfg := PIDConfig{Kp: 1.0, MaxDesiredRate: 10.0, Sign: 1}
	var st PIDState
	st.Clear()
	pid := PID{Config: &cfg, State: &st}

	// First command is accepted unlimited because desired starts NaN.
	pid.Apply(0.0, 5.0, 0, 0, 1000, DefaultApplyOptions())
	if Abs(st.Desired-5.0) > 1e-6 {
		t.Fatalf("first desired = %v, want 5.0", st.Desired)
	}
	// Later steps slew at max 10/s -> 0.01 per cycle.
	pid.Apply(0.0, 100.0, 0, 0, 1000, DefaultApplyOptions())
	if Abs(st.Desired-5.01) > 1e-5 {
		t.Errorf("desired = %v, want 5.01", st.Desired)
	}
}

func TestPIDScalesAndSign(t *testing.T) {
	cfg := PIDConfig{Kp: 1.0, Kd: 1.0, Sign: -1}
	var st PIDState
	st.Clear()
	pid := PID{Config: &cfg, State: &st}

	opt := ApplyOptions{KpScale: 0.5, KdScale: 2.0, KiScale: 1.0}
	out := pid.Apply(1.0, 0.0, 2.0, 0.0, 1000, opt)
	// -(0.5*1 + 2*2) = -4.5
	if Abs(out+4.5) > 1e-6 {
		t.Errorf("Apply = %v, want -4.5", out)
	}
}

func TestSimplePIConvention(t *testing.T) {
	cfg := SimplePIConfig{Kp: 1.0, Ki: 0.0}
	var st SimplePIState
	st.Clear()
	pi := SimplePI{Config: &cfg, State: &st}

	// Measured above desired must push the command negative.
	out := pi.Apply(2.0, 1.0, 30000)
	if out >= 0 {
		t.Errorf("command = %v, want negative", out)
	}
}

func TestSimplePIFreeze(t *testing.T) {
	cfg := SimplePIConfig{Kp: 0.0, Ki: 300.0}
	var st SimplePIState
	st.Clear()
	pi := SimplePI{Config: &cfg, State: &st}

	pi.Apply(1.0, 0.0, 30000)
	before := st.Integral
	if before == 0 {
		t.Fatal("integral did not accumulate")
	}
	pi.FreezeIntegral(30000)
	if st.Integral != 0 {
		t.Errorf("integral = %v after freeze, want 0", st.Integral)
	}
}
