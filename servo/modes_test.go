package servo

import (
	"testing"

	"goservo/foc"
)

func positionCommand(pos, vel, maxT float32) CommandData {
	cmd := DefaultCommand()
	cmd.Mode = ModePosition
	cmd.Position = pos
	cmd.Velocity = vel
	cmd.MaxTorque = maxT
	// Most tests drive the loop open ended; the watchdog path has its
	// own test.
	cmd.WatchdogTimeout = 0
	return cmd
}

func velocityCommand(vel, maxT float32) CommandData {
	cmd := positionCommand(foc.NaN(), vel, maxT)
	return cmd
}

func TestInitialState(t *testing.T) {
	m := newSim()
	m.step()
	st := m.s.Status()
	if st.Mode != ModeStopped {
		t.Errorf("initial mode = %v", st.Mode)
	}
	if st.Fault != FaultNone {
		t.Errorf("initial fault = %v", st.Fault)
	}
	if m.pwm.enabled {
		t.Error("pwm enabled at rest")
	}
}

func TestStoppedToPositionViaEnabling(t *testing.T) {
	m := newSim()
	m.runMs(2) // let the position source warm up
	m.command(positionCommand(0, 0, 1))
	m.step()
	if got := m.s.Status().Mode; got != ModeEnabling {
		t.Fatalf("mode = %v, want enabling first", got)
	}
	if !m.drv.enabled {
		t.Error("driver not enabled during Enabling")
	}
	m.runMs(3)
	if got := m.s.Status().Mode; got != ModePosition {
		t.Fatalf("mode = %v after enable delay, want position", got)
	}
}

func TestColdStartHoldsPosition(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(positionCommand(0, 0, 1))
	m.runMs(10)

	st := m.s.Status()
	if st.Mode != ModePosition {
		t.Fatalf("mode = %v fault = %v", st.Mode, st.Fault)
	}
	if foc.Abs(float32(st.Position.OutputPosition)) > 0.001 {
		t.Errorf("position = %v, want < 0.001 turn", st.Position.OutputPosition)
	}
	if foc.Abs(st.QA) > 0.5 {
		t.Errorf("holding current = %v A, want near zero", st.QA)
	}
}

func TestVelocityStep(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(velocityCommand(1.0, 1.0))
	m.runMs(100)

	st := m.s.Status()
	if st.Fault != FaultNone {
		t.Fatalf("fault = %v", st.Fault)
	}
	if foc.Abs(float32(m.mechVel)-1.0) > 0.05 {
		t.Errorf("velocity = %v, want 1.0 +- 0.05", m.mechVel)
	}
	if foc.Abs(st.DA) > 0.5 {
		t.Errorf("Id = %v, want near zero", st.DA)
	}
}

func TestDutyInvariants(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(velocityCommand(2.0, 1.0))
	for i := 0; i < 3000; i++ {
		m.step()
		for _, d := range []float32{m.pwm.dutyA, m.pwm.dutyB, m.pwm.dutyC} {
			if d < 0 || d > 1 {
				t.Fatalf("duty %v outside [0,1] at cycle %d", d, i)
			}
		}
		if m.s.Status().Mode == ModePosition {
			mn := m.pwm.dutyA
			if m.pwm.dutyB < mn {
				mn = m.pwm.dutyB
			}
			if m.pwm.dutyC < mn {
				mn = m.pwm.dutyC
			}
			if mn < m.cfg.DMin || mn > m.cfg.DMax {
				t.Fatalf("min duty %v outside [%v,%v]", mn, m.cfg.DMin, m.cfg.DMax)
			}
		}
	}
}

func TestDriverFaultInjection(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(positionCommand(0, 0, 1))
	m.runMs(10)

	m.drv.fault = true
	m.step() // one PWM period is all it gets

	st := m.s.Status()
	if st.Mode != ModeFault {
		t.Fatalf("mode = %v, want fault", st.Mode)
	}
	if st.Fault != FaultMotorDriver {
		t.Errorf("fault = %v, want motor driver", st.Fault)
	}
	if m.pwm.enabled {
		t.Error("pwm still enabled after fault")
	}
	if m.drv.enabled {
		t.Error("pre-driver enable still high after fault")
	}
	if m.pwm.dutyA != 0 || m.pwm.dutyB != 0 || m.pwm.dutyC != 0 {
		t.Errorf("duties not dropped: %v %v %v", m.pwm.dutyA, m.pwm.dutyB, m.pwm.dutyC)
	}

	// A position command is ignored while faulted.
	m.command(positionCommand(0, 0, 1))
	m.runMs(2)
	if m.s.Status().Mode != ModeFault {
		t.Error("fault must only clear via stop")
	}

	// Stop with the pin still low is refused.
	m.stop()
	m.step()
	if m.s.Status().Mode != ModeFault {
		t.Error("stop with the condition active must not clear")
	}

	// Release the pin, stop clears.
	m.drv.fault = false
	m.stop()
	m.step()
	st = m.s.Status()
	if st.Mode != ModeStopped || st.Fault != FaultNone {
		t.Errorf("mode=%v fault=%v after stop", st.Mode, st.Fault)
	}
}

func TestEncoderStallLatchesFault(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(positionCommand(0, 0, 1))
	m.runMs(10)
	if m.s.Status().Mode != ModePosition {
		t.Fatalf("setup failed: %v", m.s.Status().Mode)
	}

	m.encStall = true
	// Staleness threshold is 8 cycles; the fault must latch within
	// N+1.
	for i := 0; i < 10; i++ {
		m.step()
	}
	st := m.s.Status()
	if st.Mode != ModeFault {
		t.Fatalf("mode = %v, want fault", st.Mode)
	}
	if st.Fault != FaultEncoder {
		t.Errorf("fault = %v, want encoder fault", st.Fault)
	}
}

func TestWatchdogChain(t *testing.T) {
	m := newSim()
	m.runMs(2)

	cmd := positionCommand(0, 0, 1)
	cmd.KpScale = 1
	cmd.KdScale = 1
	cmd.WatchdogTimeout = 0.2
	m.command(cmd)
	m.runMs(150)
	if m.s.Status().Mode != ModePosition {
		t.Fatalf("mode = %v before timeout", m.s.Status().Mode)
	}

	// No further commands: at 200 ms the mode degrades.
	m.runMs(100)
	if m.s.Status().Mode != ModeZeroVelocity {
		t.Fatalf("mode = %v at 250ms, want zero velocity", m.s.Status().Mode)
	}
	if m.s.Status().TotalTimeouts != 1 {
		t.Errorf("timeouts = %d", m.s.Status().TotalTimeouts)
	}

	// And after the timeout allowance it stops entirely.
	m.run(0.9)
	if m.s.Status().Mode != ModeStopped {
		t.Fatalf("mode = %v at ~1.2s, want stopped", m.s.Status().Mode)
	}
}

func TestStartOutsideLimit(t *testing.T) {
	m := newSim(func(c *Config) { c.StartPositionLimit = 0.5 })
	m.runMs(2)

	m.command(positionCommand(3.0, 0, 1))
	m.step()
	st := m.s.Status()
	if st.Mode != ModeFault {
		t.Fatalf("mode = %v, want fault", st.Mode)
	}
	if st.Fault != FaultStartOutsideLimit {
		t.Errorf("fault = %v, want start outside limit", st.Fault)
	}
}

func TestConfigChangedWhileRunning(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(positionCommand(0, 0, 1))
	m.runMs(10)

	m.s.MarkConfigChanged()
	m.step()
	st := m.s.Status()
	if st.Mode != ModeFault || st.Fault != FaultConfigChanged {
		t.Fatalf("mode=%v fault=%v, want config changed fault", st.Mode, st.Fault)
	}

	// Stop clears, and a restart is accepted.
	m.stop()
	m.step()
	m.command(positionCommand(0, 0, 1))
	m.runMs(5)
	if m.s.Status().Mode != ModePosition {
		t.Errorf("mode = %v after restart", m.s.Status().Mode)
	}
}

func TestUnderVoltageHysteresis(t *testing.T) {
	m := newSim()
	m.runMs(2)
	m.command(positionCommand(0, 0, 1))
	m.runMs(10)

	m.busV = 10.4
	m.runMs(20) // let the voltage filter settle below the limit
	st := m.s.Status()
	if st.Mode != ModeFault || st.Fault != FaultUnderVoltage {
		t.Fatalf("mode=%v fault=%v, want under voltage", st.Mode, st.Fault)
	}

	// Inside the hysteresis band the condition is still active.
	m.busV = 10.6
	m.runMs(20)
	m.stop()
	m.step()
	if m.s.Status().Mode != ModeFault {
		t.Error("stop inside the hysteresis band must not clear")
	}

	m.busV = 10.8
	m.runMs(20)
	m.stop()
	m.step()
	if m.s.Status().Mode != ModeStopped {
		t.Error("stop above the hysteresis band should clear")
	}
}

func TestBrakeMode(t *testing.T) {
	m := newSim()
	m.runMs(2)
	cmd := DefaultCommand()
	cmd.Mode = ModeBrake
	m.command(cmd)
	m.runMs(5)
	if m.s.Status().Mode != ModeBrake {
		t.Fatalf("mode = %v", m.s.Status().Mode)
	}
	if !m.pwm.braked {
		t.Error("low sides not shorted in brake")
	}
}

func TestCurrentCalibration(t *testing.T) {
	m := newSim()
	m.currentBias = 37
	m.runMs(2)

	cmd := DefaultCommand()
	cmd.Mode = ModeCalibratingCurrent
	m.command(cmd)
	m.runMs(3)
	if m.s.Status().Mode != ModeCalibratingCurrent {
		t.Fatalf("mode = %v", m.s.Status().Mode)
	}
	if m.pwm.dutyA != 0.5 || m.pwm.dutyB != 0.5 || m.pwm.dutyC != 0.5 {
		t.Errorf("calibration duties = %v %v %v, want 50%%",
			m.pwm.dutyA, m.pwm.dutyB, m.pwm.dutyC)
	}

	// 1024 accumulate + 256 settle cycles at 30 kHz.
	m.runMs(60)
	if m.s.Status().Mode != ModeStopped {
		t.Fatalf("mode = %v after calibration, want stopped", m.s.Status().Mode)
	}
	off := m.s.sampler.Offsets()
	for i, o := range off {
		if foc.Abs(o-(2048+37)) > 1.0 {
			t.Errorf("offset[%d] = %v, want ~2085", i, o)
		}
	}
}

func TestZeroVelocityCommandDoesNotTimeoutTwice(t *testing.T) {
	m := newSim()
	m.runMs(2)
	cmd := DefaultCommand()
	cmd.Mode = ModeZeroVelocity
	cmd.WatchdogTimeout = 0 // disabled
	m.command(cmd)
	m.runMs(50)
	if m.s.Status().Mode != ModeZeroVelocity {
		t.Errorf("mode = %v, zero velocity without watchdog must persist",
			m.s.Status().Mode)
	}
}

func TestTorqueNeverExceedsMaxTorque(t *testing.T) {
	m := newSim()
	m.runMs(2)
	cmd := positionCommand(2.0, 0, 0.3)
	m.command(cmd)
	for i := 0; i < 6000; i++ {
		m.step()
		if tq := foc.Abs(m.s.control.TorqueNm); tq > 0.3+1e-3 {
			if m.s.Status().Mode == ModePosition {
				t.Fatalf("commanded torque %v exceeds max 0.3", tq)
			}
		}
	}
}
