package servo

import (
	"goservo/encoder"
	"goservo/foc"
	"goservo/position"
)

// Servo is the closed loop controller. All steady state work happens
// in ISRTick; the background context talks to it only through the
// command mailbox, the telemetry ring, and the millisecond poll.
type Servo struct {
	cfg   Config
	motor Motor
	hw    Hardware

	pos     *position.Position
	sampler *sampler
	cordic  foc.Cordic

	Mailbox Mailbox
	Ring    TelemetryRing

	status  Status
	control Control
	cmd     CommandData

	piDConfig foc.SimplePIConfig
	piQConfig foc.SimplePIConfig
	piDState  foc.SimplePIState
	piQState  foc.SimplePIState
	pidState  foc.PIDState

	torqueModel foc.TorqueModel

	encStatus [3]encoder.Status

	// Mode machine scratch.
	pendingMode    Mode
	enablingCycles uint32
	timeoutCycles  uint32
	modeCycles     uint32

	// Command freshness, counted in control cycles.
	commandAge     uint32
	watchdogCycles uint32 // 0 disables

	// Trajectory state.
	trajPos    float32
	trajVel    float32
	trajActive bool

	// Calibration scratch.
	calStage  uint8
	calTheta  float32
	calCycles uint32

	// Inductance measurement scratch.
	indSign     float32
	indCycles   uint32
	indLastIq   float32
	indDeltaSum float32
	indCount    uint32

	// Voltage hysteresis trackers.
	underVoltageActive bool
	overVoltageActive  bool

	configDirty bool
	powerScale  float32
}

// New constructs a servo around the hardware bag.
func New(cfg Config, posCfg position.Config, motor Motor, hw Hardware) *Servo {
	s := &Servo{
		cfg:   cfg,
		motor: motor,
		hw:    hw,
		pos:   position.New(posCfg, cfg.RateHz),
	}
	s.sampler = newSampler(&s.cfg)

	s.piDConfig = foc.SimplePIConfig{Kp: cfg.CurrentKp, Ki: cfg.CurrentKi}
	s.piQConfig = s.piDConfig
	if cfg.QKp != 0 || cfg.QKi != 0 {
		s.piQConfig = foc.SimplePIConfig{Kp: cfg.QKp, Ki: cfg.QKi}
	}
	s.piDState.Clear()
	s.piQState.Clear()
	s.pidState.Clear()
	s.torqueModel = motor.TorqueModel()
	s.cmd = DefaultCommand()
	s.powerScale = 1.0
	return s
}

// Status returns the current telemetry snapshot. Background callers
// should prefer the ring; this is for tests and the register server's
// double buffered copy.
func (s *Servo) Status() Status { return s.status }

// Config returns a copy of the active configuration.
func (s *Servo) Config() Config { return s.cfg }

// Motor returns a copy of the motor calibration.
func (s *Servo) Motor() Motor { return s.motor }

// Position exposes the aggregator for rezero and reindex commands.
func (s *Servo) Position() *position.Position { return s.pos }

// MarkConfigChanged is called by the register server whenever a
// configuration register is written. A change while the bridge is
// powered latches a fault so the operator must re-enter the mode.
func (s *Servo) MarkConfigChanged() {
	s.configDirty = true

	// Rederive everything computed from config so the next start uses
	// the new values.
	s.piDConfig = foc.SimplePIConfig{Kp: s.cfg.CurrentKp, Ki: s.cfg.CurrentKi}
	s.piQConfig = s.piDConfig
	if s.cfg.QKp != 0 || s.cfg.QKi != 0 {
		s.piQConfig = foc.SimplePIConfig{Kp: s.cfg.QKp, Ki: s.cfg.QKi}
	}
	s.torqueModel = s.motor.TorqueModel()

	if s.status.Mode.powered() {
		s.latchFault(FaultConfigChanged)
	}
}

func (m Mode) powered() bool {
	switch m {
	case ModeStopped, ModeFault:
		return false
	}
	return true
}

// ISRTick runs one control cycle. It must complete well inside one PWM
// period: no allocation, no blocking, no logging.
func (s *Servo) ISRTick() {
	start := s.hw.Clock.Micros()

	// Kick off the on-board SPI transfers so they overlap the ADC
	// readout.
	for i := range s.hw.Sources {
		if ob := s.hw.Sources[i].Onboard; ob != nil {
			ob.StartSample()
		}
	}

	raw := s.hw.ADC.Latest()
	s.sampler.process(&raw, &s.status)

	for i := range s.hw.Sources {
		b := &s.hw.Sources[i]
		switch {
		case b.Onboard != nil:
			b.Onboard.FinishSample(&s.encStatus[i])
		case b.ISR != nil:
			b.ISR.ISRUpdate(&s.encStatus[i])
		case b.Slot != nil:
			if st, ok := b.Slot.Load(); ok {
				s.encStatus[i] = st
			}
		}
	}

	s.pos.ISRUpdate(&s.encStatus)
	s.status.Position = s.pos.Status()

	// The mailbox is consumed at exactly one point in the cycle;
	// anything posted later is next cycle's problem.
	if cmd, ok := s.Mailbox.Take(); ok {
		s.applyCommand(&cmd)
	} else {
		s.commandAge++
	}
	s.checkWatchdog()

	s.runSafety()
	s.runControl()

	now := s.hw.Clock.Micros()
	s.status.LoopUs = now - start
	if s.status.LoopUs > s.status.PeakLoopUs {
		s.status.PeakLoopUs = s.status.LoopUs
	}
	periodUs := float32(1e6) / float32(s.cfg.RateHz)
	if s.status.Mode != ModeFault {
		if float32(s.status.LoopUs) > periodUs {
			s.latchFault(FaultTimingViolation)
		} else if float32(s.status.LoopUs) > 0.9*periodUs {
			s.latchFault(FaultPwmCycleOverrun)
		}
	}
	s.status.TimestampUs = now
	s.status.CycleCount++
	s.modeCycles++

	cycle := Cycle{Status: s.status, Control: s.control, Command: s.cmd}
	s.Ring.Publish(&cycle)
}

// runControl dispatches on the mode and leaves duties written.
func (s *Servo) runControl() {
	dt := 1.0 / float32(s.cfg.RateHz)

	switch s.status.Mode {
	case ModeStopped, ModeFault:
		s.control.Clear()
		s.hw.PWM.WriteDuties(0, 0, 0)

	case ModeEnabling:
		s.control.Clear()
		s.hw.PWM.WriteDuties(0, 0, 0)
		s.enablingCycles++
		delay := s.cfg.EnableDelayMs * uint32(s.cfg.RateHz) / 1000
		if s.enablingCycles >= delay {
			if s.hw.Driver.Faulted() {
				s.latchFault(FaultDriverEnable)
				return
			}
			s.enterMode(s.pendingMode)
			// Run the target's first cycle now so the cycle that
			// reports the new mode also carries its duties.
			s.runControl()
		}

	case ModeCalibratingCurrent:
		s.runCurrentCal()

	case ModeCalibratingEncoder:
		s.runEncoderCal(dt)

	case ModeVoltage:
		v := s.cmd.PhaseVoltage
		s.writePhaseVoltages(v[0], v[1], v[2])

	case ModeVoltageFoc:
		sc := s.cordic.Compute(foc.RadiansToQ31(s.cmd.FocTheta))
		va, vb, vc := foc.InverseDq(sc, s.cmd.FocVoltage, 0)
		s.writePhaseVoltages(va, vb, vc)

	case ModeVoltageDq:
		s.runVoltageDq()

	case ModeCurrent:
		s.runFOC(s.cmd.IdA, s.cmd.IqA, false)

	case ModeBrake:
		s.control.Clear()
		s.hw.PWM.Brake()

	case ModeMeasureInductance:
		s.runMeasureInductance(dt)

	default:
		// Position family: the outer loop computes a torque, the
		// torque model turns it into an Iq reference.
		idRef, iqRef, dPriority := s.runOuter(dt)
		s.runFOC(idRef, iqRef, dPriority)
	}
}

// writePhaseVoltages drives the bridge open loop.
func (s *Servo) writePhaseVoltages(va, vb, vc float32) {
	da, db, dc := foc.SVPWM(va, vb, vc, s.status.BusV, s.cfg.DMin, s.cfg.DMax)
	s.control.VoltageA, s.control.VoltageB, s.control.VoltageC = va, vb, vc
	s.control.PwmA, s.control.PwmB, s.control.PwmC = da, db, dc
	s.hw.PWM.WriteDuties(da, db, dc)
}

// commutationTheta applies the 64 bin commutation offset to the fused
// electrical angle.
func (s *Servo) commutationTheta() float32 {
	theta := s.status.Position.ElectricalTheta
	frac := theta / foc.TwoPi
	const bins = 64
	x := frac * bins
	i0 := int(x) % bins
	if i0 < 0 {
		i0 += bins
	}
	i1 := (i0 + 1) % bins
	w := x - float32(int(x))
	offset := s.motor.CommutationOffset[i0]*(1-w) + s.motor.CommutationOffset[i1]*w
	return foc.WrapZeroTwoPi(theta + offset)
}

// runFOC closes the current loop and writes the PWM duties.
func (s *Servo) runFOC(idRef, iqRef float32, dPriority bool) {
	st := &s.status

	// Never command more current than the board allows.
	idRef = foc.Limit(idRef, -s.cfg.MaxCurrentA, s.cfg.MaxCurrentA)
	iqRef = foc.Limit(iqRef, -s.cfg.MaxCurrentA, s.cfg.MaxCurrentA)

	sc := s.cordic.Compute(foc.RadiansToQ31(s.commutationTheta()))
	id, iq := foc.Dq(sc, st.CurrentA[0], st.CurrentA[1], st.CurrentA[2])
	st.DA, st.QA = id, iq

	rate := s.cfg.RateHz
	vd := foc.SimplePI{Config: &s.piDConfig, State: &s.piDState}.Apply(id, idRef, rate)
	vq := foc.SimplePI{Config: &s.piQConfig, State: &s.piQState}.Apply(iq, iqRef, rate)

	maxV := st.BusV * s.cfg.KSvm
	cd, cq, clamped := foc.VoltageClamp(vd, vq, maxV, dPriority)
	if clamped {
		// Anti-windup: back out the integral update on an axis whose
		// error is still pushing into the saturated direction.
		if sameSign(-s.piDState.Error, cd) {
			foc.SimplePI{Config: &s.piDConfig, State: &s.piDState}.FreezeIntegral(rate)
		}
		if sameSign(-s.piQState.Error, cq) {
			foc.SimplePI{Config: &s.piQConfig, State: &s.piQState}.FreezeIntegral(rate)
		}
	}

	va, vb, vc := foc.InverseDq(sc, cd, cq)

	// Dead time compensation: each phase loses roughly a constant
	// voltage along its current direction while both switches are off.
	if dtc := s.cfg.DeadTimeCompV; dtc > 0 {
		va += foc.Copysign(dtc, st.CurrentA[0])
		vb += foc.Copysign(dtc, st.CurrentA[1])
		vc += foc.Copysign(dtc, st.CurrentA[2])
	}

	da, db, dc := foc.SVPWM(va, vb, vc, st.BusV, s.cfg.DMin, s.cfg.DMax)

	s.control.DV, s.control.QV = cd, cq
	s.control.IdRefA, s.control.IqRefA = idRef, iqRef
	s.control.VoltageA, s.control.VoltageB, s.control.VoltageC = va, vb, vc
	s.control.PwmA, s.control.PwmB, s.control.PwmC = da, db, dc
	// control.TorqueNm stays the commanded torque from the outer loop;
	// the status carries the torque inferred from the measured Iq.
	st.TorqueNm = s.torqueModel.CurrentToTorque(iq)

	s.hw.PWM.WriteDuties(da, db, dc)
}

// runVoltageDq drives a fixed (Vd, Vq) at the measured angle.
func (s *Servo) runVoltageDq() {
	sc := s.cordic.Compute(foc.RadiansToQ31(s.commutationTheta()))
	maxV := s.status.BusV * s.cfg.KSvm
	vd, vq, _ := foc.VoltageClamp(s.cmd.VdV, s.cmd.VqV, maxV, false)
	va, vb, vc := foc.InverseDq(sc, vd, vq)
	s.control.DV, s.control.QV = vd, vq
	s.writePhaseVoltages(va, vb, vc)
}

func sameSign(a, b float32) bool {
	return (a >= 0) == (b >= 0)
}
