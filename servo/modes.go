package servo

import "goservo/foc"

// applyCommand is the single per-cycle entry point for host commands.
// It validates the requested transition, stages the pre-driver enable
// sequence when coming from Stopped, and loads the mode specific
// fields.
func (s *Servo) applyCommand(cmd *CommandData) {
	s.commandAge = 0

	resolved := *cmd
	if foc.IsNaN(resolved.WatchdogTimeout) {
		resolved.WatchdogTimeout = s.cfg.DefaultTimeoutS
	}
	if foc.IsNaN(resolved.VelocityLimit) {
		resolved.VelocityLimit = s.cfg.DefaultVelocityLimit
	}
	if foc.IsNaN(resolved.AccelLimit) {
		resolved.AccelLimit = s.cfg.DefaultAccelLimit
	}
	if resolved.KpScale == 0 && resolved.KdScale == 0 {
		resolved.KpScale = 1
		resolved.KdScale = 1
	}

	target := resolved.Mode

	// In Fault only a stop is honored.
	if s.status.Mode == ModeFault && target != ModeStopped {
		return
	}

	if target == ModeStopped {
		s.cmd = resolved
		s.enterStopped()
		return
	}

	if f := s.checkStartConditions(target, &resolved); f != FaultNone {
		s.latchFault(f)
		return
	}

	if resolved.WatchdogTimeout > 0 {
		s.watchdogCycles = uint32(resolved.WatchdogTimeout * float32(s.cfg.RateHz))
	} else {
		s.watchdogCycles = 0
	}

	switch s.status.Mode {
	case ModeStopped:
		// Power up through Enabling, then land in the target.
		s.cmd = resolved
		s.pendingMode = target
		s.enablingCycles = 0
		s.hw.Driver.Enable(true)
		s.hw.PWM.Enable(true)
		s.setMode(ModeEnabling)
	case ModeEnabling:
		// Re-target mid enable.
		s.cmd = resolved
		s.pendingMode = target
	default:
		preserve := s.status.Mode.preservesIntegral(target)
		s.cmd = resolved
		if s.status.Mode != target {
			s.enterModeWith(target, preserve)
		} else {
			s.trajActive = false
		}
	}
}

// preservesIntegral reports whether a direct transition keeps the
// outer loop integrator. The position family hands off between its
// members without a bump as long as the gains are unchanged, which
// they are, because gains live in config.
func (m Mode) preservesIntegral(target Mode) bool {
	family := func(x Mode) bool {
		switch x {
		case ModePosition, ModePositionTimeout, ModeZeroVelocity,
			ModePositionHold, ModeStayWithin, ModeCurrent:
			return true
		}
		return false
	}
	return family(m) && family(target)
}

// checkStartConditions validates everything a powered mode needs.
func (s *Servo) checkStartConditions(target Mode, cmd *CommandData) Fault {
	if s.configDirty {
		// Config changes require an explicit stop before the next
		// start so retunes never take effect mid-flight.
		return FaultConfigChanged
	}

	switch target {
	case ModeEnabling, ModePositionTimeout:
		// Internal states are not valid targets.
		return FaultCalibration
	}

	if target.needsTheta() || target == ModeCalibratingEncoder {
		if !s.motor.Configured() {
			return FaultMotorNotConfigured
		}
	}

	if s.status.BusV < s.cfg.UnderVoltage {
		return FaultUnderVoltage
	}
	if s.status.BusV > s.cfg.OverVoltage {
		return FaultOverVoltage
	}

	if target.needsTheta() && !s.status.Position.Valid {
		return FaultThetaInvalid
	}
	if target.needsPosition() && !s.status.Position.Valid {
		return FaultPositionInvalid
	}

	if target == ModePosition &&
		!foc.IsNaN(s.cfg.StartPositionLimit) &&
		!foc.IsNaN(cmd.Position) {
		err := float32(s.status.Position.OutputPosition) - cmd.Position
		if foc.Abs(err) > s.cfg.StartPositionLimit {
			return FaultStartOutsideLimit
		}
	}

	return FaultNone
}

// enterMode performs entry actions and switches.
func (s *Servo) enterMode(target Mode) {
	s.enterModeWith(target, false)
}

func (s *Servo) enterModeWith(target Mode, preserveIntegral bool) {
	if !preserveIntegral {
		s.pidState.Clear()
		s.piDState.Clear()
		s.piQState.Clear()
	}
	s.trajActive = false

	switch target {
	case ModeCalibratingCurrent:
		s.calStage = 0
		s.calCycles = 0
	case ModeCalibratingEncoder:
		s.calTheta = 0
		s.calCycles = 0
	case ModeHoming:
		if foc.IsNaN(s.cmd.MaxTorque) {
			s.cmd.MaxTorque = s.cfg.HomingMaxTorque
		}
	case ModeMeasureInductance:
		s.indSign = 1
		s.indCycles = 0
		s.indLastIq = 0
		s.indDeltaSum = 0
		s.indCount = 0
	}

	s.setMode(target)
}

func (s *Servo) setMode(m Mode) {
	s.status.Mode = m
	s.modeCycles = 0
	s.timeoutCycles = 0
}

// enterStopped powers down the bridge. A latched fault clears only if
// its condition is gone; otherwise the stop is refused and the fault
// stays visible.
func (s *Servo) enterStopped() {
	if s.status.Mode == ModeFault && s.faultConditionActive(s.status.Fault) {
		return
	}
	s.status.Fault = FaultNone
	s.configDirty = false
	s.control.Clear()
	s.hw.PWM.WriteDuties(0, 0, 0)
	s.hw.PWM.Enable(false)
	s.hw.Driver.Enable(false)
	s.watchdogCycles = 0
	s.setMode(ModeStopped)
}

// faultConditionActive reports whether the underlying condition for a
// latched fault is still present.
func (s *Servo) faultConditionActive(f Fault) bool {
	switch f {
	case FaultMotorDriver, FaultDriverEnable:
		return s.hw.Driver.Faulted()
	case FaultUnderVoltage:
		return s.underVoltageActive
	case FaultOverVoltage:
		return s.overVoltageActive
	case FaultOverTemperature:
		return s.status.FETTempC > s.cfg.FETTempLimit ||
			s.status.MotorTemp > s.cfg.MotorTempLimit
	}
	return false
}

// latchFault records the first fault of a cycle and makes the bridge
// safe: duties low, outputs off, pre-driver disabled.
func (s *Servo) latchFault(f Fault) {
	if s.status.Mode == ModeFault {
		return
	}
	s.status.Fault = f
	s.control.Clear()
	s.hw.PWM.WriteDuties(0, 0, 0)
	s.hw.PWM.Enable(false)
	s.hw.Driver.Enable(false)
	s.setMode(ModeFault)
}

// checkWatchdog demotes the mode when the host stops talking.
func (s *Servo) checkWatchdog() {
	switch s.status.Mode {
	case ModeStopped, ModeFault, ModeEnabling,
		ModeCalibratingCurrent, ModeCalibratingEncoder:
		return
	}

	if s.status.Mode == s.cfg.TimeoutMode && s.timeoutCycles > 0 {
		// Already demoted: run the timeout mode for its allowance,
		// then give up entirely.
		s.timeoutCycles++
		if float32(s.timeoutCycles) > s.cfg.TimeoutExtraS*float32(s.cfg.RateHz) {
			s.forceStopped()
		}
		return
	}

	if s.watchdogCycles == 0 {
		return
	}
	if s.commandAge > s.watchdogCycles {
		s.status.TotalTimeouts++
		s.enterMode(s.cfg.TimeoutMode)
		s.timeoutCycles = 1
	}
}

// forceStopped powers down without the fault-clearing semantics of an
// operator stop.
func (s *Servo) forceStopped() {
	s.control.Clear()
	s.hw.PWM.WriteDuties(0, 0, 0)
	s.hw.PWM.Enable(false)
	s.hw.Driver.Enable(false)
	s.watchdogCycles = 0
	s.setMode(ModeStopped)
}
