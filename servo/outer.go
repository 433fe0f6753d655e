package servo

import (
	"goservo/foc"
	"goservo/position"
)

const voltageHysteresisV = 0.2

// runOuter computes the Id/Iq references for the position family of
// modes. The returned dPriority flag tells the current loop to give
// the D axis priority in the voltage clamp while a torque limit is
// pinching.
func (s *Servo) runOuter(dt float32) (idRef, iqRef float32, dPriority bool) {
	st := &s.status
	measP := float32(st.Position.OutputPosition)
	measV := st.Position.OutputVelocity

	var desP, desV float32
	ff := s.cmd.FeedforwardTorque

	switch st.Mode {
	case ModeZeroVelocity, ModePositionTimeout:
		// Stand-still regulator: the position target floats to the
		// measurement, only the rate is held at zero.
		desP = measP
		desV = 0
		ff = 0

	case ModeStayWithin:
		lo, hi := s.cmd.BoundsMin, s.cmd.BoundsMax
		switch {
		case !foc.IsNaN(lo) && measP < lo:
			desP, desV = lo, 0
		case !foc.IsNaN(hi) && measP > hi:
			desP, desV = hi, 0
		default:
			// Inside the band: coast on feedforward alone.
			s.pidState.Clear()
			torque := s.limitTorque(ff, measV)
			return s.currentRefs(torque)
		}

	case ModePositionHold:
		desP = s.cmd.StopPosition
		desV = 0

	case ModePositionWait:
		if st.Position.Homed == position.HomedOutput {
			s.cmd.StopPosition = measP
			s.enterMode(ModePositionHold)
			desP, desV = measP, 0
			break
		}
		// Not homed yet: coast.
		s.pidState.Clear()
		return 0, 0, false

	case ModeHoming:
		if st.Position.Homed != position.HomedNever {
			s.forceStopped()
			return 0, 0, false
		}
		desP = measP
		desV = s.cfg.HomingVelocity
		ff = 0

	default: // ModePosition
		desP, desV = s.updateTrajectory(measP, measV, dt)
		if foc.IsNaN(desP) {
			desP = measP
		}
	}

	// Output shaft bounds.
	if !foc.IsNaN(s.cfg.PositionMin) && desP < s.cfg.PositionMin {
		desP = s.cfg.PositionMin
	}
	if !foc.IsNaN(s.cfg.PositionMax) && desP > s.cfg.PositionMax {
		desP = s.cfg.PositionMax
	}
	desV = foc.Limit(desV, -s.cfg.MaxVelocity, s.cfg.MaxVelocity)

	opt := foc.ApplyOptions{
		KpScale: s.cmd.KpScale,
		KdScale: s.cmd.KdScale,
		KiScale: 1,
	}
	integralBefore := s.pidState.Integral
	pid := foc.PID{Config: &s.cfg.Pid, State: &s.pidState}
	torque := pid.Apply(measP, desP, measV, desV, s.cfg.RateHz, opt) + ff

	limited := s.limitTorque(torque, measV)
	if limited != torque {
		// Any limit pinching the command freezes the integrator.
		s.pidState.Integral = integralBefore
		dPriority = true
	}

	idRef, iqRef, _ = s.currentRefs(limited)
	return idRef, iqRef, dPriority
}

// limitTorque applies the torque, temperature derate, power and
// velocity limits.
func (s *Servo) limitTorque(torque, measV float32) float32 {
	maxT := s.torqueModel.CurrentToTorque(s.cfg.MaxCurrentA)
	if !foc.IsNaN(s.cmd.MaxTorque) && s.cmd.MaxTorque < maxT {
		maxT = s.cmd.MaxTorque
	}
	maxT *= s.derateFactor()
	maxT *= s.powerScale
	if maxT < 0 {
		maxT = 0
	}
	out := foc.Limit(torque, -maxT, maxT)

	// Past the velocity envelope only decelerating torque is allowed.
	if measV > s.cfg.MaxVelocity && out > 0 {
		out = 0
	}
	if measV < -s.cfg.MaxVelocity && out < 0 {
		out = 0
	}
	return out
}

// derateFactor scales the allowed torque linearly to zero across the
// window below each temperature limit.
func (s *Servo) derateFactor() float32 {
	f := func(temp, limit float32) float32 {
		if s.cfg.TempDerateWindow <= 0 {
			if temp > limit {
				return 0
			}
			return 1
		}
		return foc.Limit((limit-temp)/s.cfg.TempDerateWindow, 0, 1)
	}
	a := f(s.status.FETTempC, s.cfg.FETTempLimit)
	b := f(s.status.MotorTemp, s.cfg.MotorTempLimit)
	if b < a {
		a = b
	}
	return a
}

// currentRefs converts a torque command into current loop references,
// including optional field weakening.
func (s *Servo) currentRefs(torque float32) (idRef, iqRef float32, dPriority bool) {
	s.control.TorqueNm = torque
	iqRef = s.torqueModel.TorqueToCurrent(torque)

	if s.cfg.FieldWeakening && s.motor.InductanceH > 0 {
		// When the back EMF approaches the usable bus voltage, inject
		// negative Id to hold |V| inside the envelope.
		omega := s.status.Position.ElectricalOmega
		maxV := s.status.BusV * s.cfg.KSvm
		vmag := foc.Sqrt(s.control.DV*s.control.DV + s.control.QV*s.control.QV)
		if vmag > 0.95*maxV && omega != 0 {
			excess := vmag - 0.95*maxV
			idRef = -excess / (foc.Abs(omega) * s.motor.InductanceH)
			idRef = foc.Limit(idRef, -0.5*s.cfg.MaxCurrentA, 0)
		}
	}
	return idRef, iqRef, false
}

// updatePowerLimit tracks electrical power and winds the torque scale
// down when it exceeds the configured maximum. Recovery happens at
// the millisecond cadence.
func (s *Servo) updatePowerLimit() {
	if s.cfg.MaxPowerW <= 0 {
		return
	}
	p := 1.5 * (s.control.DV*s.status.DA + s.control.QV*s.status.QA)
	if foc.Abs(p) > s.cfg.MaxPowerW {
		s.powerScale *= 0.99
		if s.powerScale < 0.05 {
			s.powerScale = 0.05
		}
	}
}

// updateTrajectory advances the velocity and acceleration limited
// setpoint toward the commanded position.
func (s *Servo) updateTrajectory(measP, measV, dt float32) (desP, desV float32) {
	cmd := &s.cmd
	vl := cmd.VelocityLimit
	al := cmd.AccelLimit

	if foc.IsNaN(cmd.Position) {
		// Velocity only.
		desV = cmd.Velocity
		if !foc.IsNaN(vl) {
			desV = foc.Limit(desV, -vl, vl)
		}
		if !foc.IsNaN(al) && al > 0 && s.trajActive {
			step := al * dt
			desV = foc.Limit(desV, s.trajVel-step, s.trajVel+step)
		}
		s.trajVel = desV
		s.trajActive = true

		// A finite stop position turns the slew into "move until
		// there, then hold".
		if !foc.IsNaN(cmd.StopPosition) {
			if (desV > 0 && measP >= cmd.StopPosition) ||
				(desV < 0 && measP <= cmd.StopPosition) {
				cmd.Position = cmd.StopPosition
				cmd.Velocity = 0
				return cmd.StopPosition, 0
			}
		}
		return foc.NaN(), desV
	}

	if foc.IsNaN(vl) && foc.IsNaN(al) {
		// No limits: the PID's own max_desired_rate still applies.
		s.trajActive = false
		return cmd.Position, cmd.Velocity
	}

	if !s.trajActive {
		s.trajPos = measP
		s.trajVel = measV
		s.trajActive = true
	}

	dp := cmd.Position - s.trajPos
	switch {
	case !foc.IsNaN(al) && al > 0:
		// Trapezoid: never exceed the velocity that can still stop at
		// the target.
		stopV := foc.Sqrt(2 * al * foc.Abs(dp))
		want := foc.Copysign(stopV, dp)
		if !foc.IsNaN(vl) {
			want = foc.Limit(want, -vl, vl)
		}
		step := al * dt
		s.trajVel = foc.Limit(want, s.trajVel-step, s.trajVel+step)
	case !foc.IsNaN(vl):
		s.trajVel = foc.Copysign(vl, dp)
		if foc.Abs(dp) < vl*dt {
			s.trajVel = dp / dt
		}
	}

	s.trajPos += s.trajVel * dt
	if (dp > 0 && s.trajPos >= cmd.Position) ||
		(dp < 0 && s.trajPos <= cmd.Position) {
		s.trajPos = cmd.Position
		s.trajVel = cmd.Velocity
	}
	return s.trajPos, s.trajVel
}
