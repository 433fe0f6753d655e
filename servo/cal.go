package servo

import "goservo/foc"

// runCurrentCal holds the bridge at 50% duty and averages the raw
// current readings. Staged: a settle period is discarded before the
// accumulation window.
func (s *Servo) runCurrentCal() {
	s.hw.PWM.WriteDuties(0.5, 0.5, 0.5)
	s.control.PwmA, s.control.PwmB, s.control.PwmC = 0.5, 0.5, 0.5
	s.calCycles++

	switch s.calStage {
	case 0:
		if s.calCycles >= s.cfg.CurrentCalCycles/4 {
			s.calStage = 1
			s.calCycles = 0
			s.sampler.startOffsetCal()
		}
	case 1:
		if s.calCycles >= s.cfg.CurrentCalCycles {
			if !s.sampler.finishOffsetCal() {
				s.latchFault(FaultCalibration)
				return
			}
			s.forceStopped()
		}
	}
}

// runEncoderCal sweeps an open loop voltage vector through one full
// mechanical revolution so the external tool can correlate commanded
// electrical angle against the observed encoder readings.
func (s *Servo) runEncoderCal(dt float32) {
	s.calTheta = foc.WrapZeroTwoPi(
		s.calTheta + s.cfg.EncoderCalVelocity*foc.TwoPi*dt)
	sc := s.cordic.Compute(foc.RadiansToQ31(s.calTheta))
	va, vb, vc := foc.InverseDq(sc, s.cfg.EncoderCalVoltage, 0)
	s.writePhaseVoltages(va, vb, vc)

	s.calCycles++
	total := uint32(float32(s.motor.PolePairs) *
		float32(s.cfg.RateHz) / s.cfg.EncoderCalVelocity)
	if s.calCycles >= total {
		s.forceStopped()
	}
}

// indHalfPeriod is the number of cycles between voltage reversals
// while measuring inductance.
const indHalfPeriod = 8

// runMeasureInductance applies a square wave voltage on the D axis at
// the commanded angle and estimates L from the resulting current
// slope. The estimate updates continuously; the host exits the mode
// when satisfied.
func (s *Servo) runMeasureInductance(dt float32) {
	s.indCycles++
	if s.indCycles >= indHalfPeriod {
		s.indSign = -s.indSign
		s.indCycles = 0
	}
	vd := s.cmd.FocVoltage * s.indSign

	sc := s.cordic.Compute(foc.RadiansToQ31(s.cmd.FocTheta))
	va, vb, vc := foc.InverseDq(sc, vd, 0)
	s.writePhaseVoltages(va, vb, vc)
	s.control.DV = vd

	id, _ := foc.Dq(sc, s.status.CurrentA[0], s.status.CurrentA[1], s.status.CurrentA[2])
	delta := foc.Abs(id - s.indLastIq)
	s.indLastIq = id

	// Skip the cycle straddling a reversal.
	if s.indCycles != 0 {
		s.indDeltaSum += delta
		s.indCount++
	}
	if s.indCount > 0 {
		avgDelta := s.indDeltaSum / float32(s.indCount)
		if avgDelta > 1e-6 {
			s.status.InductanceH = foc.Abs(s.cmd.FocVoltage) * dt / avgDelta
		}
	}
}
