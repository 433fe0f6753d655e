package servo

import "goservo/position"

// runSafety performs the per-cycle checks in priority order; the first
// hit latches and the rest are skipped for the cycle. The hysteresis
// trackers run unconditionally so a fault can only be cleared once the
// condition has genuinely receded.
func (s *Servo) runSafety() {
	st := &s.status

	// Voltage condition tracking with recovery hysteresis.
	if st.BusV < s.cfg.UnderVoltage {
		s.underVoltageActive = true
	} else if st.BusV > s.cfg.UnderVoltage+voltageHysteresisV {
		s.underVoltageActive = false
	}
	if st.BusV > s.cfg.OverVoltage {
		s.overVoltageActive = true
	} else if st.BusV < s.cfg.OverVoltage-voltageHysteresisV {
		s.overVoltageActive = false
	}

	if st.Mode == ModeFault {
		return
	}

	// 1. Pre-driver fault pin.
	if s.hw.Driver.Enabled() && s.hw.Driver.Faulted() {
		s.latchFault(FaultMotorDriver)
		return
	}

	if !st.Mode.powered() {
		return
	}

	// 2. Bus voltage rails.
	if s.underVoltageActive {
		s.latchFault(FaultUnderVoltage)
		return
	}
	if s.overVoltageActive {
		s.latchFault(FaultOverVoltage)
		return
	}

	// 3. Temperatures. The derate band below the limit is handled in
	// the outer loop; past the limit the bridge goes down.
	if st.FETTempC > s.cfg.FETTempLimit || st.MotorTemp > s.cfg.MotorTempLimit {
		s.latchFault(FaultOverTemperature)
		return
	}

	// 4. Position validity for the modes that need it.
	if st.Mode.needsTheta() && !st.Position.Valid {
		switch st.Position.Fault {
		case position.FaultSourceInactive, position.FaultDisagreement:
			s.latchFault(FaultEncoder)
		default:
			if st.Mode.needsPosition() {
				s.latchFault(FaultPositionInvalid)
			} else {
				s.latchFault(FaultThetaInvalid)
			}
		}
		return
	}

	// 5. Power limit bookkeeping (reduces torque, never latches).
	s.updatePowerLimit()
}
