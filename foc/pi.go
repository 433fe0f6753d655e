package foc

// SimplePIConfig holds the gains for the current loop regulators. The
// same config is shared by the D and Q loops unless the application
// configures them separately.
type SimplePIConfig struct {
	Kp float32
	Ki float32
}

// SimplePIState is the mutable regulator state. The error, p and
// command fields are not strictly state but are retained so telemetry
// can log them alongside the integral.
type SimplePIState struct {
	Integral float32
	Desired  float32

	Error   float32
	P       float32
	Command float32
}

// Clear resets the regulator state memberwise.
func (s *SimplePIState) Clear() {
	s.Integral = 0
	s.Desired = NaN()
	s.Error = 0
	s.P = 0
	s.Command = 0
}

// SimplePI is a proportional integral regulator with the negative
// feedback convention used by the current loops: the command opposes
// the error.
type SimplePI struct {
	Config *SimplePIConfig
	State  *SimplePIState
}

// Apply advances the regulator one cycle at rateHz and returns the new
// command.
func (pi SimplePI) Apply(measured, desired float32, rateHz int) float32 {
	s := pi.State
	s.Desired = desired
	s.Error = measured - desired

	s.Integral += s.Error * pi.Config.Ki / float32(rateHz)

	s.P = pi.Config.Kp * s.Error
	s.Command = -1.0 * (s.P + s.Integral)
	return s.Command
}

// FreezeIntegral backs out the last integral update. Used by the
// anti-windup logic when the voltage clamp is active and the error
// would push further into saturation.
func (pi SimplePI) FreezeIntegral(rateHz int) {
	pi.State.Integral -= pi.State.Error * pi.Config.Ki / float32(rateHz)
}
