package foc

// PIDConfig holds the position loop gains and limits.
type PIDConfig struct {
	Kp float32
	Ki float32
	Kd float32

	// IRateLimit bounds how fast the integral may change per second.
	// Negative disables the limit.
	IRateLimit float32
	// ILimit bounds the magnitude of the integral term.
	ILimit float32
	// MaxDesiredRate bounds how fast the desired setpoint may slew, in
	// units per second. 0 is unlimited.
	MaxDesiredRate float32
	Sign           int8
}

// PIDState is the mutable controller state plus the intermediate terms
// retained for telemetry.
type PIDState struct {
	Integral float32
	// Desired starts as NaN so that the first commanded setpoint is
	// accepted without rate limiting.
	Desired float32

	Error     float32
	ErrorRate float32
	P         float32
	D         float32
	PD        float32
	Command   float32
}

// Clear resets the controller state memberwise.
func (s *PIDState) Clear() {
	s.Integral = 0
	s.Desired = NaN()
	s.Error = 0
	s.ErrorRate = 0
	s.P = 0
	s.D = 0
	s.PD = 0
	s.Command = 0
}

// ApplyOptions scale the individual terms for a single Apply call.
// Commands carry kp and kd scales so a host can soften the loop without
// rewriting the configured gains.
type ApplyOptions struct {
	KpScale float32
	KdScale float32
	KiScale float32
}

// DefaultApplyOptions returns unity scales.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{KpScale: 1, KdScale: 1, KiScale: 1}
}

// PID is a proportional integral derivative controller operating on a
// measurement and its rate.
type PID struct {
	Config *PIDConfig
	State  *PIDState
}

// Apply advances the controller one cycle at rateHz.
func (pid PID) Apply(measured, inputDesired, measuredRate, inputDesiredRate float32,
	rateHz int, opt ApplyOptions) float32 {
	c := pid.Config
	s := pid.State

	var desired, desiredRate float32
	if c.MaxDesiredRate != 0.0 && !IsNaN(s.Desired) {
		maxStep := c.MaxDesiredRate / float32(rateHz)
		proposedStep := inputDesired - s.Desired
		actualStep := Limit(proposedStep, -maxStep, maxStep)
		desired = s.Desired + actualStep
		desiredRate = Limit(inputDesiredRate, -c.MaxDesiredRate, c.MaxDesiredRate)
	} else {
		desired = inputDesired
		desiredRate = inputDesiredRate
	}

	s.Desired = desired
	s.Error = measured - desired
	s.ErrorRate = measuredRate - desiredRate

	maxIUpdate := c.IRateLimit / float32(rateHz)
	toUpdateI := s.Error * c.Ki / float32(rateHz)
	if maxIUpdate > 0.0 {
		toUpdateI = Limit(toUpdateI, -maxIUpdate, maxIUpdate)
	}
	s.Integral += toUpdateI
	s.Integral = Limit(s.Integral, -c.ILimit, c.ILimit)

	s.P = opt.KpScale * c.Kp * s.Error
	s.D = opt.KdScale * c.Kd * s.ErrorRate
	s.PD = s.P + s.D

	s.Command = float32(c.Sign) * (s.PD + opt.KiScale*s.Integral)
	return s.Command
}
