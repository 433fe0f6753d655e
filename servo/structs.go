package servo

import (
	"goservo/foc"
	"goservo/position"
)

// Mode is the controller state. The ISR dispatches once per cycle on
// this value; each mode decides what the current loop tries to do.
type Mode uint8

const (
	ModeStopped Mode = iota
	ModeFault
	ModeEnabling
	ModeCalibratingCurrent
	ModeCalibratingEncoder
	ModeVoltage
	ModeVoltageFoc
	ModeVoltageDq
	ModeCurrent
	ModePosition
	ModePositionTimeout
	ModeZeroVelocity
	ModeStayWithin
	ModeMeasureInductance
	ModeBrake
	ModePositionHold
	ModePositionWait
	ModeHoming
	numModes
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeFault:
		return "fault"
	case ModeEnabling:
		return "enabling"
	case ModeCalibratingCurrent:
		return "cal_current"
	case ModeCalibratingEncoder:
		return "cal_encoder"
	case ModeVoltage:
		return "voltage"
	case ModeVoltageFoc:
		return "voltage_foc"
	case ModeVoltageDq:
		return "voltage_dq"
	case ModeCurrent:
		return "current"
	case ModePosition:
		return "position"
	case ModePositionTimeout:
		return "position_timeout"
	case ModeZeroVelocity:
		return "zero_velocity"
	case ModeStayWithin:
		return "stay_within"
	case ModeMeasureInductance:
		return "measure_ind"
	case ModeBrake:
		return "brake"
	case ModePositionHold:
		return "position_hold"
	case ModePositionWait:
		return "position_wait"
	case ModeHoming:
		return "homing"
	}
	return "unknown"
}

// needsTheta reports whether the mode requires a valid electrical
// angle.
func (m Mode) needsTheta() bool {
	switch m {
	case ModeCurrent, ModePosition, ModePositionTimeout, ModeZeroVelocity,
		ModeStayWithin, ModePositionHold, ModePositionWait, ModeHoming,
		ModeVoltageDq:
		return true
	}
	return false
}

// needsPosition reports whether the mode requires a valid output
// position.
func (m Mode) needsPosition() bool {
	switch m {
	case ModePosition, ModePositionTimeout, ModeZeroVelocity, ModeStayWithin,
		ModePositionHold, ModePositionWait, ModeHoming:
		return true
	}
	return false
}

// CommandData is what the host asks for. It is published whole through
// the command mailbox; the ISR consumes it at one point per cycle.
type CommandData struct {
	Mode Mode

	// Position in output revolutions. NaN means no position target:
	// run on velocity alone.
	Position float32
	Velocity float32

	FeedforwardTorque float32
	KpScale           float32
	KdScale           float32
	MaxTorque         float32

	// StopPosition, when finite, converts a velocity command into
	// "move until here then hold".
	StopPosition float32

	// WatchdogTimeout in seconds. NaN selects the configured default;
	// zero or negative disables the watchdog.
	WatchdogTimeout float32

	// VelocityLimit and AccelLimit bound the internal trajectory. NaN
	// selects the configured defaults.
	VelocityLimit float32
	AccelLimit    float32

	// Voltage mode payloads.
	PhaseVoltage [3]float32 // ModeVoltage
	FocTheta     float32    // ModeVoltageFoc
	FocVoltage   float32
	VdV          float32 // ModeVoltageDq
	VqV          float32

	// Current mode payload.
	IdA float32
	IqA float32

	// StayWithin band.
	BoundsMin float32
	BoundsMax float32
}

// DefaultCommand returns a command with the documented neutral values.
func DefaultCommand() CommandData {
	return CommandData{
		Position:        foc.NaN(),
		KpScale:         1.0,
		KdScale:         1.0,
		MaxTorque:       foc.NaN(),
		StopPosition:    foc.NaN(),
		WatchdogTimeout: foc.NaN(),
		VelocityLimit:   foc.NaN(),
		AccelLimit:      foc.NaN(),
		BoundsMin:       foc.NaN(),
		BoundsMax:       foc.NaN(),
	}
}

// Motor holds the per-motor calibration pushed by the characterization
// tool.
type Motor struct {
	PolePairs uint8

	ResistanceOhm float32
	InductanceH   float32

	// Kv-derived torque model parameters.
	TorqueConstant float32
	CurrentCutoffA float32
	CurrentScale   float32
	TorqueScale    float32

	// CommutationOffset is added to the electrical angle, binned over
	// one electrical revolution.
	CommutationOffset [64]float32
}

// Configured reports whether closed loop commutation is possible.
func (m *Motor) Configured() bool {
	return m.PolePairs != 0 && m.TorqueConstant != 0
}

// TorqueModel builds the conversion helper for the current values.
func (m *Motor) TorqueModel() foc.TorqueModel {
	return foc.TorqueModel{
		TorqueConstant: m.TorqueConstant,
		CurrentCutoffA: m.CurrentCutoffA,
		CurrentScale:   m.CurrentScale,
		TorqueScale:    m.TorqueScale,
	}
}

// Config is the servo configuration. Fields are mutated only outside
// closed loop modes; a change while running latches FaultConfigChanged.
type Config struct {
	RateHz int

	// Current loop gains, shared by D and Q unless the Q overrides are
	// nonzero.
	CurrentKp float32
	CurrentKi float32
	QKp       float32
	QKi       float32

	// Position loop.
	Pid foc.PIDConfig

	// Voltage envelope, with 0.2 V hysteresis on recovery.
	UnderVoltage float32
	OverVoltage  float32

	// Temperature limits; torque is derated linearly to zero over the
	// window below each limit.
	FETTempLimit     float32
	MotorTempLimit   float32
	TempDerateWindow float32

	MaxCurrentA float32
	MaxPowerW   float32

	// Optional output position bounds; NaN disables.
	PositionMin float32
	PositionMax float32

	MaxVelocity float32

	// StartPositionLimit faults a Position entry whose error exceeds
	// it; NaN disables.
	StartPositionLimit float32

	// SVM duty bounds keep the bootstrap supplies alive.
	DMin float32
	DMax float32

	// KSvm scales the bus voltage into the usable voltage magnitude.
	KSvm float32

	// DeadTimeCompV offsets each phase voltage along its current
	// direction to cancel the inverter dead time distortion. Zero
	// disables.
	DeadTimeCompV float32

	// EnableDelayMs is the pre-driver settle time in Enabling.
	EnableDelayMs uint32

	// DefaultTimeoutS applies when a command carries no watchdog.
	DefaultTimeoutS float32
	// TimeoutMode is the mode entered on watchdog expiry.
	TimeoutMode Mode
	// TimeoutExtraS is how long the timeout mode runs before the servo
	// gives up and stops.
	TimeoutExtraS float32

	DefaultVelocityLimit float32
	DefaultAccelLimit    float32

	// CurrentCalCycles is how many 50% duty cycles the current offset
	// calibration averages.
	CurrentCalCycles uint32

	// EncoderCalVelocity is the open loop electrical sweep rate during
	// encoder calibration, electrical revolutions per second.
	EncoderCalVelocity float32
	// EncoderCalVoltage is the open loop drive voltage.
	EncoderCalVoltage float32

	// HomingVelocity and HomingMaxTorque drive the index search.
	HomingVelocity  float32
	HomingMaxTorque float32

	// VoltageFilterHz and TempFilterHz set the telemetry IIR cutoffs.
	VoltageFilterHz float32
	TempFilterHz    float32

	// CurrentSenseScale converts raw ADC counts to amps.
	CurrentSenseScale float32
	// VSenseScale converts raw ADC counts to bus volts.
	VSenseScale float32
	// TSense conversion: degrees per count with an offset.
	TSenseScale  float32
	TSenseOffset float32

	// FieldWeakening enables negative Id at high modulation.
	FieldWeakening bool
}

// DefaultConfig mirrors the values a stock board ships with.
func DefaultConfig() Config {
	return Config{
		RateHz:    30000,
		CurrentKp: 0.5,
		CurrentKi: 200.0,
		Pid: foc.PIDConfig{
			Kp:             4.0,
			Ki:             1.0,
			Kd:             0.05,
			IRateLimit:     -1,
			ILimit:         0.5,
			MaxDesiredRate: 0,
			Sign:           -1,
		},
		UnderVoltage:         10.5,
		OverVoltage:          28.0,
		FETTempLimit:         75.0,
		MotorTempLimit:       90.0,
		TempDerateWindow:     10.0,
		MaxCurrentA:          60.0,
		MaxPowerW:            450.0,
		PositionMin:          foc.NaN(),
		PositionMax:          foc.NaN(),
		MaxVelocity:          500.0,
		StartPositionLimit:   foc.NaN(),
		DMin:                 0.01,
		DMax:                 0.97,
		KSvm:                 0.57,
		DeadTimeCompV:        0.0,
		EnableDelayMs:        2,
		DefaultTimeoutS:      0.1,
		TimeoutMode:          ModeZeroVelocity,
		TimeoutExtraS:        0.8,
		DefaultVelocityLimit: foc.NaN(),
		DefaultAccelLimit:    foc.NaN(),
		CurrentCalCycles:     1024,
		EncoderCalVelocity:   1.0,
		EncoderCalVoltage:    0.5,
		HomingVelocity:       0.2,
		HomingMaxTorque:      0.5,
		VoltageFilterHz:      100.0,
		TempFilterHz:         20.0,
		CurrentSenseScale:    0.025,
		VSenseScale:          0.016,
		TSenseScale:          0.06,
		TSenseOffset:         -20.0,
		FieldWeakening:       false,
	}
}

// Control captures the intermediate control outputs of one cycle.
type Control struct {
	PwmA float32
	PwmB float32
	PwmC float32

	VoltageA float32
	VoltageB float32
	VoltageC float32

	DV float32
	QV float32

	IdRefA float32
	IqRefA float32

	TorqueNm float32
}

// Clear zeroes the outputs memberwise.
func (c *Control) Clear() {
	*c = Control{}
}

// Status is the telemetry visible state of the servo.
type Status struct {
	Mode  Mode
	Fault Fault

	// Filtered supply measurements.
	BusV      float32
	FETTempC  float32
	MotorTemp float32

	// Phase currents after offset and scaling, unfiltered.
	CurrentA [3]float32
	// Filtered copies for protection and telemetry.
	FilteredCurrentA [3]float32

	DA float32 // measured Id
	QA float32 // measured Iq

	TorqueNm float32

	Position position.Status

	// MeasureInductance result.
	InductanceH float32

	CycleCount  uint32
	TimestampUs uint32
	LoopUs      uint32
	PeakLoopUs  uint32

	TotalTimeouts uint32
}

// Cycle is the complete per-PWM-period snapshot published to the
// telemetry ring at ISR exit.
type Cycle struct {
	Status  Status
	Control Control
	Command CommandData
}
