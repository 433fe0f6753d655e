// Package server exposes the servo over the register protocol and the
// text CLI. The register file is a flat namespace of scalar fields:
// telemetry below 0x020, command fields above. All access is
// serialized against the control interrupt through the command mailbox
// and the telemetry snapshot; nothing here touches ISR state directly.
package server

import (
	"goservo/foc"
	"goservo/servo"
)

// Register addresses.
const (
	RegMode        = 0x000
	RegPosition    = 0x001
	RegVelocity    = 0x002
	RegTorque      = 0x003
	RegQCurrent    = 0x004
	RegDCurrent    = 0x005
	RegMotorTemp   = 0x00a
	RegTrajectory  = 0x00b
	RegHomeState   = 0x00c
	RegVoltage     = 0x00d
	RegTemperature = 0x00e
	RegFault       = 0x00f

	RegCommandPosition     = 0x020
	RegCommandVelocity     = 0x021
	RegCommandFFTorque     = 0x022
	RegCommandKpScale      = 0x023
	RegCommandKdScale      = 0x024
	RegCommandMaxTorque    = 0x025
	RegCommandStopPosition = 0x026
	RegCommandWatchdog     = 0x027
	RegVelocityLimit       = 0x028
	RegAccelLimit          = 0x029

	RegVFocTheta   = 0x030
	RegVFocVoltage = 0x031
	RegVdCommand   = 0x032
	RegVqCommand   = 0x033
	RegIdCommand   = 0x038
	RegIqCommand   = 0x039

	RegStayWithinLo = 0x040
	RegStayWithinHi = 0x041
)

// Register error codes returned in error subframes.
const (
	errUnknownRegister = 1
	errReadOnly        = 2
	errReplyOverflow   = 3
)

// access bits.
type access uint8

const (
	accessRead access = 1 << iota
	accessWrite
)

// register binds an address to its accessors and its integer scaling.
// Integer reads and writes multiply through the per-width scale; f32
// access is verbatim.
type register struct {
	name   string
	access access
	s8     float32
	s16    float32
	s32    float32
	read   func(s *Server) float32
	write  func(s *Server, v float32)
}

// registers is the address space. Revolution valued fields share the
// standard 0.01/0.0001/0.00001 integer scalings.
var registers = map[uint16]*register{
	RegMode: {
		name: "mode", access: accessRead | accessWrite,
		s8: 1, s16: 1, s32: 1,
		read:  func(s *Server) float32 { return float32(s.snapshot.Mode) },
		write: func(s *Server, v float32) { s.commandMode(servo.Mode(v)) },
	},
	RegPosition: {
		name: "position", access: accessRead,
		s8: 0.01, s16: 0.0001, s32: 0.00001,
		read: func(s *Server) float32 {
			return float32(s.snapshot.Position.OutputPosition)
		},
	},
	RegVelocity: {
		name: "velocity", access: accessRead,
		s8: 0.1, s16: 0.00025, s32: 0.00001,
		read: func(s *Server) float32 { return s.snapshot.Position.OutputVelocity },
	},
	RegTorque: {
		name: "torque", access: accessRead,
		s8: 0.5, s16: 0.01, s32: 0.001,
		read: func(s *Server) float32 { return s.snapshot.TorqueNm },
	},
	RegQCurrent: {
		name: "q_current", access: accessRead,
		s8: 1, s16: 0.1, s32: 0.001,
		read: func(s *Server) float32 { return s.snapshot.QA },
	},
	RegDCurrent: {
		name: "d_current", access: accessRead,
		s8: 1, s16: 0.1, s32: 0.001,
		read: func(s *Server) float32 { return s.snapshot.DA },
	},
	RegMotorTemp: {
		name: "motor_temperature", access: accessRead,
		s8: 1, s16: 0.1, s32: 0.001,
		read: func(s *Server) float32 { return s.snapshot.MotorTemp },
	},
	RegHomeState: {
		name: "home_state", access: accessRead,
		s8: 1, s16: 1, s32: 1,
		read: func(s *Server) float32 { return float32(s.snapshot.Position.Homed) },
	},
	RegVoltage: {
		name: "voltage", access: accessRead,
		s8: 0.5, s16: 0.1, s32: 0.001,
		read: func(s *Server) float32 { return s.snapshot.BusV },
	},
	RegTemperature: {
		name: "temperature", access: accessRead,
		s8: 1, s16: 0.1, s32: 0.001,
		read: func(s *Server) float32 { return s.snapshot.FETTempC },
	},
	RegFault: {
		name: "fault", access: accessRead,
		s8: 1, s16: 1, s32: 1,
		read: func(s *Server) float32 { return float32(s.snapshot.Fault) },
	},

	RegCommandPosition: {
		name: "command_position", access: accessRead | accessWrite,
		s8: 0.01, s16: 0.0001, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.Position },
		write: func(s *Server, v float32) { s.pending.Position = v },
	},
	RegCommandVelocity: {
		name: "command_velocity", access: accessRead | accessWrite,
		s8: 0.1, s16: 0.00025, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.Velocity },
		write: func(s *Server, v float32) { s.pending.Velocity = v },
	},
	RegCommandFFTorque: {
		name: "command_ff_torque", access: accessRead | accessWrite,
		s8: 0.5, s16: 0.01, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.FeedforwardTorque },
		write: func(s *Server, v float32) { s.pending.FeedforwardTorque = v },
	},
	RegCommandKpScale: {
		name: "command_kp_scale", access: accessRead | accessWrite,
		s8: 0.01, s16: 0.001, s32: 0.0001,
		read:  func(s *Server) float32 { return s.pending.KpScale },
		write: func(s *Server, v float32) { s.pending.KpScale = v },
	},
	RegCommandKdScale: {
		name: "command_kd_scale", access: accessRead | accessWrite,
		s8: 0.01, s16: 0.001, s32: 0.0001,
		read:  func(s *Server) float32 { return s.pending.KdScale },
		write: func(s *Server, v float32) { s.pending.KdScale = v },
	},
	RegCommandMaxTorque: {
		name: "command_max_torque", access: accessRead | accessWrite,
		s8: 0.5, s16: 0.01, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.MaxTorque },
		write: func(s *Server, v float32) { s.pending.MaxTorque = v },
	},
	RegCommandStopPosition: {
		name: "command_stop_position", access: accessRead | accessWrite,
		s8: 0.01, s16: 0.0001, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.StopPosition },
		write: func(s *Server, v float32) { s.pending.StopPosition = v },
	},
	RegCommandWatchdog: {
		name: "command_watchdog", access: accessRead | accessWrite,
		s8: 0.1, s16: 0.01, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.WatchdogTimeout },
		write: func(s *Server, v float32) { s.pending.WatchdogTimeout = v },
	},
	RegVelocityLimit: {
		name: "velocity_limit", access: accessRead | accessWrite,
		s8: 0.1, s16: 0.00025, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.VelocityLimit },
		write: func(s *Server, v float32) { s.pending.VelocityLimit = v },
	},
	RegAccelLimit: {
		name: "accel_limit", access: accessRead | accessWrite,
		s8: 0.1, s16: 0.00025, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.AccelLimit },
		write: func(s *Server, v float32) { s.pending.AccelLimit = v },
	},

	RegVFocTheta: {
		name: "vfoc_theta", access: accessRead | accessWrite,
		s8: 0.1, s16: 0.001, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.FocTheta },
		write: func(s *Server, v float32) { s.pending.FocTheta = v },
	},
	RegVFocVoltage: {
		name: "vfoc_voltage", access: accessRead | accessWrite,
		s8: 0.5, s16: 0.1, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.FocVoltage },
		write: func(s *Server, v float32) { s.pending.FocVoltage = v },
	},
	RegVdCommand: {
		name: "vd_command", access: accessRead | accessWrite,
		s8: 0.5, s16: 0.1, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.VdV },
		write: func(s *Server, v float32) { s.pending.VdV = v },
	},
	RegVqCommand: {
		name: "vq_command", access: accessRead | accessWrite,
		s8: 0.5, s16: 0.1, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.VqV },
		write: func(s *Server, v float32) { s.pending.VqV = v },
	},
	RegIdCommand: {
		name: "id_command", access: accessRead | accessWrite,
		s8: 1, s16: 0.1, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.IdA },
		write: func(s *Server, v float32) { s.pending.IdA = v },
	},
	RegIqCommand: {
		name: "iq_command", access: accessRead | accessWrite,
		s8: 1, s16: 0.1, s32: 0.001,
		read:  func(s *Server) float32 { return s.pending.IqA },
		write: func(s *Server, v float32) { s.pending.IqA = v },
	},

	RegStayWithinLo: {
		name: "stay_within_lo", access: accessRead | accessWrite,
		s8: 0.01, s16: 0.0001, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.BoundsMin },
		write: func(s *Server, v float32) { s.pending.BoundsMin = v },
	},
	RegStayWithinHi: {
		name: "stay_within_hi", access: accessRead | accessWrite,
		s8: 0.01, s16: 0.0001, s32: 0.00001,
		read:  func(s *Server) float32 { return s.pending.BoundsMax },
		write: func(s *Server, v float32) { s.pending.BoundsMax = v },
	},
}

// scaleFor returns the integer scale for a wire type.
func (r *register) scaleFor(t int) float32 {
	switch t {
	case 0:
		return r.s8
	case 1:
		return r.s16
	case 2:
		return r.s32
	}
	return 1
}

// encode converts a native value to a wire value of the given type.
func (r *register) encode(t int, v float32) (int32, float32) {
	if t == 3 {
		return 0, v
	}
	scale := r.scaleFor(t)
	if scale == 0 {
		scale = 1
	}
	if foc.IsNaN(v) {
		// NaN maps to the most negative integer of the width.
		switch t {
		case 0:
			return -128, 0
		case 1:
			return -32768, 0
		default:
			return -2147483648, 0
		}
	}
	return int32(v/scale + foc.Copysign(0.5, v)), 0
}

// decode converts a wire value to the native float.
func (r *register) decode(t int, i int32, f float32) float32 {
	if t == 3 {
		return f
	}
	switch {
	case t == 0 && i == -128,
		t == 1 && i == -32768,
		t == 2 && i == -2147483648:
		return foc.NaN()
	}
	return float32(i) * r.scaleFor(t)
}
