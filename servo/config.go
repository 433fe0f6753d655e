package servo

// ConfigField exposes one tunable for the CLI and the persisted
// configuration blob. Tags share the register address namespace so
// the flash TLV stream is a superset of the register file.
type ConfigField struct {
	Tag  uint16
	Name string
	Get  func() float32
	Set  func(float32)
}

// Config tags start above the command registers.
const (
	TagConfigBase = 0x100
)

// ConfigFields enumerates the supported tunables. Every Set marks the
// configuration changed, which faults a running servo.
func (s *Servo) ConfigFields() []ConfigField {
	field := func(tag uint16, name string, p *float32) ConfigField {
		return ConfigField{
			Tag:  tag,
			Name: name,
			Get:  func() float32 { return *p },
			Set: func(v float32) {
				*p = v
				s.MarkConfigChanged()
			},
		}
	}
	return []ConfigField{
		field(TagConfigBase+0, "servo.pid.kp", &s.cfg.Pid.Kp),
		field(TagConfigBase+1, "servo.pid.ki", &s.cfg.Pid.Ki),
		field(TagConfigBase+2, "servo.pid.kd", &s.cfg.Pid.Kd),
		field(TagConfigBase+3, "servo.pid.ilimit", &s.cfg.Pid.ILimit),
		field(TagConfigBase+4, "servo.current.kp", &s.cfg.CurrentKp),
		field(TagConfigBase+5, "servo.current.ki", &s.cfg.CurrentKi),
		field(TagConfigBase+6, "servo.max_current_a", &s.cfg.MaxCurrentA),
		field(TagConfigBase+7, "servo.max_power_w", &s.cfg.MaxPowerW),
		field(TagConfigBase+8, "servo.under_voltage", &s.cfg.UnderVoltage),
		field(TagConfigBase+9, "servo.over_voltage", &s.cfg.OverVoltage),
		field(TagConfigBase+10, "servo.fet_temp_limit", &s.cfg.FETTempLimit),
		field(TagConfigBase+11, "servo.motor_temp_limit", &s.cfg.MotorTempLimit),
		field(TagConfigBase+12, "servo.position_min", &s.cfg.PositionMin),
		field(TagConfigBase+13, "servo.position_max", &s.cfg.PositionMax),
		field(TagConfigBase+14, "servo.max_velocity", &s.cfg.MaxVelocity),
		field(TagConfigBase+15, "servo.start_position_limit", &s.cfg.StartPositionLimit),
		field(TagConfigBase+16, "servo.default_timeout_s", &s.cfg.DefaultTimeoutS),
		field(TagConfigBase+17, "motor.torque_constant", &s.motor.TorqueConstant),
		field(TagConfigBase+18, "motor.resistance_ohm", &s.motor.ResistanceOhm),
		field(TagConfigBase+19, "motor.inductance_h", &s.motor.InductanceH),
		field(TagConfigBase+20, "motor.current_cutoff_a", &s.motor.CurrentCutoffA),
	}
}

// LookupConfig finds a field by CLI name.
func (s *Servo) LookupConfig(name string) (ConfigField, bool) {
	for _, f := range s.ConfigFields() {
		if f.Name == name {
			return f, true
		}
	}
	return ConfigField{}, false
}

// LookupConfigTag finds a field by persisted tag.
func (s *Servo) LookupConfigTag(tag uint16) (ConfigField, bool) {
	for _, f := range s.ConfigFields() {
		if f.Tag == tag {
			return f, true
		}
	}
	return ConfigField{}, false
}
