package servo

import "goservo/encoder"

// Samples are the injected conversion results for one control cycle.
// Three phase currents come from three ADCs converting in parallel;
// the bus voltage and temperatures from a second chain.
type Samples struct {
	Current [3]uint16
	VSense  uint16
	TSense  uint16
	MSense  uint16
}

// ADC exposes the injected conversion results latched by the PWM
// trigger.
type ADC interface {
	Latest() Samples
}

// PWM drives the three phase inverter timer.
type PWM interface {
	// WriteDuties loads the compare registers; values are fractions of
	// the PWM period and take effect at the next reload point.
	WriteDuties(a, b, c float32)
	// Enable turns the outputs on or forces them low.
	Enable(on bool)
	// Brake shorts the three low sides.
	Brake()
}

// Driver is the gate pre-driver (DRV8323 class).
type Driver interface {
	Enable(on bool)
	Enabled() bool
	// Faulted reads the nFAULT pin.
	Faulted() bool
}

// OnboardEncoder is sampled inside the ISR with a split transaction:
// started at ISR entry so the SPI transfer overlaps the ADC readout.
type OnboardEncoder interface {
	StartSample()
	FinishSample(st *encoder.Status)
}

// ISRSource is any source cheap enough to sample synchronously (hall,
// quadrature, index, sin/cos).
type ISRSource interface {
	ISRUpdate(st *encoder.Status)
}

// SourceBinding connects one configured position source to its data
// path. Exactly one field is set.
type SourceBinding struct {
	// Onboard is sampled with a split SPI transaction in the ISR.
	Onboard OnboardEncoder
	// ISR is sampled synchronously in the ISR.
	ISR ISRSource
	// Slot receives background-polled sources (UART, I2C, external
	// SPI) through the single-writer publication cell.
	Slot *encoder.Slot
}

// Hardware is the bag of peripheral interfaces handed to the servo at
// construction. There are no package level singletons; everything the
// control loop touches arrives here.
type Hardware struct {
	PWM    PWM
	Driver Driver
	ADC    ADC
	Clock  encoder.Micros

	Sources [3]SourceBinding
}
