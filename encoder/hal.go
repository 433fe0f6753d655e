package encoder

// The interfaces here are what the sources require from the peripheral
// drivers. Target code implements them against the real hardware; the
// tests implement them with fakes.

// SPI is a 16-bit-word SPI channel with a split transfer so the ISR can
// start a sample early and collect it after the ADC readout.
type SPI interface {
	// StartTransfer16 begins a 16-bit transfer without waiting.
	StartTransfer16(tx uint16)
	// FinishTransfer16 blocks until the started transfer completes and
	// returns the received word.
	FinishTransfer16() uint16
	// Transfer16 is the blocking combination, used at init time.
	Transfer16(tx uint16) uint16
}

// Uart is the DMA-backed byte stream used by the RS422 encoders. Reads
// are started into a caller-owned buffer and drained as bytes arrive.
type Uart interface {
	WriteByte(b byte)
	// StartRead arms a DMA read into buf.
	StartRead(buf []byte)
	// ReadBytesRemaining reports how many bytes of the armed read have
	// not arrived yet.
	ReadBytesRemaining() int
	// FinishRead tears down the armed read.
	FinishRead()
}

// I2C matches the transfer shape of a machine.I2C: write w, then read
// len(r) bytes, in one transaction.
type I2C interface {
	Tx(addr uint16, w, r []byte) error
}

// Micros is a monotonically wrapping microsecond clock.
type Micros interface {
	Micros() uint32
}

// Counter is a hardware quadrature counter, typically a timer in
// encoder mode or a PIO state machine.
type Counter interface {
	Count() uint16
}

// PinReader samples a digital input.
type PinReader func() bool
