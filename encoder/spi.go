package encoder

// AS5047 reads the AMS AS5047 family over SPI. The device replies to a
// dummy word with the current angle; the 14-bit result is left shifted
// so every SPI source reports in the common 16-bit convention.
type AS5047 struct {
	spi SPI
}

func NewAS5047(spi SPI) *AS5047 {
	return &AS5047{spi: spi}
}

// StartSample begins the SPI transaction. Called at ISR entry so the
// transfer overlaps the ADC conversions.
func (a *AS5047) StartSample() {
	a.spi.StartTransfer16(0xffff)
}

// FinishSample collects the transaction and commits the result.
func (a *AS5047) FinishSample(st *Status) {
	v := a.spi.FinishTransfer16() & 0x3fff
	st.Value = uint32(v) << 2
	st.Nonce++
	st.Active = true
}

// Sample is the blocking variant used outside the control loop.
func (a *AS5047) Sample() uint16 {
	return (a.spi.Transfer16(0xffff) & 0x3fff) << 2
}

// Bits reports the aligned sample width.
func (a *AS5047) Bits() int { return 16 }

const (
	ma732ReadReg  = 0x4000
	ma732WriteReg = 0x8000

	ma732RegBCT          = 0x02
	ma732RegFilterWindow = 0x0e

	// The MA732 requires 20ms after a register write before the result
	// is readable.
	ma732WriteSettleUs = 20000
)

// MA732 reads the Monolithic MA732 over SPI. The angle occupies the
// full 16-bit word. Filter window and bias current trim are pushed at
// construction and verified by read-back.
type MA732 struct {
	spi   SPI
	sleep func(us uint32)

	configOK bool
}

// MA732Config holds the configurable registers.
type MA732Config struct {
	// FilterUs selects the internal filter window; the nearest
	// supported value is used.
	FilterUs uint16
	BCT      uint8
}

// ma732FilterCodes maps the filter window register codes to their
// approximate settling time in microseconds.
var ma732FilterCodes = []uint16{64, 128, 256, 512, 1024, 2048, 4096, 8192}

func NewMA732(spi SPI, sleep func(us uint32), cfg MA732Config) *MA732 {
	m := &MA732{spi: spi, sleep: sleep}
	m.configOK = m.setConfig(cfg)
	return m
}

// ConfigOK reports whether the register writes verified.
func (m *MA732) ConfigOK() bool { return m.configOK }

func (m *MA732) setConfig(cfg MA732Config) bool {
	fw := uint8(len(ma732FilterCodes) - 1)
	for i, us := range ma732FilterCodes {
		if cfg.FilterUs <= us {
			fw = uint8(i)
			break
		}
	}
	if !m.setRegister(ma732RegFilterWindow, fw<<5) {
		return false
	}
	return m.setRegister(ma732RegBCT, cfg.BCT)
}

func (m *MA732) setRegister(reg uint8, value uint8) bool {
	current := m.spi.Transfer16(ma732ReadReg | uint16(reg)<<8)
	m.sleep(1)
	if uint8(current>>8) == value {
		return true
	}
	result := m.spi.Transfer16(ma732WriteReg | uint16(reg)<<8 | uint16(value))
	_ = result
	m.sleep(ma732WriteSettleUs)
	verify := m.spi.Transfer16(ma732ReadReg | uint16(reg)<<8)
	m.sleep(1)
	return uint8(verify>>8) == value
}

// StartSample begins the SPI transaction.
func (m *MA732) StartSample() {
	m.spi.StartTransfer16(0x0000)
}

// FinishSample collects the transaction and commits the result.
func (m *MA732) FinishSample(st *Status) {
	st.Value = uint32(m.spi.FinishTransfer16())
	st.Nonce++
	st.Active = true
}

// Sample is the blocking variant.
func (m *MA732) Sample() uint16 {
	return m.spi.Transfer16(0x0000)
}

// Bits reports the sample width.
func (m *MA732) Bits() int { return 16 }
