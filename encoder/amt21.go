package encoder

// AMT21 polls a CUI AMT21 over RS422. The read command is a single
// address byte; because the transceiver lines are tied together the
// command is echoed back ahead of the two data bytes. The 14-bit value
// is protected by odd/even parity bits in positions 15 and 14.
const amt21ResyncBytes = 3

type AMT21 struct {
	cfg   UartConfig
	uart  Uart
	clock Micros

	queryOutstanding bool
	lastQueryStartUs uint32

	buffer [3 + amt21ResyncBytes]byte
}

func NewAMT21(cfg UartConfig, uart Uart, clock Micros) *AMT21 {
	return &AMT21{cfg: cfg, uart: uart, clock: clock}
}

// Poll advances the transaction state machine. Background context.
func (a *AMT21) Poll(st *Status) {
	nowUs := a.clock.Micros()
	deltaUs := nowUs - a.lastQueryStartUs

	if a.queryOutstanding {
		if deltaUs > 2*a.cfg.PollRateUs {
			a.uart.FinishRead()
			a.queryOutstanding = false
			st.Active = false
		} else {
			a.processQuery(st)
		}
	}

	if a.queryOutstanding {
		return
	}

	if deltaUs < a.cfg.PollRateUs {
		return
	}

	a.lastQueryStartUs = nowUs
	a.queryOutstanding = true
	a.uart.WriteByte(a.cfg.Amt21Address)
	a.uart.StartRead(a.buffer[:])
}

func (a *AMT21) processQuery(st *Status) {
	if a.uart.ReadBytesRemaining() > amt21ResyncBytes {
		return
	}

	if a.uart.ReadBytesRemaining() == 0 {
		// We consumed our resync bytes without finding the echoed
		// command. Just try again.
		a.uart.FinishRead()
		a.queryOutstanding = false
		return
	}

	if a.buffer[0] != a.cfg.Amt21Address {
		// Not what we were expecting. Fill up the buffer until the
		// timeout.
		return
	}

	a.uart.FinishRead()
	a.queryOutstanding = false

	value := uint16(a.buffer[1]) | uint16(a.buffer[2])<<8

	measuredEven := amt21EvenParity(value)
	measuredOdd := amt21OddParity(value)
	receivedOdd := value&0x8000 != 0
	receivedEven := value&0x4000 != 0

	if receivedOdd != measuredOdd || receivedEven != measuredEven {
		st.ChecksumErrors++
		return
	}

	st.Value = uint32(value & 0x3fff)
	st.Nonce++
	st.Active = true
}

// amt21EvenParity computes the parity over the even data bits (0, 2,
// 4, ... 12). The encoder transmits the inverted XOR.
func amt21EvenParity(value uint16) bool {
	p := uint16(1) ^
		(value & 0x01) ^
		((value >> 2) & 0x01) ^
		((value >> 4) & 0x01) ^
		((value >> 6) & 0x01) ^
		((value >> 8) & 0x01) ^
		((value >> 10) & 0x01) ^
		((value >> 12) & 0x01)
	return p != 0
}

func amt21OddParity(value uint16) bool {
	return amt21EvenParity(value >> 1)
}

// Bits reports the sample width.
func (a *AMT21) Bits() int { return 14 }
