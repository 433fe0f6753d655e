package encoder

// Aksim2 polls an RLS AkSIM-2 over RS422. The "detailed" reply carries
// a 'd' header byte, three bytes of position and two bytes of status.
// Three extra buffer bytes allow resynchronization when framing is
// lost.
const aksim2ResyncBytes = 3

type Aksim2 struct {
	cfg   UartConfig
	uart  Uart
	clock Micros

	queryOutstanding bool
	lastQueryStartUs uint32

	buffer [6 + aksim2ResyncBytes]byte
}

func NewAksim2(cfg UartConfig, uart Uart, clock Micros) *Aksim2 {
	return &Aksim2{cfg: cfg, uart: uart, clock: clock}
}

// Poll advances the transaction state machine. Background context; it
// never blocks on the wire.
func (a *Aksim2) Poll(st *Status) {
	nowUs := a.clock.Micros()
	deltaUs := nowUs - a.lastQueryStartUs

	if a.queryOutstanding {
		if deltaUs > 2*a.cfg.PollRateUs {
			// We timed out.
			a.uart.FinishRead()
			a.queryOutstanding = false
			st.Active = false
		} else {
			a.processQuery(st)
		}
	}

	// We did not complete the query, so just return.
	if a.queryOutstanding {
		return
	}

	if deltaUs < a.cfg.PollRateUs {
		return
	}

	a.lastQueryStartUs = nowUs
	a.queryOutstanding = true
	a.uart.WriteByte('d')
	a.uart.StartRead(a.buffer[:])
}

func (a *Aksim2) processQuery(st *Status) {
	if a.uart.ReadBytesRemaining() > aksim2ResyncBytes {
		return
	}

	if a.uart.ReadBytesRemaining() == 0 {
		// We used up our resync bytes without success. Just try again.
		a.uart.FinishRead()
		a.queryOutstanding = false
		return
	}

	if a.buffer[0] != 'd' {
		// Not what we are expecting. Fill up the buffer until the
		// timeout.
		return
	}

	a.uart.FinishRead()
	a.queryOutstanding = false

	st.Value = (uint32(a.buffer[1])<<16 |
		uint32(a.buffer[2])<<8 |
		uint32(a.buffer[3])) >> 2
	st.Aksim2Err = a.buffer[3]&0x01 != 0
	st.Aksim2Warn = a.buffer[3]&0x02 != 0
	st.Aksim2Status = uint16(a.buffer[4])<<8 | uint16(a.buffer[5])

	st.Nonce++
	st.Active = true
}

// Bits reports the position width after the status bits are shifted
// out.
func (a *Aksim2) Bits() int { return 22 }
