package encoder

// Hall decodes the six valid states of three hall sensors into a
// commutation sector 0..5. States 0 and 7 cannot occur with working
// sensors; they increment the error count and hold the last value.

// hallSector maps the 3-bit hall code to its sector in electrical
// order. -1 marks the two invalid codes.
var hallSector = [8]int8{-1, 0, 2, 1, 4, 5, 3, -1}

type HallConfig struct {
	// Polarity is XORed onto the raw pin states for active-low wiring.
	Polarity uint8
}

type Hall struct {
	cfg  HallConfig
	read func() uint8
}

// NewHall constructs a hall source; read returns the three pin states
// packed into bits 0..2.
func NewHall(cfg HallConfig, read func() uint8) *Hall {
	return &Hall{cfg: cfg, read: read}
}

// ISRUpdate samples the pins and commits a sector. Constant time.
func (h *Hall) ISRUpdate(st *Status) {
	code := (h.read() ^ h.cfg.Polarity) & 0x07
	sector := hallSector[code]
	if sector < 0 {
		st.Errors++
		return
	}
	if st.Active && st.Value == uint32(sector) {
		return
	}
	st.Value = uint32(sector)
	st.Nonce++
	st.Active = true
}

// Bits reports the value range: sectors fit in 3 bits with CPR 6.
func (h *Hall) Bits() int { return 3 }
