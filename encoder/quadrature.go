package encoder

// quadDelta is the software quadrature update table, keyed on
// (previous state << 2 | new state) where a state is A<<1|B. Entries
// are the count delta; quadError marks an illegal double transition.
const quadError = 2

var quadDelta = [16]int8{
	0, +1, -1, quadError,
	-1, 0, quadError, +1,
	+1, quadError, 0, -1,
	quadError, -1, +1, 0,
}

// Quadrature counts an incremental AB input. In software mode the pins
// are sampled every poll and walked through the update table; in
// hardware mode a timer or PIO counter is read and the 16-bit delta is
// accumulated modulo CPR.
type Quadrature struct {
	cpr uint32

	// Software mode.
	readA PinReader
	readB PinReader
	state uint8

	// Hardware mode.
	counter   Counter
	lastCount uint16

	count uint32
}

// NewQuadratureSW builds a pin-sampling decoder.
func NewQuadratureSW(cpr uint32, readA, readB PinReader) *Quadrature {
	return &Quadrature{cpr: cpr, readA: readA, readB: readB}
}

// NewQuadratureHW builds a decoder over a hardware counter.
func NewQuadratureHW(cpr uint32, counter Counter) *Quadrature {
	return &Quadrature{cpr: cpr, counter: counter}
}

// ISRUpdate advances the count. Constant time in both modes.
func (q *Quadrature) ISRUpdate(st *Status) {
	if q.counter != nil {
		now := q.counter.Count()
		delta := int16(now - q.lastCount)
		q.lastCount = now
		if delta != 0 {
			q.apply(int32(delta), st)
		}
		st.Active = true
		return
	}

	var newState uint8
	if q.readA() {
		newState |= 2
	}
	if q.readB() {
		newState |= 1
	}
	delta := quadDelta[q.state<<2|newState]
	q.state = newState
	switch delta {
	case 0:
		st.Active = true
	case quadError:
		st.Errors++
	default:
		q.apply(int32(delta), st)
		st.Active = true
	}
}

func (q *Quadrature) apply(delta int32, st *Status) {
	c := int32(q.count) + delta
	m := int32(q.cpr)
	c %= m
	if c < 0 {
		c += m
	}
	q.count = uint32(c)
	st.Value = q.count
	st.Nonce++
}

// Bits reports the smallest width that holds CPR.
func (q *Quadrature) Bits() int {
	bits := 0
	for v := q.cpr - 1; v != 0; v >>= 1 {
		bits++
	}
	return bits
}
