package encoder

// Shared test fakes for the peripheral interfaces.

type fakeClock struct {
	us uint32
}

func (c *fakeClock) Micros() uint32 { return c.us }

func (c *fakeClock) advance(us uint32) { c.us += us }

// fakeSPI replies with scripted words and records what was sent.
type fakeSPI struct {
	replies []uint16
	sent    []uint16
	started bool
}

func (s *fakeSPI) next() uint16 {
	if len(s.replies) == 0 {
		return 0
	}
	v := s.replies[0]
	s.replies = s.replies[1:]
	return v
}

func (s *fakeSPI) StartTransfer16(tx uint16) {
	s.sent = append(s.sent, tx)
	s.started = true
}

func (s *fakeSPI) FinishTransfer16() uint16 {
	s.started = false
	return s.next()
}

func (s *fakeSPI) Transfer16(tx uint16) uint16 {
	s.sent = append(s.sent, tx)
	return s.next()
}

// fakeUart models the DMA read interface: the test queues reply bytes
// and Poll sees them arrive into the armed buffer.
type fakeUart struct {
	written []byte

	armed     []byte
	delivered int
	inbox     []byte
	finishes  int
}

func (u *fakeUart) WriteByte(b byte) { u.written = append(u.written, b) }

func (u *fakeUart) StartRead(buf []byte) {
	u.armed = buf
	u.delivered = 0
	u.deliver()
}

func (u *fakeUart) ReadBytesRemaining() int {
	u.deliver()
	return len(u.armed) - u.delivered
}

func (u *fakeUart) FinishRead() {
	u.armed = nil
	u.finishes++
}

// queue adds bytes; they land in the armed buffer at once, or on the
// next StartRead if no read is armed.
func (u *fakeUart) queue(b ...byte) {
	u.inbox = append(u.inbox, b...)
	u.deliver()
}

func (u *fakeUart) deliver() {
	if u.armed == nil {
		return
	}
	for len(u.inbox) > 0 && u.delivered < len(u.armed) {
		u.armed[u.delivered] = u.inbox[0]
		u.inbox = u.inbox[1:]
		u.delivered++
	}
}

// fakeI2C replies with scripted register data or a scripted error.
type fakeI2C struct {
	data map[byte][2]byte
	err  error
	txs  int
}

func (b *fakeI2C) Tx(addr uint16, w, r []byte) error {
	b.txs++
	if b.err != nil {
		return b.err
	}
	if len(w) == 1 {
		d := b.data[w[0]]
		copy(r, d[:])
	}
	return nil
}
