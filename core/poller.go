package core

// Poller is one background task: encoder bus pollers, the frame
// server, the telemetry publisher. Poll is called every iteration of
// the background loop and must not block.
type Poller interface {
	Poll()
}

// PollerFunc adapts a bare function.
type PollerFunc func()

func (f PollerFunc) Poll() { f() }

// Background owns the cooperative main loop. The PWM interrupt
// preempts it unconditionally; everything registered here exchanges
// state with the interrupt only through publication slots and rings.
type Background struct {
	pollers []Poller

	millis      func() uint32
	lastTick    uint32
	tickHandler func()
}

// NewBackground builds a loop around a millisecond clock.
func NewBackground(millis func() uint32) *Background {
	// lastTick starts out of band so the first iteration runs the
	// millisecond handler immediately.
	return &Background{millis: millis, lastTick: ^uint32(0)}
}

// Register appends a poller. Call during boot, before Run.
func (b *Background) Register(p Poller) {
	b.pollers = append(b.pollers, p)
}

// RegisterFunc appends a bare function poller.
func (b *Background) RegisterFunc(f func()) {
	b.Register(PollerFunc(f))
}

// SetMillisecondHandler installs the 1 ms cadence task.
func (b *Background) SetMillisecondHandler(f func()) {
	b.tickHandler = f
}

// PollOnce runs one iteration: every poller, the timer list, and the
// millisecond handler when its cadence has elapsed.
func (b *Background) PollOnce() {
	for _, p := range b.pollers {
		p.Poll()
	}

	now := b.millis()
	TimerDispatch(now)
	if now != b.lastTick {
		b.lastTick = now
		if b.tickHandler != nil {
			b.tickHandler()
		}
	}
}

// Run loops forever. Targets call this as the tail of main.
func (b *Background) Run() {
	for {
		b.PollOnce()
	}
}
