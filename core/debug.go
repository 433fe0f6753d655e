package core

// DebugWriter is the platform supplied sink for debug text.
type DebugWriter func(string)

// ControlEvent captures a control-loop incident for post-mortem
// analysis. The ring is written from the ISR side without blocking and
// dumped from the background after a fault.
type ControlEvent struct {
	EventType uint8
	Mode      uint8
	Cycle     uint32
	Value1    uint32
	Value2    uint32
}

// Event type codes.
const (
	EvtFaultLatched = 1
	EvtModeChange   = 2
	EvtLoopOverrun  = 3
	EvtWatchdog     = 4
	EvtCommand      = 5
)

const EventRingSize = 32

var (
	debugPrintln DebugWriter = func(s string) {}

	// Disabled by default; debug output on the CLI UART would eat
	// into the background budget.
	debugEnabled bool

	eventRing     [EventRingSize]ControlEvent
	eventRingHead uint8

	debugChan chan string
)

// SetDebugWriter installs the platform output (UART, USB CDC, or a
// test buffer).
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled toggles debug output.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled reports the toggle.
func IsDebugEnabled() bool { return debugEnabled }

// InitAsyncDebug starts the drain goroutine for non-blocking debug
// output from the background loop.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go func() {
		for msg := range debugChan {
			if debugPrintln != nil {
				debugPrintln(msg)
			}
		}
	}()
}

// DebugPrintln writes synchronously when enabled.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a message, dropping it when the channel is full.
func DebugAsync(msg string) {
	if debugChan == nil {
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent captures a control event. Safe from the ISR: fixed cost,
// no allocation.
func RecordEvent(eventType, mode uint8, cycle, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = ControlEvent{
		EventType: eventType,
		Mode:      mode,
		Cycle:     cycle,
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// DumpEventRing prints the ring oldest first. Call from the
// background after a fault, never from the ISR.
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[EVENTS] === control event dump ===")
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		idx := (start + i) % EventRingSize
		evt := &eventRing[idx]
		if evt.EventType == 0 {
			continue
		}
		var name string
		switch evt.EventType {
		case EvtFaultLatched:
			name = "FAULT"
		case EvtModeChange:
			name = "MODE"
		case EvtLoopOverrun:
			name = "OVERRUN"
		case EvtWatchdog:
			name = "WATCHDOG"
		case EvtCommand:
			name = "COMMAND"
		default:
			name = "UNKNOWN"
		}
		debugPrintln("[EVENTS] " + name +
			" mode=" + itoa(int(evt.Mode)) +
			" cycle=" + utoa(evt.Cycle) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === end dump ===")
}

// ClearEventRing wipes the ring.
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = ControlEvent{}
	}
	eventRingHead = 0
}
