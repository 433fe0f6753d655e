package server

import (
	"goservo/protocol"
	"goservo/servo"
)

// Server is the background-context front end: it parses frames, keeps
// the staged command, and builds replies. One instance per bus
// identity.
type Server struct {
	srv *servo.Servo

	// pending is the staged command; writes accumulate here and the
	// whole thing is posted through the mailbox at the end of any frame
	// that wrote a command register.
	pending servo.CommandData

	// snapshot is the double buffered telemetry copy refreshed from
	// the ring each background poll.
	snapshot servo.Status

	// commandDirty marks that this frame wrote at least one command
	// register; the staged command commits once at frame end, after
	// all writes and before the reply goes out.
	commandDirty bool

	cli *CLI
}

// New builds a server bound to a servo.
func New(srv *servo.Servo) *Server {
	s := &Server{
		srv:     srv,
		pending: servo.DefaultCommand(),
	}
	s.cli = NewCLI(s)
	return s
}

// CLI returns the text command processor sharing this server's state.
func (s *Server) CLI() *CLI { return s.cli }

// Poll refreshes the telemetry snapshot. Call from the background
// loop; frames processed afterwards observe a coherent cycle.
func (s *Server) Poll() {
	if c, ok := s.srv.Ring.Latest(); ok {
		s.snapshot = c.Status
	}
}

// commandMode stages a mode; the commit happens with the rest of the
// frame's writes.
func (s *Server) commandMode(m servo.Mode) {
	s.pending.Mode = m
}

// ProcessFrame handles one received frame payload and returns the
// reply payload, already padded to a valid DLC. A nil return means no
// reply subframes were produced.
//
// Writes are applied atomically in frame order before any reply is
// emitted, so a read anywhere in the frame observes every write the
// same frame carried.
func (s *Server) ProcessFrame(payload []byte) []byte {
	var w protocol.Writer

	// First pass: collect the subframes. The parsed slices reference
	// payload, which outlives both passes.
	var sfs [protocol.FrameMax]protocol.Subframe
	n := 0
	_ = protocol.ParsePayload(payload, func(sf *protocol.Subframe) error {
		if n < len(sfs) {
			sfs[n] = *sf
			n++
		}
		return nil
	})

	// Second pass: every write, in frame order.
	for i := 0; i < n; i++ {
		switch sfs[i].Op {
		case protocol.OpWriteInt8, protocol.OpWriteInt16,
			protocol.OpWriteInt32, protocol.OpWriteF32:
			s.applyWrite(&sfs[i], &w)
		}
	}

	// Third pass: replies, in frame order.
	for i := 0; i < n; i++ {
		switch sfs[i].Op {
		case protocol.OpReadInt8, protocol.OpReadInt16,
			protocol.OpReadInt32, protocol.OpReadF32:
			s.applyRead(&sfs[i], &w)

		case protocol.OpStreamClient:
			s.applyStream(&sfs[i], &w)
		}
	}

	if s.commandDirty {
		s.commandDirty = false
		s.srv.Mailbox.Post(s.pending)
	}

	if w.Overflow {
		w.Error(protocol.OpReadError, 0, errReplyOverflow)
	}
	if w.Len() == 0 {
		return nil
	}
	out := make([]byte, 0, protocol.FrameMax)
	out = append(out, w.Payload()...)
	return protocol.PadPayload(out)
}

func (s *Server) applyWrite(sf *protocol.Subframe, w *protocol.Writer) {
	t := int(sf.Type)
	for i := 0; i < sf.Count && i < len(sf.Values); i++ {
		addr := sf.Start + uint16(i)
		reg, ok := registers[addr]
		if !ok {
			w.Error(protocol.OpWriteError, addr, errUnknownRegister)
			return
		}
		if reg.access&accessWrite == 0 {
			w.Error(protocol.OpWriteError, addr, errReadOnly)
			return
		}
		v := sf.Values[i]
		reg.write(s, reg.decode(t, v.I, v.F))
		s.commandDirty = true
	}
}

func (s *Server) applyRead(sf *protocol.Subframe, w *protocol.Writer) {
	t := int(sf.Type)
	values := make([]protocol.Value, 0, sf.Count)
	for i := 0; i < sf.Count; i++ {
		addr := sf.Start + uint16(i)
		reg, ok := registers[addr]
		if !ok || reg.access&accessRead == 0 {
			w.Error(protocol.OpReadError, addr, errUnknownRegister)
			return
		}
		native := reg.read(s)
		iv, fv := reg.encode(t, native)
		values = append(values, protocol.Value{Type: sf.Type, I: iv, F: fv})
	}
	w.Reply(sf.Type, sf.Start, values)
}

// applyStream tunnels CLI traffic through the register protocol.
func (s *Server) applyStream(sf *protocol.Subframe, w *protocol.Writer) {
	reply := s.cli.Feed(sf.Data)
	if len(reply) > 0 {
		w.Stream(protocol.OpStreamServer, sf.Start, reply)
	}
}
