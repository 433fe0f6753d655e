package server

import (
	"strconv"

	"github.com/google/shlex"

	"goservo/config"
	"goservo/foc"
	"goservo/servo"
)

// CLI implements the text line protocol. Lines arrive as raw bytes
// (from a UART or tunneled through the register protocol), replies end
// with "OK\r\n" or "ERR <msg>\r\n".
type CLI struct {
	s *Server

	line []byte

	persister Persister
}

// Persister stores and recalls the configuration blob entries.
type Persister interface {
	Save(entries []config.Entry) error
	Load() ([]config.Entry, error)
}

func NewCLI(s *Server) *CLI {
	return &CLI{s: s, line: make([]byte, 0, 128)}
}

// SetPersister wires the flash-backed configuration store.
func (c *CLI) SetPersister(p Persister) { c.persister = p }

// Feed accumulates incoming bytes and executes any complete lines.
// The concatenated replies are returned.
func (c *CLI) Feed(data []byte) []byte {
	var out []byte
	for _, b := range data {
		if b == '\n' || b == '\r' {
			if len(c.line) > 0 {
				out = append(out, c.Execute(string(c.line))...)
				c.line = c.line[:0]
			}
			continue
		}
		if len(c.line) < 127 {
			c.line = append(c.line, b)
		}
	}
	return out
}

// Execute runs one command line and returns the reply.
func (c *CLI) Execute(line string) string {
	tokens, err := shlex.Split(line)
	if err != nil {
		return errReply("parse error")
	}
	if len(tokens) == 0 {
		return okReply()
	}

	switch tokens[0] {
	case "d":
		return c.execDrive(tokens[1:])
	case "tel":
		return c.execTel(tokens[1:])
	case "conf":
		return c.execConf(tokens[1:])
	}
	return errReply("unknown command")
}

func okReply() string { return "OK\r\n" }

func errReply(msg string) string { return "ERR " + msg + "\r\n" }

func parseF(tok string) (float32, bool) {
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

// optF parses tokens[i] when present, else returns def.
func optF(tokens []string, i int, def float32) (float32, bool) {
	if i >= len(tokens) {
		return def, true
	}
	return parseF(tokens[i])
}

func (c *CLI) post(cmd servo.CommandData) string {
	c.s.pending = cmd
	c.s.srv.Mailbox.Post(cmd)
	return okReply()
}

func (c *CLI) execDrive(tokens []string) string {
	if len(tokens) == 0 {
		return errReply("missing drive command")
	}
	switch tokens[0] {
	case "stop":
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModeStopped
		return c.post(cmd)

	case "brake":
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModeBrake
		return c.post(cmd)

	case "pos":
		// d pos <pos> <vel> <max_t> [kp_scale] [kd_scale] [ff] [watchdog]
		if len(tokens) < 4 {
			return errReply("usage: d pos <pos> <vel> <max_t> ...")
		}
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModePosition
		var ok [7]bool
		cmd.Position, ok[0] = parseF(tokens[1])
		cmd.Velocity, ok[1] = parseF(tokens[2])
		cmd.MaxTorque, ok[2] = parseF(tokens[3])
		cmd.KpScale, ok[3] = optF(tokens, 4, 1.0)
		cmd.KdScale, ok[4] = optF(tokens, 5, 1.0)
		cmd.FeedforwardTorque, ok[5] = optF(tokens, 6, 0.0)
		cmd.WatchdogTimeout, ok[6] = optF(tokens, 7, foc.NaN())
		for _, o := range ok {
			if !o {
				return errReply("bad number")
			}
		}
		return c.post(cmd)

	case "vel":
		// d vel <vel> <max_t> [ff] [watchdog]
		if len(tokens) < 3 {
			return errReply("usage: d vel <vel> <max_t> ...")
		}
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModePosition
		cmd.Position = foc.NaN()
		var ok [4]bool
		cmd.Velocity, ok[0] = parseF(tokens[1])
		cmd.MaxTorque, ok[1] = parseF(tokens[2])
		cmd.FeedforwardTorque, ok[2] = optF(tokens, 3, 0.0)
		cmd.WatchdogTimeout, ok[3] = optF(tokens, 4, foc.NaN())
		for _, o := range ok {
			if !o {
				return errReply("bad number")
			}
		}
		return c.post(cmd)

	case "rezero":
		pos, ok := optF(tokens, 1, 0.0)
		if !ok {
			return errReply("bad number")
		}
		c.s.srv.Position().SetOutputPosition(float64(pos))
		return okReply()

	case "index":
		c.s.srv.Position().RequireReindex()
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModeHoming
		return c.post(cmd)

	case "cal":
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModeCalibratingEncoder
		return c.post(cmd)

	case "within":
		// d within <lo> <hi> <max_t>
		if len(tokens) < 4 {
			return errReply("usage: d within <lo> <hi> <max_t>")
		}
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModeStayWithin
		var ok [3]bool
		cmd.BoundsMin, ok[0] = parseF(tokens[1])
		cmd.BoundsMax, ok[1] = parseF(tokens[2])
		cmd.MaxTorque, ok[2] = parseF(tokens[3])
		for _, o := range ok {
			if !o {
				return errReply("bad number")
			}
		}
		return c.post(cmd)

	case "zero":
		cmd := servo.DefaultCommand()
		cmd.Mode = servo.ModeZeroVelocity
		return c.post(cmd)
	}
	return errReply("unknown drive command")
}

func (c *CLI) execTel(tokens []string) string {
	if len(tokens) == 0 {
		return errReply("missing tel command")
	}
	switch tokens[0] {
	case "get":
		if len(tokens) < 2 {
			return errReply("usage: tel get <name>")
		}
		for _, reg := range registers {
			if reg.name == tokens[1] && reg.access&accessRead != 0 {
				v := reg.read(c.s)
				return formatFloat(v) + "\r\n" + okReply()
			}
		}
		return errReply("unknown channel")

	case "list":
		names := make([]string, 0, len(registers))
		for _, reg := range registers {
			if reg.access&accessRead != 0 {
				names = append(names, reg.name)
			}
		}
		// Insertion sort keeps the listing stable without pulling in
		// the sort package.
		for i := 1; i < len(names); i++ {
			for j := i; j > 0 && names[j] < names[j-1]; j-- {
				names[j], names[j-1] = names[j-1], names[j]
			}
		}
		out := ""
		for _, n := range names {
			out += n + "\r\n"
		}
		return out + okReply()
	}
	return errReply("unknown tel command")
}

func (c *CLI) execConf(tokens []string) string {
	if len(tokens) == 0 {
		return errReply("missing conf command")
	}
	switch tokens[0] {
	case "get":
		if len(tokens) < 2 {
			return errReply("usage: conf get <name>")
		}
		f, ok := c.s.srv.LookupConfig(tokens[1])
		if !ok {
			return errReply("unknown config")
		}
		return formatFloat(f.Get()) + "\r\n" + okReply()

	case "set":
		if len(tokens) < 3 {
			return errReply("usage: conf set <name> <value>")
		}
		f, ok := c.s.srv.LookupConfig(tokens[1])
		if !ok {
			return errReply("unknown config")
		}
		v, numOK := parseF(tokens[2])
		if !numOK {
			return errReply("bad number")
		}
		f.Set(v)
		return okReply()

	case "write":
		if c.persister == nil {
			return errReply("no storage")
		}
		fields := c.s.srv.ConfigFields()
		entries := make([]config.Entry, 0, len(fields))
		for _, f := range fields {
			entries = append(entries, config.FloatEntry(f.Tag, f.Get()))
		}
		if err := c.persister.Save(entries); err != nil {
			return errReply(err.Error())
		}
		return okReply()

	case "load":
		if c.persister == nil {
			return errReply("no storage")
		}
		entries, err := c.persister.Load()
		if err != nil {
			return errReply(err.Error())
		}
		for _, e := range entries {
			f, ok := c.s.srv.LookupConfigTag(e.Tag)
			if !ok {
				continue
			}
			v, ok := e.Float()
			if !ok {
				continue
			}
			f.Set(v)
		}
		return okReply()
	}
	return errReply("unknown conf command")
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
