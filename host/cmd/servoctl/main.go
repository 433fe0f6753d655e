// servoctl talks to a controller over the serial bridge: interactive
// CLI passthrough, scripted command files, and raw register access.
//
// Usage:
//
//	servoctl -device /dev/ttyACM0 [-baud 460800] [-target 1]
//	servoctl -device /dev/ttyACM0 -script bringup.cfg
//	servoctl -device /dev/ttyACM0 -read 0x00d -type f32
//	servoctl -device /dev/ttyACM0 -write 0x025=0.5
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"goservo/host/serial"
	"goservo/protocol"
)

var (
	device  = flag.String("device", "", "serial device")
	baud    = flag.Int("baud", 460800, "baud rate")
	target  = flag.Int("target", 1, "destination bus id")
	source  = flag.Int("source", 0x7f, "our bus id")
	script  = flag.String("script", "", "command file to run before going interactive")
	readReg = flag.String("read", "", "read a register, e.g. -read 0x00d")
	write   = flag.String("write", "", "write a register, e.g. -write 0x025=0.5")
	regType = flag.String("type", "f32", "register wire type: i8, i16, i32, f32")
)

func main() {
	flag.Parse()
	if *device == "" {
		fmt.Fprintln(os.Stderr, "servoctl: -device is required")
		os.Exit(1)
	}

	port, err := serial.Open(&serial.Config{
		Device:      *device,
		Baud:        *baud,
		ReadTimeout: 100,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "servoctl:", err)
		os.Exit(1)
	}
	defer port.Close()

	c := &client{
		port: port,
		src:  uint8(*source),
		dst:  uint8(*target),
	}

	switch {
	case *readReg != "":
		c.doRead(*readReg)
	case *write != "":
		c.doWrite(*write)
	default:
		if *script != "" {
			c.runScript(*script)
		}
		c.interactive()
	}
}

type client struct {
	port serial.Port
	src  uint8
	dst  uint8
}

// sendFrame writes one bridge message and waits briefly for the
// reply payload.
func (c *client) sendFrame(payload []byte) []byte {
	out := protocol.NewScratchOutput()
	tr := protocol.NewTransport(out, nil)
	tr.SendFrame(c.src, c.dst, protocol.FlagFD, payload)
	if _, err := c.port.Write(out.Result()); err != nil {
		fmt.Fprintln(os.Stderr, "servoctl: write:", err)
		return nil
	}
	return c.awaitReply()
}

func (c *client) awaitReply() []byte {
	var reply []byte
	in := protocol.NewFifoBuffer(512)
	parser := protocol.NewTransport(protocol.NewScratchOutput(),
		func(src, dst, flags uint8, payload []byte) []byte {
			if dst == c.src {
				reply = append([]byte{}, payload...)
			}
			return nil
		})

	deadline := time.Now().Add(500 * time.Millisecond)
	buf := make([]byte, 256)
	for reply == nil && time.Now().Before(deadline) {
		n, _ := c.port.Read(buf)
		if n > 0 {
			in.Write(buf[:n])
			parser.Receive(in)
		}
	}
	return reply
}

// cliExchange tunnels one CLI line and prints the replies.
func (c *client) cliExchange(line string) {
	var w protocol.Writer
	w.Stream(protocol.OpStreamClient, 1, []byte(line+"\n"))
	reply := c.sendFrame(w.Payload())
	if reply == nil {
		fmt.Println("ERR timeout")
		return
	}
	protocol.ParsePayload(reply, func(sf *protocol.Subframe) error {
		if sf.Op == protocol.OpStreamServer {
			os.Stdout.Write(sf.Data)
		}
		return nil
	})
}

func (c *client) interactive() {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "exit" || line == "quit" {
			return
		}
		if line != "" {
			c.cliExchange(line)
		}
		fmt.Print("> ")
	}
}

// runScript executes a command file; shlex handles quoting and drops
// comment-only lines.
func (c *client) runScript(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "servoctl:", err)
		os.Exit(1)
	}
	for _, line := range strings.Split(string(data), "\n") {
		tokens, err := shlex.Split(line)
		if err != nil || len(tokens) == 0 {
			continue
		}
		if strings.HasPrefix(tokens[0], "#") {
			continue
		}
		fmt.Println(">", strings.Join(tokens, " "))
		c.cliExchange(strings.Join(tokens, " "))
	}
}

func parseType(s string) (protocol.Type, bool) {
	switch s {
	case "i8":
		return protocol.TypeInt8, true
	case "i16":
		return protocol.TypeInt16, true
	case "i32":
		return protocol.TypeInt32, true
	case "f32":
		return protocol.TypeF32, true
	}
	return 0, false
}

func (c *client) doRead(spec string) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(spec, "0x"), 16, 16)
	if err != nil {
		fmt.Fprintln(os.Stderr, "servoctl: bad register:", spec)
		os.Exit(1)
	}
	t, ok := parseType(*regType)
	if !ok {
		fmt.Fprintln(os.Stderr, "servoctl: bad type:", *regType)
		os.Exit(1)
	}

	var w protocol.Writer
	w.Read(t, uint16(addr), 1)
	reply := c.sendFrame(w.Payload())
	if reply == nil {
		fmt.Fprintln(os.Stderr, "servoctl: timeout")
		os.Exit(1)
	}
	protocol.ParsePayload(reply, func(sf *protocol.Subframe) error {
		switch sf.Op {
		case protocol.OpReplyInt8, protocol.OpReplyInt16, protocol.OpReplyInt32:
			fmt.Println(sf.Values[0].I)
		case protocol.OpReplyF32:
			fmt.Println(sf.Values[0].F)
		case protocol.OpReadError:
			fmt.Fprintf(os.Stderr, "servoctl: read error %d\n", sf.Err)
		}
		return nil
	})
}

func (c *client) doWrite(spec string) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		fmt.Fprintln(os.Stderr, "servoctl: -write wants reg=value")
		os.Exit(1)
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 16)
	if err != nil {
		fmt.Fprintln(os.Stderr, "servoctl: bad register:", parts[0])
		os.Exit(1)
	}
	t, ok := parseType(*regType)
	if !ok {
		fmt.Fprintln(os.Stderr, "servoctl: bad type:", *regType)
		os.Exit(1)
	}

	var v protocol.Value
	v.Type = t
	if t == protocol.TypeF32 {
		f, err := strconv.ParseFloat(parts[1], 32)
		if err != nil {
			fmt.Fprintln(os.Stderr, "servoctl: bad value:", parts[1])
			os.Exit(1)
		}
		v.F = float32(f)
	} else {
		i, err := strconv.ParseInt(parts[1], 0, 32)
		if err != nil {
			fmt.Fprintln(os.Stderr, "servoctl: bad value:", parts[1])
			os.Exit(1)
		}
		v.I = int32(i)
	}

	var w protocol.Writer
	w.Write(t, uint16(addr), []protocol.Value{v})
	w.Read(t, uint16(addr), 1)
	reply := c.sendFrame(w.Payload())
	if reply == nil {
		fmt.Fprintln(os.Stderr, "servoctl: timeout")
		os.Exit(1)
	}
	fmt.Println("ok")
}
