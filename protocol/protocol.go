// Package protocol implements the register protocol wire format: the
// CAN identifier layout, DLC quantization, the subframe codec carried
// in every frame payload, and the byte-stream transport used when
// frames ride a serial link instead of the CAN bus.
package protocol

// Frame limits. A control frame maps to a single CAN FD frame, so the
// payload never exceeds 64 bytes.
const (
	FrameMax = 64

	// PadByte fills a payload out to the next valid DLC. It decodes
	// as a nop subframe, so padding never confuses a parser.
	PadByte = 0x50
)

// Frame flags.
const (
	FlagBitrateSwitch = 1 << 0
	FlagFD            = 1 << 1
)
