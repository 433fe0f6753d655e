package protocol

// The serial bridge carries the same frames as the CAN bus over a
// byte stream. Each message is:
//
//	[length][source][dest][flags][payload...][crc hi][crc lo][sync]
//
// length counts the whole message. The CRC covers everything before
// the trailer. The trailing sync byte bounds resynchronization after
// line noise: a parser that loses framing scans forward to the next
// sync byte and tries again.
const (
	bridgeHeaderSize  = 4
	bridgeTrailerSize = 3
	BridgeLengthMin   = bridgeHeaderSize + bridgeTrailerSize
	BridgeLengthMax   = BridgeLengthMin + FrameMax

	BridgeSync = 0x7e
)

// FrameHandler processes one received frame. A non-nil reply is sent
// back with source and destination swapped.
type FrameHandler func(source, dest, flags uint8, payload []byte) []byte

// Transport parses bridge messages from an input stream and emits
// frames on an output buffer.
type Transport struct {
	synchronized bool
	output       OutputBuffer
	handler      FrameHandler
}

func NewTransport(output OutputBuffer, handler FrameHandler) *Transport {
	return &Transport{
		synchronized: true,
		output:       output,
		handler:      handler,
	}
}

// Receive consumes whatever complete messages the input holds.
// Partial messages stay buffered for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synchronized {
			syncPos := -1
			for i, b := range data {
				if b == BridgeSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			t.synchronized = true
			continue
		}

		// Skip idle sync bytes between messages.
		if data[0] == BridgeSync {
			data = data[1:]
			continue
		}

		if len(data) < BridgeLengthMin {
			break
		}

		msgLen := int(data[0])
		if msgLen < BridgeLengthMin || msgLen > BridgeLengthMax {
			t.synchronized = false
			continue
		}

		if len(data) < msgLen {
			break
		}

		if data[msgLen-1] != BridgeSync {
			t.synchronized = false
			continue
		}

		wireCRC := uint16(data[msgLen-3])<<8 | uint16(data[msgLen-2])
		if CRC16(data[:msgLen-bridgeTrailerSize]) != wireCRC {
			t.synchronized = false
			continue
		}

		source := data[1]
		dest := data[2]
		flags := data[3]
		payload := data[bridgeHeaderSize : msgLen-bridgeTrailerSize]
		data = data[msgLen:]

		if t.handler != nil {
			if reply := t.handler(source, dest, flags, payload); reply != nil {
				t.SendFrame(dest, source, flags, reply)
			}
		}
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// SendFrame emits one bridge message.
func (t *Transport) SendFrame(source, dest, flags uint8, payload []byte) {
	if len(payload) > FrameMax {
		payload = payload[:FrameMax]
	}
	cursor := t.output.CurPosition()

	t.output.Output([]byte{0, source, dest, flags})
	t.output.Output(payload)

	body := t.output.DataSince(cursor)
	total := len(body) + bridgeTrailerSize
	t.output.Update(cursor, byte(total))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{
		byte(crc >> 8),
		byte(crc & 0xff),
		BridgeSync,
	})
}
