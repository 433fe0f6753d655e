package protocol

import "testing"

func TestCANIDRoundTrip(t *testing.T) {
	id := CANID(0x0001, 0x02, 0x7f)
	if id != 0x0001027f {
		t.Fatalf("id = %#x", id)
	}
	prefix, src, dst := ParseCANID(id)
	if prefix != 1 || src != 2 || dst != 0x7f {
		t.Errorf("parsed %v %v %v", prefix, src, dst)
	}
}

func TestDLCRounding(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0}, {1, 1}, {8, 8}, {9, 12}, {12, 12}, {13, 16},
		{17, 20}, {21, 24}, {25, 32}, {33, 48}, {49, 64}, {64, 64},
	}
	for _, c := range cases {
		if got := RoundSizeUp(c.in); got != c.want {
			t.Errorf("RoundSizeUp(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDLCCodes(t *testing.T) {
	for code := uint8(0); code < 16; code++ {
		size := SizeForDLC(code)
		if got := DLCForSize(size); got != code {
			t.Errorf("DLCForSize(%d) = %d, want %d", size, got, code)
		}
	}
}

func TestPadPayload(t *testing.T) {
	p := make([]byte, 0, FrameMax)
	p = append(p, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	p = PadPayload(p)
	if len(p) != 12 {
		t.Fatalf("padded length = %d, want 12", len(p))
	}
	for _, b := range p[9:] {
		if b != PadByte {
			t.Errorf("pad byte = %#x, want %#x", b, PadByte)
		}
	}
}

func TestVaruintRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0xffffffff} {
		b := AppendVaruint(nil, v)
		if len(b) != VaruintLen(v) {
			t.Errorf("VaruintLen(%d) = %d, encoded %d", v, VaruintLen(v), len(b))
		}
		got, err := DecodeVaruint(&b)
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
		if len(b) != 0 {
			t.Errorf("decode left %d bytes", len(b))
		}
	}
}

func TestVaruintTruncated(t *testing.T) {
	b := []byte{0x80}
	if _, err := DecodeVaruint(&b); err != ErrBufferTooSmall {
		t.Errorf("err = %v", err)
	}
}
