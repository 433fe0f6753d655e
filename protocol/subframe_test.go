package protocol

import "testing"

func parseAll(t *testing.T, p []byte) []Subframe {
	t.Helper()
	var out []Subframe
	err := ParsePayload(p, func(sf *Subframe) error {
		cp := *sf
		out = append(out, cp)
		return nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return out
}

func TestWriteSubframeRoundTrip(t *testing.T) {
	var w Writer
	ok := w.Write(TypeF32, 0x20, []Value{
		{Type: TypeF32, F: 1.5},
		{Type: TypeF32, F: -2.25},
	})
	if !ok {
		t.Fatal("write did not fit")
	}

	sfs := parseAll(t, w.Payload())
	if len(sfs) != 1 {
		t.Fatalf("parsed %d subframes", len(sfs))
	}
	sf := sfs[0]
	if sf.Op != OpWriteF32 || sf.Start != 0x20 || sf.Count != 2 {
		t.Errorf("sf = %+v", sf)
	}
	if sf.Values[0].F != 1.5 || sf.Values[1].F != -2.25 {
		t.Errorf("values = %+v", sf.Values)
	}
}

func TestReadSubframeCarriesNoValues(t *testing.T) {
	var w Writer
	w.Read(TypeInt16, 0x10, 3)
	sfs := parseAll(t, w.Payload())
	if len(sfs) != 1 {
		t.Fatalf("parsed %d", len(sfs))
	}
	sf := sfs[0]
	if sf.Op != OpReadInt16 || sf.Count != 3 || sf.Start != 0x10 {
		t.Errorf("sf = %+v", sf)
	}
	if sf.Values != nil {
		t.Error("read subframe should carry no values")
	}
}

func TestLargeCountUsesVaruint(t *testing.T) {
	var w Writer
	values := make([]Value, 8)
	for i := range values {
		values[i] = Value{Type: TypeInt8, I: int32(i)}
	}
	w.Write(TypeInt8, 5, values)
	sfs := parseAll(t, w.Payload())
	if sfs[0].Count != 8 {
		t.Errorf("count = %d", sfs[0].Count)
	}
	for i, v := range sfs[0].Values {
		if v.I != int32(i) {
			t.Errorf("value[%d] = %d", i, v.I)
		}
	}
}

func TestNopAndPadding(t *testing.T) {
	var w Writer
	w.Reply(TypeInt8, 1, []Value{{Type: TypeInt8, I: 42}})
	p := append([]byte{}, w.Payload()...)
	p = append(p, OpNop, OpNop)
	p = PadPayload(p)

	sfs := parseAll(t, p)
	if len(sfs) != 1 {
		t.Fatalf("padding must parse as nops, got %d subframes", len(sfs))
	}
	if sfs[0].Values[0].I != 42 {
		t.Errorf("value = %d", sfs[0].Values[0].I)
	}
}

func TestErrorSubframe(t *testing.T) {
	var w Writer
	w.Error(OpReadError, 0x30, 39)
	sfs := parseAll(t, w.Payload())
	sf := sfs[0]
	if sf.Op != OpReadError || sf.Start != 0x30 || sf.Err != 39 {
		t.Errorf("sf = %+v", sf)
	}
}

func TestStreamSubframe(t *testing.T) {
	var w Writer
	w.Stream(OpStreamClient, 1, []byte("d stop\n"))
	sfs := parseAll(t, w.Payload())
	sf := sfs[0]
	if sf.Op != OpStreamClient || sf.Start != 1 || string(sf.Data) != "d stop\n" {
		t.Errorf("sf = %+v", sf)
	}
}

func TestWriterOverflowTruncates(t *testing.T) {
	var w Writer
	big := make([]Value, 15)
	for i := range big {
		big[i] = Value{Type: TypeF32, F: float32(i)}
	}
	if !w.Reply(TypeF32, 0, big) {
		t.Fatal("first reply should fit")
	}
	if w.Reply(TypeF32, 0x40, big) {
		t.Fatal("second reply cannot fit in 64 bytes")
	}
	if !w.Overflow {
		t.Error("overflow flag not set")
	}
	// The payload still parses cleanly.
	parseAll(t, w.Payload())
}

func TestTruncatedSubframeRejected(t *testing.T) {
	p := []byte{OpWriteInt32 | 1, 0x05, 0x01, 0x02} // missing two bytes
	err := ParsePayload(p, func(sf *Subframe) error { return nil })
	if err != ErrTruncatedSubframe {
		t.Errorf("err = %v", err)
	}
}

func TestUnknownOpcodeRejected(t *testing.T) {
	err := ParsePayload([]byte{0x7a}, func(sf *Subframe) error { return nil })
	if err != ErrUnknownOpcode {
		t.Errorf("err = %v", err)
	}
}

func TestMixedPayloadOrder(t *testing.T) {
	var w Writer
	w.Write(TypeInt8, 0, []Value{{Type: TypeInt8, I: 9}})
	w.Read(TypeF32, 0x10, 1)
	sfs := parseAll(t, w.Payload())
	if len(sfs) != 2 {
		t.Fatalf("parsed %d", len(sfs))
	}
	if sfs[0].Op != OpWriteInt8 || sfs[1].Op != OpReadF32 {
		t.Errorf("order = %v %v", sfs[0].Op, sfs[1].Op)
	}
}
