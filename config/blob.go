// Package config implements the persisted configuration blob and the
// firmware identity record. The blob is a CRC protected TLV stream
// whose tag namespace matches the register addresses, so everything
// the register file can name is also persistable.
package config

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
)

const (
	// Magic marks a formatted blob.
	Magic = 0x53455256

	// SchemaVersion increments on incompatible layout changes.
	SchemaVersion = 1

	headerSize = 12 // magic, schema, crc
	entrySize  = 4  // tag u16, length u16
)

var (
	ErrBadMagic  = errors.New("config: bad magic")
	ErrBadSchema = errors.New("config: unsupported schema")
	ErrBadCRC    = errors.New("config: crc mismatch")
	ErrTruncated = errors.New("config: truncated blob")
)

// Entry is one TLV element.
type Entry struct {
	Tag  uint16
	Data []byte
}

// FloatEntry packs a float32 value.
func FloatEntry(tag uint16, v float32) Entry {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return Entry{Tag: tag, Data: b[:]}
}

// Float unpacks a float32 value.
func (e Entry) Float() (float32, bool) {
	if len(e.Data) != 4 {
		return 0, false
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(e.Data)), true
}

// U32Entry packs a uint32 value.
func U32Entry(tag uint16, v uint32) Entry {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return Entry{Tag: tag, Data: b[:]}
}

// U32 unpacks a uint32 value.
func (e Entry) U32() (uint32, bool) {
	if len(e.Data) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(e.Data), true
}

// Encode serializes entries into a blob: {magic, schema, crc, TLVs}.
// The CRC covers the TLV body.
func Encode(entries []Entry) []byte {
	body := make([]byte, 0, 64)
	for _, e := range entries {
		var hdr [entrySize]byte
		binary.LittleEndian.PutUint16(hdr[0:], e.Tag)
		binary.LittleEndian.PutUint16(hdr[2:], uint16(len(e.Data)))
		body = append(body, hdr[:]...)
		body = append(body, e.Data...)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	binary.LittleEndian.PutUint32(out[0:], Magic)
	binary.LittleEndian.PutUint32(out[4:], SchemaVersion)
	binary.LittleEndian.PutUint32(out[8:], crc32.ChecksumIEEE(body))
	return append(out, body...)
}

// Decode validates and parses a blob.
func Decode(blob []byte) ([]Entry, error) {
	if len(blob) < headerSize {
		return nil, ErrTruncated
	}
	if binary.LittleEndian.Uint32(blob[0:]) != Magic {
		return nil, ErrBadMagic
	}
	if binary.LittleEndian.Uint32(blob[4:]) != SchemaVersion {
		return nil, ErrBadSchema
	}
	wantCRC := binary.LittleEndian.Uint32(blob[8:])

	body := blob[headerSize:]
	// The flash region is read back whole; anything after the encoded
	// body is erased flash. Walk the TLVs to find the true end.
	var entries []Entry
	used := 0
	for used+entrySize <= len(body) {
		tag := binary.LittleEndian.Uint16(body[used:])
		length := int(binary.LittleEndian.Uint16(body[used+2:]))
		if tag == 0xffff {
			// Erased flash: end of stream.
			break
		}
		if used+entrySize+length > len(body) {
			return nil, ErrTruncated
		}
		data := make([]byte, length)
		copy(data, body[used+entrySize:used+entrySize+length])
		entries = append(entries, Entry{Tag: tag, Data: data})
		used += entrySize + length
	}

	if crc32.ChecksumIEEE(body[:used]) != wantCRC {
		return nil, ErrBadCRC
	}
	return entries, nil
}
