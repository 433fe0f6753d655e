package config

import "encoding/hex"

// FirmwareVersion is the wire-visible ABI identifier, independent of
// any human readable release number. It only changes when the register
// or persisted layouts change.
const FirmwareVersion uint32 = 0x00010100

// UIDReader returns the 96 bit unique device identifier from the
// vendor defined address.
type UIDReader func() [12]byte

// FirmwareInfo is the structured identity record reported to hosts.
type FirmwareInfo struct {
	Version  uint32
	Family   uint8
	HwRev    uint8
	UniqueID [12]byte
}

// NewFirmwareInfo assembles the record at boot.
func NewFirmwareInfo(family, hwRev uint8, uid UIDReader) FirmwareInfo {
	info := FirmwareInfo{
		Version: FirmwareVersion,
		Family:  family,
		HwRev:   hwRev,
	}
	if uid != nil {
		info.UniqueID = uid()
	}
	return info
}

// UniqueIDString formats the device id as grouped hex.
func (f FirmwareInfo) UniqueIDString() string {
	s := hex.EncodeToString(f.UniqueID[:])
	return s[0:8] + "-" + s[8:16] + "-" + s[16:24]
}
