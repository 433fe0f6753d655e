//go:build tinygo

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"
)

// Hardware identity for the firmware info record.
const (
	hwFamily = 2
	hwRev    = 4
)

// uidBase is the vendor defined unique device id address on the G4.
const uidBase uintptr = 0x1fff7590

// readDeviceUID returns the 96 bit unique id.
func readDeviceUID() [12]byte {
	var out [12]byte
	for i := uintptr(0); i < 12; i++ {
		p := (*volatile.Register8)(unsafe.Pointer(uidBase + i))
		out[i] = byte(p.Get())
	}
	return out
}

// cycleClock derives microseconds from the DWT cycle counter.
type cycleClock struct {
	cyclesPerUs uint32
}

const (
	demcrAddr   uintptr = 0xe000edfc
	dwtCtrlAddr uintptr = 0xe0001000
)

func newCycleClock() *cycleClock {
	// DEMCR.TRCENA then DWT_CTRL.CYCCNTENA: the cycle counter free
	// runs at the core clock.
	demcr := (*volatile.Register32)(unsafe.Pointer(demcrAddr))
	demcr.SetBits(1 << 24)
	ctrl := (*volatile.Register32)(unsafe.Pointer(dwtCtrlAddr))
	ctrl.SetBits(1)
	return &cycleClock{cyclesPerUs: machine.CPUFrequency() / 1e6}
}

func (c *cycleClock) Micros() uint32 {
	return cycleCount() / c.cyclesPerUs
}

//go:inline
func cycleCount() uint32 {
	// DWT->CYCCNT
	const dwtCyccnt uintptr = 0xe0001004
	return (*volatile.Register32)(unsafe.Pointer(dwtCyccnt)).Get()
}

// gateDriver drives the pre-driver enable line and reads nFAULT.
type gateDriver struct {
	enable machine.Pin
	nfault machine.Pin
	on     bool
}

func newGateDriver(enable, nfault machine.Pin) *gateDriver {
	enable.Configure(machine.PinConfig{Mode: machine.PinOutput})
	nfault.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	enable.Low()
	return &gateDriver{enable: enable, nfault: nfault}
}

func (d *gateDriver) Enable(on bool) {
	d.on = on
	d.enable.Set(on)
}

func (d *gateDriver) Enabled() bool { return d.on }

// Faulted reads the active low fault pin.
func (d *gateDriver) Faulted() bool { return !d.nfault.Get() }

// configFlash maps the last 4 KiB page of flash.
type configFlash struct {
	region []byte
}

const (
	configFlashBase = 0x0807f000
	configFlashSize = 0x1000
)

func newConfigFlash() *configFlash {
	return &configFlash{
		region: unsafe.Slice((*byte)(unsafe.Pointer(uintptr(configFlashBase))),
			configFlashSize),
	}
}

func (f *configFlash) Bytes() []byte { return f.region }

func (f *configFlash) Erase() error {
	return machine.Flash.EraseBlocks(
		int64(configFlashBase-machine.FlashDataStart()), 1)
}

func (f *configFlash) Program(offset uint32, data []byte) error {
	_, err := machine.Flash.WriteAt(data,
		int64(configFlashBase-machine.FlashDataStart())+int64(offset))
	return err
}
