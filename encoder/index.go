package encoder

import (
	"math"
	"sync/atomic"
)

// Index watches a homing index pin. The EXTI interrupt latches rising
// edges; the control cycle ORs the latch with a live read so a pulse
// shorter than the control period cannot be missed.
type Index struct {
	latch uint32
	read  PinReader
}

func NewIndex(read PinReader) *Index {
	return &Index{read: read}
}

// EdgeISR is the EXTI handler. It only sets the latch.
func (i *Index) EdgeISR() {
	atomic.StoreUint32(&i.latch, 1)
}

// ISRUpdate commits the pin state for this cycle.
func (i *Index) ISRUpdate(st *Status) {
	latched := atomic.SwapUint32(&i.latch, 0) != 0
	live := i.read != nil && i.read()

	var v uint32
	if latched || live {
		v = 1
	}
	if !st.Active || st.Value != v {
		st.Value = v
		st.Nonce++
	}
	st.Active = true
}

// Bits reports the sample width.
func (i *Index) Bits() int { return 1 }

// SinCosConfig configures an analog sin/cos input pair.
type SinCosConfig struct {
	// CommonOffset is the raw ADC midpoint subtracted from both
	// channels.
	CommonOffset int32
	CPR          uint32
}

// SinCos converts two analog channels into an angle. The sample
// function returns the latest raw conversions; it is read in the ISR
// from the injected results, never started here.
type SinCos struct {
	cfg    SinCosConfig
	sample func() (s, c uint16)
}

func NewSinCos(cfg SinCosConfig, sample func() (s, c uint16)) *SinCos {
	return &SinCos{cfg: cfg, sample: sample}
}

// ISRUpdate computes the angle for this cycle.
func (sc *SinCos) ISRUpdate(st *Status) {
	rawS, rawC := sc.sample()
	s := float64(int32(rawS) - sc.cfg.CommonOffset)
	c := float64(int32(rawC) - sc.cfg.CommonOffset)

	frac := math.Atan2(s, c) / (2 * math.Pi)
	if frac < 0 {
		frac += 1.0
	}
	st.Value = uint32(frac*float64(sc.cfg.CPR)) % sc.cfg.CPR
	st.Nonce++
	st.Active = true
}

// Bits reports the smallest width that holds CPR.
func (sc *SinCos) Bits() int {
	bits := 0
	for v := sc.cfg.CPR - 1; v != 0; v >>= 1 {
		bits++
	}
	return bits
}
