package servo

import "goservo/foc"

// iir is a single pole low pass filter with the coefficient derived
// from a cutoff frequency and the control rate.
type iir struct {
	alpha float32
	value float32
	init  bool
}

func makeIIR(cutoffHz float32, rateHz int) iir {
	alpha := LimitVal(foc.TwoPi*cutoffHz/float32(rateHz), 0, 1)
	return iir{alpha: alpha}
}

func (f *iir) apply(x float32) float32 {
	if !f.init {
		f.value = x
		f.init = true
		return x
	}
	f.value += f.alpha * (x - f.value)
	return f.value
}

// sampler converts the injected conversion results into engineering
// units. Phase currents are not filtered on the control path; a
// filtered copy is retained for protection and telemetry.
type sampler struct {
	cfg *Config

	offsets [3]float32

	vFilter  iir
	tFilter  iir
	mFilter  iir
	iFilters [3]iir

	// Offset calibration accumulation.
	calActive bool
	calCount  uint32
	calSum    [3]float32
}

func newSampler(cfg *Config) *sampler {
	s := &sampler{cfg: cfg}
	s.vFilter = makeIIR(cfg.VoltageFilterHz, cfg.RateHz)
	s.tFilter = makeIIR(cfg.TempFilterHz, cfg.RateHz)
	s.mFilter = makeIIR(cfg.TempFilterHz, cfg.RateHz)
	for i := range s.iFilters {
		s.iFilters[i] = makeIIR(cfg.VoltageFilterHz, cfg.RateHz)
	}
	return s
}

// process updates the status from this cycle's samples.
func (s *sampler) process(raw *Samples, st *Status) {
	for i := 0; i < 3; i++ {
		a := (float32(raw.Current[i]) - s.offsets[i]) * s.cfg.CurrentSenseScale
		st.CurrentA[i] = a
		st.FilteredCurrentA[i] = s.iFilters[i].apply(a)
	}
	st.BusV = s.vFilter.apply(float32(raw.VSense) * s.cfg.VSenseScale)
	st.FETTempC = s.tFilter.apply(
		float32(raw.TSense)*s.cfg.TSenseScale + s.cfg.TSenseOffset)
	st.MotorTemp = s.mFilter.apply(
		float32(raw.MSense)*s.cfg.TSenseScale + s.cfg.TSenseOffset)

	if s.calActive {
		for i := 0; i < 3; i++ {
			s.calSum[i] += float32(raw.Current[i])
		}
		s.calCount++
	}
}

// startOffsetCal begins accumulating raw samples; the caller holds the
// bridge at 50% duty for the duration.
func (s *sampler) startOffsetCal() {
	s.calActive = true
	s.calCount = 0
	s.calSum = [3]float32{}
}

// finishOffsetCal commits the mean as the new offsets. Returns false
// if nothing was accumulated.
func (s *sampler) finishOffsetCal() bool {
	s.calActive = false
	if s.calCount == 0 {
		return false
	}
	for i := 0; i < 3; i++ {
		s.offsets[i] = s.calSum[i] / float32(s.calCount)
	}
	return true
}

func (s *sampler) calCycles() uint32 { return s.calCount }

// Offsets exposes the calibrated phase offsets for persistence.
func (s *sampler) Offsets() [3]float32 { return s.offsets }

// SetOffsets restores persisted offsets.
func (s *sampler) SetOffsets(o [3]float32) { s.offsets = o }
