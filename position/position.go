package position

import (
	"goservo/encoder"
	"goservo/foc"
)

// Reference identifies what shaft a source measures.
type Reference uint8

const (
	ReferenceRotor Reference = iota
	ReferenceOutput
)

// HomeState tracks how much of the position is absolute.
type HomeState uint8

const (
	HomedNever HomeState = iota
	HomedRotor
	HomedOutput
)

// Fault is the aggregator's failure reason, mapped by the servo into
// its own fault taxonomy.
type Fault uint8

const (
	FaultNone Fault = iota
	FaultSourceInactive
	FaultDisagreement
)

// OffsetBins is the per-source linearization table length.
const OffsetBins = 32

// SourceConfig configures one fused source.
type SourceConfig struct {
	Kind encoder.Kind
	CPR  uint32
	Sign int8 // +1 or -1

	Reference Reference
	// GearRatio is rotor revolutions per output revolution, used when
	// Reference is ReferenceOutput.
	GearRatio float32

	// OffsetTable is an additive correction in revolutions, binned
	// over one source revolution and linearly interpolated between
	// adjacent bins.
	OffsetTable [OffsetBins]float32

	// PLLFilterHz is the tracker bandwidth.
	PLLFilterHz float32

	// DebugOverride, when not NaN, replaces the measured fraction.
	DebugOverride float32
}

// Config configures the aggregator.
type Config struct {
	Sources [3]SourceConfig

	// PoleCount is the number of electrical cycles per rotor
	// revolution.
	PoleCount uint8

	// RotorToOutputRatio is output revolutions per rotor revolution
	// (1.0 for direct drive).
	RotorToOutputRatio float32

	// CommutationSource indexes Sources; it must reference the rotor.
	CommutationSource int
	// OutputSource optionally indexes an absolute source referencing
	// the output shaft. -1 disables.
	OutputSource int
	// ReferenceSource optionally indexes a second rotor source checked
	// for consistency against the commutation source. -1 disables.
	ReferenceSource int
	// IndexSource optionally indexes a KindIndex source used for
	// homing. -1 disables.
	IndexSource int

	// DisagreementTolerance is the allowed difference between rotor
	// sources, in rotor revolutions.
	DisagreementTolerance float32

	// ValidityTolerance bounds the PLL innovation before the position
	// is declared invalid, in source revolutions.
	ValidityTolerance float32

	// StaleCycles is how many control cycles a nonce may stall before
	// the source is marked inactive.
	StaleCycles uint8
}

// DefaultConfig returns a single on-board SPI source setup.
func DefaultConfig() Config {
	c := Config{
		PoleCount:             7,
		RotorToOutputRatio:    1.0,
		CommutationSource:     0,
		OutputSource:          -1,
		ReferenceSource:       -1,
		IndexSource:           -1,
		DisagreementTolerance: 0.02,
		ValidityTolerance:     0.25,
		StaleCycles:           8,
	}
	c.Sources[0] = SourceConfig{
		Kind:          encoder.KindSPI,
		CPR:           65536,
		Sign:          1,
		Reference:     ReferenceRotor,
		GearRatio:     1.0,
		PLLFilterHz:   400,
		DebugOverride: foc.NaN(),
	}
	for i := 1; i < 3; i++ {
		c.Sources[i].Sign = 1
		c.Sources[i].GearRatio = 1.0
		c.Sources[i].DebugOverride = foc.NaN()
	}
	return c
}

// Status is the fused result published to the rest of the ISR every
// cycle.
type Status struct {
	ElectricalTheta float32 // radians, [0, 2pi)
	ElectricalOmega float32 // radians/s
	MechanicalTheta float32 // rotor revolutions, [0, 1)

	OutputPosition float64 // output revolutions, unwrapped
	OutputVelocity float32 // output revolutions/s

	Homed HomeState
	Valid bool
	Fault Fault
}

type sourceState struct {
	pll        PLL
	lastNonce  uint8
	staleCount uint8
	active     bool
	everActive bool
}

// Position is the aggregator. ISRUpdate is the only mutating entry
// point in steady state; configuration changes happen with the loop
// stopped.
type Position struct {
	cfg    Config
	rateHz int

	sources [3]sourceState

	lastMech     float64
	haveLastMech bool

	status Status
}

// New builds an aggregator for a control rate.
func New(cfg Config, rateHz int) *Position {
	p := &Position{cfg: cfg, rateHz: rateHz}
	for i := range p.sources {
		p.sources[i].pll.SetBandwidth(cfg.Sources[i].PLLFilterHz)
	}
	p.status.Homed = HomedNever
	return p
}

// Status returns the most recent fused result.
func (p *Position) Status() Status { return p.status }

// SetOutputPosition rezeros the unwrapped output position, as from the
// host's rezero command. This also marks the output as homed.
func (p *Position) SetOutputPosition(turns float64) {
	p.status.OutputPosition = turns
	p.status.Homed = HomedOutput
}

// RequireReindex drops homing state so the next index pulse re-homes.
func (p *Position) RequireReindex() {
	p.status.Homed = HomedNever
}

// ISRUpdate fuses the per-source statuses for this control cycle.
func (p *Position) ISRUpdate(statuses *[3]encoder.Status) {
	dt := 1.0 / float64(p.rateHz)

	var worstInnovation float64

	for i := range p.sources {
		cfg := &p.cfg.Sources[i]
		if cfg.Kind == encoder.KindNone || cfg.Kind == encoder.KindIndex {
			continue
		}
		ss := &p.sources[i]
		st := &statuses[i]

		fresh := st.Active && st.Nonce != ss.lastNonce
		ss.lastNonce = st.Nonce

		if !st.Active {
			ss.active = false
			ss.pll.Propagate(dt)
			continue
		}

		if fresh {
			ss.staleCount = 0
			ss.active = true
			ss.everActive = true
			frac := p.measuredFraction(cfg, st.Value)
			innovation := ss.pll.Update(frac, dt)
			if a := abs(innovation); a > worstInnovation {
				worstInnovation = a
			}
		} else {
			ss.staleCount++
			if ss.staleCount >= p.cfg.StaleCycles {
				ss.active = false
			}
			ss.pll.Propagate(dt)
		}
	}

	p.fuse(statuses, dt, worstInnovation)
}

// measuredFraction converts a raw source value to a corrected wrapped
// fraction of one source revolution.
func (p *Position) measuredFraction(cfg *SourceConfig, raw uint32) float64 {
	frac := float64(raw) / float64(cfg.CPR)
	if cfg.Sign < 0 {
		frac = 1.0 - frac
	}
	if !foc.IsNaN(cfg.DebugOverride) {
		frac = float64(cfg.DebugOverride)
	}
	frac = wrap01(frac + float64(interpOffset(&cfg.OffsetTable, float32(frac))))
	return frac
}

// interpOffset linearly interpolates the 32-bin table at a wrapped
// fraction.
func interpOffset(table *[OffsetBins]float32, frac float32) float32 {
	x := frac * OffsetBins
	i0 := int(x) % OffsetBins
	if i0 < 0 {
		i0 += OffsetBins
	}
	i1 := (i0 + 1) % OffsetBins
	w := x - float32(int(x))
	return table[i0]*(1-w) + table[i1]*w
}

func (p *Position) fuse(statuses *[3]encoder.Status, dt, worstInnovation float64) {
	out := &p.status

	ci := p.cfg.CommutationSource
	cs := &p.sources[ci]
	ccfg := &p.cfg.Sources[ci]

	if !cs.active || !cs.pll.Initialized() {
		out.Valid = false
		if cs.everActive {
			// The source was alive and died: an encoder fault, not a
			// warm-up condition.
			out.Fault = FaultSourceInactive
		}
		p.haveLastMech = false
		return
	}

	// Rotor mechanical angle from the commutation source.
	mech := cs.pll.Theta
	mechVel := cs.pll.Velocity
	if ccfg.Reference == ReferenceOutput {
		mech *= float64(ccfg.GearRatio)
		mechVel *= float64(ccfg.GearRatio)
	}

	// Cross check a second rotor source.
	if ri := p.cfg.ReferenceSource; ri >= 0 {
		rs := &p.sources[ri]
		if rs.active && rs.pll.Initialized() {
			diff := wrapHalf(rs.pll.Wrapped() - wrap01(mech))
			if abs(diff) > float64(p.cfg.DisagreementTolerance) {
				out.Valid = false
				out.Fault = FaultDisagreement
				return
			}
		}
	}

	wrapped := wrap01(mech)
	out.MechanicalTheta = float32(wrapped)
	out.ElectricalTheta = foc.WrapZeroTwoPi(
		float32(wrap01(wrapped*float64(p.cfg.PoleCount))) * foc.TwoPi)
	out.ElectricalOmega = float32(mechVel) * float32(p.cfg.PoleCount) * foc.TwoPi

	// Unwrap the output position by integrating rotor motion.
	if p.haveLastMech {
		delta := mech - p.lastMech
		out.OutputPosition += delta * float64(p.cfg.RotorToOutputRatio)
	}
	p.lastMech = mech
	p.haveLastMech = true
	out.OutputVelocity = float32(mechVel) * p.cfg.RotorToOutputRatio

	// An absolute output source overrides the integrated estimate
	// within one turn and homes the output.
	if oi := p.cfg.OutputSource; oi >= 0 {
		os := &p.sources[oi]
		ocfg := &p.cfg.Sources[oi]
		if os.active && os.pll.Initialized() && ocfg.Reference == ReferenceOutput {
			frac := os.pll.Wrapped()
			base := out.OutputPosition
			// Snap to the representation of frac nearest the estimate.
			whole := float64(int64(base))
			best := whole + frac
			for _, cand := range []float64{whole + frac - 1, whole + frac + 1} {
				if abs(cand-base) < abs(best-base) {
					best = cand
				}
			}
			out.OutputPosition = best
			out.OutputVelocity = float32(os.pll.Velocity)
			if out.Homed != HomedOutput {
				out.Homed = HomedOutput
			}
		}
	}

	// Index pulse homes the rotor.
	if ii := p.cfg.IndexSource; ii >= 0 {
		if statuses[ii].Active && statuses[ii].Value != 0 &&
			out.Homed == HomedNever {
			out.Homed = HomedRotor
		}
	}

	if worstInnovation > float64(p.cfg.ValidityTolerance) {
		out.Valid = false
		out.Fault = FaultNone
		return
	}

	out.Valid = true
	out.Fault = FaultNone
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
