package position

import (
	"math"
	"testing"

	"goservo/encoder"
)

const testRate = 30000

// feed pushes a mechanical angle (revolutions) into source 0 of the
// aggregator as a raw count.
func feed(p *Position, statuses *[3]encoder.Status, mech float64) {
	cpr := float64(p.cfg.Sources[0].CPR)
	statuses[0].Value = uint32(wrap01(mech) * cpr)
	statuses[0].Nonce++
	statuses[0].Active = true
	p.ISRUpdate(statuses)
}

func TestPositionBasicFusion(t *testing.T) {
	p := New(DefaultConfig(), testRate)
	var statuses [3]encoder.Status

	mech := 0.25
	for i := 0; i < 100; i++ {
		feed(p, &statuses, mech)
	}
	st := p.Status()
	if !st.Valid {
		t.Fatalf("position should be valid, fault=%v", st.Fault)
	}
	if math.Abs(float64(st.MechanicalTheta)-mech) > 0.001 {
		t.Errorf("mechanical theta = %v, want %v", st.MechanicalTheta, mech)
	}
	wantElec := wrap01(mech*7) * 2 * math.Pi
	if math.Abs(float64(st.ElectricalTheta)-wantElec) > 0.01 {
		t.Errorf("electrical theta = %v, want %v", st.ElectricalTheta, wantElec)
	}
	if st.ElectricalTheta < 0 || st.ElectricalTheta >= 2*math.Pi {
		t.Errorf("electrical theta out of [0,2pi): %v", st.ElectricalTheta)
	}
}

func TestPositionUnwrapAcrossRevolutions(t *testing.T) {
	p := New(DefaultConfig(), testRate)
	var statuses [3]encoder.Status

	// Drive 2.5 revolutions forward at constant speed.
	const vel = 10.0
	mech := 0.0
	feed(p, &statuses, mech)
	steps := int(2.5 / vel * testRate)
	for i := 0; i < steps; i++ {
		mech += vel / testRate
		feed(p, &statuses, mech)
	}
	st := p.Status()
	if math.Abs(st.OutputPosition-2.5) > 0.01 {
		t.Errorf("output position = %v, want 2.5", st.OutputPosition)
	}
	if math.Abs(float64(st.OutputVelocity)-vel) > 0.1 {
		t.Errorf("output velocity = %v, want %v", st.OutputVelocity, vel)
	}
}

func TestPositionStaleNonceDeactivates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleCycles = 8
	p := New(cfg, testRate)
	var statuses [3]encoder.Status

	for i := 0; i < 10; i++ {
		feed(p, &statuses, 0.1)
	}
	if !p.Status().Valid {
		t.Fatal("should be valid while fresh")
	}

	// Nonce freezes: after StaleCycles the source is inactive and the
	// position invalid with an encoder fault.
	for i := 0; i < 9; i++ {
		p.ISRUpdate(&statuses)
	}
	st := p.Status()
	if st.Valid {
		t.Fatal("stale source must invalidate the position")
	}
	if st.Fault != FaultSourceInactive {
		t.Errorf("fault = %v, want FaultSourceInactive", st.Fault)
	}
}

func TestPositionWarmupIsNotAFault(t *testing.T) {
	p := New(DefaultConfig(), testRate)
	var statuses [3]encoder.Status
	p.ISRUpdate(&statuses)
	st := p.Status()
	if st.Valid {
		t.Fatal("no samples yet: must be invalid")
	}
	if st.Fault != FaultNone {
		t.Errorf("warm-up should not report a fault, got %v", st.Fault)
	}
}

func TestPositionOffsetTable(t *testing.T) {
	cfg := DefaultConfig()
	// A constant table shifts the angle.
	for i := range cfg.Sources[0].OffsetTable {
		cfg.Sources[0].OffsetTable[i] = 0.125
	}
	p := New(cfg, testRate)
	var statuses [3]encoder.Status
	for i := 0; i < 100; i++ {
		feed(p, &statuses, 0.5)
	}
	st := p.Status()
	if math.Abs(float64(st.MechanicalTheta)-0.625) > 0.001 {
		t.Errorf("mechanical theta = %v, want 0.625", st.MechanicalTheta)
	}
}

func TestOffsetInterpolation(t *testing.T) {
	var table [OffsetBins]float32
	table[0] = 0.0
	table[1] = 0.032
	// Halfway between bin 1 and bin 2.
	got := interpOffset(&table, 1.5/OffsetBins)
	if math.Abs(float64(got)-0.016) > 1e-6 {
		t.Errorf("interp = %v, want 0.016", got)
	}
	// Wraparound between the last and first bins.
	table[OffsetBins-1] = 0.064
	got = interpOffset(&table, (OffsetBins-0.5)/OffsetBins)
	if math.Abs(float64(got)-0.032) > 1e-6 {
		t.Errorf("wrap interp = %v, want 0.032", got)
	}
}

func TestPositionSignInversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources[0].Sign = -1
	p := New(cfg, testRate)
	var statuses [3]encoder.Status
	for i := 0; i < 100; i++ {
		feed(p, &statuses, 0.25)
	}
	st := p.Status()
	if math.Abs(float64(st.MechanicalTheta)-0.75) > 0.001 {
		t.Errorf("mechanical theta = %v, want 0.75", st.MechanicalTheta)
	}
}

func TestPositionDisagreementFault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources[1] = cfg.Sources[0]
	cfg.ReferenceSource = 1
	cfg.DisagreementTolerance = 0.02
	p := New(cfg, testRate)
	var statuses [3]encoder.Status

	cpr := float64(cfg.Sources[0].CPR)
	for i := 0; i < 200; i++ {
		statuses[0].Value = uint32(0.25 * cpr)
		statuses[0].Nonce++
		statuses[0].Active = true
		// Source 1 reads a quarter revolution away.
		statuses[1].Value = uint32(0.5 * cpr)
		statuses[1].Nonce++
		statuses[1].Active = true
		p.ISRUpdate(&statuses)
	}
	st := p.Status()
	if st.Valid {
		t.Fatal("disagreeing rotor sources must invalidate the position")
	}
	if st.Fault != FaultDisagreement {
		t.Errorf("fault = %v, want FaultDisagreement", st.Fault)
	}
}

func TestPositionAbsoluteOutputSnap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources[1] = SourceConfig{
		Kind:          encoder.KindI2CAS5048,
		CPR:           16384,
		Sign:          1,
		Reference:     ReferenceOutput,
		GearRatio:     1.0,
		PLLFilterHz:   50,
		DebugOverride: float32(math.NaN()),
	}
	cfg.OutputSource = 1
	p := New(cfg, testRate)
	var statuses [3]encoder.Status

	for i := 0; i < 500; i++ {
		statuses[0].Value = uint32(0.25 * 65536)
		statuses[0].Nonce++
		statuses[0].Active = true
		statuses[1].Value = uint32(0.75 * 16384)
		statuses[1].Nonce++
		statuses[1].Active = true
		p.ISRUpdate(&statuses)
	}
	st := p.Status()
	if st.Homed != HomedOutput {
		t.Errorf("homed = %v, want HomedOutput", st.Homed)
	}
	frac := wrap01(st.OutputPosition)
	if math.Abs(frac-0.75) > 0.01 {
		t.Errorf("output fraction = %v, want 0.75", frac)
	}
	if math.Abs(st.OutputPosition) > 1.0 {
		t.Errorf("snap must stay within one turn of the estimate: %v", st.OutputPosition)
	}
}

func TestPositionIndexHomesRotor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources[2] = SourceConfig{Kind: encoder.KindIndex, CPR: 2, Sign: 1,
		GearRatio: 1, DebugOverride: float32(math.NaN())}
	cfg.IndexSource = 2
	p := New(cfg, testRate)
	var statuses [3]encoder.Status

	for i := 0; i < 10; i++ {
		feed(p, &statuses, 0.1)
	}
	if p.Status().Homed != HomedNever {
		t.Fatal("should not be homed yet")
	}

	statuses[2].Value = 1
	statuses[2].Nonce++
	statuses[2].Active = true
	feed(p, &statuses, 0.1)
	if p.Status().Homed != HomedRotor {
		t.Errorf("homed = %v, want HomedRotor", p.Status().Homed)
	}
}

func TestSetOutputPosition(t *testing.T) {
	p := New(DefaultConfig(), testRate)
	var statuses [3]encoder.Status
	for i := 0; i < 10; i++ {
		feed(p, &statuses, 0.1)
	}
	p.SetOutputPosition(3.5)
	st := p.Status()
	if st.OutputPosition != 3.5 {
		t.Errorf("output position = %v", st.OutputPosition)
	}
	if st.Homed != HomedOutput {
		t.Errorf("homed = %v, want HomedOutput", st.Homed)
	}
}
