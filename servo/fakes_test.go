package servo

import (
	"math"

	"goservo/encoder"
	"goservo/foc"
	"goservo/position"
)

type fakePWM struct {
	dutyA, dutyB, dutyC float32
	enabled             bool
	braked              bool
	writes              int
}

func (p *fakePWM) WriteDuties(a, b, c float32) {
	p.dutyA, p.dutyB, p.dutyC = a, b, c
	p.braked = false
	p.writes++
}

func (p *fakePWM) Enable(on bool) { p.enabled = on }

func (p *fakePWM) Brake() { p.braked = true }

type fakeDriver struct {
	enabled bool
	fault   bool
}

func (d *fakeDriver) Enable(on bool) { d.enabled = on }
func (d *fakeDriver) Enabled() bool  { return d.enabled }
func (d *fakeDriver) Faulted() bool  { return d.fault }

type fakeADC struct {
	samples Samples
}

func (a *fakeADC) Latest() Samples { return a.samples }

type tickClock struct {
	us   uint32
	step uint32
}

func (c *tickClock) Micros() uint32 {
	c.us += c.step
	return c.us
}

// sim wraps a servo around a first order electrical and mechanical
// plant so closed loop behavior can be exercised without hardware.
type sim struct {
	s   *Servo
	pwm *fakePWM
	drv *fakeDriver
	adc *fakeADC
	clk *tickClock

	cfg Config

	// Plant.
	rOhm      float64
	lH        float64
	ktNm      float64
	keV       float64 // V per rad/s electrical
	jKgM2     float64
	polePairs int
	busV      float64

	id, iq  float64
	mechPos float64 // revolutions
	mechVel float64 // revolutions/s

	encNonce    uint8
	encStall    bool
	currentBias float64 // extra ADC counts on every phase
}

// simSource feeds the plant's rotor angle to the servo as an
// ISR-sampled encoder.
type simSource struct{ m *sim }

func (ss *simSource) ISRUpdate(st *encoder.Status) {
	if ss.m.encStall {
		// Frozen nonce: the consumer must notice staleness.
		return
	}
	frac := ss.m.mechPos - math.Floor(ss.m.mechPos)
	st.Value = uint32(frac * 65536)
	ss.m.encNonce++
	st.Nonce = ss.m.encNonce
	st.Active = true
}

func newSim(mods ...func(*Config)) *sim {
	m := &sim{
		rOhm:      0.2,
		lH:        1e-4,
		ktNm:      0.1,
		keV:       0.014, // ~Kt / (1.5 * polePairs)
		jKgM2:     1e-4,
		polePairs: 7,
		busV:      24.0,
	}

	m.pwm = &fakePWM{}
	m.drv = &fakeDriver{}
	m.adc = &fakeADC{}
	m.clk = &tickClock{step: 1}

	m.cfg = DefaultConfig()
	for _, mod := range mods {
		mod(&m.cfg)
	}
	motor := Motor{
		PolePairs:      7,
		ResistanceOhm:  float32(m.rOhm),
		InductanceH:    float32(m.lH),
		TorqueConstant: float32(m.ktNm),
		CurrentCutoffA: 20.0,
		CurrentScale:   0.5,
		TorqueScale:    0.2,
	}

	hw := Hardware{
		PWM:    m.pwm,
		Driver: m.drv,
		ADC:    m.adc,
		Clock:  m.clk,
	}
	hw.Sources[0] = SourceBinding{ISR: &simSource{m: m}}

	m.s = New(m.cfg, position.DefaultConfig(), motor, hw)
	// Current sense midpoint.
	m.s.sampler.SetOffsets([3]float32{2048, 2048, 2048})
	m.updateADC()
	return m
}

// step advances the plant by one control period and runs the ISR.
func (m *sim) step() {
	m.updateADC()
	m.s.ISRTick()
	m.advancePlant()
}

func (m *sim) run(seconds float64) {
	n := int(seconds * float64(m.cfg.RateHz))
	for i := 0; i < n; i++ {
		m.step()
	}
}

func (m *sim) runMs(ms float64) { m.run(ms / 1000) }

func (m *sim) advancePlant() {
	dt := 1.0 / float64(m.cfg.RateHz)

	var vd, vq float64
	if m.pwm.enabled && !m.pwm.braked {
		va := float64(m.pwm.dutyA) * m.busV
		vb := float64(m.pwm.dutyB) * m.busV
		vc := float64(m.pwm.dutyC) * m.busV
		thetaE := 2 * math.Pi * frac(m.mechPos*float64(m.polePairs))
		sc := foc.SinCos{S: float32(math.Sin(thetaE)), C: float32(math.Cos(thetaE))}
		d, q := foc.Dq(sc, float32(va), float32(vb), float32(vc))
		vd, vq = float64(d), float64(q)
	}

	omegaE := 2 * math.Pi * m.mechVel * float64(m.polePairs)
	bemf := m.keV * omegaE

	m.id += (vd - m.rOhm*m.id) / m.lH * dt
	m.iq += (vq - bemf - m.rOhm*m.iq) / m.lH * dt

	if !m.pwm.enabled {
		m.id, m.iq = 0, 0
	}

	torque := m.ktNm * m.iq
	m.mechVel += torque / m.jKgM2 * dt / (2 * math.Pi)
	m.mechPos += m.mechVel * dt
}

func (m *sim) updateADC() {
	thetaE := 2 * math.Pi * frac(m.mechPos*float64(m.polePairs))
	sc := foc.SinCos{S: float32(math.Sin(thetaE)), C: float32(math.Cos(thetaE))}
	ia, ib, ic := foc.InverseDq(sc, float32(m.id), float32(m.iq))

	scale := m.s.cfg.CurrentSenseScale
	m.adc.samples = Samples{
		Current: [3]uint16{
			uint16(2048 + float32(m.currentBias) + ia/scale),
			uint16(2048 + float32(m.currentBias) + ib/scale),
			uint16(2048 + float32(m.currentBias) + ic/scale),
		},
		VSense: uint16(float32(m.busV) / m.s.cfg.VSenseScale),
		TSense: uint16((25.0 - m.s.cfg.TSenseOffset) / m.s.cfg.TSenseScale),
		MSense: uint16((25.0 - m.s.cfg.TSenseOffset) / m.s.cfg.TSenseScale),
	}
}

func frac(x float64) float64 {
	f := x - math.Floor(x)
	if f >= 1 {
		f -= 1
	}
	return f
}

// command posts through the mailbox like the register server would.
func (m *sim) command(cmd CommandData) {
	m.s.Mailbox.Post(cmd)
}

func (m *sim) stop() {
	cmd := DefaultCommand()
	cmd.Mode = ModeStopped
	m.command(cmd)
}
