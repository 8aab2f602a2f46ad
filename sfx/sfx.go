// Package sfx synthesizes the short effect sounds a session can place
// between stems: bells, impacts, ambient textures and the like. Every
// variant is generated, never sampled, so sessions stay self-contained.
package sfx

import (
	"math"
	"math/rand"

	"github.com/entrainlab/entrain/internal/fault"
)

// Kind is the closed set of effect variants. Adding a variant means adding
// a generator to the dispatch table below; Synthesize rejects anything the
// table does not know.
type Kind int

const (
	Bell Kind = iota
	Impact
	Fire
	Ambient
	Footstep
	Mystical
	Heartbeat
	Resonance
)

func (k Kind) String() string {
	switch k {
	case Bell:
		return "bell"
	case Impact:
		return "impact"
	case Fire:
		return "fire"
	case Ambient:
		return "ambient"
	case Footstep:
		return "footstep"
	case Mystical:
		return "mystical"
	case Heartbeat:
		return "heartbeat"
	case Resonance:
		return "resonance"
	}
	return "unknown"
}

// KindFromName resolves a session-document name to a Kind.
func KindFromName(name string) (Kind, error) {
	for k := Bell; k <= Resonance; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fault.Config("sfx", "unknown effect kind %q", name)
}

// Params shapes one rendered effect.
type Params struct {
	SampleRate int
	DurationS  float64
	BaseHz     float64 // tonal center for pitched variants
	Intensity  float64 // 0..1 scales level and brightness
	Seed       int64
}

// DefaultParams returns a one-second mid-intensity effect at 440 Hz.
func DefaultParams(sampleRate int) Params {
	return Params{
		SampleRate: sampleRate,
		DurationS:  1.0,
		BaseHz:     440,
		Intensity:  0.5,
		Seed:       1,
	}
}

func (p Params) Validate() error {
	if p.SampleRate < 8000 {
		return fault.Config("sfx", "sample rate %d below 8000", p.SampleRate)
	}
	if p.DurationS <= 0 || p.DurationS > 30 {
		return fault.Config("sfx", "duration %.3gs outside (0, 30]", p.DurationS)
	}
	if p.BaseHz <= 0 || p.BaseHz >= float64(p.SampleRate)/2 {
		return fault.Config("sfx", "base frequency %.4g Hz outside (0, Nyquist)", p.BaseHz)
	}
	if p.Intensity < 0 || p.Intensity > 1 {
		return fault.Config("sfx", "intensity %.3g outside [0, 1]", p.Intensity)
	}
	return nil
}

type generator func(p Params) []float32

// generators is the complete dispatch table over Kind. Tests assert it
// covers every variant, so a new Kind without a generator fails fast.
var generators = map[Kind]generator{
	Bell:      genBell,
	Impact:    genImpact,
	Fire:      genFire,
	Ambient:   genAmbient,
	Footstep:  genFootstep,
	Mystical:  genMystical,
	Heartbeat: genHeartbeat,
	Resonance: genResonance,
}

// Synthesize renders one effect as interleaved stereo, peak-normalized to
// the intensity-scaled level.
func Synthesize(k Kind, p Params) ([]float32, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	gen, ok := generators[k]
	if !ok {
		return nil, fault.Config("sfx", "no generator for kind %d", int(k))
	}
	out := gen(p)
	normalize(out, 0.25+0.6*p.Intensity)
	return out, nil
}

func frames(p Params) int {
	n := int(math.Round(p.DurationS * float64(p.SampleRate)))
	if n < 1 {
		n = 1
	}
	return n
}

// addPartial accumulates a decaying sine into an interleaved stereo buffer
// with a simple constant pan.
func addPartial(out []float32, sampleRate int, freq, amp, decayS, pan, phase float64) {
	n := len(out) / 2
	w := 2 * math.Pi * freq / float64(sampleRate)
	cw := math.Cos(w)
	x0 := math.Sin(phase)
	x1 := math.Sin(phase + w)
	decay := math.Exp(-1.0 / (decayS * float64(sampleRate)))
	lGain := amp * (1 - 0.5*pan)
	rGain := amp * (1 + 0.5*pan)
	env := 1.0
	for i := 0; i < n; i++ {
		var x float64
		switch i {
		case 0:
			x = x0
		case 1:
			x = x1
		default:
			x = 2*cw*x1 - x0
			x0 = x1
			x1 = x
		}
		out[i*2] += float32(env * lGain * x)
		out[i*2+1] += float32(env * rGain * x)
		env *= decay
	}
}

func genBell(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// Inharmonic partial series typical of struck metal.
	ratios := []float64{1.0, 2.01, 2.74, 3.76, 4.07, 5.43}
	for i, r := range ratios {
		f := p.BaseHz * r
		if f >= float64(p.SampleRate)/2 {
			continue
		}
		amp := 1.0 / (1.0 + float64(i)*1.2)
		decay := p.DurationS * (0.9 - 0.1*float64(i))
		addPartial(out, p.SampleRate, f, amp, decay, rng.Float64()*0.4-0.2, rng.Float64()*2*math.Pi)
	}
	return out
}

func genImpact(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// Pitched thump dropping an octave plus a short noise transient.
	n := len(out) / 2
	phase := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / float64(p.SampleRate)
		f := p.BaseHz * math.Pow(0.5, t*8)
		phase += 2 * math.Pi * f / float64(p.SampleRate)
		env := math.Exp(-t * 12)
		v := math.Sin(phase) * env
		if t < 0.02 {
			v += 0.5 * rng.NormFloat64() * (1 - t/0.02)
		}
		out[i*2] += float32(v)
		out[i*2+1] += float32(v)
	}
	return out
}

func genFire(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// Low-passed crackle bed with sparse pops.
	lpL, lpR := 0.0, 0.0
	n := len(out) / 2
	for i := 0; i < n; i++ {
		lpL = 0.96*lpL + 0.04*rng.NormFloat64()
		lpR = 0.96*lpR + 0.04*rng.NormFloat64()
		out[i*2] += float32(lpL)
		out[i*2+1] += float32(lpR)
		if rng.Float64() < 0.0008 {
			pop := 0.8 + 0.4*rng.Float64()
			for j := 0; j < 40 && i+j < n; j++ {
				d := pop * math.Exp(-float64(j)*0.2) * rng.NormFloat64() * 0.5
				out[(i+j)*2] += float32(d)
				out[(i+j)*2+1] += float32(d)
			}
		}
	}
	return out
}

func genAmbient(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// Slowly swelling decorrelated noise washed through a heavy low-pass.
	lpL, lpR := 0.0, 0.0
	n := len(out) / 2
	for i := 0; i < n; i++ {
		t := float64(i) / float64(p.SampleRate)
		swell := math.Sin(math.Pi * t / p.DurationS)
		lpL = 0.995*lpL + 0.005*rng.NormFloat64()
		lpR = 0.995*lpR + 0.005*rng.NormFloat64()
		out[i*2] += float32(swell * lpL)
		out[i*2+1] += float32(swell * lpR)
	}
	return out
}

func genFootstep(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// Two close thuds, heel then toe.
	n := len(out) / 2
	toe := int(0.08 * float64(p.SampleRate))
	for i := 0; i < n; i++ {
		t := float64(i) / float64(p.SampleRate)
		v := 0.0
		if i < toe {
			v += math.Sin(2*math.Pi*p.BaseHz*0.25*t) * math.Exp(-t*60)
		}
		if i >= toe {
			t2 := float64(i-toe) / float64(p.SampleRate)
			v += 0.6 * math.Sin(2*math.Pi*p.BaseHz*0.35*t2) * math.Exp(-t2*80)
		}
		v += 0.15 * rng.NormFloat64() * math.Exp(-t*40)
		out[i*2] += float32(v)
		out[i*2+1] += float32(v)
	}
	return out
}

func genMystical(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// Shimmering detuned fifths drifting against each other.
	for _, r := range []float64{1.0, 1.498, 2.003, 2.997} {
		f := p.BaseHz * r
		if f >= float64(p.SampleRate)/2 {
			continue
		}
		addPartial(out, p.SampleRate, f*(1+0.002*rng.NormFloat64()), 0.5,
			p.DurationS*0.8, rng.Float64()*1.2-0.6, rng.Float64()*2*math.Pi)
	}
	return out
}

func genHeartbeat(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	// Lub-dub pairs at a resting ~60 bpm, low sine thumps.
	n := len(out) / 2
	period := p.SampleRate // one beat per second
	dub := int(0.18 * float64(p.SampleRate))
	for i := 0; i < n; i++ {
		inBeat := i % period
		v := 0.0
		if inBeat < dub {
			t := float64(inBeat) / float64(p.SampleRate)
			v += math.Sin(2*math.Pi*55*t) * math.Exp(-t*30)
		}
		if inBeat >= dub && inBeat < 2*dub {
			t := float64(inBeat-dub) / float64(p.SampleRate)
			v += 0.7 * math.Sin(2*math.Pi*45*t) * math.Exp(-t*35)
		}
		out[i*2] += float32(v)
		out[i*2+1] += float32(v)
	}
	return out
}

func genResonance(p Params) []float32 {
	out := make([]float32, frames(p)*2)
	rng := rand.New(rand.NewSource(p.Seed))
	// A single long singing-bowl style partial pair beating slowly.
	addPartial(out, p.SampleRate, p.BaseHz, 1.0, p.DurationS*1.2, -0.2, 0)
	addPartial(out, p.SampleRate, p.BaseHz*1.003, 0.8, p.DurationS*1.2, 0.2, rng.Float64())
	return out
}

func normalize(samples []float32, peak float64) {
	m := 0.0
	for _, v := range samples {
		if a := math.Abs(float64(v)); a > m {
			m = a
		}
	}
	if m < 1e-12 {
		return
	}
	s := float32(peak / m)
	for i := range samples {
		samples[i] *= s
	}
}
