package stage

import (
	"math"
	"math/rand"

	"github.com/entrainlab/entrain/internal/fault"
)

// IRConfig controls synthetic room impulse response generation. One IR is
// generated per stage that requests reverb, with the decay taken from the
// stage profile.
type IRConfig struct {
	SampleRate int
	DecayS     float64
	Seed       int64

	StereoWidth float64
	DirectLevel float64
	EarlyCount  int
	LateLevel   float64
	RoomModes   int

	NormalizePeak float64
}

// DefaultIRConfig gives a small, dark listening room. Decay must be filled
// in from the stage profile.
func DefaultIRConfig(sampleRate int, decayS float64) IRConfig {
	return IRConfig{
		SampleRate:    sampleRate,
		DecayS:        decayS,
		Seed:          1,
		StereoWidth:   0.6,
		DirectLevel:   0.6,
		EarlyCount:    16,
		LateLevel:     0.3,
		RoomModes:     12,
		NormalizePeak: 0.5,
	}
}

func (c IRConfig) validate() error {
	if c.SampleRate < 8000 {
		return fault.Config("room ir", "sample rate too low: %d", c.SampleRate)
	}
	if c.DecayS <= 0 {
		return fault.Config("room ir", "decay must be > 0, got %g", c.DecayS)
	}
	if c.StereoWidth < 0 {
		return fault.Config("room ir", "stereo width must be >= 0")
	}
	if c.DirectLevel < 0 || c.LateLevel < 0 {
		return fault.Config("room ir", "levels must be >= 0")
	}
	if c.EarlyCount < 0 || c.RoomModes < 0 {
		return fault.Config("room ir", "early count and room modes must be >= 0")
	}
	if c.NormalizePeak <= 0 {
		return fault.Config("room ir", "normalize peak must be > 0")
	}
	return nil
}

// GenerateRoomIR synthesizes a stereo room impulse response: a direct path,
// an early reflections cluster, a handful of decaying low room modes, and a
// diffuse low-passed noise tail. The IR spans 1.5x the decay time so the
// tail reaches roughly -13 dB of its envelope before truncation.
func GenerateRoomIR(cfg IRConfig) ([]float32, []float32, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	n := int(math.Round(1.5 * cfg.DecayS * float64(cfg.SampleRate)))
	if n < 1 {
		n = 1
	}
	left := make([]float64, n)
	right := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))

	left[0] += cfg.DirectLevel * (1.0 - 0.05*cfg.StereoWidth)
	right[0] += cfg.DirectLevel * (1.0 + 0.05*cfg.StereoWidth)

	// Early reflections cluster within the first 30 ms.
	for i := 0; i < cfg.EarlyCount; i++ {
		t := 0.001 + 0.030*rng.Float64()
		idx := int(t * float64(cfg.SampleRate))
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.10 + 0.35*rng.Float64()) * math.Exp(-t*28.0)
		pan := (rng.Float64()*2.0 - 1.0) * cfg.StereoWidth
		left[idx] += amp * (1.0 - 0.5*pan)
		right[idx] += amp * (1.0 + 0.5*pan)
	}

	// Low room modes, log-spaced between 40 and 250 Hz.
	for m := 0; m < cfg.RoomModes; m++ {
		fNorm := (float64(m) + 0.5) / float64(cfg.RoomModes)
		f := 40.0 * math.Pow(250.0/40.0, fNorm)
		amp := 0.08 * (0.7 + 0.6*rng.Float64())
		decay := math.Exp(-1.0 / (0.6 * cfg.DecayS * float64(cfg.SampleRate)))
		pan := (rng.Float64()*2.0 - 1.0) * cfg.StereoWidth
		phi := rng.Float64() * 2.0 * math.Pi
		addMode(left, amp*(1.0-0.45*pan), f, phi, decay, cfg.SampleRate)
		addMode(right, amp*(1.0+0.45*pan), f, phi+0.01*pan, decay, cfg.SampleRate)
	}

	// Diffuse late tail: decorrelated low-passed noise under an exponential
	// envelope sized so the tail falls ~60 dB over DecayS.
	if cfg.LateLevel > 0 {
		tau := cfg.DecayS / math.Log(1000.0)
		lpL := 0.0
		lpR := 0.0
		for i := 0; i < n; i++ {
			t := float64(i) / float64(cfg.SampleRate)
			env := math.Exp(-t / tau)
			lpL = 0.985*lpL + 0.015*rng.NormFloat64()
			lpR = 0.985*lpR + 0.015*rng.NormFloat64()
			left[i] += cfg.LateLevel * env * lpL
			right[i] += cfg.LateLevel * env * lpR
		}
	}

	removeDC(left, 0.995)
	removeDC(right, 0.995)

	peak := maxAbs(left)
	if rp := maxAbs(right); rp > peak {
		peak = rp
	}
	if peak < 1e-12 {
		peak = 1e-12
	}
	s := cfg.NormalizePeak / peak
	outL := make([]float32, n)
	outR := make([]float32, n)
	for i := 0; i < n; i++ {
		outL[i] = float32(left[i] * s)
		outR[i] = float32(right[i] * s)
	}
	return outL, outR, nil
}

// addMode accumulates a decaying cosine using the two-term recurrence, so
// long IRs never call math.Cos per sample.
func addMode(out []float64, amp, freq, phase, decay float64, sampleRate int) {
	if len(out) == 0 {
		return
	}
	w := 2.0 * math.Pi * freq / float64(sampleRate)
	cw := math.Cos(w)
	x0 := math.Cos(phase)
	x1 := math.Cos(phase + w)
	env := amp

	out[0] += env * x0
	env *= decay
	if len(out) == 1 {
		return
	}
	out[1] += env * x1
	env *= decay
	for i := 2; i < len(out); i++ {
		x2 := 2.0*cw*x1 - x0
		x0 = x1
		x1 = x2
		out[i] += env * x2
		env *= decay
	}
}

func removeDC(x []float64, r float64) {
	prevIn := 0.0
	prevOut := 0.0
	for i := range x {
		y := x[i] - prevIn + r*prevOut
		prevIn = x[i]
		prevOut = y
		x[i] = y
	}
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}
