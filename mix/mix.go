// Package mix sums normalized stems into a single stereo program with
// per-stem gain and optional sidechain ducking driven by trigger stems.
package mix

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/entrainlab/entrain/dsp"
	"github.com/entrainlab/entrain/internal/fault"
	"github.com/entrainlab/entrain/stem"
)

// SidechainConfig shapes how trigger energy pushes target stems down.
type SidechainConfig struct {
	ThresholdDB float64 // trigger RMS level above which ducking engages
	Ratio       float64 // fraction of target gain removed at full engagement, 0..1
	AttackMs    float64
	ReleaseMs   float64
	WindowMs    float64 // RMS window over the trigger bus
}

// DefaultSidechain mirrors the voice-over-music ducking most sessions use.
func DefaultSidechain() SidechainConfig {
	return SidechainConfig{
		ThresholdDB: -40,
		Ratio:       0.6,
		AttackMs:    15,
		ReleaseMs:   250,
		WindowMs:    10,
	}
}

// Config drives one mixdown.
type Config struct {
	SampleRate int
	Sidechain  SidechainConfig

	// TargetDurationS fixes the mix length. Zero means the longest stem.
	// Longer stems are truncated, never resampled; shorter ones zero-pad.
	TargetDurationS float64
}

func (c Config) Validate() error {
	if c.SampleRate < 8000 {
		return fault.Config("mix", "sample rate %d below 8000", c.SampleRate)
	}
	if c.TargetDurationS < 0 {
		return fault.Config("mix", "target duration %.2fs is negative", c.TargetDurationS)
	}
	// A zero-value sidechain is fine as long as no stem engages ducking;
	// Mix re-checks it the moment a trigger meets a target.
	if c.Sidechain != (SidechainConfig{}) {
		return c.Sidechain.validate()
	}
	return nil
}

func (sc SidechainConfig) validate() error {
	if sc.Ratio < 0 || sc.Ratio > 1 {
		return fault.Config("mix", "sidechain ratio %.3f outside [0, 1]", sc.Ratio)
	}
	if sc.AttackMs < 0 || sc.ReleaseMs < 0 {
		return fault.Config("mix", "sidechain attack/release must be >= 0")
	}
	if sc.WindowMs <= 0 {
		return fault.Config("mix", "sidechain window %.3f ms must be > 0", sc.WindowMs)
	}
	return nil
}

// Result carries the summed program plus any non-fatal warnings raised
// while mixing. Samples are interleaved stereo at Config.SampleRate.
type Result struct {
	Samples  []float32
	Frames   int
	PeakDBFS float64
	Warnings []error
}

// Mix sums the stems at their configured gains. Every stem must share the
// config sample rate; resampling happens upstream. Shorter stems are
// zero-padded to the mix length, never looped; stems running past an
// explicit TargetDurationS are truncated. The sum is deliberately not
// renormalized: headroom is the session author's job and a hot mix surfaces
// as a ClipWarning, letting the mastering stage decide what to do about it.
func Mix(stems []*stem.Stem, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(stems) == 0 {
		return nil, fault.Config("mix", "no stems to mix")
	}
	for _, s := range stems {
		if s.SampleRate != cfg.SampleRate {
			return nil, fault.Config("mix", "stem %q is %d Hz, mix runs at %d Hz",
				s.Name, s.SampleRate, cfg.SampleRate)
		}
	}

	frames := 0
	for _, s := range stems {
		if f := s.Frames(); f > frames {
			frames = f
		}
	}
	if cfg.TargetDurationS > 0 {
		frames = int(math.Round(cfg.TargetDurationS * float64(cfg.SampleRate)))
	}

	duck, err := buildDuckCurve(stems, cfg, frames)
	if err != nil {
		return nil, err
	}

	out := make([]float32, frames*2)
	for _, s := range stems {
		gain := float32(dsp.DBToLin(s.GainDB))
		src := s.StereoSamples()
		n := s.Frames()
		if n > frames {
			n = frames
		}
		if s.SidechainTarget && duck != nil {
			for i := 0; i < n; i++ {
				g := gain * duck[i]
				out[i*2] += src[i*2] * g
				out[i*2+1] += src[i*2+1] * g
			}
		} else {
			for i := 0; i < n; i++ {
				out[i*2] += src[i*2] * gain
				out[i*2+1] += src[i*2+1] * gain
			}
		}
	}

	peak := 0.0
	for _, v := range out {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	res := &Result{
		Samples:  out,
		Frames:   frames,
		PeakDBFS: dsp.LinToDB(peak),
	}
	if peak > 1.0 {
		w := &fault.ClipWarning{PeakDBFS: res.PeakDBFS}
		res.Warnings = append(res.Warnings, w)
		logrus.WithFields(logrus.Fields{
			"peak_dbfs": res.PeakDBFS,
			"stems":     len(stems),
		}).Warn("mix exceeds full scale")
	}
	return res, nil
}

// buildDuckCurve derives the per-frame gain applied to sidechain targets
// from the summed trigger stems. Returns nil when no stem triggers or no
// stem is a target, so the plain summing path stays allocation-free; the
// sidechain settings are only enforced once ducking actually engages.
func buildDuckCurve(stems []*stem.Stem, cfg Config, frames int) ([]float32, error) {
	haveTrigger, haveTarget := false, false
	for _, s := range stems {
		if s.SidechainTrigger {
			haveTrigger = true
		}
		if s.SidechainTarget {
			haveTarget = true
		}
	}
	if !haveTrigger || !haveTarget {
		return nil, nil
	}
	if err := cfg.Sidechain.validate(); err != nil {
		return nil, err
	}

	// Mono trigger bus at stem gain.
	bus := make([]float64, frames)
	for _, s := range stems {
		if !s.SidechainTrigger {
			continue
		}
		gain := dsp.DBToLin(s.GainDB)
		src := s.StereoSamples()
		n := s.Frames()
		if n > frames {
			n = frames
		}
		for i := 0; i < n; i++ {
			bus[i] += 0.5 * gain * float64(src[i*2]+src[i*2+1])
		}
	}

	sc := cfg.Sidechain
	window := int(sc.WindowMs / 1000.0 * float64(cfg.SampleRate))
	if window < 1 {
		window = 1
	}
	threshold := dsp.DBToLin(sc.ThresholdDB)
	env := dsp.NewEnvelopeFollower(sc.AttackMs, sc.ReleaseMs, cfg.SampleRate)

	curve := make([]float32, frames)
	sumSq := 0.0
	for i := 0; i < frames; i++ {
		sumSq += bus[i] * bus[i]
		if i >= window {
			sumSq -= bus[i-window] * bus[i-window]
			if sumSq < 0 {
				sumSq = 0
			}
		}
		n := window
		if i+1 < window {
			n = i + 1
		}
		rms := math.Sqrt(sumSq / float64(n))

		target := float32(1.0)
		if rms > threshold {
			target = float32(1.0 - sc.Ratio)
		}
		curve[i] = env.Step(target)
	}
	return curve, nil
}
