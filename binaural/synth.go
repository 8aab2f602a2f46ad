// Package binaural renders a beat-frequency timeline into a stereo buffer.
//
// The left and right channels sit at carrier -/+ beat/2 and are generated by
// accumulating phase per sample, never by evaluating sin(2*pi*f*t) from an
// absolute time base: frequency changes at event boundaries therefore shift
// the slope of the phase, not the phase itself, and cannot click.
package binaural

import (
	"fmt"
	"math"

	"github.com/entrainlab/entrain/timeline"
)

// SublayerConfig describes the optional constant low-frequency "floor" layer
// beneath the dynamic primary layer.
type SublayerConfig struct {
	Enabled         bool
	CarrierOffsetHz float64 // offset from the primary carrier
	BeatHz          float64 // fixed beat of the sublayer
	LevelDB         float64 // level relative to the primary layer
	FadeInS         float64 // cross-fade-in window
}

// Config controls binaural synthesis.
type Config struct {
	SampleRate int
	CarrierHz  float64

	FadeInS       float64
	FadeOutS      float64
	NormalizePeak float64

	Sublayer SublayerConfig
}

// DefaultConfig returns the session defaults: 48 kHz, 200 Hz carrier, long
// edge fades, and a -9 dB sublayer 50 Hz above the carrier.
func DefaultConfig() Config {
	return Config{
		SampleRate:    48000,
		CarrierHz:     200.0,
		FadeInS:       5.0,
		FadeOutS:      8.0,
		NormalizePeak: 0.9,
		Sublayer: SublayerConfig{
			Enabled:         false,
			CarrierOffsetHz: 50.0,
			BeatHz:          4.0,
			LevelDB:         -9.0,
			FadeInS:         2.0,
		},
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.CarrierHz <= 0 {
		return fmt.Errorf("carrier must be > 0")
	}
	if c.CarrierHz >= 0.5*float64(c.SampleRate) {
		return fmt.Errorf("carrier %.4g Hz at or above Nyquist", c.CarrierHz)
	}
	if c.FadeInS < 0 || c.FadeOutS < 0 {
		return fmt.Errorf("fades must be >= 0")
	}
	if c.NormalizePeak <= 0 || c.NormalizePeak > 1 {
		return fmt.Errorf("normalize peak must be in (0, 1]")
	}
	if c.Sublayer.Enabled {
		if c.CarrierHz+c.Sublayer.CarrierOffsetHz <= 0 {
			return fmt.Errorf("sublayer carrier must be > 0")
		}
		if c.Sublayer.BeatHz <= 0 {
			return fmt.Errorf("sublayer beat must be > 0")
		}
		if c.Sublayer.FadeInS < 0 {
			return fmt.Errorf("sublayer fade-in must be >= 0")
		}
	}
	return nil
}

// Generator renders the timeline block by block, carrying oscillator phase
// and the event cursor between calls so memory stays bounded by the block
// size for arbitrarily long sessions.
type Generator struct {
	cfg Config
	tl  *timeline.FrequencyTimeline

	events      []timeline.FrequencyEvent
	eventIdx    int
	cursor      int // frames rendered so far
	totalFrames int

	phaseL, phaseR       float64
	subPhaseL, subPhaseR float64
	subLevel             float64
}

// NewGenerator validates cfg and prepares a generator for tl.
func NewGenerator(tl *timeline.FrequencyTimeline, cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		cfg:         cfg,
		tl:          tl,
		events:      tl.Events(),
		totalFrames: int(math.Round(tl.TotalDuration() * float64(cfg.SampleRate))),
	}
	if cfg.Sublayer.Enabled {
		g.subLevel = math.Pow(10.0, cfg.Sublayer.LevelDB/20.0)
	}
	return g, nil
}

// TotalFrames returns the exact output length in sample-frames.
func (g *Generator) TotalFrames() int { return g.totalFrames }

// Done reports whether the full timeline has been rendered.
func (g *Generator) Done() bool { return g.cursor >= g.totalFrames }

// Render fills dst (interleaved stereo, len(dst)/2 frames) with the next
// block and returns the number of frames written. Edge fades for the whole
// session are applied here; peak normalization needs the full buffer and is
// left to Synthesize.
func (g *Generator) Render(dst []float32) int {
	frames := len(dst) / 2
	if remain := g.totalFrames - g.cursor; frames > remain {
		frames = remain
	}

	sr := float64(g.cfg.SampleRate)
	twoPiDt := 2.0 * math.Pi / sr
	fadeInFrames := g.cfg.FadeInS * sr
	fadeOutFrames := g.cfg.FadeOutS * sr
	subFadeFrames := g.cfg.Sublayer.FadeInS * sr

	for i := 0; i < frames; i++ {
		t := float64(g.cursor) / sr

		// Advance the event cursor; BeatAt inside the event is O(1).
		for g.eventIdx < len(g.events)-1 && t >= g.events[g.eventIdx].End() {
			g.eventIdx++
		}
		beat := g.events[g.eventIdx].BeatAt(t)

		fL := g.cfg.CarrierHz - beat/2.0
		fR := g.cfg.CarrierHz + beat/2.0
		// Accumulate and wrap each sample so long renders stay precise and
		// block boundaries never influence the waveform.
		g.phaseL = math.Mod(g.phaseL+twoPiDt*fL, 2.0*math.Pi)
		g.phaseR = math.Mod(g.phaseR+twoPiDt*fR, 2.0*math.Pi)

		l := math.Sin(g.phaseL)
		r := math.Sin(g.phaseR)

		if g.cfg.Sublayer.Enabled {
			sub := g.cfg.Sublayer
			g.subPhaseL = math.Mod(g.subPhaseL+twoPiDt*(g.cfg.CarrierHz+sub.CarrierOffsetHz-sub.BeatHz/2.0), 2.0*math.Pi)
			g.subPhaseR = math.Mod(g.subPhaseR+twoPiDt*(g.cfg.CarrierHz+sub.CarrierOffsetHz+sub.BeatHz/2.0), 2.0*math.Pi)
			lvl := g.subLevel
			if subFadeFrames > 0 && float64(g.cursor) < subFadeFrames {
				lvl *= halfCos(float64(g.cursor) / subFadeFrames)
			}
			l += lvl * math.Sin(g.subPhaseL)
			r += lvl * math.Sin(g.subPhaseR)
		}

		gain := 1.0
		if fadeInFrames > 0 && float64(g.cursor) < fadeInFrames {
			gain *= halfCos(float64(g.cursor) / fadeInFrames)
		}
		if tail := float64(g.totalFrames - g.cursor); fadeOutFrames > 0 && tail < fadeOutFrames {
			gain *= halfCos(tail / fadeOutFrames)
		}

		dst[i*2] = float32(l * gain)
		dst[i*2+1] = float32(r * gain)
		g.cursor++
	}

	return frames
}

// halfCos is a raised-cosine ramp: 0 at x=0, 1 at x=1.
func halfCos(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return 0.5 * (1.0 - math.Cos(x*math.Pi))
}

// Synthesize renders the full timeline into one interleaved stereo buffer
// and peak-normalizes it to cfg.NormalizePeak.
func Synthesize(tl *timeline.FrequencyTimeline, cfg Config) ([]float32, error) {
	g, err := NewGenerator(tl, cfg)
	if err != nil {
		return nil, err
	}

	out := make([]float32, g.TotalFrames()*2)
	const blockFrames = 8192
	pos := 0
	for !g.Done() {
		end := pos + blockFrames*2
		if end > len(out) {
			end = len(out)
		}
		n := g.Render(out[pos:end])
		pos += n * 2
	}

	peak := 0.0
	for _, v := range out {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	if peak > 1e-12 {
		s := float32(cfg.NormalizePeak / peak)
		for i := range out {
			out[i] *= s
		}
	}
	return out, nil
}
