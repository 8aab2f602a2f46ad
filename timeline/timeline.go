// Package timeline models the validated, immutable session timelines: the
// beat-frequency timeline driving the binaural synthesizer and the stage
// timeline driving the adaptive processor. Both are contiguous and gapless
// over [0, total) and are rejected at construction otherwise.
package timeline

import (
	"math"

	"github.com/entrainlab/entrain/internal/fault"
)

// timeEps absorbs floating-point slack when checking contiguity.
const timeEps = 1e-6

// Burst fade shape: short ramp in so the override reads as a deliberate
// event, longer ramp out so the return does not click.
const (
	burstFadeInS  = 0.2
	burstFadeOutS = 0.5
)

// Transition names how the beat frequency moves across one event.
type Transition string

const (
	Hold        Transition = "hold"
	Linear      Transition = "linear"
	Logarithmic Transition = "logarithmic"
	Burst       Transition = "burst"
)

func (t Transition) valid() bool {
	switch t {
	case Hold, Linear, Logarithmic, Burst:
		return true
	}
	return false
}

// Modulation adds a small sinusoidal jitter to the beat frequency for a
// non-robotic texture.
type Modulation struct {
	Enabled     bool
	FrequencyHz float64
	Range       float64
}

// GammaBurst temporarily overrides the beat frequency inside its parent
// event. Its window must lie fully inside the parent.
type GammaBurst struct {
	StartTime float64
	Duration  float64
	Frequency float64
}

// FrequencyEvent is one segment of the beat-frequency timeline.
type FrequencyEvent struct {
	StartTime  float64
	Duration   float64
	FreqStart  float64
	FreqEnd    float64
	Transition Transition
	Modulation *Modulation
	GammaBurst *GammaBurst
}

// End returns the event's end time.
func (e *FrequencyEvent) End() float64 { return e.StartTime + e.Duration }

// BeatAt returns the instantaneous beat frequency at absolute time t, which
// must lie inside the event. Modulation jitter is added to the interpolated
// base, then an active gamma burst blends toward its override frequency with
// its edge envelope.
func (e *FrequencyEvent) BeatAt(t float64) float64 {
	progress := (t - e.StartTime) / e.Duration
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	var beat float64
	switch e.Transition {
	case Hold, Burst:
		beat = e.FreqStart
	case Linear:
		beat = e.FreqStart + (e.FreqEnd-e.FreqStart)*progress
	case Logarithmic:
		beat = e.FreqStart * math.Pow(e.FreqEnd/e.FreqStart, progress)
	default:
		beat = e.FreqStart
	}

	if m := e.Modulation; m != nil && m.Enabled {
		beat += m.Range * math.Sin(2.0*math.Pi*m.FrequencyHz*t)
	}

	if b := e.GammaBurst; b != nil {
		if env := b.envelope(t); env > 0 {
			beat += env * (b.Frequency - beat)
		}
	}
	return beat
}

// envelope returns the burst blend factor in [0,1] at absolute time t.
func (b *GammaBurst) envelope(t float64) float64 {
	rel := t - b.StartTime
	if rel < 0 || rel > b.Duration {
		return 0
	}
	env := 1.0
	if rel < burstFadeInS {
		env = rel / burstFadeInS
	}
	if tail := b.Duration - rel; tail < burstFadeOutS {
		out := tail / burstFadeOutS
		if out < env {
			env = out
		}
	}
	return env
}

// FrequencyTimeline is an ordered, contiguous sequence of frequency events.
// It is immutable once constructed.
type FrequencyTimeline struct {
	events []FrequencyEvent
	total  float64
}

// NewFrequencyTimeline validates events and fixes the total duration. Events
// must be ordered, start at 0, and tile [0, total) without gaps or overlaps.
func NewFrequencyTimeline(events []FrequencyEvent) (*FrequencyTimeline, error) {
	const component = "frequency timeline"
	if len(events) == 0 {
		return nil, fault.Validation(component, "no events")
	}

	cursor := 0.0
	for i := range events {
		e := &events[i]
		if e.Duration <= 0 {
			return nil, fault.Validation(component, "event %d: duration %.4g must be > 0", i, e.Duration)
		}
		if e.FreqStart <= 0 || e.FreqEnd <= 0 {
			return nil, fault.Validation(component, "event %d: frequencies must be > 0 (start %.4g, end %.4g)", i, e.FreqStart, e.FreqEnd)
		}
		if !e.Transition.valid() {
			return nil, fault.Validation(component, "event %d: unknown transition %q", i, e.Transition)
		}
		if d := e.StartTime - cursor; d > timeEps {
			return nil, fault.Validation(component, "gap of %.4gs before event %d", d, i)
		} else if d < -timeEps {
			return nil, fault.Validation(component, "event %d overlaps previous by %.4gs", i, -d)
		}
		if m := e.Modulation; m != nil && m.Enabled {
			if m.FrequencyHz <= 0 {
				return nil, fault.Validation(component, "event %d: modulation frequency must be > 0", i)
			}
			if m.Range < 0 {
				return nil, fault.Validation(component, "event %d: modulation range must be >= 0", i)
			}
		}
		if b := e.GammaBurst; b != nil {
			if b.Duration <= 0 || b.Frequency <= 0 {
				return nil, fault.Validation(component, "event %d: burst duration and frequency must be > 0", i)
			}
			if b.StartTime < e.StartTime-timeEps || b.StartTime+b.Duration > e.End()+timeEps {
				return nil, fault.Validation(component, "event %d: burst window [%.4g, %.4g] outside event [%.4g, %.4g]",
					i, b.StartTime, b.StartTime+b.Duration, e.StartTime, e.End())
			}
		}
		cursor = e.End()
	}

	cp := make([]FrequencyEvent, len(events))
	copy(cp, events)
	return &FrequencyTimeline{events: cp, total: cursor}, nil
}

// TotalDuration returns the timeline's fixed total duration in seconds.
func (tl *FrequencyTimeline) TotalDuration() float64 { return tl.total }

// Events returns the validated events in order.
func (tl *FrequencyTimeline) Events() []FrequencyEvent { return tl.events }

// BeatAt returns the instantaneous beat frequency at time t, clamped to the
// timeline's ends.
func (tl *FrequencyTimeline) BeatAt(t float64) float64 {
	if t <= 0 {
		return tl.events[0].BeatAt(tl.events[0].StartTime)
	}
	if t >= tl.total {
		last := &tl.events[len(tl.events)-1]
		return last.BeatAt(tl.total)
	}
	// Binary search for the event containing t.
	lo, hi := 0, len(tl.events)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if tl.events[mid].End() <= t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return tl.events[lo].BeatAt(t)
}
