package master

import (
	"math"

	"github.com/entrainlab/entrain/dsp"
	"github.com/entrainlab/entrain/internal/fault"
)

const (
	limiterLookaheadMs = 5.0
	limiterReleaseMs   = 80.0
)

// Limiter is a lookahead brickwall limiter. The gain computer sees
// limiterLookaheadMs into the future through a sliding-window minimum over
// required gains, so reduction is already in place when a peak arrives; the
// audio path runs through matching delay lines.
type Limiter struct {
	ceiling   float32
	lookahead int

	delayL *dsp.DelayLine
	delayR *dsp.DelayLine
	env    *dsp.EnvelopeFollower

	// monotonic min-queue over the lookahead window
	queueIdx  []int
	queueGain []float32

	maxReduction float64
}

// NewLimiter builds a limiter against the linear-domain ceiling derived
// from ceilingDB.
func NewLimiter(ceilingDB float64, sampleRate int) (*Limiter, error) {
	if sampleRate < 8000 {
		return nil, fault.Config("limiter", "sample rate %d below 8000", sampleRate)
	}
	if ceilingDB > 0 {
		return nil, fault.Config("limiter", "ceiling %.2f dB above full scale", ceilingDB)
	}
	lookahead := int(limiterLookaheadMs / 1000.0 * float64(sampleRate))
	if lookahead < 1 {
		lookahead = 1
	}
	return &Limiter{
		ceiling:   float32(dsp.DBToLin(ceilingDB)),
		lookahead: lookahead,
		delayL:    dsp.NewDelayLine(lookahead + 1),
		delayR:    dsp.NewDelayLine(lookahead + 1),
		env:       dsp.NewEnvelopeFollower(0, limiterReleaseMs, sampleRate),
	}, nil
}

// Process limits the interleaved stereo program in place, returning the
// same slice. The output is delayed by the lookahead; the tail beyond the
// input length is dropped, which costs 5 ms of reverb decay at most.
func (l *Limiter) Process(samples []float32) []float32 {
	frames := len(samples) / 2

	// Required gain per input frame, before smoothing.
	req := make([]float32, frames)
	for i := 0; i < frames; i++ {
		a := samples[i*2]
		if a < 0 {
			a = -a
		}
		b := samples[i*2+1]
		if b < 0 {
			b = -b
		}
		if b > a {
			a = b
		}
		if a <= l.ceiling {
			req[i] = 1.0
		} else {
			req[i] = l.ceiling / a
		}
	}

	l.queueIdx = l.queueIdx[:0]
	l.queueGain = l.queueGain[:0]

	for i := 0; i < frames; i++ {
		// Admit frame i into the window, keeping the queue monotonic.
		for len(l.queueGain) > 0 && l.queueGain[len(l.queueGain)-1] >= req[i] {
			l.queueIdx = l.queueIdx[:len(l.queueIdx)-1]
			l.queueGain = l.queueGain[:len(l.queueGain)-1]
		}
		l.queueIdx = append(l.queueIdx, i)
		l.queueGain = append(l.queueGain, req[i])

		// Expire frames that left the window for output frame i-lookahead.
		out := i - l.lookahead
		for len(l.queueIdx) > 0 && l.queueIdx[0] < out {
			l.queueIdx = l.queueIdx[1:]
			l.queueGain = l.queueGain[1:]
		}

		l.delayL.Write(samples[i*2])
		l.delayR.Write(samples[i*2+1])

		if out < 0 {
			continue
		}
		gain := l.env.Step(l.queueGain[0])
		if g := float64(gain); g > 0 {
			if red := -20 * math.Log10(g); red > l.maxReduction {
				l.maxReduction = red
			}
		}
		samples[out*2] = l.delayL.Read(l.lookahead+1) * gain
		samples[out*2+1] = l.delayR.Read(l.lookahead+1) * gain
	}

	// Flush the last lookahead frames with the remaining window state.
	for i := frames; i < frames+l.lookahead; i++ {
		out := i - l.lookahead
		for len(l.queueIdx) > 0 && l.queueIdx[0] < out {
			l.queueIdx = l.queueIdx[1:]
			l.queueGain = l.queueGain[1:]
		}
		target := float32(1.0)
		if len(l.queueGain) > 0 {
			target = l.queueGain[0]
		}
		gain := l.env.Step(target)
		l.delayL.Write(0)
		l.delayR.Write(0)
		// Programs shorter than the lookahead still have pending delay
		// to drain before the first writable frame.
		if out < 0 {
			continue
		}
		samples[out*2] = l.delayL.Read(l.lookahead+1) * gain
		samples[out*2+1] = l.delayR.Read(l.lookahead+1) * gain
	}
	return samples
}

// MaxReductionDB reports the deepest gain reduction applied so far.
func (l *Limiter) MaxReductionDB() float64 { return l.maxReduction }
