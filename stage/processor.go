// Package stage applies per-stage tone shaping to the mixed program:
// gain, low-shelf EQ, convolution reverb, and mid/side stereo width, all
// cross-faded between adjacent stages by the stage timeline weights.
package stage

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/entrainlab/entrain/dsp"
	"github.com/entrainlab/entrain/internal/fault"
	"github.com/entrainlab/entrain/timeline"
)

// LowShelfCutoffHz is where stage tone shaping pivots. Below this the shelf
// gain applies in full.
const LowShelfCutoffHz = 250.0

// Processor renders the stage-shaped program. Each stage owns a full
// processing chain over the whole program; the chains' outputs are summed
// under the timeline cross-fade weights.
type Processor struct {
	tl         *timeline.StageTimeline
	sampleRate int
}

// NewProcessor wires a processor to a validated stage timeline.
func NewProcessor(tl *timeline.StageTimeline, sampleRate int) (*Processor, error) {
	if tl == nil {
		return nil, fault.Config("stage processor", "nil stage timeline")
	}
	if sampleRate < 8000 {
		return nil, fault.Config("stage processor", "sample rate %d below 8000", sampleRate)
	}
	return &Processor{tl: tl, sampleRate: sampleRate}, nil
}

// Process shapes the interleaved stereo program. The input covers the whole
// session; stages beyond the program length simply contribute nothing.
func (p *Processor) Process(program []float32) ([]float32, error) {
	if len(program)%2 != 0 {
		return nil, fault.Config("stage processor", "odd sample count %d for stereo program", len(program))
	}
	frames := len(program) / 2
	out := make([]float32, len(program))

	stages := p.tl.Stages()
	for i := range stages {
		s := &stages[i]
		shaped, err := p.processStage(s, program)
		if err != nil {
			return nil, err
		}
		accumulateWeighted(out, shaped, p.tl, i, p.sampleRate, frames)
		logrus.WithFields(logrus.Fields{
			"stage":   s.Name,
			"gain_db": s.GainDB,
			"wet_pct": s.ReverbWetPct,
		}).Debug("stage rendered")
	}
	return out, nil
}

// processStage runs one stage's full chain over the program. Running each
// chain over the whole program keeps filters and reverb tails continuous
// through the cross-fade windows at the stage edges.
func (p *Processor) processStage(s *timeline.StageProfile, program []float32) ([]float32, error) {
	work := make([]float32, len(program))
	gain := float32(dsp.DBToLin(s.GainDB))
	for i, v := range program {
		work[i] = v * gain
	}

	if s.LowShelfGainDB != 0 {
		shelfL := dsp.NewLowShelf(LowShelfCutoffHz, float32(p.sampleRate), float32(s.LowShelfGainDB))
		shelfR := dsp.NewLowShelf(LowShelfCutoffHz, float32(p.sampleRate), float32(s.LowShelfGainDB))
		for i := 0; i < len(work); i += 2 {
			work[i] = shelfL.Process(work[i])
			work[i+1] = shelfR.Process(work[i+1])
		}
	}

	if s.ReverbWetPct > 0 {
		irL, irR, err := GenerateRoomIR(DefaultIRConfig(p.sampleRate, s.ReverbDecayS))
		if err != nil {
			return nil, err
		}
		conv, err := NewRoomConvolver(irL, irR)
		if err != nil {
			return nil, err
		}
		wet, err := conv.Process(work)
		if err != nil {
			return nil, err
		}
		mix := float32(s.ReverbWetPct / 100.0)
		dry := 1.0 - mix
		for i := range work {
			work[i] = work[i]*dry + wet[i]*mix
		}
	}

	if s.StereoWidthPct != 100 {
		applyWidth(work, float32(s.StereoWidthPct/100.0))
	}
	return work, nil
}

// applyWidth rescales the side signal in mid/side space. width 0 collapses
// to mono, 1 is unchanged, 2 doubles the side content.
func applyWidth(samples []float32, width float32) {
	for i := 0; i < len(samples); i += 2 {
		mid := 0.5 * (samples[i] + samples[i+1])
		side := 0.5 * (samples[i] - samples[i+1]) * width
		samples[i] = mid + side
		samples[i+1] = mid - side
	}
}

// accumulateWeighted adds shaped into out under the stage's cross-fade
// weight. The weight is evaluated per block of 64 frames; at 48 kHz that is
// a 1.3 ms step, far below audibility on a multi-second transition.
func accumulateWeighted(out, shaped []float32, tl *timeline.StageTimeline, stageIdx, sampleRate, frames int) {
	const block = 64
	for start := 0; start < frames; start += block {
		end := start + block
		if end > frames {
			end = frames
		}
		t := (float64(start) + float64(end-start)/2.0) / float64(sampleRate)
		w := float32(tl.Weight(stageIdx, t))
		if w == 0 {
			continue
		}
		for i := start; i < end; i++ {
			out[i*2] += shaped[i*2] * w
			out[i*2+1] += shaped[i*2+1] * w
		}
	}
}

// RMSDB returns the program's RMS level in dBFS, a convenience for level
// assertions around stage shaping.
func RMSDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -150
	}
	sum := 0.0
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return dsp.LinToDB(math.Sqrt(sum / float64(len(samples))))
}
