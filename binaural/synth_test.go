package binaural

import (
	"math"
	"testing"

	"github.com/entrainlab/entrain/timeline"
)

func testTimeline(t *testing.T) *timeline.FrequencyTimeline {
	t.Helper()
	tl, err := timeline.NewFrequencyTimeline([]timeline.FrequencyEvent{
		{StartTime: 0, Duration: 60, FreqStart: 10, FreqEnd: 10, Transition: timeline.Hold},
		{
			StartTime: 60, Duration: 60, FreqStart: 10, FreqEnd: 6, Transition: timeline.Linear,
			GammaBurst: &timeline.GammaBurst{StartTime: 90, Duration: 3, Frequency: 40},
		},
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	return tl
}

// zeroCrossFreq estimates the frequency of one channel over a frame window
// from its rising zero crossings.
func zeroCrossFreq(samples []float32, channel, startFrame, endFrame, sampleRate int) float64 {
	crossings := 0
	prev := samples[startFrame*2+channel]
	for f := startFrame + 1; f < endFrame; f++ {
		cur := samples[f*2+channel]
		if prev <= 0 && cur > 0 {
			crossings++
		}
		prev = cur
	}
	seconds := float64(endFrame-startFrame) / float64(sampleRate)
	return float64(crossings) / seconds
}

func TestDurationExactness(t *testing.T) {
	tl := testTimeline(t)
	cfg := DefaultConfig()
	cfg.SampleRate = 8000

	buf, err := Synthesize(tl, cfg)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	wantFrames := 120 * 8000
	if len(buf) != wantFrames*2 {
		t.Fatalf("got %d frames, want %d", len(buf)/2, wantFrames)
	}
}

func TestPeakNormalization(t *testing.T) {
	tl := testTimeline(t)
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.NormalizePeak = 0.9

	buf, err := Synthesize(tl, cfg)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	peak := 0.0
	for _, v := range buf {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-0.9) > 1e-3 {
		t.Fatalf("peak = %v, want 0.9", peak)
	}
}

func TestMeasuredBeatFrequencies(t *testing.T) {
	tl := testTimeline(t)
	cfg := DefaultConfig()
	cfg.SampleRate = 48000
	cfg.CarrierHz = 200

	buf, err := Synthesize(tl, cfg)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	sr := cfg.SampleRate

	measureBeat := func(startS, endS float64) float64 {
		s, e := int(startS*float64(sr)), int(endS*float64(sr))
		fL := zeroCrossFreq(buf, 0, s, e, sr)
		fR := zeroCrossFreq(buf, 1, s, e, sr)
		return fR - fL
	}

	// Hold segment: 10 Hz.
	if got := measureBeat(20, 40); math.Abs(got-10) > 0.5 {
		t.Fatalf("beat in hold segment = %v, want ~10", got)
	}
	// Burst plateau: 40 Hz between the edge fades.
	if got := measureBeat(90.3, 92.4); math.Abs(got-40) > 1.5 {
		t.Fatalf("beat in burst = %v, want ~40", got)
	}
	// After the burst the linear descent resumes; the window average over
	// 95..105s sits at the midpoint value, ~7.33 Hz.
	if got := measureBeat(95, 105); math.Abs(got-7.33) > 0.6 {
		t.Fatalf("beat after burst = %v, want ~7.3", got)
	}
}

func TestPhaseContinuityAcrossBoundaries(t *testing.T) {
	tl := testTimeline(t)
	cfg := DefaultConfig()
	cfg.SampleRate = 48000
	cfg.CarrierHz = 200
	cfg.FadeInS = 0
	cfg.FadeOutS = 0

	buf, err := Synthesize(tl, cfg)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	// Highest channel frequency in play is carrier + burst/2 = 220 Hz, so no
	// sample-to-sample step may exceed the maximum slope of that sinusoid.
	maxDelta := 2.0 * math.Pi * 220.0 / float64(cfg.SampleRate) * 1.05
	for ch := 0; ch < 2; ch++ {
		for f := 1; f < len(buf)/2; f++ {
			d := math.Abs(float64(buf[f*2+ch] - buf[(f-1)*2+ch]))
			if d > maxDelta {
				t.Fatalf("channel %d: sample delta %.6f at frame %d exceeds slope bound %.6f",
					ch, d, f, maxDelta)
			}
		}
	}
}

func TestBlockRenderingMatchesFullRender(t *testing.T) {
	tl := testTimeline(t)
	cfg := DefaultConfig()
	cfg.SampleRate = 8000

	g1, err := NewGenerator(tl, cfg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	whole := make([]float32, g1.TotalFrames()*2)
	g1.Render(whole)

	g2, _ := NewGenerator(tl, cfg)
	chunked := make([]float32, 0, len(whole))
	block := make([]float32, 2*1000)
	for !g2.Done() {
		n := g2.Render(block)
		chunked = append(chunked, block[:n*2]...)
	}

	if len(whole) != len(chunked) {
		t.Fatalf("length mismatch: %d vs %d", len(whole), len(chunked))
	}
	for i := range whole {
		if whole[i] != chunked[i] {
			t.Fatalf("block rendering diverges at sample %d", i)
		}
	}
}

func TestSublayerAddsFloor(t *testing.T) {
	tl := testTimeline(t)
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.NormalizePeak = 0.9

	without, err := Synthesize(tl, cfg)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	cfg.Sublayer.Enabled = true
	with, err := Synthesize(tl, cfg)
	if err != nil {
		t.Fatalf("Synthesize with sublayer: %v", err)
	}
	same := true
	for i := range with {
		if with[i] != without[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("sublayer produced identical output")
	}
}

func TestConfigValidation(t *testing.T) {
	tl := testTimeline(t)

	cfg := DefaultConfig()
	cfg.SampleRate = 4000
	if _, err := NewGenerator(tl, cfg); err == nil {
		t.Fatal("expected sample-rate rejection")
	}

	cfg = DefaultConfig()
	cfg.CarrierHz = 30000
	if _, err := NewGenerator(tl, cfg); err == nil {
		t.Fatal("expected Nyquist rejection")
	}

	cfg = DefaultConfig()
	cfg.NormalizePeak = 0
	if _, err := NewGenerator(tl, cfg); err == nil {
		t.Fatal("expected normalize-peak rejection")
	}
}
