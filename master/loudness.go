// Package master holds the final output chain: corrective EQ, loudness
// normalization toward a LUFS target, and true-peak limiting against a
// dBTP ceiling, in that order.
package master

import (
	"math"

	"github.com/entrainlab/entrain/internal/fault"
)

// ITU-R BS.1770-4 K-weighting prefilter constants: a high shelf modelling
// head diffraction followed by a high-pass modelling low-frequency hearing
// roll-off. Numbers are the reference filter design parameters, valid at
// any sample rate when redesigned through the RBJ cookbook equations.
const (
	kShelfFreqHz = 1681.9744509555319
	kShelfGainDB = 3.99984385397
	kShelfQ      = 0.7071752369554196

	kHighpassFreqHz = 38.13547087602444
	kHighpassQ      = 0.5003270373238773

	blockS = 0.400
	hopS   = 0.100

	absoluteGateLUFS = -70.0
	relativeGateLU   = -10.0
)

// biquad64 is a double-precision Direct Form I section. Loudness gating
// accumulates mean squares over many minutes, which is where float32
// filters start to bias the measurement.
type biquad64 struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad64) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func newKShelf(sampleRate int) *biquad64 {
	w0 := 2 * math.Pi * kShelfFreqHz / float64(sampleRate)
	a := math.Pow(10, kShelfGainDB/40)
	alpha := math.Sin(w0) / (2 * kShelfQ)
	cw := math.Cos(w0)
	sqA := math.Sqrt(a)

	b0 := a * ((a + 1) + (a-1)*cw + 2*sqA*alpha)
	b1 := -2 * a * ((a - 1) + (a+1)*cw)
	b2 := a * ((a + 1) + (a-1)*cw - 2*sqA*alpha)
	a0 := (a + 1) - (a-1)*cw + 2*sqA*alpha
	a1 := 2 * ((a - 1) - (a+1)*cw)
	a2 := (a + 1) - (a-1)*cw - 2*sqA*alpha
	return &biquad64{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func newKHighpass(sampleRate int) *biquad64 {
	w0 := 2 * math.Pi * kHighpassFreqHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * kHighpassQ)
	cw := math.Cos(w0)

	b0 := (1 + cw) / 2
	b1 := -(1 + cw)
	b2 := (1 + cw) / 2
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha
	return &biquad64{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// IntegratedLUFS measures gated integrated loudness of an interleaved
// stereo program per BS.1770-4: K-weight both channels, take mean squares
// over 400 ms blocks at 100 ms hop, drop blocks below -70 LUFS, then drop
// blocks more than 10 LU below the mean of the survivors.
func IntegratedLUFS(samples []float32, sampleRate int) (float64, error) {
	if sampleRate < 8000 {
		return 0, fault.Config("loudness", "sample rate %d below 8000", sampleRate)
	}
	frames := len(samples) / 2
	blockFrames := int(blockS * float64(sampleRate))
	hopFrames := int(hopS * float64(sampleRate))
	if frames < blockFrames {
		return 0, fault.Config("loudness", "program too short: %d frames, need %d", frames, blockFrames)
	}

	shelfL, shelfR := newKShelf(sampleRate), newKShelf(sampleRate)
	hpL, hpR := newKHighpass(sampleRate), newKHighpass(sampleRate)

	// K-weight once, then square so block sums can reuse a prefix array.
	sq := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := hpL.process(shelfL.process(float64(samples[i*2])))
		r := hpR.process(shelfR.process(float64(samples[i*2+1])))
		sq[i] = l*l + r*r
	}
	prefix := make([]float64, frames+1)
	for i := 0; i < frames; i++ {
		prefix[i+1] = prefix[i] + sq[i]
	}

	var blocks []float64 // mean square per block, absolute-gated
	for start := 0; start+blockFrames <= frames; start += hopFrames {
		ms := (prefix[start+blockFrames] - prefix[start]) / float64(blockFrames)
		if blockLoudness(ms) >= absoluteGateLUFS {
			blocks = append(blocks, ms)
		}
	}
	if len(blocks) == 0 {
		return absoluteGateLUFS, nil
	}

	mean := 0.0
	for _, ms := range blocks {
		mean += ms
	}
	mean /= float64(len(blocks))
	relGate := blockLoudness(mean) + relativeGateLU

	sum := 0.0
	n := 0
	for _, ms := range blocks {
		if blockLoudness(ms) >= relGate {
			sum += ms
			n++
		}
	}
	if n == 0 {
		return absoluteGateLUFS, nil
	}
	return blockLoudness(sum / float64(n)), nil
}

func blockLoudness(meanSquare float64) float64 {
	if meanSquare < 1e-15 {
		return -150
	}
	return -0.691 + 10*math.Log10(meanSquare)
}
