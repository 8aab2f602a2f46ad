package master

import (
	"math"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"

	"github.com/entrainlab/entrain/dsp"
	"github.com/entrainlab/entrain/internal/fault"
)

const oversampleFactor = 4

// TruePeakDBTP estimates the true peak of an interleaved stereo program in
// dBTP by 4x oversampling each channel and taking the largest reconstructed
// sample, the measurement BS.1770 prescribes for inter-sample peaks.
func TruePeakDBTP(samples []float32, sampleRate int) (float64, error) {
	if sampleRate < 8000 {
		return 0, fault.Config("true peak", "sample rate %d below 8000", sampleRate)
	}
	frames := len(samples) / 2
	if frames == 0 {
		return -150, nil
	}

	peak := 0.0
	for ch := 0; ch < 2; ch++ {
		mono := make([]float64, frames)
		for i := 0; i < frames; i++ {
			mono[i] = float64(samples[i*2+ch])
		}
		r, err := dspresample.NewForRates(
			float64(sampleRate),
			float64(sampleRate*oversampleFactor),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return 0, fault.Config("true peak", "resampler: %v", err)
		}
		for _, v := range r.Process(mono) {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return dsp.LinToDB(peak), nil
}
