package stage

import (
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/entrainlab/entrain/dsp"
	"github.com/entrainlab/entrain/internal/fault"
)

// Masking analysis band. Voice intelligibility lives here; bed content
// outside it never competes with speech.
const (
	maskingMinHz = 200.0
	maskingMaxHz = 4000.0
	maskingFFT   = 4096
	maskingHop   = 2048

	// MaxMaskingCutDB caps how far the bed is carved under the voice.
	MaxMaskingCutDB = 6.0
)

// MaskingBand is the analysis result over a voice stem: the spectral centroid
// of its dominant speech energy and the cut suggested for the bed.
type MaskingBand struct {
	CenterHz float64
	CutDB    float64
}

// AnalyzeMaskingBand measures where a voice stem's energy concentrates
// inside the speech band. Interleaved stereo input is averaged to mono
// before analysis. Returns ok=false for programs too short for one FFT
// frame or with no measurable energy in the band.
func AnalyzeMaskingBand(voice []float32, sampleRate int) (MaskingBand, bool, error) {
	frames := len(voice) / 2
	if frames < maskingFFT {
		return MaskingBand{}, false, nil
	}
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		mono[i] = 0.5 * float64(voice[i*2]+voice[i*2+1])
	}

	plan, err := algofft.NewPlanReal64(maskingFFT)
	if err != nil {
		return MaskingBand{}, false, fault.Config("masking analysis", "fft plan: %v", err)
	}
	hann := make([]float64, maskingFFT)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(maskingFFT-1))
	}

	nBins := maskingFFT/2 + 1
	spec := make([]complex128, nBins)
	buf := make([]float64, maskingFFT)
	avg := make([]float64, nBins)

	nFrames := 0
	for pos := 0; pos+maskingFFT <= frames; pos += maskingHop {
		for i := 0; i < maskingFFT; i++ {
			buf[i] = mono[pos+i] * hann[i]
		}
		plan.Forward(spec, buf)
		for k := 1; k < nBins; k++ {
			avg[k] += cmplx.Abs(spec[k])
		}
		nFrames++
	}
	if nFrames == 0 {
		return MaskingBand{}, false, nil
	}

	binHz := float64(sampleRate) / float64(maskingFFT)
	kLo := int(math.Ceil(maskingMinHz / binHz))
	kHi := int(math.Floor(maskingMaxHz / binHz))
	if kHi >= nBins {
		kHi = nBins - 1
	}
	if kLo < 1 {
		kLo = 1
	}
	if kLo >= kHi {
		return MaskingBand{}, false, nil
	}

	// Energy-weighted centroid over the speech band.
	totalE := 0.0
	centroid := 0.0
	for k := kLo; k <= kHi; k++ {
		e := avg[k] * avg[k]
		totalE += e
		centroid += e * float64(k) * binHz
	}
	if totalE < 1e-18 {
		return MaskingBand{}, false, nil
	}
	centroid /= totalE

	// Cut depth scales with how much of the full-band energy sits in the
	// speech band, saturating at the cap.
	fullE := 0.0
	for k := 1; k < nBins; k++ {
		fullE += avg[k] * avg[k]
	}
	share := totalE / fullE
	cut := MaxMaskingCutDB * math.Min(1.0, share/0.6)

	return MaskingBand{CenterHz: centroid, CutDB: cut}, true, nil
}

// maskingEnvBlock is the frame granularity at which the tracked cut depth
// updates. Roughly 21ms at 48k, fine enough to follow speech phrasing.
const maskingEnvBlock = 1024

// ApplyMaskingCutTracked carves the notch with a depth that follows the
// voice's short-term energy: full depth while the voice carries, none in its
// pauses. Depth moves at block granularity through SetCoefficients, so the
// filter state is continuous across depth changes and the sweep stays
// click-free. Depth rises instantly with the voice and releases over about
// 300ms, keeping the bed from pumping between words.
func ApplyMaskingCutTracked(bed []float32, sampleRate int, band MaskingBand, voice []float32) {
	if band.CutDB <= 0 {
		return
	}
	cut := band.CutDB
	if cut > MaxMaskingCutDB {
		cut = MaxMaskingCutDB
	}

	frames := len(bed) / 2
	voiceFrames := len(voice) / 2
	nBlocks := (frames + maskingEnvBlock - 1) / maskingEnvBlock
	if nBlocks == 0 {
		return
	}

	rms := make([]float64, nBlocks)
	peakRMS := 0.0
	for b := 0; b < nBlocks; b++ {
		sum := 0.0
		n := 0
		for i := b * maskingEnvBlock; i < (b+1)*maskingEnvBlock && i < voiceFrames; i++ {
			v := 0.5 * float64(voice[i*2]+voice[i*2+1])
			sum += v * v
			n++
		}
		if n > 0 {
			rms[b] = math.Sqrt(sum / float64(n))
		}
		if rms[b] > peakRMS {
			peakRMS = rms[b]
		}
	}
	if peakRMS < 1e-9 {
		return
	}

	blockDur := float64(maskingEnvBlock) / float64(sampleRate)
	release := math.Exp(-blockDur / 0.3)

	eqL := dsp.NewBiquad(1, 0, 0, 0, 0)
	eqR := dsp.NewBiquad(1, 0, 0, 0, 0)
	env := 0.0
	for b := 0; b < nBlocks; b++ {
		target := rms[b] / peakRMS
		if target >= env {
			env = target
		} else {
			env = target + (env-target)*release
		}
		depth := cut * env
		if depth < 0.05 {
			depth = 0
		}
		ref := dsp.NewPeaking(float32(band.CenterHz), float32(sampleRate), float32(-depth), 2.0)
		eqL.SetCoefficients(ref)
		eqR.SetCoefficients(ref)
		lo := b * maskingEnvBlock
		hi := lo + maskingEnvBlock
		if hi > frames {
			hi = frames
		}
		for i := lo; i < hi; i++ {
			bed[i*2] = eqL.Process(bed[i*2])
			bed[i*2+1] = eqR.Process(bed[i*2+1])
		}
	}
}

// ApplyMaskingCut carves a fixed peaking notch into the interleaved stereo
// bed at the voice's dominant band. A two-octave bandwidth keeps the dip
// broad and unobtrusive.
func ApplyMaskingCut(bed []float32, sampleRate int, band MaskingBand) {
	if band.CutDB <= 0 {
		return
	}
	cut := band.CutDB
	if cut > MaxMaskingCutDB {
		cut = MaxMaskingCutDB
	}
	eqL := dsp.NewPeaking(float32(band.CenterHz), float32(sampleRate), float32(-cut), 2.0)
	eqR := dsp.NewPeaking(float32(band.CenterHz), float32(sampleRate), float32(-cut), 2.0)
	for i := 0; i+1 < len(bed); i += 2 {
		bed[i] = eqL.Process(bed[i])
		bed[i+1] = eqR.Process(bed[i+1])
	}
}
