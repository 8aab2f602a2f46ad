// Package wavio reads source stems and writes session deliverables as WAV.
package wavio

import (
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/entrainlab/entrain/internal/fault"
)

// ReadStereo decodes a WAV file to interleaved stereo float32, duplicating
// mono sources. The decoder hands back normalized floats whatever the
// stored bit depth, so no format-dependent scaling happens here.
func ReadStereo(path string) (samples []float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fault.IO(path, err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fault.Config("wav", "invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fault.IO(path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fault.Config("wav", "invalid wav buffer: %s", path)
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, 0, fault.Config("wav", "empty wav data: %s", path)
	}
	out := make([]float32, frames*2)
	if ch == 1 {
		for i := 0; i < frames; i++ {
			out[i*2] = buf.Data[i]
			out[i*2+1] = buf.Data[i]
		}
	} else {
		for i := 0; i < frames; i++ {
			out[i*2] = buf.Data[i*ch]
			out[i*2+1] = buf.Data[i*ch+1]
		}
	}
	return out, buf.Format.SampleRate, nil
}

// ResampleStereo converts interleaved stereo between rates, or returns the
// input untouched when rates already match.
func ResampleStereo(in []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	frames := len(in) / 2
	out := make([][]float64, 2)
	for ch := 0; ch < 2; ch++ {
		mono := make([]float64, frames)
		for i := 0; i < frames; i++ {
			mono[i] = float64(in[i*2+ch])
		}
		r, err := dspresample.NewForRates(
			float64(fromRate),
			float64(toRate),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return nil, fault.Config("resample", "%d -> %d Hz: %v", fromRate, toRate, err)
		}
		out[ch] = r.Process(mono)
	}
	n := len(out[0])
	if len(out[1]) < n {
		n = len(out[1])
	}
	res := make([]float32, n*2)
	for i := 0; i < n; i++ {
		res[i*2] = float32(out[0][i])
		res[i*2+1] = float32(out[1][i])
	}
	return res, nil
}

// WriteStereo encodes interleaved stereo samples as PCM WAV at the given
// bit depth (16 or 24), creating parent directories as needed.
func WriteStereo(path string, samples []float32, sampleRate, bitDepth int) error {
	if bitDepth != 16 && bitDepth != 24 {
		return fault.Config("wav", "unsupported bit depth %d (want 16 or 24)", bitDepth)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fault.IO(path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fault.IO(path, err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, bitDepth, 2, 1)
	defer enc.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 2,
		},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fault.IO(path, err)
	}
	return nil
}
