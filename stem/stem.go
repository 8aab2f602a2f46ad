// Package stem loads raw PCM buffers into the canonical float32
// representation every downstream component consumes.
//
// Normalization is driven by the declared original sample format, which is a
// required constructor input: the format travels with the raw data into the
// normalization step and is never inferred from an already-converted buffer.
// (Inferring it after conversion is how a historical 32768x amplitude bug
// happens: the post-conversion check never matches the integer format and
// normalization is silently skipped.)
package stem

import (
	"fmt"
	"math"

	"github.com/entrainlab/entrain/internal/fault"
)

// SampleFormat identifies the stored sample encoding of a raw buffer.
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatInt32
	FormatFloat32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "int16"
	case FormatInt32:
		return "int32"
	case FormatFloat32:
		return "float32"
	}
	return "unknown"
}

// scale returns the divisor bringing full-scale samples of f to 1.0.
func (f SampleFormat) scale() float64 {
	switch f {
	case FormatInt16:
		return 32768.0
	case FormatInt32:
		return 2147483648.0
	}
	return 1.0
}

// Stem is one named audio source contributing to the mix. Samples are
// canonical float32 in [-1, 1], interleaved when Channels > 1, and are
// treated as read-only by the mixer.
type Stem struct {
	Name           string
	SampleRate     int
	Channels       int
	OriginalFormat SampleFormat
	Samples        []float32

	GainDB           float64
	SidechainTrigger bool
	SidechainTarget  bool
}

// FromRaw normalizes raw PCM values carried as float64 (the shape external
// decoders hand over) according to their declared format. After scaling, the
// result is sanity-checked against the declared format: a peak well outside
// [-1, 1] means the data was already floating point, a vanishing peak for an
// integer format means the data never held integer magnitudes. Both raise
// NormalizationError instead of passing a silently mis-scaled stem along.
func FromRaw(name string, raw []float64, format SampleFormat, sampleRate, channels int) (*Stem, error) {
	if err := checkShape(name, len(raw), sampleRate, channels); err != nil {
		return nil, err
	}

	div := format.scale()
	out := make([]float32, len(raw))
	rawPeak := 0.0
	peak := 0.0
	for i, v := range raw {
		if a := math.Abs(v); a > rawPeak {
			rawPeak = a
		}
		n := v / div
		out[i] = float32(n)
		if a := math.Abs(n); a > peak {
			peak = a
		}
	}

	if peak > 4.0 {
		return nil, &fault.NormalizationError{
			Stem:   name,
			Detail: fmt.Sprintf("peak %.4g after %s normalization; data range does not match declared format", peak, format),
		}
	}
	if format != FormatFloat32 && rawPeak > 0 && peak < 1e-5 {
		return nil, &fault.NormalizationError{
			Stem:   name,
			Detail: fmt.Sprintf("peak %.4g after %s normalization; data appears to be already normalized floats", peak, format),
		}
	}

	return &Stem{
		Name:           name,
		SampleRate:     sampleRate,
		Channels:       channels,
		OriginalFormat: format,
		Samples:        out,
	}, nil
}

// FromInt16 normalizes 16-bit signed samples (divide by 32768).
func FromInt16(name string, data []int16, sampleRate, channels int) (*Stem, error) {
	raw := make([]float64, len(data))
	for i, v := range data {
		raw[i] = float64(v)
	}
	return FromRaw(name, raw, FormatInt16, sampleRate, channels)
}

// FromInt32 normalizes 32-bit signed samples (divide by 2^31).
func FromInt32(name string, data []int32, sampleRate, channels int) (*Stem, error) {
	raw := make([]float64, len(data))
	for i, v := range data {
		raw[i] = float64(v)
	}
	return FromRaw(name, raw, FormatInt32, sampleRate, channels)
}

// FromFloat32 wraps already-normalized float samples unchanged.
func FromFloat32(name string, data []float32, sampleRate, channels int) (*Stem, error) {
	if err := checkShape(name, len(data), sampleRate, channels); err != nil {
		return nil, err
	}
	peak := 0.0
	for _, v := range data {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	if peak > 4.0 {
		return nil, &fault.NormalizationError{
			Stem:   name,
			Detail: fmt.Sprintf("float stem peaks at %.4g; data looks like unscaled integer PCM", peak),
		}
	}
	cp := make([]float32, len(data))
	copy(cp, data)
	return &Stem{
		Name:           name,
		SampleRate:     sampleRate,
		Channels:       channels,
		OriginalFormat: FormatFloat32,
		Samples:        cp,
	}, nil
}

func checkShape(name string, n, sampleRate, channels int) error {
	if name == "" {
		return fault.Config("stem", "empty name")
	}
	if sampleRate <= 0 {
		return fault.Config("stem", "%s: sample rate %d must be > 0", name, sampleRate)
	}
	if channels < 1 || channels > 2 {
		return fault.Config("stem", "%s: %d channels unsupported (want 1 or 2)", name, channels)
	}
	if n == 0 {
		return fault.Config("stem", "%s: empty sample data", name)
	}
	if n%channels != 0 {
		return fault.Config("stem", "%s: %d samples not divisible by %d channels", name, n, channels)
	}
	return nil
}

// Frames returns the stem length in sample-frames.
func (s *Stem) Frames() int { return len(s.Samples) / s.Channels }

// Peak returns the maximum absolute sample value.
func (s *Stem) Peak() float64 {
	peak := 0.0
	for _, v := range s.Samples {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	return peak
}

// QuantizeInt16 re-encodes the canonical buffer as 16-bit integers with
// clamping, for distribution encodings and round-trip checks.
func (s *Stem) QuantizeInt16() []int16 {
	out := make([]int16, len(s.Samples))
	for i, v := range s.Samples {
		q := math.Round(float64(v) * 32767.0)
		if q > 32767 {
			q = 32767
		}
		if q < -32768 {
			q = -32768
		}
		out[i] = int16(q)
	}
	return out
}

// StereoSamples returns the stem as interleaved stereo, duplicating mono.
func (s *Stem) StereoSamples() []float32 {
	if s.Channels == 2 {
		return s.Samples
	}
	out := make([]float32, len(s.Samples)*2)
	for i, v := range s.Samples {
		out[i*2] = v
		out[i*2+1] = v
	}
	return out
}
