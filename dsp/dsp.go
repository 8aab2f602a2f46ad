// Package dsp provides the small filter and envelope primitives shared by the
// mixing, staging, and mastering packages.
package dsp

import (
	"math"

	"github.com/cwbudde/algo-approx"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR filter (no heap allocations in Process)
type Biquad struct {
	// Coefficients
	b0, b1, b2 float32
	a1, a2     float32

	// State (previous samples)
	x1, x2 float32 // input history
	y1, y2 float32 // output history
}

// NewBiquad creates a new biquad filter with the given coefficients
func NewBiquad(b0, b1, b2, a1, a2 float32) *Biquad {
	return &Biquad{
		b0: b0,
		b1: b1,
		b2: b2,
		a1: a1,
		a2: a2,
	}
}

// Process processes one sample through the biquad filter
func (b *Biquad) Process(input float32) float32 {
	// Direct Form I implementation
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2

	// Update state; flushing the feedback path keeps decaying tails from
	// going denormal.
	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = FlushDenormals(output)

	return output
}

// ProcessBuffer filters a buffer in place.
func (b *Biquad) ProcessBuffer(buf []float32) {
	for i := range buf {
		buf[i] = b.Process(buf[i])
	}
}

// SetCoefficients replaces the filter coefficients while keeping the state
// history, so coefficients can be swept without restarting the filter.
func (b *Biquad) SetCoefficients(other *Biquad) {
	b.b0, b.b1, b.b2 = other.b0, other.b1, other.b2
	b.a1, b.a2 = other.a1, other.a2
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// NewLowpass creates a lowpass biquad filter
func NewLowpass(cutoff, sampleRate, q float32) *Biquad {
	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	alpha := math.Sin(w0) / (2.0 * float64(q))
	cosw0 := math.Cos(w0)

	b0 := (1.0 - cosw0) / 2.0
	b1 := 1.0 - cosw0
	b2 := (1.0 - cosw0) / 2.0
	a0 := 1.0 + alpha
	a1 := -2.0 * cosw0
	a2 := 1.0 - alpha

	return normalized(b0, b1, b2, a0, a1, a2)
}

// NewHighpass creates a highpass biquad filter
func NewHighpass(cutoff, sampleRate, q float32) *Biquad {
	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	alpha := math.Sin(w0) / (2.0 * float64(q))
	cosw0 := math.Cos(w0)

	b0 := (1.0 + cosw0) / 2.0
	b1 := -(1.0 + cosw0)
	b2 := (1.0 + cosw0) / 2.0
	a0 := 1.0 + alpha
	a1 := -2.0 * cosw0
	a2 := 1.0 - alpha

	return normalized(b0, b1, b2, a0, a1, a2)
}

// NewLowShelf creates a low-shelf biquad with the given gain in dB.
func NewLowShelf(cutoff, sampleRate, gainDB float32) *Biquad {
	a := math.Pow(10.0, float64(gainDB)/40.0)
	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	cosw0 := math.Cos(w0)
	// Shelf slope fixed at 1 (maximally flat).
	alpha := math.Sin(w0) / 2.0 * math.Sqrt2
	sqa := 2.0 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cosw0 + sqa)
	b1 := 2 * a * ((a - 1) - (a+1)*cosw0)
	b2 := a * ((a + 1) - (a-1)*cosw0 - sqa)
	a0 := (a + 1) + (a-1)*cosw0 + sqa
	a1 := -2 * ((a - 1) + (a+1)*cosw0)
	a2 := (a + 1) + (a-1)*cosw0 - sqa

	return normalized(b0, b1, b2, a0, a1, a2)
}

// NewHighShelf creates a high-shelf biquad with the given gain in dB.
func NewHighShelf(cutoff, sampleRate, gainDB float32) *Biquad {
	a := math.Pow(10.0, float64(gainDB)/40.0)
	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / 2.0 * math.Sqrt2
	sqa := 2.0 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*cosw0 + sqa)
	b1 := -2 * a * ((a - 1) + (a+1)*cosw0)
	b2 := a * ((a + 1) + (a-1)*cosw0 - sqa)
	a0 := (a + 1) - (a-1)*cosw0 + sqa
	a1 := 2 * ((a - 1) - (a+1)*cosw0)
	a2 := (a + 1) - (a-1)*cosw0 - sqa

	return normalized(b0, b1, b2, a0, a1, a2)
}

// NewPeaking creates a peaking-EQ biquad centered on cutoff with the given
// gain in dB and bandwidth in octaves.
func NewPeaking(cutoff, sampleRate, gainDB, bandwidthOct float32) *Biquad {
	a := math.Pow(10.0, float64(gainDB)/40.0)
	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	sinw0 := math.Sin(w0)
	cosw0 := math.Cos(w0)
	alpha := sinw0 * math.Sinh(math.Ln2/2.0*float64(bandwidthOct)*w0/sinw0)

	b0 := 1 + alpha*a
	b1 := -2 * cosw0
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosw0
	a2 := 1 - alpha/a

	return normalized(b0, b1, b2, a0, a1, a2)
}

func normalized(b0, b1, b2, a0, a1, a2 float64) *Biquad {
	return NewBiquad(
		float32(b0/a0),
		float32(b1/a0),
		float32(b2/a0),
		float32(a1/a0),
		float32(a2/a0),
	)
}

// DelayLine implements a circular buffer for delay
type DelayLine struct {
	buffer   []float32
	writePos int
	size     int
}

// NewDelayLine creates a new delay line with the given size
func NewDelayLine(size int) *DelayLine {
	return &DelayLine{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write writes a sample to the delay line
func (d *DelayLine) Write(sample float32) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % d.size
}

// Read reads a sample from the delay line at the given delay (in samples)
func (d *DelayLine) Read(delay int) float32 {
	readPos := (d.writePos - delay + d.size) % d.size
	return d.buffer[readPos]
}

// Reset clears the delay line
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}

// EnvelopeFollower tracks a smoothed gain value with separate attack and
// release time constants. Attack applies when the target is below the current
// value (gain reduction engaging), release when it recovers.
type EnvelopeFollower struct {
	attackCoef  float32
	releaseCoef float32
	value       float32
}

// NewEnvelopeFollower creates a follower with millisecond time constants.
func NewEnvelopeFollower(attackMs, releaseMs float64, sampleRate int) *EnvelopeFollower {
	return &EnvelopeFollower{
		attackCoef:  smoothingCoef(attackMs, sampleRate),
		releaseCoef: smoothingCoef(releaseMs, sampleRate),
		value:       1.0,
	}
}

// Step advances the follower toward target by one sample and returns the
// smoothed value.
func (f *EnvelopeFollower) Step(target float32) float32 {
	coef := f.releaseCoef
	if target < f.value {
		coef = f.attackCoef
	}
	f.value += (target - f.value) * coef
	return f.value
}

// Value returns the current smoothed value without advancing.
func (f *EnvelopeFollower) Value() float32 { return f.value }

// Reset sets the follower back to unity.
func (f *EnvelopeFollower) Reset() { f.value = 1.0 }

func smoothingCoef(ms float64, sampleRate int) float32 {
	if ms <= 0 {
		return 1.0
	}
	samples := ms * 0.001 * float64(sampleRate)
	return 1.0 - approx.FastExp(float32(-1.0/samples))
}

// DBToLin converts decibels to a linear gain factor.
func DBToLin(db float64) float64 {
	return math.Pow(10.0, db/20.0)
}

// LinToDB converts a linear amplitude to decibels, floored at -150 dB.
func LinToDB(lin float64) float64 {
	if lin < 3.1623e-8 {
		return -150.0
	}
	return 20.0 * math.Log10(lin)
}

// DBToLin32 is a float32 fast-path for per-sample gain updates.
func DBToLin32(db float32) float32 {
	const ln10Over20 = 0.115129254649702
	return approx.FastExp(db * ln10Over20)
}

// FlushDenormals converts denormal numbers to zero to avoid performance issues
func FlushDenormals(x float32) float32 {
	return float32(dspcore.FlushDenormals(float64(x)))
}
