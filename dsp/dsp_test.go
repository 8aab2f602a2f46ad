package dsp

import (
	"math"
	"testing"
)

func sineResponse(t *testing.T, f *Biquad, freq, sampleRate float64) float64 {
	t.Helper()
	n := int(sampleRate)
	var sumIn, sumOut float64
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
		y := float64(f.Process(float32(x)))
		// Skip the first 2000 samples so the filter settles.
		if i < 2000 {
			continue
		}
		sumIn += x * x
		sumOut += y * y
	}
	return 10 * math.Log10(sumOut/sumIn)
}

func TestLowShelfBoostsLowsOnly(t *testing.T) {
	const sr = 48000.0
	low := sineResponse(t, NewLowShelf(200, sr, 6), 50, sr)
	high := sineResponse(t, NewLowShelf(200, sr, 6), 5000, sr)

	if math.Abs(low-6.0) > 0.5 {
		t.Fatalf("low-shelf gain at 50 Hz = %.2f dB, want ~6 dB", low)
	}
	if math.Abs(high) > 0.5 {
		t.Fatalf("low-shelf gain at 5 kHz = %.2f dB, want ~0 dB", high)
	}
}

func TestPeakingGainAtCenter(t *testing.T) {
	const sr = 48000.0
	center := sineResponse(t, NewPeaking(1000, sr, -6, 1.0), 1000, sr)
	far := sineResponse(t, NewPeaking(1000, sr, -6, 1.0), 8000, sr)

	if math.Abs(center-(-6.0)) > 0.5 {
		t.Fatalf("peaking gain at center = %.2f dB, want ~-6 dB", center)
	}
	if math.Abs(far) > 1.0 {
		t.Fatalf("peaking gain at 8 kHz = %.2f dB, want ~0 dB", far)
	}
}

func TestHighpassAttenuatesDC(t *testing.T) {
	f := NewHighpass(40, 48000, 0.5)
	var last float32
	for i := 0; i < 48000; i++ {
		last = f.Process(1.0)
	}
	if math.Abs(float64(last)) > 0.01 {
		t.Fatalf("highpass DC residue = %v, want ~0", last)
	}
}

func TestDelayLineRoundTrip(t *testing.T) {
	d := NewDelayLine(16)
	for i := 0; i < 32; i++ {
		d.Write(float32(i))
	}
	if got := d.Read(1); got != 30 {
		t.Fatalf("Read(1) = %v, want 30", got)
	}
	if got := d.Read(15); got != 16 {
		t.Fatalf("Read(15) = %v, want 16", got)
	}
}

func TestEnvelopeFollowerAttackFasterThanRelease(t *testing.T) {
	f := NewEnvelopeFollower(5, 200, 48000)

	// Drive toward 0.5 (attack direction) for 10 ms.
	for i := 0; i < 480; i++ {
		f.Step(0.5)
	}
	attacked := f.Value()
	if attacked > 0.55 {
		t.Fatalf("after 10 ms attack, value = %v, want near 0.5", attacked)
	}

	// Recover toward 1.0 (release direction) for 10 ms; should still be far
	// from unity with a 200 ms release.
	for i := 0; i < 480; i++ {
		f.Step(1.0)
	}
	if f.Value() > 0.75 {
		t.Fatalf("after 10 ms release, value = %v, want well below 1.0", f.Value())
	}
}

func TestDBConversions(t *testing.T) {
	if got := DBToLin(-6.0206); math.Abs(got-0.5) > 1e-4 {
		t.Fatalf("DBToLin(-6.02) = %v, want 0.5", got)
	}
	if got := LinToDB(1.0); got != 0 {
		t.Fatalf("LinToDB(1) = %v, want 0", got)
	}
	if got := float64(DBToLin32(-6.0206)); math.Abs(got-0.5) > 0.01 {
		t.Fatalf("DBToLin32(-6.02) = %v, want ~0.5", got)
	}
}
