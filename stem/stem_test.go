package stem

import (
	"errors"
	"math"
	"testing"

	"github.com/entrainlab/entrain/internal/fault"
)

func TestInt16Normalization(t *testing.T) {
	data := []int16{0, 16384, -16384, 32767, -32768}
	s, err := FromInt16("pad", data, 48000, 1)
	if err != nil {
		t.Fatalf("FromInt16: %v", err)
	}
	want := []float64{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	for i, w := range want {
		if got := float64(s.Samples[i]); math.Abs(got-w) > 1e-6 {
			t.Errorf("sample %d: got %g, want %g", i, got, w)
		}
	}
	if s.Peak() > 1.0 {
		t.Errorf("peak %g exceeds full scale", s.Peak())
	}
}

func TestInt32Normalization(t *testing.T) {
	data := []int32{1 << 30, -(1 << 31)}
	s, err := FromInt32("sub", data, 48000, 1)
	if err != nil {
		t.Fatalf("FromInt32: %v", err)
	}
	if got := float64(s.Samples[0]); math.Abs(got-0.5) > 1e-7 {
		t.Errorf("got %g, want 0.5", got)
	}
	if got := float64(s.Samples[1]); math.Abs(got+1.0) > 1e-7 {
		t.Errorf("got %g, want -1", got)
	}
}

func TestRoundTripWithinOneLSB(t *testing.T) {
	data := make([]int16, 512)
	for i := range data {
		data[i] = int16(30000 * math.Sin(2*math.Pi*float64(i)/64))
	}
	s, err := FromInt16("tone", data, 48000, 1)
	if err != nil {
		t.Fatalf("FromInt16: %v", err)
	}
	back := s.QuantizeInt16()
	for i := range data {
		d := int(back[i]) - int(data[i])
		if d < -1 || d > 1 {
			t.Fatalf("sample %d drifted by %d LSB (got %d, want %d)", i, d, back[i], data[i])
		}
	}
}

func TestFloatDataDeclaredAsIntegerFails(t *testing.T) {
	// Float samples in [-1, 1] declared as int16 shrink to ~3e-5 peak.
	raw := make([]float64, 128)
	for i := range raw {
		raw[i] = 0.8 * math.Sin(2*math.Pi*float64(i)/32)
	}
	_, err := FromRaw("mislabeled", raw, FormatInt16, 48000, 1)
	var nerr *fault.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("got %v, want NormalizationError", err)
	}
}

func TestIntegerDataDeclaredAsFloatFails(t *testing.T) {
	// Integer magnitudes declared float32 would pass through at ~30000x.
	data := make([]float32, 128)
	for i := range data {
		data[i] = float32(30000 * math.Sin(2*math.Pi*float64(i)/32))
	}
	_, err := FromFloat32("mislabeled", data, 48000, 1)
	var nerr *fault.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("got %v, want NormalizationError", err)
	}
}

func TestShapeValidation(t *testing.T) {
	cases := []struct {
		name string
		fn   func() error
	}{
		{"empty name", func() error {
			_, err := FromInt16("", []int16{1}, 48000, 1)
			return err
		}},
		{"zero rate", func() error {
			_, err := FromInt16("s", []int16{1}, 0, 1)
			return err
		}},
		{"bad channels", func() error {
			_, err := FromInt16("s", []int16{1, 2, 3}, 48000, 3)
			return err
		}},
		{"odd stereo length", func() error {
			_, err := FromInt16("s", []int16{1, 2, 3}, 48000, 2)
			return err
		}},
		{"empty data", func() error {
			_, err := FromInt16("s", nil, 48000, 1)
			return err
		}},
	}
	for _, tc := range cases {
		err := tc.fn()
		var cerr *fault.ConfigError
		if !errors.As(err, &cerr) {
			t.Errorf("%s: got %v, want ConfigError", tc.name, err)
		}
	}
}

func TestStereoSamplesDuplicatesMono(t *testing.T) {
	s, err := FromFloat32("mono", []float32{0.1, -0.2, 0.3}, 48000, 1)
	if err != nil {
		t.Fatalf("FromFloat32: %v", err)
	}
	st := s.StereoSamples()
	if len(st) != 6 {
		t.Fatalf("got %d samples, want 6", len(st))
	}
	for i := 0; i < 3; i++ {
		if st[i*2] != st[i*2+1] || st[i*2] != s.Samples[i] {
			t.Errorf("frame %d not duplicated: %g/%g", i, st[i*2], st[i*2+1])
		}
	}
}
