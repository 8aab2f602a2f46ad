package wavio

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/entrainlab/entrain/internal/fault"
)

func stereoSine(freq, amp float64, frames, sampleRate int) []float32 {
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		out[i*2] = v
		out[i*2+1] = v
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, bitDepth := range []int{16, 24} {
		path := filepath.Join(t.TempDir(), "tone.wav")
		in := stereoSine(440, 0.5, 4800, 48000)
		if err := WriteStereo(path, in, 48000, bitDepth); err != nil {
			t.Fatalf("WriteStereo %d-bit: %v", bitDepth, err)
		}
		out, rate, err := ReadStereo(path)
		if err != nil {
			t.Fatalf("ReadStereo %d-bit: %v", bitDepth, err)
		}
		if rate != 48000 {
			t.Errorf("%d-bit: rate %d, want 48000", bitDepth, rate)
		}
		if len(out) != len(in) {
			t.Fatalf("%d-bit: %d samples, want %d", bitDepth, len(out), len(in))
		}
		tol := 1.0 / 32768.0
		if bitDepth == 24 {
			tol = 1.0 / 8388608.0
		}
		for i := range in {
			if d := math.Abs(float64(out[i] - in[i])); d > tol*1.5 {
				t.Fatalf("%d-bit: sample %d drifted by %g", bitDepth, i, d)
			}
		}
	}
}

func TestWriteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "tone.wav")
	in := stereoSine(440, 0.3, 480, 48000)
	if err := WriteStereo(path, in, 48000, 16); err != nil {
		t.Fatalf("WriteStereo: %v", err)
	}
	if _, _, err := ReadStereo(path); err != nil {
		t.Fatalf("ReadStereo: %v", err)
	}
}

func TestRejectsUnsupportedBitDepth(t *testing.T) {
	err := WriteStereo(filepath.Join(t.TempDir(), "x.wav"), []float32{0, 0}, 48000, 8)
	var cerr *fault.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConfigError", err)
	}
}

func TestReadMissingFileIsIOError(t *testing.T) {
	_, _, err := ReadStereo(filepath.Join(t.TempDir(), "missing.wav"))
	var ioErr *fault.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("got %v, want IOError", err)
	}
}

func TestResampleStereoChangesLengthProportionally(t *testing.T) {
	in := stereoSine(440, 0.5, 8000, 8000)
	out, err := ResampleStereo(in, 8000, 16000)
	if err != nil {
		t.Fatalf("ResampleStereo: %v", err)
	}
	gotFrames := len(out) / 2
	if gotFrames < 15900 || gotFrames > 16100 {
		t.Errorf("got %d frames, want ~16000", gotFrames)
	}

	same, err := ResampleStereo(in, 8000, 8000)
	if err != nil {
		t.Fatalf("identity resample: %v", err)
	}
	if &same[0] != &in[0] {
		t.Error("identity resample must return the input unchanged")
	}
}
