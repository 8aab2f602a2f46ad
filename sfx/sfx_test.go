package sfx

import (
	"errors"
	"math"
	"testing"

	"github.com/entrainlab/entrain/internal/fault"
)

const testRate = 16000

func TestDispatchTableCoversEveryKind(t *testing.T) {
	for k := Bell; k <= Resonance; k++ {
		if _, ok := generators[k]; !ok {
			t.Errorf("kind %s has no generator", k)
		}
		if k.String() == "unknown" {
			t.Errorf("kind %d has no name", int(k))
		}
	}
	if len(generators) != int(Resonance)+1 {
		t.Errorf("dispatch table has %d entries, want %d", len(generators), int(Resonance)+1)
	}
}

func TestSynthesizeAllKinds(t *testing.T) {
	p := DefaultParams(testRate)
	p.DurationS = 0.5
	for k := Bell; k <= Resonance; k++ {
		out, err := Synthesize(k, p)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		wantLen := int(0.5*testRate) * 2
		if len(out) != wantLen {
			t.Errorf("%s: %d samples, want %d", k, len(out), wantLen)
		}
		peak := 0.0
		energy := 0.0
		for _, v := range out {
			a := math.Abs(float64(v))
			if a > peak {
				peak = a
			}
			energy += a * a
		}
		wantPeak := 0.25 + 0.6*p.Intensity
		if math.Abs(peak-wantPeak) > 1e-3 {
			t.Errorf("%s: peak %g, want %g", k, peak, wantPeak)
		}
		if energy == 0 {
			t.Errorf("%s: silent render", k)
		}
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	p := DefaultParams(testRate)
	p.DurationS = 0.25
	a, err := Synthesize(Fire, p)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := Synthesize(Fire, p)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs across identical renders", i)
		}
	}
}

func TestKindFromName(t *testing.T) {
	for k := Bell; k <= Resonance; k++ {
		got, err := KindFromName(k.String())
		if err != nil {
			t.Errorf("%s: %v", k, err)
		}
		if got != k {
			t.Errorf("%s resolved to %s", k, got)
		}
	}
	_, err := KindFromName("laser")
	var cerr *fault.ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("unknown name: got %v, want ConfigError", err)
	}
}

func TestParamsValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"low rate", func(p *Params) { p.SampleRate = 4000 }},
		{"zero duration", func(p *Params) { p.DurationS = 0 }},
		{"excessive duration", func(p *Params) { p.DurationS = 31 }},
		{"base above nyquist", func(p *Params) { p.BaseHz = 9000 }},
		{"negative intensity", func(p *Params) { p.Intensity = -0.1 }},
	}
	for _, tc := range cases {
		p := DefaultParams(testRate)
		tc.mutate(&p)
		if _, err := Synthesize(Bell, p); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestMemoryCacheReusesRenders(t *testing.T) {
	c := NewMemoryCache()
	p := DefaultParams(testRate)
	p.DurationS = 0.25

	a, err := c.GetOrGenerate(Bell, p)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := c.GetOrGenerate(Bell, p)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if &a[0] != &b[0] {
		t.Error("second lookup re-rendered instead of reusing the cache")
	}
	if c.Len() != 1 {
		t.Errorf("cache holds %d items, want 1", c.Len())
	}

	p.Seed = 2
	if _, err := c.GetOrGenerate(Bell, p); err != nil {
		t.Fatalf("third: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("cache holds %d items, want 2 after distinct params", c.Len())
	}
}
