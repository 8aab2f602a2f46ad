package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/entrainlab/entrain/binaural"
	"github.com/entrainlab/entrain/internal/wavio"
	"github.com/entrainlab/entrain/timeline"
)

func main() {
	cfg := binaural.DefaultConfig()

	output := flag.String("output", "binaural.wav", "Output WAV path")
	timelinePath := flag.String("timeline", "", "Frequency timeline JSON path (required)")
	bitDepth := flag.Int("bit-depth", 24, "Output bit depth (16 or 24)")
	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Output sample rate")
	flag.Float64Var(&cfg.CarrierHz, "carrier", cfg.CarrierHz, "Carrier frequency in Hz")
	flag.Float64Var(&cfg.FadeInS, "fade-in", cfg.FadeInS, "Edge fade-in length (s)")
	flag.Float64Var(&cfg.FadeOutS, "fade-out", cfg.FadeOutS, "Edge fade-out length (s)")
	flag.Float64Var(&cfg.NormalizePeak, "normalize", cfg.NormalizePeak, "Peak normalization target")
	flag.BoolVar(&cfg.Sublayer.Enabled, "sublayer", cfg.Sublayer.Enabled, "Enable the secondary layer")
	flag.Float64Var(&cfg.Sublayer.CarrierOffsetHz, "sublayer-offset", cfg.Sublayer.CarrierOffsetHz, "Sublayer carrier offset in Hz")
	flag.Float64Var(&cfg.Sublayer.BeatHz, "sublayer-beat", cfg.Sublayer.BeatHz, "Sublayer beat frequency in Hz")
	flag.Float64Var(&cfg.Sublayer.LevelDB, "sublayer-level", cfg.Sublayer.LevelDB, "Sublayer level in dB")
	flag.Parse()

	if *timelinePath == "" {
		fmt.Fprintln(os.Stderr, "binaural-gen: -timeline is required")
		flag.Usage()
		os.Exit(1)
	}

	tl, err := timeline.LoadFrequencyTimeline(*timelinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binaural-gen error: %v\n", err)
		os.Exit(1)
	}

	samples, err := binaural.Synthesize(tl, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binaural-gen error: %v\n", err)
		os.Exit(1)
	}

	if err := wavio.WriteStereo(*output, samples, cfg.SampleRate, *bitDepth); err != nil {
		fmt.Fprintf(os.Stderr, "wav write error: %v\n", err)
		os.Exit(1)
	}

	peak, rms := stats(samples)
	fmt.Printf("Wrote %s\n", *output)
	fmt.Printf("SampleRate: %d Hz, Duration: %.3f s, Frames: %d\n",
		cfg.SampleRate, tl.TotalDuration(), len(samples)/2)
	fmt.Printf("Peak: %.6f, RMS: %.6f\n", peak, rms)
}

func stats(samples []float32) (peak, rms float64) {
	var sum float64
	for _, v := range samples {
		a := math.Abs(float64(v))
		if a > peak {
			peak = a
		}
		sum += a * a
	}
	if len(samples) > 0 {
		rms = math.Sqrt(sum / float64(len(samples)))
	}
	return peak, rms
}
