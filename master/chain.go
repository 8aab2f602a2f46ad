package master

import (
	"github.com/sirupsen/logrus"

	"github.com/entrainlab/entrain/dsp"
	"github.com/entrainlab/entrain/internal/fault"
)

// EQBand is one corrective peaking filter in the mastering chain.
type EQBand struct {
	CenterHz     float64
	GainDB       float64
	BandwidthOct float64
}

// Config is one validated mastering setup, usually obtained from a named
// preset and optionally overridden by the session document.
type Config struct {
	TargetLUFS  float64
	CeilingDBTP float64

	LowShelfGainDB  float64
	LowShelfHz      float64
	HighShelfGainDB float64
	HighShelfHz     float64
	Bands           []EQBand

	// MaxLimiterReductionDB bounds how hard the limiter may work after
	// loudness gain. A projected overshoot beyond this means the target
	// loudness and ceiling cannot both hold, which is a config problem
	// to fix upstream, not something to grind through the limiter.
	MaxLimiterReductionDB float64
}

func (c Config) Validate() error {
	if c.TargetLUFS > -5 || c.TargetLUFS < -40 {
		return fault.Config("master", "target %.1f LUFS outside [-40, -5]", c.TargetLUFS)
	}
	if c.CeilingDBTP > 0 || c.CeilingDBTP < -12 {
		return fault.Config("master", "ceiling %.1f dBTP outside [-12, 0]", c.CeilingDBTP)
	}
	if c.LowShelfGainDB != 0 && c.LowShelfHz <= 0 {
		return fault.Config("master", "low shelf frequency must be > 0")
	}
	if c.HighShelfGainDB != 0 && c.HighShelfHz <= 0 {
		return fault.Config("master", "high shelf frequency must be > 0")
	}
	for _, b := range c.Bands {
		if b.CenterHz <= 0 {
			return fault.Config("master", "EQ band center %.1f Hz must be > 0", b.CenterHz)
		}
		if b.BandwidthOct <= 0 {
			return fault.Config("master", "EQ band at %.1f Hz needs a positive bandwidth", b.CenterHz)
		}
	}
	if c.MaxLimiterReductionDB <= 0 {
		return fault.Config("master", "max limiter reduction must be > 0")
	}
	return nil
}

// Result reports what the chain measured and did.
type Result struct {
	Samples []float32

	InputLUFS  float64
	OutputLUFS float64
	InputDBTP  float64
	OutputDBTP float64

	GainDB         float64
	MaxReductionDB float64
}

// Master runs the output chain over an interleaved stereo program: corrective
// EQ, integrated loudness measurement, a single static gain toward the
// target, then the true-peak limiter at the ceiling.
//
// Before applying gain, the chain projects where the true peak will land.
// If honoring the loudness target would push the limiter past
// MaxLimiterReductionDB of sustained reduction, it refuses with a
// ConfigError instead of shipping a crushed master.
func Master(samples []float32, sampleRate int, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	work := make([]float32, len(samples))
	copy(work, samples)
	applyShelves(work, sampleRate, cfg)

	inLUFS, err := IntegratedLUFS(work, sampleRate)
	if err != nil {
		return nil, err
	}
	inTP, err := TruePeakDBTP(work, sampleRate)
	if err != nil {
		return nil, err
	}

	gainDB := cfg.TargetLUFS - inLUFS
	projectedTP := inTP + gainDB
	if over := projectedTP - cfg.CeilingDBTP; over > cfg.MaxLimiterReductionDB {
		return nil, fault.Config("master",
			"target %.1f LUFS needs %.1f dB of gain, projecting %.1f dBTP against a %.1f dBTP ceiling; %.1f dB of limiting exceeds the %.1f dB bound",
			cfg.TargetLUFS, gainDB, projectedTP, cfg.CeilingDBTP, over, cfg.MaxLimiterReductionDB)
	}

	gain := float32(dsp.DBToLin(gainDB))
	for i := range work {
		work[i] *= gain
	}

	// The limiter works on sample peaks; holding it half a dB under the
	// true-peak ceiling absorbs inter-sample overshoot.
	lim, err := NewLimiter(cfg.CeilingDBTP-0.5, sampleRate)
	if err != nil {
		return nil, err
	}
	work = lim.Process(work)

	outLUFS, err := IntegratedLUFS(work, sampleRate)
	if err != nil {
		return nil, err
	}
	outTP, err := TruePeakDBTP(work, sampleRate)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"input_lufs":  inLUFS,
		"output_lufs": outLUFS,
		"gain_db":     gainDB,
		"output_dbtp": outTP,
	}).Info("master chain complete")

	return &Result{
		Samples:        work,
		InputLUFS:      inLUFS,
		OutputLUFS:     outLUFS,
		InputDBTP:      inTP,
		OutputDBTP:     outTP,
		GainDB:         gainDB,
		MaxReductionDB: lim.MaxReductionDB(),
	}, nil
}

func applyShelves(samples []float32, sampleRate int, cfg Config) {
	if cfg.LowShelfGainDB != 0 {
		l := dsp.NewLowShelf(float32(cfg.LowShelfHz), float32(sampleRate), float32(cfg.LowShelfGainDB))
		r := dsp.NewLowShelf(float32(cfg.LowShelfHz), float32(sampleRate), float32(cfg.LowShelfGainDB))
		for i := 0; i+1 < len(samples); i += 2 {
			samples[i] = l.Process(samples[i])
			samples[i+1] = r.Process(samples[i+1])
		}
	}
	if cfg.HighShelfGainDB != 0 {
		l := dsp.NewHighShelf(float32(cfg.HighShelfHz), float32(sampleRate), float32(cfg.HighShelfGainDB))
		r := dsp.NewHighShelf(float32(cfg.HighShelfHz), float32(sampleRate), float32(cfg.HighShelfGainDB))
		for i := 0; i+1 < len(samples); i += 2 {
			samples[i] = l.Process(samples[i])
			samples[i+1] = r.Process(samples[i+1])
		}
	}
	for _, b := range cfg.Bands {
		if b.GainDB == 0 {
			continue
		}
		l := dsp.NewPeaking(float32(b.CenterHz), float32(sampleRate), float32(b.GainDB), float32(b.BandwidthOct))
		r := dsp.NewPeaking(float32(b.CenterHz), float32(sampleRate), float32(b.GainDB), float32(b.BandwidthOct))
		for i := 0; i+1 < len(samples); i += 2 {
			samples[i] = l.Process(samples[i])
			samples[i+1] = r.Process(samples[i+1])
		}
	}
}
