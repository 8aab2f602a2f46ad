// Package session ties the engine together: it parses a session document,
// renders every stem, mixes, stage-processes, masters, and writes the
// deliverables.
package session

import (
	"encoding/json"
	"os"

	"github.com/entrainlab/entrain/binaural"
	"github.com/entrainlab/entrain/internal/fault"
	"github.com/entrainlab/entrain/master"
	"github.com/entrainlab/entrain/mix"
	"github.com/entrainlab/entrain/sfx"
	"github.com/entrainlab/entrain/timeline"
)

// Stem sources. A wav stem reads from disk, a binaural stem is synthesized
// from the frequency timeline, an effect stem is generated by the sfx
// package.
const (
	SourceWAV      = "wav"
	SourceBinaural = "binaural"
	SourceEffect   = "effect"
)

// Document is the JSON session description. Everything needed to render a
// session deterministically lives here.
type Document struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`

	// TargetDurationS pins the session length; stems running past it are
	// truncated at mix time. Zero means the longest stem decides.
	TargetDurationS float64 `json:"target_duration_s"`

	FrequencyTimeline []timeline.EventDoc `json:"frequency_timeline"`
	Stages            []timeline.StageDoc `json:"stages"`
	StageTransitionS  float64             `json:"stage_transition_s"`

	Binaural *BinauralDoc `json:"binaural"`
	Stems    []StemDoc    `json:"stems"`

	Sidechain *SidechainDoc `json:"sidechain"`
	Masking   *MaskingDoc   `json:"masking"`
	Master    MasterDoc     `json:"master"`

	Output OutputDoc `json:"output"`
}

// BinauralDoc overrides binaural synthesis defaults. Pointer fields apply
// only when present, so documents state just what they change.
type BinauralDoc struct {
	CarrierHz     *float64     `json:"carrier_hz"`
	FadeInS       *float64     `json:"fade_in_s"`
	FadeOutS      *float64     `json:"fade_out_s"`
	NormalizePeak *float64     `json:"normalize_peak"`
	Sublayer      *SublayerDoc `json:"sublayer"`
}

type SublayerDoc struct {
	Enabled         bool     `json:"enabled"`
	CarrierOffsetHz *float64 `json:"carrier_offset_hz"`
	BeatHz          *float64 `json:"beat_hz"`
	LevelDB         *float64 `json:"level_db"`
	FadeInS         *float64 `json:"fade_in_s"`
}

// StemDoc declares one stem of the mix.
type StemDoc struct {
	Name   string `json:"name"`
	Source string `json:"source"`

	// wav source
	Path   string `json:"path"`
	Format string `json:"format"` // int16, int32, float32; defaults to float32

	// effect source
	Effect *EffectDoc `json:"effect"`

	GainDB           float64 `json:"gain_db"`
	SidechainTrigger bool    `json:"sidechain_trigger"`
	SidechainTarget  bool    `json:"sidechain_target"`
}

type EffectDoc struct {
	Kind      string  `json:"kind"`
	DurationS float64 `json:"duration_s"`
	BaseHz    float64 `json:"base_hz"`
	Intensity float64 `json:"intensity"`
	Seed      int64   `json:"seed"`
}

type SidechainDoc struct {
	ThresholdDB *float64 `json:"threshold_db"`
	Ratio       *float64 `json:"ratio"`
	AttackMs    *float64 `json:"attack_ms"`
	ReleaseMs   *float64 `json:"release_ms"`
}

// MaskingDoc enables spectral unmasking of the named voice stem against the
// rest of the bed.
type MaskingDoc struct {
	Enabled   bool   `json:"enabled"`
	VoiceStem string `json:"voice_stem"`
}

// MasterDoc picks a preset and optionally overrides its targets. Any
// eq_bands replace the preset's corrective bands wholesale.
type MasterDoc struct {
	Preset      string      `json:"preset"`
	TargetLUFS  *float64    `json:"target_lufs"`
	CeilingDBTP *float64    `json:"ceiling_dbtp"`
	EQBands     []EQBandDoc `json:"eq_bands"`
}

type EQBandDoc struct {
	CenterHz     float64 `json:"center_hz"`
	GainDB       float64 `json:"gain_db"`
	BandwidthOct float64 `json:"bandwidth"`
}

type OutputDoc struct {
	Directory string `json:"directory"`
	Basename  string `json:"basename"`

	// WritePremix also emits the pre-master program as a deliverable,
	// useful when reviewing what the mastering chain was handed.
	WritePremix bool `json:"write_premix"`
}

// Load reads and eagerly validates a session document. Every timeline,
// preset, and stem declaration is checked before any audio is rendered, so
// a bad document fails in milliseconds, not after minutes of synthesis.
func Load(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IO(path, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fault.Validation("session document", "%s: %v", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the whole document without rendering anything.
func (d *Document) Validate() error {
	const component = "session document"
	if d.Name == "" {
		return fault.Validation(component, "empty session name")
	}
	if d.SampleRate == 0 {
		d.SampleRate = 48000
	}
	if d.SampleRate < 8000 {
		return fault.Validation(component, "sample rate %d below 8000", d.SampleRate)
	}
	if len(d.Stems) == 0 {
		return fault.Validation(component, "no stems declared")
	}
	if d.Output.Basename == "" {
		return fault.Validation(component, "output basename required")
	}

	needsTimeline := false
	names := make(map[string]bool, len(d.Stems))
	for i := range d.Stems {
		s := &d.Stems[i]
		if s.Name == "" {
			return fault.Validation(component, "stem %d: empty name", i)
		}
		if names[s.Name] {
			return fault.Validation(component, "duplicate stem name %q", s.Name)
		}
		names[s.Name] = true
		switch s.Source {
		case SourceWAV:
			if s.Path == "" {
				return fault.Validation(component, "stem %q: wav source needs a path", s.Name)
			}
			if _, err := stemFormat(s.Format); err != nil {
				return err
			}
		case SourceBinaural:
			needsTimeline = true
		case SourceEffect:
			if s.Effect == nil {
				return fault.Validation(component, "stem %q: effect source needs effect settings", s.Name)
			}
			if _, err := sfx.KindFromName(s.Effect.Kind); err != nil {
				return err
			}
			p := d.effectParams(s.Effect)
			if err := p.Validate(); err != nil {
				return err
			}
		default:
			return fault.Validation(component, "stem %q: unknown source %q", s.Name, s.Source)
		}
	}

	if needsTimeline || len(d.FrequencyTimeline) > 0 {
		if _, err := timeline.FrequencyTimelineFromDocs(d.FrequencyTimeline); err != nil {
			return err
		}
	}
	if len(d.Stages) > 0 {
		if _, err := timeline.StageTimelineFromDocs(d.Stages, d.StageTransitionS); err != nil {
			return err
		}
	}
	if d.Masking != nil && d.Masking.Enabled {
		if !names[d.Masking.VoiceStem] {
			return fault.Validation(component, "masking voice stem %q not declared", d.Masking.VoiceStem)
		}
	}
	if err := d.mixConfig().Validate(); err != nil {
		return err
	}
	if _, err := d.masterConfig(); err != nil {
		return err
	}
	if _, err := d.binauralConfig(); err != nil {
		return err
	}
	return nil
}

func (d *Document) effectParams(e *EffectDoc) sfx.Params {
	p := sfx.DefaultParams(d.SampleRate)
	if e.DurationS > 0 {
		p.DurationS = e.DurationS
	}
	if e.BaseHz > 0 {
		p.BaseHz = e.BaseHz
	}
	if e.Intensity > 0 {
		p.Intensity = e.Intensity
	}
	if e.Seed != 0 {
		p.Seed = e.Seed
	}
	return p
}

func (d *Document) binauralConfig() (binaural.Config, error) {
	cfg := binaural.DefaultConfig()
	cfg.SampleRate = d.SampleRate
	if b := d.Binaural; b != nil {
		if b.CarrierHz != nil {
			cfg.CarrierHz = *b.CarrierHz
		}
		if b.FadeInS != nil {
			cfg.FadeInS = *b.FadeInS
		}
		if b.FadeOutS != nil {
			cfg.FadeOutS = *b.FadeOutS
		}
		if b.NormalizePeak != nil {
			cfg.NormalizePeak = *b.NormalizePeak
		}
		if s := b.Sublayer; s != nil {
			cfg.Sublayer.Enabled = s.Enabled
			if s.CarrierOffsetHz != nil {
				cfg.Sublayer.CarrierOffsetHz = *s.CarrierOffsetHz
			}
			if s.BeatHz != nil {
				cfg.Sublayer.BeatHz = *s.BeatHz
			}
			if s.LevelDB != nil {
				cfg.Sublayer.LevelDB = *s.LevelDB
			}
			if s.FadeInS != nil {
				cfg.Sublayer.FadeInS = *s.FadeInS
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return binaural.Config{}, fault.Validation("session document", "binaural: %v", err)
	}
	return cfg, nil
}

func (d *Document) mixConfig() mix.Config {
	cfg := mix.Config{
		SampleRate:      d.SampleRate,
		Sidechain:       mix.DefaultSidechain(),
		TargetDurationS: d.TargetDurationS,
	}
	if s := d.Sidechain; s != nil {
		if s.ThresholdDB != nil {
			cfg.Sidechain.ThresholdDB = *s.ThresholdDB
		}
		if s.Ratio != nil {
			cfg.Sidechain.Ratio = *s.Ratio
		}
		if s.AttackMs != nil {
			cfg.Sidechain.AttackMs = *s.AttackMs
		}
		if s.ReleaseMs != nil {
			cfg.Sidechain.ReleaseMs = *s.ReleaseMs
		}
	}
	return cfg
}

func (d *Document) masterConfig() (master.Config, error) {
	cfg, err := master.Preset(d.Master.Preset)
	if err != nil {
		return master.Config{}, err
	}
	if d.Master.TargetLUFS != nil {
		cfg.TargetLUFS = *d.Master.TargetLUFS
	}
	if d.Master.CeilingDBTP != nil {
		cfg.CeilingDBTP = *d.Master.CeilingDBTP
	}
	if len(d.Master.EQBands) > 0 {
		cfg.Bands = make([]master.EQBand, len(d.Master.EQBands))
		for i, b := range d.Master.EQBands {
			cfg.Bands[i] = master.EQBand{CenterHz: b.CenterHz, GainDB: b.GainDB, BandwidthOct: b.BandwidthOct}
		}
	}
	if err := cfg.Validate(); err != nil {
		return master.Config{}, err
	}
	return cfg, nil
}
