package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/entrainlab/entrain/binaural"
	"github.com/entrainlab/entrain/internal/fault"
	"github.com/entrainlab/entrain/internal/wavio"
	"github.com/entrainlab/entrain/master"
	"github.com/entrainlab/entrain/mix"
	"github.com/entrainlab/entrain/sfx"
	"github.com/entrainlab/entrain/stage"
	"github.com/entrainlab/entrain/stem"
	"github.com/entrainlab/entrain/timeline"
)

// Deliverable bit depths: a 24-bit archival master and a 16-bit
// distribution copy.
const (
	archivalBitDepth     = 24
	distributionBitDepth = 16
)

// Result reports what a run produced.
type Result struct {
	ArchivalPath     string
	DistributionPath string
	PremixPath       string

	Mastering *master.Result
	Warnings  []error
}

// Pipeline renders session documents. The effect cache is shared across
// runs so repeated renders of the same session reuse effect audio.
type Pipeline struct {
	cache sfx.Cache
	log   *logrus.Entry
}

// NewPipeline builds a pipeline with the given effect cache; a nil cache
// gets an in-process one.
func NewPipeline(cache sfx.Cache) *Pipeline {
	if cache == nil {
		cache = sfx.NewMemoryCache()
	}
	return &Pipeline{
		cache: cache,
		log:   logrus.WithField("component", "session"),
	}
}

// Run renders the document end to end. Stems render concurrently; the
// first fatal error cancels the run and no output files are produced.
// Non-fatal warnings (clipping before mastering) are collected in the
// result.
func (p *Pipeline) Run(ctx context.Context, doc *Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	log := p.log.WithField("session", doc.Name)
	log.WithField("stems", len(doc.Stems)).Info("render started")

	stems, err := p.renderStems(ctx, doc)
	if err != nil {
		return nil, err
	}

	if doc.Masking != nil && doc.Masking.Enabled {
		if err := applyMasking(stems, doc); err != nil {
			return nil, err
		}
	}

	mixed, err := mix.Mix(stems, doc.mixConfig())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	program := mixed.Samples
	if len(doc.Stages) > 0 {
		stageTL, err := timeline.StageTimelineFromDocs(doc.Stages, doc.StageTransitionS)
		if err != nil {
			return nil, err
		}
		proc, err := stage.NewProcessor(stageTL, doc.SampleRate)
		if err != nil {
			return nil, err
		}
		program, err = proc.Process(program)
		if err != nil {
			return nil, err
		}
	}

	masterCfg, err := doc.masterConfig()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mastered, err := master.Master(program, doc.SampleRate, masterCfg)
	if err != nil {
		return nil, err
	}

	res := &Result{Mastering: mastered, Warnings: mixed.Warnings}
	if err := p.writeOutputs(doc, mastered.Samples, program, res); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"output_lufs": mastered.OutputLUFS,
		"output_dbtp": mastered.OutputDBTP,
		"warnings":    len(res.Warnings),
	}).Info("render complete")
	return res, nil
}

// renderStems materializes every declared stem concurrently.
func (p *Pipeline) renderStems(ctx context.Context, doc *Document) ([]*stem.Stem, error) {
	stems := make([]*stem.Stem, len(doc.Stems))
	errs := make([]error, len(doc.Stems))

	var wg sync.WaitGroup
	for i := range doc.Stems {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			stems[i], errs[i] = p.renderStem(doc, &doc.Stems[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return stems, nil
}

func (p *Pipeline) renderStem(doc *Document, sd *StemDoc) (*stem.Stem, error) {
	var (
		s   *stem.Stem
		err error
	)
	switch sd.Source {
	case SourceWAV:
		s, err = p.loadWAVStem(doc, sd)
	case SourceBinaural:
		s, err = p.synthBinauralStem(doc, sd)
	case SourceEffect:
		s, err = p.effectStem(doc, sd)
	default:
		return nil, fault.Validation("session document", "stem %q: unknown source %q", sd.Name, sd.Source)
	}
	if err != nil {
		return nil, err
	}
	s.GainDB = sd.GainDB
	s.SidechainTrigger = sd.SidechainTrigger
	s.SidechainTarget = sd.SidechainTarget
	p.log.WithFields(logrus.Fields{
		"stem":   sd.Name,
		"source": sd.Source,
		"frames": s.Frames(),
	}).Debug("stem ready")
	return s, nil
}

func (p *Pipeline) loadWAVStem(doc *Document, sd *StemDoc) (*stem.Stem, error) {
	samples, rate, err := wavio.ReadStereo(sd.Path)
	if err != nil {
		return nil, err
	}
	samples, err = wavio.ResampleStereo(samples, rate, doc.SampleRate)
	if err != nil {
		return nil, err
	}
	// The decoder normalizes by stored bit depth already; the declared
	// format gates the range sanity check in the stem constructor.
	format, err := stemFormat(sd.Format)
	if err != nil {
		return nil, err
	}
	if format == stem.FormatFloat32 {
		return stem.FromFloat32(sd.Name, samples, doc.SampleRate, 2)
	}
	raw := make([]float64, len(samples))
	scale := 32768.0
	if format == stem.FormatInt32 {
		scale = 2147483648.0
	}
	for i, v := range samples {
		raw[i] = float64(v) * scale
	}
	return stem.FromRaw(sd.Name, raw, format, doc.SampleRate, 2)
}

func (p *Pipeline) synthBinauralStem(doc *Document, sd *StemDoc) (*stem.Stem, error) {
	tl, err := timeline.FrequencyTimelineFromDocs(doc.FrequencyTimeline)
	if err != nil {
		return nil, err
	}
	cfg, err := doc.binauralConfig()
	if err != nil {
		return nil, err
	}
	samples, err := binaural.Synthesize(tl, cfg)
	if err != nil {
		return nil, err
	}
	return stem.FromFloat32(sd.Name, samples, doc.SampleRate, 2)
}

func (p *Pipeline) effectStem(doc *Document, sd *StemDoc) (*stem.Stem, error) {
	kind, err := sfx.KindFromName(sd.Effect.Kind)
	if err != nil {
		return nil, err
	}
	samples, err := p.cache.GetOrGenerate(kind, doc.effectParams(sd.Effect))
	if err != nil {
		return nil, err
	}
	return stem.FromFloat32(sd.Name, samples, doc.SampleRate, 2)
}

// applyMasking carves the voice stem's dominant band out of every other
// stem before mixing, tracking the voice's energy so the carve lifts in
// pauses.
func applyMasking(stems []*stem.Stem, doc *Document) error {
	var voice *stem.Stem
	for _, s := range stems {
		if s.Name == doc.Masking.VoiceStem {
			voice = s
			break
		}
	}
	if voice == nil {
		return fault.Validation("session document", "masking voice stem %q not rendered", doc.Masking.VoiceStem)
	}
	band, ok, err := stage.AnalyzeMaskingBand(voice.StereoSamples(), doc.SampleRate)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	voiceSamples := voice.StereoSamples()
	for _, s := range stems {
		if s == voice {
			continue
		}
		st := s.StereoSamples()
		stage.ApplyMaskingCutTracked(st, doc.SampleRate, band, voiceSamples)
		s.Samples = st
		s.Channels = 2
	}
	return nil
}

// writeOutputs encodes the deliverables through a temp-file rename, so a
// failed run never leaves a truncated WAV at the destination path.
func (p *Pipeline) writeOutputs(doc *Document, samples, premix []float32, res *Result) error {
	dir := doc.Output.Directory
	if dir == "" {
		dir = "."
	}
	archival := filepath.Join(dir, doc.Output.Basename+".wav")
	distribution := filepath.Join(dir, doc.Output.Basename+"-16bit.wav")

	if err := writeAtomic(archival, samples, doc.SampleRate, archivalBitDepth); err != nil {
		return err
	}
	if err := writeAtomic(distribution, samples, doc.SampleRate, distributionBitDepth); err != nil {
		os.Remove(archival)
		return err
	}
	res.ArchivalPath = archival
	res.DistributionPath = distribution

	if doc.Output.WritePremix {
		path := filepath.Join(dir, doc.Output.Basename+"-premix.wav")
		if err := writeAtomic(path, premix, doc.SampleRate, archivalBitDepth); err != nil {
			os.Remove(archival)
			os.Remove(distribution)
			return err
		}
		res.PremixPath = path
	}
	return nil
}

func writeAtomic(path string, samples []float32, sampleRate, bitDepth int) error {
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if err := wavio.WriteStereo(tmp, samples, sampleRate, bitDepth); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fault.IO(path, err)
	}
	return nil
}

func stemFormat(name string) (stem.SampleFormat, error) {
	switch name {
	case "", "float32":
		return stem.FormatFloat32, nil
	case "int16":
		return stem.FormatInt16, nil
	case "int32":
		return stem.FormatInt32, nil
	}
	return 0, fault.Validation("session document", "unknown sample format %q", name)
}
