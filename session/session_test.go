package session

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrainlab/entrain/internal/fault"
	"github.com/entrainlab/entrain/internal/wavio"
	"github.com/entrainlab/entrain/timeline"
)

const testRate = 8000

func writeToneWAV(t *testing.T, path string, freq, amp float64, seconds float64) {
	t.Helper()
	frames := int(seconds * testRate)
	data := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
		data[i*2] = v
		data[i*2+1] = v
	}
	require.NoError(t, wavio.WriteStereo(path, data, testRate, 16))
}

func testDocument(t *testing.T, dir string) *Document {
	t.Helper()
	tonePath := filepath.Join(dir, "bed.wav")
	writeToneWAV(t, tonePath, 220, 0.4, 20)

	return &Document{
		Name:       "evening-descent",
		SampleRate: testRate,
		FrequencyTimeline: []timeline.EventDoc{
			{Timestamp: 0, Duration: 10, FrequencyStart: 10, TransitionType: "hold"},
			{Timestamp: 10, Duration: 10, FrequencyStart: 10, FrequencyEnd: 6, TransitionType: "linear"},
		},
		Stages: []timeline.StageDoc{
			{Name: "induction", StartTime: 0, EndTime: 10},
			{Name: "deepening", StartTime: 10, EndTime: 20, GainDB: -3},
		},
		Stems: []StemDoc{
			{Name: "beat", Source: SourceBinaural, GainDB: -6, SidechainTarget: true},
			{Name: "bed", Source: SourceWAV, Path: tonePath, Format: "float32", GainDB: -6},
			{Name: "chime", Source: SourceEffect, GainDB: -12,
				Effect: &EffectDoc{Kind: "bell", DurationS: 2, BaseHz: 660, Intensity: 0.4}},
		},
		Master: MasterDoc{Preset: "flat"},
		Output: OutputDoc{Directory: dir, Basename: "evening-descent"},
	}
}

func TestRunProducesBothDeliverables(t *testing.T) {
	dir := t.TempDir()
	doc := testDocument(t, dir)

	res, err := NewPipeline(nil).Run(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "evening-descent.wav"), res.ArchivalPath)
	assert.Equal(t, filepath.Join(dir, "evening-descent-16bit.wav"), res.DistributionPath)

	for _, path := range []string{res.ArchivalPath, res.DistributionPath} {
		samples, rate, err := wavio.ReadStereo(path)
		require.NoError(t, err, path)
		assert.Equal(t, testRate, rate, path)
		assert.Equal(t, 20*testRate*2, len(samples), path)
	}

	require.NotNil(t, res.Mastering)
	assert.InDelta(t, -16.0, res.Mastering.OutputLUFS, 0.5)
	assert.LessOrEqual(t, res.Mastering.OutputDBTP, -1.9)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), e.Name())
	}
}

func TestRunWritesPremixAndPinsDuration(t *testing.T) {
	dir := t.TempDir()
	doc := testDocument(t, dir)
	doc.TargetDurationS = 15
	doc.Output.WritePremix = true

	res, err := NewPipeline(nil).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "evening-descent-premix.wav"), res.PremixPath)
	for _, path := range []string{res.ArchivalPath, res.DistributionPath, res.PremixPath} {
		samples, rate, err := wavio.ReadStereo(path)
		require.NoError(t, err, path)
		assert.Equal(t, testRate, rate, path)
		assert.Equal(t, 15*testRate*2, len(samples), path)
	}

	// The premix is the program before loudness normalization, so the two
	// deliverables should differ in level.
	premix, _, err := wavio.ReadStereo(res.PremixPath)
	require.NoError(t, err)
	final, _, err := wavio.ReadStereo(res.ArchivalPath)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(peakOf(final)-peakOf(premix)), 1e-3)
}

func peakOf(samples []float32) float64 {
	peak := 0.0
	for _, v := range samples {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	return peak
}

func TestRunRespectsCancellation(t *testing.T) {
	dir := t.TempDir()
	doc := testDocument(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPipeline(nil).Run(ctx, doc)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "evening-descent.wav"))
	assert.True(t, os.IsNotExist(statErr), "cancelled run must not write output")
}

func TestRunFailsWithoutOutputOnMissingStem(t *testing.T) {
	dir := t.TempDir()
	doc := testDocument(t, dir)
	doc.Stems[1].Path = filepath.Join(dir, "does-not-exist.wav")

	_, err := NewPipeline(nil).Run(context.Background(), doc)
	var ioErr *fault.IOError
	require.ErrorAs(t, err, &ioErr)

	_, statErr := os.Stat(filepath.Join(dir, "evening-descent.wav"))
	assert.True(t, os.IsNotExist(statErr), "failed run must not write output")
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name   string
		mutate func(*Document)
	}{
		{"empty name", func(d *Document) { d.Name = "" }},
		{"no stems", func(d *Document) { d.Stems = nil }},
		{"duplicate stem", func(d *Document) { d.Stems[1].Name = d.Stems[0].Name }},
		{"unknown source", func(d *Document) { d.Stems[0].Source = "stream" }},
		{"wav without path", func(d *Document) { d.Stems[1].Path = "" }},
		{"unknown format", func(d *Document) { d.Stems[1].Format = "pcm8" }},
		{"effect without settings", func(d *Document) { d.Stems[2].Effect = nil }},
		{"unknown effect kind", func(d *Document) { d.Stems[2].Effect.Kind = "laser" }},
		{"missing basename", func(d *Document) { d.Output.Basename = "" }},
		{"gapped timeline", func(d *Document) { d.FrequencyTimeline[1].Timestamp = 11 }},
		{"gapped stages", func(d *Document) { d.Stages[1].StartTime = 12 }},
		{"masking names unknown stem", func(d *Document) {
			d.Masking = &MaskingDoc{Enabled: true, VoiceStem: "narration"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := testDocument(t, dir)
			tc.mutate(doc)
			assert.Error(t, doc.Validate())
		})
	}
}

func TestValidateRejectsUnknownPreset(t *testing.T) {
	doc := testDocument(t, t.TempDir())
	doc.Master.Preset = "loudness-war"
	err := doc.Validate()
	var cerr *fault.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadParsesDocumentFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeToneWAV(t, filepath.Join(dir, "bed.wav"), 220, 0.4, 20)

	docJSON := `{
		"name": "from-disk",
		"sample_rate": 8000,
		"frequency_timeline": [
			{"timestamp": 0, "duration": 20, "frequency_start": 8, "transition_type": "hold"}
		],
		"stems": [
			{"name": "beat", "source": "binaural", "gain_db": -6},
			{"name": "bed", "source": "wav", "path": "` + filepath.ToSlash(filepath.Join(dir, "bed.wav")) + `", "gain_db": -6}
		],
		"master": {"preset": "deep-theta"},
		"output": {"directory": "` + filepath.ToSlash(dir) + `", "basename": "from-disk"}
	}`
	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(path, []byte(docJSON), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-disk", doc.Name)
	assert.Len(t, doc.Stems, 2)

	_, err = Load(filepath.Join(dir, "missing.json"))
	var ioErr *fault.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestMaskingCarvesBedUnderVoice(t *testing.T) {
	dir := t.TempDir()
	// "Voice" is a 1 kHz tone; the bed holds equal energy at 1 kHz.
	voicePath := filepath.Join(dir, "voice.wav")
	bedPath := filepath.Join(dir, "bed.wav")
	writeToneWAV(t, voicePath, 1000, 0.4, 10)
	writeToneWAV(t, bedPath, 1000, 0.4, 10)

	doc := &Document{
		Name:       "masked",
		SampleRate: testRate,
		Stems: []StemDoc{
			{Name: "voice", Source: SourceWAV, Path: voicePath, GainDB: -10},
			{Name: "bed", Source: SourceWAV, Path: bedPath, GainDB: -10},
		},
		Masking: &MaskingDoc{Enabled: true, VoiceStem: "voice"},
		Master:  MasterDoc{Preset: "flat"},
		Output:  OutputDoc{Directory: dir, Basename: "masked"},
	}
	require.NoError(t, doc.Validate())

	p := NewPipeline(nil)
	stems, err := p.renderStems(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, applyMasking(stems, doc))

	rms := func(s []float32) float64 {
		sum := 0.0
		for _, v := range s {
			sum += float64(v) * float64(v)
		}
		return math.Sqrt(sum / float64(len(s)))
	}
	voiceRMS := rms(stems[0].Samples[testRate:])
	bedRMS := rms(stems[1].Samples[testRate:])
	cutDB := 20 * math.Log10(bedRMS/voiceRMS)
	assert.InDelta(t, -6.0, cutDB, 1.0, "bed should be carved ~6 dB under the voice band")
}
