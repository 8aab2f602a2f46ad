package master

import (
	"sort"
	"strings"

	"github.com/entrainlab/entrain/internal/fault"
)

// DefaultPresetName is used when a session names no mastering preset.
const DefaultPresetName = "flat"

// presets are the named mastering setups shipped with the engine. Streaming
// platforms normalize to around -16 LUFS for spoken-word content, so that is
// the house target; "deep-theta" runs quieter for sleep listening.
var presets = map[string]Config{
	"flat": {
		TargetLUFS:            -16,
		CeilingDBTP:           -2,
		MaxLimiterReductionDB: 12,
	},
	"voice-forward": {
		TargetLUFS:      -16,
		CeilingDBTP:     -2,
		LowShelfGainDB:  -2,
		LowShelfHz:      120,
		HighShelfGainDB: 1.5,
		HighShelfHz:     6000,
		// Tame the boxiness that close-miked narration picks up.
		Bands:                 []EQBand{{CenterHz: 350, GainDB: -1.5, BandwidthOct: 1.5}},
		MaxLimiterReductionDB: 12,
	},
	"deep-theta": {
		TargetLUFS:            -20,
		CeilingDBTP:           -3,
		LowShelfGainDB:        2,
		LowShelfHz:            150,
		HighShelfGainDB:       -3,
		HighShelfHz:           8000,
		MaxLimiterReductionDB: 12,
	},
}

// Preset returns the named mastering config. The error lists the known
// names so a typo in a session document is self-explanatory.
func Preset(name string) (Config, error) {
	if name == "" {
		name = DefaultPresetName
	}
	cfg, ok := presets[name]
	if !ok {
		return Config{}, fault.Config("master", "unknown preset %q (known: %s)",
			name, strings.Join(PresetNames(), ", "))
	}
	return cfg, nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
