package timeline

import (
	"encoding/json"
	"os"

	"github.com/entrainlab/entrain/internal/fault"
)

// EventDoc is the JSON schema for one frequency event.
type EventDoc struct {
	Timestamp      float64        `json:"timestamp"`
	Duration       float64        `json:"duration"`
	FrequencyStart float64        `json:"frequency_start"`
	FrequencyEnd   float64        `json:"frequency_end"`
	TransitionType string         `json:"transition_type"`
	Modulation     *ModulationDoc `json:"modulation"`
	GammaBurst     *GammaBurstDoc `json:"gamma_burst"`
}

// ModulationDoc is the JSON schema for modulation settings.
type ModulationDoc struct {
	Enabled     bool    `json:"enabled"`
	FrequencyHz float64 `json:"frequency_hz"`
	Range       float64 `json:"range"`
}

// GammaBurstDoc is the JSON schema for a nested gamma burst.
type GammaBurstDoc struct {
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
	Frequency float64 `json:"frequency"`
}

// StageDoc is the JSON schema for one stage profile. Width is a pointer so
// an omitted stereo_width_pct means full width; an explicit 0 still means
// mono.
type StageDoc struct {
	Name           string   `json:"name"`
	StartTime      float64  `json:"start_time"`
	EndTime        float64  `json:"end_time"`
	GainDB         float64  `json:"gain_db"`
	LowShelfGainDB float64  `json:"low_shelf_gain_db"`
	ReverbWetPct   float64  `json:"reverb_wet_pct"`
	ReverbDecayS   float64  `json:"reverb_decay_s"`
	StereoWidthPct *float64 `json:"stereo_width_pct"`
}

// FrequencyTimelineFromDocs converts event documents into a validated
// timeline. Missing frequency_end defaults to frequency_start so hold events
// can omit it.
func FrequencyTimelineFromDocs(docs []EventDoc) (*FrequencyTimeline, error) {
	events := make([]FrequencyEvent, 0, len(docs))
	for _, d := range docs {
		end := d.FrequencyEnd
		if end == 0 {
			end = d.FrequencyStart
		}
		ev := FrequencyEvent{
			StartTime:  d.Timestamp,
			Duration:   d.Duration,
			FreqStart:  d.FrequencyStart,
			FreqEnd:    end,
			Transition: Transition(d.TransitionType),
		}
		if m := d.Modulation; m != nil {
			ev.Modulation = &Modulation{Enabled: m.Enabled, FrequencyHz: m.FrequencyHz, Range: m.Range}
		}
		if b := d.GammaBurst; b != nil {
			ev.GammaBurst = &GammaBurst{StartTime: b.Timestamp, Duration: b.Duration, Frequency: b.Frequency}
		}
		events = append(events, ev)
	}
	return NewFrequencyTimeline(events)
}

// StageTimelineFromDocs converts stage documents into a validated timeline.
func StageTimelineFromDocs(docs []StageDoc, transitionS float64) (*StageTimeline, error) {
	stages := make([]StageProfile, 0, len(docs))
	for _, d := range docs {
		width := 100.0
		if d.StereoWidthPct != nil {
			width = *d.StereoWidthPct
		}
		stages = append(stages, StageProfile{
			Name:           d.Name,
			StartTime:      d.StartTime,
			EndTime:        d.EndTime,
			GainDB:         d.GainDB,
			LowShelfGainDB: d.LowShelfGainDB,
			ReverbWetPct:   d.ReverbWetPct,
			ReverbDecayS:   d.ReverbDecayS,
			StereoWidthPct: width,
		})
	}
	return NewStageTimeline(stages, transitionS)
}

// LoadFrequencyTimeline reads a JSON event list from path.
func LoadFrequencyTimeline(path string) (*FrequencyTimeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IO(path, err)
	}
	var docs []EventDoc
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fault.Validation("frequency timeline", "%s: %v", path, err)
	}
	return FrequencyTimelineFromDocs(docs)
}
