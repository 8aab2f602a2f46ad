package timeline

import "github.com/entrainlab/entrain/internal/fault"

// Stage transition windows are fixed per timeline but must stay in this
// range so boundaries are neither audible steps nor minute-long smears.
const (
	MinStageTransitionS     = 2.0
	MaxStageTransitionS     = 5.0
	DefaultStageTransitionS = 3.0
)

// StageProfile is one named phase of the session (induction, journey, ...)
// with its own tone, width, and reverb settings.
type StageProfile struct {
	Name           string
	StartTime      float64
	EndTime        float64
	GainDB         float64
	LowShelfGainDB float64
	ReverbWetPct   float64
	ReverbDecayS   float64
	StereoWidthPct float64
}

// Duration returns the profile's window length in seconds.
func (s *StageProfile) Duration() float64 { return s.EndTime - s.StartTime }

// StageTimeline is an ordered, contiguous sequence of stage profiles with a
// fixed cross-fade window between neighbours.
type StageTimeline struct {
	stages      []StageProfile
	total       float64
	transitionS float64
}

// NewStageTimeline validates profiles the same way the frequency timeline is
// validated: ordered, starting at 0, gapless, no overlaps. transitionS = 0
// selects the default window.
func NewStageTimeline(stages []StageProfile, transitionS float64) (*StageTimeline, error) {
	const component = "stage timeline"
	if len(stages) == 0 {
		return nil, fault.Validation(component, "no stages")
	}
	if transitionS == 0 {
		transitionS = DefaultStageTransitionS
	}
	if transitionS < MinStageTransitionS || transitionS > MaxStageTransitionS {
		return nil, fault.Validation(component, "transition window %.4gs outside [%g, %g]",
			transitionS, MinStageTransitionS, MaxStageTransitionS)
	}

	cursor := 0.0
	for i := range stages {
		s := &stages[i]
		if s.Name == "" {
			return nil, fault.Validation(component, "stage %d: empty name", i)
		}
		if s.Duration() <= 0 {
			return nil, fault.Validation(component, "stage %q: end %.4g not after start %.4g", s.Name, s.EndTime, s.StartTime)
		}
		if d := s.StartTime - cursor; d > timeEps {
			return nil, fault.Validation(component, "gap of %.4gs before stage %q", d, s.Name)
		} else if d < -timeEps {
			return nil, fault.Validation(component, "stage %q overlaps previous by %.4gs", s.Name, -d)
		}
		if s.ReverbWetPct < 0 || s.ReverbWetPct > 100 {
			return nil, fault.Validation(component, "stage %q: reverb wet %.4g%% outside [0, 100]", s.Name, s.ReverbWetPct)
		}
		if s.ReverbWetPct > 0 && s.ReverbDecayS <= 0 {
			return nil, fault.Validation(component, "stage %q: reverb decay must be > 0 when wet > 0", s.Name)
		}
		if s.StereoWidthPct < 0 || s.StereoWidthPct > 200 {
			return nil, fault.Validation(component, "stage %q: stereo width %.4g%% outside [0, 200]", s.Name, s.StereoWidthPct)
		}
		cursor = s.EndTime
	}

	cp := make([]StageProfile, len(stages))
	copy(cp, stages)
	return &StageTimeline{stages: cp, total: cursor, transitionS: transitionS}, nil
}

// Stages returns the validated profiles in order.
func (st *StageTimeline) Stages() []StageProfile { return st.stages }

// TotalDuration returns the timeline's total duration in seconds.
func (st *StageTimeline) TotalDuration() float64 { return st.total }

// TransitionS returns the cross-fade window between adjacent stages.
func (st *StageTimeline) TransitionS() float64 { return st.transitionS }

// Weight returns stage i's contribution in [0,1] at time t. Adjacent stages
// cross-fade over the transition window centered on their shared
// boundary; weights of neighbouring stages sum to 1 everywhere.
func (st *StageTimeline) Weight(i int, t float64) float64 {
	s := &st.stages[i]
	half := st.transitionS / 2.0

	w := 1.0
	if i > 0 {
		w = min(w, rampUp(t, s.StartTime, half))
	}
	if i < len(st.stages)-1 {
		w = min(w, 1.0-rampUp(t, s.EndTime, half))
	}
	if w < 0 {
		w = 0
	}
	return w
}

// rampUp goes 0 -> 1 over [edge-half, edge+half] on a smoothstep curve, so
// complementary ramps of neighbouring stages still sum to 1.
func rampUp(t, edge, half float64) float64 {
	x := (t - (edge - half)) / (2 * half)
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return x * x * (3 - 2*x)
}
