package models

import (
	"fmt"
	"math"
	"time"
)

// Range is a closed interval a coefficient must stay within
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Clamp pins v into the range
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Min
	}
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Coefficients are the learned corrections read by the fusion engine
type Coefficients struct {
	HomeAdvantageBoost      float64 `json:"home_advantage_boost"`
	DrawBoost               float64 `json:"draw_boost"`
	AwayPenalty             float64 `json:"away_penalty"`
	ConfidenceThresholdHome float64 `json:"confidence_threshold_home"`
	ConfidenceThresholdDraw float64 `json:"confidence_threshold_draw"`
	ConfidenceThresholdAway float64 `json:"confidence_threshold_away"`
}

// Threshold returns the confidence threshold configured for an outcome
func (c Coefficients) Threshold(o Outcome) float64 {
	switch o {
	case OutcomeHome:
		return c.ConfidenceThresholdHome
	case OutcomeDraw:
		return c.ConfidenceThresholdDraw
	default:
		return c.ConfidenceThresholdAway
	}
}

// CoefficientBounds declares the valid range of every coefficient
type CoefficientBounds struct {
	HomeAdvantageBoost      Range `json:"home_advantage_boost" yaml:"home_advantage_boost"`
	DrawBoost               Range `json:"draw_boost" yaml:"draw_boost"`
	AwayPenalty             Range `json:"away_penalty" yaml:"away_penalty"`
	ConfidenceThresholdHome Range `json:"confidence_threshold_home" yaml:"confidence_threshold_home"`
	ConfidenceThresholdDraw Range `json:"confidence_threshold_draw" yaml:"confidence_threshold_draw"`
	ConfidenceThresholdAway Range `json:"confidence_threshold_away" yaml:"confidence_threshold_away"`
}

// DefaultCoefficientBounds are the built-in coefficient ranges
func DefaultCoefficientBounds() CoefficientBounds {
	return CoefficientBounds{
		HomeAdvantageBoost:      Range{Min: 0.05, Max: 0.25},
		DrawBoost:               Range{Min: 0, Max: 8},
		AwayPenalty:             Range{Min: 0, Max: 6},
		ConfidenceThresholdHome: Range{Min: 35, Max: 60},
		ConfidenceThresholdDraw: Range{Min: 22, Max: 40},
		ConfidenceThresholdAway: Range{Min: 35, Max: 60},
	}
}

// Clamp pins every coefficient into its declared range
func (b CoefficientBounds) Clamp(c Coefficients) Coefficients {
	return Coefficients{
		HomeAdvantageBoost:      b.HomeAdvantageBoost.Clamp(c.HomeAdvantageBoost),
		DrawBoost:               b.DrawBoost.Clamp(c.DrawBoost),
		AwayPenalty:             b.AwayPenalty.Clamp(c.AwayPenalty),
		ConfidenceThresholdHome: b.ConfidenceThresholdHome.Clamp(c.ConfidenceThresholdHome),
		ConfidenceThresholdDraw: b.ConfidenceThresholdDraw.Clamp(c.ConfidenceThresholdDraw),
		ConfidenceThresholdAway: b.ConfidenceThresholdAway.Clamp(c.ConfidenceThresholdAway),
	}
}

// Validate returns an error naming the first coefficient outside its range
func (b CoefficientBounds) Validate(c Coefficients) error {
	checks := []struct {
		name  string
		value float64
		rng   Range
	}{
		{"home_advantage_boost", c.HomeAdvantageBoost, b.HomeAdvantageBoost},
		{"draw_boost", c.DrawBoost, b.DrawBoost},
		{"away_penalty", c.AwayPenalty, b.AwayPenalty},
		{"confidence_threshold_home", c.ConfidenceThresholdHome, b.ConfidenceThresholdHome},
		{"confidence_threshold_draw", c.ConfidenceThresholdDraw, b.ConfidenceThresholdDraw},
		{"confidence_threshold_away", c.ConfidenceThresholdAway, b.ConfidenceThresholdAway},
	}
	for _, ch := range checks {
		if !ch.rng.Contains(ch.value) {
			return fmt.Errorf("%s=%.4f outside [%.4f, %.4f]", ch.name, ch.value, ch.rng.Min, ch.rng.Max)
		}
	}
	return nil
}

// DefaultCoefficients are the built-in starting coefficients
func DefaultCoefficients() Coefficients {
	return Coefficients{
		HomeAdvantageBoost:      0.12,
		DrawBoost:               0,
		AwayPenalty:             0,
		ConfidenceThresholdHome: 45,
		ConfidenceThresholdDraw: 30,
		ConfidenceThresholdAway: 45,
	}
}

// LeagueOverride replaces the global coefficients for one league
type LeagueOverride struct {
	Coefficients
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CorrectionState is the persisted set of bounded learned corrections.
// Only the learning engine writes it.
type CorrectionState struct {
	Global      Coefficients              `json:"global"`
	Leagues     map[string]LeagueOverride `json:"leagues"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// DefaultCorrectionState is used on first start and whenever persisted state is unreadable
func DefaultCorrectionState() CorrectionState {
	return CorrectionState{
		Global:  DefaultCoefficients(),
		Leagues: make(map[string]LeagueOverride),
	}
}

// For resolves the effective coefficients for a league
func (s CorrectionState) For(league string) Coefficients {
	if o, ok := s.Leagues[league]; ok {
		return o.Coefficients
	}
	return s.Global
}

// Clone returns a deep copy so callers can mutate without touching a shared snapshot
func (s CorrectionState) Clone() CorrectionState {
	out := s
	out.Leagues = make(map[string]LeagueOverride, len(s.Leagues))
	for k, v := range s.Leagues {
		out.Leagues[k] = v
	}
	return out
}

// ImprovementEntry records one committed version bump
type ImprovementEntry struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Delta     float64   `json:"delta"`
}

// ModelVersion tracks the semantic version and accuracy history of the model.
// Only the evolution controller writes it.
type ModelVersion struct {
	Major                 int                `json:"major"`
	Minor                 int                `json:"minor"`
	Patch                 int                `json:"patch"`
	Build                 int                `json:"build"`
	CurrentAccuracy       float64            `json:"current_accuracy"`
	BestAccuracy          float64            `json:"best_accuracy"`
	LastTraining          *time.Time         `json:"last_training,omitempty"`
	TotalTrainingSessions int                `json:"total_training_sessions"`
	ImprovementLog        []ImprovementEntry `json:"improvement_log"`
}

// DefaultModelVersion is the version of a freshly installed model
func DefaultModelVersion() ModelVersion {
	return ModelVersion{Major: 1}
}

// String renders the version as major.minor.patch.build
func (v ModelVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.Build)
}

// Clone returns a deep copy of the version
func (v ModelVersion) Clone() ModelVersion {
	out := v
	if v.LastTraining != nil {
		t := *v.LastTraining
		out.LastTraining = &t
	}
	out.ImprovementLog = append([]ImprovementEntry(nil), v.ImprovementLog...)
	return out
}

// AppendImprovement adds an entry and keeps only the most recent limit entries
func (v *ModelVersion) AppendImprovement(e ImprovementEntry, limit int) {
	v.ImprovementLog = append(v.ImprovementLog, e)
	if limit > 0 && len(v.ImprovementLog) > limit {
		v.ImprovementLog = append([]ImprovementEntry(nil), v.ImprovementLog[len(v.ImprovementLog)-limit:]...)
	}
}

// VersionInfo is the read-only view of the model version exposed to callers
type VersionInfo struct {
	Version         string     `json:"version"`
	CurrentAccuracy float64    `json:"current_accuracy"`
	BestAccuracy    float64    `json:"best_accuracy"`
	LastTraining    *time.Time `json:"last_training"`
	IsEvolving      bool       `json:"is_evolving"`
}

// Correction is one change applied by the learning engine
type Correction struct {
	Type   string  `json:"type"`
	Reason string  `json:"reason"`
	Action string  `json:"action"`
	League string  `json:"league,omitempty"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// ClassAccuracy is a hit count for one slice of predictions
type ClassAccuracy struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Add records one prediction in the slice
func (c *ClassAccuracy) Add(correct bool) {
	c.Total++
	if correct {
		c.Correct++
	}
	c.Accuracy = float64(c.Correct) / float64(c.Total)
}

// AccuracySummary aggregates a learning batch
type AccuracySummary struct {
	Total               int                       `json:"total"`
	Correct             int                       `json:"correct"`
	Accuracy            float64                   `json:"accuracy"`
	ByClass             map[Outcome]ClassAccuracy `json:"by_class"`
	ByLeague            map[string]ClassAccuracy  `json:"by_league"`
	MissedDraws         int                       `json:"missed_draws"`
	FavoriteUpsets      int                       `json:"favorite_upsets"`
	HighConfidenceHome  int                       `json:"high_confidence_home"`
	HighConfidence      int                       `json:"high_confidence"`
	HighConfidenceWrong int                       `json:"high_confidence_wrong"`
}

// CorrectionsAppliedReport describes what a learning run changed
type CorrectionsAppliedReport struct {
	Corrections          []Correction    `json:"corrections"`
	EstimatedNewAccuracy float64         `json:"estimated_new_accuracy"`
	NoData               bool            `json:"no_data,omitempty"`
	Message              string          `json:"message,omitempty"`
	Summary              AccuracySummary `json:"summary"`
}

// RetrainStatus is the structured outcome of a retrain attempt
type RetrainStatus string

const (
	RetrainCommitted      RetrainStatus = "COMMITTED"
	RetrainNoImprovement  RetrainStatus = "NO_IMPROVEMENT"
	RetrainNotEligible    RetrainStatus = "NOT_ELIGIBLE"
	RetrainTrainingFailed RetrainStatus = "TRAINING_FAILED"
	RetrainBusy           RetrainStatus = "BUSY"
)

// RetrainResult reports a retrain attempt to the scheduler or operator
type RetrainResult struct {
	Status         RetrainStatus `json:"status"`
	Reason         string        `json:"reason"`
	Samples        int           `json:"samples"`
	AccuracyBefore float64       `json:"accuracy_before"`
	AccuracyAfter  float64       `json:"accuracy_after"`
	Version        string        `json:"version"`
}
