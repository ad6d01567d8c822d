package models

import (
	"math"
	"time"
)

// Outcome is the result category of a match from the home side's point of view
type Outcome string

const (
	OutcomeHome Outcome = "HOME"
	OutcomeDraw Outcome = "DRAW"
	OutcomeAway Outcome = "AWAY"
)

// Outcomes lists every result category in a fixed order
var Outcomes = []Outcome{OutcomeHome, OutcomeDraw, OutcomeAway}

// Valid reports whether o is one of the three known categories
func (o Outcome) Valid() bool {
	return o == OutcomeHome || o == OutcomeDraw || o == OutcomeAway
}

// Index maps an outcome onto 0/1/2, matching the classifier's class order
func (o Outcome) Index() int {
	switch o {
	case OutcomeHome:
		return 0
	case OutcomeDraw:
		return 1
	case OutcomeAway:
		return 2
	}
	return -1
}

// OutcomeFromScore derives the result category from a final score
func OutcomeFromScore(homeGoals, awayGoals int) Outcome {
	switch {
	case homeGoals > awayGoals:
		return OutcomeHome
	case homeGoals < awayGoals:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// Team identifies one side of a fixture
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Absence is an unavailable player and how much the side misses him (0-1)
type Absence struct {
	Name         string  `json:"name"`
	ImpactWeight float64 `json:"impact_weight"`
}

// MatchContext is everything known about a fixture at prediction time
type MatchContext struct {
	MatchID      string    `json:"match_id"`
	HomeTeam     Team      `json:"home_team"`
	AwayTeam     Team      `json:"away_team"`
	League       string    `json:"league"`
	Kickoff      time.Time `json:"kickoff"`
	Referee      string    `json:"referee,omitempty"`
	HomeAbsences []Absence `json:"home_absences,omitempty"`
	AwayAbsences []Absence `json:"away_absences,omitempty"`
}

// SignalName identifies one provider capability
type SignalName string

const (
	SignalStrength SignalName = "strength"
	SignalForm     SignalName = "form"
	SignalGoals    SignalName = "goals"
	SignalDraw     SignalName = "draw_propensity"
	SignalTactical SignalName = "tactical"
	SignalLeague   SignalName = "league_profile"
	SignalReferee  SignalName = "referee"
	SignalAbsence  SignalName = "absence"
)

// SignalOrder is the order in which signals are applied during fusion.
// Later signals compensate earlier ones, so the order must not change.
var SignalOrder = []SignalName{
	SignalStrength,
	SignalForm,
	SignalGoals,
	SignalDraw,
	SignalTactical,
	SignalLeague,
	SignalReferee,
	SignalAbsence,
}

// LeagueProfile describes how a competition behaves on average
type LeagueProfile struct {
	HomeAdvantage float64 `json:"home_advantage"` // percentage points added to home
	DrawTendency  float64 `json:"draw_tendency"`  // percentage points added to draw
	AvgGoals      float64 `json:"avg_goals"`
}

// PartialSignal is what a single provider contributes to a bundle.
// Home/Away carry paired values, Value carries scalar signals.
type PartialSignal struct {
	Name      SignalName     `json:"name"`
	Home      float64        `json:"home,omitempty"`
	Away      float64        `json:"away,omitempty"`
	Value     float64        `json:"value,omitempty"`
	League    *LeagueProfile `json:"league,omitempty"`
	Synthetic bool           `json:"synthetic,omitempty"`
}

// SignalBundle holds every named signal used by one fusion call.
// It is recomputed for each request and never persisted.
type SignalBundle struct {
	StrengthHome       float64
	StrengthAway       float64
	FormScoreHome      float64
	FormScoreAway      float64
	ExpectedGoalsHome  float64
	ExpectedGoalsAway  float64
	DrawPropensity     float64
	TacticalAdjustment float64
	RefereeAdjustment  float64
	AbsenceImpactHome  float64
	AbsenceImpactAway  float64
	LeagueProfile      LeagueProfile

	present   map[SignalName]bool
	synthetic map[SignalName]bool
}

// Neutral values used when a provider is missing or fails
const (
	NeutralStrength       = 0.5
	NeutralForm           = 0.5
	NeutralExpectedGoals  = 1.3
	NeutralDrawPropensity = 0.27
	NeutralLeagueAvgGoals = 2.6
)

// NewSignalBundle returns a bundle filled with neutral defaults and no signals marked present
func NewSignalBundle() SignalBundle {
	return SignalBundle{
		StrengthHome:      NeutralStrength,
		StrengthAway:      NeutralStrength,
		FormScoreHome:     NeutralForm,
		FormScoreAway:     NeutralForm,
		ExpectedGoalsHome: NeutralExpectedGoals,
		ExpectedGoalsAway: NeutralExpectedGoals,
		DrawPropensity:    NeutralDrawPropensity,
		LeagueProfile:     LeagueProfile{AvgGoals: NeutralLeagueAvgGoals},
		present:           make(map[SignalName]bool),
		synthetic:         make(map[SignalName]bool),
	}
}

// Has reports whether a provider supplied the named signal
func (b SignalBundle) Has(name SignalName) bool {
	return b.present[name]
}

// IsSynthetic reports whether the named signal came from a hash-seeded default
func (b SignalBundle) IsSynthetic(name SignalName) bool {
	return b.synthetic[name]
}

// Observed reports whether the signal is present and backed by real data
func (b SignalBundle) Observed(name SignalName) bool {
	return b.present[name] && !b.synthetic[name]
}

// SyntheticNames returns synthetic signal names in fusion order
func (b SignalBundle) SyntheticNames() []string {
	var names []string
	for _, name := range SignalOrder {
		if b.present[name] && b.synthetic[name] {
			names = append(names, string(name))
		}
	}
	return names
}

// Apply merges one provider's contribution into the bundle.
// Non-finite values are ignored and the neutral default is kept.
func (b *SignalBundle) Apply(p PartialSignal) {
	if b.present == nil {
		b.present = make(map[SignalName]bool)
	}
	if b.synthetic == nil {
		b.synthetic = make(map[SignalName]bool)
	}
	if !finite(p.Home) || !finite(p.Away) || !finite(p.Value) {
		return
	}

	switch p.Name {
	case SignalStrength:
		b.StrengthHome, b.StrengthAway = clampUnit(p.Home), clampUnit(p.Away)
	case SignalForm:
		b.FormScoreHome, b.FormScoreAway = clampUnit(p.Home), clampUnit(p.Away)
	case SignalGoals:
		b.ExpectedGoalsHome, b.ExpectedGoalsAway = math.Max(0, p.Home), math.Max(0, p.Away)
	case SignalDraw:
		b.DrawPropensity = clampUnit(p.Value)
	case SignalTactical:
		b.TacticalAdjustment = p.Value
	case SignalReferee:
		b.RefereeAdjustment = p.Value
	case SignalAbsence:
		b.AbsenceImpactHome, b.AbsenceImpactAway = clampUnit(p.Home), clampUnit(p.Away)
	case SignalLeague:
		if p.League == nil {
			return
		}
		b.LeagueProfile = *p.League
		if b.LeagueProfile.AvgGoals <= 0 {
			b.LeagueProfile.AvgGoals = NeutralLeagueAvgGoals
		}
	default:
		return
	}

	b.present[p.Name] = true
	b.synthetic[p.Name] = p.Synthetic
}

// BestBet is the single wager the engine judges most favourable
type BestBet struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// PredictionRecord is the calibrated output of the fusion engine for one match
type PredictionRecord struct {
	ID                string    `json:"id,omitempty"`
	MatchID           string    `json:"match_id"`
	League            string    `json:"league"`
	PredictedWinner   Outcome   `json:"predicted_winner"`
	ProbHome          float64   `json:"prob_home"`
	ProbDraw          float64   `json:"prob_draw"`
	ProbAway          float64   `json:"prob_away"`
	PredictedScore    string    `json:"predicted_score"`
	ExpectedGoals     float64   `json:"expected_goals"`
	ExpectedGoalsHome float64   `json:"expected_goals_home"`
	ExpectedGoalsAway float64   `json:"expected_goals_away"`
	Over05            float64   `json:"over_0_5"`
	Over15            float64   `json:"over_1_5"`
	Over25            float64   `json:"over_2_5"`
	Over35            float64   `json:"over_3_5"`
	Over45            float64   `json:"over_4_5"`
	BTTSProbability   float64   `json:"btts_probability"`
	Confidence        string    `json:"confidence"`
	ReliabilityScore  float64   `json:"reliability_score"`
	BestBet           BestBet   `json:"best_bet"`
	ModelVersion      string    `json:"model_version"`
	Features          []float64 `json:"features,omitempty"`
	SyntheticSignals  []string  `json:"synthetic_signals,omitempty"`
	Factors           []string  `json:"factors,omitempty"`
	Kickoff           time.Time `json:"kickoff"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Confidence labels
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Probability returns the percentage assigned to an outcome
func (p PredictionRecord) Probability(o Outcome) float64 {
	switch o {
	case OutcomeHome:
		return p.ProbHome
	case OutcomeDraw:
		return p.ProbDraw
	case OutcomeAway:
		return p.ProbAway
	}
	return 0
}

// HasSynthetic reports whether the named signal was a synthetic default
func (p PredictionRecord) HasSynthetic(name SignalName) bool {
	for _, s := range p.SyntheticSignals {
		if s == string(name) {
			return true
		}
	}
	return false
}

// BuiltOnSynthetic reports whether any core team signal was a synthetic default.
// Such predictions are never used as classifier ground truth.
func (p PredictionRecord) BuiltOnSynthetic() bool {
	return p.HasSynthetic(SignalStrength) || p.HasSynthetic(SignalForm) || p.HasSynthetic(SignalGoals)
}

// OutcomeRecord is the final score of a finished match
type OutcomeRecord struct {
	MatchID    string    `json:"match_id"`
	HomeGoals  int       `json:"home_goals"`
	AwayGoals  int       `json:"away_goals"`
	Result     Outcome   `json:"result"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewOutcomeRecord builds an outcome with its derived result category
func NewOutcomeRecord(matchID string, homeGoals, awayGoals int, at time.Time) OutcomeRecord {
	return OutcomeRecord{
		MatchID:    matchID,
		HomeGoals:  homeGoals,
		AwayGoals:  awayGoals,
		Result:     OutcomeFromScore(homeGoals, awayGoals),
		RecordedAt: at,
	}
}

// LearningSample is one completed match as seen by the learning engine
type LearningSample struct {
	Match      MatchContext     `json:"match"`
	Prediction PredictionRecord `json:"prediction"`
	Outcome    OutcomeRecord    `json:"outcome"`
}

// TrainingPair is one historical (signal vector, outcome) example
type TrainingPair struct {
	Features  []float64 `json:"features"`
	Outcome   Outcome   `json:"outcome"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
