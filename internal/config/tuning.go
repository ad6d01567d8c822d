package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Alias1177/MatchPredictor/models"
)

// Tuning holds every numeric constant of the engines. The defaults are
// hand-tuned starting points, not validated optima.
type Tuning struct {
	Fusion    FusionTuning             `yaml:"fusion"`
	Learning  LearningTuning           `yaml:"learning"`
	Evolution EvolutionTuning          `yaml:"evolution"`
	Bounds    models.CoefficientBounds `yaml:"bounds"`
}

// FusionTuning configures the fusion engine
type FusionTuning struct {
	// base distribution
	DrawBase          float64 `yaml:"draw_base" validate:"gt=0,lt=100"`
	DrawGapSlope      float64 `yaml:"draw_gap_slope" validate:"gte=0"`
	DrawFloor         float64 `yaml:"draw_floor" validate:"gte=0,lt=100"`
	StrengthSteepness float64 `yaml:"strength_steepness" validate:"gt=0"`

	// signal deltas, in percentage points
	FormWeight           float64 `yaml:"form_weight" validate:"gte=0"`
	GoalsWeight          float64 `yaml:"goals_weight" validate:"gte=0"`
	LowScoringLine       float64 `yaml:"low_scoring_line" validate:"gte=0"`
	LowScoringDrawWeight float64 `yaml:"low_scoring_draw_weight" validate:"gte=0"`
	DrawSignalWeight     float64 `yaml:"draw_signal_weight" validate:"gte=0"`
	TacticalCap          float64 `yaml:"tactical_cap" validate:"gte=0"`
	LeagueCap            float64 `yaml:"league_cap" validate:"gte=0"`
	RefereeCap           float64 `yaml:"referee_cap" validate:"gte=0"`
	AbsenceWeight        float64 `yaml:"absence_weight" validate:"gte=0"`

	// draw escalation gates
	DrawEscalationMargin float64 `yaml:"draw_escalation_margin" validate:"gte=0"`
	DrawTightness        float64 `yaml:"draw_tightness" validate:"gt=0"`
	ClearFavoriteCutoff  float64 `yaml:"clear_favorite_cutoff" validate:"gt=0,lte=100"`

	// clamp bands before renormalisation
	HomeBand models.Range `yaml:"home_band"`
	DrawBand models.Range `yaml:"draw_band"`
	AwayBand models.Range `yaml:"away_band"`

	// auxiliary markets
	MarketMin float64 `yaml:"market_min" validate:"gte=0"`
	MarketMax float64 `yaml:"market_max" validate:"lte=100"`
	MaxGoals  int     `yaml:"max_goals" validate:"gte=5,lte=15"`

	// best bet gates
	WinGate          float64 `yaml:"win_gate" validate:"gt=0"`
	DrawGate         float64 `yaml:"draw_gate" validate:"gt=0"`
	BTTSGate         float64 `yaml:"btts_gate" validate:"gt=0"`
	Over25Gate       float64 `yaml:"over_2_5_gate" validate:"gt=0"`
	Over15Gate       float64 `yaml:"over_1_5_gate" validate:"gt=0"`
	DoubleChanceGate float64 `yaml:"double_chance_gate" validate:"gt=0"`
	NoDrawGate       float64 `yaml:"no_draw_gate" validate:"gt=0"`

	// reliability score
	ReliabilityBase       float64      `yaml:"reliability_base"`
	StrongGap             float64      `yaml:"strong_gap" validate:"gte=0"`
	StrongGapBonus        float64      `yaml:"strong_gap_bonus"`
	ModerateGap           float64      `yaml:"moderate_gap" validate:"gte=0"`
	ModerateGapBonus      float64      `yaml:"moderate_gap_bonus"`
	FavoriteBonus         float64      `yaml:"favorite_bonus"`
	DataBonus             float64      `yaml:"data_bonus"`
	TightMargin           float64      `yaml:"tight_margin" validate:"gte=0"`
	TightPenalty          float64      `yaml:"tight_penalty" validate:"gte=0"`
	ReliabilityRange      models.Range `yaml:"reliability_range"`
	HighConfidenceMargin  float64      `yaml:"high_confidence_margin" validate:"gte=0"`
	HighConfidenceReliMin float64      `yaml:"high_confidence_reliability" validate:"gte=0,lte=10"`
}

// LearningTuning configures the correction/learning engine
type LearningTuning struct {
	MissedDrawRate          float64 `yaml:"missed_draw_rate" validate:"gt=0,lt=1"`
	DrawBoostStep           float64 `yaml:"draw_boost_step" validate:"gt=0"`
	DrawThresholdStep       float64 `yaml:"draw_threshold_step" validate:"gt=0"`
	HomeAccuracyFloor       float64 `yaml:"home_accuracy_floor" validate:"gt=0,lt=1"`
	AwayAccuracyFloor       float64 `yaml:"away_accuracy_floor" validate:"gt=0,lt=1"`
	ThresholdStep           float64 `yaml:"threshold_step" validate:"gt=0"`
	MinClassSamples         int     `yaml:"min_class_samples" validate:"gte=1"`
	HighConfidenceProb      float64 `yaml:"high_confidence_prob" validate:"gt=0,lte=100"`
	FavoriteUpsetRate       float64 `yaml:"favorite_upset_rate" validate:"gt=0,lt=1"`
	HomeAdvantageStep       float64 `yaml:"home_advantage_step" validate:"gt=0"`
	HighConfidenceWrongRate float64 `yaml:"high_confidence_wrong_rate" validate:"gt=0,lt=1"`
	AwayPenaltyStep         float64 `yaml:"away_penalty_step" validate:"gt=0"`
	MinLeagueSamples        int     `yaml:"min_league_samples" validate:"gte=1"`
	MaxLeagueOverrides      int     `yaml:"max_league_overrides" validate:"gte=1"`
	GainPerCorrection       float64 `yaml:"gain_per_correction" validate:"gte=0"`
	MaxProjectedGain        float64 `yaml:"max_projected_gain" validate:"gte=0"`
}

// EvolutionTuning configures the evolution controller
type EvolutionTuning struct {
	RetrainInterval      time.Duration `yaml:"retrain_interval" validate:"gt=0"`
	AccuracyFloor        float64       `yaml:"accuracy_floor" validate:"gte=0,lte=1"`
	MinSamples           int           `yaml:"min_samples" validate:"gte=10"`
	ImprovementThreshold float64       `yaml:"improvement_threshold" validate:"gte=0"`
	ImprovementLogSize   int           `yaml:"improvement_log_size" validate:"gte=1"`
	HoldoutFraction      float64       `yaml:"holdout_fraction" validate:"gt=0,lt=1"`
	RetrainTimeout       time.Duration `yaml:"retrain_timeout" validate:"gt=0"`
	L2                   float64       `yaml:"l2" validate:"gte=0"`
	MaxIterations        int           `yaml:"max_iterations" validate:"gte=1"`
}

// DefaultTuning returns the built-in tuning
func DefaultTuning() Tuning {
	return Tuning{
		Fusion: FusionTuning{
			DrawBase:          28,
			DrawGapSlope:      20,
			DrawFloor:         12,
			StrengthSteepness: 4,

			FormWeight:           15,
			GoalsWeight:          6,
			LowScoringLine:       2.2,
			LowScoringDrawWeight: 5,
			DrawSignalWeight:     20,
			TacticalCap:          5,
			LeagueCap:            4,
			RefereeCap:           3,
			AbsenceWeight:        12,

			DrawEscalationMargin: 5,
			DrawTightness:        8,
			ClearFavoriteCutoff:  50,

			HomeBand: models.Range{Min: 8, Max: 80},
			DrawBand: models.Range{Min: 10, Max: 40},
			AwayBand: models.Range{Min: 6, Max: 75},

			MarketMin: 5,
			MarketMax: 98,
			MaxGoals:  10,

			WinGate:          55,
			DrawGate:         38,
			BTTSGate:         65,
			Over25Gate:       65,
			Over15Gate:       80,
			DoubleChanceGate: 75,
			NoDrawGate:       80,

			ReliabilityBase:       5.0,
			StrongGap:             0.20,
			StrongGapBonus:        1.0,
			ModerateGap:           0.10,
			ModerateGapBonus:      0.5,
			FavoriteBonus:         1.0,
			DataBonus:             0.5,
			TightMargin:           5,
			TightPenalty:          1.5,
			ReliabilityRange:      models.Range{Min: 3, Max: 9.5},
			HighConfidenceMargin:  15,
			HighConfidenceReliMin: 6.5,
		},
		Learning: LearningTuning{
			MissedDrawRate:          0.15,
			DrawBoostStep:           1.5,
			DrawThresholdStep:       2,
			HomeAccuracyFloor:       0.45,
			AwayAccuracyFloor:       0.40,
			ThresholdStep:           2,
			MinClassSamples:         3,
			HighConfidenceProb:      60,
			FavoriteUpsetRate:       0.20,
			HomeAdvantageStep:       0.01,
			HighConfidenceWrongRate: 0.30,
			AwayPenaltyStep:         0.5,
			MinLeagueSamples:        5,
			MaxLeagueOverrides:      64,
			GainPerCorrection:       0.01,
			MaxProjectedGain:        0.05,
		},
		Evolution: EvolutionTuning{
			RetrainInterval:      7 * 24 * time.Hour,
			AccuracyFloor:        0.50,
			MinSamples:           50,
			ImprovementThreshold: 0.01,
			ImprovementLogSize:   20,
			HoldoutFraction:      0.2,
			RetrainTimeout:       2 * time.Minute,
			L2:                   1e-3,
			MaxIterations:        200,
		},
		Bounds: models.DefaultCoefficientBounds(),
	}
}

// LoadTuning reads a YAML tuning file over the defaults. An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("Tuning loaded")
	return t, nil
}

// Validate checks field constraints and that ranges are well formed
func (t Tuning) Validate() error {
	v := validator.New()
	if err := v.Struct(t); err != nil {
		return err
	}

	ranges := map[string]models.Range{
		"fusion.home_band":                 t.Fusion.HomeBand,
		"fusion.draw_band":                 t.Fusion.DrawBand,
		"fusion.away_band":                 t.Fusion.AwayBand,
		"fusion.reliability_range":         t.Fusion.ReliabilityRange,
		"bounds.home_advantage_boost":      t.Bounds.HomeAdvantageBoost,
		"bounds.draw_boost":                t.Bounds.DrawBoost,
		"bounds.away_penalty":              t.Bounds.AwayPenalty,
		"bounds.confidence_threshold_home": t.Bounds.ConfidenceThresholdHome,
		"bounds.confidence_threshold_draw": t.Bounds.ConfidenceThresholdDraw,
		"bounds.confidence_threshold_away": t.Bounds.ConfidenceThresholdAway,
	}
	for name, r := range ranges {
		if r.Min > r.Max {
			return fmt.Errorf("%s: min %.4f greater than max %.4f", name, r.Min, r.Max)
		}
	}
	if t.Fusion.MarketMin >= t.Fusion.MarketMax {
		return errors.New("fusion.market_min must be below fusion.market_max")
	}
	return nil
}
