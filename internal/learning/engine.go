// Package learning adjusts the correction coefficients from observed outcomes.
package learning

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/models"
)

// Correction types
const (
	CorrectionDrawBoost     = "draw_boost"
	CorrectionDrawThreshold = "confidence_threshold_draw"
	CorrectionHomeThreshold = "confidence_threshold_home"
	CorrectionAwayThreshold = "confidence_threshold_away"
	CorrectionHomeAdvantage = "home_advantage_boost"
	CorrectionAwayPenalty   = "away_penalty"
)

const (
	noDataMessage            = "no data"
	leagueSkippedMessageTmpl = "%d league(s) below %d samples kept global coefficients"
)

// Engine maps error patterns onto bounded step adjustments
type Engine struct {
	t      config.LearningTuning
	bounds models.CoefficientBounds
	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates a learning engine
func NewEngine(t config.LearningTuning, bounds models.CoefficientBounds) *Engine {
	return &Engine{
		t:      t,
		bounds: bounds,
		now:    time.Now,
		logger: log.With().Str("component", "learning").Logger(),
	}
}

// Learn applies one batch of completed matches to state and returns the new
// state with a report of every change. The input state is not modified.
// Predictions built on a synthetic team signal are dropped before any rule
// sees them.
func (e *Engine) Learn(state models.CorrectionState, batch []models.LearningSample) (models.CorrectionState, models.CorrectionsAppliedReport) {
	next := state.Clone()
	if next.Leagues == nil {
		next.Leagues = make(map[string]models.LeagueOverride)
	}

	batch, synthetic := groundTruth(batch)
	if synthetic > 0 {
		e.logger.Debug().Int("synthetic", synthetic).Msg("Dropped predictions built on synthetic signals")
	}

	summary := Summarize(batch, e.t.HighConfidenceProb)
	if summary.Total == 0 {
		e.logger.Info().Msg("Learning batch is empty, nothing to do")
		return next, models.CorrectionsAppliedReport{NoData: true, Message: noDataMessage, Summary: summary}
	}

	report := models.CorrectionsAppliedReport{Summary: summary}

	global, changes := e.adjust(e.bounds.Clamp(next.Global), summary, "")
	next.Global = global
	report.Corrections = append(report.Corrections, changes...)

	leagueChanges, skipped := e.learnLeagues(&next, batch, e.bounds.Clamp(state.Global))
	report.Corrections = append(report.Corrections, leagueChanges...)
	if skipped > 0 {
		report.Message = fmt.Sprintf(leagueSkippedMessageTmpl, skipped, e.t.MinLeagueSamples)
	}

	if len(report.Corrections) > 0 {
		next.LastUpdated = e.now().UTC()
	}

	gain := math.Min(e.t.MaxProjectedGain, e.t.GainPerCorrection*float64(len(report.Corrections)))
	report.EstimatedNewAccuracy = math.Round(math.Min(1, summary.Accuracy+gain)*1000) / 1000

	e.logger.Info().
		Int("samples", summary.Total).
		Float64("accuracy", summary.Accuracy).
		Int("corrections", len(report.Corrections)).
		Float64("estimated_accuracy", report.EstimatedNewAccuracy).
		Msg("Learning batch applied")

	return next, report
}

// adjust runs every pattern rule against one summary. Each rule moves a
// coefficient one fixed step and is clamped, so repeating the same summary
// saturates at the bound instead of overshooting it.
func (e *Engine) adjust(c models.Coefficients, s models.AccuracySummary, league string) (models.Coefficients, []models.Correction) {
	var out []models.Correction
	step := func(field *float64, delta float64, rng models.Range, typ, reason string) {
		before := *field
		after := rng.Clamp(before + delta)
		if after == before {
			return
		}
		*field = after
		out = append(out, models.Correction{
			Type:   typ,
			Reason: reason,
			Action: fmt.Sprintf("%s %.3f -> %.3f", typ, before, after),
			League: league,
			Before: before,
			After:  after,
		})
	}

	if r := rate(s.MissedDraws, s.Total); r > e.t.MissedDrawRate {
		reason := fmt.Sprintf("missed-draw rate %.1f%% above %.1f%%", r*100, e.t.MissedDrawRate*100)
		step(&c.DrawBoost, e.t.DrawBoostStep, e.bounds.DrawBoost, CorrectionDrawBoost, reason)
		step(&c.ConfidenceThresholdDraw, -e.t.DrawThresholdStep, e.bounds.ConfidenceThresholdDraw, CorrectionDrawThreshold, reason)
	}

	if away := s.ByClass[models.OutcomeAway]; away.Total >= e.t.MinClassSamples && away.Accuracy < e.t.AwayAccuracyFloor {
		reason := fmt.Sprintf("away predictions %.1f%% accurate over %d", away.Accuracy*100, away.Total)
		step(&c.ConfidenceThresholdAway, e.t.ThresholdStep, e.bounds.ConfidenceThresholdAway, CorrectionAwayThreshold, reason)
	}

	if home := s.ByClass[models.OutcomeHome]; home.Total >= e.t.MinClassSamples && home.Accuracy < e.t.HomeAccuracyFloor {
		reason := fmt.Sprintf("home predictions %.1f%% accurate over %d", home.Accuracy*100, home.Total)
		step(&c.ConfidenceThresholdHome, e.t.ThresholdStep, e.bounds.ConfidenceThresholdHome, CorrectionHomeThreshold, reason)
	}

	if s.HighConfidenceHome >= e.t.MinClassSamples {
		if r := rate(s.FavoriteUpsets, s.HighConfidenceHome); r > e.t.FavoriteUpsetRate {
			reason := fmt.Sprintf("home favourites lost %.1f%% of the time", r*100)
			step(&c.HomeAdvantageBoost, -e.t.HomeAdvantageStep, e.bounds.HomeAdvantageBoost, CorrectionHomeAdvantage, reason)
		}
	}

	if s.HighConfidence >= e.t.MinClassSamples {
		if r := rate(s.HighConfidenceWrong, s.HighConfidence); r > e.t.HighConfidenceWrongRate {
			reason := fmt.Sprintf("%.1f%% of high-confidence predictions were wrong", r*100)
			step(&c.AwayPenalty, e.t.AwayPenaltyStep, e.bounds.AwayPenalty, CorrectionAwayPenalty, reason)
		}
	}

	return c, out
}

// groundTruth keeps the samples whose prediction used real team signals
func groundTruth(batch []models.LearningSample) ([]models.LearningSample, int) {
	out := make([]models.LearningSample, 0, len(batch))
	for _, sample := range batch {
		if !sample.Prediction.BuiltOnSynthetic() {
			out = append(out, sample)
		}
	}
	return out, len(batch) - len(out)
}

// learnLeagues updates per-league overrides for leagues with enough samples,
// starting new overrides from the pre-batch global coefficients.
// Returns the applied corrections and how many leagues were below the
// sample minimum.
func (e *Engine) learnLeagues(state *models.CorrectionState, batch []models.LearningSample, base models.Coefficients) ([]models.Correction, int) {
	byLeague := make(map[string][]models.LearningSample)
	for _, sample := range batch {
		league := sample.Prediction.League
		if league == "" {
			continue
		}
		byLeague[league] = append(byLeague[league], sample)
	}

	leagues := make([]string, 0, len(byLeague))
	for league := range byLeague {
		leagues = append(leagues, league)
	}
	sort.Strings(leagues)

	var (
		out     []models.Correction
		skipped int
		now     = e.now().UTC()
	)
	for _, league := range leagues {
		samples := byLeague[league]
		if len(samples) < e.t.MinLeagueSamples {
			skipped++
			e.logger.Debug().Str("league", league).Int("samples", len(samples)).Msg("League below sample minimum, override not eligible")
			continue
		}

		override, exists := state.Leagues[league]
		start := base
		if exists {
			start = override.Coefficients
		}

		coeffs, changes := e.adjust(e.bounds.Clamp(start), Summarize(samples, e.t.HighConfidenceProb), league)
		if !exists && len(changes) == 0 {
			continue
		}

		override.Coefficients = coeffs
		override.Samples += len(samples)
		override.UpdatedAt = now
		state.Leagues[league] = override
		out = append(out, changes...)
	}

	e.evictLeagues(state)
	return out, skipped
}

// evictLeagues drops the least recently updated overrides beyond the cap
func (e *Engine) evictLeagues(state *models.CorrectionState) {
	excess := len(state.Leagues) - e.t.MaxLeagueOverrides
	if excess <= 0 {
		return
	}

	type aged struct {
		league string
		at     time.Time
	}
	all := make([]aged, 0, len(state.Leagues))
	for league, o := range state.Leagues {
		all = append(all, aged{league, o.UpdatedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Equal(all[j].at) {
			return all[i].league < all[j].league
		}
		return all[i].at.Before(all[j].at)
	})

	for _, a := range all[:excess] {
		delete(state.Leagues, a.league)
		e.logger.Info().Str("league", a.league).Msg("League override evicted")
	}
}
