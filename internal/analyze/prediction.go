package analyze

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Alias1177/MatchPredictor/internal/metrics"
	"github.com/Alias1177/MatchPredictor/internal/storage"
	"github.com/Alias1177/MatchPredictor/models"
)

// Predict assembles signals for the match, fuses them against the current
// engine context and stores the result. Provider failures only degrade the
// prediction. A match that already has an outcome keeps its stored prediction.
func (s *Service) Predict(ctx context.Context, match models.MatchContext) (models.PredictionRecord, error) {
	if match.MatchID == "" {
		return models.PredictionRecord{}, errors.New("match id is required")
	}
	started := s.now()

	bundle, degraded := s.registry.Assemble(ctx, match)
	for _, d := range degraded {
		metrics.RecordDegraded(string(d.Signal))
	}

	ec := s.current.Load()
	rec := s.fusion.Fuse(match, bundle, ec.Corrections)
	rec.ID = uuid.NewString()
	rec.ModelVersion = ec.Version.String()
	rec.CreatedAt = started.UTC()
	rec.UpdatedAt = rec.CreatedAt

	err := s.repo.SavePrediction(ctx, match, rec)
	switch {
	case errors.Is(err, storage.ErrPredictionLocked):
		s.logger.Info().Str("match_id", match.MatchID).Msg("Match already settled, returning stored prediction")
		return s.repo.GetPrediction(ctx, match.MatchID)
	case err != nil:
		return rec, fmt.Errorf("storing prediction: %w", err)
	}

	metrics.RecordPrediction(string(rec.PredictedWinner), rec.Confidence, s.now().Sub(started))
	s.logger.Info().
		Str("match_id", rec.MatchID).
		Str("winner", string(rec.PredictedWinner)).
		Float64("home", rec.ProbHome).
		Float64("draw", rec.ProbDraw).
		Float64("away", rec.ProbAway).
		Float64("reliability", rec.ReliabilityScore).
		Int("degraded_signals", len(degraded)).
		Msg("Prediction generated")
	return rec, nil
}

// RecordOutcome stores the final score of a match. Outcomes are written once.
func (s *Service) RecordOutcome(ctx context.Context, matchID string, homeGoals, awayGoals int) (models.OutcomeRecord, error) {
	if matchID == "" {
		return models.OutcomeRecord{}, errors.New("match id is required")
	}
	if homeGoals < 0 || awayGoals < 0 {
		return models.OutcomeRecord{}, fmt.Errorf("invalid score %d-%d", homeGoals, awayGoals)
	}

	out := models.NewOutcomeRecord(matchID, homeGoals, awayGoals, s.now().UTC())
	if err := s.repo.SaveOutcome(ctx, out); err != nil {
		return out, fmt.Errorf("storing outcome: %w", err)
	}
	s.logger.Info().Str("match_id", matchID).Str("result", string(out.Result)).Msg("Outcome recorded")
	return out, nil
}
