package analyze

import (
	"context"
	"fmt"

	"github.com/Alias1177/MatchPredictor/internal/metrics"
	"github.com/Alias1177/MatchPredictor/models"
)

func (s *Service) acquire(owner string) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	release, err := s.lock.Acquire(owner)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(); err != nil {
			s.logger.Error().Err(err).Str("owner", owner).Msg("Releasing writer lock failed")
		}
	}, nil
}

// RunLearning feeds the outcomes recorded inside the learning window to the
// correction engine and persists the new state before publishing it.
func (s *Service) RunLearning(ctx context.Context) (models.CorrectionsAppliedReport, error) {
	release, err := s.acquire("learn")
	if err != nil {
		return models.CorrectionsAppliedReport{}, err
	}
	defer release()
	s.Refresh(ctx)

	batch, err := s.repo.CompletedSince(ctx, s.now().Add(-s.learnWindow))
	if err != nil {
		return models.CorrectionsAppliedReport{}, fmt.Errorf("loading learning batch: %w", err)
	}

	ec := s.current.Load()
	next, report := s.learner.Learn(ec.Corrections, batch)
	if report.NoData {
		return report, nil
	}

	if len(report.Corrections) > 0 {
		if err := s.repo.SaveCorrectionState(ctx, next); err != nil {
			return report, fmt.Errorf("saving correction state: %w", err)
		}
		s.swap(func(ec *EngineContext) { ec.Corrections = next })
	}

	if err := s.evolution.ObserveAccuracy(ctx, report.Summary.Accuracy); err != nil {
		s.logger.Warn().Err(err).Msg("Recording batch accuracy failed")
	}
	s.swap(func(ec *EngineContext) { ec.Version = s.evolution.Version() })

	types := make([]string, 0, len(report.Corrections))
	for _, c := range report.Corrections {
		types = append(types, c.Type)
	}
	metrics.RecordLearning(report.Summary.Accuracy, types)
	return report, nil
}

// RunEvolution retrains the auxiliary classifier when it is due, or always
// when force is set. Only a committed or failed retrain notifies the operator.
func (s *Service) RunEvolution(ctx context.Context, force bool) (models.RetrainResult, error) {
	s.Refresh(ctx)
	if !force {
		if due, reason := s.evolution.ShouldRetrain(); !due {
			v := s.evolution.Version()
			return models.RetrainResult{Status: models.RetrainNotEligible, Reason: reason, Version: v.String(), AccuracyBefore: v.CurrentAccuracy}, nil
		}
	}

	release, err := s.acquire("evolve")
	if err != nil {
		return models.RetrainResult{}, err
	}
	defer release()

	pairs, err := s.repo.TrainingPairs(ctx, 0)
	if err != nil {
		return models.RetrainResult{}, fmt.Errorf("loading training pairs: %w", err)
	}

	result := s.evolution.Retrain(ctx, pairs)
	version := s.evolution.Version()
	s.swap(func(ec *EngineContext) { ec.Version = version })
	metrics.RecordRetrain(string(result.Status), version.Build)

	switch result.Status {
	case models.RetrainCommitted:
		s.notify(ctx, fmt.Sprintf("Model %s committed: accuracy %.3f -> %.3f", result.Version, result.AccuracyBefore, result.AccuracyAfter))
	case models.RetrainTrainingFailed:
		s.notify(ctx, fmt.Sprintf("Retrain failed, keeping %s: %s", result.Version, result.Reason))
	}
	return result, nil
}
