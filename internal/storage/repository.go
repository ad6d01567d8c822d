// Package storage persists correction state, model version, the classifier
// artifact and the prediction/outcome history.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/MatchPredictor/models"
)

var (
	// ErrNotFound is returned when a record does not exist yet
	ErrNotFound = errors.New("not found")
	// ErrCorrupt wraps persisted state that cannot be decoded
	ErrCorrupt = errors.New("state corrupt")
	// ErrPredictionLocked is returned when re-saving a prediction whose match already has an outcome
	ErrPredictionLocked = errors.New("prediction locked: outcome already recorded")
	// ErrOutcomeRecorded is returned when an outcome is recorded twice for the same match
	ErrOutcomeRecorded = errors.New("outcome already recorded")
	// ErrLocked is returned when another writer holds the writer lock
	ErrLocked = errors.New("writer lock held by another process")
)

// StateRepository stores the singletons read by every prediction
type StateRepository interface {
	LoadCorrectionState(ctx context.Context) (models.CorrectionState, error)
	SaveCorrectionState(ctx context.Context, s models.CorrectionState) error
	LoadModelVersion(ctx context.Context) (models.ModelVersion, error)
	SaveModelVersion(ctx context.Context, v models.ModelVersion) error
	LoadClassifier(ctx context.Context) ([]byte, error)
	// CommitTraining stores a retrained artifact together with the version
	// that describes it. Either both land or neither does.
	CommitTraining(ctx context.Context, artifact []byte, v models.ModelVersion) error
}

// HistoryRepository stores predictions and the outcomes that settle them
type HistoryRepository interface {
	SavePrediction(ctx context.Context, match models.MatchContext, rec models.PredictionRecord) error
	GetPrediction(ctx context.Context, matchID string) (models.PredictionRecord, error)
	SaveOutcome(ctx context.Context, out models.OutcomeRecord) error
	CompletedSince(ctx context.Context, since time.Time) ([]models.LearningSample, error)
	TrainingPairs(ctx context.Context, limit int) ([]models.TrainingPair, error)
}

// Repository is the single storage surface used by the service
type Repository interface {
	StateRepository
	HistoryRepository
	Close() error
}

// composite serves state from one backend and history from another
type composite struct {
	StateRepository
	HistoryRepository
	closers []func() error
}

func (c *composite) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadCorrectionStateOrDefault never fails: missing or unreadable state
// falls back to the built-in defaults, and out-of-range coefficients are
// clamped back into their bounds.
func LoadCorrectionStateOrDefault(ctx context.Context, repo StateRepository, bounds models.CoefficientBounds, logger zerolog.Logger) models.CorrectionState {
	s, err := repo.LoadCorrectionState(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info().Msg("No correction state yet, using defaults")
		return models.DefaultCorrectionState()
	case err != nil:
		logger.Error().Err(err).Msg("Correction state unreadable, falling back to defaults")
		return models.DefaultCorrectionState()
	}

	if s.Leagues == nil {
		s.Leagues = make(map[string]models.LeagueOverride)
	}
	if err := bounds.Validate(s.Global); err != nil {
		logger.Warn().Err(err).Msg("Persisted coefficients out of bounds, clamping")
		s.Global = bounds.Clamp(s.Global)
	}
	for league, o := range s.Leagues {
		o.Coefficients = bounds.Clamp(o.Coefficients)
		s.Leagues[league] = o
	}
	return s
}

// LoadModelVersionOrDefault never fails: missing or unreadable versions
// fall back to a fresh 1.0.0.0
func LoadModelVersionOrDefault(ctx context.Context, repo StateRepository, logger zerolog.Logger) models.ModelVersion {
	v, err := repo.LoadModelVersion(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info().Msg("No model version yet, starting at defaults")
		return models.DefaultModelVersion()
	case err != nil:
		logger.Error().Err(err).Msg("Model version unreadable, falling back to defaults")
		return models.DefaultModelVersion()
	}
	if v.Build < 0 || v.Major < 0 {
		logger.Error().Str("version", v.String()).Msg("Model version invalid, falling back to defaults")
		return models.DefaultModelVersion()
	}
	return v
}
