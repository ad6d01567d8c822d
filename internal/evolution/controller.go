// Package evolution decides when to retrain the auxiliary classifier and
// owns the model version.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/internal/storage"
	"github.com/Alias1177/MatchPredictor/models"
)

// Store persists what the controller owns. CommitTraining must write the
// artifact and the version together or not at all.
type Store interface {
	SaveModelVersion(ctx context.Context, v models.ModelVersion) error
	LoadClassifier(ctx context.Context) ([]byte, error)
	CommitTraining(ctx context.Context, artifact []byte, v models.ModelVersion) error
}

// Controller runs the Stable -> Evaluating -> Stable cycle. At most one
// retrain is evaluating at a time; a concurrent call reports BUSY.
type Controller struct {
	t     config.EvolutionTuning
	store Store

	sem      *semaphore.Weighted
	evolving atomic.Bool

	mu      sync.RWMutex
	version models.ModelVersion

	now    func() time.Time
	logger zerolog.Logger
}

// NewController starts from the given persisted version
func NewController(t config.EvolutionTuning, store Store, current models.ModelVersion) *Controller {
	return &Controller{
		t:       t,
		store:   store,
		sem:     semaphore.NewWeighted(1),
		version: current.Clone(),
		now:     time.Now,
		logger:  log.With().Str("component", "evolution").Logger(),
	}
}

// ShouldRetrain reports whether v is due for retraining at now, with a reason
func ShouldRetrain(v models.ModelVersion, now time.Time, t config.EvolutionTuning) (bool, string) {
	if v.LastTraining == nil {
		return true, "no prior training"
	}
	if elapsed := now.Sub(*v.LastTraining); elapsed >= t.RetrainInterval {
		return true, fmt.Sprintf("%d days since last training", models.DaysSince(*v.LastTraining, now))
	}
	if v.CurrentAccuracy < t.AccuracyFloor {
		return true, fmt.Sprintf("accuracy %.3f below floor %.3f", v.CurrentAccuracy, t.AccuracyFloor)
	}
	return false, fmt.Sprintf("%d days remaining until next retrain", models.DaysRemaining(*v.LastTraining, now, t.RetrainInterval))
}

// ShouldRetrain checks the controller's current version
func (c *Controller) ShouldRetrain() (bool, string) {
	return ShouldRetrain(c.Version(), c.now(), c.t)
}

// Version returns a copy of the current model version
func (c *Controller) Version() models.ModelVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version.Clone()
}

// Adopt replaces the held version with one persisted by another writer.
// An older build is ignored so the build never moves backwards.
func (c *Controller) Adopt(v models.ModelVersion) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Build < c.version.Build {
		return false
	}
	c.version = v.Clone()
	return true
}

// IsEvolving reports whether a retrain is being evaluated
func (c *Controller) IsEvolving() bool {
	return c.evolving.Load()
}

// Info is the read-only view exposed to callers
func (c *Controller) Info() models.VersionInfo {
	v := c.Version()
	return models.VersionInfo{
		Version:         v.String(),
		CurrentAccuracy: v.CurrentAccuracy,
		BestAccuracy:    v.BestAccuracy,
		LastTraining:    v.LastTraining,
		IsEvolving:      c.IsEvolving(),
	}
}

// Retrain fits a new classifier on the historical pairs. Synthetic pairs are
// dropped before the sample-size check. The baseline is the committed
// classifier scored on the same holdout rows, or the current accuracy when no
// compatible artifact exists. The artifact and version are committed together
// only when fitting and evaluation finish inside the timeout; any failure
// leaves the previous classifier and version untouched.
func (c *Controller) Retrain(ctx context.Context, pairs []models.TrainingPair) models.RetrainResult {
	if !c.sem.TryAcquire(1) {
		return models.RetrainResult{Status: models.RetrainBusy, Reason: "a retrain is already being evaluated", Version: c.Version().String()}
	}
	defer c.sem.Release(1)
	c.evolving.Store(true)
	defer c.evolving.Store(false)

	before := c.Version()
	result := models.RetrainResult{AccuracyBefore: before.CurrentAccuracy, Version: before.String()}

	x, y := usablePairs(pairs)
	result.Samples = len(x)
	if len(x) == 0 || len(x) < c.t.MinSamples {
		result.Status = models.RetrainNotEligible
		result.Reason = fmt.Sprintf("%d usable training pairs, need at least %d", len(x), c.t.MinSamples)
		c.logger.Info().Int("samples", len(x)).Int("min_samples", c.t.MinSamples).Msg("Retrain not eligible")
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.t.RetrainTimeout)
	defer cancel()

	trainX, trainY, testX, testY := holdoutSplit(x, y, c.t.HoldoutFraction)
	if prev, ok := c.committedClassifier(ctx, len(x[0])); ok {
		result.AccuracyBefore = prev.Accuracy(testX, testY)
	}

	started := c.now()
	clf, err := Fit(ctx, trainX, trainY, FitOptions{L2: c.t.L2, MaxIterations: c.t.MaxIterations})
	if err != nil {
		return c.failed(result, err)
	}

	clf.HoldoutAccuracy = clf.Accuracy(testX, testY)
	clf.TrainedAt = c.now().UTC()
	result.AccuracyAfter = clf.HoldoutAccuracy

	artifact, err := clf.Marshal()
	if err != nil {
		return c.failed(result, err)
	}
	if err := ctx.Err(); err != nil {
		return c.failed(result, err)
	}

	reason := fmt.Sprintf("retrained on %d pairs, holdout accuracy %.3f", len(x), clf.HoldoutAccuracy)
	next, err := c.record(result.AccuracyBefore, result.AccuracyAfter, reason, func(next models.ModelVersion) error {
		if err := c.store.CommitTraining(ctx, artifact, next); err != nil {
			return fmt.Errorf("committing classifier: %w", err)
		}
		return nil
	})
	if err != nil {
		return c.failed(result, err)
	}

	result.Version = next.String()
	result.Reason = reason
	if next.Build > before.Build {
		result.Status = models.RetrainCommitted
	} else {
		result.Status = models.RetrainNoImprovement
	}

	c.logger.Info().
		Str("status", string(result.Status)).
		Str("version", result.Version).
		Float64("accuracy_before", result.AccuracyBefore).
		Float64("accuracy_after", result.AccuracyAfter).
		Dur("took", c.now().Sub(started)).
		Msg("Retrain finished")
	return result
}

// committedClassifier loads the stored artifact when its feature width
// matches the current training data
func (c *Controller) committedClassifier(ctx context.Context, features int) (*Classifier, bool) {
	data, err := c.store.LoadClassifier(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("Could not load committed classifier, using current accuracy as baseline")
		return nil, false
	}
	clf, err := UnmarshalClassifier(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Committed classifier unreadable, using current accuracy as baseline")
		return nil, false
	}
	if clf.Features != features {
		c.logger.Info().Int("committed", clf.Features).Int("current", features).Msg("Feature width changed, using current accuracy as baseline")
		return nil, false
	}
	return clf, true
}

func (c *Controller) failed(result models.RetrainResult, err error) models.RetrainResult {
	c.logger.Error().Err(err).Int("samples", result.Samples).Msg("Retrain failed, keeping previous classifier")
	result.Status = models.RetrainTrainingFailed
	result.Reason = err.Error()
	result.AccuracyAfter = 0
	return result
}

// RecordTrainingSession records one finished training run. The build is bumped
// and an improvement logged only when after-before exceeds the improvement
// threshold; otherwise only the accuracy figures move.
func (c *Controller) RecordTrainingSession(ctx context.Context, before, after float64, reason string) (models.ModelVersion, error) {
	return c.record(before, after, reason, func(next models.ModelVersion) error {
		if err := c.store.SaveModelVersion(ctx, next); err != nil {
			return fmt.Errorf("saving model version: %w", err)
		}
		return nil
	})
}

// record derives the next version and adopts it once persist succeeds
func (c *Controller) record(before, after float64, reason string, persist func(models.ModelVersion) error) (models.ModelVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	next := c.version.Clone()
	next.TotalTrainingSessions++
	next.LastTraining = &now
	next.CurrentAccuracy = after
	next.BestAccuracy = math.Max(next.BestAccuracy, after)

	if delta := after - before; delta > c.t.ImprovementThreshold {
		next.Build++
		next.AppendImprovement(models.ImprovementEntry{
			Version:   next.String(),
			Timestamp: now,
			Reason:    reason,
			Delta:     delta,
		}, c.t.ImprovementLogSize)
	}

	if err := persist(next); err != nil {
		return c.version.Clone(), err
	}
	c.version = next
	return next.Clone(), nil
}

// ObserveAccuracy records accuracy measured outside a training session, such
// as after a learning batch. It never changes the version number.
func (c *Controller) ObserveAccuracy(ctx context.Context, accuracy float64) error {
	if math.IsNaN(accuracy) || accuracy < 0 || accuracy > 1 {
		return fmt.Errorf("accuracy %v outside [0,1]", accuracy)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.version.Clone()
	next.CurrentAccuracy = accuracy
	next.BestAccuracy = math.Max(next.BestAccuracy, accuracy)
	if err := c.store.SaveModelVersion(ctx, next); err != nil {
		return fmt.Errorf("saving model version: %w", err)
	}
	c.version = next
	return nil
}

// usablePairs drops synthetic pairs, unknown outcomes and vectors whose
// length disagrees with the first usable one
func usablePairs(pairs []models.TrainingPair) ([][]float64, []int) {
	var (
		x    [][]float64
		y    []int
		dims = -1
	)
	for _, p := range pairs {
		if p.Synthetic || !p.Outcome.Valid() || len(p.Features) == 0 {
			continue
		}
		if dims == -1 {
			dims = len(p.Features)
		}
		if len(p.Features) != dims {
			continue
		}
		x = append(x, p.Features)
		y = append(y, p.Outcome.Index())
	}
	return x, y
}

// holdoutSplit sends every k-th sample to the holdout set so the split is
// deterministic for a given history
func holdoutSplit(x [][]float64, y []int, fraction float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	every := int(math.Round(1 / fraction))
	if every < 2 {
		every = 2
	}
	for i := range x {
		if i%every == every-1 {
			testX = append(testX, x[i])
			testY = append(testY, y[i])
		} else {
			trainX = append(trainX, x[i])
			trainY = append(trainY, y[i])
		}
	}
	return trainX, trainY, testX, testY
}
