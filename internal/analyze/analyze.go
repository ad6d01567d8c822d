// Package analyze wires signals, fusion, learning and evolution around one
// explicit engine context instead of process-wide singletons.
package analyze

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/internal/evolution"
	"github.com/Alias1177/MatchPredictor/internal/fusion"
	"github.com/Alias1177/MatchPredictor/internal/learning"
	"github.com/Alias1177/MatchPredictor/internal/signals"
	"github.com/Alias1177/MatchPredictor/internal/storage"
	"github.com/Alias1177/MatchPredictor/models"
)

// EngineContext is the read-only view every prediction works from. A new
// value is swapped in after each committed write, so readers never see a
// half-applied update and may briefly see a stale one.
type EngineContext struct {
	Corrections models.CorrectionState
	Version     models.ModelVersion
}

// Notifier delivers operator messages
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Locker serialises batch writers across processes
type Locker interface {
	Acquire(owner string) (release func() error, err error)
}

// Options configure a Service
type Options struct {
	Tuning      config.Tuning
	Repo        storage.Repository
	Registry    *signals.Registry
	Lock        Locker   // optional
	Notifier    Notifier // optional
	LearnWindow time.Duration
}

// Service runs predictions and the learning/evolution batches
type Service struct {
	tuning      config.Tuning
	repo        storage.Repository
	registry    *signals.Registry
	lock        Locker
	notifier    Notifier
	learnWindow time.Duration

	fusion    *fusion.Engine
	learner   *learning.Engine
	evolution *evolution.Controller

	current atomic.Pointer[EngineContext]
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService loads persisted state, falling back to defaults when it is
// missing or unreadable
func NewService(ctx context.Context, opts Options) *Service {
	logger := log.With().Str("component", "analyze").Logger()
	if opts.Registry == nil {
		opts.Registry = signals.NewRegistry()
	}
	if opts.LearnWindow <= 0 {
		opts.LearnWindow = 30 * 24 * time.Hour
	}

	corrections := storage.LoadCorrectionStateOrDefault(ctx, opts.Repo, opts.Tuning.Bounds, logger)
	version := storage.LoadModelVersionOrDefault(ctx, opts.Repo, logger)

	s := &Service{
		tuning:      opts.Tuning,
		repo:        opts.Repo,
		registry:    opts.Registry,
		lock:        opts.Lock,
		notifier:    opts.Notifier,
		learnWindow: opts.LearnWindow,
		fusion:      fusion.NewEngine(opts.Tuning.Fusion),
		learner:     learning.NewEngine(opts.Tuning.Learning, opts.Tuning.Bounds),
		evolution:   evolution.NewController(opts.Tuning.Evolution, opts.Repo, version),
		now:         time.Now,
		logger:      logger,
	}
	s.current.Store(&EngineContext{Corrections: corrections, Version: version})

	logger.Info().
		Str("version", version.String()).
		Int("league_overrides", len(corrections.Leagues)).
		Strs("signals", capabilityNames(opts.Registry)).
		Msg("Engine context loaded")
	return s
}

// Context returns the current engine context
func (s *Service) Context() EngineContext {
	ec := s.current.Load()
	return EngineContext{Corrections: ec.Corrections.Clone(), Version: ec.Version.Clone()}
}

// VersionInfo reports the model version and whether a retrain is running
func (s *Service) VersionInfo() models.VersionInfo {
	return s.evolution.Info()
}

// Refresh reloads persisted state, picking up writes made by another process
func (s *Service) Refresh(ctx context.Context) {
	corrections := storage.LoadCorrectionStateOrDefault(ctx, s.repo, s.tuning.Bounds, s.logger)
	s.evolution.Adopt(storage.LoadModelVersionOrDefault(ctx, s.repo, s.logger))
	version := s.evolution.Version()
	s.swap(func(ec *EngineContext) {
		ec.Corrections = corrections
		ec.Version = version
	})
}

func (s *Service) swap(update func(ec *EngineContext)) {
	for {
		old := s.current.Load()
		next := &EngineContext{Corrections: old.Corrections, Version: old.Version}
		update(next)
		if s.current.CompareAndSwap(old, next) {
			return
		}
	}
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("Operator notification failed")
	}
}

func capabilityNames(r *signals.Registry) []string {
	var out []string
	for _, name := range r.Capabilities() {
		out = append(out, string(name))
	}
	return out
}
