package signals

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/MatchPredictor/models"
)

// Registry holds the optional signal providers keyed by capability.
// A missing capability leaves the neutral default in the bundle.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.SignalName]models.SignalProvider
	logger    zerolog.Logger
}

// Degradation describes a provider that did not contribute to a bundle
type Degradation struct {
	Signal models.SignalName
	Err    error
}

// NewRegistry registers the given providers. A later provider replaces an earlier one with the same name.
func NewRegistry(providers ...models.SignalProvider) *Registry {
	r := &Registry{
		providers: make(map[models.SignalName]models.SignalProvider),
		logger:    log.With().Str("component", "signals").Logger(),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider
func (r *Registry) Register(p models.SignalProvider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Capabilities lists registered signal names in fusion order
func (r *Registry) Capabilities() []models.SignalName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.SignalName
	for _, name := range models.SignalOrder {
		if _, ok := r.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Assemble runs every provider concurrently and merges the results in fusion order.
// Provider failures never fail the call: the affected signal keeps its neutral
// default and is reported in the returned degradations.
func (r *Registry) Assemble(ctx context.Context, match models.MatchContext) (models.SignalBundle, []Degradation) {
	r.mu.RLock()
	order := make([]models.SignalProvider, 0, len(r.providers))
	for _, name := range models.SignalOrder {
		if p, ok := r.providers[name]; ok {
			order = append(order, p)
		}
	}
	r.mu.RUnlock()

	partials := make([]models.PartialSignal, len(order))
	errs := make([]error, len(order))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range order {
		i, p := i, p
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					errs[i] = errors.New("provider panicked")
					r.logger.Error().Interface("panic", rec).Str("signal", string(p.Name())).Msg("Provider panicked")
				}
			}()
			partials[i], errs[i] = p.Compute(gctx, match)
			return nil
		})
	}
	_ = g.Wait()

	bundle := models.NewSignalBundle()
	var degraded []Degradation
	for i, p := range order {
		if errs[i] != nil {
			degraded = append(degraded, Degradation{Signal: p.Name(), Err: errs[i]})
			if !errors.Is(errs[i], ErrUnavailable) {
				r.logger.Warn().Err(errs[i]).
					Str("signal", string(p.Name())).
					Str("match_id", match.MatchID).
					Msg("Signal provider failed, using neutral default")
			}
			continue
		}
		partials[i].Name = p.Name()
		bundle.Apply(partials[i])
	}

	return bundle, degraded
}
