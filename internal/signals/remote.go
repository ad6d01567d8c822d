package signals

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Alias1177/MatchPredictor/models"
)

// JSONGetter is the slice of the platform HTTP client used by remote providers
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out interface{}) error
}

// RemoteProvider fetches one signal from an HTTP signals service:
//
//	GET {base}/signals/{name}?match_id=..&league=..&home=..&away=..
//
// The response body is a PartialSignal. Repeated failures open a circuit
// breaker so a dead service stops costing a timeout per prediction.
type RemoteProvider struct {
	name    models.SignalName
	baseURL string
	client  JSONGetter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewRemoteProvider builds a provider for the named signal
func NewRemoteProvider(name models.SignalName, baseURL string, client JSONGetter) *RemoteProvider {
	logger := log.With().Str("component", "signals").Str("provider", "remote-"+string(name)).Logger()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "signals-" + string(name),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info().
				Str("circuit", name).
				Str("from_state", from.String()).
				Str("to_state", to.String()).
				Msg("Signals circuit breaker state changed")
		},
	})

	return &RemoteProvider{
		name:    name,
		baseURL: baseURL,
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

func (p *RemoteProvider) Name() models.SignalName { return p.name }

func (p *RemoteProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	q := url.Values{}
	q.Set("match_id", m.MatchID)
	q.Set("league", m.League)
	q.Set("home", m.HomeTeam.ID)
	q.Set("away", m.AwayTeam.ID)
	endpoint := fmt.Sprintf("%s/signals/%s?%s", p.baseURL, url.PathEscape(string(p.name)), q.Encode())

	res, err := p.breaker.Execute(func() (interface{}, error) {
		var out models.PartialSignal
		if err := p.client.GetJSON(ctx, endpoint, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		p.logger.Debug().Err(err).Str("circuit_state", p.State().String()).Msg("Remote signal failed")
		return models.PartialSignal{}, fmt.Errorf("remote %s: %w", p.name, err)
	}

	partial := res.(models.PartialSignal)
	partial.Name = p.name
	return partial, nil
}

// State exposes the breaker state for diagnostics
func (p *RemoteProvider) State() gobreaker.State {
	return p.breaker.State()
}
