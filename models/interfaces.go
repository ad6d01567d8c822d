package models

import "context"

// SignalProvider is a pluggable estimator contributing one named signal
type SignalProvider interface {
	Name() SignalName
	Compute(ctx context.Context, match MatchContext) (PartialSignal, error)
}
