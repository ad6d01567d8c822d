// Package fusion turns a bundle of signals into a calibrated prediction.
package fusion

import (
	"fmt"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/models"
)

// Engine fuses signals into a PredictionRecord. It holds only tuning and is
// safe for concurrent use.
type Engine struct {
	t config.FusionTuning
}

// NewEngine creates an engine with the given tuning
func NewEngine(t config.FusionTuning) *Engine {
	return &Engine{t: t}
}

// Fuse computes the prediction for one match. It is pure: the same inputs
// always yield the same record. ID, timestamps and model version are left
// for the caller to stamp.
func (e *Engine) Fuse(match models.MatchContext, bundle models.SignalBundle, state models.CorrectionState) models.PredictionRecord {
	coeffs := state.For(match.League)

	// 1-2: base split then ordered deltas
	p, baseFactor := e.baseProbabilities(bundle, coeffs)
	factors := []string{baseFactor}
	p, deltaFactors := e.applySignals(p, bundle, coeffs)
	factors = append(factors, deltaFactors...)

	// 3: draw escalation needs a real detector estimate
	if bundle.Has(models.SignalDraw) && p.finite() {
		var escalated bool
		detector := bundle.DrawPropensity * 100
		if p, escalated = e.escalateDraw(p, detector); escalated {
			factors = append(factors, fmt.Sprintf("Even contest: draw raised to %.1f%%", detector))
		}
	}

	// 4: bands and renormalisation
	p = e.normalize(p)

	// 5-7: markets, best bet, reliability
	m := e.deriveMarkets(bundle)
	rel := e.reliability(p, bundle)
	winner := pickWinner(p, coeffs)
	winnerProb := map[models.Outcome]float64{
		models.OutcomeHome: p.home,
		models.OutcomeDraw: p.draw,
		models.OutcomeAway: p.away,
	}[winner]

	rec := models.PredictionRecord{
		MatchID:           match.MatchID,
		League:            match.League,
		PredictedWinner:   winner,
		ProbHome:          p.home,
		ProbDraw:          p.draw,
		ProbAway:          p.away,
		PredictedScore:    likelyScore(m.matrix, winner),
		ExpectedGoals:     round2(m.expectedHome + m.expectedAway),
		ExpectedGoalsHome: round2(m.expectedHome),
		ExpectedGoalsAway: round2(m.expectedAway),
		Over05:            m.over[0],
		Over15:            m.over[1],
		Over25:            m.over[2],
		Over35:            m.over[3],
		Over45:            m.over[4],
		BTTSProbability:   m.btts,
		Confidence:        e.confidenceLabel(winnerProb, coeffs.Threshold(winner), rel),
		ReliabilityScore:  rel,
		BestBet:           e.selectBestBet(p, m),
		SyntheticSignals:  bundle.SyntheticNames(),
		Factors:           factors,
		Kickoff:           match.Kickoff,
	}
	rec.Features = Features(bundle, rec)
	return rec
}
