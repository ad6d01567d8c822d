package fusion

import (
	"math"
	"sort"

	"github.com/Alias1177/MatchPredictor/models"
)

// reliability scores how much the inputs back the prediction, independent of
// the probabilities themselves
func (e *Engine) reliability(p probs, b models.SignalBundle) float64 {
	score := e.t.ReliabilityBase

	if b.Has(models.SignalStrength) {
		gap := math.Abs(b.StrengthHome - b.StrengthAway)
		switch {
		case gap >= e.t.StrongGap:
			score += e.t.StrongGapBonus
		case gap >= e.t.ModerateGap:
			score += e.t.ModerateGapBonus
		}
	}

	sorted := []float64{p.home, p.draw, p.away}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if sorted[0] >= e.t.ClearFavoriteCutoff {
		score += e.t.FavoriteBonus
	}

	for _, name := range []models.SignalName{models.SignalTactical, models.SignalReferee, models.SignalAbsence} {
		if b.Observed(name) {
			score += e.t.DataBonus
		}
	}

	if sorted[0]-sorted[1] < e.t.TightMargin {
		score -= e.t.TightPenalty
	}

	return round1(e.t.ReliabilityRange.Clamp(score))
}

// pickWinner takes the most probable outcome, but only calls a draw when it
// clears the draw confidence threshold
func pickWinner(p probs, c models.Coefficients) models.Outcome {
	winner := argmax(p)
	if winner == models.OutcomeDraw && p.draw < c.ConfidenceThresholdDraw {
		if p.home >= p.away {
			return models.OutcomeHome
		}
		return models.OutcomeAway
	}
	return winner
}

func (e *Engine) confidenceLabel(prob, threshold, reliability float64) string {
	switch {
	case prob >= threshold+e.t.HighConfidenceMargin && reliability >= e.t.HighConfidenceReliMin:
		return models.ConfidenceHigh
	case prob >= threshold:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
