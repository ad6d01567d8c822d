package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Alias1177/MatchPredictor/models"
)

// minLambda keeps the Poisson rate valid when a side is expected not to score
const minLambda = 0.05

// markets are the goal-based probabilities, in percent
type markets struct {
	expectedHome, expectedAway float64
	over                       [5]float64 // 0.5 .. 4.5
	btts                       float64
	matrix                     [][]float64
}

// expectedGoals picks the scoring rates for the Poisson model. Without a goals
// signal the league average is split with a small home lean.
func expectedGoals(b models.SignalBundle) (float64, float64) {
	home, away := b.ExpectedGoalsHome, b.ExpectedGoalsAway
	if !b.Has(models.SignalGoals) && b.Has(models.SignalLeague) {
		home = b.LeagueProfile.AvgGoals * 0.54
		away = b.LeagueProfile.AvgGoals * 0.46
	}
	return math.Max(minLambda, home), math.Max(minLambda, away)
}

// scoreMatrix is the joint scoreline distribution of two independent Poisson sides,
// matrix[h][a] = P(home scores h, away scores a)
func scoreMatrix(lambdaHome, lambdaAway float64, maxGoals int) [][]float64 {
	h := distuv.Poisson{Lambda: lambdaHome}
	a := distuv.Poisson{Lambda: lambdaAway}

	homeProbs := make([]float64, maxGoals+1)
	awayProbs := make([]float64, maxGoals+1)
	for g := 0; g <= maxGoals; g++ {
		homeProbs[g] = h.Prob(float64(g))
		awayProbs[g] = a.Prob(float64(g))
	}

	matrix := make([][]float64, maxGoals+1)
	for i := range matrix {
		matrix[i] = make([]float64, maxGoals+1)
		for j := range matrix[i] {
			matrix[i][j] = homeProbs[i] * awayProbs[j]
		}
	}
	return matrix
}

// deriveMarkets maps expected goals onto over/under and BTTS probabilities.
// Over lines use the total-goals Poisson, so each is monotonic in expected total goals.
func (e *Engine) deriveMarkets(b models.SignalBundle) markets {
	lh, la := expectedGoals(b)
	m := markets{expectedHome: lh, expectedAway: la}

	total := distuv.Poisson{Lambda: lh + la}
	for k := 0; k < len(m.over); k++ {
		// P(total > k.5) = 1 - P(total <= k)
		m.over[k] = e.clampMarket((1 - total.CDF(float64(k))) * 100)
	}

	noHomeGoal := math.Exp(-lh)
	noAwayGoal := math.Exp(-la)
	m.btts = e.clampMarket((1 - noHomeGoal) * (1 - noAwayGoal) * 100)

	m.matrix = scoreMatrix(lh, la, e.t.MaxGoals)
	return m
}

func (e *Engine) clampMarket(v float64) float64 {
	if math.IsNaN(v) {
		v = e.t.MarketMin
	}
	return round1(math.Max(e.t.MarketMin, math.Min(e.t.MarketMax, v)))
}

// likelyScore returns the most probable scoreline that agrees with the predicted winner
func likelyScore(matrix [][]float64, winner models.Outcome) string {
	best := -1.0
	bh, ba := 0, 0
	for h := range matrix {
		for a := range matrix[h] {
			if models.OutcomeFromScore(h, a) != winner {
				continue
			}
			if matrix[h][a] > best {
				best = matrix[h][a]
				bh, ba = h, a
			}
		}
	}
	if best < 0 {
		switch winner {
		case models.OutcomeHome:
			bh, ba = 1, 0
		case models.OutcomeAway:
			bh, ba = 0, 1
		}
	}
	return fmt.Sprintf("%d-%d", bh, ba)
}
