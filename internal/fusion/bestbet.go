package fusion

import (
	"fmt"

	"github.com/Alias1177/MatchPredictor/models"
)

// Bet types
const (
	BetHomeWin  = "HOME_WIN"
	BetDraw     = "DRAW"
	BetAwayWin  = "AWAY_WIN"
	BetBTTSYes  = "BTTS_YES"
	BetBTTSNo   = "BTTS_NO"
	BetOver25   = "OVER_2_5"
	BetUnder25  = "UNDER_2_5"
	BetOver15   = "OVER_1_5"
	BetHomeDraw = "1X"
	BetDrawAway = "X2"
	BetNoDraw   = "12"
)

type betCandidate struct {
	bet  models.BestBet
	gate float64
	tier int // lower wins
}

// selectBestBet keeps candidates that clear their gate and picks the most
// confident one in the best tier. Single results and specials outrank
// double chance. With nothing clearing a gate it falls back to the most
// probable single outcome.
func (e *Engine) selectBestBet(p probs, m markets) models.BestBet {
	candidates := []betCandidate{
		{models.BestBet{Type: BetHomeWin, Confidence: p.home, Description: "Home win"}, e.t.WinGate, 1},
		{models.BestBet{Type: BetAwayWin, Confidence: p.away, Description: "Away win"}, e.t.WinGate, 1},
		{models.BestBet{Type: BetDraw, Confidence: p.draw, Description: "Draw"}, e.t.DrawGate, 1},
		{models.BestBet{Type: BetBTTSYes, Confidence: m.btts, Description: "Both teams to score"}, e.t.BTTSGate, 1},
		{models.BestBet{Type: BetBTTSNo, Confidence: round1(100 - m.btts), Description: "At least one side keeps a clean sheet"}, e.t.BTTSGate, 1},
		{models.BestBet{Type: BetOver25, Confidence: m.over[2], Description: "Over 2.5 goals"}, e.t.Over25Gate, 1},
		{models.BestBet{Type: BetUnder25, Confidence: round1(100 - m.over[2]), Description: "Under 2.5 goals"}, e.t.Over25Gate, 1},
		{models.BestBet{Type: BetOver15, Confidence: m.over[1], Description: "Over 1.5 goals"}, e.t.Over15Gate, 1},
		{models.BestBet{Type: BetHomeDraw, Confidence: round1(p.home + p.draw), Description: "Home win or draw"}, e.t.DoubleChanceGate, 2},
		{models.BestBet{Type: BetDrawAway, Confidence: round1(p.draw + p.away), Description: "Draw or away win"}, e.t.DoubleChanceGate, 2},
		{models.BestBet{Type: BetNoDraw, Confidence: round1(p.home + p.away), Description: "Either side to win"}, e.t.NoDrawGate, 2},
	}

	var best *betCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.bet.Confidence < c.gate {
			continue
		}
		if best == nil || c.tier < best.tier || (c.tier == best.tier && c.bet.Confidence > best.bet.Confidence) {
			best = c
		}
	}
	if best != nil {
		return best.bet
	}

	top := argmax(p)
	fallback := models.BestBet{Type: BetHomeWin, Confidence: p.home, Description: "Home win"}
	switch top {
	case models.OutcomeDraw:
		fallback = models.BestBet{Type: BetDraw, Confidence: p.draw, Description: "Draw"}
	case models.OutcomeAway:
		fallback = models.BestBet{Type: BetAwayWin, Confidence: p.away, Description: "Away win"}
	}
	fallback.Description = fmt.Sprintf("%s (no market cleared its threshold)", fallback.Description)
	return fallback
}

// argmax returns the most probable outcome; ties go home, then draw
func argmax(p probs) models.Outcome {
	switch {
	case p.home >= p.draw && p.home >= p.away:
		return models.OutcomeHome
	case p.draw >= p.away:
		return models.OutcomeDraw
	default:
		return models.OutcomeAway
	}
}
