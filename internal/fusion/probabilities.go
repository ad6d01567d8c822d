package fusion

import (
	"fmt"
	"math"

	"github.com/Alias1177/MatchPredictor/models"
)

// probs holds percentages for home, draw and away
type probs struct {
	home, draw, away float64
}

func (p probs) sum() float64 { return p.home + p.draw + p.away }

func (p probs) finite() bool {
	for _, v := range []float64{p.home, p.draw, p.away} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// shiftHome moves d points from away to home (negative d favours away)
func (p *probs) shiftHome(d float64) {
	p.home += d
	p.away -= d
}

// addDraw moves d points into the draw, taken evenly from both win sides
func (p *probs) addDraw(d float64) {
	p.draw += d
	p.home -= d / 2
	p.away -= d / 2
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func capAbs(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// baseProbabilities splits 100 points from the strength difference plus the home advantage.
// Draws are likeliest between evenly matched sides and shrink as the gap grows.
func (e *Engine) baseProbabilities(b models.SignalBundle, c models.Coefficients) (probs, string) {
	diff := b.StrengthHome - b.StrengthAway + c.HomeAdvantageBoost

	draw := math.Max(e.t.DrawFloor, e.t.DrawBase-e.t.DrawGapSlope*math.Abs(diff))
	rest := 100 - draw
	home := rest * logistic(e.t.StrengthSteepness*diff)

	factor := fmt.Sprintf("Strength %.2f vs %.2f with home advantage %.2f", b.StrengthHome, b.StrengthAway, c.HomeAdvantageBoost)
	return probs{home: home, draw: draw, away: rest - home}, factor
}

// applySignals adds every available signal as a delta, in fusion order
func (e *Engine) applySignals(p probs, b models.SignalBundle, c models.Coefficients) (probs, []string) {
	var factors []string

	if b.Has(models.SignalForm) {
		d := (b.FormScoreHome - b.FormScoreAway) * e.t.FormWeight / 2
		p.shiftHome(d)
		if math.Abs(d) >= 0.5 {
			factors = append(factors, fmt.Sprintf("Recent form favours %s (%+.1f pts)", side(d), d))
		}
	}

	if b.Has(models.SignalGoals) {
		d := (b.ExpectedGoalsHome - b.ExpectedGoalsAway) * e.t.GoalsWeight / 2
		p.shiftHome(d)
		total := b.ExpectedGoalsHome + b.ExpectedGoalsAway
		if total < e.t.LowScoringLine {
			boost := (e.t.LowScoringLine - total) * e.t.LowScoringDrawWeight
			p.addDraw(boost)
			factors = append(factors, fmt.Sprintf("Low expected goals (%.2f) lifts the draw by %.1f pts", total, boost))
		}
		if math.Abs(d) >= 0.5 {
			factors = append(factors, fmt.Sprintf("Expected goals %.2f-%.2f favour %s", b.ExpectedGoalsHome, b.ExpectedGoalsAway, side(d)))
		}
	}

	if b.Has(models.SignalDraw) {
		d := (b.DrawPropensity - models.NeutralDrawPropensity) * e.t.DrawSignalWeight
		p.addDraw(d)
		if math.Abs(d) >= 0.5 {
			factors = append(factors, fmt.Sprintf("Draw propensity %.2f moves the draw %+.1f pts", b.DrawPropensity, d))
		}
	}

	if b.Has(models.SignalTactical) {
		d := capAbs(b.TacticalAdjustment, e.t.TacticalCap)
		p.shiftHome(d)
		if d != 0 {
			factors = append(factors, fmt.Sprintf("Tactical matchup favours %s (%+.1f pts)", side(d), d))
		}
	}

	if b.Has(models.SignalLeague) {
		adv := capAbs(b.LeagueProfile.HomeAdvantage, e.t.LeagueCap)
		draw := capAbs(b.LeagueProfile.DrawTendency, e.t.LeagueCap)
		p.shiftHome(adv)
		p.addDraw(draw)
		if adv != 0 || draw != 0 {
			factors = append(factors, fmt.Sprintf("League profile: home %+.1f, draw %+.1f pts", adv, draw))
		}
	}

	if b.Has(models.SignalReferee) {
		d := capAbs(b.RefereeAdjustment, e.t.RefereeCap)
		p.shiftHome(d)
		if math.Abs(d) >= 0.5 {
			factors = append(factors, fmt.Sprintf("Referee record favours %s (%+.1f pts)", side(d), d))
		}
	}

	if b.Has(models.SignalAbsence) {
		d := (b.AbsenceImpactAway - b.AbsenceImpactHome) * e.t.AbsenceWeight
		p.shiftHome(d)
		if d != 0 {
			factors = append(factors, fmt.Sprintf("Absences weaken %s (%+.1f pts)", side(-d), d))
		}
	}

	// learned corrections come last
	if c.DrawBoost != 0 {
		p.addDraw(c.DrawBoost)
		factors = append(factors, fmt.Sprintf("Learned draw boost %+.1f pts", c.DrawBoost))
	}
	if c.AwayPenalty != 0 {
		p.away -= c.AwayPenalty
		p.home += c.AwayPenalty / 2
		p.draw += c.AwayPenalty / 2
		factors = append(factors, fmt.Sprintf("Learned away penalty -%.1f pts", c.AwayPenalty))
	}

	return p, factors
}

// escalateDraw raises the draw to the detector's estimate only when the
// estimate clears the current draw by the margin, the win sides are tight
// and neither side is a clear favourite. Points are taken from the win sides
// in proportion to their size.
func (e *Engine) escalateDraw(p probs, detector float64) (probs, bool) {
	if detector-p.draw < e.t.DrawEscalationMargin {
		return p, false
	}
	if math.Abs(p.home-p.away) >= e.t.DrawTightness {
		return p, false
	}
	if p.home >= e.t.ClearFavoriteCutoff || p.away >= e.t.ClearFavoriteCutoff {
		return p, false
	}

	wins := p.home + p.away
	gain := detector - p.draw
	if wins <= 0 || gain >= wins {
		return p, false
	}
	p.home -= gain * p.home / wins
	p.away -= gain * p.away / wins
	p.draw = detector
	return p, true
}

// normalize replaces unusable values with the neutral split, clamps each
// side to its band and rescales to 100 with one decimal place. Any rounding
// residual goes to the largest side so the total is exactly 100.
func (e *Engine) normalize(p probs) probs {
	if !p.finite() {
		p = e.neutral()
	}
	p.home = math.Max(0, p.home)
	p.draw = math.Max(0, p.draw)
	p.away = math.Max(0, p.away)
	if p.sum() <= 0 {
		p = e.neutral()
	}

	p.home = e.t.HomeBand.Clamp(p.home)
	p.draw = e.t.DrawBand.Clamp(p.draw)
	p.away = e.t.AwayBand.Clamp(p.away)

	total := p.sum()
	p.home = round1(p.home * 100 / total)
	p.draw = round1(p.draw * 100 / total)
	p.away = round1(p.away * 100 / total)

	residual := round1(100 - p.sum())
	switch {
	case p.home >= p.draw && p.home >= p.away:
		p.home = round1(p.home + residual)
	case p.away >= p.draw:
		p.away = round1(p.away + residual)
	default:
		p.draw = round1(p.draw + residual)
	}
	return p
}

func (e *Engine) neutral() probs {
	rest := 100 - e.t.DrawBase
	return probs{home: rest / 2, draw: e.t.DrawBase, away: rest / 2}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func side(d float64) string {
	if d >= 0 {
		return "home"
	}
	return "away"
}
