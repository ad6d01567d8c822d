package fusion

import "github.com/Alias1177/MatchPredictor/models"

// FeatureNames labels the columns produced by Features
var FeatureNames = []string{
	"strength_diff",
	"form_diff",
	"xg_diff",
	"xg_total",
	"draw_propensity",
	"tactical",
	"league_home_advantage",
	"referee",
	"absence_diff",
	"prob_home",
	"prob_draw",
	"prob_away",
}

// Features flattens the signals and fused probabilities into the vector the
// auxiliary classifier trains on. Its length always matches FeatureNames.
func Features(b models.SignalBundle, rec models.PredictionRecord) []float64 {
	return []float64{
		b.StrengthHome - b.StrengthAway,
		b.FormScoreHome - b.FormScoreAway,
		b.ExpectedGoalsHome - b.ExpectedGoalsAway,
		b.ExpectedGoalsHome + b.ExpectedGoalsAway,
		b.DrawPropensity,
		b.TacticalAdjustment / 10,
		b.LeagueProfile.HomeAdvantage / 10,
		b.RefereeAdjustment / 10,
		b.AbsenceImpactHome - b.AbsenceImpactAway,
		rec.ProbHome / 100,
		rec.ProbDraw / 100,
		rec.ProbAway / 100,
	}
}
