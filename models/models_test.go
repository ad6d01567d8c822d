package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeFromScore(t *testing.T) {
	tests := []struct {
		home, away int
		want       Outcome
	}{
		{2, 1, OutcomeHome},
		{0, 0, OutcomeDraw},
		{3, 3, OutcomeDraw},
		{0, 2, OutcomeAway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutcomeFromScore(tt.home, tt.away))
	}
}

func TestSignalBundleApply(t *testing.T) {
	b := NewSignalBundle()
	assert.False(t, b.Has(SignalStrength))
	assert.InDelta(t, NeutralStrength, b.StrengthHome, 1e-9)

	b.Apply(PartialSignal{Name: SignalStrength, Home: 1.4, Away: -0.2, Synthetic: true})
	assert.True(t, b.Has(SignalStrength))
	assert.False(t, b.Observed(SignalStrength))
	assert.InDelta(t, 1, b.StrengthHome, 1e-9, "clamped to [0,1]")
	assert.InDelta(t, 0, b.StrengthAway, 1e-9)

	b.Apply(PartialSignal{Name: SignalForm, Home: math.NaN(), Away: 0.4})
	assert.False(t, b.Has(SignalForm), "non-finite values are ignored")
	assert.InDelta(t, NeutralForm, b.FormScoreHome, 1e-9)

	b.Apply(PartialSignal{Name: SignalLeague})
	assert.False(t, b.Has(SignalLeague), "league signal needs a profile")

	b.Apply(PartialSignal{Name: SignalLeague, League: &LeagueProfile{HomeAdvantage: 2}})
	assert.InDelta(t, NeutralLeagueAvgGoals, b.LeagueProfile.AvgGoals, 1e-9)

	assert.Equal(t, []string{string(SignalStrength)}, b.SyntheticNames())
}

func TestZeroValueBundleApply(t *testing.T) {
	var b SignalBundle
	b.Apply(PartialSignal{Name: SignalDraw, Value: 0.3})
	assert.True(t, b.Observed(SignalDraw))
}

func TestCoefficientBounds(t *testing.T) {
	bounds := DefaultCoefficientBounds()
	assert.NoError(t, bounds.Validate(DefaultCoefficients()))

	c := DefaultCoefficients()
	c.DrawBoost = -3
	c.ConfidenceThresholdAway = math.NaN()
	assert.Error(t, bounds.Validate(c))

	clamped := bounds.Clamp(c)
	assert.NoError(t, bounds.Validate(clamped))
	assert.InDelta(t, 0, clamped.DrawBoost, 1e-9)
}

func TestCorrectionStateCloneIsDeep(t *testing.T) {
	s := DefaultCorrectionState()
	s.Leagues["epl"] = LeagueOverride{Coefficients: s.Global}

	clone := s.Clone()
	clone.Leagues["liga"] = LeagueOverride{}
	delete(clone.Leagues, "epl")

	assert.Contains(t, s.Leagues, "epl")
	assert.NotContains(t, s.Leagues, "liga")
	assert.Equal(t, s.Global, s.For("unknown"))
}

func TestModelVersion(t *testing.T) {
	v := DefaultModelVersion()
	assert.Equal(t, "1.0.0.0", v.String())

	for i := 0; i < 5; i++ {
		v.AppendImprovement(ImprovementEntry{Delta: float64(i)}, 3)
	}
	assert.Len(t, v.ImprovementLog, 3)
	assert.InDelta(t, 4, v.ImprovementLog[2].Delta, 1e-9)

	now := time.Now()
	v.LastTraining = &now
	clone := v.Clone()
	*clone.LastTraining = now.Add(time.Hour)
	clone.ImprovementLog[0].Delta = 99
	assert.True(t, v.LastTraining.Equal(now))
	assert.InDelta(t, 2, v.ImprovementLog[0].Delta, 1e-9)
}

func TestDaysHelpers(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	assert.Equal(t, 2, DaysSince(base, base.Add(50*time.Hour)))
	assert.Equal(t, 0, DaysSince(base, base.Add(-time.Hour)))
	assert.Equal(t, 5, DaysRemaining(base, base.Add(48*time.Hour), week))
	assert.Equal(t, 1, DaysRemaining(base, base.Add(week-time.Hour), week))
	assert.Equal(t, 0, DaysRemaining(base, base.Add(week), week))
}

func TestBuiltOnSynthetic(t *testing.T) {
	tests := []struct {
		synthetic []string
		want      bool
	}{
		{nil, false},
		{[]string{string(SignalReferee)}, false},
		{[]string{string(SignalGoals)}, true},
		{[]string{string(SignalTactical), string(SignalStrength)}, true},
	}
	for _, tt := range tests {
		rec := PredictionRecord{SyntheticSignals: tt.synthetic}
		assert.Equal(t, tt.want, rec.BuiltOnSynthetic(), "%v", tt.synthetic)
	}
}
