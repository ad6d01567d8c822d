package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MatchPredictor/models"
)

func TestFormScore(t *testing.T) {
	tests := []struct {
		name    string
		results []string
		want    float64
	}{
		{"all wins", []string{"W", "W", "W", "W", "W"}, 1},
		{"all losses", []string{"L", "L", "L", "L", "L"}, 0},
		{"no results", nil, 0.5},
		{"only the newest won", []string{"L", "L", "L", "L", "W"}, 15.0 / 45},
		{"only the oldest won", []string{"W", "L", "L", "L", "L"}, 3.0 / 45},
		{"draws", []string{"d", "d", "d", "d", "d"}, 15.0 / 45},
		{"older results ignored", []string{"W", "W", "L", "L", "L", "L", "L"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FormScore(tt.results), 1e-9)
		})
	}
}

func TestDrawPropensity(t *testing.T) {
	even := DrawPropensity(0.3, 0.3, 0)
	uneven := DrawPropensity(0.3, 0.3, 0.6)

	assert.InDelta(t, 0.315, even, 1e-9)
	assert.Less(t, uneven, even)
	assert.GreaterOrEqual(t, DrawPropensity(0, 0, 5), 0.0)
}

func TestSyntheticValuesAreDeterministic(t *testing.T) {
	ctx := context.Background()
	p := &StrengthProvider{Stats: NewMemoryStats()}
	match := models.MatchContext{
		MatchID:  "m1",
		HomeTeam: models.Team{ID: "x", Name: "Unknown United"},
		AwayTeam: models.Team{ID: "y", Name: "Nowhere Rovers"},
	}

	first, err := p.Compute(ctx, match)
	require.NoError(t, err)
	second, err := p.Compute(ctx, match)
	require.NoError(t, err)

	assert.True(t, first.Synthetic)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first.Home, 0.35)
	assert.Less(t, first.Home, 0.75)

	match.HomeTeam.Name = "UNKNOWN united"
	third, err := p.Compute(ctx, match)
	require.NoError(t, err)
	assert.Equal(t, first.Home, third.Home, "key is normalised")
}

func testStats() *MemoryStats {
	s := NewMemoryStats()
	s.PutTeam("epl", TeamStats{TeamID: "ars", Rating: 0.8, RecentForm: []string{"W", "W", "D", "W", "W"}, GoalsFor: 2.0, GoalsAgainst: 0.8, DrawRate: 0.2, Style: StylePressing})
	s.PutTeam("epl", TeamStats{TeamID: "che", Rating: 0.7, RecentForm: []string{"L", "D", "W", "L", "D"}, GoalsFor: 1.4, GoalsAgainst: 1.2, DrawRate: 0.3, Style: StylePossession})
	s.PutLeague("epl", models.LeagueProfile{HomeAdvantage: 2, DrawTendency: 1, AvgGoals: 2.8})
	s.PutReferee(RefereeProfile{Name: "M. Oliver", HomeWinRate: 0.50, Matches: 40})
	return s
}

func TestDefaultProvidersWithRealData(t *testing.T) {
	registry := NewRegistry(DefaultProviders(testStats())...)
	match := models.MatchContext{
		MatchID:      "m1",
		League:       "epl",
		HomeTeam:     models.Team{ID: "ars", Name: "Arsenal"},
		AwayTeam:     models.Team{ID: "che", Name: "Chelsea"},
		Referee:      "M. Oliver",
		AwayAbsences: []models.Absence{{Name: "Key Striker", ImpactWeight: 0.3}},
	}

	b, degraded := registry.Assemble(context.Background(), match)

	assert.Empty(t, degraded)
	for _, name := range models.SignalOrder {
		assert.True(t, b.Observed(name), "%s should be observed", name)
	}
	assert.InDelta(t, 0.8, b.StrengthHome, 1e-9)
	assert.InDelta(t, (2.0+1.2)/2*1.05, b.ExpectedGoalsHome, 1e-9)
	assert.InDelta(t, 2.0, b.TacticalAdjustment, 1e-9)
	assert.InDelta(t, 1.0, b.RefereeAdjustment, 1e-9)
	assert.InDelta(t, 0.3, b.AbsenceImpactAway, 1e-9)
	assert.InDelta(t, 2.8, b.LeagueProfile.AvgGoals, 1e-9)
}

type stubProvider struct {
	name models.SignalName
	fn   func() (models.PartialSignal, error)
}

func (s stubProvider) Name() models.SignalName { return s.name }
func (s stubProvider) Compute(context.Context, models.MatchContext) (models.PartialSignal, error) {
	return s.fn()
}

func TestAssembleDegradesFailingProviders(t *testing.T) {
	registry := NewRegistry(
		stubProvider{models.SignalStrength, func() (models.PartialSignal, error) {
			return models.PartialSignal{Home: 0.9, Away: 0.2}, nil
		}},
		stubProvider{models.SignalForm, func() (models.PartialSignal, error) {
			return models.PartialSignal{}, errors.New("upstream timeout")
		}},
		stubProvider{models.SignalGoals, func() (models.PartialSignal, error) {
			panic("boom")
		}},
		stubProvider{models.SignalTactical, func() (models.PartialSignal, error) {
			return models.PartialSignal{}, ErrUnavailable
		}},
	)

	b, degraded := registry.Assemble(context.Background(), models.MatchContext{MatchID: "m1"})

	require.Len(t, degraded, 3)
	assert.Equal(t, models.SignalForm, degraded[0].Signal)
	assert.Equal(t, models.SignalGoals, degraded[1].Signal)
	assert.ErrorIs(t, degraded[2].Err, ErrUnavailable)

	assert.True(t, b.Has(models.SignalStrength))
	assert.InDelta(t, 0.9, b.StrengthHome, 1e-9)
	assert.False(t, b.Has(models.SignalForm))
	assert.InDelta(t, models.NeutralForm, b.FormScoreHome, 1e-9)
	assert.InDelta(t, models.NeutralExpectedGoals, b.ExpectedGoalsHome, 1e-9)
	assert.False(t, b.Has(models.SignalReferee), "unregistered capability stays absent")
}

func TestRegistryCapabilities(t *testing.T) {
	r := NewRegistry(&AbsenceProvider{}, &StrengthProvider{})
	assert.Equal(t, []models.SignalName{models.SignalStrength, models.SignalAbsence}, r.Capabilities())

	r.Register(&RefereeProvider{})
	assert.Len(t, r.Capabilities(), 3)
}

func TestRefereeProvider(t *testing.T) {
	p := &RefereeProvider{Stats: testStats()}
	ctx := context.Background()

	_, err := p.Compute(ctx, models.MatchContext{})
	assert.ErrorIs(t, err, ErrUnavailable)

	unknown, err := p.Compute(ctx, models.MatchContext{Referee: "New Ref"})
	require.NoError(t, err)
	assert.True(t, unknown.Synthetic)
	assert.GreaterOrEqual(t, unknown.Value, -1.0)
	assert.Less(t, unknown.Value, 1.0)
}

func TestProvidersWithoutStatsAreUnavailable(t *testing.T) {
	m := models.MatchContext{
		MatchID:  "m1",
		League:   "epl",
		Referee:  "M. Oliver",
		HomeTeam: models.Team{ID: "ars"},
		AwayTeam: models.Team{ID: "che"},
	}
	tests := []struct {
		name     string
		provider models.SignalProvider
	}{
		{"league", &LeagueProvider{}},
		{"referee", &RefereeProvider{}},
		{"tactical", &TacticalProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := tt.provider.Compute(context.Background(), m)
				assert.ErrorIs(t, err, ErrUnavailable)
			})
		})
	}
}

func TestAbsenceImpactCapped(t *testing.T) {
	got := absenceImpact([]models.Absence{{ImpactWeight: 0.6}, {ImpactWeight: 0.7}, {ImpactWeight: -1}})
	assert.InDelta(t, 1, got, 1e-9)
}

func TestLoadMemoryStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	body := `{
		"teams": {"EPL": [{"team_id": "ARS", "rating": 0.8}]},
		"leagues": {"EPL": {"home_advantage": 2, "avg_goals": 2.7}},
		"referees": [{"name": "M. Oliver", "home_win_rate": 0.5, "matches": 20}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	s, err := LoadMemoryStats(path)
	require.NoError(t, err)

	team, ok, err := s.Team(context.Background(), "epl", "ars")
	require.NoError(t, err)
	require.True(t, ok, "lookups ignore case")
	assert.InDelta(t, 0.8, team.Rating, 1e-9)

	_, ok, err = s.League(context.Background(), "EPL")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = LoadMemoryStats(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type countingGetter struct {
	calls atomic.Int32
	err   error
	out   models.PartialSignal
}

func (g *countingGetter) GetJSON(_ context.Context, _ string, out interface{}) error {
	g.calls.Add(1)
	if g.err != nil {
		return g.err
	}
	*(out.(*models.PartialSignal)) = g.out
	return nil
}

func TestRemoteProvider(t *testing.T) {
	ok := &countingGetter{out: models.PartialSignal{Value: 2.5}}
	p := NewRemoteProvider(models.SignalTactical, "http://signals.local", ok)

	got, err := p.Compute(context.Background(), models.MatchContext{MatchID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, models.SignalTactical, got.Name)
	assert.InDelta(t, 2.5, got.Value, 1e-9)
}

func TestRemoteProviderOpensCircuit(t *testing.T) {
	failing := &countingGetter{err: errors.New("connection refused")}
	p := NewRemoteProvider(models.SignalReferee, "http://signals.local", failing)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := p.Compute(ctx, models.MatchContext{MatchID: "m1"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Compute(ctx, models.MatchContext{MatchID: "m1"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(4), failing.calls.Load(), "open circuit short-circuits the call")
}
