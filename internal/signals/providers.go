package signals

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/Alias1177/MatchPredictor/models"
)

// ErrUnavailable means a provider has nothing to say about a match.
// The registry substitutes the neutral default and carries on.
var ErrUnavailable = errors.New("signal unavailable")

// StrengthProvider reads team ratings
type StrengthProvider struct {
	Stats StatsSource
}

func (p *StrengthProvider) Name() models.SignalName { return models.SignalStrength }

func (p *StrengthProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	home, away, err := teamPair(ctx, p.Stats, m)
	if err != nil {
		return models.PartialSignal{}, err
	}

	out := models.PartialSignal{Name: models.SignalStrength}
	if home != nil {
		out.Home = home.Rating
	} else {
		out.Home = syntheticValue("strength:"+m.HomeTeam.Name, 0.35, 0.75)
		out.Synthetic = true
	}
	if away != nil {
		out.Away = away.Rating
	} else {
		out.Away = syntheticValue("strength:"+m.AwayTeam.Name, 0.35, 0.75)
		out.Synthetic = true
	}
	return out, nil
}

// FormProvider scores the last five results, newest weighted highest
type FormProvider struct {
	Stats StatsSource
}

func (p *FormProvider) Name() models.SignalName { return models.SignalForm }

func (p *FormProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	home, away, err := teamPair(ctx, p.Stats, m)
	if err != nil {
		return models.PartialSignal{}, err
	}

	out := models.PartialSignal{Name: models.SignalForm}
	var ok bool
	if out.Home, ok = formFromStats(home); !ok {
		out.Home = syntheticValue("form:"+m.HomeTeam.Name, 0.3, 0.7)
		out.Synthetic = true
	}
	if out.Away, ok = formFromStats(away); !ok {
		out.Away = syntheticValue("form:"+m.AwayTeam.Name, 0.3, 0.7)
		out.Synthetic = true
	}
	return out, nil
}

func formFromStats(t *TeamStats) (float64, bool) {
	if t == nil || len(t.RecentForm) == 0 {
		return 0, false
	}
	return FormScore(t.RecentForm), true
}

// FormScore maps W/D/L results (newest last) onto [0,1]
func FormScore(results []string) float64 {
	if len(results) > 5 {
		results = results[len(results)-5:]
	}

	var points, maxPoints float64
	for i, r := range results {
		weight := float64(i + 1)
		maxPoints += 3 * weight
		switch strings.ToUpper(r) {
		case "W":
			points += 3 * weight
		case "D":
			points += weight
		}
	}
	if maxPoints == 0 {
		return models.NeutralForm
	}
	return points / maxPoints
}

// GoalsProvider estimates expected goals from scoring and conceding rates
type GoalsProvider struct {
	Stats StatsSource
}

func (p *GoalsProvider) Name() models.SignalName { return models.SignalGoals }

func (p *GoalsProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	home, away, err := teamPair(ctx, p.Stats, m)
	if err != nil {
		return models.PartialSignal{}, err
	}

	if home == nil || away == nil {
		return models.PartialSignal{
			Name:      models.SignalGoals,
			Home:      syntheticValue("xg-home:"+m.HomeTeam.Name, 1.0, 1.8),
			Away:      syntheticValue("xg-away:"+m.AwayTeam.Name, 0.8, 1.5),
			Synthetic: true,
		}, nil
	}

	// venue split: hosts score a little more, visitors a little less
	xgHome := (home.GoalsFor + away.GoalsAgainst) / 2 * 1.05
	xgAway := (away.GoalsFor + home.GoalsAgainst) / 2 * 0.95
	return models.PartialSignal{Name: models.SignalGoals, Home: xgHome, Away: xgAway}, nil
}

// DrawProvider estimates how likely the fixture is to end level
type DrawProvider struct {
	Stats StatsSource
}

func (p *DrawProvider) Name() models.SignalName { return models.SignalDraw }

func (p *DrawProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	home, away, err := teamPair(ctx, p.Stats, m)
	if err != nil {
		return models.PartialSignal{}, err
	}

	if home == nil || away == nil {
		return models.PartialSignal{
			Name:      models.SignalDraw,
			Value:     syntheticValue("draw:"+m.HomeTeam.Name+"|"+m.AwayTeam.Name, 0.20, 0.34),
			Synthetic: true,
		}, nil
	}

	return models.PartialSignal{
		Name:  models.SignalDraw,
		Value: DrawPropensity(home.DrawRate, away.DrawRate, home.Rating-away.Rating),
	}, nil
}

// DrawPropensity blends both sides' draw rates with how evenly matched they are
func DrawPropensity(homeDrawRate, awayDrawRate, ratingGap float64) float64 {
	base := (homeDrawRate + awayDrawRate) / 2
	closeness := 1 - math.Min(1, math.Abs(ratingGap))
	return math.Max(0, math.Min(1, 0.7*base+0.35*0.3*closeness))
}

// tacticalMatchups maps home style / away style to a home-favouring shift in percentage points
var tacticalMatchups = map[[2]string]float64{
	{StyleAttacking, StyleDefensive}:  1.0,
	{StyleDefensive, StyleAttacking}:  -1.0,
	{StyleCounter, StylePossession}:   1.5,
	{StylePossession, StyleCounter}:   -1.5,
	{StylePressing, StylePossession}:  2.0,
	{StylePossession, StylePressing}:  -2.0,
	{StyleCounter, StyleAttacking}:    1.0,
	{StyleAttacking, StyleCounter}:    -1.0,
	{StylePressing, StyleDefensive}:   0.5,
	{StyleDefensive, StylePressing}:   -0.5,
	{StyleAttacking, StyleAttacking}:  0.5,
	{StylePossession, StyleDefensive}: 0.5,
}

// TacticalProvider compares the playing styles of both sides
type TacticalProvider struct {
	Stats StatsSource
}

func (p *TacticalProvider) Name() models.SignalName { return models.SignalTactical }

func (p *TacticalProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	home, away, err := teamPair(ctx, p.Stats, m)
	if err != nil {
		return models.PartialSignal{}, err
	}
	if home == nil || away == nil || home.Style == "" || away.Style == "" {
		return models.PartialSignal{}, ErrUnavailable
	}

	shift := tacticalMatchups[[2]string{strings.ToUpper(home.Style), strings.ToUpper(away.Style)}]
	return models.PartialSignal{Name: models.SignalTactical, Value: shift}, nil
}

// LeagueProvider looks up the competition profile
type LeagueProvider struct {
	Stats StatsSource
}

func (p *LeagueProvider) Name() models.SignalName { return models.SignalLeague }

func (p *LeagueProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	if p.Stats == nil {
		return models.PartialSignal{}, ErrUnavailable
	}
	profile, ok, err := p.Stats.League(ctx, m.League)
	if err != nil {
		return models.PartialSignal{}, err
	}
	if !ok {
		return models.PartialSignal{}, ErrUnavailable
	}
	return models.PartialSignal{Name: models.SignalLeague, League: &profile}, nil
}

// minRefereeMatches is the sample below which a referee's record is treated as noise
const minRefereeMatches = 10

// RefereeProvider turns a referee's home-win record into a bias
type RefereeProvider struct {
	Stats StatsSource
}

func (p *RefereeProvider) Name() models.SignalName { return models.SignalReferee }

func (p *RefereeProvider) Compute(ctx context.Context, m models.MatchContext) (models.PartialSignal, error) {
	if p.Stats == nil || strings.TrimSpace(m.Referee) == "" {
		return models.PartialSignal{}, ErrUnavailable
	}

	profile, ok, err := p.Stats.Referee(ctx, m.Referee)
	if err != nil {
		return models.PartialSignal{}, err
	}
	if !ok || profile.Matches < minRefereeMatches {
		return models.PartialSignal{
			Name:      models.SignalReferee,
			Value:     syntheticValue("referee:"+m.Referee, -1, 1),
			Synthetic: true,
		}, nil
	}

	// league-wide home win share sits around 45%
	return models.PartialSignal{
		Name:  models.SignalReferee,
		Value: (profile.HomeWinRate - 0.45) * 100 * 0.2,
	}, nil
}

// AbsenceProvider sums the impact of missing players on each side
type AbsenceProvider struct{}

func (p *AbsenceProvider) Name() models.SignalName { return models.SignalAbsence }

func (p *AbsenceProvider) Compute(_ context.Context, m models.MatchContext) (models.PartialSignal, error) {
	if len(m.HomeAbsences) == 0 && len(m.AwayAbsences) == 0 {
		return models.PartialSignal{}, ErrUnavailable
	}
	return models.PartialSignal{
		Name: models.SignalAbsence,
		Home: absenceImpact(m.HomeAbsences),
		Away: absenceImpact(m.AwayAbsences),
	}, nil
}

func absenceImpact(absences []models.Absence) float64 {
	var total float64
	for _, a := range absences {
		total += math.Max(0, math.Min(1, a.ImpactWeight))
	}
	return math.Min(1, total)
}

// teamPair loads both sides; a missing team comes back nil
func teamPair(ctx context.Context, stats StatsSource, m models.MatchContext) (*TeamStats, *TeamStats, error) {
	if stats == nil {
		return nil, nil, nil
	}
	h, hok, err := stats.Team(ctx, m.League, m.HomeTeam.ID)
	if err != nil {
		return nil, nil, err
	}
	a, aok, err := stats.Team(ctx, m.League, m.AwayTeam.ID)
	if err != nil {
		return nil, nil, err
	}

	var home, away *TeamStats
	if hok {
		home = &h
	}
	if aok {
		away = &a
	}
	return home, away, nil
}

// DefaultProviders returns the built-in providers in fusion order
func DefaultProviders(stats StatsSource) []models.SignalProvider {
	return []models.SignalProvider{
		&StrengthProvider{Stats: stats},
		&FormProvider{Stats: stats},
		&GoalsProvider{Stats: stats},
		&DrawProvider{Stats: stats},
		&TacticalProvider{Stats: stats},
		&LeagueProvider{Stats: stats},
		&RefereeProvider{Stats: stats},
		&AbsenceProvider{},
	}
}
