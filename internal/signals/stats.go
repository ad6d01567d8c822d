package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Alias1177/MatchPredictor/models"
)

// Tactical styles understood by the tactical provider
const (
	StyleAttacking  = "ATTACKING"
	StyleDefensive  = "DEFENSIVE"
	StylePressing   = "PRESSING"
	StyleCounter    = "COUNTER"
	StylePossession = "POSSESSION"
	StyleBalanced   = "BALANCED"
)

// TeamStats are the per-team numbers read by the default providers
type TeamStats struct {
	TeamID       string   `json:"team_id"`
	Rating       float64  `json:"rating"`        // 0-1 strength rating
	RecentForm   []string `json:"recent_form"`   // newest last, W/D/L
	GoalsFor     float64  `json:"goals_for"`     // per game
	GoalsAgainst float64  `json:"goals_against"` // per game
	DrawRate     float64  `json:"draw_rate"`     // share of matches drawn
	Style        string   `json:"style,omitempty"`
}

// RefereeProfile summarises how a referee's matches tend to end
type RefereeProfile struct {
	Name        string  `json:"name"`
	HomeWinRate float64 `json:"home_win_rate"`
	Matches     int     `json:"matches"`
}

// StatsSource is the structured data the default providers are built on
type StatsSource interface {
	Team(ctx context.Context, league, teamID string) (TeamStats, bool, error)
	League(ctx context.Context, league string) (models.LeagueProfile, bool, error)
	Referee(ctx context.Context, name string) (RefereeProfile, bool, error)
}

// MemoryStats is an in-memory StatsSource, usually loaded from a JSON snapshot
// of the form {"teams": {league: [...]}, "leagues": {...}, "referees": [...]}
type MemoryStats struct {
	mu       sync.RWMutex
	Teams    map[string]TeamStats // keyed by league/team_id
	Leagues  map[string]models.LeagueProfile
	Referees map[string]RefereeProfile
}

// NewMemoryStats returns an empty source
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		Teams:    make(map[string]TeamStats),
		Leagues:  make(map[string]models.LeagueProfile),
		Referees: make(map[string]RefereeProfile),
	}
}

// LoadMemoryStats reads a JSON snapshot of teams, leagues and referees
func LoadMemoryStats(path string) (*MemoryStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stats file: %w", err)
	}
	var raw struct {
		Teams    map[string][]TeamStats          `json:"teams"` // keyed by league
		Leagues  map[string]models.LeagueProfile `json:"leagues"`
		Referees []RefereeProfile                `json:"referees"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing stats file: %w", err)
	}

	s := NewMemoryStats()
	for league, teams := range raw.Teams {
		for _, t := range teams {
			s.PutTeam(league, t)
		}
	}
	for league, p := range raw.Leagues {
		s.PutLeague(league, p)
	}
	for _, r := range raw.Referees {
		s.PutReferee(r)
	}
	return s, nil
}

func teamKey(league, teamID string) string {
	return strings.ToLower(league) + "/" + strings.ToLower(teamID)
}

// PutTeam stores stats for a team in a league
func (s *MemoryStats) PutTeam(league string, t TeamStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Teams[teamKey(league, t.TeamID)] = t
}

// PutLeague stores a league profile
func (s *MemoryStats) PutLeague(league string, p models.LeagueProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Leagues[strings.ToLower(league)] = p
}

// PutReferee stores a referee profile
func (s *MemoryStats) PutReferee(r RefereeProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Referees[strings.ToLower(r.Name)] = r
}

func (s *MemoryStats) Team(_ context.Context, league, teamID string) (TeamStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.Teams[teamKey(league, teamID)]
	return t, ok, nil
}

func (s *MemoryStats) League(_ context.Context, league string) (models.LeagueProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.Leagues[strings.ToLower(league)]
	return p, ok, nil
}

func (s *MemoryStats) Referee(_ context.Context, name string) (RefereeProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.Referees[strings.ToLower(name)]
	return r, ok, nil
}
