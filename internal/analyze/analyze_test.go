package analyze

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/internal/database"
	"github.com/Alias1177/MatchPredictor/internal/signals"
	"github.com/Alias1177/MatchPredictor/internal/storage"
	"github.com/Alias1177/MatchPredictor/models"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fixture struct {
	repo     *storage.SQLStore
	lock     *storage.WriterLock
	notifier *recordingNotifier
	registry *signals.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewSQLite(context.Background(), filepath.Join(dir, "predictor.db"))
	require.NoError(t, err)
	repo := storage.NewSQLStore(db)
	t.Cleanup(func() { repo.Close() })

	stats := signals.NewMemoryStats()
	stats.PutTeam("epl", signals.TeamStats{TeamID: "ars", Rating: 0.9, RecentForm: []string{"W", "W", "W", "W", "W"}, GoalsFor: 2.4, GoalsAgainst: 0.6, DrawRate: 0.15})
	stats.PutTeam("epl", signals.TeamStats{TeamID: "shu", Rating: 0.2, RecentForm: []string{"L", "L", "L", "D", "L"}, GoalsFor: 0.7, GoalsAgainst: 2.3, DrawRate: 0.2})
	stats.PutLeague("epl", models.LeagueProfile{HomeAdvantage: 2, DrawTendency: 1, AvgGoals: 2.8})

	return &fixture{
		repo:     repo,
		lock:     storage.NewWriterLock(filepath.Join(dir, "writer.lock"), time.Hour),
		notifier: &recordingNotifier{},
		registry: signals.NewRegistry(signals.DefaultProviders(stats)...),
	}
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	return NewService(context.Background(), Options{
		Tuning:   config.DefaultTuning(),
		Repo:     f.repo,
		Registry: f.registry,
		Lock:     f.lock,
		Notifier: f.notifier,
	})
}

func fixtureMatch(id string) models.MatchContext {
	return models.MatchContext{
		MatchID:  id,
		League:   "epl",
		HomeTeam: models.Team{ID: "ars", Name: "Arsenal"},
		AwayTeam: models.Team{ID: "shu", Name: "Sheffield United"},
	}
}

// settleDraws predicts n matches and records a 1-1 draw for each
func settleDraws(t *testing.T, s *Service, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%03d", i)
		rec, err := s.Predict(ctx, fixtureMatch(id))
		require.NoError(t, err)
		require.Equal(t, models.OutcomeHome, rec.PredictedWinner)
		_, err = s.RecordOutcome(ctx, id, 1, 1)
		require.NoError(t, err)
	}
}

func TestPredict(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)
	ctx := context.Background()

	rec, err := s.Predict(ctx, fixtureMatch("m1"))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "1.0.0.0", rec.ModelVersion)
	assert.InDelta(t, 100, rec.ProbHome+rec.ProbDraw+rec.ProbAway, 0.11)
	assert.Equal(t, models.OutcomeHome, rec.PredictedWinner)
	assert.Empty(t, rec.SyntheticSignals)
	assert.False(t, rec.CreatedAt.IsZero())

	stored, err := f.repo.GetPrediction(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)

	_, err = s.Predict(ctx, models.MatchContext{})
	assert.Error(t, err)
}

func TestPredictAfterOutcomeReturnsStoredRecord(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)
	ctx := context.Background()

	first, err := s.Predict(ctx, fixtureMatch("m1"))
	require.NoError(t, err)
	out, err := s.RecordOutcome(ctx, "m1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAway, out.Result)

	again, err := s.Predict(ctx, fixtureMatch("m1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = s.RecordOutcome(ctx, "m1", 1, 0)
	assert.ErrorIs(t, err, storage.ErrOutcomeRecorded)
}

func TestRecordOutcomeValidation(t *testing.T) {
	s := newFixture(t).service(t)
	ctx := context.Background()

	_, err := s.RecordOutcome(ctx, "", 1, 0)
	assert.Error(t, err)
	_, err = s.RecordOutcome(ctx, "m1", -1, 0)
	assert.Error(t, err)
}

func TestRunLearningWithoutData(t *testing.T) {
	s := newFixture(t).service(t)

	report, err := s.RunLearning(context.Background())
	require.NoError(t, err)
	assert.True(t, report.NoData)
	assert.Equal(t, models.DefaultCoefficients(), s.Context().Corrections.Global)
}

func TestRunLearningPublishesCorrections(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)
	settleDraws(t, s, 12)

	report, err := s.RunLearning(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, report.Summary.Total)
	assert.Equal(t, 12, report.Summary.MissedDraws)
	require.NotEmpty(t, report.Corrections)

	live := s.Context()
	assert.Greater(t, live.Corrections.Global.DrawBoost, 0.0)
	assert.InDelta(t, 0, live.Version.CurrentAccuracy, 1e-9)
	assert.Equal(t, 0, live.Version.Build, "learning never bumps the build")

	persisted, err := f.repo.LoadCorrectionState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, live.Corrections.Global, persisted.Global)

	// a restarted service sees the same state
	restarted := f.service(t)
	assert.Equal(t, live.Corrections.Global, restarted.Context().Corrections.Global)
}

func TestRunLearningRespectsWriterLock(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)

	release, err := f.lock.Acquire("other")
	require.NoError(t, err)
	defer release()

	_, err = s.RunLearning(context.Background())
	assert.ErrorIs(t, err, storage.ErrLocked)
}

func TestRunEvolutionNotDue(t *testing.T) {
	f := newFixture(t)
	trained := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.repo.SaveModelVersion(context.Background(), models.ModelVersion{Major: 1, Build: 3, CurrentAccuracy: 0.6, LastTraining: &trained}))
	s := f.service(t)

	result, err := s.RunEvolution(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.RetrainNotEligible, result.Status)
	assert.Equal(t, "5 days remaining until next retrain", result.Reason)
	assert.Equal(t, "1.0.0.3", result.Version)

	forced, err := s.RunEvolution(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, models.RetrainNotEligible, forced.Status)
	assert.Equal(t, 0, forced.Samples)
	assert.Empty(t, f.notifier.sent())
}

func TestRunEvolutionCommitsAndNotifies(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)
	settleDraws(t, s, 60)

	_, err := s.RunLearning(context.Background())
	require.NoError(t, err)

	result, err := s.RunEvolution(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, models.RetrainCommitted, result.Status, result.Reason)
	assert.Equal(t, 60, result.Samples)
	assert.Equal(t, "1.0.0.1", result.Version)
	assert.Equal(t, "1.0.0.1", s.Context().Version.String())

	artifact, err := f.repo.LoadClassifier(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, artifact)

	// new predictions carry the committed version
	rec, err := s.Predict(context.Background(), fixtureMatch("next"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0.1", rec.ModelVersion)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Model 1.0.0.1 committed")

	// a second run right away is not due
	again, err := s.RunEvolution(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, models.RetrainNotEligible, again.Status)
	assert.Len(t, f.notifier.sent(), 1)
}

func TestRefreshPicksUpExternalWrites(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)

	state := models.DefaultCorrectionState()
	state.Global.DrawBoost = 2
	require.NoError(t, f.repo.SaveCorrectionState(context.Background(), state))
	assert.InDelta(t, 0, s.Context().Corrections.Global.DrawBoost, 1e-9)

	s.Refresh(context.Background())
	assert.InDelta(t, 2, s.Context().Corrections.Global.DrawBoost, 1e-9)
}
