package evolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/internal/storage"
	"github.com/Alias1177/MatchPredictor/models"
)

var fixedNow = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu              sync.Mutex
	versions        []models.ModelVersion
	classifier      []byte
	failClassifier  bool
	failVersionSave bool
}

func (m *memStore) SaveModelVersion(_ context.Context, v models.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failVersionSave {
		return errors.New("disk full")
	}
	m.versions = append(m.versions, v.Clone())
	return nil
}

func (m *memStore) LoadClassifier(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.classifier == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), m.classifier...), nil
}

func (m *memStore) CommitTraining(_ context.Context, artifact []byte, v models.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClassifier || m.failVersionSave {
		return errors.New("disk full")
	}
	m.classifier = append([]byte(nil), artifact...)
	m.versions = append(m.versions, v.Clone())
	return nil
}

func newTestController(store Store, v models.ModelVersion) *Controller {
	c := NewController(config.DefaultTuning().Evolution, store, v)
	c.now = func() time.Time { return fixedNow }
	return c
}

// separablePairs gives each outcome its own region of feature space
func separablePairs(n int) []models.TrainingPair {
	pairs := make([]models.TrainingPair, n)
	for i := range pairs {
		class := models.Outcomes[i%3]
		f := []float64{0, 0, 0, float64(i%7) * 0.01}
		f[i%3] = 2 + float64(i%5)*0.1
		pairs[i] = models.TrainingPair{Features: f, Outcome: class}
	}
	return pairs
}

func daysAgo(d int) *time.Time {
	t := fixedNow.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestShouldRetrain(t *testing.T) {
	tuning := config.DefaultTuning().Evolution
	tests := []struct {
		name   string
		v      models.ModelVersion
		due    bool
		reason string
	}{
		{"never trained", models.ModelVersion{Major: 1}, true, "no prior training"},
		{"interval elapsed", models.ModelVersion{Major: 1, LastTraining: daysAgo(8), CurrentAccuracy: 0.55}, true, "8 days since last training"},
		{"accuracy below floor", models.ModelVersion{Major: 1, LastTraining: daysAgo(2), CurrentAccuracy: 0.45}, true, "accuracy 0.450 below floor 0.500"},
		{"recently trained", models.ModelVersion{Major: 1, LastTraining: daysAgo(2), CurrentAccuracy: 0.60}, false, "5 days remaining until next retrain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due, reason := ShouldRetrain(tt.v, fixedNow, tuning)
			assert.Equal(t, tt.due, due)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestRetrainNotEnoughSamples(t *testing.T) {
	store := &memStore{}
	c := newTestController(store, models.DefaultModelVersion())

	result := c.Retrain(context.Background(), separablePairs(40))

	assert.Equal(t, models.RetrainNotEligible, result.Status)
	assert.Equal(t, 40, result.Samples)
	assert.Equal(t, "1.0.0.0", c.Version().String())
	assert.Empty(t, store.versions)
	assert.Nil(t, store.classifier)
}

func TestRetrainDropsSyntheticPairs(t *testing.T) {
	store := &memStore{}
	c := newTestController(store, models.DefaultModelVersion())

	pairs := separablePairs(60)
	for i := 0; i < 20; i++ {
		pairs[i].Synthetic = true
	}
	result := c.Retrain(context.Background(), pairs)

	assert.Equal(t, models.RetrainNotEligible, result.Status)
	assert.Equal(t, 40, result.Samples)
}

func TestRetrainCommitsAndBuildIsMonotonic(t *testing.T) {
	store := &memStore{}
	c := newTestController(store, models.DefaultModelVersion())
	pairs := separablePairs(90)

	first := c.Retrain(context.Background(), pairs)
	require.Equal(t, models.RetrainCommitted, first.Status, first.Reason)
	assert.Equal(t, "1.0.0.1", first.Version)
	assert.Greater(t, first.AccuracyAfter, 0.9)
	assert.NotNil(t, store.classifier)

	v := c.Version()
	assert.Equal(t, 1, v.TotalTrainingSessions)
	require.NotNil(t, v.LastTraining)
	assert.Equal(t, fixedNow, *v.LastTraining)
	require.Len(t, v.ImprovementLog, 1)

	// the same data cannot beat itself, so the build stays put
	second := c.Retrain(context.Background(), pairs)
	assert.Equal(t, models.RetrainNoImprovement, second.Status)
	assert.Equal(t, 1, c.Version().Build)
	assert.Equal(t, 2, c.Version().TotalTrainingSessions)

	for i := 1; i < len(store.versions); i++ {
		assert.GreaterOrEqual(t, store.versions[i].Build, store.versions[i-1].Build)
	}

	clf, err := UnmarshalClassifier(store.classifier)
	require.NoError(t, err)
	got, err := clf.Predict([]float64{0, 2.2, 0, 0.02})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDraw, got)
}

func TestRetrainFailureKeepsState(t *testing.T) {
	tests := []struct {
		name  string
		store *memStore
	}{
		{"classifier save fails", &memStore{classifier: []byte("OLD"), failClassifier: true}},
		{"version save fails", &memStore{classifier: []byte("OLD"), failVersionSave: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(tt.store, models.DefaultModelVersion())

			result := c.Retrain(context.Background(), separablePairs(90))

			assert.Equal(t, models.RetrainTrainingFailed, result.Status)
			assert.NotEmpty(t, result.Reason)
			assert.Equal(t, models.DefaultModelVersion().String(), c.Version().String())
			assert.Nil(t, c.Version().LastTraining)
			assert.False(t, c.IsEvolving())
			assert.Equal(t, []byte("OLD"), tt.store.classifier)
			assert.Empty(t, tt.store.versions)
		})
	}
}

func TestRetrainBaselineIsCommittedClassifier(t *testing.T) {
	store := &memStore{}
	c := newTestController(store, models.DefaultModelVersion())
	pairs := separablePairs(90)

	first := c.Retrain(context.Background(), pairs)
	require.Equal(t, models.RetrainCommitted, first.Status, first.Reason)

	// learning batches keep reporting a weak live accuracy; retraining on the
	// same history must not read that as an improvement
	for round := 0; round < 3; round++ {
		require.NoError(t, c.ObserveAccuracy(context.Background(), 0.48))

		again := c.Retrain(context.Background(), pairs)
		assert.Equal(t, models.RetrainNoImprovement, again.Status)
		assert.InDelta(t, again.AccuracyAfter, again.AccuracyBefore, 1e-9)
		assert.Equal(t, "1.0.0.1", again.Version)
	}
	assert.Equal(t, 1, c.Version().Build)
}

func TestRetrainIgnoresIncompatibleArtifact(t *testing.T) {
	tests := []struct {
		name     string
		artifact []byte
	}{
		{"unreadable", []byte("OLD")},
		{"different feature width", []byte(`{"features":1,"mean":[0],"std":[1],"weights":[[0,0],[0,0],[0,0]]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := models.DefaultModelVersion()
			v.CurrentAccuracy = 0.48
			c := newTestController(&memStore{classifier: tt.artifact}, v)

			result := c.Retrain(context.Background(), separablePairs(90))
			assert.Equal(t, models.RetrainCommitted, result.Status, result.Reason)
			assert.InDelta(t, 0.48, result.AccuracyBefore, 1e-9)
		})
	}
}

func TestRetrainBusy(t *testing.T) {
	c := newTestController(&memStore{}, models.DefaultModelVersion())
	require.True(t, c.sem.TryAcquire(1))
	defer c.sem.Release(1)

	result := c.Retrain(context.Background(), separablePairs(90))
	assert.Equal(t, models.RetrainBusy, result.Status)
}

func TestRetrainCancelled(t *testing.T) {
	c := newTestController(&memStore{}, models.DefaultModelVersion())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.Retrain(ctx, separablePairs(90))
	assert.Equal(t, models.RetrainTrainingFailed, result.Status)
	assert.Equal(t, 0, c.Version().Build)
}

func TestRecordTrainingSessionThreshold(t *testing.T) {
	tests := []struct {
		name      string
		before    float64
		after     float64
		wantBuild int
	}{
		{"clear improvement", 0.50, 0.56, 1},
		{"within threshold", 0.50, 0.505, 0},
		{"regression", 0.60, 0.52, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(&memStore{}, models.DefaultModelVersion())
			v, err := c.RecordTrainingSession(context.Background(), tt.before, tt.after, "test")
			require.NoError(t, err)
			assert.Equal(t, tt.wantBuild, v.Build)
			assert.InDelta(t, tt.after, v.CurrentAccuracy, 1e-9)
			assert.Equal(t, 1, v.TotalTrainingSessions)
		})
	}
}

func TestObserveAccuracyNeverBumps(t *testing.T) {
	c := newTestController(&memStore{}, models.DefaultModelVersion())

	require.NoError(t, c.ObserveAccuracy(context.Background(), 0.7))
	require.NoError(t, c.ObserveAccuracy(context.Background(), 0.4))
	assert.Error(t, c.ObserveAccuracy(context.Background(), 1.5))

	v := c.Version()
	assert.Equal(t, 0, v.Build)
	assert.InDelta(t, 0.4, v.CurrentAccuracy, 1e-9)
	assert.InDelta(t, 0.7, v.BestAccuracy, 1e-9)
}

func TestFitRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		x    [][]float64
		y    []int
	}{
		{"empty", nil, nil},
		{"length mismatch", [][]float64{{1}}, []int{0, 1}},
		{"ragged rows", [][]float64{{1, 2}, {1}}, []int{0, 1}},
		{"label out of range", [][]float64{{1}, {2}}, []int{0, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(context.Background(), tt.x, tt.y, FitOptions{MaxIterations: 10})
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalClassifierRejectsInconsistentArtifact(t *testing.T) {
	_, err := UnmarshalClassifier([]byte(`{"features":2,"mean":[0],"std":[1,1],"weights":[[0,0,0],[0,0,0],[0,0,0]]}`))
	assert.Error(t, err)
}

func TestAdoptNeverMovesBuildBackwards(t *testing.T) {
	c := newTestController(&memStore{}, models.ModelVersion{Major: 1, Build: 4})

	assert.False(t, c.Adopt(models.ModelVersion{Major: 1, Build: 2}))
	assert.Equal(t, 4, c.Version().Build)

	assert.True(t, c.Adopt(models.ModelVersion{Major: 1, Build: 5, CurrentAccuracy: 0.58}))
	assert.Equal(t, "1.0.0.5", c.Version().String())
	assert.InDelta(t, 0.58, c.Version().CurrentAccuracy, 1e-9)
}
