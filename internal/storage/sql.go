package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Alias1177/MatchPredictor/internal/database"
	"github.com/Alias1177/MatchPredictor/models"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	stateCorrections = "correction_state"
	stateVersion     = "model_version"
	stateClassifier  = "classifier"
)

// SQLStore implements Repository on SQLite or PostgreSQL
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStore wraps an open database
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// state rows

func (s *SQLStore) loadState(ctx context.Context, name string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT payload FROM engine_state WHERE name = $1`), name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return []byte(payload), nil
}

// saveState upserts inside a transaction so a failed write leaves the previous row intact
func (s *SQLStore) saveState(ctx context.Context, name string, payload []byte) error {
	return s.saveStates(ctx, map[string][]byte{name: payload})
}

// saveStates upserts every row in one transaction
func (s *SQLStore) saveStates(ctx context.Context, rows map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updated := formatTime(s.now())
	for name, payload := range rows {
		_, err = tx.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO engine_state (name, payload, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		`), name, string(payload), updated)
		if err != nil {
			return fmt.Errorf("saving %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) LoadCorrectionState(ctx context.Context) (models.CorrectionState, error) {
	var st models.CorrectionState
	data, err := s.loadState(ctx, stateCorrections)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("%w: %s: %v", ErrCorrupt, stateCorrections, err)
	}
	return st, nil
}

func (s *SQLStore) SaveCorrectionState(ctx context.Context, st models.CorrectionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.saveState(ctx, stateCorrections, data)
}

func (s *SQLStore) LoadModelVersion(ctx context.Context) (models.ModelVersion, error) {
	var v models.ModelVersion
	data, err := s.loadState(ctx, stateVersion)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrCorrupt, stateVersion, err)
	}
	return v, nil
}

func (s *SQLStore) SaveModelVersion(ctx context.Context, v models.ModelVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.saveState(ctx, stateVersion, data)
}

func (s *SQLStore) LoadClassifier(ctx context.Context) ([]byte, error) {
	return s.loadState(ctx, stateClassifier)
}

func (s *SQLStore) CommitTraining(ctx context.Context, artifact []byte, v models.ModelVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.saveStates(ctx, map[string][]byte{stateClassifier: artifact, stateVersion: data})
}

// history

// SavePrediction inserts or replaces the prediction for a match. Once the
// match has an outcome the prediction is frozen and ErrPredictionLocked is returned.
func (s *SQLStore) SavePrediction(ctx context.Context, match models.MatchContext, rec models.PredictionRecord) error {
	if rec.MatchID == "" {
		return errors.New("prediction without match id")
	}
	matchJSON, err := json.Marshal(match)
	if err != nil {
		return err
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var settled int
	err = tx.QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM outcomes WHERE match_id = $1`), rec.MatchID).Scan(&settled)
	if err != nil {
		return fmt.Errorf("checking outcome: %w", err)
	}
	if settled > 0 {
		return ErrPredictionLocked
	}

	now := s.now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO predictions (
			match_id, id, league, kickoff, predicted_winner, model_version, match_context, record, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (match_id)
		DO UPDATE SET
			id = EXCLUDED.id,
			league = EXCLUDED.league,
			kickoff = EXCLUDED.kickoff,
			predicted_winner = EXCLUDED.predicted_winner,
			model_version = EXCLUDED.model_version,
			match_context = EXCLUDED.match_context,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`),
		rec.MatchID, rec.ID, rec.League, formatTime(rec.Kickoff), string(rec.PredictedWinner), rec.ModelVersion,
		string(matchJSON), string(recJSON), formatTime(created), formatTime(now))
	if err != nil {
		return fmt.Errorf("saving prediction: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) GetPrediction(ctx context.Context, matchID string) (models.PredictionRecord, error) {
	var rec models.PredictionRecord
	var payload string
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT record FROM predictions WHERE match_id = $1`), matchID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return rec, fmt.Errorf("%w: prediction %s: %v", ErrCorrupt, matchID, err)
	}
	return rec, nil
}

// SaveOutcome records the final score once; outcomes are immutable
func (s *SQLStore) SaveOutcome(ctx context.Context, out models.OutcomeRecord) error {
	if out.RecordedAt.IsZero() {
		out.RecordedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO outcomes (match_id, home_goals, away_goals, result, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id) DO NOTHING
	`), out.MatchID, out.HomeGoals, out.AwayGoals, string(out.Result), formatTime(out.RecordedAt))
	if err != nil {
		return fmt.Errorf("saving outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOutcomeRecorded
	}
	return nil
}

// CompletedSince returns every settled prediction whose outcome was recorded at or after since
func (s *SQLStore) CompletedSince(ctx context.Context, since time.Time) ([]models.LearningSample, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT p.match_context, p.record, o.match_id, o.home_goals, o.away_goals, o.result, o.recorded_at
		FROM predictions p
		JOIN outcomes o ON o.match_id = p.match_id
		WHERE o.recorded_at >= $1
		ORDER BY o.recorded_at
	`), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying completed matches: %w", err)
	}
	defer rows.Close()

	var out []models.LearningSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// TrainingPairs returns up to limit of the most recent (features, outcome)
// pairs. limit <= 0 means all of them.
func (s *SQLStore) TrainingPairs(ctx context.Context, limit int) ([]models.TrainingPair, error) {
	query := `
		SELECT p.match_context, p.record, o.match_id, o.home_goals, o.away_goals, o.result, o.recorded_at
		FROM predictions p
		JOIN outcomes o ON o.match_id = p.match_id
		ORDER BY o.recorded_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying training pairs: %w", err)
	}
	defer rows.Close()

	var out []models.TrainingPair
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		if len(sample.Prediction.Features) == 0 {
			continue
		}
		out = append(out, models.TrainingPair{
			Features:  sample.Prediction.Features,
			Outcome:   sample.Outcome.Result,
			Synthetic: sample.Prediction.BuiltOnSynthetic(),
		})
	}
	return out, rows.Err()
}

func scanSample(rows *sql.Rows) (models.LearningSample, error) {
	var (
		sample               models.LearningSample
		matchJSON, recJSON   string
		result, recordedAt   string
		homeGoals, awayGoals int
	)
	if err := rows.Scan(&matchJSON, &recJSON, &sample.Outcome.MatchID, &homeGoals, &awayGoals, &result, &recordedAt); err != nil {
		return sample, err
	}
	if err := json.Unmarshal([]byte(matchJSON), &sample.Match); err != nil {
		return sample, fmt.Errorf("%w: match %s: %v", ErrCorrupt, sample.Outcome.MatchID, err)
	}
	if err := json.Unmarshal([]byte(recJSON), &sample.Prediction); err != nil {
		return sample, fmt.Errorf("%w: prediction %s: %v", ErrCorrupt, sample.Outcome.MatchID, err)
	}
	at, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		return sample, fmt.Errorf("%w: recorded_at %q", ErrCorrupt, recordedAt)
	}
	sample.Outcome.HomeGoals = homeGoals
	sample.Outcome.AwayGoals = awayGoals
	sample.Outcome.Result = models.Outcome(result)
	sample.Outcome.RecordedAt = at
	return sample, nil
}
