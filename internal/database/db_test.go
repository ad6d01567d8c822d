package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	query := "SELECT record FROM predictions WHERE match_id = $1 AND league = $2"

	sqlite := &DB{Dialect: SQLite}
	assert.Equal(t, "SELECT record FROM predictions WHERE match_id = ?1 AND league = ?2", sqlite.Rebind(query))

	pg := &DB{Dialect: Postgres}
	assert.Equal(t, query, pg.Rebind(query))
}

func TestNewSQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "predictor.db")

	db, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening an existing file keeps the schema
	db, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"predictions", "outcomes", "engine_state"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}
