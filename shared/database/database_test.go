package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (id VARCHAR(16) PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_name ON items (name)`,
}

func TestOpenCreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:", testSchema)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ($1, $2)`, "a", "first")
	require.NoError(t, err)

	require.NoError(t, EnsureSchema(ctx, db, testSchema))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpenRejectsBrokenSchema(t *testing.T) {
	_, err := Open(context.Background(), DriverSQLite, ":memory:", []string{"CREATE NONSENSE"})
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:", testSchema)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ($1, $2)`, "a", "first")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ($1, $2)`, "a", "other")
	assert.True(t, IsUniqueViolation(err), "primary key conflict")

	_, err = db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ($1, $2)`, "b", "first")
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", err)), "unique index conflict")

	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}
