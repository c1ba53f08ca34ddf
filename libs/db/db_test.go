package db

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	overlap := fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: "23P01"})
	dup := &pgconn.PgError{Code: "23505"}

	assert.True(t, IsConflict(overlap))
	assert.False(t, IsConflict(dup))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNotFound(overlap))
}

func TestPendingFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_bookings.up.sql": {Data: []byte("SELECT 1")},
		"migrations/001_init.up.sql":     {Data: []byte("SELECT 1")},
		"migrations/001_init.down.sql":   {Data: []byte("SELECT 1")},
		"migrations/README.md":           {Data: []byte("notes")},
		"migrations/nested/003_x.up.sql": {Data: []byte("SELECT 1")},
	}
	files, err := pendingFiles(fsys, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.up.sql", "002_bookings.up.sql"}, files)

	_, err = pendingFiles(fsys, "missing")
	assert.Error(t, err)
}

func TestSpanName(t *testing.T) {
	assert.Equal(t, "db.select", spanName("  SELECT id FROM appointments"))
	assert.Equal(t, "db.insert", spanName("INSERT INTO online_bookings (id) VALUES ($1)"))
	assert.Equal(t, "db.query", spanName(""))
}
