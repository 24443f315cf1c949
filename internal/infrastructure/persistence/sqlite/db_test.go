package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/garyjia/repair-center/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	conn, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "tx.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return NewDB(conn.DB, zap.NewNop())
}

func countNotes(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	return n
}

func insertNote(ctx context.Context, db *DB, body string) error {
	_, err := Conn(ctx, db.DB).ExecContext(ctx, `INSERT INTO notes (body) VALUES (?)`, body)
	return err
}

func TestWithTransaction_NestedCallsJoinOuter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, insertNote(txCtx, db, "outer"))
		require.NoError(t, db.WithTransaction(txCtx, func(inner context.Context) error {
			assert.Same(t, txFrom(txCtx), txFrom(inner))
			return insertNote(inner, db, "inner")
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countNotes(t, db))
}

func TestWithTransaction_Commits(t *testing.T) {
	db := newTestDB(t)

	err := db.WithTransaction(context.Background(), func(txCtx context.Context) error {
		return insertNote(txCtx, db, "kept")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countNotes(t, db))
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db := newTestDB(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(txCtx context.Context) error {
			require.NoError(t, insertNote(txCtx, db, "lost"))
			panic("handler bug")
		})
	})
	assert.Equal(t, 0, countNotes(t, db))
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, insertNote(ctx, db, "dup"))
	err := insertNote(ctx, db, "dup")
	require.Error(t, err)

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "notes.body"))
	assert.False(t, IsUniqueViolation(err, "notes.other"))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
	assert.False(t, IsBusy(err))
}
