package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T, queueSize int) *Journal {
	t.Helper()
	j, err := New(Config{
		Enabled:   true,
		Type:      DatabaseTypeSQLite,
		SQLite:    SQLiteConfig{Path: filepath.Join(t.TempDir(), "journal.db")},
		QueueSize: queueSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordAndList(t *testing.T) {
	j := newTestJournal(t, 16)
	ctx := context.Background()

	j.Record(Entry{ConnectionID: 1, Command: "PUT", Filename: "a.txt", Size: 5, BytesTransferred: 5, Outcome: OutcomeOK})
	j.Record(Entry{ConnectionID: 2, Command: "GET", Filename: "a.txt", Size: 5, BytesTransferred: 5, Outcome: OutcomeOK})
	j.Record(Entry{ConnectionID: 3, Command: "GET", Filename: "missing.txt", Outcome: OutcomeError, Error: "Unknown file"})
	require.NoError(t, j.Flush(ctx))

	all, err := j.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].ConnectionID, "newest first")
	assert.False(t, all[0].CreatedAt.IsZero())

	byName, err := j.List(ctx, Filter{Filename: "a.txt"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byCommand, err := j.List(ctx, Filter{Command: "GET", Filename: "a.txt"})
	require.NoError(t, err)
	require.Len(t, byCommand, 1)
	assert.Equal(t, uint64(2), byCommand[0].ConnectionID)

	limited, err := j.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournal_ManyEntriesBatched(t *testing.T) {
	j := newTestJournal(t, 1024)
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		j.Record(Entry{ConnectionID: uint64(i + 1), Command: "LIST", Outcome: OutcomeOK})
	}
	require.NoError(t, j.Flush(ctx))

	entries, err := j.List(ctx, Filter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, entries, 300)
}

func TestJournal_CloseDrainsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	cfg := Config{Enabled: true, SQLite: SQLiteConfig{Path: path}}

	j, err := New(cfg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		j.Record(Entry{Command: "DELETE", Filename: fmt.Sprintf("f%d", i), Outcome: OutcomeOK})
	}
	require.NoError(t, j.Close())
	require.NoError(t, j.Close(), "Close is idempotent")

	j.Record(Entry{Command: "LIST"})
	assert.ErrorIs(t, j.Flush(context.Background()), ErrClosed)

	reopened, err := New(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

func TestNilJournal(t *testing.T) {
	var j *Journal
	assert.NotPanics(t, func() {
		j.Record(Entry{Command: "LIST"})
		assert.NoError(t, j.Flush(context.Background()))
		entries, err := j.List(context.Background(), Filter{})
		assert.NoError(t, err)
		assert.Nil(t, entries)
		assert.Zero(t, j.Dropped())
		assert.NoError(t, j.Close())
	})
}

func TestConfig(t *testing.T) {
	t.Run("DefaultsToSQLite", func(t *testing.T) {
		t.Setenv("XDG_STATE_HOME", "/var/lib/test")
		var cfg Config
		cfg.ApplyDefaults()

		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
		assert.Equal(t, "/var/lib/test/stowd/journal.db", cfg.SQLite.Path)
		assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("PostgresDefaults", func(t *testing.T) {
		cfg := Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Host: "db", Database: "stowd", User: "stowd"}}
		cfg.ApplyDefaults()

		assert.Equal(t, 5432, cfg.Postgres.Port)
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "host=db port=5432 user=stowd password= dbname=stowd sslmode=disable", cfg.Postgres.DSN())
	})

	t.Run("PostgresRequiresHost", func(t *testing.T) {
		cfg := Config{Type: DatabaseTypePostgres}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})

	t.Run("UnknownType", func(t *testing.T) {
		cfg := Config{Type: "mysql"}
		assert.Error(t, cfg.Validate())
		_, err := New(cfg)
		assert.Error(t, err)
	})
}

func TestEntryTableName(t *testing.T) {
	assert.Equal(t, "transfers", Entry{}.TableName())
}
