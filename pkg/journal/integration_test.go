//go:build integration

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestJournal_Postgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stowd"),
		postgres.WithUsername("stowd"),
		postgres.WithPassword("stowd"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	j, err := New(Config{
		Enabled: true,
		Type:    DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "stowd",
			User:     "stowd",
			Password: "stowd",
		},
	})
	require.NoError(t, err)
	defer j.Close()

	j.Record(Entry{ConnectionID: 1, Command: "PUT", Filename: "a.txt", Size: 5, Outcome: OutcomeOK})
	j.Record(Entry{ConnectionID: 2, Command: "GET", Filename: "a.txt", Size: 5, Outcome: OutcomeOK})
	require.NoError(t, j.Flush(ctx))

	entries, err := j.List(ctx, Filter{Filename: "a.txt"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "GET", entries[0].Command)
}
