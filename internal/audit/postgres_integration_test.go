//go:build e2e

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittofs/internal/audit"
)

// TestPostgresWriterAppliesMigrationsAndRecords starts a real Postgres
// container, lets Open apply the embedded golang-migrate schema, and checks
// a recorded event round-trips. Gated behind the e2e build tag since it
// needs Docker, matching this tree's existing e2e container tests.
func TestPostgresWriterAppliesMigrationsAndRecords(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("nlmd_audit"),
		postgres.WithUsername("nlmd"),
		postgres.WithPassword("nlmd"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	w, err := audit.Open(audit.StoreConfig{Dialect: audit.DialectPostgres, DSN: dsn}, 16)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	go w.Run(runCtx)

	w.Record(audit.DecisionGranted, 42, "client-a", "fh-1", "")
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)

	events, err := w.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, string(audit.DecisionGranted), events[0].Decision)
}
