package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/internal/audit"
)

func newTestWriter(t *testing.T) *audit.Writer {
	t.Helper()
	w, err := audit.Open(audit.StoreConfig{
		Dialect:    audit.DialectSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
	}, 8)
	require.NoError(t, err)
	return w
}

func TestWriterRecordAndDrain(t *testing.T) {
	w := newTestWriter(t)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.Record(audit.DecisionGranted, 7, "client-a", "fh-1", "")
	w.Record(audit.DecisionDenied, 7, "client-a", "fh-1", "conflict")

	// Give the drain goroutine a moment, then cancel to force a final drain.
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	events, err := w.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestWriterDropsOldestWhenFull(t *testing.T) {
	w, err := audit.Open(audit.StoreConfig{
		Dialect:    audit.DialectSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
	}, 2)
	require.NoError(t, err)

	// No Run goroutine draining: every Record below must still return
	// immediately instead of blocking once the buffer of 2 fills up.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			w.Record(audit.DecisionGranted, uint32(i), "client", "fh", "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked with a full, undrained buffer")
	}
}
