// Package snapshot persists a periodic, best-effort dump of the live host
// set to an embedded badger store, so a restart can size its expected
// reclaim traffic before any peer has actually reconnected. It is a hint,
// never a source of truth: the grace period and every grant decision still
// come from real reclaim requests, not from what a snapshot remembers.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
)

// HostSummary is the subset of a Host's identity worth remembering across a
// restart: enough to log and count expected reclaim traffic, nothing that
// could be replayed as a substitute for a real reclaim.
type HostSummary struct {
	Sysid      uint32 `json:"sysid"`
	CallerName string `json:"caller_name"`
	Netid      string `json:"netid"`
	PeerAddr   string `json:"peer_addr"`
	SMState    uint32 `json:"sm_state"`
}

var snapshotKey = []byte("nlmd/hosts")

// Store wraps an embedded badger database holding the single serialized
// host-summary snapshot.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if absent) a badger database under dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(badgerAdapter{})
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger snapshot store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write serializes summaries and stores them under the single snapshot key,
// overwriting whatever was there before.
func (s *Store) Write(summaries []HostSummary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("marshal host snapshot: %w", err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(snapshotKey, data)
	})
}

// Read returns the last written snapshot, or nil if none exists yet.
func (s *Store) Read() ([]HostSummary, error) {
	var summaries []HostSummary
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &summaries)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read host snapshot: %w", err)
	}
	return summaries, nil
}

// ReadJSON reads the last written snapshot and re-serializes it to JSON, for
// callers (the backup uploader) that want the on-disk bytes rather than the
// decoded struct.
func (s *Store) ReadJSON() ([]byte, error) {
	summaries, err := s.Read()
	if err != nil {
		return nil, err
	}
	return json.Marshal(summaries)
}

// RunGC invokes badger's value-log garbage collection once. badger
// recommends calling this periodically rather than relying on compaction
// alone; ErrNoRewrite just means there was nothing to reclaim this round.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err != nil && err != badgerdb.ErrNoRewrite {
		return err
	}
	return nil
}

// Summarize converts live hosts into the persisted summary shape.
func Summarize(hosts []*nlmcore.Host) []HostSummary {
	out := make([]HostSummary, 0, len(hosts))
	for _, h := range hosts {
		addr := h.Addr()
		out = append(out, HostSummary{
			Sysid:      uint32(h.Sysid()),
			CallerName: h.CallerName(),
			Netid:      addr.Netid,
			PeerAddr:   addr.Addr,
			SMState:    h.SMState(),
		})
	}
	return out
}

// Writer periodically snapshots a host registry's live set to a Store and
// drives the store's value-log GC from the same loop. Every read of the
// registry is the same read-only walk the admin API's host listing uses
// (HostRegistry.All(), which holds the registry mutex only while copying
// the host list), and a write failure only ever produces a warn-level log
// line.
type Writer struct {
	store    *Store
	hosts    *nlmcore.HostRegistry
	interval time.Duration
}

// NewWriter builds a Writer over an already-open Store.
func NewWriter(store *Store, hosts *nlmcore.HostRegistry, interval time.Duration) *Writer {
	return &Writer{store: store, hosts: hosts, interval: interval}
}

// Run snapshots on a timer until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.snapshotOnce()
		}
	}
}

func (w *Writer) snapshotOnce() {
	summaries := Summarize(w.hosts.All())
	if err := w.store.Write(summaries); err != nil {
		logger.Warn("snapshot write failed", "error", err)
		return
	}
	if err := w.store.RunGC(0.5); err != nil {
		logger.Debug("snapshot value-log GC skipped", "error", err)
	}
	logger.Debug("snapshot written", "hosts", len(summaries))
}

// ExpectedReclaims reads the last snapshot at startup and reports how many
// hosts a real reclaim burst should involve. It never grants anything and
// is never consulted by a protocol handler; it exists purely so an operator
// watching startup logs/metrics knows what to expect.
func ExpectedReclaims(store *Store) int {
	summaries, err := store.Read()
	if err != nil {
		logger.Warn("failed to read startup snapshot", "error", err)
		return 0
	}
	logger.Info("loaded host snapshot", "expected_reclaims", len(summaries))
	return len(summaries)
}

// badgerAdapter routes badger's internal logging through this service's
// own structured logger instead of badger's default stderr writer.
type badgerAdapter struct{}

func (badgerAdapter) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}
func (badgerAdapter) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}
func (badgerAdapter) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}
func (badgerAdapter) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}
