// Package audit records decision events to a durable table (the daemon
// records one per NSM host status change; protocol handlers record none),
// off the request path: a full channel drops the oldest pending event
// rather than making the caller wait, and a database outage degrades
// observability only, never lock correctness.
package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/dittofs/internal/logger"
)

// Writer buffers events in a channel drained by a single background
// goroutine, so Record is always non-blocking from a handler's perspective.
type Writer struct {
	db     *gorm.DB
	events chan Event
	done   chan struct{}
}

// Open opens the configured audit database and returns a ready Writer.
// Call Run to start draining it, and Close when shutting down.
func Open(cfg StoreConfig, bufferSize int) (*Writer, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Writer{
		db:     db,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}, nil
}

// Record enqueues an event. If the buffer is full, the oldest pending event
// is dropped to make room — an audit gap is preferable to ever blocking the
// caller, which call sites are always a protocol handler's hot path.
func (w *Writer) Record(decision Decision, sysid uint32, callerName, fileHandle, detail string) {
	ev := Event{
		OccurredAt: time.Now(),
		Decision:   string(decision),
		Sysid:      sysid,
		CallerName: callerName,
		FileHandle: fileHandle,
		Detail:     detail,
	}

	select {
	case w.events <- ev:
		return
	default:
	}

	select {
	case <-w.events:
	default:
	}
	select {
	case w.events <- ev:
	default:
	}
}

// Run drains the event channel into the database until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case ev := <-w.events:
			w.write(ev)
		}
	}
}

// drain flushes whatever is left in the channel once, best-effort, on
// shutdown — it does not wait for new events to arrive.
func (w *Writer) drain() {
	for {
		select {
		case ev := <-w.events:
			w.write(ev)
		default:
			return
		}
	}
}

func (w *Writer) write(ev Event) {
	if err := w.db.Create(&ev).Error; err != nil {
		logger.Debug("audit write failed", "error", err, "decision", ev.Decision)
	}
}

// Recent returns the most recent events, newest first. Neither the admin
// API nor nlmctl exposes it.
func (w *Writer) Recent(ctx context.Context, limit int) ([]Event, error) {
	return querySince(ctx, w.db, limit)
}
