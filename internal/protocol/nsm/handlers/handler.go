package handlers

import (
	"sync/atomic"

	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// OnStateChangeFunc is invoked when SM_NOTIFY reports that a monitored host's
// state counter changed, i.e. the monitored peer crashed and restarted. It is
// the collaborator that drives lock recovery (NLM's server-side and
// client-side notify halves); nil is valid and simply skips recovery.
type OnStateChangeFunc func(monName string, newState int32)

// Handler processes NSM procedure calls against a connection tracker.
//
// Thread Safety:
// Handler is safe for concurrent use by multiple goroutines.
type Handler struct {
	tracker     *lock.ConnectionTracker
	clientStore lock.ClientRegistrationStore
	maxClients  int

	// state is this NSM instance's state counter. Odd means up, even means
	// down; it is bumped by 2 on every clean notification cycle so it never
	// dwells on an even (down) value observers might otherwise latch onto.
	state int32

	onStateChange OnStateChangeFunc
}

// HandlerConfig configures a new Handler.
type HandlerConfig struct {
	// Tracker holds client registrations (required).
	Tracker *lock.ConnectionTracker

	// ClientStore persists registrations across restarts (optional).
	ClientStore lock.ClientRegistrationStore

	// MaxClients bounds concurrent SM_MON registrations. Default: 10000.
	MaxClients int

	// InitialState seeds the state counter. Default: 1.
	InitialState int32

	// OnStateChange is called when SM_NOTIFY reports a monitored host's
	// state changed (optional).
	OnStateChange OnStateChangeFunc
}

// NewHandler creates a new NSM handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Tracker == nil {
		cfg.Tracker = lock.NewConnectionTracker(lock.DefaultConnectionTrackerConfig())
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 10000
	}
	if cfg.InitialState == 0 {
		cfg.InitialState = 1
	}
	return &Handler{
		tracker:       cfg.Tracker,
		clientStore:   cfg.ClientStore,
		maxClients:    cfg.MaxClients,
		state:         cfg.InitialState,
		onStateChange: cfg.OnStateChange,
	}
}

// GetServerState returns the current NSM state counter.
func (h *Handler) GetServerState() int32 {
	return atomic.LoadInt32(&h.state)
}

// BumpState advances the state counter past the next odd value, as on a
// clean restart, and returns the new value.
func (h *Handler) BumpState() int32 {
	for {
		old := atomic.LoadInt32(&h.state)
		next := old + 2
		if atomic.CompareAndSwapInt32(&h.state, old, next) {
			return next
		}
	}
}

// GetTracker returns the connection tracker backing this handler.
func (h *Handler) GetTracker() *lock.ConnectionTracker {
	return h.tracker
}
