package handlers

import (
	"sync"

	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// pendingGrant is a blocked NLM_LOCK request waiting for its conflicting
// range to clear. It carries everything the unlock path needs to retry the
// acquire and, on success, fire the NLM_GRANTED callback -- the vhold's own
// ServerSleepingRequest only carries the lock-range spec, not the callback
// address or the lock owner the blocking queue used to track separately.
type pendingGrant struct {
	host      *nlmcore.Host
	vhold     *nlmcore.Vhold
	handleKey string
	owner     lock.LockOwner
	sleep     nlmcore.ServerSleepingRequest
	lockType  lock.LockType

	callbackAddr string
	callbackProg uint32
	callbackVers uint32
	callerName   string
	fh           []byte
	oh           []byte
}

// grantTracker holds every pendingGrant, keyed by file handle, in FIFO
// order per file so Unlock retries waiters in the order they blocked.
type grantTracker struct {
	mu      sync.Mutex
	pending map[string][]*pendingGrant
}

func newGrantTracker() *grantTracker {
	return &grantTracker{pending: make(map[string][]*pendingGrant)}
}

func (t *grantTracker) add(g *pendingGrant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[g.handleKey] = append(t.pending[g.handleKey], g)
}

// remove deletes the waiter matching owner/offset/length for NLM_CANCEL.
// Reports whether a match was found.
func (t *grantTracker) remove(handleKey, ownerID string, offset, length uint64) (*pendingGrant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	waiters := t.pending[handleKey]
	for i, g := range waiters {
		if g.owner.OwnerID == ownerID && g.sleep.Offset == offset && g.sleep.Length == length {
			t.pending[handleKey] = append(waiters[:i:i], waiters[i+1:]...)
			if len(t.pending[handleKey]) == 0 {
				delete(t.pending, handleKey)
			}
			return g, true
		}
	}
	return nil, false
}

// drain removes and returns every waiter queued for handleKey, oldest
// first, for the unlock path to retry in sequence.
func (t *grantTracker) drain(handleKey string) []*pendingGrant {
	t.mu.Lock()
	defer t.mu.Unlock()
	waiters := t.pending[handleKey]
	delete(t.pending, handleKey)
	return waiters
}

// requeue reinserts a waiter whose retried acquire still conflicted,
// keeping it ahead of any waiter drained after it in the same sweep.
func (t *grantTracker) requeue(g *pendingGrant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[g.handleKey] = append([]*pendingGrant{g}, t.pending[g.handleKey]...)
}
