package nlmcore

import (
	"context"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
)

// gcLoop sweeps the idle-host LRU on cfg.GCInterval, retiring hosts whose
// idle deadline has passed and who hold no vholds and no sleeping
// requests. The sweep walks the idle list front-to-back (oldest-idle
// first) and stops at the first host whose deadline hasn't elapsed yet,
// since the list is maintained in idle-order.
func (r *Registry) gcLoop(ctx context.Context) {
	defer close(r.gcDone)

	ticker := time.NewTicker(r.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.gcStop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep runs one garbage collection pass.
func (r *Registry) sweep(ctx context.Context) {
	now := time.Now()

	for _, h := range r.Hosts.idleCandidates() {
		h.mu.Lock()
		deadline := h.idleAt
		refcount := h.refcount
		h.mu.Unlock()

		if refcount != 0 {
			// Referenced again since the snapshot; the idle list owns
			// only refcount == 0 hosts, skip and let the next sweep
			// re-evaluate it in its new position.
			continue
		}
		if now.Before(deadline) {
			// idle list is ordered oldest-idle first: nothing after this
			// one can be due yet either.
			break
		}

		h.reapVholds(r.vholdBusy)
		if h.hasVholds() {
			continue
		}

		r.retireIdleHost(ctx, h)
	}
}

// retireIdleHost unmonitors and unregisters a host that has been idle past
// its deadline and holds nothing. Callers must have already confirmed
// refcount == 0 and hasVholds() == false.
func (r *Registry) retireIdleHost(ctx context.Context, h *Host) {
	if r.unmonFn != nil {
		if err := r.unmonFn(ctx, h); err != nil {
			logger.Warn("NLM GC: UNMON failed, retiring host anyway", "host", h.addr.Addr, "sysid", h.sysid, "error", err)
		}
	}
	h.SetUnmonitored()

	for _, vers := range []uint32{1, 3, 4} {
		h.DropRPC(vers)
	}

	r.Hosts.Unregister(h)
}
