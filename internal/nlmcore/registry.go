package nlmcore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// RunStatus mirrors the registry's life cycle: handlers entered once the
// registry has left Up respond denied_nolocks rather than touch torn-down
// state.
type RunStatus int32

const (
	StatusStarting RunStatus = iota
	StatusUp
	StatusStopping
	StatusDown
)

// Config holds the per-registry tunables from section 6 of the NLM
// specification this engine implements.
type Config struct {
	GracePeriod       time.Duration
	IdlePeriod        time.Duration
	RetransmitTimeout time.Duration
	GCInterval        time.Duration
	MinSysid          Sysid
	MaxSysid          Sysid
}

// ReclaimFunc re-issues a host's outstanding locks/shares against the peer
// using the host's current client handles. It is the external client-side
// reclaim collaborator named in the spec; this package only drives when it
// runs and enforces the one-worker-per-host invariant.
type ReclaimFunc func(ctx context.Context, h *Host) error

// UnmonFunc issues an SM UNMON for a host's monitored name. Failures are
// logged only; the host is retired regardless.
type UnmonFunc func(ctx context.Context, h *Host) error

// MonFunc issues an SM MON for a host's caller name against the local
// status monitor, registering this server to receive SM_NOTIFY if that
// host crashes. Called once per host, the first time a lock or share is
// granted to it.
type MonFunc func(ctx context.Context, h *Host) error

// Registry is the GlobalRegistry of the spec: hosts, client sleeping
// locks, grace period, and garbage collection for one isolation domain.
type Registry struct {
	Hosts       *HostRegistry
	ClientLocks *ClientSleepingLockRegistry
	Grace       *lock.GracePeriodManager
	Local       *lock.Manager

	cfg Config

	statusMu sync.RWMutex
	status   RunStatus

	monFn     MonFunc
	reclaimFn ReclaimFunc
	unmonFn   UnmonFunc

	gcStop chan struct{}
	gcDone chan struct{}
}

// NewRegistry builds a Registry. localEngine is the external byte-range
// lock engine; monFn, reclaimFn and unmonFn are the external NSM/transport
// collaborators invoked on grant, by the reclaim worker, and by the
// garbage collector, respectively.
func NewRegistry(cfg Config, localEngine *lock.Manager, monFn MonFunc, reclaimFn ReclaimFunc, unmonFn UnmonFunc) (*Registry, error) {
	sysids, err := NewSysidAllocator(cfg.MinSysid, cfg.MaxSysid)
	if err != nil {
		return nil, err
	}

	return &Registry{
		Hosts:       NewHostRegistry(sysids, cfg.IdlePeriod),
		ClientLocks: NewClientSleepingLockRegistry(),
		Grace:       lock.NewGracePeriodManager(cfg.GracePeriod, nil),
		Local:       localEngine,
		cfg:         cfg,
		status:      StatusStarting,
		monFn:       monFn,
		reclaimFn:   reclaimFn,
		unmonFn:     unmonFn,
		gcStop:      make(chan struct{}),
		gcDone:      make(chan struct{}),
	}, nil
}

// EnsureMonitored issues SM MON for host the first time a lock or share is
// granted to it, per the spec's "successful LOCK/SHARE triggers monitoring
// of the host". A no-op once the host is already Monitored or Reclaiming.
// Failures are logged, not returned: a missed MON registration degrades
// crash recovery for that host but must never fail the LOCK/SHARE that
// triggered it.
func (r *Registry) EnsureMonitored(ctx context.Context, h *Host) {
	if h.MonitorState() != Unmonitored {
		return
	}

	if r.monFn != nil {
		if err := r.monFn(ctx, h); err != nil {
			logger.Warn("NLM monitor registration failed", "host", h.addr.Addr, "sysid", h.sysid, "error", err)
			return
		}
	}

	h.SetMonitored()
}

// Status reports the registry's current run state.
func (r *Registry) Status() RunStatus {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

func (r *Registry) setStatus(s RunStatus) {
	r.statusMu.Lock()
	r.status = s
	r.statusMu.Unlock()
}

// Start enters the grace period and launches the garbage collector. No
// expected-client list is passed to the grace manager: this engine has no
// a-priori knowledge of which hosts held locks before restart (that
// bookkeeping lives entirely in SM, outside the core), so the grace period
// always runs its full timer rather than early-exiting on reclaim count.
func (r *Registry) Start(ctx context.Context) {
	r.Grace.EnterGracePeriod(nil)
	r.setStatus(StatusUp)
	go r.gcLoop(ctx)
}

// IsOperationAllowed reports whether op may proceed given the grace
// period, delegating to the shared grace period state machine.
func (r *Registry) IsOperationAllowed(op lock.Operation) (bool, error) {
	return r.Grace.IsOperationAllowed(op)
}

// FindCreateHost resolves (netid, addr) to a host, creating one if this is
// the first reference. Returns nil if run status is not Up or the sysid
// space is exhausted.
func (r *Registry) FindCreateHost(addr PeerAddr, callerName string) *Host {
	if r.Status() != StatusUp {
		return nil
	}
	return r.Hosts.FindCreate(addr, callerName)
}

// FindHost resolves an existing host by (netid, addr) without creating one.
func (r *Registry) FindHost(addr PeerAddr) *Host {
	return r.Hosts.Find(addr)
}

// FindHostBySysid resolves a host by sysid, e.g. for GRANTED/NOTIFY.
func (r *Registry) FindHostBySysid(sysid Sysid) *Host {
	return r.Hosts.FindBySysid(sysid)
}

// ReleaseHost drops one reference to h, making it idle-eligible at zero.
func (r *Registry) ReleaseHost(h *Host) {
	r.Hosts.Release(h)
}

// NotifyServer implements the server-side half of status-change
// notification: every vhold of host has its sleeping requests drained and
// the local engine is told to drop every remote lock/share belonging to
// this host's sysid on that file. Frees happen outside any lock.
func (r *Registry) NotifyServer(h *Host, newState uint32) {
	if newState != 0 {
		h.RecordSMState(newState)
	}

	vholds := h.vholdSnapshot()
	prefix := sysidPrefix(h.sysid)

	for _, vh := range vholds {
		drained := vh.drainSleeping()
		logger.Debug("NLM notify_server: dropping sleeping requests", "host", h.addr.Addr, "file", vh.fileID, "count", len(drained))

		r.cleanLocksForSysid(vh.fileID, prefix)
	}
}

// cleanLocksForSysid removes every lock/share on fileID whose owner ID
// carries the given sysid prefix (i.e. every remote lock this host holds
// on that file).
func (r *Registry) cleanLocksForSysid(fileID, prefix string) {
	for _, ul := range r.Local.ListUnifiedLocks(fileID) {
		if strings.HasPrefix(ul.Owner.OwnerID, prefix) {
			_ = r.Local.RemoveUnifiedLock(fileID, ul.Owner, ul.Offset, ul.Length)
		}
	}
}

// NotifyClient implements the client-side half of status-change
// notification: unless a reclaim is already running for host, mark it
// reclaiming, take a reference, and spawn the reclaim worker.
func (r *Registry) NotifyClient(ctx context.Context, h *Host, newState uint32) {
	h.RecordSMState(newState)

	if !h.BeginReclaim() {
		return // reclaim already in flight; singleton invariant
	}

	r.Hosts.referenceForReclaim(h)
	go r.runReclaim(ctx, h)
}

// referenceForReclaim bumps refcount for the duration of a reclaim worker,
// mirroring the spec's "bump refcount which the reclaim worker will drop
// on exit".
func (hr *HostRegistry) referenceForReclaim(h *Host) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.referenceLocked(h)
}

func (r *Registry) runReclaim(ctx context.Context, h *Host) {
	if r.reclaimFn != nil {
		if err := r.reclaimFn(ctx, h); err != nil {
			logger.Warn("NLM reclaim worker failed", "host", h.addr.Addr, "sysid", h.sysid, "error", err)
		}
	}
	h.EndReclaim()
	r.Hosts.Release(h)
}

// Shutdown drains the registry: stops the GC, cancels every client-side
// blocking lock, tells every host's server state to clean up, reaps
// vholds, and retries while any host remains busy. Finally unmonitors
// every remaining host with SM.
func (r *Registry) Shutdown(ctx context.Context) {
	r.setStatus(StatusStopping)
	close(r.gcStop)
	<-r.gcDone

	for {
		hosts := r.Hosts.all()
		busy := false

		for _, h := range hosts {
			r.ClientLocks.CancelHost(h)
			r.NotifyServer(h, 0)
			h.reapVholds(r.vholdBusy)

			h.mu.Lock()
			refcount := h.refcount
			h.mu.Unlock()

			if refcount > 0 || h.hasVholds() {
				busy = true
				continue
			}

			if r.unmonFn != nil {
				if err := r.unmonFn(ctx, h); err != nil {
					logger.Warn("NLM shutdown: UNMON failed", "host", h.addr.Addr, "error", err)
				}
			}
			h.SetUnmonitored()
			r.Hosts.Unregister(h)
		}

		if !busy {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}

	r.setStatus(StatusDown)
}

// vholdBusy reports whether the local engine still has a remote lock or
// share for sysid on the given file-object identity.
func (r *Registry) vholdBusy(fileID string, sysid Sysid) bool {
	prefix := sysidPrefix(sysid)
	for _, ul := range r.Local.ListUnifiedLocks(fileID) {
		if strings.HasPrefix(ul.Owner.OwnerID, prefix) {
			return true
		}
	}
	return false
}
