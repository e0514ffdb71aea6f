package nlmcore

import (
	"container/list"
	"sync"
	"time"
)

// MonitorState tracks a host's relationship with the local status monitor.
type MonitorState int

const (
	// Unmonitored: no outstanding SM MON registration.
	Unmonitored MonitorState = iota
	// Monitored: SM has an active MON registration for this host.
	Monitored
	// Reclaiming: a NOTIFY was received and a reclaim worker is running.
	Reclaiming
)

func (s MonitorState) String() string {
	switch s {
	case Unmonitored:
		return "unmonitored"
	case Monitored:
		return "monitored"
	case Reclaiming:
		return "reclaiming"
	default:
		return "unknown"
	}
}

// Host is one record per distinct remote peer, identified by (netid,
// peer_addr). Once assigned, Sysid is immutable for the host's lifetime.
type Host struct {
	mu sync.Mutex

	addr       PeerAddr
	callerName string
	sysid      Sysid

	smState uint32
	monitor MonitorState

	refcount int
	idleAt   time.Time // deadline after which this host is GC-eligible

	vholds map[string]*Vhold

	rpcCache *rpcHandleCache

	// reclCond is broadcast by EndReclaim when a reclaim completes, per the
	// host's (condvar_rpcb, condvar_reclaim) pairing in the data model.
	// Nothing in this package waits on it.
	reclCond *sync.Cond

	// idleElem is this host's node in the registry's idle LRU, non-nil iff
	// refcount == 0.
	idleElem *list.Element
}

func newHost(addr PeerAddr, callerName string, sysid Sysid) *Host {
	h := &Host{
		addr:       addr,
		callerName: callerName,
		sysid:      sysid,
		monitor:    Unmonitored,
		refcount:   1,
		vholds:     make(map[string]*Vhold),
		rpcCache:   newRPCHandleCache(),
	}
	h.reclCond = sync.NewCond(&h.mu)
	return h
}

// Sysid returns the host's immutable sysid.
func (h *Host) Sysid() Sysid {
	return h.sysid
}

// Addr returns the host's peer address.
func (h *Host) Addr() PeerAddr {
	return h.addr
}

// CallerName returns the advisory caller name (not used for identity).
func (h *Host) CallerName() string {
	return h.callerName
}

// MonitorState returns the host's current monitoring state under lock.
func (h *Host) MonitorState() MonitorState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.monitor
}

// SetMonitored records that SM has accepted a MON registration for this
// host. No-op if already monitored.
func (h *Host) SetMonitored() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.monitor == Unmonitored {
		h.monitor = Monitored
	}
}

// SetUnmonitored clears the monitoring flag, e.g. after GC retirement
// issues UNMON (successfully or not -- the flag is cleared either way).
func (h *Host) SetUnmonitored() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.monitor = Unmonitored
}

// BeginReclaim transitions Monitored -> Reclaiming and reports whether the
// transition happened; it is a no-op (returns false) if a reclaim is
// already in flight, enforcing the reclaim-singleton invariant.
func (h *Host) BeginReclaim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.monitor == Reclaiming {
		return false
	}
	h.monitor = Reclaiming
	return true
}

// EndReclaim transitions Reclaiming -> Monitored and wakes any waiters on
// the host's reclaim condition variable.
func (h *Host) EndReclaim() {
	h.mu.Lock()
	h.monitor = Monitored
	h.mu.Unlock()
	h.reclCond.Broadcast()
}

// RecordSMState stores the last known SM state counter for this host.
func (h *Host) RecordSMState(state uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.smState = state
}

// SMState returns the last known SM state counter.
func (h *Host) SMState() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.smState
}

// vholdSnapshot returns the host's current vholds for GC/notify fan-out.
func (h *Host) vholdSnapshot() []*Vhold {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Vhold, 0, len(h.vholds))
	for _, vh := range h.vholds {
		out = append(out, vh)
	}
	return out
}

// Snapshot is the exported form of vholdSnapshot, for callers outside this
// package that need to walk a host's vholds (e.g. FREE_ALL retrying
// blocked requests per file after a forced cleanup).
func (h *Host) Snapshot() []*Vhold {
	return h.vholdSnapshot()
}

// HostRegistry indexes every live host by (netid, addr) and by sysid, and
// tracks an idle LRU of hosts with refcount == 0.
type HostRegistry struct {
	mu sync.Mutex

	byAddr  map[string]*Host
	bySysid map[Sysid]*Host
	idle    *list.List // front = least-recently-idled

	sysids *SysidAllocator

	idlePeriod time.Duration
}

// NewHostRegistry creates an empty registry backed by the given sysid
// allocator and idle timeout.
func NewHostRegistry(sysids *SysidAllocator, idlePeriod time.Duration) *HostRegistry {
	return &HostRegistry{
		byAddr:     make(map[string]*Host),
		bySysid:    make(map[Sysid]*Host),
		idle:       list.New(),
		sysids:     sysids,
		idlePeriod: idlePeriod,
	}
}

// Find looks up a host by (netid, addr) without creating one. If found with
// refcount == 0, it is removed from the idle list and refcount becomes 1.
func (r *HostRegistry) Find(addr PeerAddr) *Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(addr)
}

func (r *HostRegistry) findLocked(addr PeerAddr) *Host {
	h, ok := r.byAddr[addr.key()]
	if !ok {
		return nil
	}
	r.referenceLocked(h)
	return h
}

// FindBySysid looks up a host by its sysid, referencing it on success.
func (r *HostRegistry) FindBySysid(sysid Sysid) *Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.bySysid[sysid]
	if !ok {
		return nil
	}
	r.referenceLocked(h)
	return h
}

// FindByCallerName performs a linear scan for a host advertising the given
// caller name, referencing it on success. Caller name is advisory rather
// than a stable identity (unlike sysid), so unlike Find/FindBySysid this
// is O(n) in the number of live hosts. Its callers are FREE_ALL and the
// NSM status-change callback, both of which name a peer by hostname
// rather than by address or sysid.
func (r *HostRegistry) FindByCallerName(name string) *Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.byAddr {
		if h.CallerName() == name {
			r.referenceLocked(h)
			return h
		}
	}
	return nil
}

// FindCreate returns the existing host for (netid, addr), or allocates a
// new sysid and creates one. Returns nil if the sysid space is exhausted.
//
// The new host is constructed without holding the registry lock (sysid
// allocation is its own lock), then the registry is re-checked for a
// racing insert; the loser's surplus sysid is freed.
func (r *HostRegistry) FindCreate(addr PeerAddr, callerName string) *Host {
	if h := r.Find(addr); h != nil {
		return h
	}

	sysid := r.sysids.Alloc()
	if sysid == NoSysid {
		return nil
	}

	candidate := newHost(addr, callerName, sysid)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byAddr[addr.key()]; ok {
		// Lost the race: discard the surplus sysid and reference the winner.
		r.referenceLocked(existing)
		_ = r.sysids.Free(sysid)
		return existing
	}

	r.byAddr[addr.key()] = candidate
	r.bySysid[sysid] = candidate
	return candidate
}

// referenceLocked increments refcount and, if the host was idle, removes it
// from the idle list. Must hold r.mu.
func (r *HostRegistry) referenceLocked(h *Host) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refcount == 0 && h.idleElem != nil {
		r.idle.Remove(h.idleElem)
		h.idleElem = nil
	}
	h.refcount++
}

// Release decrements a host's refcount. On the 0 transition, the host is
// stamped with a new idle deadline and appended to the idle LRU tail.
func (r *HostRegistry) Release(h *Host) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h.mu.Lock()
	h.refcount--
	becameIdle := h.refcount == 0
	if becameIdle {
		h.idleAt = time.Now().Add(r.idlePeriod)
	}
	h.mu.Unlock()

	if becameIdle {
		h.idleElem = r.idle.PushBack(h)
	}
}

// Unregister removes a host from both indices and the idle list. Callers
// (GC, shutdown) must ensure refcount == 0 first.
func (r *HostRegistry) Unregister(h *Host) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byAddr, h.addr.key())
	delete(r.bySysid, h.sysid)
	if h.idleElem != nil {
		r.idle.Remove(h.idleElem)
		h.idleElem = nil
	}
	_ = r.sysids.Free(h.sysid)
}

// idleCandidates returns a snapshot of the idle list, front to back (the
// GC sweep order), without mutating it.
func (r *HostRegistry) idleCandidates() []*Host {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Host, 0, r.idle.Len())
	for e := r.idle.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Host))
	}
	return out
}

// all returns every live host, referenced indices notwithstanding; used by
// shutdown to drain the registry.
func (r *HostRegistry) all() []*Host {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Host, 0, len(r.byAddr))
	for _, h := range r.byAddr {
		out = append(out, h)
	}
	return out
}

// All is the exported form of all, for reporting callers outside this
// package (the snapshot writer, the admin API's host listing) that need a
// read-only walk of the live host set
// without taking part in refcounting.
func (r *HostRegistry) All() []*Host {
	return r.all()
}

// Refcount returns the host's current reference count, for reporting only.
func (h *Host) Refcount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refcount
}

// VholdCount returns the number of vholds currently tracked for this host,
// for reporting only.
func (h *Host) VholdCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.vholds)
}
