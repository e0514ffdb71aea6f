package nlmcore

import "sync"

// Vhold is a per-host association with a local file object: while it
// exists, the file object is considered held on this host's behalf, and it
// carries the list of SETLKW requests this host has blocked on for that
// object.
type Vhold struct {
	mu sync.Mutex

	host   *Host
	fileID string // file-object identity, e.g. the NFS filehandle key

	refcount int
	sleeping []*ServerSleepingRequest
}

// FileID returns the file-object identity this vhold pins.
func (vh *Vhold) FileID() string {
	return vh.fileID
}

// addRef increments the vhold's reference count.
func (vh *Vhold) addRef() {
	vh.mu.Lock()
	vh.refcount++
	vh.mu.Unlock()
}

// release decrements the vhold's reference count.
func (vh *Vhold) release() {
	vh.mu.Lock()
	vh.refcount--
	vh.mu.Unlock()
}

// idle reports whether this vhold has no references. Combined with
// host-level busy checks (remote locks/shares for the host's sysid) by the
// garbage collector to decide vhold_busy.
func (vh *Vhold) idle() bool {
	vh.mu.Lock()
	defer vh.mu.Unlock()
	return vh.refcount == 0
}

// Get returns the vhold for fileID on this host, creating one if absent.
// Creation is coarsened per the spec: the new vhold is built without
// holding the host lock, then the host is re-checked for a racing insert.
func (h *Host) Get(fileID string) *Vhold {
	h.mu.Lock()
	if vh, ok := h.vholds[fileID]; ok {
		vh.addRef()
		h.mu.Unlock()
		return vh
	}
	h.mu.Unlock()

	candidate := &Vhold{host: h, fileID: fileID, refcount: 1}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.vholds[fileID]; ok {
		// Lost the race: discard the surplus candidate.
		existing.addRef()
		return existing
	}
	h.vholds[fileID] = candidate
	return candidate
}

// PutVhold releases one reference to vh.
func (h *Host) PutVhold(vh *Vhold) {
	vh.release()
}

// reapVholds removes every idle, non-busy vhold from the host. isBusy
// reports whether the local lock engine still has remote locks/shares
// against a given file-object identity for this host's sysid.
func (h *Host) reapVholds(isBusy func(fileID string, sysid Sysid) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for fileID, vh := range h.vholds {
		if vh.idle() && len(vh.sleeping) == 0 && !isBusy(fileID, h.sysid) {
			delete(h.vholds, fileID)
		}
	}
}

// hasVholds reports whether the host currently holds any vhold at all
// (used by the garbage collector's host_has_locks test).
func (h *Host) hasVholds() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.vholds) > 0
}
