package nlmcore

// ServerSleepingRequest is a blocked SETLKW known to the server side: a
// copy of the lock range spec this host is waiting to acquire on a vhold.
type ServerSleepingRequest struct {
	Offset    uint64
	Length    uint64
	Pid       int32
	Exclusive bool
}

func (r ServerSleepingRequest) matches(other ServerSleepingRequest) bool {
	return r.Offset == other.Offset && r.Length == other.Length &&
		r.Pid == other.Pid && r.Exclusive == other.Exclusive
}

// RegisterSleeping inserts req into vh's sleeping-request list unless an
// equal entry is already present, in which case it reports false: the
// original handler already owns the wait and the duplicate should return
// without doing work.
func (vh *Vhold) RegisterSleeping(req ServerSleepingRequest) bool {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	for _, existing := range vh.sleeping {
		if existing.matches(req) {
			return false
		}
	}
	vh.sleeping = append(vh.sleeping, &req)
	return true
}

// UnregisterSleeping removes the first matching entry from vh's
// sleeping-request list and reports whether one was found.
func (vh *Vhold) UnregisterSleeping(req ServerSleepingRequest) bool {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	for i, existing := range vh.sleeping {
		if existing.matches(req) {
			vh.sleeping = append(vh.sleeping[:i], vh.sleeping[i+1:]...)
			return true
		}
	}
	return false
}

// drainSleeping removes and returns every sleeping request on vh, for the
// caller to free/log outside the vhold lock (used by notify_server's
// forced cleanup).
func (vh *Vhold) drainSleeping() []*ServerSleepingRequest {
	vh.mu.Lock()
	defer vh.mu.Unlock()

	drained := vh.sleeping
	vh.sleeping = nil
	return drained
}
