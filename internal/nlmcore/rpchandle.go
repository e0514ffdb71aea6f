package nlmcore

import "sync"

// RPCHandle is a bound client handle for callback/reclaim traffic to a
// host, keyed by the NLM version the peer speaks. The actual dial is left
// to the caller (internal/protocol/nlm/callback, internal/protocol/nsm/callback
// currently establish a fresh connection per call, per their documented
// "no connection caching" decision); this cache exists so that decision can
// be swapped for real pooling without touching the host registry's shape.
type RPCHandle struct {
	Version uint32
	Addr    string
}

// rpcHandleCache is a host's bounded cache of (version, handle) pairs.
type rpcHandleCache struct {
	mu      sync.Mutex
	handles map[uint32]*RPCHandle
}

func newRPCHandleCache() *rpcHandleCache {
	return &rpcHandleCache{handles: make(map[uint32]*RPCHandle)}
}

// GetRPC returns a cached handle for vers, or nil if none is cached --
// callers construct one (resolving the peer's NLM port via the portmapper)
// and call PutRPC to populate the cache for next time.
func (h *Host) GetRPC(vers uint32) *RPCHandle {
	h.rpcCache.mu.Lock()
	defer h.rpcCache.mu.Unlock()
	return h.rpcCache.handles[vers]
}

// PutRPC returns a handle to the cache for reuse.
func (h *Host) PutRPC(handle *RPCHandle) {
	h.rpcCache.mu.Lock()
	defer h.rpcCache.mu.Unlock()
	h.rpcCache.handles[handle.Version] = handle
}

// DropRPC evicts a stale cached handle, called by the garbage collector.
func (h *Host) DropRPC(vers uint32) {
	h.rpcCache.mu.Lock()
	defer h.rpcCache.mu.Unlock()
	delete(h.rpcCache.handles, vers)
}
