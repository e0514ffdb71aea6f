package handlers

import (
	"bytes"
	"fmt"
	"net"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/protocol/nlm/callback"
	"github.com/marmos91/dittofs/internal/protocol/nlm/types"
	nlm_xdr "github.com/marmos91/dittofs/internal/protocol/nlm/xdr"
	storeerrors "github.com/marmos91/dittofs/pkg/metadata/errors"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// LockRequest represents an NLM_LOCK request.
type LockRequest struct {
	// Cookie is an opaque value echoed back in the response.
	Cookie []byte

	// Block indicates whether to block waiting for the lock.
	// If true and lock conflicts, server queues request and calls back via GRANTED.
	// If false and lock conflicts, server returns NLM4Denied immediately.
	Block bool

	// Exclusive indicates the lock type.
	// true = exclusive (write) lock
	// false = shared (read) lock
	Exclusive bool

	// Lock contains the lock parameters.
	Lock types.NLM4Lock

	// Reclaim indicates this is a lock reclaim during grace period.
	Reclaim bool

	// State is the NSM state counter for crash recovery.
	State int32
}

// LockResponse represents an NLM_LOCK response.
type LockResponse struct {
	// Cookie is echoed from the request.
	Cookie []byte

	// Status is the result of the operation.
	Status uint32
}

// DecodeLockRequest decodes an NLM_LOCK request from XDR format.
func DecodeLockRequest(data []byte) (*LockRequest, error) {
	r := bytes.NewReader(data)
	args, err := nlm_xdr.DecodeNLM4LockArgs(r)
	if err != nil {
		return nil, fmt.Errorf("decode NLM4LockArgs: %w", err)
	}

	return &LockRequest{
		Cookie:    args.Cookie,
		Block:     args.Block,
		Exclusive: args.Exclusive,
		Lock:      args.Lock,
		Reclaim:   args.Reclaim,
		State:     args.State,
	}, nil
}

// EncodeLockResponse encodes an NLM_LOCK response to XDR format.
func EncodeLockResponse(resp *LockResponse) ([]byte, error) {
	buf := new(bytes.Buffer)

	res := &types.NLM4Res{
		Cookie: resp.Cookie,
		Status: resp.Status,
	}

	if err := nlm_xdr.EncodeNLM4Res(buf, res); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// peerAddr resolves the host registry key for ctx, defaulting the netid to
// "tcp" since the NLM listener doesn't currently distinguish transports.
func peerAddr(ctx *NLMHandlerContext) nlmcore.PeerAddr {
	netid := ctx.Netid
	if netid == "" {
		netid = "tcp"
	}
	return nlmcore.PeerAddr{Netid: netid, Addr: ctx.ClientAddr}
}

// Lock handles the NLM_LOCK procedure (procedure 2).
//
// NLM_LOCK acquires an advisory lock on a byte range of a file.
//
// Behavior:
//   - Non-blocking (Block=false): Returns NLM4Granted on success, NLM4Denied on conflict
//   - Blocking (Block=true): Returns NLM4Blocked on conflict and registers a sleeping
//     request; the lock is granted asynchronously via an NLM_GRANTED callback once the
//     conflicting range is freed (see Unlock)
//   - Reclaim (Reclaim=true): Bypasses the grace period gate
//   - During grace period with Reclaim=false: Returns NLM4DeniedGrace
//
// Cross-Protocol Behavior:
//   - Before acquiring, checks for SMB Write leases that need to be broken
//   - Waits for SMB lease break acknowledgment (configurable timeout, default 35s)
//   - If a non-blocking request conflicts with an SMB lease, returns NLM4_DENIED
//     and logs the SMB holder info (the response itself carries no holder)
func (h *Handler) Lock(ctx *NLMHandlerContext, req *LockRequest) (*LockResponse, error) {
	host := h.registry.FindCreateHost(peerAddr(ctx), req.Lock.CallerName)
	if host == nil {
		logger.Warn("NLM LOCK: registry unavailable", "client", ctx.ClientAddr)
		return &LockResponse{Cookie: req.Cookie, Status: types.NLM4DeniedNoLocks}, nil
	}
	defer h.registry.ReleaseHost(host)

	op := lock.Operation{IsReclaim: req.Reclaim, IsNew: !req.Reclaim}
	if allowed, _ := h.registry.IsOperationAllowed(op); !allowed {
		logger.Debug("NLM LOCK denied: grace period", "client", ctx.ClientAddr)
		return &LockResponse{Cookie: req.Cookie, Status: types.NLM4DeniedGrace}, nil
	}

	ownerID := nlmcore.OwnerID(host.Sysid(), req.Lock.Svid, req.Lock.OH)
	owner := lock.LockOwner{OwnerID: ownerID, ClientID: ctx.ClientAddr}
	handleKey := string(req.Lock.FH)

	logger.Debug("NLM LOCK",
		"client", ctx.ClientAddr,
		"caller", req.Lock.CallerName,
		"owner", ownerID,
		"exclusive", req.Exclusive,
		"block", req.Block,
		"reclaim", req.Reclaim,
		"offset", req.Lock.Offset,
		"length", req.Lock.Length)

	if err := checkForSMBLeaseConflicts(ctx.Context, h.registry.Local, handleKey, owner, h.config); err != nil {
		// Context cancelled during wait; proceed with the acquire attempt
		// anyway since the SMB client may have released the lease already.
		logger.Info("NLM LOCK: lease break wait interrupted", "client", ctx.ClientAddr, "error", err)
	}

	vh := host.Get(handleKey)

	lockType := lock.LockTypeShared
	if req.Exclusive {
		lockType = lock.LockTypeExclusive
	}
	ul := lock.NewUnifiedLock(owner, lock.FileHandle(handleKey), req.Lock.Offset, req.Lock.Length, lockType)
	ul.Blocking = req.Block
	ul.Reclaim = req.Reclaim

	err := h.registry.Local.AddUnifiedLock(handleKey, ul)
	if err == nil {
		host.PutVhold(vh)
		h.registry.EnsureMonitored(ctx.Context, host)
		logger.Debug("NLM LOCK granted", "client", ctx.ClientAddr, "owner", ownerID)
		return &LockResponse{Cookie: req.Cookie, Status: types.NLM4Granted}, nil
	}

	storeErr, ok := err.(*storeerrors.StoreError)
	if !ok || storeErr.Code != storeerrors.ErrLockConflict {
		host.PutVhold(vh)
		logger.Warn("NLM LOCK failed", "client", ctx.ClientAddr, "error", err)
		return &LockResponse{Cookie: req.Cookie, Status: types.NLM4Failed}, nil
	}

	conflict := findConflict(h.registry.Local, handleKey, ul)

	if !req.Block {
		host.PutVhold(vh)
		return denyResponse(req.Cookie, ctx.ClientAddr, ownerID, conflict), nil
	}

	// Blocking conflict: register the sleeping request on the vhold and
	// track the callback details for the unlock path to retry against.
	// The vhold reference taken above stays live until the grant completes
	// or the request is cancelled.
	sleep := nlmcore.ServerSleepingRequest{
		Offset:    req.Lock.Offset,
		Length:    req.Lock.Length,
		Pid:       req.Lock.Svid,
		Exclusive: req.Exclusive,
	}
	if !vh.RegisterSleeping(sleep) {
		// Duplicate blocking request already owns the wait; nothing more
		// to track, but still report blocked per NLM idempotency.
		host.PutVhold(vh)
		return &LockResponse{Cookie: req.Cookie, Status: types.NLM4Blocked}, nil
	}

	h.grants.add(&pendingGrant{
		host:         host,
		vhold:        vh,
		handleKey:    handleKey,
		owner:        owner,
		sleep:        sleep,
		lockType:     lockType,
		callbackAddr: extractCallbackAddr(ctx.ClientAddr),
		callbackProg: types.ProgramNLM,
		callbackVers: types.NLMVersion4,
		callerName:   req.Lock.CallerName,
		fh:           req.Lock.FH,
		oh:           req.Lock.OH,
	})

	logger.Debug("NLM LOCK queued", "client", ctx.ClientAddr, "owner", ownerID)
	return &LockResponse{Cookie: req.Cookie, Status: types.NLM4Blocked}, nil
}

// findConflict returns the existing lock that conflicts with candidate, or
// nil if none is found (e.g. the conflict already cleared).
func findConflict(manager *lock.Manager, handleKey string, candidate *lock.UnifiedLock) *lock.UnifiedLock {
	for _, existing := range manager.ListUnifiedLocks(handleKey) {
		if candidate.ConflictsWith(existing) {
			return existing
		}
	}
	return nil
}

// denyResponse builds the NLM4_DENIED response for a non-blocking conflict,
// preferring SMB lease holder info over generic byte-range holder info.
func denyResponse(cookie []byte, clientAddr, ownerID string, conflict *lock.UnifiedLock) *LockResponse {
	if conflict == nil {
		logger.Debug("NLM LOCK denied", "client", clientAddr, "owner", ownerID)
		return &LockResponse{Cookie: cookie, Status: types.NLM4Denied}
	}

	if conflict.IsLease() {
		logger.Info("NLM LOCK denied by SMB lease",
			"client", clientAddr, "owner", ownerID, "lease_state", conflict.Lease.StateString())
		lock.RecordCrossProtocolConflict(lock.InitiatorNFS, lock.ConflictingSMBLease, lock.ResolutionDenied)
		return buildDeniedResponseFromSMBLease(cookie, conflict)
	}

	logger.Debug("NLM LOCK denied by byte-range lock", "client", clientAddr, "owner", ownerID)
	return buildDeniedResponseFromByteRangeLock(cookie, conflict)
}

// extractCallbackAddr constructs the callback address from the client address.
//
// The callback is sent to the client's IP on the fixed port 12049. The
// client's source port and its portmapper registration are not consulted,
// and the port does not follow this server's configured NLM address.
func extractCallbackAddr(clientAddr string) string {
	host, _, err := net.SplitHostPort(clientAddr)
	if err != nil {
		return clientAddr
	}
	return net.JoinHostPort(host, "12049")
}

// sendGrantedCallback is a package-level indirection over
// callback.SendGrantedCallback so tests can stub out the network call.
var sendGrantedCallback = callback.SendGrantedCallback
