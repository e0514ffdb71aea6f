package handlers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/protocol/nlm/types"
	nlm_xdr "github.com/marmos91/dittofs/internal/protocol/nlm/xdr"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// UnlockRequest represents an NLM_UNLOCK request.
type UnlockRequest struct {
	// Cookie is an opaque value echoed back in the response.
	Cookie []byte

	// Lock contains the range to release. Svid/OH/CallerName identify the
	// owner; Offset/Length identify the range within the owner's locks.
	Lock types.NLM4Lock
}

// UnlockResponse represents an NLM_UNLOCK response.
type UnlockResponse struct {
	// Cookie is echoed from the request.
	Cookie []byte

	// Status is the result of the operation: NLM4DeniedGrace during the
	// grace period, otherwise NLM4Granted; unlocking a range you don't hold
	// is not an error.
	Status uint32
}

// DecodeUnlockRequest decodes an NLM_UNLOCK request from XDR format.
func DecodeUnlockRequest(data []byte) (*UnlockRequest, error) {
	r := bytes.NewReader(data)
	args, err := nlm_xdr.DecodeNLM4UnlockArgs(r)
	if err != nil {
		return nil, fmt.Errorf("decode NLM4UnlockArgs: %w", err)
	}

	return &UnlockRequest{
		Cookie: args.Cookie,
		Lock:   args.Lock,
	}, nil
}

// EncodeUnlockResponse encodes an NLM_UNLOCK response to XDR format.
func EncodeUnlockResponse(resp *UnlockResponse) ([]byte, error) {
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

// Unlock handles the NLM_UNLOCK procedure (procedure 4).
//
// NLM_UNLOCK releases a byte range previously acquired with NLM_LOCK. After
// releasing, any blocked requests queued against the same file are retried:
// a waiter whose range no longer conflicts is granted and notified via an
// NLM_GRANTED callback.
//
// UNLOCK is not a reclaim, so like CANCEL it is denied during the grace
// period rather than allowed through.
func (h *Handler) Unlock(ctx *NLMHandlerContext, req *UnlockRequest) (*UnlockResponse, error) {
	if allowed, _ := h.registry.IsOperationAllowed(lock.Operation{IsNew: true}); !allowed {
		logger.Debug("NLM UNLOCK denied: grace period", "client", ctx.ClientAddr)
		return &UnlockResponse{Cookie: req.Cookie, Status: types.NLM4DeniedGrace}, nil
	}

	host := h.registry.FindHost(peerAddr(ctx))
	handleKey := string(req.Lock.FH)

	var ownerID string
	if host != nil {
		ownerID = nlmcore.OwnerID(host.Sysid(), req.Lock.Svid, req.Lock.OH)
		h.registry.ReleaseHost(host)
	}

	logger.Debug("NLM UNLOCK",
		"client", ctx.ClientAddr,
		"caller", req.Lock.CallerName,
		"owner", ownerID,
		"offset", req.Lock.Offset,
		"length", req.Lock.Length)

	if ownerID != "" {
		owner := lock.LockOwner{OwnerID: ownerID, ClientID: ctx.ClientAddr}
		if err := h.registry.Local.RemoveUnifiedLock(handleKey, owner, req.Lock.Offset, req.Lock.Length); err != nil {
			logger.Debug("NLM UNLOCK: no matching lock", "client", ctx.ClientAddr, "owner", ownerID)
		}
	}

	h.retryWaiters(handleKey)

	return &UnlockResponse{
		Cookie: req.Cookie,
		Status: types.NLM4Granted,
	}, nil
}

// retryWaiters drains every blocked LOCK request queued for handleKey and
// attempts to acquire each in FIFO order. Waiters that still conflict are
// requeued; waiters that succeed have their vhold sleeping entry cleared
// and receive an asynchronous NLM_GRANTED callback.
func (h *Handler) retryWaiters(handleKey string) {
	waiters := h.grants.drain(handleKey)

	var blocked []*pendingGrant
	for _, g := range waiters {
		ul := lock.NewUnifiedLock(g.owner, lock.FileHandle(g.handleKey), g.sleep.Offset, g.sleep.Length, g.lockType)
		ul.Blocking = true

		if err := h.registry.Local.AddUnifiedLock(g.handleKey, ul); err != nil {
			blocked = append(blocked, g)
			continue
		}

		g.vhold.UnregisterSleeping(g.sleep)
		g.host.PutVhold(g.vhold)
		h.registry.EnsureMonitored(context.Background(), g.host)

		go h.sendGranted(g)
	}

	// requeue prepends, so walk the still-blocked waiters newest first to
	// leave them at the head of the queue in their original order.
	for i := len(blocked) - 1; i >= 0; i-- {
		h.grants.requeue(blocked[i])
	}
}

// sendGranted fires the NLM_GRANTED callback for a waiter that just
// acquired its lock. Run in its own goroutine since the originating LOCK
// RPC has already returned NLM4Blocked and this is a fresh outbound call.
func (h *Handler) sendGranted(g *pendingGrant) {
	args := &types.NLM4GrantedArgs{
		Cookie:    nil,
		Exclusive: g.sleep.Exclusive,
		Lock: types.NLM4Lock{
			CallerName: g.callerName,
			FH:         g.fh,
			OH:         g.oh,
			Svid:       g.sleep.Pid,
			Offset:     g.sleep.Offset,
			Length:     g.sleep.Length,
		},
	}

	if err := sendGrantedCallback(context.Background(), g.callbackAddr, g.callbackProg, g.callbackVers, args); err != nil {
		logger.Warn("NLM GRANTED callback failed",
			"addr", g.callbackAddr, "owner", g.owner.OwnerID, "error", err)
	}
}
