package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/protocol/nlm/types"
	nlm_xdr "github.com/marmos91/dittofs/internal/protocol/nlm/xdr"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// TestRequest represents an NLM_TEST request.
type TestRequest struct {
	// Cookie is an opaque value echoed back in the response.
	Cookie []byte

	// Exclusive indicates the lock type to test for.
	// true = would an exclusive lock succeed?
	// false = would a shared lock succeed?
	Exclusive bool

	// Lock contains the lock parameters to test.
	Lock types.NLM4Lock
}

// TestResponse represents an NLM_TEST response.
type TestResponse struct {
	// Cookie is echoed from the request.
	Cookie []byte

	// Status is NLM4Granted if the lock would succeed,
	// NLM4Denied if there's a conflict.
	Status uint32

	// Holder contains information about the conflicting lock.
	// Only populated when Status is NLM4Denied.
	Holder *types.NLM4Holder
}

// DecodeTestRequest decodes an NLM_TEST request from XDR format.
func DecodeTestRequest(data []byte) (*TestRequest, error) {
	r := bytes.NewReader(data)
	args, err := nlm_xdr.DecodeNLM4TestArgs(r)
	if err != nil {
		return nil, fmt.Errorf("decode NLM4TestArgs: %w", err)
	}

	return &TestRequest{
		Cookie:    args.Cookie,
		Exclusive: args.Exclusive,
		Lock:      args.Lock,
	}, nil
}

// EncodeTestResponse encodes an NLM_TEST response to XDR format.
func EncodeTestResponse(resp *TestResponse) ([]byte, error) {
	buf := new(bytes.Buffer)

	res := &types.NLM4TestRes{
		Cookie: resp.Cookie,
		Status: resp.Status,
		Holder: resp.Holder,
	}

	if err := nlm_xdr.EncodeNLM4TestRes(buf, res); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Test handles the NLM_TEST procedure (procedure 1).
//
// NLM_TEST checks if a lock could be granted without actually acquiring it.
// This is used by clients for F_GETLK fcntl() calls. Despite not mutating
// lock state, TEST is denied during the grace period along with every
// other non-reclaim operation: a peer's view of who holds what is only
// trustworthy once reclaims have had their window to land.
func (h *Handler) Test(ctx *NLMHandlerContext, req *TestRequest) (*TestResponse, error) {
	host := h.registry.FindCreateHost(peerAddr(ctx), req.Lock.CallerName)
	if host == nil {
		logger.Warn("NLM TEST: registry unavailable", "client", ctx.ClientAddr)
		return &TestResponse{Cookie: req.Cookie, Status: types.NLM4DeniedNoLocks}, nil
	}
	defer h.registry.ReleaseHost(host)

	if allowed, _ := h.registry.IsOperationAllowed(lock.Operation{IsNew: true}); !allowed {
		logger.Debug("NLM TEST denied: grace period", "client", ctx.ClientAddr)
		return &TestResponse{Cookie: req.Cookie, Status: types.NLM4DeniedGrace}, nil
	}

	ownerID := nlmcore.OwnerID(host.Sysid(), req.Lock.Svid, req.Lock.OH)
	handleKey := string(req.Lock.FH)

	logger.Debug("NLM TEST",
		"client", ctx.ClientAddr,
		"caller", req.Lock.CallerName,
		"owner", ownerID,
		"exclusive", req.Exclusive,
		"offset", req.Lock.Offset,
		"length", req.Lock.Length)

	lockType := lock.LockTypeShared
	if req.Exclusive {
		lockType = lock.LockTypeExclusive
	}
	candidate := lock.NewUnifiedLock(lock.LockOwner{OwnerID: ownerID}, lock.FileHandle(handleKey), req.Lock.Offset, req.Lock.Length, lockType)

	conflict := findConflict(h.registry.Local, handleKey, candidate)
	if conflict == nil {
		return &TestResponse{Cookie: req.Cookie, Status: types.NLM4Granted}, nil
	}

	return &TestResponse{
		Cookie: req.Cookie,
		Status: types.NLM4Denied,
		Holder: conflictToHolder(conflict),
	}, nil
}

// conflictToHolder converts a conflicting UnifiedLock to an NLM4Holder,
// preferring the protocol-agnostic translation helpers so SMB lease
// holders report the same way TEST/LOCK denial paths do.
func conflictToHolder(conflict *lock.UnifiedLock) *types.NLM4Holder {
	if conflict == nil {
		return nil
	}

	var info lock.NLMHolderInfo
	if conflict.IsLease() {
		info = lock.TranslateToNLMHolder(conflict)
	} else {
		info = lock.TranslateByteRangeLockToNLMHolder(conflict)
	}

	return &types.NLM4Holder{
		Exclusive: info.Exclusive,
		Svid:      info.Svid,
		OH:        info.OH,
		Offset:    info.Offset,
		Length:    info.Length,
	}
}
