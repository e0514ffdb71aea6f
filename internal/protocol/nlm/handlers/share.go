package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/protocol/nlm/types"
	nlm_xdr "github.com/marmos91/dittofs/internal/protocol/nlm/xdr"
	storeerrors "github.com/marmos91/dittofs/pkg/metadata/errors"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// shareSvid is the fixed pseudo-svid used to build owner IDs for share
// reservations. Unlike byte-range locks, NLM_SHARE has no svid field; the
// owner handle alone distinguishes one caller's share from another's.
const shareSvid int32 = -1

// ShareRequest represents an NLM_SHARE request.
type ShareRequest struct {
	// Cookie is an opaque value echoed back in the response.
	Cookie []byte

	// CallerName is the client hostname.
	CallerName string

	// FH is the NFS file handle.
	FH []byte

	// OH is the owner handle.
	OH []byte

	// Mode is the share access mode (read, write, read-write).
	Mode uint32

	// Access is the share deny mode (deny none, deny read, deny write, deny both).
	Access uint32

	// Reclaim indicates whether this is a reclaim during grace period.
	Reclaim bool
}

// ShareResponse represents an NLM_SHARE response.
type ShareResponse struct {
	// Cookie is echoed from the request.
	Cookie []byte

	// Status is the result of the operation.
	Status uint32

	// Sequence is the nlm4_shareres sequence field; this server always
	// sends 0.
	Sequence int32
}

// DecodeShareRequest decodes an NLM_SHARE request from XDR format.
func DecodeShareRequest(data []byte) (*ShareRequest, error) {
	r := bytes.NewReader(data)
	args, err := nlm_xdr.DecodeNLM4ShareArgs(r)
	if err != nil {
		return nil, fmt.Errorf("decode NLM4ShareArgs: %w", err)
	}

	return &ShareRequest{
		Cookie:     args.Cookie,
		CallerName: args.CallerName,
		FH:         args.FH,
		OH:         args.OH,
		Mode:       args.Mode,
		Access:     args.Access,
		Reclaim:    args.Reclaim,
	}, nil
}

// EncodeShareResponse encodes an NLM_SHARE response to XDR format.
func EncodeShareResponse(resp *ShareResponse) ([]byte, error) {
	buf := new(bytes.Buffer)

	res := &types.NLM4ShareRes{
		Cookie:   resp.Cookie,
		Status:   resp.Status,
		Sequence: resp.Sequence,
	}

	if err := nlm_xdr.EncodeNLM4ShareRes(buf, res); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Share handles the NLM_SHARE procedure (procedure 20).
//
// NLM_SHARE acquires a DOS-style share reservation on a file: Mode is the
// access the caller wants (read/write/both), Access is what it denies
// other openers (deny none/read/write/both). This engine has no separate
// share-mode table, so a reservation that denies anything is represented
// as a whole-file exclusive UnifiedLock; deny-none is represented as a
// whole-file shared lock, so it only ever conflicts with a denying
// reservation from a different owner.
func (h *Handler) Share(ctx *NLMHandlerContext, req *ShareRequest) (*ShareResponse, error) {
	host := h.registry.FindCreateHost(peerAddr(ctx), req.CallerName)
	if host == nil {
		logger.Warn("NLM SHARE: registry unavailable", "client", ctx.ClientAddr)
		return &ShareResponse{Cookie: req.Cookie, Status: types.NLM4DeniedNoLocks}, nil
	}
	defer h.registry.ReleaseHost(host)

	op := lock.Operation{IsReclaim: req.Reclaim, IsNew: !req.Reclaim}
	if allowed, _ := h.registry.IsOperationAllowed(op); !allowed {
		logger.Debug("NLM SHARE denied: grace period", "client", ctx.ClientAddr)
		return &ShareResponse{Cookie: req.Cookie, Status: types.NLM4DeniedGrace}, nil
	}

	ownerID := nlmcore.OwnerID(host.Sysid(), shareSvid, req.OH)
	owner := lock.LockOwner{OwnerID: ownerID, ClientID: ctx.ClientAddr}
	handleKey := string(req.FH)

	logger.Debug("NLM SHARE",
		"client", ctx.ClientAddr,
		"caller", req.CallerName,
		"owner", ownerID,
		"mode", req.Mode,
		"access", req.Access,
		"reclaim", req.Reclaim)

	vh := host.Get(handleKey)

	lockType := lock.LockTypeShared
	if req.Access != types.FSH4DenyNone {
		lockType = lock.LockTypeExclusive
	}
	ul := lock.NewUnifiedLock(owner, lock.FileHandle(handleKey), 0, 0, lockType)
	ul.Reclaim = req.Reclaim

	if err := h.registry.Local.AddUnifiedLock(handleKey, ul); err != nil {
		host.PutVhold(vh)

		storeErr, ok := err.(*storeerrors.StoreError)
		if !ok || storeErr.Code != storeerrors.ErrLockConflict {
			logger.Warn("NLM SHARE failed", "client", ctx.ClientAddr, "error", err)
			return &ShareResponse{Cookie: req.Cookie, Status: types.NLM4Failed}, nil
		}

		logger.Debug("NLM SHARE denied", "client", ctx.ClientAddr, "owner", ownerID)
		return &ShareResponse{Cookie: req.Cookie, Status: types.NLM4Denied}, nil
	}

	host.PutVhold(vh)
	h.registry.EnsureMonitored(ctx.Context, host)

	logger.Debug("NLM SHARE granted", "client", ctx.ClientAddr, "owner", ownerID)
	return &ShareResponse{Cookie: req.Cookie, Status: types.NLM4Granted, Sequence: 0}, nil
}

// Unshare handles the NLM_UNSHARE procedure (procedure 21).
//
// NLM_UNSHARE releases a previously acquired share reservation, identified
// by the same (sysid, owner handle) pair Share used to create it.
func (h *Handler) Unshare(ctx *NLMHandlerContext, req *ShareRequest) (*ShareResponse, error) {
	host := h.registry.FindHost(peerAddr(ctx))
	handleKey := string(req.FH)

	var ownerID string
	if host != nil {
		ownerID = nlmcore.OwnerID(host.Sysid(), shareSvid, req.OH)
		owner := lock.LockOwner{OwnerID: ownerID, ClientID: ctx.ClientAddr}

		if err := h.registry.Local.RemoveUnifiedLock(handleKey, owner, 0, 0); err != nil {
			logger.Debug("NLM UNSHARE: no matching share", "client", ctx.ClientAddr, "owner", ownerID)
		}

		h.registry.ReleaseHost(host)
	}

	logger.Debug("NLM UNSHARE", "client", ctx.ClientAddr, "caller", req.CallerName, "owner", ownerID)

	return &ShareResponse{Cookie: req.Cookie, Status: types.NLM4Granted, Sequence: 0}, nil
}
