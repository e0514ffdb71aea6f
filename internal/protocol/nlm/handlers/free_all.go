package handlers

import (
	"bytes"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/xdr"
)

// FreeAllRequest represents an NLM4_FREE_ALL request.
//
// Per NLM specification:
//
//	struct nlm_notify {
//	    string name<MAXNAMELEN>;  // Client hostname
//	    int32  state;             // Client state (unused in FREE_ALL)
//	};
//
// Note: The state field is present in the wire format but not used for FREE_ALL.
// We only need the name to identify which client's locks to release.
type FreeAllRequest struct {
	// Name is the client hostname whose locks should be released.
	// This matches the caller_name field used when locks were acquired.
	Name string

	// State is the client's NSM state (unused for FREE_ALL).
	State int32
}

// FreeAllResponse represents an NLM4_FREE_ALL response.
//
// Per NLM specification, FREE_ALL has no response body (void).
type FreeAllResponse struct{}

// DecodeFreeAllRequest decodes an NLM4_FREE_ALL request from XDR format.
func DecodeFreeAllRequest(data []byte) (*FreeAllRequest, error) {
	r := bytes.NewReader(data)

	name, err := xdr.DecodeString(r)
	if err != nil {
		return nil, err
	}

	state, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, err
	}

	return &FreeAllRequest{
		Name:  name,
		State: state,
	}, nil
}

// EncodeFreeAllResponse encodes an NLM4_FREE_ALL response to XDR format.
//
// Per NLM specification, FREE_ALL returns void (no response body).
func EncodeFreeAllResponse(_ *FreeAllResponse) ([]byte, error) {
	return []byte{}, nil
}

// FreeAll handles the NLM4_FREE_ALL procedure (procedure 23).
//
// FREE_ALL releases every lock this engine believes a given host holds.
// It is called by NSM (via rpc.statd) when a client crashes and reboots
// with a fresh state number, and by SM_NOTIFY handling more generally:
// the caller name identifies the host, and every vhold it holds across
// every file is cleaned up the same way notify_server does for a
// monitored status change.
//
// FREE_ALL does not touch this server's own client-side sleeping locks
// (the ones registered against remote peers): that state is reclaim
// territory, driven only by the SM notifications NotifyClient handles,
// never by an inbound FREE_ALL naming a different host.
func (h *Handler) FreeAll(ctx *NLMHandlerContext, req *FreeAllRequest) (*FreeAllResponse, error) {
	logger.Info("FREE_ALL", "client", req.Name, "from", ctx.ClientAddr)

	host := h.registry.Hosts.FindByCallerName(req.Name)
	if host == nil {
		logger.Debug("FREE_ALL: no host registered for caller", "caller", req.Name)
		return &FreeAllResponse{}, nil
	}

	h.registry.NotifyServer(host, 0)

	for _, vh := range host.Snapshot() {
		h.retryWaiters(vh.FileID())
	}

	h.registry.ReleaseHost(host)

	logger.Info("FREE_ALL: completed", "client", req.Name)
	return &FreeAllResponse{}, nil
}
