// Package nlm provides Network Lock Manager (NLM) protocol types and the
// procedure dispatch table that routes NLM RPC calls to their handlers.
//
// NLM is the advisory byte-range locking protocol NFSv3 clients use to
// coordinate file locks across the network; it works alongside NSM
// (Network Status Monitor) for crash recovery.
package nlm

import (
	"github.com/marmos91/dittofs/internal/protocol/nlm/handlers"
)

// Procedure numbers, duplicated here (rather than imported from the types
// subpackage) because that subpackage aliases this package's RPC structs
// and importing it back would create a cycle.
const (
	procNull    uint32 = 0
	procTest    uint32 = 1
	procLock    uint32 = 2
	procCancel  uint32 = 3
	procUnlock  uint32 = 4
	procShare   uint32 = 20
	procUnshare uint32 = 21
	procFreeAll uint32 = 23
)

// NLMProcedureHandler decodes a procedure's arguments from data, invokes
// the corresponding Handler method, and encodes the response. Only the
// synchronous NLM v4 procedures are dispatched this way; the _MSG/_RES
// callback variants are not implemented.
type NLMProcedureHandler func(
	ctx *handlers.NLMHandlerContext,
	handler *handlers.Handler,
	data []byte,
) ([]byte, error)

// NLMProcedure describes one entry in the dispatch table.
type NLMProcedure struct {
	// Name is the procedure name for logging.
	Name string

	// Handler processes this procedure's request bytes into response bytes.
	Handler NLMProcedureHandler

	// NeedsAuth indicates whether this procedure requires AUTH_UNIX
	// credentials. NLM lock operations need a caller identity; NULL does
	// not.
	NeedsAuth bool
}

// NLMDispatchTable maps NLM v4 procedure numbers to their handlers.
var NLMDispatchTable map[uint32]*NLMProcedure

func init() {
	NLMDispatchTable = map[uint32]*NLMProcedure{
		procNull: {
			Name:      "NULL",
			Handler:   handleNLMNull,
			NeedsAuth: false,
		},
		procTest: {
			Name:      "TEST",
			Handler:   handleNLMTest,
			NeedsAuth: true,
		},
		procLock: {
			Name:      "LOCK",
			Handler:   handleNLMLock,
			NeedsAuth: true,
		},
		procCancel: {
			Name:      "CANCEL",
			Handler:   handleNLMCancel,
			NeedsAuth: true,
		},
		procUnlock: {
			Name:      "UNLOCK",
			Handler:   handleNLMUnlock,
			NeedsAuth: true,
		},
		procShare: {
			Name:      "SHARE",
			Handler:   handleNLMShare,
			NeedsAuth: true,
		},
		procUnshare: {
			Name:      "UNSHARE",
			Handler:   handleNLMUnshare,
			NeedsAuth: true,
		},
		procFreeAll: {
			Name:      "FREE_ALL",
			Handler:   handleNLMFreeAll,
			NeedsAuth: false,
		},
	}
}

func handleNLMNull(ctx *handlers.NLMHandlerContext, h *handlers.Handler, _ []byte) ([]byte, error) {
	if err := h.Null(ctx); err != nil {
		return nil, err
	}
	return []byte{}, nil
}

func handleNLMTest(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeTestRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.Test(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeTestResponse(resp)
}

func handleNLMLock(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeLockRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.Lock(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeLockResponse(resp)
}

func handleNLMCancel(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeCancelRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.Cancel(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeCancelResponse(resp)
}

func handleNLMUnlock(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeUnlockRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.Unlock(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeUnlockResponse(resp)
}

func handleNLMShare(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeShareRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.Share(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeShareResponse(resp)
}

func handleNLMUnshare(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeShareRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.Unshare(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeShareResponse(resp)
}

func handleNLMFreeAll(ctx *handlers.NLMHandlerContext, h *handlers.Handler, data []byte) ([]byte, error) {
	req, err := handlers.DecodeFreeAllRequest(data)
	if err != nil {
		return nil, err
	}
	resp, err := h.FreeAll(ctx, req)
	if err != nil {
		return nil, err
	}
	return handlers.EncodeFreeAllResponse(resp)
}

// ProcedureName returns a human-readable name for an NLM procedure number,
// or "UNKNOWN" if the procedure is not dispatched by this table.
func ProcedureName(proc uint32) string {
	if p, ok := NLMDispatchTable[proc]; ok {
		return p.Name
	}
	return "UNKNOWN"
}
