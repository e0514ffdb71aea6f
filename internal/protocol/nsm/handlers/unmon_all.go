package handlers

import (
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/nsm/xdr"
)

// UnmonAll handles the SM_UNMON_ALL procedure (procedure 4).
//
// SM_UNMON_ALL unregisters every monitoring registration a caller holds,
// identified by the my_id callback info it supplies (not a specific
// mon_name). Used during client shutdown.
func (h *Handler) UnmonAll(ctx *NSMHandlerContext, data []byte) (*HandlerResult, error) {
	state := h.GetServerState()

	r := newBytesReader(data)
	myID, err := xdr.DecodeMyID(r)
	if err != nil {
		logger.Warn("NSM UNMON_ALL decode error", "client", ctx.ClientAddr, "error", err)
		return encodeStatResponse(state)
	}

	clientID := generateClientID(ctx.ClientAddr, myID.MyName)
	h.tracker.ClearNSMInfo(clientID)

	if h.clientStore != nil {
		if err := h.clientStore.DeleteClientRegistration(ctx.Context, clientID); err != nil {
			logger.Warn("NSM UNMON_ALL persistence deletion failed",
				"client", ctx.ClientAddr, "client_id", clientID, "error", err)
		}
	}

	logger.Info("NSM UNMON_ALL completed", "client_id", clientID, "callback_host", myID.MyName)

	return encodeStatResponse(state)
}
