package handlers

import (
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/nsm/types"
	"github.com/marmos91/dittofs/internal/protocol/nsm/xdr"
)

// Stat handles the SM_STAT procedure (procedure 1).
//
// SM_STAT queries this host's current state counter without establishing
// monitoring. The mon_name argument is accepted but unused: a local statd
// only ever reports its own state, never another host's.
func (h *Handler) Stat(ctx *NSMHandlerContext, data []byte) (*HandlerResult, error) {
	state := h.GetServerState()

	r := newBytesReader(data)
	name, err := xdr.DecodeSMName(r)
	if err != nil {
		logger.Warn("NSM STAT decode error", "client", ctx.ClientAddr, "error", err)
		return encodeStatFailure(state)
	}

	logger.Debug("NSM STAT request", "client", ctx.ClientAddr, "mon_name", name.Name, "state", state)

	encoded, err := xdr.EncodeSMStatRes(&types.SMStatRes{Result: types.StatSucc, State: state})
	if err != nil {
		return encodeStatFailure(state)
	}
	return &HandlerResult{Data: encoded, NSMStatus: types.StatSucc}, nil
}
