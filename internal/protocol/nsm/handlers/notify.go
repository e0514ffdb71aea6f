package handlers

import (
	"context"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/protocol/nsm/callback"
	"github.com/marmos91/dittofs/internal/protocol/nsm/types"
	"github.com/marmos91/dittofs/internal/protocol/nsm/xdr"
)

// sendStatus delivers one SM_NOTIFY callback; overridden in tests.
var sendStatus = func(ctx context.Context, client *callback.Client, status *types.Status, proc, prog, vers uint32, addr string) error {
	return client.Send(ctx, addr, status, proc, prog, vers)
}

var notifyClient = callback.NewClient(0)

// Notify handles the SM_NOTIFY procedure (procedure 6).
//
// SM_NOTIFY is delivered by a monitored host's own statd when it restarts,
// reporting its new state counter. On receipt this fans the change out to
// every local registration monitoring that host (sending each its own
// SM_NOTIFY callback with the Priv it supplied at SM_MON time) and invokes
// onStateChange so the lock engine can start its client-side reclaim.
func (h *Handler) Notify(ctx *NSMHandlerContext, data []byte) (*HandlerResult, error) {
	r := newBytesReader(data)
	chg, err := xdr.DecodeStatChge(r)
	if err != nil {
		logger.Warn("NSM NOTIFY decode error", "client", ctx.ClientAddr, "error", err)
		return &HandlerResult{Data: []byte{}}, nil
	}

	logger.Info("NSM NOTIFY received", "mon_name", chg.MonName, "state", chg.State, "from", ctx.ClientAddr)

	for _, reg := range h.tracker.GetNSMClients() {
		if reg.MonName != chg.MonName || reg.CallbackInfo == nil {
			continue
		}

		status := &types.Status{MonName: chg.MonName, State: chg.State, Priv: reg.Priv}
		addr := reg.CallbackInfo.Hostname
		proc, prog, vers := reg.CallbackInfo.Proc, reg.CallbackInfo.Program, reg.CallbackInfo.Version

		go func() {
			if err := sendStatus(ctx.Context, notifyClient, status, proc, prog, vers, addr); err != nil {
				logger.Warn("NSM NOTIFY callback failed", "addr", addr, "mon_name", status.MonName, "error", err)
			}
		}()
	}

	if h.onStateChange != nil {
		h.onStateChange(chg.MonName, chg.State)
	}

	return &HandlerResult{Data: []byte{}, NSMStatus: types.StatSucc}, nil
}
