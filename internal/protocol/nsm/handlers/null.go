package handlers

import "github.com/marmos91/dittofs/internal/logger"

// Null handles the SM_NULL procedure (procedure 0), used by clients to test
// connectivity before attempting real monitoring calls.
func (h *Handler) Null(ctx *NSMHandlerContext) (*HandlerResult, error) {
	logger.Debug("NSM NULL", "client", ctx.ClientAddr)
	return &HandlerResult{Data: []byte{}}, nil
}
