package handlers

import "github.com/marmos91/dittofs/internal/logger"

// Null handles the NLM_NULL procedure (procedure 0), used by clients to
// test connectivity before attempting real lock operations.
func (h *Handler) Null(ctx *NLMHandlerContext) error {
	logger.Debug("NLM NULL", "client", ctx.ClientAddr)
	return nil
}
