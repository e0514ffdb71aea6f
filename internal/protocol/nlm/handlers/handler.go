package handlers

import (
	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/pkg/config"
	"github.com/marmos91/dittofs/pkg/metrics"
)

// Handler processes NLM procedure calls against the lock-management core.
//
// Handler holds references to:
//   - Registry, the host/vhold/sleeping-lock engine from internal/nlmcore
//   - Config for configurable timeouts (e.g., lease break timeout)
//   - Metrics for Prometheus instrumentation (nil-safe when disabled)
//
// Thread Safety:
// Handler is safe for concurrent use by multiple goroutines. The underlying
// Registry handles its own synchronization.
type Handler struct {
	registry *nlmcore.Registry
	config   *config.Config
	metrics  *metrics.NLM
	grants   *grantTracker
}

// NewHandler creates a new NLM handler against registry with default config
// and no metrics.
func NewHandler(registry *nlmcore.Registry) *Handler {
	return &Handler{
		registry: registry,
		metrics:  metrics.NullNLM(),
		grants:   newGrantTracker(),
	}
}

// NewHandlerWithConfig creates a new NLM handler with config and metrics.
//
// Parameters:
//   - registry: The lock-management core. Must not be nil.
//   - cfg: The config containing lock settings (lease break timeout, etc.)
//   - m: Prometheus metrics. Pass metrics.NullNLM() to disable.
func NewHandlerWithConfig(registry *nlmcore.Registry, cfg *config.Config, m *metrics.NLM) *Handler {
	if m == nil {
		m = metrics.NullNLM()
	}
	return &Handler{
		registry: registry,
		config:   cfg,
		metrics:  m,
		grants:   newGrantTracker(),
	}
}

// Registry returns the lock-management core backing this handler.
func (h *Handler) Registry() *nlmcore.Registry {
	return h.registry
}
