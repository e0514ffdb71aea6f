package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
)

// NewRouter builds the admin API's chi router.
//
// Routes:
//   - GET  /healthz                      - liveness, unauthenticated
//   - GET  /hosts                        - live host set
//   - GET  /hosts/{sysid}                - single host
//   - POST /hosts/{sysid}/unmonitor      - force notify_server+notify_client(0) (authenticated)
//   - GET  /locks?fh=...                 - locks held on a file handle
//
// issuer may be nil, which disables bearer-token checks entirely (the
// loopback-only deployment SPEC_FULL describes for a bind address of
// 127.0.0.1). Any non-nil issuer gates every mutating route.
func NewRouter(registry *nlmcore.Registry, issuer *TokenIssuer) http.Handler {
	h := NewHandler(registry)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.Healthz)
	r.Get("/hosts", h.ListHosts)
	r.Get("/hosts/{sysid}", h.GetHost)
	r.Get("/locks", h.ListLocks)

	r.Group(func(r chi.Router) {
		if issuer != nil {
			r.Use(bearerAuth(issuer))
		}
		r.Post("/hosts/{sysid}/unmonitor", h.UnmonitorHost)
	})

	return r
}

// bearerAuth rejects requests whose Authorization header doesn't carry a
// token Verify accepts. It doesn't attach the subject to the request
// context: nothing downstream distinguishes operators from one another.
func bearerAuth(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "authorization header required")
				return
			}
			if _, err := issuer.Verify(parts[1]); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each admin API request through the service's own
// structured logger rather than chi's default stdlib logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("admin API request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
