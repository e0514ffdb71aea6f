package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
)

// Handler implements the admin HTTP API's routes. It only ever reads
// registry state or drives the same notify_server/notify_client path an
// NSM NOTIFY would: it has no bearing on wire-protocol grant decisions.
type Handler struct {
	registry *nlmcore.Registry
}

// NewHandler builds a Handler over a live registry.
func NewHandler(registry *nlmcore.Registry) *Handler {
	return &Handler{registry: registry}
}

type healthResponse struct {
	Status string `json:"status"`
}

func statusString(s nlmcore.RunStatus) string {
	switch s {
	case nlmcore.StatusStarting:
		return "starting"
	case nlmcore.StatusUp:
		return "up"
	case nlmcore.StatusStopping:
		return "stopping"
	case nlmcore.StatusDown:
		return "down"
	default:
		return "unknown"
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: statusString(h.registry.Status())})
}

type hostSummary struct {
	Sysid        uint32 `json:"sysid"`
	CallerName   string `json:"caller_name"`
	Netid        string `json:"netid"`
	Addr         string `json:"addr"`
	MonitorState string `json:"monitor_state"`
	Refcount     int    `json:"refcount"`
	VholdCount   int    `json:"vhold_count"`
}

func toHostSummary(h *nlmcore.Host) hostSummary {
	addr := h.Addr()
	return hostSummary{
		Sysid:        uint32(h.Sysid()),
		CallerName:   h.CallerName(),
		Netid:        addr.Netid,
		Addr:         addr.Addr,
		MonitorState: h.MonitorState().String(),
		Refcount:     h.Refcount(),
		VholdCount:   h.VholdCount(),
	}
}

func (h *Handler) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts := h.registry.Hosts.All()
	out := make([]hostSummary, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, toHostSummary(host))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetHost(w http.ResponseWriter, r *http.Request) {
	sysid, ok := parseSysid(w, r)
	if !ok {
		return
	}
	host := h.registry.Hosts.FindBySysid(sysid)
	if host == nil {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}
	writeJSON(w, http.StatusOK, toHostSummary(host))
}

// UnmonitorHost forces notify_server+notify_client with state 0 against a
// host, for operator-driven recovery from a peer whose NSM notification
// never arrived (e.g. it crashed silently behind a firewall).
func (h *Handler) UnmonitorHost(w http.ResponseWriter, r *http.Request) {
	sysid, ok := parseSysid(w, r)
	if !ok {
		return
	}
	host := h.registry.Hosts.FindBySysid(sysid)
	if host == nil {
		writeError(w, http.StatusNotFound, "host not found")
		return
	}

	h.registry.NotifyServer(host, 0)
	h.registry.NotifyClient(context.Background(), host, 0)
	writeJSON(w, http.StatusOK, healthResponse{Status: "unmonitored"})
}

type lockSummary struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	Offset     uint64 `json:"offset"`
	Length     uint64 `json:"length"`
	Type       string `json:"type"`
	AcquiredAt string `json:"acquired_at"`
}

func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	fh := r.URL.Query().Get("fh")
	if fh == "" {
		writeError(w, http.StatusBadRequest, "fh query parameter is required")
		return
	}

	locks := h.registry.Local.ListUnifiedLocks(fh)
	out := make([]lockSummary, 0, len(locks))
	for _, ul := range locks {
		typ := "shared"
		if ul.Type == lock.LockTypeExclusive {
			typ = "exclusive"
		}
		out = append(out, lockSummary{
			ID:         ul.ID,
			Owner:      ul.Owner.OwnerID,
			Offset:     ul.Offset,
			Length:     ul.Length,
			Type:       typ,
			AcquiredAt: ul.AcquiredAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseSysid(w http.ResponseWriter, r *http.Request) (nlmcore.Sysid, bool) {
	raw := chi.URLParam(r, "sysid")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sysid")
		return 0, false
	}
	return nlmcore.Sysid(n), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
