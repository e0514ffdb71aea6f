package nsm

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks Prometheus counters for the notifier's crash-recovery
// fan-out, distinct from pkg/metrics.NSM's per-procedure RPC counters.
type Metrics struct {
	// NotificationsTotal counts SM_NOTIFY callback attempts by outcome
	// ("started", "success", "failed").
	NotificationsTotal *prometheus.CounterVec

	// CrashesDetected counts clients treated as crashed, via a failed
	// SM_NOTIFY callback in NotifyAllClients or a DetectCrash call. The
	// inbound SM_NOTIFY handler does not update it.
	CrashesDetected prometheus.Counter

	// CrashCleanups counts completed lock-cleanup passes for crashed hosts.
	CrashCleanups prometheus.Counter

	// ClientsRegistered gauges the current size of the monitored-client set.
	ClientsRegistered prometheus.Gauge
}

// NewMetrics creates notifier metrics registered against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nsm_notify_callbacks_total",
				Help: "SM_NOTIFY callback attempts by outcome",
			},
			[]string{"outcome"},
		),
		CrashesDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nsm_crashes_detected_total",
				Help: "Monitored hosts detected as crashed/restarted",
			},
		),
		CrashCleanups: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nsm_crash_cleanups_total",
				Help: "Completed lock-cleanup passes for crashed hosts",
			},
		),
		ClientsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nsm_notifier_clients_registered",
				Help: "Current number of monitored clients tracked by the notifier",
			},
		),
	}
	reg.MustRegister(m.NotificationsTotal, m.CrashesDetected, m.CrashCleanups, m.ClientsRegistered)
	return m
}

// NullMetrics returns notifier metrics that are never registered or
// observed, for callers that want to disable metrics entirely.
func NullMetrics() *Metrics {
	return &Metrics{
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "nsm_notify_callbacks_total_unused"}, []string{"outcome"}),
		CrashesDetected:    prometheus.NewCounter(prometheus.CounterOpts{Name: "nsm_crashes_detected_total_unused"}),
		CrashCleanups:      prometheus.NewCounter(prometheus.CounterOpts{Name: "nsm_crash_cleanups_total_unused"}),
		ClientsRegistered:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "nsm_notifier_clients_registered_unused"}),
	}
}
