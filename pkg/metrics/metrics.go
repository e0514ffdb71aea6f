// Package metrics provides Prometheus instrumentation for the NLM/NSM
// lock-management service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// NLM tracks NLM-specific Prometheus metrics.
//
// All metrics use the nlm_ prefix. Every method handles a nil receiver
// gracefully so callers can pass NullNLM() when metrics are disabled
// without branching at every call site.
type NLM struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	BlockingQueueSize prometheus.Gauge
	CallbacksTotal    *prometheus.CounterVec
	CallbackDuration  prometheus.Histogram
	LocksHeld         prometheus.Gauge
	HostsLive         prometheus.Gauge
	SysidsInUse       prometheus.Gauge
}

// NewNLM creates NLM metrics registered against reg.
func NewNLM(reg prometheus.Registerer) *NLM {
	m := &NLM{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlm_requests_total",
				Help: "Total NLM requests by procedure and status",
			},
			[]string{"procedure", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nlm_request_duration_seconds",
				Help:    "NLM request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure"},
		),
		BlockingQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nlm_blocking_queue_size",
				Help: "Current number of waiting lock requests across all files",
			},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nlm_callbacks_total",
				Help: "Total NLM_GRANTED callbacks by result",
			},
			[]string{"result"},
		),
		CallbackDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nlm_callback_duration_seconds",
				Help:    "NLM_GRANTED callback duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LocksHeld: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nlm_locks_held",
				Help: "Current number of NLM locks held across all files",
			},
		),
		HostsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nlm_hosts_live",
				Help: "Current number of live host records in the registry",
			},
		),
		SysidsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nlm_sysids_in_use",
				Help: "Current number of allocated sysids",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.BlockingQueueSize,
		m.CallbacksTotal,
		m.CallbackDuration,
		m.LocksHeld,
		m.HostsLive,
		m.SysidsInUse,
	)

	return m
}

// RecordRequest records an NLM request completion.
func (m *NLM) RecordRequest(procedure, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(procedure, status).Inc()
	m.RequestDuration.WithLabelValues(procedure).Observe(durationSeconds)
}

// RecordCallback records an NLM_GRANTED callback completion.
func (m *NLM) RecordCallback(result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(result).Inc()
	m.CallbackDuration.Observe(durationSeconds)
}

// SetBlockingQueueSize updates the blocking queue size gauge.
func (m *NLM) SetBlockingQueueSize(size int) {
	if m == nil {
		return
	}
	m.BlockingQueueSize.Set(float64(size))
}

// SetLocksHeld updates the locks held gauge.
func (m *NLM) SetLocksHeld(count int) {
	if m == nil {
		return
	}
	m.LocksHeld.Set(float64(count))
}

// SetHostsLive updates the live-host gauge, sampled from the registry's
// host count on a timer by the caller.
func (m *NLM) SetHostsLive(count int) {
	if m == nil {
		return
	}
	m.HostsLive.Set(float64(count))
}

// SetSysidsInUse updates the allocated-sysid gauge.
func (m *NLM) SetSysidsInUse(count int) {
	if m == nil {
		return
	}
	m.SysidsInUse.Set(float64(count))
}

// NullNLM returns nil, which acts as a no-op metrics collector.
func NullNLM() *NLM {
	return nil
}

// NSM tracks NSM-specific Prometheus metrics.
type NSM struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ClientsRegistered prometheus.Gauge
	NotifyTotal       *prometheus.CounterVec
}

// NewNSM creates NSM metrics registered against reg.
func NewNSM(reg prometheus.Registerer) *NSM {
	m := &NSM{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nsm_requests_total",
				Help: "Total NSM requests by procedure and status",
			},
			[]string{"procedure", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nsm_request_duration_seconds",
				Help:    "NSM request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure"},
		),
		ClientsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nsm_clients_registered",
				Help: "Current number of monitored clients",
			},
		),
		NotifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nsm_notify_total",
				Help: "Total inbound NOTIFY callbacks by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ClientsRegistered,
		m.NotifyTotal,
	)

	return m
}

// RecordRequest records an NSM request completion.
func (m *NSM) RecordRequest(procedure, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(procedure, status).Inc()
	m.RequestDuration.WithLabelValues(procedure).Observe(durationSeconds)
}

// SetClientsRegistered updates the monitored-clients gauge.
func (m *NSM) SetClientsRegistered(count int) {
	if m == nil {
		return
	}
	m.ClientsRegistered.Set(float64(count))
}

// RecordNotify records an inbound NOTIFY callback outcome ("found", "unknown_sysid").
func (m *NSM) RecordNotify(outcome string) {
	if m == nil {
		return
	}
	m.NotifyTotal.WithLabelValues(outcome).Inc()
}

// NullNSM returns nil, which acts as a no-op metrics collector.
func NullNSM() *NSM {
	return nil
}
