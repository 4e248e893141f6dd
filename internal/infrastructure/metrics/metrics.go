package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the broadcast service
type Metrics struct {
	// Login metrics
	LoginAttempts  *prometheus.CounterVec
	LoginsExpired  prometheus.Counter
	AccountsLinked prometheus.Counter

	// Account metrics
	ConnectedAccounts  prometheus.Gauge
	TotalAccounts      prometheus.Gauge
	AccountConnections *prometheus.CounterVec
	SessionRevocations prometheus.Counter

	// Broadcast metrics
	ActiveJobs     prometheus.Gauge
	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	MessagesSent   prometheus.Counter
	SendFailures   *prometheus.CounterVec
	FloodWaits     prometheus.Counter
	FloodWaitSleep prometheus.Histogram

	// Notification metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	GetDefaultMetrics()
}

// NewMetrics creates a new Metrics instance registered in the default registry
func NewMetrics() *Metrics {
	return &Metrics{
		LoginAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_service_login_steps_total",
				Help: "Total number of login steps by step and result",
			},
			[]string{"step", "result"},
		),
		LoginsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_service_logins_expired_total",
			Help: "Total number of pending logins dropped by inactivity timeout",
		}),
		AccountsLinked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_service_accounts_linked_total",
			Help: "Total number of accounts linked or re-linked",
		}),

		ConnectedAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_service_connected_accounts",
			Help: "Current number of connected Telegram accounts",
		}),
		TotalAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_service_total_accounts",
			Help: "Total number of linked Telegram accounts",
		}),
		AccountConnections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_service_account_connections_total",
				Help: "Total number of Telegram connection attempts by result",
			},
			[]string{"result"},
		),
		SessionRevocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_service_session_revocations_total",
			Help: "Total number of detected session revocations",
		}),

		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_service_active_jobs",
			Help: "Current number of running broadcast jobs",
		}),
		CyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_service_cycles_total",
				Help: "Total number of broadcast cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_service_cycle_duration_seconds",
			Help:    "Duration of completed broadcast cycles in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_service_messages_sent_total",
			Help: "Total number of messages delivered to groups",
		}),
		SendFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_service_send_failures_total",
				Help: "Total number of failed sends by error kind",
			},
			[]string{"kind"},
		),
		FloodWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_service_flood_waits_total",
			Help: "Total number of flood-wait responses from Telegram API",
		}),
		FloodWaitSleep: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_service_flood_wait_seconds",
			Help:    "Requested flood-wait durations in seconds",
			Buckets: []float64{1, 3, 5, 10, 30, 60, 300, 900, 3600},
		}),

		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_service_events_published_total",
				Help: "Total number of notification events by sink and result",
			},
			[]string{"sink", "result"},
		),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_service_events_dropped_total",
			Help: "Total number of notification events dropped on a full queue",
		}),
	}
}

// RecordLoginStep records a login step outcome
func (m *Metrics) RecordLoginStep(step, result string) {
	if result == "" {
		result = "unknown"
	}
	m.LoginAttempts.WithLabelValues(step, result).Inc()
}

// RecordLoginExpired records a pending login dropped by timeout
func (m *Metrics) RecordLoginExpired() {
	m.LoginsExpired.Inc()
}

// RecordAccountLinked records a successfully finalized login
func (m *Metrics) RecordAccountLinked() {
	m.AccountsLinked.Inc()
}

// UpdateAccounts updates account gauges
func (m *Metrics) UpdateAccounts(connected, total int) {
	m.ConnectedAccounts.Set(float64(connected))
	m.TotalAccounts.Set(float64(total))
}

// RecordConnection records a connection attempt
func (m *Metrics) RecordConnection(result string) {
	m.AccountConnections.WithLabelValues(result).Inc()
}

// RecordSessionRevoked records a detected session revocation
func (m *Metrics) RecordSessionRevoked() {
	m.SessionRevocations.Inc()
}

// JobStarted increments the running jobs gauge
func (m *Metrics) JobStarted() {
	m.ActiveJobs.Inc()
}

// JobStopped decrements the running jobs gauge
func (m *Metrics) JobStopped() {
	m.ActiveJobs.Dec()
}

// RecordCycle records a finished cycle with its outcome
func (m *Metrics) RecordCycle(outcome string, sent int, duration float64) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	// Only add positive values to prevent counter from going backwards
	if sent > 0 {
		m.MessagesSent.Add(float64(sent))
	}
	if duration > 0 {
		m.CycleDuration.Observe(duration)
	}
}

// RecordSendFailure records a failed send by error kind
func (m *Metrics) RecordSendFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.SendFailures.WithLabelValues(kind).Inc()
}

// RecordFloodWait records a flood-wait response and its duration
func (m *Metrics) RecordFloodWait(seconds float64) {
	m.FloodWaits.Inc()
	m.FloodWaitSleep.Observe(seconds)
}

// RecordEvent records a notification delivery attempt
func (m *Metrics) RecordEvent(sink, result string) {
	m.EventsPublished.WithLabelValues(sink, result).Inc()
}

// RecordEventDropped records a notification dropped without delivery
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}
