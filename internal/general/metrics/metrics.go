package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcomes.
const (
	PollFix          = "fix"
	PollNotAvailable = "not_available"
	PollFailed       = "failed"
	PollDiscarded    = "discarded"
)

var (
	pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pet_tracker",
		Subsystem: "tracking",
		Name:      "polls_total",
		Help:      "Location feed polls by outcome.",
	}, []string{"outcome"})
	pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pet_tracker",
		Subsystem: "tracking",
		Name:      "poll_duration_seconds",
		Help:      "Latency of a single location feed poll.",
		Buckets:   prometheus.DefBuckets,
	})
	historyAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pet_tracker",
		Subsystem: "history",
		Name:      "appends_total",
		Help:      "History entries written by tracking sessions, by result.",
	}, []string{"result"})
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pet_tracker",
		Subsystem: "tracking",
		Name:      "active_sessions",
		Help:      "Tracking sessions currently running.",
	})
	deviceFixes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pet_tracker",
		Subsystem: "devices",
		Name:      "fixes_total",
		Help:      "Device fixes handled, by stage and result.",
	}, []string{"stage", "result"})
	petEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pet_tracker",
		Subsystem: "pets",
		Name:      "events_consumed_total",
		Help:      "Pet events consumed from the pet_events queue, by type and result.",
	}, []string{"type", "result"})
	lastFixGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pet_tracker",
		Subsystem: "devices",
		Name:      "last_fix_stored_timestamp_seconds",
		Help:      "Unix timestamp of the most recent device fix stored as latest position.",
	})
)

func init() {
	prometheus.MustRegister(pollsTotal, pollDuration, historyAppends, activeSessions, deviceFixes, petEvents, lastFixGauge)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPoll counts a poll by outcome and observes its latency.
func RecordPoll(outcome string, took time.Duration) {
	pollsTotal.WithLabelValues(outcome).Inc()
	if outcome != PollDiscarded {
		pollDuration.Observe(took.Seconds())
	}
}

// RecordHistoryAppend counts a history write attempt.
func RecordHistoryAppend(err error) {
	if err != nil {
		historyAppends.WithLabelValues("error").Inc()
		return
	}
	historyAppends.WithLabelValues("ok").Inc()
}

// SessionStarted and SessionStopped move the active session gauge.
func SessionStarted() { activeSessions.Inc() }
func SessionStopped() { activeSessions.Dec() }

// RecordDeviceFix counts a fix at a pipeline stage ("ingest" or "store").
func RecordDeviceFix(stage string, err error) {
	if err != nil {
		deviceFixes.WithLabelValues(stage, "error").Inc()
		return
	}
	deviceFixes.WithLabelValues(stage, "ok").Inc()
}

// RecordFixStored updates the latest-position watermark gauge.
func RecordFixStored(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastFixGauge.Set(float64(ts.Unix()))
}

// RecordPetEvent counts a consumed pet event.
func RecordPetEvent(eventType string, err error) {
	if eventType == "" {
		eventType = "unknown"
	}
	if err != nil {
		petEvents.WithLabelValues(eventType, "error").Inc()
		return
	}
	petEvents.WithLabelValues(eventType, "ok").Inc()
}
