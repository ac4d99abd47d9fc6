package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grccore_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	quotaChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_quota_checks_total",
		Help: "Quota checks by quota type and decision",
	}, []string{"quota_type", "decision"})

	quotaUsageChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_quota_usage_changes_total",
		Help: "Quota counter mutations by quota type and operation",
	}, []string{"quota_type", "operation"})

	quotaResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_quota_resets_total",
		Help: "Quota window resets by source and result",
	}, []string{"source", "result"})

	subscriptionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_subscription_transitions_total",
		Help: "Subscription lifecycle transitions by target status and result",
	}, []string{"status", "result"})

	riskAssessments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_risk_assessments_total",
		Help: "Risk assessments by kind (inherent, residual) and resulting level",
	}, []string{"kind", "level"})

	taskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_workflow_task_transitions_total",
		Help: "Workflow task transitions by target status and result",
	}, []string{"status", "result"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grccore_events_published_total",
		Help: "Domain events by name and delivery sink",
	}, []string{"event", "sink", "result"})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grccore_event_stream_clients",
		Help: "Connected WebSocket event stream clients",
	})

	serviceOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grccore_service_operation_duration_seconds",
		Help:    "Duration of service operations",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveQuotaCheck counts a CheckQuota decision.
func ObserveQuotaCheck(quotaType string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	quotaChecks.WithLabelValues(quotaType, decision).Inc()
}

// ObserveQuotaChange counts an increment, decrement or reset of a counter.
func ObserveQuotaChange(quotaType, operation string) {
	quotaUsageChanges.WithLabelValues(quotaType, operation).Inc()
}

// ObserveQuotaReset counts a window reset from the API or the worker.
func ObserveQuotaReset(source, result string) {
	quotaResets.WithLabelValues(source, result).Inc()
}

// ObserveSubscriptionTransition counts a lifecycle move.
func ObserveSubscriptionTransition(status, result string) {
	subscriptionTransitions.WithLabelValues(status, result).Inc()
}

// ObserveRiskAssessment counts a scoring by kind and level.
func ObserveRiskAssessment(kind, level string) {
	riskAssessments.WithLabelValues(kind, level).Inc()
}

// ObserveTaskTransition counts a workflow move.
func ObserveTaskTransition(status, result string) {
	taskTransitions.WithLabelValues(status, result).Inc()
}

// ObserveEvent counts a delivery attempt to a sink.
func ObserveEvent(event, sink, result string) {
	eventsPublished.WithLabelValues(event, sink, result).Inc()
}

// ObserveServiceOperation records the latency of a service call.
func ObserveServiceOperation(operation string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	serviceOpDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// StreamClientConnected increments the stream client gauge.
func StreamClientConnected() {
	streamClients.Inc()
}

// StreamClientDisconnected decrements the stream client gauge.
func StreamClientDisconnected() {
	streamClients.Dec()
}
