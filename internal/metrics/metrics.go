package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creel_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "creel_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Moderation event counters (incremented on occurrence)
var (
	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creel_moderation_actions_total",
		Help: "Total number of applied moderation actions",
	}, []string{"severity"})

	ModerationLiftsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creel_moderation_lifts_total",
		Help: "Total number of lift-restrictions actions",
	})

	TakedownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creel_takedowns_total",
		Help: "Total number of content takedown operations",
	}, []string{"action"})

	ModerationDedupeHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creel_moderation_dedupe_hits_total",
		Help: "Moderation actions short-circuited as duplicates",
	})

	ReportsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creel_reports_submitted_total",
		Help: "Total number of user reports submitted",
	})
)

// Rate limiter metrics
var (
	RateLimitAllowedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creel_ratelimit_allowed_total",
		Help: "Rate-limited actions that passed the gate",
	}, []string{"action"})

	RateLimitDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creel_ratelimit_denied_total",
		Help: "Rate-limited actions rejected at the gate",
	}, []string{"action"})

	RateLimitWindowsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creel_ratelimit_windows_evicted_total",
		Help: "Expired rate-limit windows removed by the sweeper",
	})
)

// Queue and stream gauges (updated periodically by the collector)
var (
	ReportsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "creel_reports_open",
		Help: "Number of open reports in the triage queue",
	})

	UsersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "creel_users_by_moderation_status",
		Help: "Number of users per moderation status",
	}, []string{"status"})

	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "creel_realtime_subscribers",
		Help: "Number of connected realtime subscribers",
	})

	RealtimeEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "creel_realtime_events_dropped_total",
		Help: "Realtime events dropped because a subscriber was slow",
	})
)

// Notification metrics
var (
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "creel_notifications_sent_total",
		Help: "Total number of notifications written",
	}, []string{"type"})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 2 {
		return path
	}

	switch segments[0] {
	case "mod":
		switch segments[1] {
		case "reports":
			if len(segments) == 3 {
				return "/mod/reports/:id"
			}
			if len(segments) == 4 {
				return "/mod/reports/:id/" + segments[3]
			}
		case "users":
			if len(segments) >= 3 {
				if len(segments) == 4 {
					return "/mod/users/:id/" + segments[3]
				}
				return "/mod/users/:id"
			}
		}
	case "api":
		if segments[1] == "notifications" && len(segments) == 3 {
			return "/api/notifications/:id"
		}
	}

	return path
}

func splitPath(path string) []string {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}
