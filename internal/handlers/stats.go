package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"tangled.org/creel.social/creel/internal/identity"
	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/trust"
)

// modStats is the moderation dashboard summary.
type modStats struct {
	OpenReports   int            `json:"open_reports"`
	UsersByStatus map[string]int `json:"users_by_status"`
	Subscribers   int            `json:"stream_subscribers"`
}

// HandleModStats handles GET /mod/stats.
// Values come from the Prometheus gauges the stats collector keeps current,
// so this endpoint never queries storage.
func (h *Handler) HandleModStats(w http.ResponseWriter, r *http.Request) {
	adminID := identity.Actor(r.Context())
	if err := h.access.Require(adminID, trust.PermissionViewReports); err != nil {
		writeError(w, err)
		return
	}

	stats := modStats{
		OpenReports:   int(getGaugeValue(metrics.ReportsOpen)),
		UsersByStatus: make(map[string]int),
	}
	for _, status := range []trust.Status{trust.StatusActive, trust.StatusWarned, trust.StatusSuspended, trust.StatusBanned} {
		stats.UsersByStatus[string(status)] = int(getGaugeValue(metrics.UsersByStatus.WithLabelValues(string(status))))
	}
	if h.hub != nil {
		stats.Subscribers = h.hub.SubscriberCount()
	}

	writeJSON(w, http.StatusOK, stats)
}

// getGaugeValue reads the current value of a prometheus.Gauge.
func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}
