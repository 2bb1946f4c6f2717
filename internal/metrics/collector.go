package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// A nil function means the source is unavailable and its gauge is skipped.
type StatsSource struct {
	OpenReportCount func() int
	UsersByStatus   func() map[string]int
	SubscriberCount func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.OpenReportCount != nil {
		ReportsOpen.Set(float64(src.OpenReportCount()))
	}
	if src.UsersByStatus != nil {
		for status, count := range src.UsersByStatus() {
			UsersByStatus.WithLabelValues(status).Set(float64(count))
		}
	}
	if src.SubscriberCount != nil {
		RealtimeSubscribers.Set(float64(src.SubscriberCount()))
	}
}
