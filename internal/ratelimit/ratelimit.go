// Package ratelimit is the authoritative gate in front of abuse-prone write
// actions. Clients may mirror the countdown for display, but only this
// limiter decides; the check and the consume are one atomic operation so
// concurrent requests cannot slip past the window together.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/trust"
)

// Throttled actions.
const (
	ActionComment  = "comment"
	ActionCatch    = "catch"
	ActionRating   = "rating"
	ActionReaction = "reaction"
	ActionFollow   = "follow"
	ActionReport   = "report"
)

// Rule caps one action: MaxAttempts within Window, counted from the first
// attempt in the current window.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultRules returns the per-action limits.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ActionComment:  {MaxAttempts: 30, Window: time.Hour},
		ActionCatch:    {MaxAttempts: 10, Window: time.Hour},
		ActionRating:   {MaxAttempts: 60, Window: time.Hour},
		ActionReaction: {MaxAttempts: 120, Window: time.Hour},
		ActionFollow:   {MaxAttempts: 60, Window: time.Hour},
		ActionReport:   {MaxAttempts: 10, Window: time.Hour},
	}
}

// Result reports the gate decision. ResetAt is when the current window ends;
// the client renders its countdown from this, never from its own bookkeeping.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// WindowStore holds the per-(user, action) counters. Consume must be atomic:
// of two concurrent calls with one slot left, exactly one may succeed.
type WindowStore interface {
	Consume(key string, limit int, window time.Duration, now time.Time) (Result, error)
	// Sweep removes windows that ended before now and returns how many.
	Sweep(now time.Time) (int, error)
}

// Limiter evaluates rate-limit rules against a window store.
type Limiter struct {
	store WindowStore
	rules map[string]Rule
	now   func() time.Time
}

// NewLimiter creates a limiter. If rules is nil the defaults apply.
func NewLimiter(store WindowStore, rules map[string]Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{store: store, rules: rules, now: time.Now}
}

// CheckAndConsume consumes one attempt for (userID, action). On denial it
// returns the Result alongside a *trust.RateLimitError carrying the reset
// time. Actions without a configured rule pass unthrottled.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID, action string) (Result, error) {
	rule, ok := l.rules[action]
	if !ok {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	res, err := l.store.Consume(userID+"|"+action, rule.MaxAttempts, rule.Window, l.now())
	if err != nil {
		return Result{}, &trust.StorageError{Op: "rate limit consume", Err: err}
	}

	if !res.Allowed {
		metrics.RateLimitDeniedTotal.WithLabelValues(action).Inc()
		log.Debug().
			Str("user_id", userID).
			Str("action", action).
			Time("reset_at", res.ResetAt).
			Msg("ratelimit: denied")
		return res, &trust.RateLimitError{Action: action, ResetAt: res.ResetAt}
	}

	metrics.RateLimitAllowedTotal.WithLabelValues(action).Inc()
	return res, nil
}

// Rule returns the configured rule for an action, if any.
func (l *Limiter) Rule(action string) (Rule, bool) {
	rule, ok := l.rules[action]
	return rule, ok
}

// StartSweeper evicts expired windows every interval until ctx is cancelled.
// Eviction is an optimization only; Consume handles expired windows itself.
func StartSweeper(ctx context.Context, store WindowStore, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.Sweep(time.Now())
				if err != nil {
					log.Error().Err(err).Msg("ratelimit: sweep failed")
					continue
				}
				if n > 0 {
					metrics.RateLimitWindowsEvicted.Add(float64(n))
					log.Debug().Int("evicted", n).Msg("ratelimit: swept expired windows")
				}
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Rate limit sweeper started")
}
