package boltstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tangled.org/creel.social/creel/internal/ratelimit"
)

// WindowStore implements ratelimit.WindowStore on bbolt. Every Consume runs
// inside a single Update transaction, so the read-increment-write of the
// counter is atomic across concurrent requests: with one slot left in the
// window, exactly one of two simultaneous calls passes.
type WindowStore struct {
	db *bolt.DB
}

// Ensure WindowStore implements the interface at compile time.
var _ ratelimit.WindowStore = (*WindowStore)(nil)

// storedWindow is the persisted form of one live window.
type storedWindow struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Consume counts one attempt against the key's window.
func (s *WindowStore) Consume(key string, limit int, window time.Duration, now time.Time) (ratelimit.Result, error) {
	var result ratelimit.Result

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketRateLimitWindows)

		var w storedWindow
		live := false
		if data := bucket.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &w); err == nil && now.Before(w.WindowEnd) {
				live = true
			}
		}

		if !live {
			// First attempt, or the previous window has fully elapsed.
			w = storedWindow{Count: 1, WindowStart: now, WindowEnd: now.Add(window)}
			result = ratelimit.Result{Allowed: true, Remaining: limit - 1, ResetAt: w.WindowEnd}
			return putWindow(bucket, key, w)
		}

		if w.Count >= limit {
			result = ratelimit.Result{Allowed: false, Remaining: 0, ResetAt: w.WindowEnd}
			return nil
		}

		w.Count++
		result = ratelimit.Result{Allowed: true, Remaining: limit - w.Count, ResetAt: w.WindowEnd}
		return putWindow(bucket, key, w)
	})
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("consume window: %w", err)
	}
	return result, nil
}

// Sweep removes windows that ended before now.
func (s *WindowStore) Sweep(now time.Time) (int, error) {
	evicted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketRateLimitWindows)
		c := bucket.Cursor()

		var expired [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var w storedWindow
			if err := json.Unmarshal(v, &w); err != nil || !now.Before(w.WindowEnd) {
				key := make([]byte, len(k))
				copy(key, k)
				expired = append(expired, key)
			}
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			evicted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep windows: %w", err)
	}
	return evicted, nil
}

func putWindow(bucket *bolt.Bucket, key string, w storedWindow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), data)
}
