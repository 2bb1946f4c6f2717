package boltstore

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tangled.org/creel.social/creel/internal/trust"
)

// DedupeStore implements trust.DedupeStore on bbolt. A key maps to the
// expiry of its dedupe window; expired keys are reclaimed lazily on the next
// sighting.
type DedupeStore struct {
	db *bolt.DB
}

// Ensure DedupeStore implements the interface at compile time.
var _ trust.DedupeStore = (*DedupeStore)(nil)

// FirstSeen records key with the given TTL and reports whether this call was
// the first sighting inside the TTL. The check and the write share one Update
// transaction, so two concurrent submits of the same action cannot both be
// "first".
func (s *DedupeStore) FirstSeen(key string, ttl time.Duration, now time.Time) (bool, error) {
	first := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketActionDedupe)

		if data := bucket.Get([]byte(key)); data != nil {
			var expiry time.Time
			if err := expiry.UnmarshalBinary(data); err == nil && now.Before(expiry) {
				return nil // still inside the window: a duplicate
			}
		}

		expiry, err := now.Add(ttl).MarshalBinary()
		if err != nil {
			return err
		}
		first = true
		return bucket.Put([]byte(key), expiry)
	})
	if err != nil {
		return false, fmt.Errorf("dedupe first-seen: %w", err)
	}
	return first, nil
}
