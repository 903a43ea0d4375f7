// Package tracking records open and click events reported by recipients'
// mail clients hitting the tracking endpoints.
package tracking

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketOpens  = []byte("opens")
	bucketClicks = []byte("clicks")
)

// Store is the first-seen index backing event deduplication. Keys live in
// two buckets: opens keyed by send id, clicks keyed by send id plus the
// click target. Values are the first-seen timestamp.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the dedup index at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketOpens, bucketClicks} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tracking buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FirstOpen marks the send as opened and reports whether this was the
// first open for it.
func (s *Store) FirstOpen(sendID string) (bool, error) {
	return s.markFirst(bucketOpens, []byte(sendID))
}

// FirstClick marks the send+URL pair as clicked and reports whether this
// was the first click on that link for the send.
func (s *Store) FirstClick(sendID, url string) (bool, error) {
	key := append([]byte(sendID), 0)
	key = append(key, url...)
	return s.markFirst(bucketClicks, key)
}

func (s *Store) markFirst(bucket, key []byte) (bool, error) {
	first := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(key) != nil {
			return nil
		}
		first = true
		return b.Put(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return false, fmt.Errorf("failed to update tracking store: %w", err)
	}
	return first, nil
}
