package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("ledger")
	bucketOptOuts = []byte("opt_outs")
)

// BoltStore implements Store on top of bbolt
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the ledger buckets and returns a store
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketOptOuts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// HasSucceeded reports whether the identity already has a sent entry
func (s *BoltStore) HasSucceeded(identity string) (bool, error) {
	entry, err := s.Get(identity)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Outcome == OutcomeSent, nil
}

// Record upserts the entry for its identity. Sent entries are immutable:
// a later write for an identity that already succeeded is dropped.
func (s *BoltStore) Record(entry *Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)

		if existing := bucket.Get([]byte(entry.Identity)); existing != nil {
			var prev Entry
			if err := json.Unmarshal(existing, &prev); err == nil && prev.Outcome == OutcomeSent {
				return nil
			}
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		return bucket.Put([]byte(entry.Identity), data)
	})
	if err != nil {
		return &WriteError{Identity: entry.Identity, Err: err}
	}
	return nil
}

// Get retrieves the entry for an identity, nil if absent
func (s *BoltStore) Get(identity string) (*Entry, error) {
	var entry *Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(identity))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})

	return entry, err
}

// All returns every entry in key order
func (s *BoltStore) All() ([]*Entry, error) {
	var entries []*Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil // skip invalid entries
			}
			entries = append(entries, &entry)
			return nil
		})
	})

	return entries, err
}

// Pending returns the identities from batch still eligible for a send,
// preserving batch order. Sent and no_address outcomes are terminal, as are
// opt-outs; only failed identities come back for another attempt.
func (s *BoltStore) Pending(batch []string) ([]string, error) {
	var pending []string

	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		optOuts := tx.Bucket(bucketOptOuts)

		for _, identity := range batch {
			if optOuts.Get([]byte(identity)) != nil {
				continue
			}
			if data := entries.Get([]byte(identity)); data != nil {
				var entry Entry
				if err := json.Unmarshal(data, &entry); err == nil &&
					(entry.Outcome == OutcomeSent || entry.Outcome == OutcomeNoAddress) {
					continue
				}
			}
			pending = append(pending, identity)
		}
		return nil
	})

	return pending, err
}

// OptOut terminally excludes an identity from future sends
func (s *BoltStore) OptOut(identity string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOptOuts).Put([]byte(identity), []byte(time.Now().Format(time.RFC3339)))
	})
}

// IsOptedOut reports whether the identity has unsubscribed
func (s *BoltStore) IsOptedOut(identity string) (bool, error) {
	var out bool
	err := s.db.View(func(tx *bolt.Tx) error {
		out = tx.Bucket(bucketOptOuts).Get([]byte(identity)) != nil
		return nil
	})
	return out, err
}

// Stats returns aggregate counts
func (s *BoltStore) Stats() (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			stats.Total++
			switch entry.Outcome {
			case OutcomeSent:
				stats.Sent++
			case OutcomeFailed:
				stats.Failed++
			case OutcomeNoAddress:
				stats.NoAddress++
			}
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketOptOuts).ForEach(func(k, v []byte) error {
			stats.OptedOut++
			return nil
		})
	})

	return stats, err
}
