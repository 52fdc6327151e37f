package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRecords = []byte("tracking_records")
	bucketEvents  = []byte("tracking_events")
)

// ErrUnknownToken is returned when an event references a token with no
// matching record (stale or forged callback)
var ErrUnknownToken = errors.New("unknown tracking token")

// Store persists tracking records and their event log
type Store interface {
	// Create stores a new record at send time
	Create(rec *Record) error

	// Get retrieves a record by token, ErrUnknownToken if absent
	Get(token string) (*Record, error)

	// All returns every record
	All() ([]*Record, error)

	// RecordEvent appends the event and folds it into the record under the
	// monotone-update rules, atomically. Returns the updated record.
	RecordEvent(token string, typ EventType, meta Meta) (*Record, error)

	// Events returns the raw event log for a token, oldest first
	Events(token string) ([]*Event, error)
}

// BoltStore implements Store on top of bbolt. Event folding runs inside a
// single Update transaction, which serializes concurrent callbacks.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates the tracking buckets and returns a store
func NewBoltStore(db *bolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRecords, bucketEvents} {
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

// Create stores a new record at send time
func (s *BoltStore) Create(rec *Record) error {
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return tx.Bucket(bucketRecords).Put([]byte(rec.Token), data)
	})
}

// Get retrieves a record by token
func (s *BoltStore) Get(token string) (*Record, error) {
	var rec *Record

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(token))
		if data == nil {
			return ErrUnknownToken
		}
		rec = &Record{}
		return json.Unmarshal(data, rec)
	})

	return rec, err
}

// All returns every record
func (s *BoltStore) All() ([]*Record, error) {
	var records []*Record

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip invalid entries
			}
			records = append(records, &rec)
			return nil
		})
	})

	return records, err
}

// RecordEvent appends the event and folds it into the record atomically
func (s *BoltStore) RecordEvent(token string, typ EventType, meta Meta) (*Record, error) {
	var updated *Record

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		data := records.Get([]byte(token))
		if data == nil {
			return ErrUnknownToken
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		evt := &Event{
			Token:      token,
			Type:       typ,
			Timestamp:  time.Now(),
			RemoteAddr: meta.RemoteAddr,
			UserAgent:  meta.UserAgent,
			Extra:      meta.Extra,
		}

		evtData, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		key := eventKey(evt.Timestamp, token)
		if err := tx.Bucket(bucketEvents).Put(key, evtData); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		rec.apply(evt)

		recData, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := records.Put([]byte(token), recData); err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}

		updated = &rec
		return nil
	})

	return updated, err
}

// Events returns the raw event log for a token, oldest first
func (s *BoltStore) Events(token string) ([]*Event, error) {
	var events []*Event

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(k, v []byte) error {
			var evt Event
			if err := json.Unmarshal(v, &evt); err != nil {
				return nil
			}
			if evt.Token == token {
				events = append(events, &evt)
			}
			return nil
		})
	})

	return events, err
}

// eventKey creates a sortable key from timestamp and token
func eventKey(t time.Time, token string) []byte {
	return []byte(t.Format(time.RFC3339Nano) + ":" + token)
}
