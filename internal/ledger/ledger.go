package ledger

import "fmt"

// Store is the durable record of per-recipient outcomes. The campaign
// scheduler is the only writer of entries; opt-outs may be written
// concurrently by the tracking callback path.
type Store interface {
	// HasSucceeded reports whether the identity already has a sent entry
	HasSucceeded(identity string) (bool, error)

	// Record upserts the entry for its identity. A write over an existing
	// sent entry is a no-op.
	Record(entry *Entry) error

	// Get retrieves the entry for an identity, nil if absent
	Get(identity string) (*Entry, error)

	// All returns every entry
	All() ([]*Entry, error)

	// Pending returns the identities from batch still eligible for a send,
	// preserving batch order. Sent, no_address and opted-out identities are
	// excluded; failed ones come back for another attempt.
	Pending(batch []string) ([]string, error)

	// OptOut terminally excludes an identity from future sends
	OptOut(identity string) error

	// IsOptedOut reports whether the identity has unsubscribed
	IsOptedOut(identity string) (bool, error)

	// Stats returns aggregate counts
	Stats() (*Stats, error)
}

// WriteError indicates the ledger could not be persisted. The send it covers
// is in an ambiguous state, so the run must stop rather than risk a
// duplicate send on resume.
type WriteError struct {
	Identity string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write failed for %q: %v", e.Identity, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
