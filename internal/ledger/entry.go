package ledger

import "time"

// Outcome is the final state of one send attempt for an identity
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoAddress Outcome = "no_address"
)

// Entry records what happened to one recipient identity.
// Once an entry is sent it is immutable: later writes for the same identity
// are ignored so a resumed run never re-sends.
type Entry struct {
	Identity  string    `json:"identity"`
	Address   string    `json:"address,omitempty"`
	Rank      int       `json:"rank,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
	Token     string    `json:"token,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Stats summarizes ledger contents
type Stats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	NoAddress int `json:"no_address"`
	OptedOut  int `json:"opted_out"`
}
