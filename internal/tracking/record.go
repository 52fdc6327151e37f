package tracking

import "time"

// EventType classifies a tracking callback
type EventType string

const (
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventReply       EventType = "reply"
	EventBounce      EventType = "bounce"
	EventUnsubscribe EventType = "unsubscribe"
)

// Event is one raw tracking callback, kept in an append-only log
type Event struct {
	Token      string    `json:"token"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Extra      string    `json:"extra,omitempty"` // click destination URL, bounce reason
}

// Meta is source metadata attached to an event
type Meta struct {
	RemoteAddr string
	UserAgent  string
	Extra      string
}

// Record tracks the fate of one sent message, keyed by its token.
// Flags are monotone: once set they never revert. First-occurrence
// timestamps are first-write-wins and counters never decrease.
type Record struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Provider  string    `json:"provider,omitempty"`
	SentAt    time.Time `json:"sent_at"`

	Opened     bool       `json:"opened"`
	FirstOpen  *time.Time `json:"first_open,omitempty"`
	OpenCount  int        `json:"open_count"`
	Clicked    bool       `json:"clicked"`
	FirstClick *time.Time `json:"first_click,omitempty"`
	ClickCount int        `json:"click_count"`
	Replied    bool       `json:"replied"`
	FirstReply *time.Time `json:"first_reply,omitempty"`
	ReplyCount int        `json:"reply_count"`
	Bounced    bool       `json:"bounced"`
	FirstBounce *time.Time `json:"first_bounce,omitempty"`
	BounceCount int        `json:"bounce_count"`

	Unsubscribed   bool       `json:"unsubscribed"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}

// apply folds one event into the record under the monotone-update rules
func (r *Record) apply(evt *Event) {
	ts := evt.Timestamp

	switch evt.Type {
	case EventOpen:
		r.Opened = true
		if r.FirstOpen == nil {
			r.FirstOpen = &ts
		}
		r.OpenCount++
	case EventClick:
		r.Clicked = true
		if r.FirstClick == nil {
			r.FirstClick = &ts
		}
		r.ClickCount++
	case EventReply:
		r.Replied = true
		if r.FirstReply == nil {
			r.FirstReply = &ts
		}
		r.ReplyCount++
	case EventBounce:
		r.Bounced = true
		if r.FirstBounce == nil {
			r.FirstBounce = &ts
		}
		r.BounceCount++
	case EventUnsubscribe:
		r.Unsubscribed = true
		if r.UnsubscribedAt == nil {
			r.UnsubscribedAt = &ts
		}
	}
}
