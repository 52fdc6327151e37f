package pacing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lucasrosati/mailramp/internal/config"
)

var bucketPacing = []byte("pacing")

var stateKey = []byte("state")

// State is the gate the policy is currently blocked on, if any
type State string

const (
	StateWithinWindow   State = "within_window"
	StateOutsideWindow  State = "outside_window"
	StateQuotaExhausted State = "quota_exhausted"
	StatePaused         State = "paused"
)

// Decision is the outcome of evaluating the policy for one candidate send
type Decision struct {
	State       State
	Wait        time.Duration // how long to block before re-evaluating
	DailyLimit  int
	CampaignDay int
	SentToday   int
}

// Allowed reports whether the send may go out now
func (d Decision) Allowed() bool {
	return d.State == StateWithinWindow
}

// persistedState is the pacing state carried across restarts
type persistedState struct {
	CampaignStart string `json:"campaign_start"` // YYYY-MM-DD of the first send day
	LastDate      string `json:"last_date"`      // YYYY-MM-DD sentToday refers to
	SentToday     int    `json:"sent_today"`
}

// Policy decides when the next send may occur: business-hours window, daily
// quota with warmup ramp, pause flag, and inter-send jitter. The campaign-day
// counter advances with the wall-clock date only, never with send outcomes.
type Policy struct {
	cfg    config.PacingConfig
	pause  PauseSource
	db     *bolt.DB
	logger *slog.Logger
	rand   *rand.Rand

	windowStart config.Clock
	windowEnd   config.Clock

	mu            sync.Mutex
	campaignStart time.Time // midnight of the first campaign day
	lastDate      string
	sentToday     int
}

// New creates a pacing policy, restoring persisted counters from the db
func New(cfg config.PacingConfig, pause PauseSource, db *bolt.DB, logger *slog.Logger) (*Policy, error) {
	start, err := config.ParseClock(cfg.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}
	end, err := config.ParseClock(cfg.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid window end: %w", err)
	}

	p := &Policy{
		cfg:         cfg,
		pause:       pause,
		db:          db,
		logger:      logger,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		windowStart: start,
		windowEnd:   end,
	}

	if db != nil {
		if err := p.load(); err != nil {
			return nil, fmt.Errorf("failed to load pacing state: %w", err)
		}
	}

	return p, nil
}

// Decide evaluates the policy gates in fixed precedence order for a candidate
// send at the given instant. It also performs the day rollover.
func (p *Policy) Decide(now time.Time) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 1. Operator pause blocks everything and advances no counters.
	if p.pause != nil && p.pause.IsPaused() {
		return Decision{State: StatePaused, Wait: p.cfg.PausePollInterval, CampaignDay: p.campaignDay(now)}
	}

	// 2. Outside the send window: wait until it next opens.
	if !p.inWindow(now) {
		return Decision{
			State:       StateOutsideWindow,
			Wait:        p.untilWindowOpens(now),
			CampaignDay: p.campaignDay(now),
		}
	}

	// 3. Day rollover by wall-clock date.
	p.rollover(now)

	day := p.campaignDay(now)
	limit := p.dailyLimit(day)

	// 4/5. Daily quota.
	if p.sentToday >= limit {
		return Decision{
			State:       StateQuotaExhausted,
			Wait:        p.untilNextDayWindow(now),
			DailyLimit:  limit,
			CampaignDay: day,
			SentToday:   p.sentToday,
		}
	}

	return Decision{
		State:       StateWithinWindow,
		DailyLimit:  limit,
		CampaignDay: day,
		SentToday:   p.sentToday,
	}
}

// RecordSend counts one successful send against today's quota
func (p *Policy) RecordSend(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rollover(now)
	p.sentToday++
	if err := p.persist(); err != nil && p.logger != nil {
		p.logger.Error("failed to persist pacing state", "error", err)
	}
}

// SendDelay returns the jittered inter-send delay, doubled during the first
// warmup days
func (p *Policy) SendDelay(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	min, max := p.cfg.DelayMin, p.cfg.DelayMax
	if len(p.cfg.WarmupRamp) > 0 && p.campaignDay(now) <= p.cfg.WarmupDelayDays {
		min, max = 2*min, 2*max
	}
	if max <= min {
		return min
	}
	return min + time.Duration(p.rand.Int63n(int64(max-min)))
}

// FailureBackoff returns the fixed delay applied after a transport failure
func (p *Policy) FailureBackoff() time.Duration {
	return p.cfg.FailureBackoff
}

// SentToday returns today's send count
func (p *Policy) SentToday(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollover(now)
	return p.sentToday
}

// CampaignDay returns the 1-based day index of the campaign
func (p *Policy) CampaignDay(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.campaignDay(now)
}

// DailyLimit returns the quota for the given instant
func (p *Policy) DailyLimit(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dailyLimit(p.campaignDay(now))
}

// campaignDay is 1 on the first campaign day. Callers hold p.mu.
func (p *Policy) campaignDay(now time.Time) int {
	if p.campaignStart.IsZero() {
		return 1
	}
	days := int(midnight(now).Sub(p.campaignStart).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days + 1
}

// dailyLimit is the ramp value while the campaign day is inside the warmup
// ramp, then the steady-state limit. Callers hold p.mu.
func (p *Policy) dailyLimit(day int) int {
	if day >= 1 && day <= len(p.cfg.WarmupRamp) {
		return p.cfg.WarmupRamp[day-1]
	}
	return p.cfg.EmailsPerDay
}

// rollover resets sentToday on a new calendar date and pins the campaign
// start on first use. Callers hold p.mu.
func (p *Policy) rollover(now time.Time) {
	today := now.Format("2006-01-02")

	if p.campaignStart.IsZero() {
		p.campaignStart = midnight(now)
	}

	if p.lastDate != today {
		if p.lastDate != "" && p.logger != nil {
			p.logger.Info("new campaign day",
				"date", today,
				"campaign_day", p.campaignDay(now),
				"daily_limit", p.dailyLimit(p.campaignDay(now)),
			)
		}
		p.lastDate = today
		p.sentToday = 0
		if err := p.persist(); err != nil && p.logger != nil {
			p.logger.Error("failed to persist pacing state", "error", err)
		}
	}
}

func (p *Policy) inWindow(now time.Time) bool {
	start := p.windowStart.On(now)
	end := p.windowEnd.On(now)
	return !now.Before(start) && !now.After(end)
}

// untilWindowOpens computes the wait until the window next opens
func (p *Policy) untilWindowOpens(now time.Time) time.Duration {
	start := p.windowStart.On(now)
	if now.Before(start) {
		return start.Sub(now)
	}
	return start.AddDate(0, 0, 1).Sub(now)
}

// untilNextDayWindow computes the wait until tomorrow's window start
func (p *Policy) untilNextDayWindow(now time.Time) time.Duration {
	return p.windowStart.On(now).AddDate(0, 0, 1).Sub(now)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (p *Policy) load() error {
	return p.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketPacing)
		if err != nil {
			return err
		}

		data := bucket.Get(stateKey)
		if data == nil {
			return nil
		}

		var st persistedState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil // start fresh on corrupt state
		}

		if st.CampaignStart != "" {
			if day, err := time.ParseInLocation("2006-01-02", st.CampaignStart, time.Local); err == nil {
				p.campaignStart = day
			}
		}
		p.lastDate = st.LastDate
		p.sentToday = st.SentToday
		return nil
	})
}

// persist writes the counters to the db. Callers hold p.mu.
func (p *Policy) persist() error {
	if p.db == nil {
		return nil
	}

	st := persistedState{
		LastDate:  p.lastDate,
		SentToday: p.sentToday,
	}
	if !p.campaignStart.IsZero() {
		st.CampaignStart = p.campaignStart.Format("2006-01-02")
	}

	data, err := json.Marshal(&st)
	if err != nil {
		return err
	}

	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPacing).Put(stateKey, data)
	})
}

// Sleep blocks for d or until the context is cancelled
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
