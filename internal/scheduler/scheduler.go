package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucasrosati/mailramp/internal/config"
	"github.com/lucasrosati/mailramp/internal/contacts"
	"github.com/lucasrosati/mailramp/internal/ledger"
	"github.com/lucasrosati/mailramp/internal/metrics"
	"github.com/lucasrosati/mailramp/internal/pacing"
	"github.com/lucasrosati/mailramp/internal/personalize"
	"github.com/lucasrosati/mailramp/internal/smtpout"
	"github.com/lucasrosati/mailramp/internal/tracking"
)

// Transport submits one assembled message for delivery
type Transport interface {
	Send(ctx context.Context, msg *smtpout.Message) error
}

// Scheduler walks the contact batch in order and sends to every identity
// that has not yet succeeded, honoring the pacing policy between sends.
// All progress goes through the ledger, so an interrupted run resumes
// where it left off.
type Scheduler struct {
	cfg       *config.Config
	template  *personalize.Template
	ledger    ledger.Store
	tracking  tracking.Store
	policy    *pacing.Policy
	transport Transport
	metrics   *metrics.Metrics
	logger    *slog.Logger
	links     tracking.Links

	// now is the clock, replaceable in tests
	now func() time.Time
}

// Summary is what one run accomplished
type Summary struct {
	Attempted int
	Sent      int
	Failed    int
	NoAddress int
}

// New creates a scheduler
func New(cfg *config.Config, tmpl *personalize.Template, led ledger.Store, trk tracking.Store, policy *pacing.Policy, transport Transport, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		template:  tmpl,
		ledger:    led,
		tracking:  trk,
		policy:    policy,
		transport: transport,
		metrics:   m,
		logger:    logger,
		links:     tracking.Links{BaseURL: cfg.Tracking.BaseURL},
		now:       time.Now,
	}
}

// Run processes the batch until it is exhausted, the context is canceled,
// or the ledger fails. A ledger write failure aborts the run: the covered
// send is in an ambiguous state and resuming blind could double-send.
func (s *Scheduler) Run(ctx context.Context, batch []*contacts.Record) (*Summary, error) {
	// The ledger is keyed by identity, so a duplicate in the batch keeps
	// its first position and the latest record, same as the CSV reader.
	byIdentity := make(map[string]*contacts.Record, len(batch))
	order := make([]string, 0, len(batch))
	for _, rec := range batch {
		if _, seen := byIdentity[rec.Identity]; !seen {
			order = append(order, rec.Identity)
		}
		byIdentity[rec.Identity] = rec
	}

	pending, err := s.ledger.Pending(order)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pending set: %w", err)
	}

	s.logger.Info("starting campaign run",
		"batch", len(batch),
		"pending", len(pending),
		"campaign_day", s.policy.CampaignDay(s.now()),
		"daily_limit", s.policy.DailyLimit(s.now()),
	)

	summary := &Summary{}
	for _, identity := range pending {
		rec := byIdentity[identity]

		addr, rank := contacts.SelectAddress(rec)
		if addr == "" {
			if err := s.recordNoAddress(identity); err != nil {
				return summary, err
			}
			summary.NoAddress++
			continue
		}

		if err := s.waitUntilAllowed(ctx); err != nil {
			return summary, err
		}

		summary.Attempted++
		sent, err := s.sendOne(ctx, rec, addr, rank)
		if err != nil {
			return summary, err
		}
		if sent {
			summary.Sent++
			if err := pacing.Sleep(ctx, s.policy.SendDelay(s.now())); err != nil {
				return summary, err
			}
		} else {
			summary.Failed++
			if err := pacing.Sleep(ctx, s.policy.FailureBackoff()); err != nil {
				return summary, err
			}
		}
	}

	s.logger.Info("campaign run finished",
		"attempted", summary.Attempted,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"no_address", summary.NoAddress,
	)

	return summary, nil
}

// waitUntilAllowed blocks until the pacing policy admits a send. Long waits
// are chopped into poll intervals so a pause flag or date rollover is
// noticed promptly.
func (s *Scheduler) waitUntilAllowed(ctx context.Context) error {
	for {
		d := s.policy.Decide(s.now())
		s.updateGauges()
		if d.Allowed() {
			return nil
		}

		wait := d.Wait
		if max := s.cfg.Pacing.PausePollInterval; max > 0 && wait > max {
			wait = max
		}

		s.logger.Info("send blocked",
			"state", string(d.State),
			"wait", wait,
			"sent_today", d.SentToday,
			"daily_limit", d.DailyLimit,
		)

		if err := pacing.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// sendOne personalizes, delivers and records a single message. The returned
// bool tells success from transport failure; the error return is reserved
// for conditions that must abort the run.
func (s *Scheduler) sendOne(ctx context.Context, rec *contacts.Record, addr string, rank int) (bool, error) {
	// A tracking-off campaign leaves no tracking state at all: no token,
	// no record, no callback URLs.
	var token string
	links := personalize.TrackingLinks{}
	if s.cfg.Tracking.Enabled {
		token = tracking.NewToken(rec.Identity, addr)
		if s.cfg.Tracking.BaseURL != "" {
			links.Pixel = s.links.Pixel(token)
			links.Unsubscribe = s.links.Unsubscribe(token)
		}
	}

	content, err := personalize.Render(s.template, rec)
	if err != nil {
		// A broken template poisons every remaining send, stop here
		return false, fmt.Errorf("failed to personalize for %q: %w", rec.Identity, err)
	}
	content.Decorate(links)

	msg := &smtpout.Message{
		From:           s.cfg.SMTP.From,
		FromName:       s.cfg.SMTP.FromName,
		ReplyTo:        s.cfg.SMTP.ReplyTo,
		To:             addr,
		ToName:         contacts.DisplayName(rec),
		Subject:        content.Subject,
		Text:           content.Text,
		UnsubscribeURL: links.Unsubscribe,
		AttachmentPath: s.cfg.Campaign.AttachmentPath,
	}
	if s.cfg.Campaign.HTML {
		msg.HTML = content.HTML(links)
	}

	provider := contacts.Provider(addr)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SMTP.SendTimeout)
	err = s.transport.Send(sendCtx, msg)
	cancel()

	if err != nil {
		s.logger.Warn("delivery failed",
			"identity", rec.Identity,
			"address", addr,
			"temporary", smtpout.IsTemporaryError(err),
			"error", err,
		)
		entry := &ledger.Entry{
			Identity:  rec.Identity,
			Address:   addr,
			Rank:      rank,
			Outcome:   ledger.OutcomeFailed,
			Timestamp: s.now(),
			LastError: err.Error(),
		}
		if err := s.ledger.Record(entry); err != nil {
			return false, err
		}
		if s.metrics != nil {
			s.metrics.EmailsFailedTotal.WithLabelValues(provider).Inc()
		}
		return false, ctx.Err()
	}

	entry := &ledger.Entry{
		Identity:  rec.Identity,
		Address:   addr,
		Rank:      rank,
		Outcome:   ledger.OutcomeSent,
		Timestamp: s.now(),
		Token:     token,
	}
	if err := s.ledger.Record(entry); err != nil {
		return false, err
	}

	if s.cfg.Tracking.Enabled && s.tracking != nil {
		trkRec := &tracking.Record{
			Token:     token,
			Identity:  rec.Identity,
			Recipient: addr,
			Subject:   content.Subject,
			Provider:  provider,
			SentAt:    s.now(),
		}
		if err := s.tracking.Create(trkRec); err != nil {
			s.logger.Error("failed to create tracking record", "token", token, "error", err)
		}
	}

	s.policy.RecordSend(s.now())
	s.updateGauges()

	if s.metrics != nil {
		s.metrics.EmailsSentTotal.WithLabelValues(provider).Inc()
	}

	s.logger.Info("email sent",
		"identity", rec.Identity,
		"address", addr,
		"rank", rank,
		"provider", provider,
		"sent_today", s.policy.SentToday(s.now()),
	)

	return true, nil
}

// recordNoAddress ledgers an identity with no plausible address
func (s *Scheduler) recordNoAddress(identity string) error {
	s.logger.Warn("no plausible address", "identity", identity)

	entry := &ledger.Entry{
		Identity:  identity,
		Outcome:   ledger.OutcomeNoAddress,
		Timestamp: s.now(),
	}
	if err := s.ledger.Record(entry); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.EmailsNoAddressTotal.Inc()
	}
	return nil
}

func (s *Scheduler) updateGauges() {
	if s.metrics == nil {
		return
	}
	now := s.now()
	s.metrics.SentToday.Set(float64(s.policy.SentToday(now)))
	s.metrics.DailyLimit.Set(float64(s.policy.DailyLimit(now)))
	s.metrics.CampaignDay.Set(float64(s.policy.CampaignDay(now)))
}

// IsLedgerError reports whether the run aborted on a ledger write
func IsLedgerError(err error) bool {
	var we *ledger.WriteError
	return errors.As(err, &we)
}
