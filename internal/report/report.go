package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lucasrosati/mailramp/internal/ledger"
	"github.com/lucasrosati/mailramp/internal/tracking"
)

// CampaignStats is the full aggregate view of one campaign
type CampaignStats struct {
	GeneratedAt time.Time `json:"generated_at"`

	Totals    Totals          `json:"totals"`
	Providers []ProviderStats `json:"providers"`
	Top       []Engagement    `json:"top_engagement"`
}

// Totals are the campaign-wide counters and rates
type Totals struct {
	Recipients   int `json:"recipients"`
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	NoAddress    int `json:"no_address"`
	OptedOut     int `json:"opted_out"`
	Opened       int `json:"opened"`
	Clicked      int `json:"clicked"`
	Replied      int `json:"replied"`
	Bounced      int `json:"bounced"`
	Unsubscribed int `json:"unsubscribed"`

	OpenRate  float64 `json:"open_rate"`  // percent of sent
	ClickRate float64 `json:"click_rate"` // percent of sent
	ReplyRate float64 `json:"reply_rate"` // percent of sent
}

// ProviderStats groups tracking outcomes by recipient provider class
type ProviderStats struct {
	Provider  string  `json:"provider"`
	Sent      int     `json:"sent"`
	Opened    int     `json:"opened"`
	Clicked   int     `json:"clicked"`
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

// Engagement is one recipient's engagement summary, used for the top-N list
type Engagement struct {
	Identity   string     `json:"identity"`
	Recipient  string     `json:"recipient"`
	Opens      int        `json:"opens"`
	Clicks     int        `json:"clicks"`
	Replied    bool       `json:"replied"`
	FirstOpen  *time.Time `json:"first_open,omitempty"`
}

// Builder aggregates the ledger and tracking stores into campaign stats
type Builder struct {
	ledger   ledger.Store
	tracking tracking.Store

	// TopN caps the engagement list, 10 when zero
	TopN int
}

// NewBuilder creates a report builder over the campaign stores
func NewBuilder(led ledger.Store, trk tracking.Store) *Builder {
	return &Builder{ledger: led, tracking: trk}
}

// Aggregate computes the full campaign stats
func (b *Builder) Aggregate() (*CampaignStats, error) {
	ledgerStats, err := b.ledger.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger stats: %w", err)
	}

	records, err := b.tracking.All()
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking records: %w", err)
	}

	stats := &CampaignStats{
		GeneratedAt: time.Now(),
		Totals: Totals{
			Recipients: ledgerStats.Total,
			Sent:       ledgerStats.Sent,
			Failed:     ledgerStats.Failed,
			NoAddress:  ledgerStats.NoAddress,
			OptedOut:   ledgerStats.OptedOut,
		},
	}

	byProvider := make(map[string]*ProviderStats)
	for _, rec := range records {
		if rec.Opened {
			stats.Totals.Opened++
		}
		if rec.Clicked {
			stats.Totals.Clicked++
		}
		if rec.Replied {
			stats.Totals.Replied++
		}
		if rec.Bounced {
			stats.Totals.Bounced++
		}
		if rec.Unsubscribed {
			stats.Totals.Unsubscribed++
		}

		provider := rec.Provider
		if provider == "" {
			provider = "outros"
		}
		ps := byProvider[provider]
		if ps == nil {
			ps = &ProviderStats{Provider: provider}
			byProvider[provider] = ps
		}
		ps.Sent++
		if rec.Opened {
			ps.Opened++
		}
		if rec.Clicked {
			ps.Clicked++
		}

		stats.Top = append(stats.Top, Engagement{
			Identity:  rec.Identity,
			Recipient: rec.Recipient,
			Opens:     rec.OpenCount,
			Clicks:    rec.ClickCount,
			Replied:   rec.Replied,
			FirstOpen: rec.FirstOpen,
		})
	}

	if stats.Totals.Sent > 0 {
		stats.Totals.OpenRate = rate(stats.Totals.Opened, stats.Totals.Sent)
		stats.Totals.ClickRate = rate(stats.Totals.Clicked, stats.Totals.Sent)
		stats.Totals.ReplyRate = rate(stats.Totals.Replied, stats.Totals.Sent)
	}

	for _, ps := range byProvider {
		ps.OpenRate = rate(ps.Opened, ps.Sent)
		ps.ClickRate = rate(ps.Clicked, ps.Sent)
		stats.Providers = append(stats.Providers, *ps)
	}
	sort.Slice(stats.Providers, func(i, j int) bool {
		if stats.Providers[i].Sent != stats.Providers[j].Sent {
			return stats.Providers[i].Sent > stats.Providers[j].Sent
		}
		return stats.Providers[i].Provider < stats.Providers[j].Provider
	})

	sort.SliceStable(stats.Top, func(i, j int) bool {
		a, b := stats.Top[i], stats.Top[j]
		if a.Opens != b.Opens {
			return a.Opens > b.Opens
		}
		if a.Clicks != b.Clicks {
			return a.Clicks > b.Clicks
		}
		switch {
		case a.FirstOpen == nil:
			return false
		case b.FirstOpen == nil:
			return true
		default:
			return a.FirstOpen.Before(*b.FirstOpen)
		}
	})

	topN := b.TopN
	if topN <= 0 {
		topN = 10
	}
	if len(stats.Top) > topN {
		stats.Top = stats.Top[:topN]
	}

	return stats, nil
}

// JSON renders the stats as indented JSON
func (s *CampaignStats) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}
