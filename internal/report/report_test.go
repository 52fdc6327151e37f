package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasrosati/mailramp/internal/ledger"
	"github.com/lucasrosati/mailramp/internal/storage"
	"github.com/lucasrosati/mailramp/internal/tracking"
)

func setupStores(t *testing.T) (ledger.Store, tracking.Store) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "campaign.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	led, err := ledger.NewBoltStore(db)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	trk, err := tracking.NewBoltStore(db)
	if err != nil {
		t.Fatalf("failed to create tracking store: %v", err)
	}
	return led, trk
}

func seedCampaign(t *testing.T, led ledger.Store, trk tracking.Store) {
	t.Helper()

	sends := []struct {
		identity string
		addr     string
		provider string
		token    string
	}{
		{"Empresa A", "a@gmail.com", "gmail", "tokA"},
		{"Empresa B", "b@empresa-b.com.br", "corporativo", "tokB"},
		{"Empresa C", "c@empresa-c.com.br", "corporativo", "tokC"},
	}
	for _, s := range sends {
		err := led.Record(&ledger.Entry{
			Identity:  s.identity,
			Address:   s.addr,
			Outcome:   ledger.OutcomeSent,
			Timestamp: time.Now(),
			Token:     s.token,
		})
		if err != nil {
			t.Fatalf("failed to record ledger entry: %v", err)
		}
		err = trk.Create(&tracking.Record{
			Token:     s.token,
			Identity:  s.identity,
			Recipient: s.addr,
			Provider:  s.provider,
		})
		if err != nil {
			t.Fatalf("failed to create tracking record: %v", err)
		}
	}

	err := led.Record(&ledger.Entry{
		Identity:  "Empresa D",
		Outcome:   ledger.OutcomeNoAddress,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to record ledger entry: %v", err)
	}

	// A opens twice and clicks, B opens once, C stays silent
	for _, ev := range []struct {
		token string
		typ   tracking.EventType
	}{
		{"tokA", tracking.EventOpen},
		{"tokA", tracking.EventOpen},
		{"tokA", tracking.EventClick},
		{"tokB", tracking.EventOpen},
	} {
		if _, err := trk.RecordEvent(ev.token, ev.typ, tracking.Meta{}); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}
	}
}

func TestAggregate(t *testing.T) {
	led, trk := setupStores(t)
	seedCampaign(t, led, trk)

	stats, err := NewBuilder(led, trk).Aggregate()
	if err != nil {
		t.Fatalf("failed to aggregate: %v", err)
	}

	if stats.Totals.Sent != 3 {
		t.Errorf("expected 3 sent, got %d", stats.Totals.Sent)
	}
	if stats.Totals.NoAddress != 1 {
		t.Errorf("expected 1 no-address, got %d", stats.Totals.NoAddress)
	}
	if stats.Totals.Opened != 2 {
		t.Errorf("expected 2 opened, got %d", stats.Totals.Opened)
	}
	if stats.Totals.Clicked != 1 {
		t.Errorf("expected 1 clicked, got %d", stats.Totals.Clicked)
	}

	wantOpenRate := 2.0 * 100 / 3
	if diff := stats.Totals.OpenRate - wantOpenRate; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected open rate %.2f, got %.2f", wantOpenRate, stats.Totals.OpenRate)
	}

	if len(stats.Providers) != 2 {
		t.Fatalf("expected 2 provider groups, got %d", len(stats.Providers))
	}
	// corporativo has more sends, sorts first
	if stats.Providers[0].Provider != "corporativo" || stats.Providers[0].Sent != 2 {
		t.Errorf("unexpected first provider group: %+v", stats.Providers[0])
	}
	if stats.Providers[1].Provider != "gmail" || stats.Providers[1].Opened != 1 {
		t.Errorf("unexpected second provider group: %+v", stats.Providers[1])
	}
}

func TestTopEngagementOrder(t *testing.T) {
	led, trk := setupStores(t)
	seedCampaign(t, led, trk)

	stats, err := NewBuilder(led, trk).Aggregate()
	if err != nil {
		t.Fatalf("failed to aggregate: %v", err)
	}

	if len(stats.Top) != 3 {
		t.Fatalf("expected 3 engagement rows, got %d", len(stats.Top))
	}
	if stats.Top[0].Identity != "Empresa A" {
		t.Errorf("expected Empresa A first (most opens), got %s", stats.Top[0].Identity)
	}
	if stats.Top[1].Identity != "Empresa B" {
		t.Errorf("expected Empresa B second, got %s", stats.Top[1].Identity)
	}
	if stats.Top[2].Identity != "Empresa C" {
		t.Errorf("expected silent Empresa C last, got %s", stats.Top[2].Identity)
	}
}

func TestTopN(t *testing.T) {
	led, trk := setupStores(t)
	seedCampaign(t, led, trk)

	b := NewBuilder(led, trk)
	b.TopN = 1

	stats, err := b.Aggregate()
	if err != nil {
		t.Fatalf("failed to aggregate: %v", err)
	}
	if len(stats.Top) != 1 {
		t.Errorf("expected top list capped at 1, got %d", len(stats.Top))
	}
}

func TestJSONExport(t *testing.T) {
	led, trk := setupStores(t)
	seedCampaign(t, led, trk)

	stats, err := NewBuilder(led, trk).Aggregate()
	if err != nil {
		t.Fatalf("failed to aggregate: %v", err)
	}

	data, err := stats.JSON()
	if err != nil {
		t.Fatalf("failed to export JSON: %v", err)
	}

	var decoded CampaignStats
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if decoded.Totals.Sent != 3 {
		t.Errorf("expected 3 sent in decoded export, got %d", decoded.Totals.Sent)
	}
}

func TestWriteDashboard(t *testing.T) {
	led, trk := setupStores(t)
	seedCampaign(t, led, trk)

	stats, err := NewBuilder(led, trk).Aggregate()
	if err != nil {
		t.Fatalf("failed to aggregate: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteDashboard(&buf, stats); err != nil {
		t.Fatalf("failed to render dashboard: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		"Email Marketing Analytics Dashboard",
		"Métricas Principais",
		"corporativo",
		"Empresa A",
		"a@gmail.com",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected dashboard to contain %q", want)
		}
	}
}

func TestEmptyCampaign(t *testing.T) {
	led, trk := setupStores(t)

	stats, err := NewBuilder(led, trk).Aggregate()
	if err != nil {
		t.Fatalf("failed to aggregate empty campaign: %v", err)
	}
	if stats.Totals.Sent != 0 || stats.Totals.OpenRate != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats.Totals)
	}

	var buf bytes.Buffer
	if err := WriteDashboard(&buf, stats); err != nil {
		t.Fatalf("failed to render empty dashboard: %v", err)
	}
}
