package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	// Check that all metrics are registered
	if m.EmailsSentTotal == nil {
		t.Error("EmailsSentTotal is nil")
	}
	if m.EmailsFailedTotal == nil {
		t.Error("EmailsFailedTotal is nil")
	}
	if m.EmailsNoAddressTotal == nil {
		t.Error("EmailsNoAddressTotal is nil")
	}
	if m.OpensTotal == nil {
		t.Error("OpensTotal is nil")
	}
	if m.ClicksTotal == nil {
		t.Error("ClicksTotal is nil")
	}
	if m.UnsubscribesTotal == nil {
		t.Error("UnsubscribesTotal is nil")
	}
	if m.SentToday == nil {
		t.Error("SentToday is nil")
	}
	if m.DailyLimit == nil {
		t.Error("DailyLimit is nil")
	}
	if m.CampaignDay == nil {
		t.Error("CampaignDay is nil")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.EmailsSentTotal.WithLabelValues("gmail").Inc()
	m.EmailsSentTotal.WithLabelValues("gmail").Inc()
	m.EmailsSentTotal.WithLabelValues("corporativo").Inc()

	if got := testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("gmail")); got != 2 {
		t.Errorf("expected gmail counter 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("corporativo")); got != 1 {
		t.Errorf("expected corporativo counter 1, got %f", got)
	}

	m.OpensTotal.Inc()
	if got := testutil.ToFloat64(m.OpensTotal); got != 1 {
		t.Errorf("expected opens counter 1, got %f", got)
	}
}

func TestGauges(t *testing.T) {
	m := New()

	m.SentToday.Set(12)
	m.DailyLimit.Set(25)
	m.CampaignDay.Set(4)

	if got := testutil.ToFloat64(m.SentToday); got != 12 {
		t.Errorf("expected sent_today 12, got %f", got)
	}
	if got := testutil.ToFloat64(m.DailyLimit); got != 25 {
		t.Errorf("expected daily_limit 25, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.EmailsSentTotal.WithLabelValues("gmail").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "mailramp_emails_sent_total") {
		t.Error("expected exposition to contain mailramp_emails_sent_total")
	}
}
