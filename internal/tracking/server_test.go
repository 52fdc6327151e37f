package tracking

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lucasrosati/mailramp/internal/metrics"
)

func setupServer(t *testing.T, optOut OptOutFunc) (*Server, *BoltStore) {
	t.Helper()

	store := setupStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(store, optOut, metrics.New(), ":0", logger)
	return srv, store
}

func TestPixelEndpoint(t *testing.T) {
	srv, store := setupServer(t, nil)

	if err := store.Create(&Record{Token: "pix1", Identity: "Empresa A"}); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/pixel/pix1.png", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected pixel bytes in response")
	}

	rec, err := store.Get("pix1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if !rec.Opened || rec.OpenCount != 1 {
		t.Errorf("expected opened record with count 1, got opened=%v count=%d", rec.Opened, rec.OpenCount)
	}
}

func TestPixelUnknownTokenStillServesPixel(t *testing.T) {
	srv, _ := setupServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/pixel/nosuchtoken.png", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown token, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png for unknown token, got %s", ct)
	}
}

func TestClickRedirect(t *testing.T) {
	srv, store := setupServer(t, nil)

	if err := store.Create(&Record{Token: "clk1", Identity: "Empresa B"}); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/click/clk1?url=https%3A%2F%2Fexample.com%2Fpromo", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://example.com/promo" {
		t.Errorf("expected redirect to destination, got %s", loc)
	}

	rec, err := store.Get("clk1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if !rec.Clicked {
		t.Error("expected clicked flag after redirect")
	}
}

func TestClickMissingURLFallsBack(t *testing.T) {
	srv, store := setupServer(t, nil)

	if err := store.Create(&Record{Token: "clk2", Identity: "Empresa C"}); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/click/clk2", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != defaultClickURL {
		t.Errorf("expected fallback redirect, got %s", loc)
	}
}

func TestClickRejectsNonHTTPScheme(t *testing.T) {
	srv, store := setupServer(t, nil)

	if err := store.Create(&Record{Token: "clk3", Identity: "Empresa D"}); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/click/clk3?url=javascript%3Aalert(1)", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if loc := rr.Header().Get("Location"); loc != defaultClickURL {
		t.Errorf("expected fallback for non-http scheme, got %s", loc)
	}
}

func TestUnsubscribeEndpoint(t *testing.T) {
	var optedOut string
	srv, store := setupServer(t, func(identity string) error {
		optedOut = identity
		return nil
	})

	if err := store.Create(&Record{Token: "uns1", Identity: "Empresa E"}); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/uns1", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Descadastrado") {
		t.Error("expected confirmation page")
	}
	if optedOut != "Empresa E" {
		t.Errorf("expected opt-out callback for Empresa E, got %q", optedOut)
	}

	rec, err := store.Get("uns1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if !rec.Unsubscribed {
		t.Error("expected unsubscribed flag")
	}
}

func TestUnsubscribeUnknownTokenNoCallback(t *testing.T) {
	called := false
	srv, _ := setupServer(t, func(string) error {
		called = true
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/nosuchtoken", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown token, got %d", rr.Code)
	}
	if called {
		t.Error("opt-out callback must not fire for an unknown token")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestLinks(t *testing.T) {
	links := Links{BaseURL: "http://track.example.com"}

	if got := links.Pixel("tok"); got != "http://track.example.com/pixel/tok.png" {
		t.Errorf("unexpected pixel URL: %s", got)
	}
	if got := links.Click("tok", "https://example.com/a b"); got != "http://track.example.com/click/tok?url=https%3A%2F%2Fexample.com%2Fa+b" {
		t.Errorf("unexpected click URL: %s", got)
	}
	if got := links.Unsubscribe("tok"); got != "http://track.example.com/unsubscribe/tok" {
		t.Errorf("unexpected unsubscribe URL: %s", got)
	}
}
