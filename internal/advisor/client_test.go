package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rewired-gh/matoracle/internal/models"
)

func testSnapshot() models.MarketSnapshot {
	return models.MarketSnapshot{
		Name:          "Copper",
		Symbol:        "COP",
		Price:         112.34,
		Change24h:     -0.42,
		DemandIndex:   61.2,
		SupplyIndex:   58.9,
		MismatchScore: 2.3,
		AlertLevel:    models.LevelCritical,
		LastUpdate:    time.Now(),
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		Model:          "test-model",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		RetryDelayBase: time.Millisecond,
	})
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected system + user messages, got %d", len(req.Messages))
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: content}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAnalyze(t *testing.T) {
	srv := completionServer(t, "Demand pressure on copper remains elevated.")
	defer srv.Close()

	got := newTestClient(srv.URL).Analyze(context.Background(), testSnapshot())
	if got != "Demand pressure on copper remains elevated." {
		t.Errorf("Analyze = %q", got)
	}
}

func TestSignal(t *testing.T) {
	srv := completionServer(t, "BUY: demand-led imbalance is widening.")
	defer srv.Close()

	got := newTestClient(srv.URL).Signal(context.Background(), testSnapshot())
	if got != "BUY: demand-led imbalance is widening." {
		t.Errorf("Signal = %q", got)
	}
}

func TestFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if got := c.Analyze(context.Background(), testSnapshot()); got != FallbackAnalysis {
		t.Errorf("Analyze fallback = %q, want %q", got, FallbackAnalysis)
	}
	if got := c.Signal(context.Background(), testSnapshot()); got != FallbackSignal {
		t.Errorf("Signal fallback = %q, want %q", got, FallbackSignal)
	}
}

func TestFallbackOnUnreachableService(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if got := c.Signal(context.Background(), testSnapshot()); got != FallbackSignal {
		t.Errorf("Signal fallback = %q, want %q", got, FallbackSignal)
	}
}

func TestFallbackOnEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if got := newTestClient(srv.URL).Analyze(context.Background(), testSnapshot()); got != FallbackAnalysis {
		t.Errorf("Analyze fallback = %q, want %q", got, FallbackAnalysis)
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"HOLD: stable."}}]}`))
	}))
	defer srv.Close()

	got := newTestClient(srv.URL).Signal(context.Background(), testSnapshot())
	if got != "HOLD: stable." {
		t.Errorf("Signal after retry = %q", got)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
