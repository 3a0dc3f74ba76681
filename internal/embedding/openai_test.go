package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reqflow/reqflow/internal/log"
)

func testVector(dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i) / float32(dim)
	}
	return vec
}

func embeddingHandler(t *testing.T, dim int, wantModel string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if wantModel != "" && req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}
		if req.Dimensions != dim {
			t.Errorf("dimensions = %d, want %d", req.Dimensions, dim)
		}

		resp := map[string]any{
			"data": []map[string]any{{"embedding": testVector(dim)}},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encoding response: %v", err)
		}
	}
}

func newTestOpenAI(t *testing.T, ts *httptest.Server, dim int) *OpenAI {
	t.Helper()
	p, err := NewOpenAI(OpenAIConfig{
		BaseURL:   ts.URL,
		APIKey:    "test-key",
		Dimension: dim,
		Timeout:   5 * time.Second,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return p
}

func TestOpenAIEmbed(t *testing.T) {
	const dim = 8
	ts := httptest.NewServer(embeddingHandler(t, dim, DefaultOpenAIModel))
	defer ts.Close()

	p := newTestOpenAI(t, ts, dim)

	vec, err := p.Embed(context.Background(), "some chunk content")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != dim {
		t.Errorf("got %d dimensions, want %d", len(vec), dim)
	}
	if p.Dimension() != dim {
		t.Errorf("Dimension() = %d, want %d", p.Dimension(), dim)
	}
}

func TestOpenAIMissingAPIKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}, log.NewNop()); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestOpenAIRetriesTransientFailure(t *testing.T) {
	const dim = 4
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		embeddingHandler(t, dim, "")(w, r)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, dim)

	vec, err := p.Embed(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("Embed after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(vec) != dim {
		t.Errorf("got %d dimensions, want %d", len(vec), dim)
	}
}

func TestOpenAIRetryAfterReplacesBackoff(t *testing.T) {
	const dim = 4
	var calls int
	var callTimes []time.Time
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		callTimes = append(callTimes, time.Now())
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		embeddingHandler(t, dim, "")(w, r)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, dim)

	if _, err := p.Embed(context.Background(), "throttled"); err != nil {
		t.Fatalf("Embed after throttle: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}

	// The hinted second replaces the backoff delay rather than adding to it.
	gap := callTimes[1].Sub(callTimes[0])
	if gap < time.Second {
		t.Errorf("retry fired after %v, before the Retry-After hint elapsed", gap)
	}
	if gap >= time.Second+retryDelay(1) {
		t.Errorf("retry waited %v, hint and backoff appear to stack", gap)
	}
}

func TestOpenAIDoesNotRetryAuthFailure(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, 4)

	_, err := p.Embed(context.Background(), "no access")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable status, got %d", calls)
	}
}

func TestOpenAIExhaustsRetries(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, 4)

	_, err := p.Embed(context.Background(), "always failing")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if calls != openAIMaxRetries+1 {
		t.Errorf("expected %d calls, got %d", openAIMaxRetries+1, calls)
	}
}

func TestOpenAIDimensionMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"data": []map[string]any{{"embedding": testVector(16)}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, 8)

	if _, err := p.Embed(context.Background(), "wrong size"); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider for dimension mismatch, got %v", err)
	}
}

func TestOpenAIEmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, 8)

	if _, err := p.Embed(context.Background(), "empty"); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider for empty response, got %v", err)
	}
}

func TestOpenAICanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := newTestOpenAI(t, ts, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Embed(ctx, "canceled")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
