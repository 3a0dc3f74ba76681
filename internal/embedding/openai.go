package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// DefaultOpenAIModel is the default model for OpenAI-compatible endpoints.
const DefaultOpenAIModel = "text-embedding-3-small"

const openAIMaxRetries = 3

// OpenAIConfig configures the OpenAI-compatible embeddings adapter. BaseURL
// may point at any server implementing the /v1/embeddings contract.
type OpenAIConfig struct {
	BaseURL   string // default: https://api.openai.com/v1
	APIKey    string
	Model     string        // default: DefaultOpenAIModel
	Dimension int           // default: 768
	Timeout   time.Duration // default: 30s
}

// OpenAI embeds text through an OpenAI-compatible embeddings endpoint.
type OpenAI struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	logger    *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible embedding provider.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}, nil
}

// Name implements Provider.
func (*OpenAI) Name() string { return "openai" }

// Dimension implements Provider.
func (o *OpenAI) Dimension() int { return o.dimension }

type openAIRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements Provider. Transient failures (429, 5xx) are retried with
// exponential backoff, honoring Retry-After when the server provides one.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(openAIRequest{
		Input:      text,
		Model:      o.model,
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrProvider, err)
	}

	url := o.baseURL + "/embeddings"
	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= openAIMaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			if retryAfter > 0 {
				delay = retryAfter
			}
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		vec, hint, retryable, err := o.tryEmbed(ctx, url, payload)
		if err == nil {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		retryAfter = hint
		o.logger.Debug("retrying embedding request", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// tryEmbed performs one request. retryable reports whether the failure is
// worth another attempt; retryAfter carries the server's Retry-After hint,
// which the caller uses in place of backoff for the next attempt.
func (o *OpenAI) tryEmbed(ctx context.Context, url string, payload []byte) (vec []float32, retryAfter time.Duration, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: building request: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, 0, true, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 && secs <= 60 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, retryAfter, true, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, false, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, bytes.TrimSpace(body))
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, false, fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, 0, false, fmt.Errorf("%w: empty embedding in response", ErrProvider)
	}
	got := parsed.Data[0].Embedding
	if len(got) != o.dimension {
		return nil, 0, false, fmt.Errorf("%w: got %d dimensions, want %d", ErrProvider, len(got), o.dimension)
	}
	return got, 0, false, nil
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
