package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

func init() {
	RegisterEmbedder("openai", NewOpenAIEmbedder)
}

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "text-embedding-3-small"
	defaultRetries   = 3
	maxBackoff       = 5 * time.Second
)

// OpenAIEmbedder implements BatchEmbedder against the OpenAI embeddings API
// or any server speaking the same protocol.
type OpenAIEmbedder struct {
	apiKey     string
	client     *http.Client
	apiURL     string
	modelName  string
	maxRetries int
	baseDelay  time.Duration
}

// NewOpenAIEmbedder creates a new OpenAI embedding provider. Recognized keys:
//   - api_key (required)
//   - model: defaults to text-embedding-3-small
//   - base_url: API root, defaults to https://api.openai.com/v1
//   - api_url: full embeddings endpoint, overrides base_url
//   - timeout: time.Duration, defaults to 30s
//   - max_retries: retries on 429 and 5xx, defaults to 3
func NewOpenAIEmbedder(config map[string]interface{}) (Embedder, error) {
	apiKey := stringOption(config, "api_key", "")
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	base := strings.TrimRight(stringOption(config, "base_url", defaultBaseURL), "/")
	e := &OpenAIEmbedder{
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		apiURL:     stringOption(config, "api_url", base+"/embeddings"),
		modelName:  stringOption(config, "model", defaultModelName),
		maxRetries: intOption(config, "max_retries", defaultRetries),
		baseDelay:  200 * time.Millisecond,
	}
	if timeout, ok := config["timeout"].(time.Duration); ok && timeout > 0 {
		e.client.Timeout = timeout
	}
	if delay, ok := config["retry_delay"].(time.Duration); ok && delay >= 0 {
		e.baseDelay = delay
	}
	return e, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed converts a single text into its vector representation.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends all texts in a single request. Rate limit and server
// errors are retried with exponential backoff, honoring Retry-After.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody, err := json.Marshal(embeddingRequest{Input: texts, Model: e.modelName})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, e.backoff(attempt, lastErr)); err != nil {
				return nil, err
			}
		}
		vectors, err := e.do(ctx, reqBody)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
			}
			return vectors, nil
		}
		lastErr = err
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", e.maxRetries, lastErr)
}

func (e *OpenAIEmbedder) do(ctx context.Context, body []byte) ([][]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp, respBody)
	}

	var embeddingResp embeddingResponse
	if err := json.Unmarshal(respBody, &embeddingResp); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if len(embeddingResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}

	vectors := make([][]float64, len(embeddingResp.Data))
	for i, d := range embeddingResp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) backoff(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		return min(apiErr.RetryAfter, maxBackoff)
	}
	return min(e.baseDelay<<attempt, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// APIError is a non-200 response from the embeddings endpoint.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API request failed with status code %d", e.StatusCode)
	}
	return fmt.Sprintf("API request failed with status code %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		apiErr.Message = msg.String()
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

// GetDimension returns the output dimension for the current embedding model.
func (e *OpenAIEmbedder) GetDimension() (int, error) {
	switch e.modelName {
	case "text-embedding-3-small":
		return 1536, nil
	case "text-embedding-3-large":
		return 3072, nil
	case "text-embedding-ada-002":
		return 1536, nil
	default:
		return 0, fmt.Errorf("unknown model: %s", e.modelName)
	}
}
