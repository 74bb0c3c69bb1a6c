package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, srv *httptest.Server, extra map[string]interface{}) *OpenAIEmbedder {
	t.Helper()
	cfg := map[string]interface{}{
		"api_key":     "test-key",
		"base_url":    srv.URL + "/v1/",
		"retry_delay": time.Millisecond,
	}
	for k, v := range extra {
		cfg[k] = v
	}
	e, err := NewOpenAIEmbedder(cfg)
	require.NoError(t, err)
	return e.(*OpenAIEmbedder)
}

func TestOpenAIEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"first", "second"}, req.Input)

		// Out of order on purpose; the index field decides placement.
		w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.3,0.4]},
			{"index":0,"embedding":[0.1,0.2]}
		]}`))
	}))
	defer srv.Close()

	e := newTestEmbedder(t, srv, nil)
	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, vectors)

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestOpenAIRetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vec, err := newTestEmbedder(t, srv, nil).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestEmbedder(t, srv, map[string]interface{}{"max_retries": 2}).Embed(context.Background(), "hello")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestEmbedder(t, srv, nil).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.EqualError(t, err, "API request failed with status code 401: Incorrect API key provided")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIBackoff(t *testing.T) {
	e := &OpenAIEmbedder{baseDelay: 200 * time.Millisecond}
	assert.Equal(t, 400*time.Millisecond, e.backoff(1, nil))
	assert.Equal(t, 1600*time.Millisecond, e.backoff(3, nil))
	assert.Equal(t, maxBackoff, e.backoff(10, nil))
	assert.Equal(t, 2*time.Second, e.backoff(1, &APIError{StatusCode: 429, RetryAfter: 2 * time.Second}))
	assert.Equal(t, maxBackoff, e.backoff(1, &APIError{StatusCode: 429, RetryAfter: time.Minute}))
}

func TestOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(map[string]interface{}{})
	assert.Error(t, err)
}

func TestOpenAIGetDimension(t *testing.T) {
	for model, dim := range map[string]int{
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	} {
		e, err := NewOpenAIEmbedder(map[string]interface{}{"api_key": "k", "model": model})
		require.NoError(t, err)
		got, err := e.GetDimension()
		require.NoError(t, err)
		assert.Equal(t, dim, got, model)
	}

	e, err := NewOpenAIEmbedder(map[string]interface{}{"api_key": "k", "model": "custom"})
	require.NoError(t, err)
	_, err = e.GetDimension()
	assert.Error(t, err)
}
