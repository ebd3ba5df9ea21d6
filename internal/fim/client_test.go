package fim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}`
}

func newGeminiTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiClient(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, nil)
}

func TestGeminiRetriesOnceOnServerError(t *testing.T) {
	var hits atomic.Int32
	client := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(geminiReply("ok")))
	})

	out, err := client.Complete(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGeminiStopsAfterOneRetryOnRateLimit(t *testing.T) {
	var hits atomic.Int32
	client := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	// One original attempt plus one retry, never more.
	assert.Equal(t, int32(2), hits.Load())
}

func TestGeminiDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	client := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Complete(context.Background(), "hola")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}
