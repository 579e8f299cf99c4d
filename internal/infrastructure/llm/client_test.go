package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
)

type scriptedBackend struct {
	calls   atomic.Int32
	replies []error
}

func (b *scriptedBackend) ChatComplete(context.Context, []domain.Message, float64) (string, error) {
	n := int(b.calls.Add(1)) - 1
	if n < len(b.replies) && b.replies[n] != nil {
		return "", b.replies[n]
	}
	return "ok", nil
}

var messages = []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

func TestClientRetriesRateLimits(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []error{ErrRateLimited, ErrRateLimited}}
	client := Wrap("test", backend, config.ProviderConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, nil)

	text, err := client.ChatComplete(context.Background(), messages, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 3, backend.calls.Load())
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited}}
	client := Wrap("test", backend, config.ProviderConfig{MaxRetries: 2, RetryDelay: time.Millisecond}, nil)

	_, err := client.ChatComplete(context.Background(), messages, 0)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 3, backend.calls.Load())
}

func TestClientDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad request")
	backend := &scriptedBackend{replies: []error{boom}}
	client := Wrap("test", backend, config.ProviderConfig{MaxRetries: 3}, nil)

	_, err := client.ChatComplete(context.Background(), messages, 0)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestClientHonoursCancellation(t *testing.T) {
	t.Parallel()

	backend := &scriptedBackend{replies: []error{ErrRateLimited}}
	client := Wrap("test", backend, config.ProviderConfig{MaxRetries: 1, RetryDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.ChatComplete(ctx, messages, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, classify(errors.New("API returned unexpected status code: 429")), ErrRateLimited)
	assert.ErrorIs(t, classify(errors.New("Error 429, RESOURCE_EXHAUSTED")), ErrRateLimited)
	assert.NotErrorIs(t, classify(errors.New("status code: 500")), ErrRateLimited)
	assert.NoError(t, classify(nil))
}

func TestOpenAIBackend(t *testing.T) {
	t.Parallel()

	var throttle atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if throttle.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
			return
		}

		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(raw, &req)
		if req.Model != "test-model" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			http.Error(w, `{"error":{"message":"unexpected request"}}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":" [\"你好\"] "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(config.ProviderConfig{APIKey: "sk-test", Model: "test-model", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := backend.ChatComplete(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "translate"},
		{Role: domain.RoleUser, Content: `["hello"]`},
	}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, `["你好"]`, text)

	throttle.Store(true)
	_, err = backend.ChatComplete(context.Background(), messages, 0.2)
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = NewOpenAIBackend(config.ProviderConfig{Model: "x"})
	assert.Error(t, err)
}
