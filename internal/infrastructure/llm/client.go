package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

var (
	// ErrRateLimited is returned when the provider keeps throttling after all retries.
	ErrRateLimited = errors.New("llm provider rate limited")
	// ErrEmptyReply is returned when the provider answered without text.
	ErrEmptyReply = errors.New("llm provider returned an empty reply")
	// ErrBlocked is returned when the provider refused to answer.
	ErrBlocked = errors.New("llm provider blocked the reply")
)

// Client paces, bounds and retries calls to one backend.
type Client struct {
	name       string
	backend    ports.ChatCompleter
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ ports.ChatCompleter = (*Client)(nil)

// New builds the backend named by cfg.Kind and wraps it.
func New(ctx context.Context, name string, cfg config.ProviderConfig, logger *slog.Logger) (*Client, error) {
	var (
		backend ports.ChatCompleter
		err     error
	)
	switch cfg.Kind {
	case "openai":
		backend, err = NewOpenAIBackend(cfg)
	case "gemini":
		backend, err = NewGeminiBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider %s: unknown kind %q", name, cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	return Wrap(name, backend, cfg, logger), nil
}

// Wrap decorates backend with the pacing and retry settings of cfg.
func Wrap(name string, backend ports.ChatCompleter, cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Client{
		name:       name,
		backend:    backend,
		limiter:    limiter,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With("provider", name),
	}
}

// ChatComplete waits for the limiter, calls the backend under the provider timeout and
// retries rate-limit errors with a growing delay.
func (c *Client) ChatComplete(ctx context.Context, messages []domain.Message, temperature float64) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			c.logger.Warn("rate limited, retrying", "attempt", attempt, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for rate limiter: %w", err)
		}

		text, err := c.call(ctx, messages, temperature)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) call(ctx context.Context, messages []domain.Message, temperature float64) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.backend.ChatComplete(ctx, messages, temperature)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// classify marks throttling errors reported only through their message.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrRateLimited) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
