package extractor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

// textReader is one extraction strategy.
type textReader interface {
	Read(ctx context.Context, url string) (string, error)
}

// Extractor tries the remote reader first (when configured), then local readability.
type Extractor struct {
	readers  []namedReader
	timeout  time.Duration
	maxChars int
	logger   *slog.Logger
}

type namedReader struct {
	name   string
	reader textReader
}

var _ ports.ContentExtractor = (*Extractor)(nil)

// New builds the extraction chain from config.
func New(cfg config.ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Extractor{timeout: cfg.Timeout, maxChars: cfg.MaxChars, logger: logger}
	if cfg.ReaderURL != "" {
		e.readers = append(e.readers, namedReader{"reader", NewReaderClient(cfg.ReaderURL, cfg.APIKey, cfg.Timeout)})
	}
	e.readers = append(e.readers, namedReader{"readability", NewReadability(cfg.UserAgent, cfg.Timeout)})
	return e
}

// ExtractContent returns readable text for url, false when no strategy produced any.
func (e *Extractor) ExtractContent(ctx context.Context, url string) (string, bool) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", false
	}

	for _, r := range e.readers {
		text, err := e.read(ctx, r.reader, url)
		if err != nil {
			e.logger.Debug("extraction failed", "strategy", r.name, "url", url, "error", err)
			continue
		}
		if text = truncate(text, e.maxChars); text != "" {
			return text, true
		}
	}
	return "", false
}

func (e *Extractor) read(ctx context.Context, r textReader, url string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	text, err := r.Read(ctx, url)
	return strings.TrimSpace(text), err
}

// Close releases the HTTP clients of every strategy.
func (e *Extractor) Close() error {
	for _, r := range e.readers {
		if c, ok := r.reader.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	return nil
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}
