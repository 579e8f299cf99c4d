package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrCountMismatch is returned when a reply holds a different number of results than sent.
var ErrCountMismatch = errors.New("model reply count does not match request")

// CallFunc sends texts to the model in one request and returns the raw reply.
type CallFunc func(ctx context.Context, texts []string) (string, error)

// Report summarizes one alignment run for observability.
type Report struct {
	Inputs    int
	Skipped   int
	Chunks    int
	Calls     int
	Fallbacks int
	Failed    []int
}

// Engine drives chunked model calls with per-item fallback.
type Engine struct {
	batchSize int
	logger    *slog.Logger
}

// NewEngine builds an engine; batchSize follows Chunk semantics.
func NewEngine(batchSize int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{batchSize: batchSize, logger: logger}
}

// Align extracts a text from every item and runs Process over them.
func Align[T any](ctx context.Context, e *Engine, items []T, extract func(T) string, call CallFunc) ([]string, Report) {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = extract(item)
	}
	return e.Process(ctx, texts, call)
}

// Process returns exactly one output per input text, in input order. Empty inputs are
// never sent and map to "". A null or blank element in a batched reply is retried on its
// own. Items that fail both the batched and the individual call also map to "" and are
// listed in Report.Failed.
func (e *Engine) Process(ctx context.Context, texts []string, call CallFunc) ([]string, Report) {
	out := make([]string, len(texts))
	report := Report{Inputs: len(texts)}

	work := make([]Indexed[string], 0, len(texts))
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			report.Skipped++
			continue
		}
		work = append(work, Indexed[string]{Index: i, Value: text})
	}

	for _, chunk := range Chunk(work, e.batchSize) {
		report.Chunks++
		entries := make([]Indexed[string], len(chunk))
		for i, c := range chunk {
			entries[i] = c.Value
		}
		e.runChunk(ctx, entries, out, &report, call)
	}

	mustAlign(out, report)
	return out, report
}

func (e *Engine) runChunk(ctx context.Context, chunk []Indexed[string], out []string, report *Report, call CallFunc) {
	if len(chunk) == 1 {
		e.runSingle(ctx, chunk[0], out, report, call)
		return
	}

	texts := make([]string, len(chunk))
	for i, c := range chunk {
		texts[i] = c.Value
	}

	report.Calls++
	reply, err := call(ctx, texts)
	if err == nil {
		var values []string
		values, err = ParseStringArray(reply)
		if err == nil && len(values) != len(chunk) {
			err = fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(values), len(chunk))
		}
		if err == nil {
			var blank []Indexed[string]
			for i, c := range chunk {
				if text := strings.TrimSpace(values[i]); text != "" {
					out[c.Index] = text
				} else {
					blank = append(blank, c)
				}
			}
			for _, c := range blank {
				report.Fallbacks++
				e.logger.Info("blank batch element, retrying alone", "position", c.Index)
				e.runSingle(ctx, c, out, report, call)
			}
			return
		}
	}

	e.logger.Warn("batch call failed, falling back to per-item calls",
		"chunk_size", len(chunk),
		"first_position", chunk[0].Index,
		"error", err)

	for _, c := range chunk {
		report.Fallbacks++
		e.logger.Info("batch fallback attempt", "position", c.Index)
		e.runSingle(ctx, c, out, report, call)
	}
}

func (e *Engine) runSingle(ctx context.Context, entry Indexed[string], out []string, report *Report, call CallFunc) {
	report.Calls++
	reply, err := call(ctx, []string{entry.Value})
	if err == nil {
		var text string
		text, err = singleResult(reply)
		if err == nil {
			out[entry.Index] = text
			return
		}
	}

	report.Failed = append(report.Failed, entry.Index)
	e.logger.Warn("item failed after individual call", "position", entry.Index, "error", err)
}

// singleResult accepts a one-element array or, when the reply is not an array at all,
// the reply text itself.
func singleResult(reply string) (string, error) {
	values, err := ParseStringArray(reply)
	switch {
	case err == nil && len(values) == 1:
		if text := strings.TrimSpace(values[0]); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("%w: empty result", ErrCountMismatch)
	case err == nil:
		return "", fmt.Errorf("%w: got %d, want 1", ErrCountMismatch, len(values))
	}

	text := unfence(reply)
	if text == "" {
		return "", ErrUnparseable
	}
	return text, nil
}

// mustAlign checks that every position was filled, skipped or reported as failed.
func mustAlign(out []string, report Report) {
	filled := 0
	for _, text := range out {
		if text != "" {
			filled++
		}
	}
	if len(out) != report.Inputs || filled+report.Skipped+len(report.Failed) != report.Inputs {
		panic(fmt.Sprintf("batch: alignment invariant violated: %d inputs, %d filled, %d skipped, %d failed",
			report.Inputs, filled, report.Skipped, len(report.Failed)))
	}
}
