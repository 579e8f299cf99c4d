package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"NewsDigest/internal/batch"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// ErrSourceUnavailable marks a candidate list fetch that failed upstream; the task stays
// in INIT and the next invocation retries.
var ErrSourceUnavailable = errors.New("story source unavailable")

const (
	skippedBySource = "skipped by source"
	noModelOutput   = "no model output"
	commentSep      = "\n---\n"
)

// Settings tune the executor; zero values fall back to sensible defaults.
type Settings struct {
	Concurrency    int
	AlignBatchSize int
	Temperature    float64
	ClaimLease     time.Duration
	PublishTimeout time.Duration
	Location       *time.Location
}

// ExecutorDeps wires the driven adapters into the executor.
type ExecutorDeps struct {
	Store      ports.TaskStore
	Source     ports.StorySource
	Extractor  ports.ContentExtractor
	Chat       ports.ChatCompleter
	Publishers []ports.Publisher
	Prompts    Prompts
	Settings   Settings
	Logger     *slog.Logger
}

// BatchProgress reports one ProcessNextBatch call and the item counts after it.
type BatchProgress struct {
	Processed  int
	Pending    int
	Processing int
	Done       int
	Failed     int
}

// Remaining is the number of items not yet finished.
func (p BatchProgress) Remaining() int { return p.Pending + p.Processing }

// Total sums all item states.
func (p BatchProgress) Total() int { return p.Pending + p.Processing + p.Done + p.Failed }

// Executor implements the individual pipeline steps of a task.
type Executor struct {
	store      ports.TaskStore
	source     ports.StorySource
	extractor  ports.ContentExtractor
	chat       ports.ChatCompleter
	publishers []ports.Publisher
	prompts    Prompts
	settings   Settings
	engine     *batch.Engine
	logger     *slog.Logger
	owner      string
}

// NewExecutor constructs the step implementation.
func NewExecutor(deps ExecutorDeps) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	settings := deps.Settings
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.ClaimLease <= 0 {
		settings.ClaimLease = 15 * time.Minute
	}
	if settings.PublishTimeout <= 0 {
		settings.PublishTimeout = 30 * time.Second
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}

	return &Executor{
		store:      deps.Store,
		source:     deps.Source,
		extractor:  deps.Extractor,
		chat:       deps.Chat,
		publishers: deps.Publishers,
		prompts:    deps.Prompts,
		settings:   settings,
		engine:     batch.NewEngine(settings.AlignBatchSize, logger.With("component", "batch")),
		logger:     logger,
		owner:      "local",
	}
}

// WithRun returns a copy bound to one invocation: claims carry owner and logs carry logger.
func (e *Executor) WithRun(owner string, logger *slog.Logger) *Executor {
	cp := *e
	cp.owner = owner
	if logger != nil {
		cp.logger = logger
		cp.engine = batch.NewEngine(e.settings.AlignBatchSize, logger.With("component", "batch"))
	}
	return &cp
}

// InitializeTask seeds the items of date from the candidate list and returns the total.
// An already seeded task is left untouched.
func (e *Executor) InitializeTask(ctx context.Context, date string) (int, error) {
	counts, err := e.store.CountItems(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	if counts.Total() > 0 {
		return counts.Total(), nil
	}

	day, err := time.ParseInLocation(domain.DateLayout, date, e.settings.Location)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}

	refs, err := e.source.FetchCandidateList(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	total, err := e.store.SeedItems(ctx, date, refs)
	if err != nil {
		return 0, fmt.Errorf("seed items: %w", err)
	}
	e.logger.Info("task initialized", "items", total)
	return total, nil
}

type work struct {
	item    domain.Item
	story   *domain.Story
	content string
	err     error
}

// ProcessNextBatch claims up to batchSize pending items, runs them through the model
// and records each outcome.
func (e *Executor) ProcessNextBatch(ctx context.Context, date string, batchSize int) (BatchProgress, error) {
	stale, err := e.store.FailStaleClaims(ctx, date, e.settings.ClaimLease)
	if err != nil {
		return BatchProgress{}, fmt.Errorf("fail stale claims: %w", err)
	}
	if stale > 0 {
		e.logger.Warn("stale claims failed", "items", stale)
	}

	items, err := e.store.ClaimPendingItems(ctx, date, e.owner, batchSize)
	if err != nil {
		return BatchProgress{}, fmt.Errorf("claim items: %w", err)
	}

	if len(items) > 0 {
		works := e.fetch(ctx, items)
		e.translate(ctx, works)
		if err := e.complete(ctx, works); err != nil {
			return BatchProgress{Processed: len(items)}, fmt.Errorf("complete items: %w", err)
		}
	}

	counts, err := e.store.CountItems(ctx, date)
	if err != nil {
		return BatchProgress{}, fmt.Errorf("count items: %w", err)
	}
	return BatchProgress{
		Processed:  len(items),
		Pending:    counts.Pending,
		Processing: counts.InProgress,
		Done:       counts.Done,
		Failed:     counts.Failed,
	}, nil
}

func (e *Executor) fetch(ctx context.Context, items []domain.Item) []*work {
	works := make([]*work, len(items))
	var g errgroup.Group
	g.SetLimit(e.settings.Concurrency)

	for i, item := range items {
		w := &work{item: item}
		works[i] = w
		g.Go(func() error {
			story, err := e.source.FetchItemDetail(ctx, item.Ref())
			if err != nil {
				w.err = err
				e.logger.Warn("fetch detail failed", "story", item.Ref().String(), "error", err)
				return nil
			}
			if story == nil {
				return nil
			}
			w.story = story

			if story.URL != "" && e.extractor != nil {
				if text, ok := e.extractor.ExtractContent(ctx, story.URL); ok {
					w.content = text
				}
			}
			if w.content == "" {
				w.content = story.Text
			}
			if w.content == "" {
				w.content = story.Title
			}
			return nil
		})
	}
	_ = g.Wait()
	return works
}

func (e *Executor) translate(ctx context.Context, works []*work) {
	titles, report := batch.Align(ctx, e.engine, works, func(w *work) string {
		if w.story == nil {
			return ""
		}
		return w.story.Title
	}, e.call(PromptTitle))
	e.logReport(PromptTitle, report)

	summaries, report := batch.Align(ctx, e.engine, works, func(w *work) string {
		if w.story == nil {
			return ""
		}
		return w.content
	}, e.call(PromptSummary))
	e.logReport(PromptSummary, report)

	comments, report := batch.Align(ctx, e.engine, works, func(w *work) string {
		if w.story == nil {
			return ""
		}
		return strings.Join(w.story.Comments, commentSep)
	}, e.call(PromptComments))
	e.logReport(PromptComments, report)

	for i, w := range works {
		w.item.TranslatedTitle = titles[i]
		w.item.Summary = summaries[i]
		w.item.CommentDigest = comments[i]
	}
}

// complete records every outcome it can. Storage errors are returned together; a lost
// claim only means another invocation already owns the item.
func (e *Executor) complete(ctx context.Context, works []*work) error {
	var errs error
	for _, w := range works {
		item := w.item
		state := domain.ItemDone

		switch {
		case w.err != nil:
			state = domain.ItemFailed
			item.Error = w.err.Error()
		case w.story == nil:
			state = domain.ItemFailed
			item.Error = skippedBySource
		default:
			item.Title = w.story.Title
			item.URL = w.story.URL
			item.Author = w.story.Author
			item.Score = w.story.Score
			item.CommentCount = w.story.CommentCount
			if item.TranslatedTitle == "" && item.Summary == "" {
				state = domain.ItemFailed
				item.Error = noModelOutput
			}
		}

		ok, err := e.store.CompleteItem(ctx, item, state)
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("item %d: %w", item.Rank, err))
		case !ok:
			e.logger.Warn("item claim lost", "rank", item.Rank)
		}
	}
	return errs
}

func (e *Executor) call(kind PromptKind) batch.CallFunc {
	return func(ctx context.Context, texts []string) (string, error) {
		messages, err := e.prompts.Messages(kind, texts)
		if err != nil {
			return "", err
		}
		return e.chat.ChatComplete(ctx, messages, e.settings.Temperature)
	}
}

func (e *Executor) logReport(kind PromptKind, r batch.Report) {
	e.logger.Info("alignment pass",
		"prompt", kind.String(),
		"inputs", r.Inputs,
		"skipped", r.Skipped,
		"chunks", r.Chunks,
		"calls", r.Calls,
		"fallbacks", r.Fallbacks,
		"failed", len(r.Failed),
	)
}

// AggregateResults assembles every item of date in rank order and renders the document.
func (e *Executor) AggregateResults(ctx context.Context, date string) (domain.Digest, error) {
	items, err := e.store.ListItems(ctx, date)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("list items: %w", err)
	}

	digest := domain.Digest{Date: date, Entries: make([]domain.DigestEntry, 0, len(items))}
	for _, item := range items {
		digest.Entries = append(digest.Entries, domain.DigestEntry{
			Rank:            item.Rank,
			Title:           item.Title,
			TranslatedTitle: item.TranslatedTitle,
			URL:             item.URL,
			DiscussionURL:   item.Ref().DiscussionURL(),
			Author:          item.Author,
			Score:           item.Score,
			CommentCount:    item.CommentCount,
			Summary:         item.Summary,
			CommentDigest:   item.CommentDigest,
			Failed:          item.State != domain.ItemDone,
		})
	}
	digest.Document = RenderMarkdown(digest)
	return digest, nil
}

// PublishResults delivers the digest to every target that has not received it yet.
// Targets are independent; the combined error lists every failed one.
func (e *Executor) PublishResults(ctx context.Context, date string, digest domain.Digest) error {
	done, err := e.store.PublishedTargets(ctx, date)
	if err != nil {
		return fmt.Errorf("load publications: %w", err)
	}

	var errs error
	for _, p := range e.publishers {
		name := p.Name()
		if done[name] {
			e.logger.Debug("target already published", "target", name)
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, e.settings.PublishTimeout)
		err := p.Publish(pctx, digest.Document, date)
		cancel()
		if err != nil {
			e.logger.Warn("publish failed", "target", name, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("publish to %s: %w", name, err))
			continue
		}

		if err := e.store.MarkPublished(ctx, date, name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record %s publication: %w", name, err))
			continue
		}
		e.logger.Info("digest published", "target", name)
	}
	return errs
}
