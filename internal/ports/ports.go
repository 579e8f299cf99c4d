package ports

import (
	"context"
	"time"

	"NewsDigest/internal/domain"
)

// StorySource pulls the daily candidate list and per-story details from upstream providers.
type StorySource interface {
	FetchCandidateList(ctx context.Context, day time.Time) ([]domain.StoryRef, error)
	// FetchItemDetail returns nil when the story should be skipped (dead, deleted, missing).
	FetchItemDetail(ctx context.Context, ref domain.StoryRef) (*domain.Story, error)
}

// ContentExtractor turns an article URL into readable text.
type ContentExtractor interface {
	ExtractContent(ctx context.Context, url string) (string, bool)
}

// ChatCompleter sends a conversation to a language model and returns the reply text.
type ChatCompleter interface {
	ChatComplete(ctx context.Context, messages []domain.Message, temperature float64) (string, error)
}

// Publisher delivers the rendered digest to one target (Telegram, GitHub, ...).
type Publisher interface {
	Name() string
	Publish(ctx context.Context, document, dateKey string) error
}

// TaskStore owns the durable state of tasks and their items.
type TaskStore interface {
	GetOrCreateTask(ctx context.Context, date string) (domain.Task, error)
	GetTask(ctx context.Context, date string) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, date string, from, to domain.TaskStatus, counters *domain.Counters) (bool, error)
	ListTasks(ctx context.Context, limit int) ([]domain.Task, error)

	SeedItems(ctx context.Context, date string, refs []domain.StoryRef) (int, error)
	ClaimPendingItems(ctx context.Context, date, owner string, limit int) ([]domain.Item, error)
	CompleteItem(ctx context.Context, item domain.Item, state domain.ItemState) (bool, error)
	FailStaleClaims(ctx context.Context, date string, olderThan time.Duration) (int, error)
	CountItems(ctx context.Context, date string) (domain.ItemCounts, error)
	ListItems(ctx context.Context, date string) ([]domain.Item, error)

	PublishedTargets(ctx context.Context, date string) (map[string]bool, error)
	MarkPublished(ctx context.Context, date, target string) error
	AcquirePublishLease(ctx context.Context, date, owner string, ttl time.Duration) (bool, error)
	ReleasePublishLease(ctx context.Context, date, owner string) error

	ArchivePublishedBefore(ctx context.Context, date string) (int, error)
}

// Scheduler controls when invocations run. Start runs job on the primary schedule;
// Schedule registers additional jobs and must be called before Start.
type Scheduler interface {
	Schedule(spec string, job func(time.Time)) error
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
