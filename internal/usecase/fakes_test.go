package usecase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/ports"
	"NewsDigest/pkg/logger"
)

const testDate = "2024-03-01"

type fakeSource struct {
	mu      sync.Mutex
	refs    []domain.StoryRef
	missing map[string]bool
	listErr error
	lists   int
}

func newFakeSource(n int) *fakeSource {
	refs := make([]domain.StoryRef, n)
	for i := range refs {
		refs[i] = domain.StoryRef{Source: "hackernews", ID: fmt.Sprint(1000 + i)}
	}
	return &fakeSource{refs: refs, missing: map[string]bool{}}
}

func (s *fakeSource) FetchCandidateList(context.Context, time.Time) ([]domain.StoryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.refs, nil
}

func (s *fakeSource) FetchItemDetail(_ context.Context, ref domain.StoryRef) (*domain.Story, error) {
	if s.missing[ref.ID] {
		return nil, nil
	}
	return &domain.Story{
		Ref:          ref,
		Title:        "Story " + ref.ID,
		URL:          "https://example.com/" + ref.ID,
		Author:       "pg",
		Score:        100,
		CommentCount: 2,
		Comments:     []string{"first comment", "second comment"},
	}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractContent(_ context.Context, url string) (string, bool) {
	return "body of " + url, true
}

// fakeChat answers every element with "zh: <input>".
type fakeChat struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeChat) ChatComplete(_ context.Context, messages []domain.Message, _ float64) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}

	var texts []string
	if err := json.Unmarshal([]byte(messages[len(messages)-1].Content), &texts); err != nil {
		return "", err
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = "zh: " + text
	}
	raw, err := json.Marshal(out)
	return string(raw), err
}

type recordingPublisher struct {
	name string

	mu       sync.Mutex
	calls    int
	docs     []string
	failures int
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, document, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("target unavailable")
	}
	p.docs = append(p.docs, document)
	return nil
}

func (p *recordingPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type harness struct {
	repo    *storage.SQLRepository
	db      *sql.DB
	source  *fakeSource
	chat    *fakeChat
	exec    *Executor
	machine *StateMachine

	batchSize  int
	publishers []ports.Publisher
}

func newHarness(t *testing.T, items, batchSize int, publishers ...*recordingPublisher) *harness {
	t.Helper()

	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "digest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	discard := slog.New(slog.DiscardHandler)
	require.NoError(t, storage.Migrate(ctx, db, storage.DriverSQLite, logger.New(discard, "migrations")))

	h := &harness{
		repo:       storage.NewSQLRepository(db, storage.DriverSQLite),
		db:         db,
		source:     newFakeSource(items),
		chat:       &fakeChat{},
		batchSize:  batchSize,
		publishers: make([]ports.Publisher, len(publishers)),
	}
	for i, p := range publishers {
		h.publishers[i] = p
	}
	h.wire(t, h.repo)
	return h
}

// wire rebuilds the executor and state machine on top of store.
func (h *harness) wire(t *testing.T, store ports.TaskStore) {
	t.Helper()

	prompts, err := NewPrompts("zh-Hans")
	require.NoError(t, err)

	h.exec = NewExecutor(ExecutorDeps{
		Store:      store,
		Source:     h.source,
		Extractor:  fakeExtractor{},
		Chat:       h.chat,
		Publishers: h.publishers,
		Prompts:    prompts,
		Settings:   Settings{Concurrency: 4, AlignBatchSize: 10, ClaimLease: time.Hour},
	})
	h.machine = NewStateMachine(store, h.exec, time.UTC, h.batchSize, time.Minute, nil)
}

// failingCompletes breaks item completion and passes everything else through.
type failingCompletes struct {
	ports.TaskStore
	err error
}

func (s failingCompletes) CompleteItem(context.Context, domain.Item, domain.ItemState) (bool, error) {
	return false, s.err
}

func (h *harness) run(t *testing.T) StepResult {
	t.Helper()
	result, err := h.machine.Run(context.Background(), testDate)
	require.NoError(t, err)
	return result
}

func (h *harness) task(t *testing.T) domain.Task {
	t.Helper()
	task, err := h.repo.GetTask(context.Background(), testDate)
	require.NoError(t, err)
	return task
}
