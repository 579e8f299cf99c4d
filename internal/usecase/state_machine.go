package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// StepResult describes what one invocation did to the task of a date.
type StepResult struct {
	RunID    string
	Date     string
	From     domain.TaskStatus
	To       domain.TaskStatus
	Changed  bool
	Progress BatchProgress
}

// StateMachine advances the task of the current work-date by one bounded step per call.
// It keeps no state between calls; everything lives in the store.
type StateMachine struct {
	store        ports.TaskStore
	executor     *Executor
	loc          *time.Location
	batchSize    int
	publishLease time.Duration
	logger       *slog.Logger
	newRunID     func() string
}

// NewStateMachine wires the executor to the store; loc decides the work-date.
func NewStateMachine(store ports.TaskStore, executor *Executor, loc *time.Location, batchSize int, publishLease time.Duration, logger *slog.Logger) *StateMachine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if publishLease <= 0 {
		publishLease = 5 * time.Minute
	}
	return &StateMachine{
		store:        store,
		executor:     executor,
		loc:          loc,
		batchSize:    batchSize,
		publishLease: publishLease,
		logger:       logger,
		newRunID:     uuid.NewString,
	}
}

// DateKey returns the work-date of now.
func (m *StateMachine) DateKey(now time.Time) string {
	return domain.DateKey(now, m.loc)
}

// RunOnce performs the next step for the work-date of now.
func (m *StateMachine) RunOnce(ctx context.Context, now time.Time) (StepResult, error) {
	return m.Run(ctx, m.DateKey(now))
}

// Run performs the next step for date.
func (m *StateMachine) Run(ctx context.Context, date string) (StepResult, error) {
	runID := m.newRunID()
	logger := m.logger.With("run_id", runID, "date", date)
	exec := m.executor.WithRun(runID, logger)

	task, err := m.store.GetOrCreateTask(ctx, date)
	if err != nil {
		return StepResult{RunID: runID, Date: date}, fmt.Errorf("load task %s: %w", date, err)
	}

	result := StepResult{RunID: runID, Date: date, From: task.Status, To: task.Status}
	logger.Debug("step started", "status", task.Status)

	switch task.Status {
	case domain.TaskInit:
		err = m.initialize(ctx, exec, logger, &result)
	case domain.TaskListFetched, domain.TaskProcessing:
		err = m.process(ctx, exec, logger, task, &result)
	case domain.TaskAggregating:
		err = m.publish(ctx, exec, logger, &result)
	case domain.TaskPublished, domain.TaskArchived:
		logger.Debug("task finished, nothing to do", "status", task.Status)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownTaskStatus, task.Status)
	}
	if err != nil {
		return result, fmt.Errorf("run task %s: %w", date, err)
	}

	if result.Changed {
		logger.Info("task advanced", "from", result.From, "to", result.To)
	}
	return result, nil
}

func (m *StateMachine) initialize(ctx context.Context, exec *Executor, logger *slog.Logger, result *StepResult) error {
	total, err := exec.InitializeTask(ctx, result.Date)
	if errors.Is(err, ErrSourceUnavailable) {
		logger.Warn("candidate list unavailable, will retry", "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	return m.advance(ctx, result, domain.TaskListFetched, &domain.Counters{Total: total})
}

func (m *StateMachine) process(ctx context.Context, exec *Executor, logger *slog.Logger, task domain.Task, result *StepResult) error {
	if task.Status == domain.TaskListFetched && task.TotalItems == 0 {
		if err := m.advance(ctx, result, domain.TaskAggregating, &domain.Counters{}); err != nil {
			return err
		}
		if result.To == domain.TaskAggregating {
			return m.publish(ctx, exec, logger, result)
		}
		return nil
	}

	progress, err := exec.ProcessNextBatch(ctx, result.Date, m.batchSize)
	if err != nil {
		return err
	}
	result.Progress = progress
	logger.Info("batch processed",
		"processed", progress.Processed,
		"pending", progress.Pending,
		"processing", progress.Processing,
		"done", progress.Done,
		"failed", progress.Failed,
	)

	next := domain.TaskProcessing
	if progress.Remaining() == 0 {
		next = domain.TaskAggregating
	}
	counters := &domain.Counters{
		Total:     max(task.TotalItems, progress.Total()),
		Completed: progress.Done,
		Failed:    progress.Failed,
	}
	if err := m.advance(ctx, result, next, counters); err != nil {
		return err
	}

	// nothing was claimed, so the remaining budget goes to publishing
	if result.To == domain.TaskAggregating && progress.Processed == 0 {
		return m.publish(ctx, exec, logger, result)
	}
	return nil
}

// publish runs the AGGREGATING step under the publish lease. A caller that cannot get
// the lease, or finds the task already moved on, leaves without error.
func (m *StateMachine) publish(ctx context.Context, exec *Executor, logger *slog.Logger, result *StepResult) error {
	acquired, err := m.store.AcquirePublishLease(ctx, result.Date, result.RunID, m.publishLease)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("publish lease held by another run")
		return nil
	}
	defer func() {
		if err := m.store.ReleasePublishLease(context.WithoutCancel(ctx), result.Date, result.RunID); err != nil {
			logger.Warn("release publish lease", "error", err)
		}
	}()

	task, err := m.store.GetTask(ctx, result.Date)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskAggregating {
		logger.Info("task already left aggregation", "status", task.Status)
		return nil
	}

	digest, err := exec.AggregateResults(ctx, result.Date)
	if err != nil {
		return err
	}
	if err := exec.PublishResults(ctx, result.Date, digest); err != nil {
		logger.Warn("publish incomplete, staying in aggregation", "error", err)
		return nil
	}

	return m.advance(ctx, result, domain.TaskPublished, nil)
}

// advance writes result.To -> to conditionally and records whether this run won.
func (m *StateMachine) advance(ctx context.Context, result *StepResult, to domain.TaskStatus, counters *domain.Counters) error {
	from := result.To
	ok, err := m.store.UpdateTaskStatus(ctx, result.Date, from, to, counters)
	if err != nil {
		return err
	}
	if ok {
		result.To = to
		if to != from {
			result.Changed = true
		}
	}
	return nil
}
