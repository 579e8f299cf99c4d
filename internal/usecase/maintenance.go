package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Maintenance archives old published tasks.
type Maintenance struct {
	store  ports.TaskStore
	loc    *time.Location
	logger *slog.Logger
}

func NewMaintenance(store ports.TaskStore, loc *time.Location, logger *slog.Logger) *Maintenance {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Maintenance{store: store, loc: loc, logger: logger}
}

// Archive moves PUBLISHED tasks whose work-date is older than olderThan before now to ARCHIVED.
func (m *Maintenance) Archive(ctx context.Context, now time.Time, olderThan time.Duration) (int, error) {
	cutoff := domain.DateKey(now.Add(-olderThan), m.loc)
	n, err := m.store.ArchivePublishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive before %s: %w", cutoff, err)
	}
	if n > 0 {
		m.logger.Info("tasks archived", "count", n, "before", cutoff)
	}
	return n, nil
}

// TaskStatus pairs a task with its live item counts.
type TaskStatus struct {
	Task   domain.Task
	Counts domain.ItemCounts
}

// Status reports the task of date, or the latest limit tasks when date is empty.
func (m *Maintenance) Status(ctx context.Context, date string, limit int) ([]TaskStatus, error) {
	var tasks []domain.Task
	if date != "" {
		task, err := m.store.GetTask(ctx, date)
		if err != nil {
			return nil, err
		}
		tasks = []domain.Task{task}
	} else {
		var err error
		tasks, err = m.store.ListTasks(ctx, limit)
		if err != nil {
			return nil, err
		}
	}

	out := make([]TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		counts, err := m.store.CountItems(ctx, task.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, TaskStatus{Task: task, Counts: counts})
	}
	return out, nil
}
