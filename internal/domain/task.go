package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout formats the work-date key of a task.
const DateLayout = "2006-01-02"

// TaskStatus enumerates the pipeline milestones of a daily task.
type TaskStatus string

const (
	TaskInit        TaskStatus = "INIT"
	TaskListFetched TaskStatus = "LIST_FETCHED"
	TaskProcessing  TaskStatus = "PROCESSING"
	TaskAggregating TaskStatus = "AGGREGATING"
	TaskPublished   TaskStatus = "PUBLISHED"
	TaskArchived    TaskStatus = "ARCHIVED"
)

var (
	// ErrUnknownTaskStatus is returned when a persisted status is outside the known set.
	ErrUnknownTaskStatus = errors.New("unknown task status")
	// ErrInvalidTransition is returned for a status change the state machine never performs.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// ParseTaskStatus validates a stored status value.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskStatus, raw)
	}
	return status, nil
}

// IsValid reports whether the status belongs to the closed set.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskInit, TaskListFetched, TaskProcessing, TaskAggregating, TaskPublished, TaskArchived:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic processing follows this status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskPublished || s == TaskArchived
}

func (s TaskStatus) String() string { return string(s) }

var transitions = map[TaskStatus][]TaskStatus{
	TaskInit:        {TaskListFetched},
	TaskListFetched: {TaskProcessing, TaskAggregating},
	TaskProcessing:  {TaskProcessing, TaskAggregating},
	TaskAggregating: {TaskPublished},
	TaskPublished:   {TaskArchived},
}

// CanTransition reports whether from -> to is an edge of the task lifecycle.
// PROCESSING -> PROCESSING is allowed so counters can be refreshed in place.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Counters are the item totals persisted on a task.
type Counters struct {
	Total     int
	Completed int
	Failed    int
}

// Valid checks the counter invariant completed + failed <= total.
func (c Counters) Valid() bool {
	return c.Total >= 0 && c.Completed >= 0 && c.Failed >= 0 && c.Completed+c.Failed <= c.Total
}

// Task tracks one work-date from candidate list to publication.
type Task struct {
	Date           string
	Status         TaskStatus
	TotalItems     int
	CompletedItems int
	FailedItems    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Counters returns the task totals.
func (t Task) Counters() Counters {
	return Counters{Total: t.TotalItems, Completed: t.CompletedItems, Failed: t.FailedItems}
}

// DateKey formats a moment as a work-date in the given location.
func DateKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}
