package domain

import "time"

// ItemState is the processing state of a single story within a task.
type ItemState string

const (
	ItemPending    ItemState = "pending"
	ItemInProgress ItemState = "in_progress"
	ItemDone       ItemState = "done"
	ItemFailed     ItemState = "failed"
)

// IsFinal reports whether the item can no longer change.
func (s ItemState) IsFinal() bool {
	return s == ItemDone || s == ItemFailed
}

// CanAdvance enforces pending -> in_progress -> {done, failed}.
func (s ItemState) CanAdvance(next ItemState) bool {
	switch s {
	case ItemPending:
		return next == ItemInProgress
	case ItemInProgress:
		return next == ItemDone || next == ItemFailed
	}
	return false
}

// Item is one story carried through fetch, translation and aggregation.
type Item struct {
	Date       string
	Rank       int
	Source     string
	ExternalID string
	State      ItemState
	ClaimedBy  string
	ClaimedAt  *time.Time

	Title           string
	URL             string
	Author          string
	Score           int
	CommentCount    int
	TranslatedTitle string
	Summary         string
	CommentDigest   string
	Error           string
}

// Ref returns the source reference of the item.
func (i Item) Ref() StoryRef {
	return StoryRef{Source: i.Source, ID: i.ExternalID}
}

// ItemCounts groups the items of a task by state.
type ItemCounts struct {
	Pending    int
	InProgress int
	Done       int
	Failed     int
}

// Total sums all states.
func (c ItemCounts) Total() int {
	return c.Pending + c.InProgress + c.Done + c.Failed
}

// Remaining is the number of items not yet finished.
func (c ItemCounts) Remaining() int {
	return c.Pending + c.InProgress
}
