package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"INIT", "LIST_FETCHED", "PROCESSING", "AGGREGATING", "PUBLISHED", "ARCHIVED"} {
		status, err := ParseTaskStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, status.String())
	}

	for _, raw := range []string{"", "init", "UNKNOWN", "DONE"} {
		_, err := ParseTaskStatus(raw)
		assert.ErrorIs(t, err, ErrUnknownTaskStatus, "status %q", raw)
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := [][2]TaskStatus{
		{TaskInit, TaskListFetched},
		{TaskListFetched, TaskProcessing},
		{TaskListFetched, TaskAggregating},
		{TaskProcessing, TaskProcessing},
		{TaskProcessing, TaskAggregating},
		{TaskAggregating, TaskPublished},
		{TaskPublished, TaskArchived},
	}
	for _, edge := range allowed {
		assert.True(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	denied := [][2]TaskStatus{
		{TaskInit, TaskProcessing},
		{TaskProcessing, TaskListFetched},
		{TaskAggregating, TaskProcessing},
		{TaskPublished, TaskAggregating},
		{TaskArchived, TaskInit},
		{TaskAggregating, TaskAggregating},
	}
	for _, edge := range denied {
		assert.False(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestTerminalStatuses(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskPublished.IsTerminal())
	assert.True(t, TaskArchived.IsTerminal())
	assert.False(t, TaskAggregating.IsTerminal())
}

func TestCountersValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Counters{Total: 30, Completed: 28, Failed: 2}.Valid())
	assert.True(t, Counters{}.Valid())
	assert.False(t, Counters{Total: 30, Completed: 29, Failed: 2}.Valid())
	assert.False(t, Counters{Total: 1, Completed: -1}.Valid())
}

func TestDateKeyUsesLocation(t *testing.T) {
	t.Parallel()

	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01", DateKey(now, nil))
	assert.Equal(t, "2024-03-02", DateKey(now, shanghai))
}

func TestItemStatesOnlyMoveForward(t *testing.T) {
	t.Parallel()

	states := []ItemState{ItemPending, ItemInProgress, ItemDone, ItemFailed}
	order := map[ItemState]int{ItemPending: 0, ItemInProgress: 1, ItemDone: 2, ItemFailed: 2}

	for _, from := range states {
		for _, to := range states {
			if from.CanAdvance(to) {
				assert.Greater(t, order[to], order[from], "%s -> %s", from, to)
			}
		}
		if from.IsFinal() {
			for _, to := range states {
				assert.False(t, from.CanAdvance(to), "%s is final", from)
			}
		}
	}
}

func TestStoryRefDiscussionURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://news.ycombinator.com/item?id=42", StoryRef{Source: "hackernews", ID: "42"}.DiscussionURL())
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", StoryRef{Source: "arxiv", ID: "2401.00001"}.DiscussionURL())
	assert.Empty(t, StoryRef{Source: "other", ID: "1"}.DiscussionURL())
	assert.Equal(t, "hackernews:42", StoryRef{Source: "hackernews", ID: "42"}.String())
}
