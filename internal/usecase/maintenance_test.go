package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

func TestArchiveMovesOldPublishedTasks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0, 10)
	for range 3 {
		h.run(t)
	}
	require.Equal(t, domain.TaskPublished, h.task(t).Status)

	m := NewMaintenance(h.repo, time.UTC, nil)
	ctx := context.Background()

	n, err := m.Archive(ctx, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "task is younger than the cutoff")

	n, err = m.Archive(ctx, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.TaskArchived, h.task(t).Status)

	result := h.run(t)
	assert.False(t, result.Changed)
}

func TestStatusReportsCounts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 12, 10)
	h.run(t)
	h.run(t)

	m := NewMaintenance(h.repo, nil, nil)
	ctx := context.Background()

	one, err := m.Status(ctx, testDate, 0)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, domain.TaskProcessing, one[0].Task.Status)
	assert.Equal(t, domain.ItemCounts{Pending: 2, Done: 10}, one[0].Counts)

	all, err := m.Status(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = m.Status(ctx, "1999-01-01", 0)
	assert.Error(t, err)
}
