package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRunsPrimaryJobOnStart(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("0 0 1 1 *", time.UTC, true, slog.New(slog.DiscardHandler))
	fired := make(chan time.Time, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, func(at time.Time) { fired <- at }))

	select {
	case at := <-fired:
		assert.Equal(t, time.UTC, at.Location())
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduleRejectsBadExpressions(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("*/10 * * * *", nil, false, nil)
	assert.Error(t, s.Schedule("not a cron", func(time.Time) {}))
	require.NoError(t, s.Schedule("30 3 * * *", func(time.Time) {}))

	bad := NewCronScheduler("every tuesday", nil, false, nil)
	assert.Error(t, bad.Start(context.Background(), func(time.Time) {}))
}

func TestScheduleAfterStartFails(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("*/10 * * * *", nil, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	defer func() { _ = s.Stop(context.Background()) }()

	assert.ErrorContains(t, s.Schedule("30 3 * * *", func(time.Time) {}), "already started")
}

func TestNextUsesLocation(t *testing.T) {
	t.Parallel()

	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	s := NewCronScheduler("0 8 * * *", shanghai, false, nil)
	next, err := s.Next(time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)), "got %s", next)
}
