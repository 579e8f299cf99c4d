package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

type manualDriver struct {
	jobs    map[string]func(time.Time)
	primary func(time.Time)
	stopped bool
}

func (d *manualDriver) Schedule(spec string, job func(time.Time)) error {
	if d.jobs == nil {
		d.jobs = map[string]func(time.Time){}
	}
	d.jobs[spec] = job
	return nil
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.primary = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerDrivesStateMachineAndArchival(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0, 10)
	driver := &manualDriver{}
	s := NewScheduler(driver, h.machine, NewMaintenance(h.repo, time.UTC, nil), "30 3 * * *", 24*time.Hour, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.primary)
	require.Contains(t, driver.jobs, "30 3 * * *")

	tick := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for range 3 {
		driver.primary(tick)
	}
	assert.Equal(t, domain.TaskPublished, h.task(t).Status)

	driver.jobs["30 3 * * *"](tick.Add(72 * time.Hour))
	assert.Equal(t, domain.TaskArchived, h.task(t).Status)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutArchival(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0, 10)
	driver := &manualDriver{}
	s := NewScheduler(driver, h.machine, nil, "", 0, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, driver.jobs)
	assert.NotNil(t, driver.primary)
}
