package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_RejectsInvalidSpec(t *testing.T) {
	svc := &MaintenanceService{Logger: discardLogger()}

	_, err := NewScheduler(svc, Schedules{SweepResults: "every five minutes"}, discardLogger())
	assert.ErrorContains(t, err, "invalid schedule")

	_, err = NewScheduler(nil, Schedules{}, discardLogger())
	assert.Error(t, err)
}

func TestNewScheduler_SkipsEmptySpecs(t *testing.T) {
	s, err := NewScheduler(&MaintenanceService{}, Schedules{PurgeArchive: "@daily"}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, s.entries)
}

func TestScheduler_RunsSweep(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	sweeper := &fakeSweeper{}
	svc := &MaintenanceService{Results: sweeper, Logger: discardLogger()}

	s, err := NewScheduler(svc, Schedules{SweepResults: "@every 1s"}, discardLogger())
	require.NoError(t, err)
	s.Start()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
