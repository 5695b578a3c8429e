package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunJob(t *testing.T) {
	t.Parallel()
	j := NewJobManager(slog.Default())

	calls := 0
	require.NoError(t, j.Cron("0 9 * * MON", "announcements", func(ctx context.Context) error {
		calls++
		return nil
	}, false))
	assert.True(t, j.HasJob("announcements"))

	j.RunJob(context.Background(), "announcements")
	j.RunJob(context.Background(), "announcements")
	assert.Equal(t, 2, calls)
}

func TestRunJobRecoversPanicsAndErrors(t *testing.T) {
	t.Parallel()
	j := NewJobManager(slog.Default())

	require.NoError(t, j.Cron("* * * * *", "panics", func(ctx context.Context) error {
		panic("boom")
	}, false))
	require.NoError(t, j.Cron("* * * * *", "fails", func(ctx context.Context) error {
		return errors.New("failed")
	}, false))

	assert.NotPanics(t, func() {
		j.RunJob(context.Background(), "panics")
		j.RunJob(context.Background(), "fails")
		j.RunJob(context.Background(), "unknown")
	})
	assert.False(t, j.HasJob("unknown"))
}

func TestCronRejectsInvalidExpression(t *testing.T) {
	t.Parallel()
	j := NewJobManager(slog.Default())

	err := j.Cron("not a cron", "announcements", func(ctx context.Context) error { return nil }, true)
	assert.Error(t, err)
}

func TestCronSchedulesEnabledJob(t *testing.T) {
	t.Parallel()
	j := NewJobManager(slog.Default())

	require.NoError(t, j.Cron("0 9 * * MON", "announcements", func(ctx context.Context) error { return nil }, true))
	assert.Len(t, j.scheduler.Jobs(), 1)
	require.NoError(t, j.Cron("0 9 * * MON", "backup", func(ctx context.Context) error { return nil }, false))
	assert.Len(t, j.scheduler.Jobs(), 1)
}
