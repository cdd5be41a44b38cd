package settingsstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/database/settings"
)

func setupStore(t *testing.T) *SettingsStore {
	t.Helper()
	repo := settings.NewRepository(dbtest.OpenGorm(t))
	return New(repo, config.Reconcile{Enabled: true, Schedule: "0 3 * * *", Fix: false})
}

func TestGetReconcileConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to environment", func(t *testing.T) {
		store := setupStore(t)

		info := store.GetReconcileConfigInfo(ctx)
		assert.True(t, info.Enabled)
		assert.Equal(t, SourceEnvironment, info.EnabledSource)
		assert.Equal(t, "0 3 * * *", info.Schedule)
		assert.Equal(t, SourceEnvironment, info.ScheduleSource)
		assert.Equal(t, "Daily at 03:00", info.ScheduleDescription)
		assert.False(t, info.Fix)
		require.NotNil(t, info.NextRunAt)
		assert.True(t, info.NextRunAt.After(time.Now()))
	})

	t.Run("database overrides environment", func(t *testing.T) {
		store := setupStore(t)
		disabled, schedule, fix := false, "*/15 * * * *", true

		require.NoError(t, store.UpdateReconcileConfig(ctx, ReconcileConfigUpdate{
			Enabled:  &disabled,
			Schedule: &schedule,
			Fix:      &fix,
		}))

		info := store.GetReconcileConfigInfo(ctx)
		assert.False(t, info.Enabled)
		assert.Equal(t, SourceDatabase, info.EnabledSource)
		assert.Equal(t, "*/15 * * * *", info.Schedule)
		assert.Equal(t, SourceDatabase, info.ScheduleSource)
		assert.True(t, info.Fix)
		assert.Equal(t, SourceDatabase, info.FixSource)

		assert.Equal(t, ReconcileConfig{Enabled: false, Schedule: "*/15 * * * *", Fix: true}, store.GetReconcileConfig(ctx))
	})

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		store := setupStore(t)
		fix := true

		require.NoError(t, store.UpdateReconcileConfig(ctx, ReconcileConfigUpdate{Fix: &fix}))

		info := store.GetReconcileConfigInfo(ctx)
		assert.Equal(t, SourceEnvironment, info.ScheduleSource)
		assert.Equal(t, SourceDatabase, info.FixSource)
	})

	t.Run("invalid schedule is rejected before writing", func(t *testing.T) {
		store := setupStore(t)
		bad := "every day"
		fix := true

		err := store.UpdateReconcileConfig(ctx, ReconcileConfigUpdate{Schedule: &bad, Fix: &fix})
		assert.True(t, errors.Is(err, ErrInvalidSchedule))
		assert.Equal(t, SourceEnvironment, store.GetReconcileConfigInfo(ctx).FixSource)
	})

	t.Run("clear reverts to environment", func(t *testing.T) {
		store := setupStore(t)
		schedule := "0 0 * * *"
		require.NoError(t, store.UpdateReconcileConfig(ctx, ReconcileConfigUpdate{Schedule: &schedule}))

		require.NoError(t, store.ClearReconcileSettings(ctx))
		assert.Equal(t, "0 3 * * *", store.GetReconcileConfig(ctx).Schedule)
	})
}

func TestReconcileStatus(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	status, err := store.GetReconcileStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LastRunAt)
	assert.Empty(t, status.Status)

	require.NoError(t, store.SetReconcileStatus(ctx, StatusDrift, "2 books drifted", 2))

	status, err = store.GetReconcileStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastRunAt)
	assert.WithinDuration(t, time.Now(), *status.LastRunAt, time.Minute)
	assert.Equal(t, StatusDrift, status.Status)
	assert.Equal(t, "2 books drifted", status.Message)
	assert.Equal(t, 2, status.Drifted)

	// A later run replaces the previous outcome
	require.NoError(t, store.SetReconcileStatus(ctx, StatusSuccess, "no drift", 0))
	status, err = store.GetReconcileStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status.Status)
	assert.Equal(t, 0, status.Drifted)
}

func TestValidateCronSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"0 * * * *", true},    // Every hour
		{"*/15 * * * *", true}, // Every 15 minutes
		{"0 3 * * *", true},    // Daily at 03:00
		{"0 0 * * 0", true},    // Weekly on Sunday
		{"invalid", false},
		{"* * * *", false},    // Missing field
		{"60 * * * *", false}, // Invalid minute
		{"0 25 * * *", false}, // Invalid hour
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateCronSchedule(tt.schedule)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			}
		})
	}
}

func TestGetCronDescription(t *testing.T) {
	tests := []struct {
		schedule    string
		description string
	}{
		{"0 * * * *", "Every hour at :00"},
		{"*/15 * * * *", "Every 15 minutes"},
		{"0 3 * * *", "Daily at 03:00"},
		{"0 0 * * 0", "Weekly on Sunday at midnight"},
		{"5 4 * * *", "Custom schedule: 5 4 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			assert.Equal(t, tt.description, GetCronDescription(tt.schedule))
		})
	}
}

func TestGetNextRunTime(t *testing.T) {
	next, err := GetNextRunTime("0 * * * *")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))

	_, err = GetNextRunTime("invalid")
	assert.Error(t, err)
}
