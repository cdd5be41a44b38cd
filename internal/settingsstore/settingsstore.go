// Package settingsstore resolves runtime-editable settings. A value stored in
// the settings table overrides the one loaded from the environment, so an
// administrator can change the reconciliation schedule without a restart.
package settingsstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database/settings"
	"github.com/mrlokans/librarian/internal/entities"
)

// Priority: database > environment
type SettingsStore struct {
	repo     *settings.Repository
	defaults config.Reconcile
}

const (
	SourceDatabase    = "database"
	SourceEnvironment = "environment"
)

// Reconcile run outcomes
const (
	StatusSuccess = "success"
	StatusDrift   = "drift"
	StatusFailed  = "failed"
)

var ErrInvalidSchedule = errors.New("invalid cron schedule")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func New(repo *settings.Repository, defaults config.Reconcile) *SettingsStore {
	return &SettingsStore{repo: repo, defaults: defaults}
}

// ReconcileConfig is the effective reconciliation configuration.
type ReconcileConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Fix      bool   `json:"fix"`
}

// ReconcileConfigInfo includes where each value came from.
type ReconcileConfigInfo struct {
	Enabled       bool   `json:"enabled"`
	EnabledSource string `json:"enabled_source"`

	Schedule            string     `json:"schedule"`
	ScheduleSource      string     `json:"schedule_source"`
	ScheduleDescription string     `json:"schedule_description"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`

	Fix       bool   `json:"fix"`
	FixSource string `json:"fix_source"`
}

// ReconcileStatus describes the last reconciliation run.
type ReconcileStatus struct {
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Status    string     `json:"status,omitempty"`  // success, drift, failed
	Message   string     `json:"message,omitempty"` // Error or summary
	Drifted   int        `json:"drifted"`
}

// ReconcileConfigUpdate carries the fields an administrator wants to override.
// Nil fields are left alone.
type ReconcileConfigUpdate struct {
	Enabled  *bool   `json:"enabled"`
	Schedule *string `json:"schedule"`
	Fix      *bool   `json:"fix"`
}

func (s *SettingsStore) overrides(ctx context.Context) map[string]string {
	values, err := s.repo.GetValues(ctx,
		entities.SettingKeyReconcileEnabled,
		entities.SettingKeyReconcileSchedule,
		entities.SettingKeyReconcileFix,
	)
	if err != nil {
		return map[string]string{}
	}
	return values
}

// GetReconcileConfig returns the effective configuration.
func (s *SettingsStore) GetReconcileConfig(ctx context.Context) ReconcileConfig {
	info := s.GetReconcileConfigInfo(ctx)
	return ReconcileConfig{
		Enabled:  info.Enabled,
		Schedule: info.Schedule,
		Fix:      info.Fix,
	}
}

// GetReconcileConfigInfo returns the configuration with source information.
func (s *SettingsStore) GetReconcileConfigInfo(ctx context.Context) ReconcileConfigInfo {
	values := s.overrides(ctx)

	info := ReconcileConfigInfo{
		Enabled:        s.defaults.Enabled,
		EnabledSource:  SourceEnvironment,
		Schedule:       s.defaults.Schedule,
		ScheduleSource: SourceEnvironment,
		Fix:            s.defaults.Fix,
		FixSource:      SourceEnvironment,
	}

	if v, ok := values[entities.SettingKeyReconcileEnabled]; ok && v != "" {
		info.Enabled = parseBool(v)
		info.EnabledSource = SourceDatabase
	}
	if v, ok := values[entities.SettingKeyReconcileSchedule]; ok && v != "" {
		info.Schedule = v
		info.ScheduleSource = SourceDatabase
	}
	if v, ok := values[entities.SettingKeyReconcileFix]; ok && v != "" {
		info.Fix = parseBool(v)
		info.FixSource = SourceDatabase
	}

	info.ScheduleDescription = GetCronDescription(info.Schedule)
	if next, err := GetNextRunTime(info.Schedule); err == nil {
		info.NextRunAt = next
	}
	return info
}

// UpdateReconcileConfig stores the given overrides. The schedule is validated
// before anything is written.
func (s *SettingsStore) UpdateReconcileConfig(ctx context.Context, update ReconcileConfigUpdate) error {
	values := map[string]string{}
	if update.Schedule != nil {
		if err := ValidateCronSchedule(*update.Schedule); err != nil {
			return err
		}
		values[entities.SettingKeyReconcileSchedule] = *update.Schedule
	}
	if update.Enabled != nil {
		values[entities.SettingKeyReconcileEnabled] = strconv.FormatBool(*update.Enabled)
	}
	if update.Fix != nil {
		values[entities.SettingKeyReconcileFix] = strconv.FormatBool(*update.Fix)
	}
	if len(values) == 0 {
		return nil
	}
	return s.repo.SetMany(ctx, values)
}

// ClearReconcileSettings drops all database overrides, reverting to the environment.
func (s *SettingsStore) ClearReconcileSettings(ctx context.Context) error {
	keys := []string{
		entities.SettingKeyReconcileEnabled,
		entities.SettingKeyReconcileSchedule,
		entities.SettingKeyReconcileFix,
	}
	for _, key := range keys {
		if err := s.repo.DeleteSetting(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// GetReconcileStatus returns the outcome of the last run.
func (s *SettingsStore) GetReconcileStatus(ctx context.Context) (ReconcileStatus, error) {
	values, err := s.repo.GetValues(ctx,
		entities.SettingKeyReconcileLastAt,
		entities.SettingKeyReconcileLastStatus,
		entities.SettingKeyReconcileLastMessage,
		entities.SettingKeyReconcileLastDrift,
	)
	if err != nil {
		return ReconcileStatus{}, err
	}

	status := ReconcileStatus{
		Status:  values[entities.SettingKeyReconcileLastStatus],
		Message: values[entities.SettingKeyReconcileLastMessage],
	}
	if v := values[entities.SettingKeyReconcileLastAt]; v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			status.LastRunAt = &ts
		}
	}
	if v := values[entities.SettingKeyReconcileLastDrift]; v != "" {
		status.Drifted, _ = strconv.Atoi(v)
	}
	return status, nil
}

// SetReconcileStatus records the outcome of a run.
func (s *SettingsStore) SetReconcileStatus(ctx context.Context, status, message string, drifted int) error {
	return s.repo.SetMany(ctx, map[string]string{
		entities.SettingKeyReconcileLastAt:      time.Now().UTC().Format(time.RFC3339),
		entities.SettingKeyReconcileLastStatus:  status,
		entities.SettingKeyReconcileLastMessage: message,
		entities.SettingKeyReconcileLastDrift:   strconv.Itoa(drifted),
	})
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// ValidateCronSchedule validates a five-field cron schedule string.
func ValidateCronSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}
	return nil
}

// GetCronDescription returns a human-readable description of a cron schedule
func GetCronDescription(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "*/15 * * * *":
		return "Every 15 minutes"
	case "*/30 * * * *":
		return "Every 30 minutes"
	case "0 */6 * * *":
		return "Every 6 hours"
	case "0 0 * * *":
		return "Daily at midnight"
	case "0 3 * * *":
		return "Daily at 03:00"
	case "0 0 * * 0":
		return "Weekly on Sunday at midnight"
	default:
		return "Custom schedule: " + schedule
	}
}

// GetNextRunTime calculates when a schedule fires next.
func GetNextRunTime(schedule string) (*time.Time, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(time.Now())
	return &next, nil
}
