// Package scheduler triggers periodic maintenance: inventory reconciliation on
// the configured cron schedule and a daily sweep of expired audit events.
// When a task queue is available jobs are enqueued there, otherwise they run
// in the scheduler's goroutine.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/settingsstore"
	"github.com/mrlokans/librarian/internal/tasks"
)

// AuditCleanupSchedule runs the audit sweep daily at 04:00, after the default
// reconciliation slot.
const AuditCleanupSchedule = "0 4 * * *"

// Enqueuer hands tasks to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Options wires the scheduler. Queue, Reconciler and Cleaner may each be nil;
// without a Queue jobs run inline.
type Options struct {
	Store         *settingsstore.SettingsStore
	Queue         Enqueuer
	Reconciler    *tasks.Reconciler
	Cleaner       tasks.AuditEventCleaner
	RetentionDays int
}

// MaintenanceScheduler manages the periodic maintenance jobs.
type MaintenanceScheduler struct {
	opts Options

	cron           *cron.Cron
	reconcileEntry cron.EntryID
	cleanupEntry   cron.EntryID
	mu             sync.RWMutex
	isRunning      bool
	cancelFunc     context.CancelFunc
}

// New creates a new scheduler instance.
func New(opts Options) *MaintenanceScheduler {
	return &MaintenanceScheduler{opts: opts}
}

func newCron() *cron.Cron {
	return cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
}

// Start schedules the enabled jobs and returns. It stops by itself when ctx
// is cancelled.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	c := newCron()
	var reconcileEntry, cleanupEntry cron.EntryID

	config := s.opts.Store.GetReconcileConfig(ctx)
	if config.Enabled {
		if err := settingsstore.ValidateCronSchedule(config.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s': %w", config.Schedule, err)
		}
		entryID, err := c.AddFunc(config.Schedule, s.runReconcile)
		if err != nil {
			return fmt.Errorf("failed to schedule reconciliation: %w", err)
		}
		reconcileEntry = entryID
		log.Printf("[SCHEDULER] Reconciliation scheduled '%s' (%s), fix=%v",
			config.Schedule, settingsstore.GetCronDescription(config.Schedule), config.Fix)
	} else {
		log.Printf("[SCHEDULER] Reconciliation disabled")
	}

	if s.opts.Cleaner != nil || s.opts.Queue != nil {
		entryID, err := c.AddFunc(AuditCleanupSchedule, s.runAuditCleanup)
		if err != nil {
			return fmt.Errorf("failed to schedule audit cleanup: %w", err)
		}
		cleanupEntry = entryID
	}

	if len(c.Entries()) == 0 {
		return nil
	}

	s.cron = c
	s.reconcileEntry = reconcileEntry
	s.cleanupEntry = cleanupEntry

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	c.Start()
	s.isRunning = true

	go func() {
		<-cancelCtx.Done()
		s.stop(c)
	}()

	return nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *MaintenanceScheduler) Stop() {
	s.stop(nil)
}

// stop stops the scheduler if it is still driven by only (any when nil), so a
// stale cancellation cannot stop a rescheduled instance.
func (s *MaintenanceScheduler) stop(only *cron.Cron) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || (only != nil && s.cron != only) {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning = false
	s.cancelFunc = nil
	s.cron = nil
	s.reconcileEntry = 0
	s.cleanupEntry = 0

	log.Printf("[SCHEDULER] Stopped")
}

// Reschedule picks up a changed configuration (call after settings change).
func (s *MaintenanceScheduler) Reschedule(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// IsRunning returns whether any job is scheduled.
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextReconcileRun returns when reconciliation fires next, or nil when it is
// not scheduled.
func (s *MaintenanceScheduler) NextReconcileRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || s.reconcileEntry == 0 {
		return nil
	}
	next := s.cron.Entry(s.reconcileEntry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

func (s *MaintenanceScheduler) runReconcile() {
	ctx := context.Background()
	config := s.opts.Store.GetReconcileConfig(ctx)

	if s.opts.Queue != nil {
		id, err := s.opts.Queue.Enqueue(ctx, tasks.ReconcileInventoryTask{Fix: config.Fix})
		if err != nil {
			log.Printf("[SCHEDULER] Failed to enqueue reconciliation: %v", err)
			return
		}
		log.Printf("[SCHEDULER] Enqueued reconciliation task %s", id)
		return
	}

	if s.opts.Reconciler == nil {
		log.Printf("[SCHEDULER] Reconciliation skipped: no reconciler configured")
		return
	}
	if _, err := s.opts.Reconciler.Run(ctx, audit.Actor{}, config.Fix); err != nil {
		log.Printf("[SCHEDULER] Reconciliation failed: %v", err)
	}
}

func (s *MaintenanceScheduler) runAuditCleanup() {
	ctx := context.Background()
	task := tasks.CleanupAuditEventsTask{RetentionDays: s.opts.RetentionDays}

	if s.opts.Queue != nil {
		if _, err := s.opts.Queue.Enqueue(ctx, task); err != nil {
			log.Printf("[SCHEDULER] Failed to enqueue audit cleanup: %v", err)
		}
		return
	}

	if err := tasks.CleanupAuditEventsProcessor(s.opts.Cleaner)(ctx, task); err != nil {
		log.Printf("[SCHEDULER] Audit cleanup failed: %v", err)
	}
}
