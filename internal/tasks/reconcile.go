package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/settingsstore"
)

var ErrReconcileRunning = errors.New("reconciliation already running")

// InventoryReconciler is the part of the lending coordinator a run needs.
type InventoryReconciler interface {
	Reconcile(ctx context.Context, fix bool) ([]lending.Drift, error)
}

// ReconcileReport is the outcome of one reconciliation run. Reports with
// drift are also archived as JSON.
type ReconcileReport struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  string          `json:"duration"`
	Fix       bool            `json:"fix"`
	Drift     []lending.Drift `json:"drift"`
	Archive   string          `json:"archive,omitempty"`
}

// Reconciler runs inventory reconciliation and records the outcome in the
// settings store, the audit log and, for drift, the archive. It is shared by
// the task queue, the admin API and the CLI.
type Reconciler struct {
	inventory InventoryReconciler
	store     *settingsstore.SettingsStore
	archiver  *audit.Archiver
	audit     *audit.Service

	mu      sync.Mutex
	running bool
}

// NewReconciler creates a Reconciler. archiver and auditService may be nil.
func NewReconciler(inventory InventoryReconciler, store *settingsstore.SettingsStore, archiver *audit.Archiver, auditService *audit.Service) *Reconciler {
	return &Reconciler{
		inventory: inventory,
		store:     store,
		archiver:  archiver,
		audit:     auditService,
	}
}

// Run performs one reconciliation. Only one run executes at a time; a second
// concurrent call returns ErrReconcileRunning.
func (r *Reconciler) Run(ctx context.Context, actor audit.Actor, fix bool) (*ReconcileReport, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrReconcileRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	report := &ReconcileReport{StartedAt: time.Now().UTC(), Fix: fix}
	drift, err := r.inventory.Reconcile(ctx, fix)
	report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()
	if err != nil {
		log.Printf("[TASK] Reconciliation failed: %v", err)
		r.recordStatus(ctx, settingsstore.StatusFailed, err.Error(), 0)
		r.logAudit(actor, 0, fix, err)
		return nil, fmt.Errorf("reconcile inventory: %w", err)
	}
	report.Drift = drift

	if len(drift) == 0 {
		log.Printf("[TASK] Reconciliation found no drift (%s)", report.Duration)
		r.recordStatus(ctx, settingsstore.StatusSuccess, "no drift", 0)
		r.logAudit(actor, 0, fix, nil)
		return report, nil
	}

	if r.archiver != nil {
		filename, err := r.archiver.SaveJSON("drift", report)
		if err != nil {
			log.Printf("[TASK] Failed to archive drift report: %v", err)
		}
		report.Archive = filename
	}

	message := fmt.Sprintf("%d books drifted", len(drift))
	if fix {
		message = fmt.Sprintf("%d books drifted and were repaired", len(drift))
	}
	log.Printf("[TASK] Reconciliation: %s", message)
	r.recordStatus(ctx, settingsstore.StatusDrift, message, len(drift))
	r.logAudit(actor, len(drift), fix, nil)
	return report, nil
}

// Status returns the outcome of the last run.
func (r *Reconciler) Status(ctx context.Context) (settingsstore.ReconcileStatus, error) {
	return r.store.GetReconcileStatus(ctx)
}

// IsRunning reports whether a run is in progress.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) recordStatus(ctx context.Context, status, message string, drifted int) {
	// The run's context may already be cancelled; the status still has to land
	if err := r.store.SetReconcileStatus(context.WithoutCancel(ctx), status, message, drifted); err != nil {
		log.Printf("[TASK] Failed to record reconciliation status: %v", err)
	}
}

func (r *Reconciler) logAudit(actor audit.Actor, drifted int, fix bool, err error) {
	if r.audit == nil {
		return
	}
	r.audit.LogReconcile(actor, drifted, fix, err)
}

// ReconcileInventoryTask compares every book's counter with the ledger.
type ReconcileInventoryTask struct {
	Fix bool `json:"fix"`
}

// Config returns the queue configuration for reconciliation tasks.
func (t ReconcileInventoryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        TypeReconcileInventory,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ReconcileInventoryProcessor creates a processor function for ReconcileInventoryTask.
func ReconcileInventoryProcessor(reconciler *Reconciler) backlite.QueueProcessor[ReconcileInventoryTask] {
	return func(ctx context.Context, task ReconcileInventoryTask) error {
		if reconciler == nil {
			return fmt.Errorf("reconciler not configured")
		}
		_, err := reconciler.Run(ctx, audit.Actor{}, task.Fix)
		if errors.Is(err, ErrReconcileRunning) {
			// The run in progress covers this request
			log.Printf("[TASK] Skipping reconciliation: %v", err)
			return nil
		}
		return err
	}
}

// NewReconcileInventoryQueue creates a backlite queue for reconciliation tasks.
func NewReconcileInventoryQueue(reconciler *Reconciler) backlite.Queue {
	return backlite.NewQueue(ReconcileInventoryProcessor(reconciler))
}
