package tasks

import (
	"errors"
	"fmt"

	"github.com/mikestefanello/backlite"
)

// Queue names, also used as the task type in the API.
const (
	TypeReconcileInventory = "reconcile_inventory"
	TypeCleanupAuditEvents = "cleanup_audit_events"
)

var ErrUnknownTaskType = errors.New("unknown task type")

// TaskTypeInfo describes a task type that can be triggered manually.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// TaskTypes lists the task types accepted by NewTask.
func TaskTypes() []TaskTypeInfo {
	return []TaskTypeInfo{
		{Type: TypeReconcileInventory, Description: "Compare book counters with open transactions, optionally repairing drift"},
		{Type: TypeCleanupAuditEvents, Description: "Delete audit events past the retention period"},
	}
}

// TaskParams carries the optional parameters of a manually triggered task.
type TaskParams struct {
	Fix           bool `json:"fix" form:"fix"`
	RetentionDays int  `json:"retention_days" form:"retention_days" binding:"omitempty,min=1"`
}

// NewTask builds the task for taskType.
func NewTask(taskType string, params TaskParams) (backlite.Task, error) {
	switch taskType {
	case TypeReconcileInventory:
		return ReconcileInventoryTask{Fix: params.Fix}, nil
	case TypeCleanupAuditEvents:
		return CleanupAuditEventsTask{RetentionDays: params.RetentionDays}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
}

// StatusString renders a backlite status for the API.
func StatusString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
