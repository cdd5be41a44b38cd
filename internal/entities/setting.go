package entities

import (
	"time"
)

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Known setting keys
const (
	// Runtime overrides for the reconciliation schedule
	SettingKeyReconcileEnabled  = "reconcile_enabled"
	SettingKeyReconcileSchedule = "reconcile_schedule"
	SettingKeyReconcileFix      = "reconcile_fix"

	// Inventory reconciliation bookkeeping
	SettingKeyReconcileLastAt      = "reconcile_last_at"
	SettingKeyReconcileLastStatus  = "reconcile_last_status"
	SettingKeyReconcileLastMessage = "reconcile_last_message"
	SettingKeyReconcileLastDrift   = "reconcile_last_drift"
)
