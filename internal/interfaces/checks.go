package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Lender implementations
var _ http.Lender = (*lending.Coordinator)(nil)

// CatalogWriter implementations
var _ http.CatalogWriter = (*catalog.Repository)(nil)

// MemberWriter implementations
var _ http.MemberWriter = (*members.Repository)(nil)

// =============================================================================
// Background Work
// =============================================================================

// TaskQueue and Enqueuer implementations
var _ http.TaskQueue = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)

// Rescheduler implementations
var _ http.Rescheduler = (*scheduler.MaintenanceScheduler)(nil)

// InventoryReconciler implementations
var _ tasks.InventoryReconciler = (*lending.Coordinator)(nil)

// AuditEventCleaner implementations
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
