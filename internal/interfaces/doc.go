// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Lending and Catalog
//
//   - Lender: checkout, return and copy-count changes (internal/http/stores.go),
//     implemented by lending.Coordinator
//   - CatalogWriter: descriptive book edits (internal/http/stores.go)
//   - MemberWriter: membership status (internal/http/stores.go)
//
// ## Background Work
//
//   - TaskQueue: enqueue and inspect tasks (internal/http/stores.go)
//   - Enqueuer: scheduled jobs handed to the queue (internal/scheduler)
//   - Rescheduler: apply changed schedule settings (internal/http/stores.go)
//   - InventoryReconciler: counter drift detection (internal/tasks/reconcile.go)
//   - AuditEventCleaner: audit retention (internal/tasks/cleanup_audit.go)
//
// # Adding a New Maintenance Task
//
//  1. Define the task and its processor in internal/tasks/
//
//     type RecountMembersTask struct{}
//
//     func (t RecountMembersTask) Config() backlite.QueueConfig { ... }
//
//     func NewRecountMembersQueue(...) backlite.Queue
//
//  2. Add it to TaskTypes and NewTask so the API can trigger it
//
//  3. Register the queue in entrypoint.go
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the current list.
package interfaces
