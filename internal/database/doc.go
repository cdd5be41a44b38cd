// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (SQLite or PostgreSQL), migrations
//	├── errors.go        # Driver error classification (lock contention, unique violations)
//	├── catalog/         # Books and their copy counters
//	├── members/         # Member profiles linked to users
//	├── ledger/          # Checkout/return transaction records
//	├── audit/           # Audit events
//	├── settings/        # Operational key/value state
//	└── dbtest/          # Migrated throwaway databases for tests
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase(cfg.Database)
//
//	catalogRepo := catalog.NewRepository(db.DB)
//	ledgerRepo := ledger.NewRepository(db.DB)
//
//	book, err := catalogRepo.GetBookByID(ctx, 123)
//
// # Locking
//
// Methods taking a *gorm.DB named tx run inside a caller-owned transaction.
// The ...ForUpdate methods add FOR UPDATE on PostgreSQL. SQLite connections
// open every transaction with BEGIN IMMEDIATE (see SQLiteDSN), so the first
// statement of a transaction already owns the database write lock.
//
// Errors from a contended lock are recognized by IsLockContention and may be
// retried by restarting the whole transaction.
package database
