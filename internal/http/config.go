package http

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/query"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/settingsstore"
	"github.com/mrlokans/librarian/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database    *database.Database
	Coordinator *lending.Coordinator
	Facade      *query.Facade
	Catalog     *catalog.Repository
	Members     *members.Repository
	Audit       *audit.Service

	// Authentication
	AuthService    *auth.Service
	AuthController *auth.AuthController
	AuthMiddleware *auth.Middleware
	SessionManager *auth.SessionManager
	CSRFSecret     []byte
	SecureCookies  bool

	// Maintenance (each optional)
	Reconciler    *tasks.Reconciler
	SettingsStore *settingsstore.SettingsStore
	Scheduler     *scheduler.MaintenanceScheduler
	TaskClient    *tasks.Client

	// Application info
	Version string
}
