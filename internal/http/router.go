package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies.
func NewRouter(cfg RouterConfig) *gin.Engine {
	registerValidators()

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}

	// Resolves the caller; anonymous requests continue
	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.Handler())
	}

	health := NewHealthController(cfg.Database, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	api := router.Group("/api")

	if cfg.AuthController != nil && cfg.AuthMiddleware != nil {
		cfg.AuthController.RegisterRoutes(api.Group("/auth"), cfg.AuthMiddleware.RequireAuth())
	}

	books := NewBooksController(cfg.Facade, cfg.Catalog, cfg.Coordinator, cfg.Audit)
	api.GET("/books", books.ListBooks)
	api.GET("/books/:id", books.GetBook)
	api.POST("/books", books.CreateBook)
	api.PATCH("/books/:id", books.UpdateBook)
	api.PUT("/books/:id/copies", books.SetCopies)
	api.DELETE("/books/:id", books.DeleteBook)

	members := NewMembersController(cfg.Facade, cfg.Members, cfg.Audit)
	api.GET("/members", members.ListMembers)
	api.GET("/members/me", members.Me)
	api.GET("/members/:id", members.GetMember)
	api.PATCH("/members/:id", members.UpdateMember)

	transactions := NewTransactionsController(cfg.Coordinator, cfg.Facade, cfg.Audit)
	api.POST("/transactions/checkout", transactions.Checkout)
	api.POST("/transactions/return", transactions.Return)
	api.GET("/transactions", transactions.ListTransactions)
	api.GET("/transactions/:id", transactions.GetTransaction)

	if cfg.Reconciler != nil && cfg.SettingsStore != nil {
		var rescheduler Rescheduler
		if cfg.Scheduler != nil {
			rescheduler = cfg.Scheduler
		}
		admin := NewAdminController(cfg.Reconciler, cfg.SettingsStore, rescheduler, cfg.Audit)
		api.POST("/admin/reconcile", admin.Reconcile)
		api.GET("/admin/reconcile/status", admin.ReconcileStatus)
		api.GET("/admin/reconcile/settings", admin.GetReconcileSettings)
		api.PUT("/admin/reconcile/settings", admin.UpdateReconcileSettings)
		api.DELETE("/admin/reconcile/settings", admin.ResetReconcileSettings)
		if cfg.Audit != nil {
			api.GET("/admin/audit", admin.AuditEvents)
		}
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
