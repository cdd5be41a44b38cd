package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/database/settings"
	http_controllers "github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/query"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/settingsstore"
	"github.com/mrlokans/librarian/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Drain requests before the background workers stop
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

// csrfSecret decodes AUTH_SESSION_SECRET, falling back to its raw bytes, or
// generates a fresh secret when none is configured.
func csrfSecret(configured string) ([]byte, error) {
	if configured != "" {
		if secret, err := hex.DecodeString(configured); err == nil {
			return secret, nil
		}
		return []byte(configured), nil
	}

	generated, err := auth.NewSessionSecret()
	if err != nil {
		return nil, err
	}
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist sessions across restarts)")
	return generated, nil
}

// newSessionManager keeps sessions in the SQLite database file. The session
// table DDL and sqlite3store only speak SQLite, so other drivers get the
// in-memory store.
func newSessionManager(db *database.Database, cfg config.Auth) (*auth.SessionManager, error) {
	if db.Driver != config.DriverSQLite {
		log.Printf("Sessions are kept in memory for the %s driver", db.Driver)
		return auth.NewSessionManager(nil, cfg)
	}
	sqlDB, err := db.SQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL DB for sessions: %w", err)
	}
	return auth.NewSessionManager(sqlDB, cfg)
}

type userCounter interface {
	HasUsers() (bool, error)
}

// reportBootstrapState tells the operator how to create the first account.
func reportBootstrapState(users userCounter) {
	hasUsers, err := users.HasUsers()
	switch {
	case err != nil:
		log.Printf("WARNING: Failed to check for existing users: %v", err)
	case !hasUsers:
		log.Printf("No users found. The first account registered via /api/auth/register becomes the administrator.")
	}
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Librarian v%s", version)

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()
	log.Printf("Database driver: %s", cfg.Database.Driver)

	auditService := audit.NewService(auditrepo.NewRepository(db.DB))
	archiver := audit.NewArchiver(cfg.Audit.ArchiveDir)

	coordinator := lending.NewCoordinator(db.DB, cfg.Lending)
	store := settingsstore.New(settings.NewRepository(db.DB), cfg.Reconcile)
	reconciler := tasks.NewReconciler(coordinator, store, archiver, auditService)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskDBPath := tasks.DatabasePath(cfg)
		taskClient, err = tasks.NewClient(taskDBPath, tasks.ConfigFromSettings(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()
		log.Printf("Task queue database: %s", taskDBPath)

		taskClient.Register(
			tasks.NewReconcileInventoryQueue(reconciler),
			tasks.NewCleanupAuditEventsQueue(auditService),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	schedulerOpts := scheduler.Options{
		Store:         store,
		Reconciler:    reconciler,
		Cleaner:       auditService,
		RetentionDays: cfg.Audit.RetentionDays,
	}
	if taskClient != nil {
		schedulerOpts.Queue = taskClient
	}
	maintenance := scheduler.New(schedulerOpts)
	if err := maintenance.Start(context.Background()); err != nil {
		log.Printf("WARNING: Failed to start maintenance scheduler: %v", err)
	}

	authService := auth.NewService(db.DB, cfg.Auth)
	sessionManager, err := newSessionManager(db, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}
	secret, err := csrfSecret(cfg.Auth.SessionSecret)
	if err != nil {
		log.Fatalf("Failed to generate CSRF secret: %v", err)
	}
	authController := auth.NewAuthController(authService, sessionManager, cfg.Auth, auditService)

	reportBootstrapState(authService)

	routerCfg := http_controllers.RouterConfig{
		Database:       db,
		Coordinator:    coordinator,
		Facade:         query.NewFacade(db.DB),
		Catalog:        catalog.NewRepository(db.DB),
		Members:        members.NewRepository(db.DB),
		Audit:          auditService,
		AuthService:    authService,
		AuthController: authController,
		AuthMiddleware: auth.NewMiddleware(authService, sessionManager),
		SessionManager: sessionManager,
		CSRFSecret:     secret,
		SecureCookies:  cfg.Auth.SecureCookies,
		Reconciler:     reconciler,
		SettingsStore:  store,
		Scheduler:      maintenance,
		TaskClient:     taskClient,
		Version:        version,
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		maintenance.Stop()
		authController.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
		auditService.Wait()
	}

	Serve(router, cfg, onShutdown)
}
