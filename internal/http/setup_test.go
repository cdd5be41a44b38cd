package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/database/settings"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/query"
	"github.com/mrlokans/librarian/internal/settingsstore"
	"github.com/mrlokans/librarian/internal/tasks"
)

const testPassword = "correct-horse-battery"

type testEnv struct {
	router      *gin.Engine
	db          *database.Database
	auth        *auth.Service
	coordinator *lending.Coordinator
	catalog     *catalog.Repository
	audit       *audit.Service
	store       *settingsstore.SettingsStore
}

// setupTestRouter builds the full router over a fresh database. CSRF
// protection is on; requests authenticate with bearer tokens, which skip it.
func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	sqlDB, err := db.SQLDB()
	require.NoError(t, err)

	authCfg := config.Auth{
		SessionLifetime:  time.Hour,
		TokenExpiry:      24 * time.Hour,
		BcryptCost:       4,
		OpenRegistration: true,
		MaxLoginAttempts: 5,
		RateLimitWindow:  time.Minute,
		LockoutDuration:  time.Minute,
	}
	authService := auth.NewService(db.DB, authCfg)
	sessions, err := auth.NewSessionManager(sqlDB, authCfg)
	require.NoError(t, err)

	auditService := audit.NewService(auditrepo.NewRepository(db.DB))
	t.Cleanup(auditService.Wait)

	coordinator := lending.NewCoordinator(db.DB, config.Lending{LockRetries: 5, LockRetryDelay: 10 * time.Millisecond})
	store := settingsstore.New(settings.NewRepository(db.DB), config.Reconcile{Schedule: "0 3 * * *"})
	reconciler := tasks.NewReconciler(coordinator, store, audit.NewArchiver(filepath.Join(t.TempDir(), "archive")), auditService)

	authController := auth.NewAuthController(authService, sessions, authCfg, auditService)
	t.Cleanup(authController.Stop)

	cat := catalog.NewRepository(db.DB)
	router := NewRouter(RouterConfig{
		Database:       db,
		Coordinator:    coordinator,
		Facade:         query.NewFacade(db.DB),
		Catalog:        cat,
		Members:        members.NewRepository(db.DB),
		Audit:          auditService,
		AuthService:    authService,
		AuthController: authController,
		AuthMiddleware: auth.NewMiddleware(authService, sessions),
		SessionManager: sessions,
		CSRFSecret:     []byte("0123456789abcdef0123456789abcdef"),
		Reconciler:     reconciler,
		SettingsStore:  store,
		Version:        "test",
	})

	return &testEnv{
		router:      router,
		db:          db,
		auth:        authService,
		coordinator: coordinator,
		catalog:     cat,
		audit:       auditService,
		store:       store,
	}
}

// createUser creates an identity with its member profile and returns a bearer
// token for it.
func (e *testEnv) createUser(t *testing.T, username string, role entities.UserRole) (string, *entities.Member) {
	t.Helper()
	user, member, err := e.auth.CreateUser(context.Background(), username, username+"@example.com", testPassword, role)
	require.NoError(t, err)

	token, err := e.auth.GenerateToken(user.ID)
	require.NoError(t, err)
	return token, member
}

func (e *testEnv) createBook(t *testing.T, title, isbn string, copies int) *entities.Book {
	t.Helper()
	book := &entities.Book{Title: title, Author: "Author of " + title, ISBN: isbn, TotalCopies: copies}
	require.NoError(t, e.catalog.CreateBook(context.Background(), book))
	return book
}

func (e *testEnv) reloadBook(t *testing.T, id uint) *entities.Book {
	t.Helper()
	book, err := e.catalog.GetBookByID(context.Background(), id)
	require.NoError(t, err)
	return book
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, body any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	return &buf
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func bookPath(id uint, suffix ...string) string {
	path := fmt.Sprintf("/api/books/%d", id)
	for _, s := range suffix {
		path += "/" + s
	}
	return path
}
