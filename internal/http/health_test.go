package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
)

func setupHealthRouter(db *database.Database) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewHealthController(db, "1.0.0")

	router := gin.New()
	router.GET("/health", controller.Status)
	router.GET("/ping", controller.Ping)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthController_Status(t *testing.T) {
	t.Run("returns healthy when database is connected", func(t *testing.T) {
		router := setupHealthRouter(dbtest.Open(t))

		w := get(router, "/health")
		assert.Equal(t, http.StatusOK, w.Code)

		response := decode[HealthResponse](t, w)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "1.0.0", response.Version)
		assert.Equal(t, "ok", response.Checks["database"])
		assert.NotEmpty(t, response.Time)
	})

	t.Run("reports a missing database as not configured", func(t *testing.T) {
		router := setupHealthRouter(nil)

		w := get(router, "/health")
		assert.Equal(t, http.StatusOK, w.Code)

		response := decode[HealthResponse](t, w)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "not configured", response.Checks["database"])
	})

	t.Run("returns unhealthy when database connection is closed", func(t *testing.T) {
		db := dbtest.Open(t)
		require.NoError(t, db.Close())
		router := setupHealthRouter(db)

		w := get(router, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		response := decode[HealthResponse](t, w)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Contains(t, response.Checks["database"], "error:")
	})
}

func TestHealthController_Ping(t *testing.T) {
	w := get(setupHealthRouter(dbtest.Open(t)), "/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message": "pong"}`, w.Body.String())

	db := dbtest.Open(t)
	require.NoError(t, db.Close())
	w = get(setupHealthRouter(db), "/ping")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
