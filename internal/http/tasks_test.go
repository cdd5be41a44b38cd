package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/policy"
	"github.com/mrlokans/librarian/internal/tasks"
)

type fakeQueue struct {
	tasks  []backlite.Task
	status backlite.TaskStatus
	err    error
}

func (q *fakeQueue) Enqueue(ctx context.Context, task backlite.Task) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, task)
	return "task-123", nil
}

func (q *fakeQueue) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return q.status, q.err
}

func setupTasksRouter(queue TaskQueue, caller policy.Caller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewTasksController(queue)

	router := gin.New()
	router.Use(withCaller(caller))
	router.GET("/api/tasks/types", controller.ListTaskTypes)
	router.GET("/api/tasks/:id", controller.GetTaskStatus)
	router.POST("/api/tasks/:type/run", controller.RunTask)
	return router
}

var adminCaller = policy.Caller{UserID: 1, Username: "admin", IsAdmin: true}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTasksController_ListTaskTypes(t *testing.T) {
	router := setupTasksRouter(&fakeQueue{}, adminCaller)

	w := serve(router, http.MethodGet, "/api/tasks/types", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		TaskTypes []tasks.TaskTypeInfo `json:"task_types"`
	}](t, w)
	assert.Equal(t, tasks.TaskTypes(), body.TaskTypes)
}

func TestTasksController_RunTask(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantTask backlite.Task
	}{
		{
			name:     "reconcile with fix from query",
			path:     "/api/tasks/reconcile_inventory/run?fix=true",
			wantCode: http.StatusAccepted,
			wantTask: tasks.ReconcileInventoryTask{Fix: true},
		},
		{
			name:     "reconcile with fix from body",
			path:     "/api/tasks/reconcile_inventory/run",
			body:     `{"fix": true}`,
			wantCode: http.StatusAccepted,
			wantTask: tasks.ReconcileInventoryTask{Fix: true},
		},
		{
			name:     "audit cleanup with retention",
			path:     "/api/tasks/cleanup_audit_events/run",
			body:     `{"retention_days": 30}`,
			wantCode: http.StatusAccepted,
			wantTask: tasks.CleanupAuditEventsTask{RetentionDays: 30},
		},
		{
			name:     "audit cleanup with default retention",
			path:     "/api/tasks/cleanup_audit_events/run",
			wantCode: http.StatusAccepted,
			wantTask: tasks.CleanupAuditEventsTask{},
		},
		{
			name:     "negative retention",
			path:     "/api/tasks/cleanup_audit_events/run",
			body:     `{"retention_days": -1}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown type",
			path:     "/api/tasks/enrich_book/run",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeQueue{}
			router := setupTasksRouter(queue, adminCaller)

			w := serve(router, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())

			if tt.wantTask == nil {
				assert.Empty(t, queue.tasks)
				return
			}
			require.Len(t, queue.tasks, 1)
			assert.Equal(t, tt.wantTask, queue.tasks[0])

			resp := decode[TaskEnqueuedResponse](t, w)
			assert.Equal(t, "task-123", resp.TaskID)
		})
	}
}

func TestTasksController_GetTaskStatus(t *testing.T) {
	router := setupTasksRouter(&fakeQueue{status: backlite.TaskStatusRunning}, adminCaller)

	w := serve(router, http.MethodGet, "/api/tasks/task-123", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": "task-123", "status": "running"}`, w.Body.String())
}

func TestTasksController_QueueErrors(t *testing.T) {
	router := setupTasksRouter(&fakeQueue{err: errors.New("database is locked")}, adminCaller)

	w := serve(router, http.MethodPost, "/api/tasks/reconcile_inventory/run", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "locked")

	w = serve(router, http.MethodGet, "/api/tasks/task-123", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTasksController_RequiresAdmin(t *testing.T) {
	queue := &fakeQueue{}

	member := setupTasksRouter(queue, policy.Caller{UserID: 2, Username: "alice", MemberID: 2})
	assert.Equal(t, http.StatusForbidden, serve(member, http.MethodPost, "/api/tasks/reconcile_inventory/run", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(member, http.MethodGet, "/api/tasks/types", "").Code)

	anonymous := setupTasksRouter(queue, policy.Anonymous)
	assert.Equal(t, http.StatusUnauthorized, serve(anonymous, http.MethodGet, "/api/tasks/task-123", "").Code)

	assert.Empty(t, queue.tasks)
}
