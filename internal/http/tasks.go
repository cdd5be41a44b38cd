package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/policy"
	"github.com/mrlokans/librarian/internal/tasks"
)

// TasksController handles task queue management endpoints.
type TasksController struct {
	queue TaskQueue
}

// NewTasksController creates a new TasksController.
func NewTasksController(queue TaskQueue) *TasksController {
	return &TasksController{queue: queue}
}

// TaskEnqueuedResponse acknowledges an enqueued task.
type TaskEnqueuedResponse struct {
	TaskID  string `json:"task_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (tc *TasksController) authorize(c *gin.Context) bool {
	if err := policy.Authorize(auth.GetCaller(c), policy.RunTasks); err != nil {
		respondLendingError(c, err, "tasks")
		return false
	}
	return true
}

// ListTaskTypes handles GET /api/tasks/types
// Returns the list of available task types that can be triggered.
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	if !tc.authorize(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_types": tasks.TaskTypes(),
	})
}

// GetTaskStatus handles GET /api/tasks/:id
// Returns the status of a specific task.
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	if !tc.authorize(c) {
		return
	}
	taskID := c.Param("id")
	if taskID == "" {
		respondBadRequest(c, "task ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.queue.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": tasks.StatusString(status),
	})
}

// RunTask handles POST /api/tasks/:type/run
// Manually triggers a task of the specified type. Parameters may come from a
// JSON body or the query string.
func (tc *TasksController) RunTask(c *gin.Context) {
	if !tc.authorize(c) {
		return
	}
	taskType := c.Param("type")

	var params tasks.TaskParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	task, err := tasks.NewTask(taskType, params)
	if errors.Is(err, tasks.ErrUnknownTaskType) {
		respondBadRequest(c, err.Error())
		return
	}
	if err != nil {
		respondInternalError(c, err, "build task")
		return
	}

	id, err := tc.queue.Enqueue(c.Request.Context(), task)
	if err != nil {
		respondInternalError(c, err, "enqueue task")
		return
	}

	c.JSON(http.StatusAccepted, TaskEnqueuedResponse{
		TaskID:  id,
		Type:    taskType,
		Message: "task enqueued",
	})
}
