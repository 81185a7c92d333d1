package task

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/client"
	apperrors "github.com/nutricoach/server/internal/utils/errors"
	"github.com/nutricoach/server/internal/utils/middleware"
)

// Handler handles task API requests.
type Handler struct {
	manager  *Manager
	executor *Executor
	gateway  *Gateway
	clients  client.Repository
}

// NewHandler creates a new task handler.
func NewHandler(manager *Manager, executor *Executor, gateway *Gateway, clients client.Repository) *Handler {
	return &Handler{
		manager:  manager,
		executor: executor,
		gateway:  gateway,
		clients:  clients,
	}
}

// RegisterRoutes registers task routes. createLimit guards creation
// only; control and read endpoints stay unthrottled so a rate-limited
// coach can still pause or cancel running work.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, createLimit gin.HandlerFunc) {
	create := h.Create
	if createLimit != nil {
		r.POST("/tasks", createLimit, create)
	} else {
		r.POST("/tasks", create)
	}
	r.GET("/tasks", h.List)
	r.GET("/tasks/:id", h.Get)
	r.POST("/tasks/:id/pause", h.Pause)
	r.POST("/tasks/:id/resume", h.Resume)
	r.POST("/tasks/:id/cancel", h.Cancel)
	r.GET("/tasks/:id/check-updates", h.CheckUpdates)
	r.GET("/tasks/:id/stream", h.gateway.Stream)
}

// CreateTaskRequest is the payload for creating a task.
type CreateTaskRequest struct {
	ClientID   uuid.UUID  `json:"client_id" binding:"required"`
	Type       Type       `json:"type" binding:"required"`
	Parameters Parameters `json:"parameters"`
}

// Create handles task creation.
// POST /api/v1/tasks
//
// Creation only registers the task; execution begins when the caller
// opens the returned stream URL.
func (h *Handler) Create(c *gin.Context) {
	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if ok := h.ownsClient(c, req.ClientID, coachID); !ok {
		return
	}

	t, existing, err := h.manager.Create(c.Request.Context(), req.ClientID, req.Type, req.Parameters)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	if existing {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "an active task already exists for this client and type",
			"task_id":    t.ID,
			"status":     t.Status,
			"stream_url": streamURL(t.ID),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"task":       t,
		"stream_url": streamURL(t.ID),
	})
}

// List handles task listing for the coach's clients.
// GET /api/v1/tasks?client_id=&type=&status=
func (h *Handler) List(c *gin.Context) {
	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	clientID, err := uuid.Parse(c.Query("client_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id query parameter is required"})
		return
	}
	if ok := h.ownsClient(c, clientID, coachID); !ok {
		return
	}

	filter := &Filter{ClientID: &clientID}
	if s := c.Query("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if ty := c.Query("type"); ty != "" {
		taskType := Type(ty)
		filter.Type = &taskType
	}

	filter.Limit = 50
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n <= 200 {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(c.Query("offset")); err == nil && n > 0 {
		filter.Offset = n
	}

	tasks, err := h.manager.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

// Get handles task detail retrieval.
// GET /api/v1/tasks/:id
func (h *Handler) Get(c *gin.Context) {
	t, ok := h.ownedTask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t)
}

// Pause requests a cooperative pause at the next item boundary.
// POST /api/v1/tasks/:id/pause
func (h *Handler) Pause(c *gin.Context) {
	t, ok := h.ownedTask(c)
	if !ok {
		return
	}
	paused, err := h.manager.Pause(c.Request.Context(), t.ID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, paused)
}

// Resume moves a paused or recoverably failed task back to running.
// POST /api/v1/tasks/:id/resume
//
// The caller must reopen the stream to restart execution.
func (h *Handler) Resume(c *gin.Context) {
	t, ok := h.ownedTask(c)
	if !ok {
		return
	}
	resumed, err := h.manager.Resume(c.Request.Context(), t.ID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task":       resumed,
		"stream_url": streamURL(resumed.ID),
	})
}

// Cancel terminally cancels a task.
// POST /api/v1/tasks/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	t, ok := h.ownedTask(c)
	if !ok {
		return
	}
	cancelled, err := h.manager.Cancel(c.Request.Context(), t.ID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

// CheckUpdates previews the diff engine's skip/analyze partition for an
// incremental summary task without running anything.
// GET /api/v1/tasks/:id/check-updates
func (h *Handler) CheckUpdates(c *gin.Context) {
	t, ok := h.ownedTask(c)
	if !ok {
		return
	}
	plan, err := h.executor.PlanIncremental(c.Request.Context(), t)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"up_to_date": plan.UpToDate(),
		"analyze":    plan.Analyze,
		"skip":       plan.Skip,
		"items":      plan.Items,
	})
}

// ownedTask loads the path task and verifies the authenticated coach
// owns its client. Not-owned reads as not-found.
func (h *Handler) ownedTask(c *gin.Context) (*Task, bool) {
	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return nil, false
	}

	t, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return nil, false
	}

	owned, err := h.clients.OwnedBy(c.Request.Context(), t.ClientID, coachID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return nil, false
	}
	return t, true
}

// ownsClient verifies the coach owns the client, writing the error
// response itself when not.
func (h *Handler) ownsClient(c *gin.Context, clientID, coachID uuid.UUID) bool {
	owned, err := h.clients.OwnedBy(c.Request.Context(), clientID, coachID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return false
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return false
	}
	return true
}

func streamURL(id uuid.UUID) string {
	return fmt.Sprintf("/api/v1/tasks/%s/stream", id)
}

// statusOf maps task sentinel errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrActiveTaskExists):
		return http.StatusConflict
	default:
		return apperrors.GetStatusCode(err)
	}
}
