package mealgroup

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/utils/middleware"
)

// Handler handles meal group and exercise log API requests.
type Handler struct {
	repo    Repository
	clients client.Repository
}

// NewHandler creates a new meal group handler.
func NewHandler(repo Repository, clients client.Repository) *Handler {
	return &Handler{repo: repo, clients: clients}
}

// RegisterRoutes registers meal group routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/clients/:id/meal-groups", h.Create)
	r.GET("/clients/:id/meal-groups", h.List)
	r.PUT("/clients/:id/meal-groups/:groupId", h.Update)
	r.DELETE("/clients/:id/meal-groups/:groupId", h.Delete)
	r.POST("/clients/:id/exercise-logs", h.CreateExerciseLog)
	r.GET("/clients/:id/exercise-logs", h.ListExerciseLogs)
}

// CreateRequest is the payload for creating a meal group.
type CreateRequest struct {
	Date      time.Time `json:"date" binding:"required"`
	MealType  string    `json:"meal_type" binding:"required"`
	PhotoKeys []string  `json:"photo_keys"`
	Notes     string    `json:"notes"`
}

// Create handles meal group creation.
// POST /api/v1/clients/:id/meal-groups
func (h *Handler) Create(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group := &MealGroup{
		ID:        uuid.New(),
		ClientID:  clientID,
		Date:      req.Date,
		MealType:  req.MealType,
		PhotoKeys: req.PhotoKeys,
		Notes:     req.Notes,
	}
	if err := h.repo.Create(c.Request.Context(), group); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, group)
}

// List handles meal group listing over a date range.
// GET /api/v1/clients/:id/meal-groups?from=...&to=...
func (h *Handler) List(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	groups, err := h.repo.ListByClientAndRange(c.Request.Context(), clientID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   groups,
	})
}

// Update handles meal group updates.
// PUT /api/v1/clients/:id/meal-groups/:groupId
func (h *Handler) Update(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("groupId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meal group id"})
		return
	}

	group, err := h.repo.Get(c.Request.Context(), groupID)
	if err != nil || group.ClientID != clientID {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal group not found"})
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group.Date = req.Date
	group.MealType = req.MealType
	group.PhotoKeys = req.PhotoKeys
	group.Notes = req.Notes

	if err := h.repo.Update(c.Request.Context(), group); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, group)
}

// Delete handles meal group deletion.
// DELETE /api/v1/clients/:id/meal-groups/:groupId
func (h *Handler) Delete(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("groupId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meal group id"})
		return
	}

	group, err := h.repo.Get(c.Request.Context(), groupID)
	if err != nil || group.ClientID != clientID {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal group not found"})
		return
	}

	if err := h.repo.Delete(c.Request.Context(), groupID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "meal group deleted"})
}

// ExerciseLogRequest is the payload for creating an exercise log.
type ExerciseLogRequest struct {
	Date        time.Time `json:"date" binding:"required"`
	Activity    string    `json:"activity" binding:"required"`
	DurationMin int       `json:"duration_min"`
	Intensity   string    `json:"intensity"`
	Notes       string    `json:"notes"`
}

// CreateExerciseLog handles exercise log creation.
// POST /api/v1/clients/:id/exercise-logs
func (h *Handler) CreateExerciseLog(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	var req ExerciseLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log := &ExerciseLog{
		ID:          uuid.New(),
		ClientID:    clientID,
		Date:        req.Date,
		Activity:    req.Activity,
		DurationMin: req.DurationMin,
		Intensity:   req.Intensity,
		Notes:       req.Notes,
	}
	if err := h.repo.CreateExerciseLog(c.Request.Context(), log); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, log)
}

// ListExerciseLogs handles exercise log listing over a date range.
// GET /api/v1/clients/:id/exercise-logs?from=...&to=...
func (h *Handler) ListExerciseLogs(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	logs, err := h.repo.ListExerciseLogs(c.Request.Context(), clientID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   logs,
	})
}

func (h *Handler) ownedClientID(c *gin.Context) (uuid.UUID, bool) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return uuid.Nil, false
	}

	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}

	owned, err := h.clients.OwnedBy(c.Request.Context(), clientID, coachID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return uuid.Nil, false
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return uuid.Nil, false
	}
	return clientID, true
}

func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	to := now

	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	return from, to, true
}
