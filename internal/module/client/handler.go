package client

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/utils/middleware"
)

// Handler handles client API requests.
type Handler struct {
	repo Repository
}

// NewHandler creates a new client handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers client routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/clients", h.Create)
	r.GET("/clients", h.List)
	r.GET("/clients/:id", h.Get)
	r.PUT("/clients/:id", h.Update)
	r.DELETE("/clients/:id", h.Delete)
}

// CreateRequest is the payload for creating a client.
type CreateRequest struct {
	Name     string  `json:"name" binding:"required"`
	Email    string  `json:"email"`
	HeightCM float64 `json:"height_cm"`
	WeightKG float64 `json:"weight_kg"`
	Goal     string  `json:"goal"`
	Notes    string  `json:"notes"`
}

// Create handles client creation.
// POST /api/v1/clients
func (h *Handler) Create(c *gin.Context) {
	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cl := &Client{
		ID:       uuid.New(),
		CoachID:  coachID,
		Name:     req.Name,
		Email:    req.Email,
		HeightCM: req.HeightCM,
		WeightKG: req.WeightKG,
		Goal:     req.Goal,
		Notes:    req.Notes,
	}
	if err := h.repo.Create(c.Request.Context(), cl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, cl)
}

// List handles client listing.
// GET /api/v1/clients
func (h *Handler) List(c *gin.Context) {
	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	clients, err := h.repo.ListByCoach(c.Request.Context(), coachID, 100, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   clients,
	})
}

// Get handles client retrieval.
// GET /api/v1/clients/:id
func (h *Handler) Get(c *gin.Context) {
	cl, ok := h.ownedClient(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cl)
}

// Update handles client updates.
// PUT /api/v1/clients/:id
func (h *Handler) Update(c *gin.Context) {
	cl, ok := h.ownedClient(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cl.Name = req.Name
	cl.Email = req.Email
	cl.HeightCM = req.HeightCM
	cl.WeightKG = req.WeightKG
	cl.Goal = req.Goal
	cl.Notes = req.Notes

	if err := h.repo.Update(c.Request.Context(), cl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, cl)
}

// Delete handles client deletion.
// DELETE /api/v1/clients/:id
func (h *Handler) Delete(c *gin.Context) {
	cl, ok := h.ownedClient(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), cl.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "client deleted"})
}

// ownedClient loads the client in the path and verifies it belongs to
// the authenticated coach.
func (h *Handler) ownedClient(c *gin.Context) (*Client, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return nil, false
	}

	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	cl, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return nil, false
	}
	if cl.CoachID != coachID {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return nil, false
	}
	return cl, true
}
