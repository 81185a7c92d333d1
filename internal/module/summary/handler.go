package summary

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/utils/middleware"
)

// Handler serves read access to summaries and recommendations.
// Writes happen only through task executors.
type Handler struct {
	repo    Repository
	clients client.Repository
}

// NewHandler creates a new summary handler.
func NewHandler(repo Repository, clients client.Repository) *Handler {
	return &Handler{repo: repo, clients: clients}
}

// RegisterRoutes registers summary routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/clients/:id/summaries", h.ListSummaries)
	r.GET("/clients/:id/recommendations", h.ListRecommendations)
}

// ListSummaries handles summary listing.
// GET /api/v1/clients/:id/summaries
func (h *Handler) ListSummaries(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	summaries, err := h.repo.ListSummaries(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   summaries,
	})
}

// ListRecommendations handles recommendation listing.
// GET /api/v1/clients/:id/recommendations
func (h *Handler) ListRecommendations(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	recs, err := h.repo.ListRecommendations(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   recs,
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
