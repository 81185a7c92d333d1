package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/utils/middleware"
)

// Uploader stores uploaded report files.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Handler handles health report API requests.
type Handler struct {
	repo    Repository
	clients client.Repository
	storage Uploader
}

// NewHandler creates a new report handler.
func NewHandler(repo Repository, clients client.Repository, storage Uploader) *Handler {
	return &Handler{repo: repo, clients: clients, storage: storage}
}

// RegisterRoutes registers report routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/clients/:id/reports", h.Upload)
	r.GET("/clients/:id/reports", h.List)
	r.GET("/clients/:id/reports/:reportId", h.Get)
	r.DELETE("/clients/:id/reports/:reportId", h.Delete)
}

// Upload handles report file upload.
// POST /api/v1/clients/:id/reports
func (h *Handler) Upload(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	title := c.PostForm("title")
	if title == "" {
		title = file.Filename
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer src.Close()

	id := uuid.New()
	contentType := file.Header.Get("Content-Type")
	key := fmt.Sprintf("reports/%s/%s%s", clientID, id, path.Ext(file.Filename))
	if err := h.storage.Put(c.Request.Context(), key, contentType, src); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	rep := &HealthReport{
		ID:          id,
		ClientID:    clientID,
		Title:       title,
		FileKey:     key,
		ContentType: contentType,
		SizeBytes:   file.Size,
	}
	if err := h.repo.Create(c.Request.Context(), rep); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, rep)
}

// List handles report listing for a client.
// GET /api/v1/clients/:id/reports
func (h *Handler) List(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	reports, err := h.repo.ListByClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   reports,
	})
}

// Get handles report retrieval, including a short-lived download URL.
// GET /api/v1/clients/:id/reports/:reportId
func (h *Handler) Get(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	rep, ok := h.clientReport(c, clientID)
	if !ok {
		return
	}

	url, err := h.storage.PresignGet(c.Request.Context(), rep.FileKey, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":       rep,
		"download_url": url,
	})
}

// Delete handles report deletion.
// DELETE /api/v1/clients/:id/reports/:reportId
func (h *Handler) Delete(c *gin.Context) {
	clientID, ok := h.ownedClientID(c)
	if !ok {
		return
	}

	rep, ok := h.clientReport(c, clientID)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), rep.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	// Best effort: the row is the source of truth, orphaned objects are
	// cleaned up out of band.
	_ = h.storage.Delete(c.Request.Context(), rep.FileKey)

	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
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

func (h *Handler) clientReport(c *gin.Context, clientID uuid.UUID) (*HealthReport, bool) {
	reportID, err := uuid.Parse(c.Param("reportId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return nil, false
	}

	rep, err := h.repo.Get(c.Request.Context(), reportID)
	if err != nil || rep.ClientID != clientID {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return nil, false
	}
	return rep, true
}
