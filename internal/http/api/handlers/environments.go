package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/binder"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/syncstore"
)

// EnvironmentHandler manages environment file sync endpoints.
type EnvironmentHandler struct {
	store  *syncstore.Store
	binder *binder.Binder
}

// NewEnvironmentHandler constructs an EnvironmentHandler.
func NewEnvironmentHandler(store *syncstore.Store, b *binder.Binder) *EnvironmentHandler {
	return &EnvironmentHandler{store: store, binder: b}
}

// List returns every environment file in an owned repository. An empty list
// is a valid response for a repository with no files yet.
func (h *EnvironmentHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	files, errList := h.store.ListEnvironments(c.Request.Context(), user.ID, c.Param("id"))
	if errList != nil {
		respondError(c, errList)
		return
	}

	out := make([]gin.H, 0, len(files))
	for i := range files {
		out = append(out, environmentResponse(&files[i]))
	}
	c.JSON(http.StatusOK, gin.H{"environments": out})
}

// pushEnvironmentRequest defines the request body for an environment push.
type pushEnvironmentRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Push creates or replaces an environment file. Pushing requires a session
// bound to a live device; the bound device is re-checked here, so a device
// deleted after binding stops pushes immediately. Re-pushing the same file
// name replaces content in place and never counts against the per-repository
// ceiling.
func (h *EnvironmentHandler) Push(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	session, ok := CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	if _, errDevice := h.binder.DeviceForSession(c.Request.Context(), session); errDevice != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "session not bound to a device"})
		return
	}

	var body pushEnvironmentRequest
	if !bindJSON(c, &body) {
		return
	}

	file, errUpsert := h.store.UpsertEnvironmentFile(c.Request.Context(), user.ID, c.Param("id"), body.FileName, body.Content)
	if errUpsert != nil {
		respondError(c, errUpsert)
		return
	}
	c.JSON(http.StatusOK, environmentResponse(file))
}

// environmentResponse shapes an environment file for JSON output.
func environmentResponse(file *models.EnvironmentFile) gin.H {
	return gin.H{
		"id":             file.ID,
		"file_name":      file.FileName,
		"content":        file.Content,
		"variable_count": file.VariableCount,
		"created_at":     file.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     file.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
