package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/notify"
	"github.com/envsyncd/envsyncd/internal/syncstore"
	log "github.com/sirupsen/logrus"
)

// RepositoryHandler manages repository endpoints.
type RepositoryHandler struct {
	store      *syncstore.Store
	dispatcher *notify.Dispatcher
}

// NewRepositoryHandler constructs a RepositoryHandler.
func NewRepositoryHandler(store *syncstore.Store, d *notify.Dispatcher) *RepositoryHandler {
	return &RepositoryHandler{store: store, dispatcher: d}
}

// createRepositoryRequest defines the request body for repository creation.
type createRepositoryRequest struct {
	Name string `json:"name"`
}

// Create inserts a repository for the current user.
func (h *RepositoryHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var body createRepositoryRequest
	if !bindJSON(c, &body) {
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	repo, errCreate := h.store.CreateRepository(c.Request.Context(), user.ID, body.Name)
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, repositoryResponse(repo))
}

// List returns one page of the current user's repositories.
func (h *RepositoryHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(syncstore.DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(syncstore.DefaultLimit)))
	search := strings.TrimSpace(c.Query("search"))

	rows, total, errList := h.store.ListRepositories(c.Request.Context(), user.ID, search, page, limit)
	if errList != nil {
		respondError(c, errList)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, repositoryResponse(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"repositories": out,
		"total":        total,
		"page":         page,
		"limit":        limit,
	})
}

// Get returns a single owned repository with its environment file summary.
func (h *RepositoryHandler) Get(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	repo, errGet := h.store.GetRepositorySummary(c.Request.Context(), user.ID, c.Param("id"))
	if errGet != nil {
		respondError(c, errGet)
		return
	}

	files, errFiles := h.store.ListEnvironments(c.Request.Context(), user.ID, repo.ID)
	if errFiles != nil {
		respondError(c, errFiles)
		return
	}

	resp := repositoryResponse(repo)
	resp["environment_count"] = len(files)
	c.JSON(http.StatusOK, resp)
}

// Delete removes an owned repository together with its environment files and
// queues the deletion notification.
func (h *RepositoryHandler) Delete(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	repo, errGet := h.store.GetRepositorySummary(c.Request.Context(), user.ID, c.Param("id"))
	if errGet != nil {
		respondError(c, errGet)
		return
	}

	if errDelete := h.store.DeleteRepository(c.Request.Context(), user.ID, repo.ID); errDelete != nil {
		respondError(c, errDelete)
		return
	}

	if h.dispatcher != nil {
		payload := notify.RepositoryDeleted{To: user.Email, RepositoryName: repo.Name}
		if _, errEnqueue := h.dispatcher.Enqueue(payload); errEnqueue != nil {
			log.WithError(errEnqueue).WithField("repository_id", repo.ID).Warn("notification not queued")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// repositoryResponse shapes a repository for JSON output.
func repositoryResponse(repo *models.Repository) gin.H {
	return gin.H{
		"id":         repo.ID,
		"name":       repo.Name,
		"created_at": repo.CreatedAt.UTC().Format(time.RFC3339),
	}
}
