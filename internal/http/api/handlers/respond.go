package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/binder"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/quota"
	"github.com/envsyncd/envsyncd/internal/syncstore"
	log "github.com/sirupsen/logrus"
)

// Context keys set by the session auth middleware.
const (
	ContextUserKey    = "authUser"
	ContextSessionKey = "authSession"
)

// CurrentUser returns the authenticated user stored by the auth middleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// CurrentSession returns the resolved session stored by the auth middleware.
func CurrentSession(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*models.Session)
	return session, ok
}

// bindJSON decodes the request body and writes the error response itself on
// failure. A body over the request ceiling maps to 413, anything else to 400.
func bindJSON(c *gin.Context, dest any) bool {
	if errBind := c.ShouldBindJSON(dest); errBind != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(errBind, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request body too large",
				"ceiling": quota.Limit(quota.MaxRequestBodySize),
			})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	return true
}

// respondError maps domain errors onto HTTP status codes. Quota violations
// carry usage figures so clients can display them; not-found is deliberately
// indistinguishable between a missing resource and one owned by someone else.
func respondError(c *gin.Context, err error) {
	var quotaErr *syncstore.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "quota exceeded",
			"quota":   string(quotaErr.Quota),
			"used":    quotaErr.Used,
			"ceiling": quotaErr.Ceiling,
		})
		return
	}
	var sizeErr *syncstore.PayloadTooLargeError
	if errors.As(err, &sizeErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "payload too large",
			"field":   sizeErr.Field,
			"size":    sizeErr.Size,
			"ceiling": sizeErr.Ceiling,
		})
		return
	}
	switch {
	case errors.Is(err, syncstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, syncstore.ErrInvalidContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid env content"})
	case errors.Is(err, binder.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.Is(err, binder.ErrSessionBound):
		c.JSON(http.StatusConflict, gin.H{"error": "session already bound"})
	default:
		log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
