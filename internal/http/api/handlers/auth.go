package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/binder"
	"github.com/envsyncd/envsyncd/internal/config"
	"github.com/envsyncd/envsyncd/internal/models"
	"github.com/envsyncd/envsyncd/internal/notify"
	"github.com/envsyncd/envsyncd/internal/ratelimit"
	"github.com/envsyncd/envsyncd/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler manages account registration and session endpoints.
type AuthHandler struct {
	db           *gorm.DB
	binder       *binder.Binder
	dispatcher   *notify.Dispatcher
	loginLimiter *ratelimit.Limiter
	jwtCfg       config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, b *binder.Binder, d *notify.Dispatcher, limiter *ratelimit.Limiter, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, binder: b, dispatcher: d, loginLimiter: limiter, jwtCfg: jwtCfg}
}

// registerRequest defines the request body for account registration.
type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register creates a new account and queues the welcome email.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if !bindJSON(c, &body) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if strings.TrimSpace(body.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Email:    email,
		Name:     strings.TrimSpace(body.Name),
		Password: hash,
		Active:   true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) || isUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		respondError(c, errCreate)
		return
	}

	h.enqueue(notify.WelcomeEmail{To: user.Email, UserName: user.Name})

	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and opens an unbound session. Attempts are
// counted per client address before credentials are checked, so failed
// guesses burn the same budget as successful logins.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.loginLimiter != nil {
		result, errLimit := h.loginLimiter.Allow(c.Request.Context(), "login:"+c.ClientIP(), time.Now().UTC())
		if errLimit != nil {
			respondError(c, errLimit)
			return
		}
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many login attempts",
				"reset": result.Reset.UTC().Format(time.RFC3339),
			})
			return
		}
	}

	var body loginRequest
	if !bindJSON(c, &body) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("email = ?", email).
		First(&user).Error
	if errFind != nil || !user.Active || !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	session, errSession := h.binder.CreateSession(c.Request.Context(), user.ID, h.jwtCfg.Expiry.Std())
	if errSession != nil {
		respondError(c, errSession)
		return
	}

	token, errToken := security.IssueSessionToken(h.jwtCfg.Secret, h.jwtCfg.Expiry.Std(), session.ID, user.ID)
	if errToken != nil {
		respondError(c, errToken)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"session_id": session.ID,
		"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout discards the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if errDelete := h.binder.DeleteSession(c.Request.Context(), session.ID); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// enqueue hands a notification to the dispatcher. Delivery is asynchronous
// and best effort from the caller's point of view; a full queue is logged and
// the request proceeds.
func (h *AuthHandler) enqueue(p notify.Payload) {
	if h.dispatcher == nil {
		return
	}
	if _, errEnqueue := h.dispatcher.Enqueue(p); errEnqueue != nil {
		log.WithError(errEnqueue).WithField("name", string(p.Name())).Warn("notification not queued")
	}
}

// isUniqueViolation detects duplicate-key failures across the sqlite and
// postgres drivers, which do not all translate to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
