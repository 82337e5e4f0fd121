// Package api wires the HTTP surface: route registration, the request body
// ceiling, and session authentication.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/binder"
	"github.com/envsyncd/envsyncd/internal/config"
	"github.com/envsyncd/envsyncd/internal/http/api/handlers"
	"github.com/envsyncd/envsyncd/internal/notify"
	"github.com/envsyncd/envsyncd/internal/quota"
	"github.com/envsyncd/envsyncd/internal/ratelimit"
	"github.com/envsyncd/envsyncd/internal/security"
	"github.com/envsyncd/envsyncd/internal/syncstore"
	"gorm.io/gorm"
)

// Deps carries the shared services the handlers are built from.
type Deps struct {
	DB           *gorm.DB
	Store        *syncstore.Store
	Binder       *binder.Binder
	Dispatcher   *notify.Dispatcher
	LoginLimiter *ratelimit.Limiter
	JWT          config.JWTConfig
	Metrics      http.Handler
}

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	r.Use(bodyLimitMiddleware())

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v0 := r.Group("/v0")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Binder, deps.Dispatcher, deps.LoginLimiter, deps.JWT)
	v0.POST("/auth/register", authHandler.Register)
	v0.POST("/auth/login", authHandler.Login)

	authed := v0.Group("")
	authed.Use(sessionAuthMiddleware(deps.Binder, deps.JWT))

	authed.POST("/auth/logout", authHandler.Logout)

	deviceHandler := handlers.NewDeviceHandler(deps.Binder, deps.Dispatcher)
	authed.POST("/devices", deviceHandler.Create)
	authed.GET("/devices", deviceHandler.List)
	authed.DELETE("/devices/:id", deviceHandler.Delete)
	authed.POST("/devices/:id/bind", deviceHandler.Bind)

	repositoryHandler := handlers.NewRepositoryHandler(deps.Store, deps.Dispatcher)
	authed.POST("/repositories", repositoryHandler.Create)
	authed.GET("/repositories", repositoryHandler.List)
	authed.GET("/repositories/:id", repositoryHandler.Get)
	authed.DELETE("/repositories/:id", repositoryHandler.Delete)

	environmentHandler := handlers.NewEnvironmentHandler(deps.Store, deps.Binder)
	authed.GET("/repositories/:id/environments", environmentHandler.List)
	authed.PUT("/repositories/:id/environments", environmentHandler.Push)
}

// bodyLimitMiddleware caps request bodies at the request size ceiling. The
// cap is enforced lazily by the reader, so handlers surface it when binding.
func bodyLimitMiddleware() gin.HandlerFunc {
	ceiling := int64(quota.Limit(quota.MaxRequestBodySize))
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ceiling)
		}
		c.Next()
	}
}

// sessionAuthMiddleware validates the bearer token and resolves the session.
// Every failure mode yields the same 401: a forged token, an expired session,
// and a disabled user are indistinguishable to the caller.
func sessionAuthMiddleware(b *binder.Binder, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		sessionID, errJWT := security.ParseSessionToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, session, errResolve := b.Resolve(c.Request.Context(), sessionID)
		if errResolve != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		c.Set(handlers.ContextUserKey, user)
		c.Set(handlers.ContextSessionKey, session)
		c.Next()
	}
}
