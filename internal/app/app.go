// Package app boots the sync server: configuration, database, notification
// dispatcher, and the HTTP engine with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/envsyncd/envsyncd/internal/binder"
	"github.com/envsyncd/envsyncd/internal/config"
	"github.com/envsyncd/envsyncd/internal/db"
	"github.com/envsyncd/envsyncd/internal/http/api"
	"github.com/envsyncd/envsyncd/internal/mailer"
	"github.com/envsyncd/envsyncd/internal/metrics"
	"github.com/envsyncd/envsyncd/internal/notify"
	"github.com/envsyncd/envsyncd/internal/ratelimit"
	"github.com/envsyncd/envsyncd/internal/syncstore"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds in-flight request draining on shutdown.
const shutdownTimeout = 10 * time.Second

// ConfigExists reports whether the config file is present.
func ConfigExists(configPath string) bool {
	info, err := os.Stat(configPath)
	return err == nil && !info.IsDir()
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the sync server and blocks until ctx is cancelled or the
// listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if serverCfg.JWT.Secret == "" {
		return errors.New("missing jwt secret (set jwt.secret or env JWT_SECRET)")
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	limiter := buildLoginLimiter(serverCfg)
	dispatcher := notify.NewDispatcher(buildTransport(serverCfg), notify.Options{
		Workers:   serverCfg.Notify.Workers,
		QueueSize: serverCfg.Notify.QueueSize,
	})
	dispatcher.Start()
	defer dispatcher.Close()
	go metrics.ObserveNotifications(dispatcher.Events())

	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, api.Deps{
		DB:           conn,
		Store:        syncstore.NewStore(conn),
		Binder:       binder.NewBinder(conn),
		Dispatcher:   dispatcher,
		LoginLimiter: limiter,
		JWT:          serverCfg.JWT,
		Metrics:      metrics.Handler(),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("sync server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildLoginLimiter selects the rate-limit backing store. Redis keeps login
// windows across restarts and replicas; the in-memory store covers
// single-node deployments without one.
func buildLoginLimiter(cfg config.ServerConfig) *ratelimit.Limiter {
	var store ratelimit.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = ratelimit.NewRedisStore(client, "envsyncd")
		log.WithField("addr", cfg.Redis.Addr).Info("using redis rate-limit store")
	} else {
		store = ratelimit.NewMemoryStore()
	}
	return ratelimit.NewLimiter(store, cfg.Auth.LoginLimit, cfg.Auth.LoginWindow.Std())
}

// buildTransport selects the notification transport. Without an SMTP host the
// server still runs; deliveries are logged instead of sent.
func buildTransport(cfg config.ServerConfig) notify.Transport {
	if cfg.SMTP.Host != "" {
		smtpMailer, errMailer := mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Timeout:  cfg.SMTP.Timeout.Std(),
		})
		if errMailer == nil {
			return smtpMailer
		}
		log.WithError(errMailer).Warn("smtp config invalid, falling back to log transport")
	}
	return notify.TransportFunc(func(_ context.Context, job notify.JobHandle) error {
		log.WithFields(log.Fields{
			"job_id": job.JobID,
			"name":   string(job.Name),
			"to":     job.Data["to"],
		}).Info("notification (no smtp host configured)")
		return nil
	})
}
