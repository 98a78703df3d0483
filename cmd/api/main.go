// Account service entrypoint.
//
// @title        Account Service API
// @version      1.0
// @description  Multi-tenant account service: credential and two-factor login, refresh token rotation, external provider linking, and rank-gated administration.
// @BasePath     /
//
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/stackpoint/account-service/internal/api"
	"github.com/stackpoint/account-service/internal/infrastructure/audit"
	mongodb "github.com/stackpoint/account-service/internal/infrastructure/db/mongo"
	redisdb "github.com/stackpoint/account-service/internal/infrastructure/db/redis"
	"github.com/stackpoint/account-service/internal/infrastructure/email"
	"github.com/stackpoint/account-service/internal/pkg/config"
	"github.com/stackpoint/account-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Service: "account-service",
		Pretty:  cfg.Env == "development",
	})

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connect failed")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("mongodb disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close failed")
		}
	}()

	recorder := audit.NewRecorder(mongodb.NewAuditSink(db), cfg.AuditBuffer, log)
	defer recorder.Close()

	mailer := email.NewLogMailer(log)

	e := api.NewRouter(db, rdb, cfg, recorder, mailer, log)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server start failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
