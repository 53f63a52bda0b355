package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tienda/internal/config"
	"github.com/Skotchmaster/tienda/internal/db"
	"github.com/Skotchmaster/tienda/internal/es"
	"github.com/Skotchmaster/tienda/internal/hash"
	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/metrics"
	"github.com/Skotchmaster/tienda/internal/middleware/csrf"
	"github.com/Skotchmaster/tienda/internal/mykafka"
	"github.com/Skotchmaster/tienda/internal/repo"
	"github.com/Skotchmaster/tienda/internal/service"
	"github.com/Skotchmaster/tienda/internal/service/search"
	"github.com/Skotchmaster/tienda/internal/tokens"
	httpserver "github.com/Skotchmaster/tienda/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx := context.Background()

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}
	if err := db.Migrate(ctx, gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hasher, err := hash.New(cfg.PasswordHasher)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.SeedRoles(ctx, gdb); err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	if err := db.SeedAdmin(ctx, gdb, hasher, db.AdminSeed{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Email:    cfg.AdminEmail,
	}); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	signer := tokens.NewSigner([]byte(cfg.JWTKey), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	m := metrics.New()
	store := repo.New(gdb)

	sessions := service.NewSessionService(store, hasher, signer, cfg.RefreshTTL())
	sessions.Metrics = m
	catalog := &service.CatalogService{Repo: store, Metrics: m}

	var (
		prod   *mykafka.Producer
		events *service.AsyncPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		prod, err = mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatal(err)
		}
		events = service.NewAsyncPublisher(prod, m, cfg.EventQueueSize)
		sessions.Events = events
		catalog.Events = events
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS not set")
	}

	if cfg.ESURL != "" {
		esClient, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword})
		if err != nil {
			logger.Warn("search_disabled", "reason", "elasticsearch unreachable", "error", err)
		} else {
			catalog.Index = &search.ES{Client: esClient, Index: cfg.ESIndex}
		}
	}

	e := echo.New()
	e.HideBanner = true
	httpserver.Use(e, httpserver.Options{
		Logger:             logger,
		Metrics:            m,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		CORSOrigins:        cfg.CORSOrigins,
	})

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = cfg.CookieSecure
	csrfCfg.TrustedOrigins = cfg.CORSOrigins
	httpserver.Register(e, &httpserver.Deps{
		DB:          gdb,
		AuthHandler: &httpserver.AuthHTTP{Svc: sessions, CookieSecure: cfg.CookieSecure},
		Catalog:     &httpserver.CatalogHTTP{Svc: catalog},
		Signer:      signer,
		Metrics:     m,
		CSRF:        csrfCfg,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		logger.Warn("force exit")
		os.Exit(1)
	}()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	} else {
		logger.Error("db() error", "error", err)
	}

	if events != nil {
		if err := events.Close(shutdownCtx); err != nil {
			logger.Error("event queue drain error", "error", err)
		}
	}
	if prod != nil {
		if err := prod.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
