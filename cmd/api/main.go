package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekeep/internal/admin"
	"sitekeep/internal/config"
	"sitekeep/internal/handlers"
	"sitekeep/internal/ledger"
	"sitekeep/internal/logging"
	"sitekeep/internal/middleware"
	"sitekeep/internal/registry"
	"sitekeep/internal/session"
	"sitekeep/internal/store"
	"sitekeep/internal/usage"
	"sitekeep/internal/webhook"
	ws "sitekeep/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sitekeep:", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from ./config.env and the environment
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	zl, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return fmt.Errorf("cannot build logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	undo := zap.ReplaceGlobals(zl)
	defer undo()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	db, err := store.Open(ctx, cfg.DBDriver, cfg.DSN, cfg.StoreTimeout)
	if err != nil {
		return fmt.Errorf("cannot connect to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("cannot run migrations: %w", err)
	}
	logger.Infow("database ready", "driver", cfg.DBDriver)

	hub := ws.NewHub(logger.Named("hub"))
	go hub.Run(ctx)

	issuer := session.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	counter := usage.NewCounter(db)
	admins := admin.NewAuthorizer(db, cfg.AdminFingerprints)
	reg := registry.New(db, admins, counter, cfg.InitialLifetime, logger.Named("registry"))
	led := ledger.New(db, hub, logger.Named("ledger"))

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestLogger(logger.Named("http")),
		middleware.SecurityHeaders(),
		cors.New(corsConfig(cfg.CORSOrigins)),
	)

	handlers.Routes{
		Donations: handlers.NewDonationHandler(webhook.NewVerifier(cfg.WebhookSecret), led, logger),
		Sites:     handlers.NewSiteHandler(counter, reg, logger),
		Sessions:  handlers.NewSessionHandler(issuer, reg, cfg.AdminToken, logger),
		Sockets:   handlers.NewWebSocketHandler(hub, issuer, logger.Named("ws")),
		Identity:  middleware.Identity(issuer, cfg.RequireSession, logger),
	}.Register(r)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infow("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", middleware.FingerprintHeader, webhook.SignatureHeader)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
