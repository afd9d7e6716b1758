// Package main wires the budget server's actors together and runs the
// raw-TCP listener. Bootstrap follows the same phased style the original
// chi-based entry point used: configuration, logging, storage, actors,
// listener, then graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/authactor"
	"github.com/apetbrz/budgetserver/internal/config"
	"github.com/apetbrz/budgetserver/internal/logging"
	"github.com/apetbrz/budgetserver/internal/metrics"
	"github.com/apetbrz/budgetserver/internal/router"
	"github.com/apetbrz/budgetserver/internal/server"
	"github.com/apetbrz/budgetserver/internal/session"
	"github.com/apetbrz/budgetserver/internal/staticcache"
	"github.com/apetbrz/budgetserver/internal/store"
	"github.com/apetbrz/budgetserver/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	repo := store.New(pool)
	if err := repo.CreateSchema(ctx, cfg.Database.AuthDatabaseInit, cfg.Database.UserDatabaseInit); err != nil {
		logger.Fatal("failed to create schema", zap.Error(err))
	}

	tokens := token.NewService(cfg.Auth.Secret, cfg.Auth.TokenExpiryMinutes)

	metricsActor := metrics.New(cfg.Metrics.ChannelCapacity, logger)

	sessions := session.New(session.Config{
		Timeout:       cfg.Auth.Timeout,
		SweepInterval: cfg.Auth.SweepInterval,
	}, repo, metricsActor, logger)

	authActor := authactor.New(32, repo, tokens, sessions, metricsActor, logger)

	cache := staticcache.New("web", cfg.Server.DoCaching)
	routes := router.New(
		server.StaticFileHandler(cache, "index.html"),
		server.StaticFileHandler(cache, "home.html"),
		server.StaticFileHandler(cache, "favicon.ico"),
		server.DynamicFileHandler(cache),
	)

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		logger.Fatal("failed to bind listener", zap.Error(err))
	}

	dispatcher := server.New(ln, routes, server.Config{MaxRequestBytes: cfg.Server.MaxRequest}, authActor, sessions, metricsActor, logger)

	serveCtx, cancel := context.WithCancel(ctx)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr()))
		if err := dispatcher.Serve(serveCtx); err != nil {
			logger.Error("dispatcher exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		sessions.ShutdownAll()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(10 * time.Second):
		logger.Warn("timed out waiting for per-user actors to shut down")
	}

	logger.Info("server exited")
}
