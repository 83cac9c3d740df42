// Command server runs the desktop supervisor core: it owns the agent
// backend child process, the local session store, the credential
// store, and the HTTP command surface the desktop frontend drives.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/desktop-core/internal/command"
	"github.com/ashureev/desktop-core/internal/config"
	"github.com/ashureev/desktop-core/internal/credstore"
	"github.com/ashureev/desktop-core/internal/sessionstore"
	"github.com/ashureev/desktop-core/internal/supervisor"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	repoRoot := cfg.RepoRoot
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			slog.Error("failed to determine working directory", "error", err)
			os.Exit(1)
		}
		repoRoot = supervisor.DiscoverRepoRoot(wd, "product_validator_search", 6)
	}

	slog.Info("starting desktop supervisor core", "port", cfg.Port, "repo_root", repoRoot)

	store, err := sessionstore.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close session store", "error", closeErr)
		}
	}()
	slog.Info("session store ready", "path", cfg.DBPath)

	creds := credstore.New()
	sup := supervisor.New(repoRoot, cfg.BackendMirrorStdio)

	handler := command.NewHandler(sup, store, creds)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL, "http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler)

	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams (agent-stream, backend-status) never time out writes.
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go handler.WatchBackend(ctx)

	go func() {
		slog.Info("command surface listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("command surface failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sup.Stop(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("command surface forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}
