package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/indicators/internal/catalogfile"
	"github.com/JonMunkholm/indicators/internal/config"
	"github.com/JonMunkholm/indicators/internal/core"
	_ "github.com/JonMunkholm/indicators/internal/core/layers" // Register all layers
	"github.com/JonMunkholm/indicators/internal/indicator"
	"github.com/JonMunkholm/indicators/internal/logging"
	"github.com/JonMunkholm/indicators/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"catalog", cfg.Catalog.Path,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"require_api_key", cfg.Security.RequireAPIKey,
	)

	// Load the catalog before touching the database so a bad document
	// fails fast.
	doc, err := catalogfile.LoadFile(cfg.Catalog.Path, catalogfile.Options{MinVersion: cfg.Catalog.MinVersion})
	if err != nil {
		slog.Error("failed to load catalog", "path", cfg.Catalog.Path, "error", err)
		os.Exit(1)
	}
	catalog, err := doc.Build(indicator.BuildOptions{GroupPaired: cfg.Catalog.GroupPaired})
	if err != nil {
		slog.Error("failed to build catalog", "error", err, "user_message", core.FormatUserError(err))
		os.Exit(1)
	}
	slog.Info("catalog loaded",
		"version", doc.Version.String(),
		"indicators", catalog.Len(),
		"sectors", len(catalog.Sectors()),
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	store := core.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create selection tables", "error", err)
		os.Exit(1)
	}

	service, err := core.NewService(catalog, store, core.Options{
		Limits: core.Limits{
			MaxPerSector: cfg.Selection.MaxPerSector,
			MaxSectors:   cfg.Selection.MaxSectors,
			MinTotal:     cfg.Selection.MinTotal,
			MaxTotal:     cfg.Selection.MaxTotal,
		},
		EventLimit: cfg.Selection.EventLimit,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("layers registered", "count", core.LayerCount())
	for _, def := range core.All() {
		slog.Debug("layer", "key", def.Key, "superset", def.SuperSet, "rules", len(def.Validate))
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
