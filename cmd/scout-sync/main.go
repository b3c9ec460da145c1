package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/scout-sync/internal/config"
	"github.com/alexjbarnes/scout-sync/internal/logging"
	"github.com/alexjbarnes/scout-sync/internal/mcpserver"
	"github.com/alexjbarnes/scout-sync/internal/scout"
	"github.com/alexjbarnes/scout-sync/internal/server"
	"github.com/alexjbarnes/scout-sync/internal/session"
	"github.com/alexjbarnes/scout-sync/internal/settings"
	"github.com/alexjbarnes/scout-sync/pantry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("scout-sync starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
		slog.String("settings", cfg.SettingsDB),
		slog.Bool("mcp", cfg.EnableMCP),
	)

	store, err := settings.OpenAt(cfg.SettingsDB)
	if err != nil {
		return fmt.Errorf("opening settings: %w", err)
	}
	defer store.Close()

	hub := server.NewHub(logger)

	client := pantry.NewClient(&http.Client{
		Timeout:       cfg.HTTPTimeout,
		CheckRedirect: pantry.SameHostRedirectPolicy,
	})

	engine := scout.NewEngine(scout.Config{
		Resolver:     pantry.NewResolver(cfg.URLTemplate),
		Debounce:     cfg.Debounce,
		TickInterval: cfg.TickInterval,
		Cooldown:     cfg.Cooldown,
		PushTimeout:  cfg.HTTPTimeout,
	}, client, hub, logger)

	sess := session.New(session.Config{
		LiveAppURL: cfg.LiveAppURL,
		AllowFile:  cfg.AllowsFile,
	}, engine, store, hub, logger)

	overrides := session.Overrides{
		ScoutFile: cfg.ScoutFile,
		PantryID:  cfg.PantryID,
	}
	if b64, ok := cfg.B64(); ok {
		overrides.B64 = &b64
	}

	if err := sess.Restore(overrides); err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})

	g.Go(func() error {
		return runServer(gctx, cfg, sess, hub, logger)
	})

	return g.Wait()
}

// runServer serves the control API and event stream until ctx is
// cancelled.
func runServer(ctx context.Context, cfg *config.Config, sess *session.Session, hub *server.Hub, logger *slog.Logger) error {
	var mcpHandler http.Handler

	if cfg.EnableMCP {
		mcpLogger := logger.With(slog.String("component", "mcp"))

		mcpServer := mcp.NewServer(
			&mcp.Implementation{Name: "scout-sync", Version: Version},
			nil,
		)
		mcpserver.RegisterTools(mcpServer, sess, mcpLogger)

		mcpHandler = mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)
	}

	mux := server.NewMux(server.MuxConfig{
		Session:    sess,
		Hub:        hub,
		MCPHandler: mcpHandler,
		Logger:     logger,
	})

	// No write timeout: the event stream is long-lived.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("control API listening", slog.String("addr", cfg.ListenAddr))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down control API")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		srv.Shutdown(shutdownCtx)
		hub.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control API error: %w", err)
	}

	return nil
}
