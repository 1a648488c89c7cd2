package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"acquire-server/internal/config"
	"acquire-server/internal/database"
	"acquire-server/internal/server"
)

var (
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "acquire-server",
	Short: "Multiplayer hotel chain game server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = config.NewLogger(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("database migrations applied")
		return nil
	},
}

func init() {
	defaultPath := os.Getenv("ACQUIRE_CONFIG")
	if defaultPath == "" {
		defaultPath = "acquire.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "YAML config file (optional)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func serve(parent context.Context) error {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	customServer, httpServer := server.NewServer(cfg, logger, server.WithDatabase(db))
	if err := customServer.Restore(ctx); err != nil {
		// Start with whatever could be loaded rather than not at all.
		logger.Warn("failed to load persisted state", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return customServer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received, press Ctrl+C again to force")
		stop()
		return gracefulShutdown(customServer, httpServer)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("graceful shutdown complete")
	return nil
}

func gracefulShutdown(customServer *server.Server, httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Tasks.ShutdownTimeout)
	defer cancel()

	// Save games and notify players before closing the listener.
	if err := customServer.Shutdown(ctx); err != nil {
		logger.Error("error during game shutdown", zap.Error(err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server forced to shutdown: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
