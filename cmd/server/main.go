package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/craft-console/backend/api/handlers"
	"github.com/craft-console/backend/internal/config"
	"github.com/craft-console/backend/internal/console"
	"github.com/craft-console/backend/internal/db"
	"github.com/craft-console/backend/internal/hub"
	"github.com/craft-console/backend/internal/repository"
	"github.com/craft-console/backend/internal/supervisor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		listen  string
		debug   bool
	)

	root := &cobra.Command{
		Use:           "console-server",
		Short:         "Game server web console backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(pickConfigPath(cfgFile), cfgFile != "")
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return run(cfg, debug)
		},
	}

	root.Flags().StringVar(&cfgFile, "config", "", "Path to config file")
	root.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	root.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return root
}

func pickConfigPath(cfgFile string) string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath
}

func run(cfg *config.Config, debug bool) error {
	logger, err := newLogger(debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	runRepo := repository.NewRunRepository(database)
	scrollback := console.NewBuffer(cfg.ScrollbackLines)

	sup := supervisor.New(supervisor.Config{
		Command:     cfg.Server.Command,
		Args:        cfg.Server.Args,
		Workdir:     cfg.Server.Workdir,
		StopCommand: cfg.Server.StopCommand,
		StopTimeout: cfg.Server.StopTimeout(),
	}, scrollback, runRepo, log.Named("supervisor"))

	broadcastHub := hub.New(log.Named("hub"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go broadcastHub.Run(ctx, sup.Lines())

	serverHandler := handlers.NewServerHandler(sup, runRepo, scrollback, log.Named("api"))
	wsHandler := handlers.NewWebSocketHandler(broadcastHub, sup, log.Named("ws"))

	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		serverHandler.RegisterRoutes(api)
	}
	wsHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("starting server", "listen", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout()+10*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		log.Warnw("failed to stop game server", "error", err)
	}
	broadcastHub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown failed", "error", err)
	}

	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
