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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"styleforge/internal/config"
	"styleforge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the forge HTTP API",
	Long: `Starts the HTTP API: session creation, listing, SSE progress
streams, iteration artifacts, ratings, health, and Prometheus metrics.
The config file is watched; scoring settings reload without a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := buildGeminiClient(ctx, cfg)
	if err != nil {
		return err
	}
	store, idx, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	srv := server.NewServer(server.Options{
		Config:    cfg,
		Store:     store,
		Extractor: client,
		Generator: client,
		Evaluator: client,
		Cache:     buildCache(cfg),
	})

	watcher, err := config.NewWatcher(configPath, srv.UpdateConfig)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	httpSrv := &http.Server{
		Addr:              srv.ListenAddr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("forge API listening", zap.String("addr", httpSrv.Addr))
		fmt.Printf("styleforge API on http://%s\n", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
