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
	"golang.org/x/sync/errgroup"

	"field-sync-service/internal/api"
	"field-sync-service/internal/config"
	"field-sync-service/internal/connectivity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/remote"
	"field-sync-service/internal/store"
	"field-sync-service/internal/sync"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Log.Info("Starting field sync service", zap.String("version", version))

	kv, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open local storage: %w", err)
	}
	defer kv.Close()

	client := remote.NewClient(cfg.Remote, &http.Client{Timeout: cfg.Remote.GetTimeout()})

	var (
		sig    connectivity.Signal
		manual *connectivity.ManualSignal
		poller *connectivity.HTTPSignal
	)
	switch cfg.Connectivity.Mode {
	case config.ConnectivityManual:
		manual = connectivity.NewManualSignal(true)
		sig = manual
	default:
		poller = connectivity.NewHTTPSignal(cfg.Connectivity, nil)
		sig = poller
	}

	manager := sync.NewManager(ctx, cfg, kv, client, sig)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	scheduler := sync.NewScheduler(cfg.Scheduler, manager)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	handler := api.NewHandler(manager, cfg.Server, manual)
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if poller != nil {
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
