package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"EasyAPI/internal/app"
	"EasyAPI/internal/db"
	"EasyAPI/internal/logger"

	"github.com/Masterminds/squirrel"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// PostgreSQL
		sqlDB, err := db.InitPostgres(cfg.PostgresDSN)
		if err != nil {
			logger.Error("postgres_init_failed", map[string]any{"error": err.Error()})
			return err
		}
		defer sqlDB.Close()

		rdb := db.InitRedis(cfg.Cache.RedisAddr)
		if rdb != nil {
			if err := db.PingRedis(ctx, rdb); err != nil {
				logger.Warn("redis_unavailable", map[string]any{"addr": cfg.Cache.RedisAddr, "error": err.Error()})
				_ = rdb.Close()
				rdb = nil
			} else {
				defer rdb.Close()
				logger.Info("redis_connected", map[string]any{"addr": cfg.Cache.RedisAddr})
			}
		}

		a, err := app.New(cfg, app.Backends{DB: sqlDB, Redis: rdb, Placeholder: squirrel.Dollar})
		if err != nil {
			logger.Error("app_init_failed", map[string]any{"error": err.Error()})
			return err
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           a.Handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("server_start", map[string]any{"port": cfg.Port, "controllers": len(a.Controllers)})
			log.Printf("starting server on port %s", cfg.Port)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			logger.Info("server_stopping", nil)
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server_error", map[string]any{"error": err.Error()})
				return err
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
