// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpin "candymint/internal/adapters/in/http"
	"candymint/internal/infra/config"
	"candymint/internal/infra/logging"
	"candymint/internal/platform/di"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[boot] config load failed: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("[boot] logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────
	// DI container
	// ─────────────────────────────────────────────────────────────
	cont, err := di.NewContainer(ctx, cfg, logger, di.Options{})
	if err != nil {
		logger.Fatal("[boot] di init failed", zap.Error(err))
	}
	defer cont.Close()

	if !cfg.HasWalletSource() {
		logger.Warn("[boot] no wallet source configured; POST /v1/mints will answer wallet not found")
	}

	// 起動時に 1 回読んでおく（失敗しても起動は続ける）
	if st, err := cont.Issuance.Refresh(ctx); err != nil {
		logger.Warn("[boot] initial issuance read failed",
			zap.String("candyMachine", cont.Issuance.IssuanceID()),
			zap.Error(err),
		)
	} else {
		logger.Info("[boot] candy machine loaded",
			zap.String("candyMachine", st.Address),
			zap.Uint64("remaining", st.Remaining),
			zap.Uint64("totalSupply", st.TotalSupply),
			zap.Time("saleStart", st.SaleStart),
			zap.Bool("requiresIdentity", st.RequiresIdentity()),
		)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpin.NewRouter(cont.RouterDeps()),
		ReadTimeout: 10 * time.Second,
		// POST /v1/mints は handler 側で書き込み期限を外す。ここはそれ以外のルート向け
		WriteTimeout: cfg.ConfirmTimeout + cfg.BroadcastWait + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// ─────────────────────────────────────────────────────────────
	// Background state refresher（STATE_REFRESH_INTERVAL > 0 のときのみ）
	// ─────────────────────────────────────────────────────────────
	if cfg.RefreshInterval > 0 {
		g.Go(func() error {
			cont.Issuance.Run(gctx, cfg.RefreshInterval)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("[boot] listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ─────────────────────────────────────────────────────────────
	// Graceful shutdown
	// ─────────────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[boot] shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("[boot] server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("[boot] server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("[boot] server stopped")
}
