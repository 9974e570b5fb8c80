// Command ledgerd runs the balance ledger engine as a long-lived process:
// it owns the SQLite ledger, periodically reconciles every group's derived
// caches, and exposes Prometheus metrics and a health endpoint.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/logging"
)

func main() {
	logging.Setup()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.SQLiteDBPath)

	ledger := service.NewLedgerService(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Metrics server starting", "address", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			return reconcileLoop(ctx, ledger, cfg.ReconcileInterval)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("ledgerd failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ledgerd stopped")
}

// reconcileLoop periodically rebuilds every group's derived caches so that
// any drift left behind by best-effort cleanup self-heals.
func reconcileLoop(ctx context.Context, ledger *service.LedgerService, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := ledger.ReconcileAll(ctx); err != nil {
				slog.Warn("Reconcile pass failed", "error", err)
				continue
			}
			slog.Info("Reconcile pass completed", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}
