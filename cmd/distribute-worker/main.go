// Command distribute-worker claims tasks from a queue service and executes
// them.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alexpearce/distribute-challenge/internal/bench"
	"github.com/alexpearce/distribute-challenge/internal/callable"
	"github.com/alexpearce/distribute-challenge/internal/codec"
	"github.com/alexpearce/distribute-challenge/internal/config"
	"github.com/alexpearce/distribute-challenge/internal/task"
	"github.com/alexpearce/distribute-challenge/internal/transport/httpq"
	"github.com/alexpearce/distribute-challenge/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("distribute-worker: starting",
		"broker_url", cfg.BrokerURL,
		"queue", cfg.Queue,
		"concurrency", cfg.WorkerConcurrency,
	)

	client, err := httpq.New(cfg.BrokerURL, httpq.Options{Logger: logger})
	if err != nil {
		log.Fatalf("create broker client: %v", err)
	}
	defer client.Close()

	reg := callable.NewRegistry()
	if err := bench.Register(reg); err != nil {
		log.Fatalf("register functions: %v", err)
	}

	w, err := worker.New(client, task.StandardHandlers(codec.NewMsgpack(reg)), worker.Options{
		Queue:       cfg.Queue,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("create worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}

// serveMetrics exposes the Prometheus registry on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
