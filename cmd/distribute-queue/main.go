// Command distribute-queue runs the queue service: the HTTP API in front of
// the SQLite task store, optionally with worker loops in the same process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alexpearce/distribute-challenge/internal/api"
	"github.com/alexpearce/distribute-challenge/internal/bench"
	"github.com/alexpearce/distribute-challenge/internal/callable"
	"github.com/alexpearce/distribute-challenge/internal/codec"
	"github.com/alexpearce/distribute-challenge/internal/config"
	"github.com/alexpearce/distribute-challenge/internal/engine"
	"github.com/alexpearce/distribute-challenge/internal/events"
	"github.com/alexpearce/distribute-challenge/internal/store"
	"github.com/alexpearce/distribute-challenge/internal/task"
	"github.com/alexpearce/distribute-challenge/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("distribute-queue: starting",
		"listen_addr", cfg.ListenAddr,
		"result_store", cfg.ResultStore,
		"embedded_workers", cfg.EmbeddedWorkers,
	)

	db, err := store.NewSQLiteStore(cfg.ResultStore)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer db.Close()

	eng := engine.NewEngine(db, events.NewBus(logger), logger)
	srv := api.NewServer(cfg.ListenAddr, db, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.EmbeddedWorkers > 0 {
		reg := callable.NewRegistry()
		if err := bench.Register(reg); err != nil {
			log.Fatalf("register functions: %v", err)
		}
		w, err := worker.New(eng, task.StandardHandlers(codec.NewMsgpack(reg)), worker.Options{
			Queue:       cfg.Queue,
			Concurrency: cfg.EmbeddedWorkers,
			ID:          "embedded",
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("create embedded worker: %v", err)
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
