// Command distribute-bench measures task throughput for a range of worker
// counts and writes the monitor samples as CSV.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/backend/local"
	"github.com/alexpearce/distribute-challenge/internal/backend/queue"
	"github.com/alexpearce/distribute-challenge/internal/bench"
	"github.com/alexpearce/distribute-challenge/internal/callable"
	"github.com/alexpearce/distribute-challenge/internal/codec"
	"github.com/alexpearce/distribute-challenge/internal/config"
	"github.com/alexpearce/distribute-challenge/internal/deferred"
	"github.com/alexpearce/distribute-challenge/internal/events"
	"github.com/alexpearce/distribute-challenge/internal/monitor"
	"github.com/alexpearce/distribute-challenge/internal/task"
	"github.com/alexpearce/distribute-challenge/internal/transport/httpq"
	"github.com/alexpearce/distribute-challenge/internal/worker"
)

func main() {
	cfg := config.Load()

	app := &cli.App{
		Name:  "distribute-bench",
		Usage: "measure deferred computation throughput",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backend", Value: cfg.Backend, EnvVars: []string{"DISTRIBUTE_BACKEND"}, Usage: "local, queue or auto"},
			&cli.StringFlag{Name: "broker-url", Value: cfg.BrokerURL, EnvVars: []string{"DISTRIBUTE_BROKER_URL"}},
			&cli.StringFlag{Name: "queue", Value: cfg.Queue, EnvVars: []string{"DISTRIBUTE_QUEUE"}},
			&cli.IntFlag{Name: "min-workers", Value: 1},
			&cli.IntFlag{Name: "max-workers", Value: 4},
			&cli.DurationFlag{Name: "runtime", Value: 30 * time.Second, Usage: "target load duration per worker count"},
			&cli.DurationFlag{Name: "task-runtime", Value: time.Second, Usage: "CPU time each task burns"},
			&cli.DurationFlag{Name: "cool-down", Value: bench.DefaultCoolDown},
			&cli.BoolFlag{Name: "embedded-workers", Usage: "run queue workers inside this process"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "CSV path (default: timestamped)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every monitor sample"},
			&cli.StringFlag{Name: "log-level", Value: cfg.LogLevel.String(), EnvVars: []string{"DISTRIBUTE_LOG_LEVEL"}},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "backends",
				Usage:  "list the available backends",
				Action: listBackends,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("distribute-bench: %v", err)
	}
}

// setup holds what every subcommand needs.
type setup struct {
	logger   *slog.Logger
	reg      *callable.Registry
	handlers *task.Handlers
	bus      *events.Bus
	client   *httpq.Client
	backends *backend.Registry
}

func newSetup(c *cli.Context) (*setup, error) {
	logger := config.NewLogger(os.Stderr, config.ParseLogLevel(c.String("log-level")))

	reg := callable.NewRegistry()
	if err := bench.Register(reg); err != nil {
		return nil, err
	}
	ser := codec.NewMsgpack(reg)
	handlers := task.StandardHandlers(ser)
	bus := events.NewBus(logger)

	client, err := httpq.New(c.String("broker-url"), httpq.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	qb, err := queue.New(client, handlers, queue.Options{Queue: c.String("queue"), Logger: logger})
	if err != nil {
		return nil, err
	}

	backends := backend.NewRegistry()
	backends.Register(backend.NameLocal, bench.Observe(local.New(ser), bus))
	backends.Register(backend.NameQueue, qb)

	return &setup{
		logger:   logger,
		reg:      reg,
		handlers: handlers,
		bus:      bus,
		client:   client,
		backends: backends,
	}, nil
}

func listBackends(c *cli.Context) error {
	s, err := newSetup(c)
	if err != nil {
		return err
	}
	defer s.client.Close()

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(s.backends.List())
}

func run(c *cli.Context) error {
	minWorkers, maxWorkers := c.Int("min-workers"), c.Int("max-workers")
	if minWorkers < 1 || maxWorkers < minWorkers {
		return fmt.Errorf("invalid worker range %d..%d", minWorkers, maxWorkers)
	}
	taskRuntime := c.Duration("task-runtime")
	if taskRuntime <= 0 {
		return fmt.Errorf("task-runtime must be positive, got %v", taskRuntime)
	}

	s, err := newSetup(c)
	if err != nil {
		return err
	}
	defer s.client.Close()

	b, err := s.backends.Resolve(c.String("backend"))
	if err != nil {
		return err
	}
	caps := b.Capabilities()

	var src monitor.EventSource = s.bus
	if caps.Remote {
		src = s.client
	}

	busy, _ := s.reg.Lookup(bench.FuncBusy)
	d, err := deferred.New(busy.Callable(), nil, map[string]any{"runtime": taskRuntime.Seconds()})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	perWorker := int(math.Ceil(float64(c.Duration("runtime")) / float64(taskRuntime)))
	var results []*bench.Result
	for n := minWorkers; n <= maxWorkers; n++ {
		runCfg := bench.Config{
			Workers:  n,
			Tasks:    perWorker * n,
			CoolDown: c.Duration("cool-down"),
			Monitor:  monitor.Options{Verbose: c.Bool("verbose")},
			Logger:   s.logger,
		}
		if !caps.Remote {
			// Locally the worker count is the number of computations in flight.
			runCfg.Concurrency = n
		}

		res, err := runWithWorkers(ctx, c, s, n, caps.Remote, func(ctx context.Context) (*bench.Result, error) {
			return bench.Run(ctx, b, src, d, runCfg)
		})
		if err != nil {
			return fmt.Errorf("%d workers: %w", n, err)
		}
		s.logger.Info("benchmark run finished",
			"workers", n,
			"failed", res.Failed,
			"elapsed", res.Elapsed,
			"peak_rate", res.Peak(),
		)
		results = append(results, res)
	}

	output := c.String("output")
	if output == "" {
		output = fmt.Sprintf("%s-%d-to-%d-workers-throughput.csv", time.Now().Format("20060102-150405"), minWorkers, maxWorkers)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := bench.WriteCSV(f, results); err != nil {
		f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	s.logger.Info("results written", "path", output)
	return nil
}

// runWithWorkers runs fn, with n queue workers alive in this process for its
// duration when embedded workers were requested for a remote backend.
func runWithWorkers(ctx context.Context, c *cli.Context, s *setup, n int, remote bool, fn func(context.Context) (*bench.Result, error)) (*bench.Result, error) {
	if !remote || !c.Bool("embedded-workers") {
		return fn(ctx)
	}

	w, err := worker.New(s.client, s.handlers, worker.Options{
		Queue:       c.String("queue"),
		Concurrency: n,
		ID:          fmt.Sprintf("bench-%d", n),
		Logger:      s.logger,
	})
	if err != nil {
		return nil, err
	}
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(workerCtx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			s.logger.Warn("embedded workers stopped with error", "error", err)
		}
	}()

	return fn(ctx)
}
