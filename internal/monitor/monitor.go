// Package monitor estimates task throughput from completion events.
//
// A Monitor runs two activities: ingestion counts task-succeeded events from
// an EventSource, and aggregation turns the count into a rate once per
// interval, smooths it with an exponential moving average and records a
// Sample. Stop ends both and returns every recorded Sample.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexpearce/distribute-challenge/internal/model"
)

const (
	// DefaultInterval is the aggregation period.
	DefaultInterval = time.Second
	// DefaultAlpha weights the newest rate in the moving average.
	DefaultAlpha = 0.75
)

// EventSource delivers task events to subscribers.
type EventSource interface {
	Subscribe(fn func(model.TaskEvent)) (string, error)
	Unsubscribe(id string) error
}

// Sample is the smoothed throughput at the end of one interval.
type Sample struct {
	Time time.Time `json:"time"`
	Rate float64   `json:"rate"`
}

// State is the lifecycle stage of a Monitor.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Monitor. Zero values select the defaults.
type Options struct {
	Interval time.Duration
	Alpha    float64
	// Verbose logs every sample at info level.
	Verbose bool
	Logger  *slog.Logger
	Clock   Clock
}

// Monitor tracks the task completion rate.
type Monitor struct {
	src      EventSource
	interval time.Duration
	alpha    float64
	verbose  bool
	logger   *slog.Logger
	clock    Clock

	mu          sync.Mutex
	state       State
	completed   int
	windowStart time.Time
	smoothed    float64
	samples     []Sample

	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
	final    []Sample
}

// Start subscribes to src and begins aggregating. It returns once the
// subscription is in place and the aggregation loop is running, or with an
// error if either could not be set up before ctx ended. The monitor keeps
// running after ctx is done; only Stop ends it.
func Start(ctx context.Context, src EventSource, opts Options) (*Monitor, error) {
	if src == nil {
		return nil, errors.New("start monitor: event source is required")
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("start monitor: interval must be positive, got %s", opts.Interval)
	}
	if opts.Alpha == 0 {
		opts.Alpha = DefaultAlpha
	}
	if opts.Alpha < 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("start monitor: alpha must be in (0, 1], got %v", opts.Alpha)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	m := &Monitor{
		src:      src,
		interval: opts.Interval,
		alpha:    opts.Alpha,
		verbose:  opts.Verbose,
		logger:   opts.Logger,
		clock:    opts.Clock,
		state:    StateCreated,
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = g

	subscribed := make(chan error, 1)
	looping := make(chan struct{})

	g.Go(func() error { return m.ingest(gctx, subscribed) })
	g.Go(func() error { return m.aggregate(gctx, looping) })

	var err error
	select {
	case err = <-subscribed:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		select {
		case <-looping:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		cancel()
		if ctx.Err() == nil {
			_ = g.Wait()
		}
		// Otherwise Subscribe may still be blocked; both activities exit on
		// their own once it returns.
		return nil, fmt.Errorf("start monitor: %w", err)
	}

	m.mu.Lock()
	m.state = StateRunning
	m.mu.Unlock()

	m.logger.Info("throughput monitor started", "interval", m.interval, "alpha", m.alpha)
	return m, nil
}

// ingest subscribes to the event source, reports the outcome on subscribed,
// and unsubscribes when ctx ends.
func (m *Monitor) ingest(ctx context.Context, subscribed chan<- error) error {
	id, err := m.src.Subscribe(m.record)
	subscribed <- err
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	<-ctx.Done()
	if err := m.src.Unsubscribe(id); err != nil {
		m.logger.Warn("failed to unsubscribe throughput monitor", "subscription_id", id, "error", err)
	}
	return nil
}

// record counts one completion event.
func (m *Monitor) record(ev model.TaskEvent) {
	if ev.Type != model.EventTaskSucceeded {
		return
	}
	m.mu.Lock()
	m.completed++
	m.mu.Unlock()
	eventsTotal.Inc()
}

// aggregate samples the rate once per interval until ctx ends.
func (m *Monitor) aggregate(ctx context.Context, looping chan<- struct{}) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.mu.Lock()
	m.windowStart = m.clock.Now()
	m.mu.Unlock()
	close(looping)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			m.tick()
		}
	}
}

// tick closes the current window and records a sample. A panic is logged
// and the loop carries on.
func (m *Monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("throughput tick panicked", "panic", r)
		}
	}()

	sample, count := m.advance(m.clock.Now())

	throughputGauge.Set(sample.Rate)
	if m.verbose {
		m.logger.Info("throughput", "tasks_per_second", sample.Rate, "completed", count)
	}
}

// advance resets the completion counter and folds its rate into the average.
func (m *Monitor) advance(now time.Time) (Sample, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.completed
	m.completed = 0

	elapsed := now.Sub(m.windowStart).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	m.windowStart = now

	rate := float64(count) / elapsed
	m.smoothed = m.alpha*rate + (1-m.alpha)*m.smoothed

	sample := Sample{Time: now, Rate: m.smoothed}
	m.samples = append(m.samples, sample)
	return sample, count
}

// Stop ends both activities, waits for them and returns all samples in the
// order they were recorded. If no interval has elapsed yet, the open window
// is closed as one sample, so the series is never empty. Later calls return
// the same samples.
func (m *Monitor) Stop() []Sample {
	m.stopOnce.Do(func() {
		m.cancel()
		if err := m.group.Wait(); err != nil {
			m.logger.Warn("throughput monitor stopped with error", "error", err)
		}

		m.mu.Lock()
		empty := len(m.samples) == 0
		m.mu.Unlock()
		if empty {
			m.tick()
		}

		m.mu.Lock()
		m.state = StateStopped
		m.final = slices.Clone(m.samples)
		m.mu.Unlock()

		m.logger.Info("throughput monitor stopped", "samples", len(m.final))
	})
	return slices.Clone(m.final)
}

// State reports the lifecycle stage.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Latest returns the most recent sample, if any.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	return m.samples[len(m.samples)-1], true
}
