package engine

import (
	"context"
	"sync"
	"time"

	"github.com/numera-app/numera/internal/notify"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/reliability"
)

const (
	defaultTaskInterval    = 4 * time.Second
	defaultMessageInterval = 30 * time.Second
	defaultBackoffMax      = 2 * time.Minute
)

// MonitorConfig tunes the background poll loops. Zero values pick defaults.
type MonitorConfig struct {
	TaskInterval    time.Duration
	MessageInterval time.Duration
	BackoffMax      time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.TaskInterval <= 0 {
		c.TaskInterval = defaultTaskInterval
	}
	if c.MessageInterval <= 0 {
		c.MessageInterval = defaultMessageInterval
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	return c
}

// Monitor drives the task and message poll loops for the lifetime of a
// session. Start and Stop are idempotent; calling Start on a running
// monitor never produces a second pair of loops.
type Monitor struct {
	cfg      MonitorConfig
	engine   *Engine
	consumer *notify.Consumer
	store    *notify.Store
	metrics  *observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(cfg MonitorConfig, eng *Engine, consumer *notify.Consumer, store *notify.Store, metrics *observability.Metrics) *Monitor {
	return &Monitor{
		cfg:      cfg.withDefaults(),
		engine:   eng,
		consumer: consumer,
		store:    store,
		metrics:  metrics,
	}
}

// Start launches both poll loops. No-op if already running. Each loop runs
// its first cycle immediately so a fresh login sees backend state without
// waiting a full interval.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.loop(ctx, "tasks_poll", m.cfg.TaskInterval, m.pollTasks)
	}()
	go func() {
		defer wg.Done()
		m.loop(ctx, "messages_consume", m.cfg.MessageInterval, m.consumeMessages)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
}

// Running reports whether the poll loops are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Stop halts both loops and waits for in-progress cycles to finish.
// No-op if not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// loop runs cycle immediately and then on a timer, so cycles never overlap
// even when one runs longer than the interval. Consecutive failures
// stretch the delay exponentially up to BackoffMax.
func (m *Monitor) loop(ctx context.Context, kind string, interval time.Duration, cycle func(context.Context) error) {
	failures := 0
	for {
		start := time.Now()
		err := cycle(ctx)
		if m.metrics != nil {
			m.metrics.ObservePollCycle(kind, time.Since(start), err)
		}
		if err != nil {
			failures++
		} else {
			failures = 0
		}

		delay := interval
		if failures > 0 {
			delay = reliability.ExponentialBackoff(failures, interval, m.cfg.BackoffMax)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) pollTasks(ctx context.Context) error {
	err := m.engine.PollTasks(ctx)
	if err != nil && ctx.Err() == nil && m.store != nil {
		m.store.Push("Task polling failed", err.Error(), notify.SeverityError)
	}
	return err
}

func (m *Monitor) consumeMessages(ctx context.Context) error {
	// Consumer pushes its own failure notification.
	return m.consumer.Consume(ctx)
}
