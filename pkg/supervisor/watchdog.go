package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/run-bigpig/guardchat/pkg/logging"
	"github.com/run-bigpig/guardchat/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSchedule is how often the watchdog checks gateway health
	DefaultSchedule = "@every 30s"
	// DefaultDebounce is the quiet period after a settings change before restarting
	DefaultDebounce = 500 * time.Millisecond
)

// Lifecycle is the part of the supervisor the watchdog drives
type Lifecycle interface {
	IsRunning(ctx context.Context) bool
	Start(ctx context.Context, opts StartOptions) error
	Restart(ctx context.Context, opts StartOptions) error
}

// Watchdog keeps the gateway healthy during long sessions: a cron schedule
// starts it when health checks fail and settings file changes restart it.
// Lifecycle calls are serialized.
type Watchdog struct {
	lifecycle   Lifecycle
	configPath  string
	schedule    string
	debounce    time.Duration
	metricsAddr string
	logger      logging.Logger
	metrics     *metrics.Collector

	mu sync.Mutex
}

// WatchdogOption represents an option for configuring the watchdog
type WatchdogOption func(*Watchdog)

// WithSchedule sets the cron schedule for health checks
func WithSchedule(schedule string) WatchdogOption {
	return func(w *Watchdog) {
		w.schedule = schedule
	}
}

// WithDebounce sets the settings change debounce interval
func WithDebounce(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		w.debounce = d
	}
}

// WithMetricsAddr serves Prometheus metrics on addr while the watchdog runs
func WithMetricsAddr(addr string) WatchdogOption {
	return func(w *Watchdog) {
		w.metricsAddr = addr
	}
}

// WithWatchdogLogger sets the logger
func WithWatchdogLogger(logger logging.Logger) WatchdogOption {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// WithWatchdogMetrics sets the metrics collector
func WithWatchdogMetrics(collector *metrics.Collector) WatchdogOption {
	return func(w *Watchdog) {
		w.metrics = collector
	}
}

// NewWatchdog creates a watchdog for the gateway whose settings live at configPath
func NewWatchdog(lifecycle Lifecycle, configPath string, options ...WatchdogOption) *Watchdog {
	w := &Watchdog{
		lifecycle:  lifecycle,
		configPath: configPath,
		schedule:   DefaultSchedule,
		debounce:   DefaultDebounce,
		logger:     logging.Nop(),
	}

	for _, option := range options {
		option(w)
	}

	if abs, err := filepath.Abs(w.configPath); err == nil {
		w.configPath = abs
	}

	return w
}

// Run checks the gateway once, then keeps it running until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) error {
	if _, err := cron.ParseStandard(w.schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", w.schedule, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.configPath, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(w.schedule, func() { w.Check(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule health check: %w", err)
	}

	w.logger.Info(ctx, "Watchdog started", map[string]interface{}{
		"schedule": w.schedule,
		"config":   w.configPath,
	})

	w.Check(ctx)
	scheduler.Start()

	g.Go(func() error {
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	g.Go(func() error {
		return w.watchConfig(ctx, watcher)
	})

	if w.metricsAddr != "" && w.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", w.metrics.Handler())
		server := &http.Server{Addr: w.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	w.logger.Info(ctx, "Watchdog stopped", nil)
	return err
}

// Check starts the gateway when it fails its health check
func (w *Watchdog) Check(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	healthy := w.lifecycle.IsRunning(ctx)
	w.metrics.RecordHealth(healthy)
	if healthy {
		return
	}

	w.logger.Warn(ctx, "Gateway unhealthy, starting it", nil)
	w.metrics.RecordRestart(metrics.ReasonUnhealthy)
	if err := w.lifecycle.Start(ctx, DefaultStartOptions()); err != nil {
		w.metrics.RecordStartFailure()
		w.logger.Error(ctx, "Failed to start gateway", map[string]interface{}{"error": err.Error()})
	}
}

// restart restarts the gateway after a settings change
func (w *Watchdog) restart(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	w.logger.Info(ctx, "Settings changed, restarting gateway", map[string]interface{}{"config": w.configPath})
	w.metrics.RecordRestart(metrics.ReasonConfigChanged)
	if err := w.lifecycle.Restart(ctx, DefaultStartOptions()); err != nil {
		w.metrics.RecordStartFailure()
		w.logger.Error(ctx, "Failed to restart gateway", map[string]interface{}{"error": err.Error()})
	}
}

func (w *Watchdog) watchConfig(ctx context.Context, watcher *fsnotify.Watcher) error {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
		pending sync.WaitGroup
	)
	defer func() {
		timerMu.Lock()
		if timer != nil && timer.Stop() {
			pending.Done()
		}
		timerMu.Unlock()
		pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.isConfigChange(event) {
				continue
			}

			w.logger.Debug(ctx, "Settings file event", map[string]interface{}{
				"path": event.Name,
				"op":   event.Op.String(),
			})

			timerMu.Lock()
			if timer == nil || !timer.Stop() {
				pending.Add(1)
			}
			timer = time.AfterFunc(w.debounce, func() {
				defer pending.Done()
				w.restart(ctx)
			})
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "File watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watchdog) isConfigChange(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.configPath {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
