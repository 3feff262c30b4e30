package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/run-bigpig/guardchat/pkg/gateway"
	"github.com/run-bigpig/guardchat/pkg/interfaces"
	"github.com/run-bigpig/guardchat/pkg/logging"
	"github.com/run-bigpig/guardchat/pkg/retry"
	"github.com/run-bigpig/guardchat/pkg/tracing"
)

var (
	errNotReady = errors.New("gateway not ready")

	errorKeywords   = []string{"error", "exception", "traceback", "failed"}
	startupKeywords = []string{"running", "started", "uvicorn"}
)

// ProgressFunc receives user-facing status lines
type ProgressFunc func(message string)

// Supervisor starts, stops and health-checks the gateway process. It owns at
// most one spawned process; gateways started elsewhere are found by scanning.
type Supervisor struct {
	cfg       Config
	logger    logging.Logger
	tracer    interfaces.Tracer
	inspector interfaces.ProcessInspector
	health    interfaces.HealthChecker
	progress  ProgressFunc
	selfPID   int

	mu     sync.Mutex
	handle *ProcessHandle
}

// Option represents an option for configuring the supervisor
type Option func(*Supervisor)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithTracer sets the tracer
func WithTracer(tracer interfaces.Tracer) Option {
	return func(s *Supervisor) {
		s.tracer = tracer
	}
}

// WithInspector sets the process inspector used by Stop
func WithInspector(inspector interfaces.ProcessInspector) Option {
	return func(s *Supervisor) {
		s.inspector = inspector
	}
}

// WithHealthChecker sets the health checker; defaults to a gateway client on BaseURL
func WithHealthChecker(health interfaces.HealthChecker) Option {
	return func(s *Supervisor) {
		s.health = health
	}
}

// WithProgress sets the receiver of user-facing status lines
func WithProgress(progress ProgressFunc) Option {
	return func(s *Supervisor) {
		s.progress = progress
	}
}

// New creates a supervisor
func New(cfg Config, options ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		logger:    logging.Nop(),
		tracer:    tracing.Noop(),
		inspector: OSInspector{},
		progress:  func(string) {},
		selfPID:   os.Getpid(),
	}

	for _, option := range options {
		option(s)
	}

	if s.health == nil {
		s.health = gateway.NewClient(gateway.WithBaseURL(s.cfg.BaseURL), gateway.WithLogger(s.logger))
	}

	return s
}

// Config returns the effective configuration
func (s *Supervisor) Config() Config {
	return s.cfg
}

// Handle returns the owned process, if any
func (s *Supervisor) Handle() *ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Supervisor) setHandle(h *ProcessHandle) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

func (s *Supervisor) takeHandle() *ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = nil
	return h
}

// IsRunning reports whether the gateway answers its health endpoint
func (s *Supervisor) IsRunning(ctx context.Context) bool {
	return s.health.HealthCheck(ctx)
}

// StartOptions controls Start
type StartOptions struct {
	// WaitForReady polls health until the gateway answers
	WaitForReady bool

	// Timeout bounds the wait; zero uses the configured StartTimeout
	Timeout time.Duration
}

// DefaultStartOptions waits for readiness with the configured timeout
func DefaultStartOptions() StartOptions {
	return StartOptions{WaitForReady: true}
}

// Start launches the gateway unless it is already healthy. With
// WaitForReady it returns nil only once the gateway answers health checks;
// a gateway that exits or times out is stopped and reported as *LaunchError.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) (err error) {
	ctx, span := s.tracer.StartSpan(ctx, "supervisor.start", map[string]string{
		"config": s.cfg.ConfigPath,
	})
	defer func() { s.tracer.EndSpan(span, err) }()

	if s.IsRunning(ctx) {
		s.progress("LiteLLM proxy is already running.")
		return nil
	}

	handle := s.pendingHandle()
	if handle != nil {
		s.progress(fmt.Sprintf("LiteLLM proxy is already starting (pid %d).", handle.PID))
	} else {
		handle, err = s.spawn(ctx)
		if err != nil {
			return err
		}
	}

	if !opts.WaitForReady {
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.StartTimeout
	}

	s.progress("Waiting for proxy to be ready...")
	err = s.waitReady(ctx, handle, timeout)
	if err == nil {
		s.progress(fmt.Sprintf("✓ LiteLLM proxy is running at %s", s.cfg.BaseURL))
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.logger.Warn(ctx, "Start interrupted, stopping spawned gateway", map[string]interface{}{"pid": handle.PID})
		if h := s.takeHandle(); h != nil {
			h.terminate(s.cfg.HandleGrace)
		}
		return ctxErr
	}

	launchErr := s.launchFailure(handle, timeout, err)
	s.progress(fmt.Sprintf("✗ Proxy failed to start within %d seconds", int(timeout.Seconds())))
	if len(launchErr.Output) > 0 {
		s.progress("\nProxy output:")
		for _, line := range launchErr.Output {
			if line != "" {
				s.progress("  " + line)
			}
		}
	}
	if launchErr.ExitCode != nil {
		s.progress(fmt.Sprintf("\nProxy process exited with code: %d", *launchErr.ExitCode))
	}
	s.logger.Error(ctx, "Gateway failed to start", map[string]interface{}{
		"reason":    launchErr.Reason,
		"exit_code": launchErr.ExitCode,
	})

	s.Stop(ctx)
	return launchErr
}

// pendingHandle returns the owned process while it is still alive. An owned
// process that already exited is released and forgotten.
func (s *Supervisor) pendingHandle() *ProcessHandle {
	s.mu.Lock()
	h := s.handle
	if h == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-h.Exited():
		s.handle = nil
		s.mu.Unlock()
		h.release()
		return nil
	default:
		s.mu.Unlock()
		return h
	}
}

// spawn launches a new gateway process and takes ownership of it
func (s *Supervisor) spawn(ctx context.Context) (*ProcessHandle, error) {
	if _, err := os.Stat(s.cfg.ConfigPath); err != nil {
		s.progress(fmt.Sprintf("Error: Config file not found: %s", s.cfg.ConfigPath))
		return nil, &LaunchError{
			Reason: fmt.Sprintf("config file not found: %s", s.cfg.ConfigPath),
			Cause:  ErrConfigNotFound,
		}
	}

	argv, err := s.command()
	if err != nil {
		return nil, &LaunchError{Reason: err.Error(), Cause: err}
	}

	s.progress(fmt.Sprintf("Starting LiteLLM proxy server with config: %s", s.cfg.ConfigPath))
	s.progress(fmt.Sprintf("Command: %s", strings.Join(argv, " ")))

	handle, err := startProcess(argv, s.cfg.ConfigPath, s.cfg.OutputLines)
	if err != nil {
		return nil, &LaunchError{Reason: fmt.Sprintf("failed to spawn %s", argv[0]), Cause: err}
	}
	s.setHandle(handle)
	s.logger.Info(ctx, "Spawned gateway process", map[string]interface{}{
		"pid":     handle.PID,
		"command": strings.Join(argv, " "),
	})

	return handle, nil
}

// command resolves the launch command line
func (s *Supervisor) command() ([]string, error) {
	if info, err := os.Stat(s.cfg.SourceDir); err == nil && info.IsDir() {
		interpreter, err := exec.LookPath(s.cfg.Interpreter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExecutableNotFound, s.cfg.Interpreter, err)
		}
		return []string{interpreter, "-m", s.cfg.Module, "--config", s.cfg.ConfigPath}, nil
	}

	executable, err := exec.LookPath(s.cfg.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExecutableNotFound, s.cfg.Executable, err)
	}
	return []string{executable, "--config", s.cfg.ConfigPath}, nil
}

// waitReady polls until the gateway is healthy, the process exits, the
// timeout passes or ctx is done. At most one pending output line is
// surfaced per poll.
func (s *Supervisor) waitReady(ctx context.Context, handle *ProcessHandle, timeout time.Duration) error {
	executor := retry.NewExecutor(retry.NewPolicy(retry.Constant(s.cfg.PollInterval, timeout)))

	return executor.Execute(ctx, func() error {
		select {
		case <-handle.Exited():
			handle.drain(s.cfg.DrainTimeout)
			return retry.Permanent(ErrProcessExited)
		default:
		}

		if line, ok := handle.NextLine(); ok {
			s.surfaceLine(ctx, line)
		}

		if s.IsRunning(ctx) {
			return nil
		}
		return errNotReady
	})
}

func (s *Supervisor) surfaceLine(ctx context.Context, line string) {
	lower := strings.ToLower(line)
	switch {
	case containsAny(lower, errorKeywords):
		s.logger.Warn(ctx, "Gateway output", map[string]interface{}{"line": line})
		s.progress("  " + line)
	case containsAny(lower, startupKeywords):
		s.logger.Info(ctx, "Gateway output", map[string]interface{}{"line": line})
		s.progress("  " + line)
	default:
		s.logger.Debug(ctx, "Gateway output", map[string]interface{}{"line": line})
	}
}

func (s *Supervisor) launchFailure(handle *ProcessHandle, timeout time.Duration, cause error) *LaunchError {
	launchErr := &LaunchError{
		Output:   handle.Tail(),
		ExitCode: handle.ExitCode(),
	}

	if errors.Is(cause, ErrProcessExited) {
		launchErr.Reason = "gateway process exited before becoming ready"
		launchErr.Cause = ErrProcessExited
		return launchErr
	}

	launchErr.Reason = fmt.Sprintf("gateway not ready within %s", timeout)
	launchErr.Cause = ErrStartTimeout
	return launchErr
}

// StrategyResult is the outcome of one stop strategy
type StrategyResult struct {
	Name    string
	Stopped bool
}

// StopReport summarizes a Stop
type StopReport struct {
	// Stopped is true when any strategy terminated a process
	Stopped bool

	// StillRunning is true when nothing was stopped and the gateway still answers
	StillRunning bool

	Strategies []StrategyResult
}

// Stop terminates the gateway with every available strategy: the owned
// process, a command line scan, the listening port and pgrep. Strategy
// failures are logged and never abort the sweep.
func (s *Supervisor) Stop(ctx context.Context) StopReport {
	ctx, span := s.tracer.StartSpan(ctx, "supervisor.stop", nil)
	defer s.tracer.EndSpan(span, nil)

	s.progress("Stopping LiteLLM proxy server...")

	strategies := []struct {
		name string
		run  func(context.Context) bool
	}{
		{"handle", s.stopOwned},
		{"scan", s.stopByScan},
		{"port", s.stopByPort},
		{"pattern", s.stopByPattern},
	}

	var report StopReport
	for _, strategy := range strategies {
		stopped := strategy.run(ctx)
		report.Strategies = append(report.Strategies, StrategyResult{Name: strategy.name, Stopped: stopped})
		report.Stopped = report.Stopped || stopped
	}

	if report.Stopped {
		sleep(ctx, s.cfg.PortReleasePause)
		s.progress("✓ Proxy server stopped")
		return report
	}

	if s.IsRunning(ctx) {
		report.StillRunning = true
		s.logger.Warn(ctx, "Gateway still running after stop", map[string]interface{}{"port": s.cfg.Port})
		s.progress("✗ Warning: Proxy is still running. You may need to stop it manually.")
		s.progress(fmt.Sprintf("  Try: lsof -ti :%d | xargs kill", s.cfg.Port))
	}
	return report
}

func (s *Supervisor) stopOwned(ctx context.Context) bool {
	handle := s.takeHandle()
	if handle == nil {
		return false
	}
	s.logger.Debug(ctx, "Terminating owned gateway process", map[string]interface{}{"pid": handle.PID})
	handle.terminate(s.cfg.HandleGrace)
	return true
}

func (s *Supervisor) stopByScan(ctx context.Context) bool {
	procs, err := s.inspector.Processes(ctx)
	if err != nil {
		s.logger.Debug(ctx, "Process scan failed", map[string]interface{}{"error": err.Error()})
		return false
	}

	stopped := false
	for _, proc := range procs {
		if proc.PID == s.selfPID || !strings.Contains(proc.Cmdline, s.cfg.Marker) {
			continue
		}

		s.progress(fmt.Sprintf("  Stopping proxy process %d...", proc.PID))
		if err := s.inspector.Terminate(proc.PID); err != nil {
			s.logger.Debug(ctx, "Terminate failed", map[string]interface{}{"pid": proc.PID, "error": err.Error()})
			continue
		}
		if !s.waitGone(ctx, proc.PID, s.cfg.ScanGrace) {
			if err := s.inspector.Kill(proc.PID); err != nil {
				s.logger.Debug(ctx, "Kill failed", map[string]interface{}{"pid": proc.PID, "error": err.Error()})
			}
		}
		stopped = true
	}
	return stopped
}

func (s *Supervisor) stopByPort(ctx context.Context) bool {
	pids, err := s.inspector.PIDsOnPort(ctx, s.cfg.Port)
	if err != nil {
		s.logger.Debug(ctx, "Port lookup failed", map[string]interface{}{"port": s.cfg.Port, "error": err.Error()})
		return false
	}
	return s.signalAll(ctx, pids, fmt.Sprintf("on port %d", s.cfg.Port))
}

func (s *Supervisor) stopByPattern(ctx context.Context) bool {
	pids, err := s.inspector.PIDsMatching(ctx, s.cfg.Marker)
	if err != nil {
		s.logger.Debug(ctx, "Pattern lookup failed", map[string]interface{}{"pattern": s.cfg.Marker, "error": err.Error()})
		return false
	}
	return s.signalAll(ctx, pids, "")
}

// signalAll terminates each pid, pauses, then kills those still alive
func (s *Supervisor) signalAll(ctx context.Context, pids []int, where string) bool {
	stopped := false
	for _, pid := range pids {
		if pid == s.selfPID {
			continue
		}

		if where != "" {
			s.progress(fmt.Sprintf("  Stopping process %d %s...", pid, where))
		} else {
			s.progress(fmt.Sprintf("  Stopping proxy process %d...", pid))
		}

		if err := s.inspector.Terminate(pid); err != nil {
			s.logger.Debug(ctx, "Terminate failed", map[string]interface{}{"pid": pid, "error": err.Error()})
			continue
		}
		sleep(ctx, s.cfg.SignalPause)
		if s.inspector.Alive(pid) {
			if err := s.inspector.Kill(pid); err != nil {
				s.logger.Debug(ctx, "Kill failed", map[string]interface{}{"pid": pid, "error": err.Error()})
			}
		}
		stopped = true
	}
	return stopped
}

// waitGone polls until pid has exited or timeout passes
func (s *Supervisor) waitGone(ctx context.Context, pid int, timeout time.Duration) bool {
	executor := retry.NewExecutor(retry.NewPolicy(retry.Constant(100*time.Millisecond, timeout)))
	err := executor.Execute(ctx, func() error {
		if s.inspector.Alive(pid) {
			return errors.New("process " + strconv.Itoa(pid) + " still alive")
		}
		return nil
	})
	return err == nil
}

// EnsureRunning starts the gateway with default options unless it is
// already healthy
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	if s.IsRunning(ctx) {
		return nil
	}
	return s.Start(ctx, DefaultStartOptions())
}

// Restart stops every gateway process, pauses, and starts a new one
func (s *Supervisor) Restart(ctx context.Context, opts StartOptions) error {
	s.Stop(ctx)
	sleep(ctx, s.cfg.RestartPause)
	return s.Start(ctx, opts)
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// sleep pauses for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
