package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/run-bigpig/guardchat/pkg/interfaces"
	"github.com/run-bigpig/guardchat/pkg/supervisor/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

// fakeHealth answers health checks; readyFrom is the first healthy call
// (counting from 1), zero means never healthy
type fakeHealth struct {
	calls     atomic.Int32
	readyFrom int32
}

func (f *fakeHealth) HealthCheck(context.Context) bool {
	n := f.calls.Add(1)
	return f.readyFrom > 0 && n >= f.readyFrom
}

type progressRecorder struct {
	lines []string
}

func (p *progressRecorder) record(message string) {
	p.lines = append(p.lines, message)
}

func (p *progressRecorder) joined() string {
	return strings.Join(p.lines, "\n")
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// writeScript creates an executable stand-in for the gateway
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-gateway")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testConfig(t *testing.T, executable string) Config {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("model_list: []\n"), 0o644))

	return Config{
		ConfigPath:       configPath,
		SourceDir:        filepath.Join(dir, "no-checkout"),
		Executable:       executable,
		PollInterval:     10 * time.Millisecond,
		StartTimeout:     2 * time.Second,
		HandleGrace:      time.Second,
		ScanGrace:        50 * time.Millisecond,
		SignalPause:      5 * time.Millisecond,
		PortReleasePause: 5 * time.Millisecond,
		RestartPause:     5 * time.Millisecond,
		DrainTimeout:     time.Second,
	}
}

// quietInspector finds no other gateway processes
func quietInspector(ctrl *gomock.Controller) *mocks.MockProcessInspector {
	inspector := mocks.NewMockProcessInspector(ctrl)
	inspector.EXPECT().Processes(gomock.Any()).Return(nil, nil).AnyTimes()
	inspector.EXPECT().PIDsOnPort(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	inspector.EXPECT().PIDsMatching(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	return inspector
}

func TestStartAlreadyRunningDoesNotSpawn(t *testing.T) {
	ctrl := gomock.NewController(t)
	progress := &progressRecorder{}

	s := New(Config{ConfigPath: "/does/not/exist.yaml", Executable: "no-such-gateway"},
		WithHealthChecker(&fakeHealth{readyFrom: 1}),
		WithInspector(mocks.NewMockProcessInspector(ctrl)),
		WithProgress(progress.record),
	)

	err := s.Start(context.Background(), DefaultStartOptions())

	require.NoError(t, err)
	assert.Nil(t, s.Handle())
	assert.Contains(t, progress.joined(), "already running")
}

func TestStartMissingConfig(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := New(Config{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")},
		WithHealthChecker(&fakeHealth{}),
		WithInspector(mocks.NewMockProcessInspector(ctrl)),
	)

	err := s.Start(context.Background(), DefaultStartOptions())

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.ErrorIs(t, err, ErrConfigNotFound)
	assert.Nil(t, s.Handle())
}

func TestStartExecutableNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := testConfig(t, "guardchat-no-such-gateway")

	s := New(cfg, WithHealthChecker(&fakeHealth{}), WithInspector(mocks.NewMockProcessInspector(ctrl)))

	err := s.Start(context.Background(), DefaultStartOptions())

	assert.ErrorIs(t, err, ErrExecutableNotFound)
	assert.Nil(t, s.Handle())
}

func TestCommandPrefersSourceCheckout(t *testing.T) {
	skipOnWindows(t)
	cfg := testConfig(t, "guardchat-no-such-gateway")
	cfg.SourceDir = t.TempDir()
	cfg.Interpreter = "sh"

	s := New(cfg, WithHealthChecker(&fakeHealth{}))

	argv, err := s.command()

	require.NoError(t, err)
	require.Len(t, argv, 5)
	assert.Equal(t, []string{"-m", DefaultModule, "--config", cfg.ConfigPath}, argv[1:])
}

func TestStartProcessExitsEarly(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	script := writeScript(t, `echo "Traceback (most recent call last):"
echo "OSError: address already in use"
exit 3`)
	progress := &progressRecorder{}

	s := New(testConfig(t, script),
		WithHealthChecker(&fakeHealth{}),
		WithInspector(quietInspector(ctrl)),
		WithProgress(progress.record),
	)

	err := s.Start(context.Background(), DefaultStartOptions())

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.ErrorIs(t, err, ErrProcessExited)
	require.NotNil(t, launchErr.ExitCode)
	assert.Equal(t, 3, *launchErr.ExitCode)
	assert.Contains(t, launchErr.Output, "OSError: address already in use")
	assert.Contains(t, progress.joined(), "Proxy process exited with code: 3")
	assert.Nil(t, s.Handle())
}

func TestStartTimesOutAndCleansUp(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	script := writeScript(t, `echo "booting"
exec sleep 30`)

	s := New(testConfig(t, script),
		WithHealthChecker(&fakeHealth{}),
		WithInspector(quietInspector(ctrl)),
	)

	start := time.Now()
	err := s.Start(context.Background(), StartOptions{WaitForReady: true, Timeout: 300 * time.Millisecond})

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.ErrorIs(t, err, ErrStartTimeout)
	assert.Nil(t, launchErr.ExitCode)
	assert.Contains(t, launchErr.Output, "booting")
	assert.Nil(t, s.Handle())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStartWaitsForHealth(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	script := writeScript(t, `echo "INFO: Uvicorn running on http://0.0.0.0:4000"
exec sleep 30`)
	progress := &progressRecorder{}

	s := New(testConfig(t, script),
		WithHealthChecker(&fakeHealth{readyFrom: 4}),
		WithInspector(quietInspector(ctrl)),
		WithProgress(progress.record),
	)

	err := s.Start(context.Background(), DefaultStartOptions())
	require.NoError(t, err)

	handle := s.Handle()
	require.NotNil(t, handle)
	assert.Equal(t, s.Config().ConfigPath, handle.ConfigPath)
	assert.Contains(t, progress.joined(), "LiteLLM proxy is running at http://localhost:4000")

	report := s.Stop(context.Background())
	assert.True(t, report.Stopped)
	assert.Nil(t, s.Handle())

	select {
	case <-handle.Exited():
	default:
		t.Fatal("owned process still running after Stop")
	}
}

func TestStartWithoutWait(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	health := &fakeHealth{}
	s := New(testConfig(t, writeScript(t, "exec sleep 30")),
		WithHealthChecker(health),
		WithInspector(quietInspector(ctrl)),
	)

	err := s.Start(context.Background(), StartOptions{WaitForReady: false})

	require.NoError(t, err)
	require.NotNil(t, s.Handle())
	assert.Equal(t, int32(1), health.calls.Load())

	s.Stop(context.Background())
}

func TestStartReusesPendingProcess(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	progress := &progressRecorder{}
	s := New(testConfig(t, writeScript(t, "exec sleep 30")),
		WithHealthChecker(&fakeHealth{}),
		WithInspector(quietInspector(ctrl)),
		WithProgress(progress.record),
	)

	require.NoError(t, s.Start(context.Background(), StartOptions{WaitForReady: false}))
	first := s.Handle()
	require.NotNil(t, first)

	require.NoError(t, s.Start(context.Background(), StartOptions{WaitForReady: false}))

	assert.Same(t, first, s.Handle())
	assert.Equal(t, 1, strings.Count(progress.joined(), "Starting LiteLLM proxy server"))
	assert.Contains(t, progress.joined(), "already starting")

	s.Stop(context.Background())
	select {
	case <-first.Exited():
	default:
		t.Fatal("first process still running after Stop")
	}
}

func TestStartReplacesExitedProcess(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	s := New(testConfig(t, writeScript(t, "exit 0")),
		WithHealthChecker(&fakeHealth{}),
		WithInspector(quietInspector(ctrl)),
	)

	require.NoError(t, s.Start(context.Background(), StartOptions{WaitForReady: false}))
	first := s.Handle()
	require.NotNil(t, first)
	<-first.Exited()

	require.NoError(t, s.Start(context.Background(), StartOptions{WaitForReady: false}))

	second := s.Handle()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	s.Stop(context.Background())
}

func TestStartCancelled(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(testConfig(t, writeScript(t, "exec sleep 30")), WithHealthChecker(&fakeHealth{}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Start(ctx, DefaultStartOptions())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, s.Handle())
}

func TestStopStrategies(t *testing.T) {
	ctrl := gomock.NewController(t)
	self := os.Getpid()
	health := &fakeHealth{readyFrom: 1}

	inspector := mocks.NewMockProcessInspector(ctrl)
	inspector.EXPECT().Processes(gomock.Any()).Return([]interfaces.ProcessInfo{
		{PID: self, Cmdline: "guardchat proxy stop proxy_cli"},
		{PID: 101, Cmdline: "python3 -m litellm.proxy.proxy_cli --config /etc/config.yaml"},
		{PID: 102, Cmdline: "vim notes.txt"},
	}, nil)
	inspector.EXPECT().Terminate(101).Return(nil)
	inspector.EXPECT().Alive(101).Return(false)

	inspector.EXPECT().PIDsOnPort(gomock.Any(), 4000).Return([]int{self, 201}, nil)
	inspector.EXPECT().Terminate(201).Return(nil)
	inspector.EXPECT().Alive(201).Return(true)
	inspector.EXPECT().Kill(201).Return(nil)

	inspector.EXPECT().PIDsMatching(gomock.Any(), "proxy_cli").Return([]int{301}, nil)
	inspector.EXPECT().Terminate(301).Return(errors.New("no such process"))

	progress := &progressRecorder{}
	s := New(testConfig(t, "litellm"),
		WithHealthChecker(health),
		WithInspector(inspector),
		WithProgress(progress.record),
	)

	report := s.Stop(context.Background())

	assert.True(t, report.Stopped)
	assert.False(t, report.StillRunning)
	assert.Equal(t, []StrategyResult{
		{Name: "handle", Stopped: false},
		{Name: "scan", Stopped: true},
		{Name: "port", Stopped: true},
		{Name: "pattern", Stopped: false},
	}, report.Strategies)
	assert.Equal(t, int32(0), health.calls.Load())
	assert.Contains(t, progress.joined(), "Stopping process 201 on port 4000")
	assert.Contains(t, progress.joined(), "Proxy server stopped")
}

func TestStopScanKillsAfterGrace(t *testing.T) {
	ctrl := gomock.NewController(t)

	inspector := quietInspectorWithScan(ctrl, []interfaces.ProcessInfo{
		{PID: 111, Cmdline: "litellm --config config.yaml proxy_cli"},
	})
	inspector.EXPECT().Terminate(111).Return(nil)
	inspector.EXPECT().Alive(111).Return(true).MinTimes(1)
	inspector.EXPECT().Kill(111).Return(nil)

	s := New(testConfig(t, "litellm"), WithHealthChecker(&fakeHealth{}), WithInspector(inspector))

	report := s.Stop(context.Background())

	assert.True(t, report.Stopped)
}

func quietInspectorWithScan(ctrl *gomock.Controller, procs []interfaces.ProcessInfo) *mocks.MockProcessInspector {
	inspector := mocks.NewMockProcessInspector(ctrl)
	inspector.EXPECT().Processes(gomock.Any()).Return(procs, nil)
	inspector.EXPECT().PIDsOnPort(gomock.Any(), gomock.Any()).Return(nil, nil)
	inspector.EXPECT().PIDsMatching(gomock.Any(), gomock.Any()).Return(nil, nil)
	return inspector
}

func TestStopWarnsWhenStillRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	progress := &progressRecorder{}

	s := New(testConfig(t, "litellm"),
		WithHealthChecker(&fakeHealth{readyFrom: 1}),
		WithInspector(quietInspector(ctrl)),
		WithProgress(progress.record),
	)

	report := s.Stop(context.Background())

	assert.False(t, report.Stopped)
	assert.True(t, report.StillRunning)
	assert.Contains(t, progress.joined(), "Try: lsof -ti :4000 | xargs kill")
}

func TestStopSwallowsInspectorErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	failure := errors.New("permission denied")

	inspector := mocks.NewMockProcessInspector(ctrl)
	inspector.EXPECT().Processes(gomock.Any()).Return(nil, failure)
	inspector.EXPECT().PIDsOnPort(gomock.Any(), gomock.Any()).Return(nil, failure)
	inspector.EXPECT().PIDsMatching(gomock.Any(), gomock.Any()).Return(nil, failure)

	s := New(testConfig(t, "litellm"), WithHealthChecker(&fakeHealth{}), WithInspector(inspector))

	var report StopReport
	assert.NotPanics(t, func() {
		report = s.Stop(context.Background())
	})
	assert.False(t, report.Stopped)
	assert.False(t, report.StillRunning)
}

func TestEnsureRunningWhenHealthyHasNoSideEffects(t *testing.T) {
	ctrl := gomock.NewController(t)
	health := &fakeHealth{readyFrom: 1}

	s := New(Config{ConfigPath: "/does/not/exist.yaml"},
		WithHealthChecker(health),
		WithInspector(mocks.NewMockProcessInspector(ctrl)),
	)

	require.NoError(t, s.EnsureRunning(context.Background()))
	assert.Equal(t, int32(1), health.calls.Load())
	assert.Nil(t, s.Handle())
}

func TestEnsureRunningStartsWhenDown(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := New(Config{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")},
		WithHealthChecker(&fakeHealth{}),
		WithInspector(mocks.NewMockProcessInspector(ctrl)),
	)

	err := s.EnsureRunning(context.Background())

	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestRestartStopsThenStarts(t *testing.T) {
	ctrl := gomock.NewController(t)
	progress := &progressRecorder{}

	s := New(testConfig(t, "litellm"),
		WithHealthChecker(&fakeHealth{readyFrom: 1}),
		WithInspector(quietInspector(ctrl)),
		WithProgress(progress.record),
	)

	require.NoError(t, s.Restart(context.Background(), DefaultStartOptions()))

	out := progress.joined()
	stopAt := strings.Index(out, "Stopping LiteLLM proxy server...")
	startAt := strings.Index(out, "LiteLLM proxy is already running.")
	require.GreaterOrEqual(t, stopAt, 0)
	require.GreaterOrEqual(t, startAt, 0)
	assert.Less(t, stopAt, startAt)
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("PYTHON", "")

	cfg := Config{ConfigPath: "config.yaml"}.withDefaults()

	assert.True(t, filepath.IsAbs(cfg.ConfigPath))
	assert.Equal(t, "python3", cfg.Interpreter)
	assert.Equal(t, DefaultModule, cfg.Module)
	assert.Equal(t, DefaultExecutable, cfg.Executable)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMarker, cfg.Marker)
	assert.Equal(t, 20, cfg.OutputLines)
	assert.Equal(t, 30*time.Second, cfg.StartTimeout)
	assert.Equal(t, 5*time.Second, cfg.HandleGrace)
	assert.Equal(t, 3*time.Second, cfg.ScanGrace)
}

func TestParsePIDs(t *testing.T) {
	assert.Equal(t, []int{12, 345}, parsePIDs([]byte("12\n\n345\nnot-a-pid\n")))
	assert.Nil(t, parsePIDs(nil))
}
