package supervisor

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const pendingLines = 256

// ProcessHandle is a gateway process spawned by the supervisor. Its merged
// stdout and stderr are read line by line for the life of the process.
type ProcessHandle struct {
	PID        int
	ConfigPath string
	StartedAt  time.Time

	cmd    *exec.Cmd
	output *os.File

	// lines buffers output not yet consumed by the readiness loop
	lines     chan string
	pumpDone  chan struct{}
	exited    chan struct{}
	tailSize  int
	mu        sync.Mutex
	tail      []string
	exitCode  *int
	closeOnce sync.Once
}

// startProcess spawns argv with stdout and stderr merged into one pipe
func startProcess(argv []string, configPath string, tailSize int) (*ProcessHandle, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}
	// the child holds its own copy of the write end
	writer.Close()

	h := &ProcessHandle{
		PID:        cmd.Process.Pid,
		ConfigPath: configPath,
		StartedAt:  time.Now(),
		cmd:        cmd,
		output:     reader,
		lines:      make(chan string, pendingLines),
		pumpDone:   make(chan struct{}),
		exited:     make(chan struct{}),
		tailSize:   tailSize,
	}

	go h.pump()
	go h.reap()

	return h, nil
}

func (h *ProcessHandle) pump() {
	defer close(h.pumpDone)

	scanner := bufio.NewScanner(h.output)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		h.mu.Lock()
		h.tail = append(h.tail, line)
		if len(h.tail) > h.tailSize {
			h.tail = h.tail[len(h.tail)-h.tailSize:]
		}
		h.mu.Unlock()

		select {
		case h.lines <- line:
		default:
		}
	}
}

func (h *ProcessHandle) reap() {
	_ = h.cmd.Wait()

	code := h.cmd.ProcessState.ExitCode()
	h.mu.Lock()
	h.exitCode = &code
	h.mu.Unlock()

	close(h.exited)
}

// Exited is closed once the process has been reaped
func (h *ProcessHandle) Exited() <-chan struct{} {
	return h.exited
}

// ExitCode returns the exit code once the process has exited. A process
// killed by a signal reports -1.
func (h *ProcessHandle) ExitCode() *int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exitCode == nil {
		return nil
	}
	code := *h.exitCode
	return &code
}

// NextLine returns one unread output line without blocking
func (h *ProcessHandle) NextLine() (string, bool) {
	select {
	case line := <-h.lines:
		return line, true
	default:
		return "", false
	}
}

// Tail returns the most recent output lines
func (h *ProcessHandle) Tail() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tail...)
}

// drain waits up to timeout for the remaining output after exit
func (h *ProcessHandle) drain(timeout time.Duration) {
	select {
	case <-h.pumpDone:
	case <-time.After(timeout):
	}
}

// terminate sends SIGTERM, escalating to SIGKILL after grace, and releases
// the output pipe
func (h *ProcessHandle) terminate(grace time.Duration) {
	defer h.release()

	select {
	case <-h.exited:
		return
	default:
	}

	_ = h.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-h.exited:
		return
	case <-time.After(grace):
	}

	_ = h.cmd.Process.Kill()
	select {
	case <-h.exited:
	case <-time.After(grace):
	}
}

// release closes the read end so the pump stops even when descendants still
// hold the write end
func (h *ProcessHandle) release() {
	h.closeOnce.Do(func() {
		h.output.Close()
	})
	<-h.pumpDone
}
