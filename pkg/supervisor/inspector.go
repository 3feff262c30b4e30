package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/run-bigpig/guardchat/pkg/interfaces"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

//go:generate mockgen -destination=mocks/mock_process_inspector.go -package=mocks github.com/run-bigpig/guardchat/pkg/interfaces ProcessInspector

const commandTimeout = 5 * time.Second

// OSInspector implements interfaces.ProcessInspector with gopsutil, lsof
// and pgrep
type OSInspector struct{}

var _ interfaces.ProcessInspector = OSInspector{}

// Processes lists every process whose command line could be read
func (OSInspector) Processes(ctx context.Context) ([]interfaces.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	infos := make([]interfaces.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		infos = append(infos, interfaces.ProcessInfo{PID: int(p.Pid), Cmdline: cmdline})
	}
	return infos, nil
}

// Terminate sends SIGTERM
func (OSInspector) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Terminate()
}

// Kill sends SIGKILL
func (OSInspector) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// Alive reports whether pid exists and is not a zombie
func (OSInspector) Alive(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		return true
	}
	for _, status := range statuses {
		if status == process.Zombie {
			return false
		}
	}
	return true
}

// PIDsOnPort asks lsof for TCP listeners on port. Without lsof the socket
// table is read through gopsutil.
func (OSInspector) PIDsOnPort(ctx context.Context, port int) ([]int, error) {
	pids, err := runPIDCommand(ctx, "lsof", "-ti", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN")
	if !errors.Is(err, exec.ErrNotFound) {
		return pids, err
	}

	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	seen := make(map[int]bool)
	for _, conn := range conns {
		if conn.Laddr.Port != uint32(port) || conn.Status != "LISTEN" || conn.Pid == 0 {
			continue
		}
		if pid := int(conn.Pid); !seen[pid] {
			seen[pid] = true
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// PIDsMatching runs pgrep -f pattern
func (OSInspector) PIDsMatching(ctx context.Context, pattern string) ([]int, error) {
	return runPIDCommand(ctx, "pgrep", "-f", pattern)
}

// runPIDCommand runs a command that prints one pid per line. Exit status 1
// means no matches.
func runPIDCommand(ctx context.Context, name string, args ...string) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return parsePIDs(out), nil
}

func parsePIDs(out []byte) []int {
	var pids []int
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
