// Package portmgr implements the Port Manager: detecting processes bound to
// a TCP port, evicting them, and searching for a free port. Enumeration and
// termination shell out to the host's lsof/kill, the way an operator would,
// grounded on the corpus's own port-allocation tooling; the "is it actually
// free now" confirmation uses a real bind-probe instead.
package portmgr

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/metrics"
)

// ErrNoFreePort is returned by FindAvailablePort when the retry budget is
// exhausted without finding a free port.
var ErrNoFreePort = errors.New("portmgr: no free port found within retry budget")

const killCleanupWait = 500 * time.Millisecond

// IsPortInUse reports whether port p is currently bound on this host.
// Port 0 (kernel-assigned) is always reported free.
func IsPortInUse(p int) bool {
	if p <= 0 || p > 65535 {
		return false
	}

	pids := holdersOf(p)
	return len(pids) > 0
}

// holdersOf returns the PIDs currently holding p, parsed leniently from
// `lsof -ti:p`. Unrecognized or blank lines are ignored rather than fatal.
func holdersOf(p int) []int {
	cmd := exec.Command("lsof", "-ti", fmt.Sprintf(":%d", p)) //nolint:gosec // G204 - p is validated as a numeric port
	out, err := cmd.Output()
	if err != nil {
		// A non-zero exit from lsof with no stdout means "no matches".
		return nil
	}

	var pids []int
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// Holders returns the PIDs currently holding p, for read-only diagnostics
// (e.g. `mcp-kit doctor`) that must not evict anything.
func Holders(p int) []int {
	if p <= 0 || p > 65535 {
		return nil
	}
	return holdersOf(p)
}

// KillPortHolders terminates every process holding p: a polite SIGTERM
// first, then SIGKILL if the process survives a brief grace period.
// Individual failures are swallowed (a process may have exited on its own
// between enumeration and signaling). Returns true iff at least one PID was
// observed holding the port.
func KillPortHolders(p int) bool {
	pids := holdersOf(p)
	if len(pids) == 0 {
		return false
	}
	metrics.PortEvictionsTotal.Inc()

	for _, pid := range pids {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
	time.Sleep(killCleanupWait)

	for _, pid := range pids {
		if isAlive(pid) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}
	return true
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, syscall.ESRCH)
}

// FindAvailablePort probes start, start+1, ... up to maxRetries attempts
// (start counts as the first) and returns the first free one.
func FindAvailablePort(start, maxRetries int) (int, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		candidate := start + i
		if candidate > 65535 {
			break
		}
		if !IsPortInUse(candidate) && bindProbe(candidate) {
			return candidate, nil
		}
	}
	return 0, ErrNoFreePort
}

// bindProbe confirms p is actually bindable, closing the probe listener
// immediately. Used as the authoritative "is it free" signal, more robust
// than lsof enumeration alone against TIME_WAIT races.
func bindProbe(p int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// EnsurePortAvailable returns true if p is free. If it is not and mayKill is
// true, it attempts KillPortHolders and re-probes; otherwise it returns
// false without side effects.
func EnsurePortAvailable(p int, mayKill bool) bool {
	if !IsPortInUse(p) {
		return true
	}
	if !mayKill {
		return false
	}
	KillPortHolders(p)
	return !IsPortInUse(p) && bindProbe(p)
}
