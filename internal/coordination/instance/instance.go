// Package instance implements the Instance Manager: it composes the Lock
// Store, Control Client, and Port Manager into the role operations the
// Coordinator drives, the way a process lifecycle type composes a file
// lock, a server, and PID-file helpers behind one facade.
package instance

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/controlclient"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/lock"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/portmgr"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/proxy"
)

const (
	defaultWaitForPortTimeout = 10 * time.Second
	waitForPortPollInterval   = 300 * time.Millisecond
)

// Manager composes the coordination primitives for a single target port.
type Manager struct {
	lockPath   string
	targetPort int
	version    string
	control    *controlclient.Client

	activeProxy *proxy.Proxy
}

// New builds a Manager for targetPort, using lockPath for the Lock Record
// (typically lock.DefaultPath(targetPort)) and version as this process's
// reported version.
func New(lockPath string, targetPort int, version string) *Manager {
	return &Manager{
		lockPath:   lockPath,
		targetPort: targetPort,
		version:    version,
		control:    controlclient.New(),
	}
}

// TryBecomeMain attempts to atomically claim the lock file for this
// process. Returns true on success.
func (m *Manager) TryBecomeMain() (bool, error) {
	return lock.TryCreate(m.lockPath, lock.NewRecord(m.version))
}

// ReadLock returns the current Lock Record, or nil if absent/corrupt.
func (m *Manager) ReadLock() *lock.Record {
	return lock.Read(m.lockPath)
}

// WriteLock unconditionally overwrites the Lock Record.
func (m *Manager) WriteLock(record lock.Record) error {
	return lock.Overwrite(m.lockPath, record)
}

// RemoveLock removes the Lock Record. Idempotent.
func (m *Manager) RemoveLock() error {
	return lock.Remove(m.lockPath)
}

// FetchMainVersion queries the current primary's /__version.
func (m *Manager) FetchMainVersion(ctx context.Context) *string {
	return m.control.FetchVersion(ctx, m.targetPort)
}

// RequestMainShutdown asks the current primary to shut down.
func (m *Manager) RequestMainShutdown(ctx context.Context) bool {
	return m.control.RequestShutdown(ctx, m.targetPort)
}

// RequestMainTransition asks the current primary to yield the port.
func (m *Manager) RequestMainTransition(ctx context.Context) bool {
	return m.control.RequestTransition(ctx, m.targetPort)
}

// WaitForPort polls the target port every 300ms until a bind succeeds or
// timeout elapses. timeout <= 0 uses the default of 10 seconds, except a
// timeout of exactly 0 is treated as "check once, don't wait" per the
// boundary behavior of an immediate probe.
func (m *Manager) WaitForPort(timeout time.Duration) bool {
	if timeout == 0 {
		return m.bindProbe()
	}
	if timeout < 0 {
		timeout = defaultWaitForPortTimeout
	}

	deadline := time.Now().Add(timeout)
	for {
		if m.bindProbe() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(waitForPortPollInterval)
	}
}

func (m *Manager) bindProbe() bool {
	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(m.targetPort))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// StartProxy starts a Reverse Proxy forwarding to the target port and
// returns its bound listener.
func (m *Manager) StartProxy(listenPort int, metadata proxy.Metadata, onError proxy.OnUpstreamError) (net.Listener, error) {
	p := proxy.New(m.targetPort, metadata, onError)
	ln, err := p.Start(listenPort)
	if err != nil {
		return nil, err
	}
	m.activeProxy = p
	return ln, nil
}

// StopProxy stops the active proxy, if any.
func (m *Manager) StopProxy() error {
	if m.activeProxy == nil {
		return nil
	}
	return m.activeProxy.Stop()
}

// EnsurePortAvailable delegates to the Port Manager for the target port.
func (m *Manager) EnsurePortAvailable(mayKill bool) bool {
	return portmgr.EnsurePortAvailable(m.targetPort, mayKill)
}

// IsPidAlive returns true iff a null-signal probe to pid finds the process:
// the probe succeeds, or fails with any error other than ESRCH (so EPERM,
// a live process owned by another user, counts as alive).
// pid <= 0 is always false. Exposed both as a package function for callers
// that only need the probe, and as a method so Manager satisfies the
// Coordinator's dependency interface.
func IsPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}

// IsPidAlive is the method form of the package function of the same name.
func (m *Manager) IsPidAlive(pid int) bool {
	return IsPidAlive(pid)
}
