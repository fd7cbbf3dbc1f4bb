package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"

	"github.com/mcp-kit/mcp-kit-go/internal/config"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/coordinator"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/corehttp"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/events"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/instance"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/lock"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/metrics"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/portmgr"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/proxy"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/stdiobridge"
	"github.com/mcp-kit/mcp-kit-go/internal/demotools"
	"github.com/mcp-kit/mcp-kit-go/internal/runtime"
)

const (
	defaultWaitForPortTimeout = 10 * time.Second
	gracefulShutdownWindow    = 1 * time.Second
)

// runServe drives one process through the full election lifecycle: win
// or lose, then run the role-appropriate server until a signal or a
// control-plane request ends it.
func runServe(ctx context.Context, cfg config.Config) error {
	if !runtime.IsHostRuntime() || !cfg.Local {
		return runEphemeral(ctx, cfg)
	}

	lockPath := lock.DefaultPath(cfg.Port)
	mgr := instance.New(lockPath, cfg.Port, cfg.Version)

	// Only evict holders the election protocol itself would not reach
	// through /__transition: a live lock-tracked primary is left alone so
	// it yields gracefully via the Coordinator instead of being killed.
	if cfg.Local {
		if rec := mgr.ReadLock(); rec == nil || !mgr.IsPidAlive(rec.PID) {
			if !mgr.EnsurePortAvailable(!cfg.NoKill) {
				fmt.Fprintf(os.Stderr, "mcp-kit: warning: port %d is in use and could not be freed\n", cfg.Port)
			}
		}
	}

	outcome, err := coordinator.Run(ctx, mgr, coordinator.Options{
		DesiredVersion:  cfg.Version,
		WaitForPort:     defaultWaitForPortTimeout,
		RemoveStaleLock: true,
	})
	if err != nil {
		return fmt.Errorf("election: %w", err)
	}

	instanceID := newInstanceID()
	hub := events.NewHub()
	recordRoleMetrics(outcome)
	hub.Broadcast(roleTransitionEvent(outcome, instanceID))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if outcome.Role == coordinator.RolePrimary {
		return runPrimary(ctx, mgr, cfg, outcome, hub, instanceID)
	}
	return runSecondary(ctx, mgr, cfg, outcome, hub, instanceID)
}

// runEphemeral serves the MCP handler directly, with no lock file, port
// eviction, or election. It runs when --local is not given, and on a
// request-scoped edge/serverless runtime, where an invocation cannot outlive
// a single request and there is nothing for the coordination core to persist
// or recover across invocations of.
func runEphemeral(ctx context.Context, cfg config.Config) error {
	impl := &mcp.Implementation{Name: "mcp-kit", Version: cfg.Version}
	mcpServer := mcp.NewServer(impl, nil)
	demotools.Register(mcpServer, cfg.Version)

	if cfg.Mode == config.ModeStdio {
		return mcpServer.Run(ctx, &mcp.StdioTransport{})
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("bind ephemeral port %d: %w", cfg.Port, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	httpServer := &http.Server{Handler: mux}
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.Serve(ln) }()

	fmt.Fprintf(os.Stderr, "mcp-kit: serving :%d without coordination\n", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ephemeral server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownWindow)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newInstanceID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

func recordRoleMetrics(outcome coordinator.Outcome) {
	metrics.RoleTransitionsTotal.WithLabelValues(string(outcome.Reason)).Inc()
	if outcome.Role == coordinator.RolePrimary {
		metrics.InstanceRole.Set(float64(metrics.RolePrimary))
		return
	}
	metrics.InstanceRole.Set(float64(metrics.RoleSecondary))
}

func roleTransitionEvent(outcome coordinator.Outcome, instanceID string) events.Event {
	return events.Event{
		Kind:       "role-transition",
		Time:       time.Now(),
		Role:       outcome.Role.String(),
		Reason:     string(outcome.Reason),
		InstanceID: instanceID,
	}
}

// runPrimary binds the well-known port directly and serves the control
// plane and /mcp until a signal arrives or /__shutdown or /__transition
// fires.
func runPrimary(ctx context.Context, mgr *instance.Manager, cfg config.Config, outcome coordinator.Outcome, hub *events.Hub, instanceID string) error {
	impl := &mcp.Implementation{Name: "mcp-kit", Version: cfg.Version}
	mcpServer := mcp.NewServer(impl, nil)
	demotools.Register(mcpServer, cfg.Version)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpServer }, nil)

	var shutdownOnce sync.Once
	shutdownCh := make(chan struct{})
	triggerShutdown := func() {
		shutdownOnce.Do(func() { close(shutdownCh) })
	}

	core := corehttp.New(cfg.Version, corehttp.Hooks{
		OnShutdown:   triggerShutdown,
		OnTransition: triggerShutdown,
	}, mcpHandler, hub)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("bind primary port %d: %w", cfg.Port, err)
	}

	httpServer := &http.Server{Handler: core.Handler()}
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.Serve(ln) }()

	fmt.Fprintf(os.Stderr, "mcp-kit: primary on :%d (%s/%s)\n", cfg.Port, outcome.Role, outcome.Reason)

	select {
	case <-ctx.Done():
		triggerShutdown()
	case <-shutdownCh:
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("primary server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownWindow)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return mgr.RemoveLock()
}

// runSecondary runs the HTTP reverse proxy or the stdio bridge, depending
// on cfg.Mode, until ctx is cancelled.
func runSecondary(ctx context.Context, mgr *instance.Manager, cfg config.Config, outcome coordinator.Outcome, hub *events.Hub, instanceID string) error {
	fmt.Fprintf(os.Stderr, "mcp-kit: secondary (%s), primary version %q\n", outcome.Reason, outcome.MainVersion)

	if cfg.Mode == config.ModeStdio {
		impl := &mcp.Implementation{Name: "mcp-kit", Version: cfg.Version}
		bridge := stdiobridge.New(impl, cfg.Port)
		defer func() { _ = bridge.Close() }()
		return bridge.Run(ctx)
	}

	listenPort, err := portmgr.FindAvailablePort(cfg.Port+1, 10)
	if err != nil {
		return fmt.Errorf("find proxy listen port: %w", err)
	}

	metadata := proxy.Metadata{
		MainVersion: outcome.MainVersion,
		InstanceID:  instanceID,
		StartTime:   time.Now(),
		MainPort:    cfg.Port,
	}

	ln, err := mgr.StartProxy(listenPort, metadata, func(upstreamErr error) {
		fmt.Fprintf(os.Stderr, "mcp-kit: proxy upstream error: %v\n", upstreamErr)
		metrics.ProxyUpstreamErrorsTotal.Inc()
		hub.Broadcast(events.Event{
			Kind:       "proxy-error",
			Time:       time.Now(),
			InstanceID: instanceID,
			Message:    upstreamErr.Error(),
		})
	})
	if err != nil {
		return fmt.Errorf("start reverse proxy: %w", err)
	}

	fmt.Fprintf(os.Stderr, "mcp-kit: secondary proxying :%d -> :%d\n", ln.Addr().(*net.TCPAddr).Port, cfg.Port)

	<-ctx.Done()
	return mgr.StopProxy()
}
