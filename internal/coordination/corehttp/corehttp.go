// Package corehttp assembles the primary's loopback HTTP surface: the three
// control-plane endpoints the Coordinator drives secondaries through
// (/__version, /__shutdown, /__transition), plus the observability
// endpoints (/__metrics, /__events) and the MCP request handler itself
// (/mcp), behind one mux owned by the process lifecycle.
package corehttp

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/events"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/metrics"
)

// Hooks are the process-level actions /__shutdown and /__transition trigger
// once the control-plane obligation of replying 200 has been met. Both are
// invoked at most once and must not block the response already written.
type Hooks struct {
	OnShutdown   func()
	OnTransition func()
}

// Server owns the primary's routes. MCP request serving is gated: once
// either control endpoint fires, /mcp starts answering 503 to satisfy the
// "stop accepting new MCP requests" obligation a transitioning primary has.
type Server struct {
	version    string
	hooks      Hooks
	mcpHandler http.Handler
	hub        *events.Hub

	mcpGateClosed atomic.Bool
	once          sync.Once
}

// New builds a Server. mcpHandler answers /mcp while the gate is open; hub
// may be nil to disable /__events.
func New(version string, hooks Hooks, mcpHandler http.Handler, hub *events.Hub) *Server {
	return &Server{version: version, hooks: hooks, mcpHandler: mcpHandler, hub: hub}
}

// Handler returns the assembled mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/__version", s.handleVersion)
	mux.HandleFunc("/__shutdown", s.handleShutdown)
	mux.HandleFunc("/__transition", s.handleTransition)
	mux.Handle("/__metrics", metrics.Handler())
	if s.hub != nil {
		mux.HandleFunc("/__events", s.hub.ServeHTTP)
	}
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

type versionBody struct {
	Version string `json:"version"`
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versionBody{Version: s.version})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.closeMCPGate()
	w.WriteHeader(http.StatusOK)
	s.once.Do(func() {
		if s.hooks.OnShutdown != nil {
			go s.hooks.OnShutdown()
		}
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.closeMCPGate()
	w.WriteHeader(http.StatusOK)
	s.once.Do(func() {
		if s.hooks.OnTransition != nil {
			go s.hooks.OnTransition()
		}
	})
}

func (s *Server) closeMCPGate() {
	s.mcpGateClosed.Store(true)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcpGateClosed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.mcpHandler.ServeHTTP(w, r)
}
