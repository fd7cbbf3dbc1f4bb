// Package proxy implements the Reverse Proxy a secondary instance runs:
// accept HTTP on a listen port, forward byte-faithfully to the primary's
// loopback port, annotate with metadata headers, and answer with a 502 JSON
// body when the upstream is unreachable. Built on httputil.ReverseProxy,
// the idiomatic choice for byte-faithful forwarding in this corpus.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// drainWindow bounds how long Stop waits, after closing the listener, for
// in-flight requests to finish; if they have not, Stop returns the context
// error.
const drainWindow = 1 * time.Second

// Metadata annotates every forwarded request with informational headers.
// Clients do not require them; a zero Metadata adds no headers.
type Metadata struct {
	MainVersion string
	InstanceID  string
	StartTime   time.Time
	MainPort    int
}

// OnUpstreamError, if set, is invoked once per failed upstream round trip
// before the 502 is written back to the downstream client.
type OnUpstreamError func(err error)

// Proxy is the secondary-side HTTP forwarder. Start/Stop are idempotent.
type Proxy struct {
	mainPort int
	metadata Metadata
	onError  OnUpstreamError

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	started  bool
	stopped  bool
}

// New builds a Proxy that forwards to http://127.0.0.1:<mainPort>.
func New(mainPort int, metadata Metadata, onError OnUpstreamError) *Proxy {
	return &Proxy{mainPort: mainPort, metadata: metadata, onError: onError}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Start binds listenPort (0 for kernel-assigned) and begins forwarding in
// the background. Calling Start twice is a no-op returning the first bind's
// result.
func (p *Proxy) Start(listenPort int) (net.Listener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return p.listener, nil
	}

	target := &url.URL{Scheme: "http", Host: "127.0.0.1:" + strconv.Itoa(p.mainPort)}
	rp := httputil.NewSingleHostReverseProxy(target)

	baseDirector := rp.Director
	rp.Director = func(r *http.Request) {
		baseDirector(r)
		p.addMetadataHeaders(r)
	}

	// ReverseProxy copies the upstream response as-is; a redirect response
	// is relayed to the downstream client rather than followed here.
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if p.onError != nil {
			p.onError(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(errorBody{
			Error:   "ProxyUpstreamError",
			Message: fmt.Sprintf("Proxy error: %v", err),
		})
	}

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(listenPort))
	if err != nil {
		return nil, err
	}

	p.listener = ln
	p.server = &http.Server{Handler: rp}
	p.started = true

	go func() {
		_ = p.server.Serve(ln)
	}()

	return ln, nil
}

func (p *Proxy) addMetadataHeaders(r *http.Request) {
	if p.metadata.MainVersion != "" {
		r.Header.Set("X-Proxy-Main-Version", p.metadata.MainVersion)
	}
	if p.metadata.InstanceID != "" {
		r.Header.Set("X-Proxy-Instance-Id", p.metadata.InstanceID)
	}
	if !p.metadata.StartTime.IsZero() {
		r.Header.Set("X-Proxy-Start-Time", strconv.FormatInt(p.metadata.StartTime.UnixMilli(), 10))
	}
	if p.metadata.MainPort != 0 {
		r.Header.Set("X-Proxy-Main-Port", strconv.Itoa(p.metadata.MainPort))
	}
}

// Addr returns the bound listener's address, or nil if not started.
func (p *Proxy) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop closes the listener and drains in-flight requests. Idempotent.
func (p *Proxy) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true

	ctx, cancel := context.WithTimeout(context.Background(), drainWindow)
	defer cancel()
	return p.server.Shutdown(ctx)
}
