package stdiobridge

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcp-kit/mcp-kit-go/internal/demotools"
)

func startUpstream(t *testing.T) int {
	t.Helper()
	impl := &mcp.Implementation{Name: "upstream-test", Version: "1.0.0"}
	srv := mcp.NewServer(impl, nil)
	demotools.Register(srv, "1.0.0")

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	httpSrv := &http.Server{Handler: mux}
	go func() { _ = httpSrv.Serve(ln) }()
	t.Cleanup(func() { _ = httpSrv.Close() })

	return ln.Addr().(*net.TCPAddr).Port
}

func TestConnectUpstreamAndListTools(t *testing.T) {
	port := startUpstream(t)
	b := New(&mcp.Implementation{Name: "bridge-test", Version: "1.0.0"}, port)

	if err := b.connectUpstream(context.Background()); err != nil {
		t.Fatalf("connectUpstream: %v", err)
	}
	defer func() { _ = b.Close() }()

	result, err := b.upstreamSession.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(result.Tools) != 3 {
		t.Errorf("len(Tools) = %d, want 3", len(result.Tools))
	}
}

func TestProxyHandlerForwardsCall(t *testing.T) {
	port := startUpstream(t)
	b := New(&mcp.Implementation{Name: "bridge-test", Version: "1.0.0"}, port)

	if err := b.connectUpstream(context.Background()); err != nil {
		t.Fatalf("connectUpstream: %v", err)
	}
	defer func() { _ = b.Close() }()

	handler := b.proxyHandlerFor("echo")
	result, _, err := handler(context.Background(), nil, proxyArgs{"text": "hi"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("proxied echo returned isError=true: %+v", result.Content)
	}
}

func TestProxyHandlerReturnsErrorResultOnClosedUpstream(t *testing.T) {
	port := startUpstream(t)
	b := New(&mcp.Implementation{Name: "bridge-test", Version: "1.0.0"}, port)
	if err := b.connectUpstream(context.Background()); err != nil {
		t.Fatalf("connectUpstream: %v", err)
	}
	// Close the upstream session so the forwarded call fails; the handler
	// must turn that into an isError result, not a session-ending Go error.
	_ = b.Close()

	handler := b.proxyHandlerFor("echo")
	result, _, err := handler(context.Background(), nil, proxyArgs{"text": "hi"})
	if err != nil {
		t.Fatalf("handler returned a Go error instead of an error result: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatalf("result = %+v, want IsError=true", result)
	}
}
