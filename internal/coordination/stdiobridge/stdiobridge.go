// Package stdiobridge presents an MCP server façade over stdin/stdout whose
// two request handlers, list-tools and call-tool, delegate to an MCP client
// connected to the primary's HTTP streaming endpoint. Used when the local
// process is a secondary but the attached client only speaks stdio.
// Built on mcp.AddTool + server.Run(ctx, &mcp.StdioTransport{}) for the
// downstream façade, and on the HTTP-transport MCP client (mcp.NewClient +
// mcp.StreamableClientTransport, mcp.ClientSession.ListTools/CallTool) for
// the upstream connection.
package stdiobridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Bridge owns a downstream stdio server and an upstream HTTP client session
// to the primary. The downstream tool set is discovered once from the
// upstream at connect time and re-advertised with a generic input/output
// shape; call arguments are forwarded verbatim regardless of shape.
type Bridge struct {
	impl       *mcp.Implementation
	mainPort   int
	httpClient *http.Client

	upstreamClient  *mcp.Client
	upstreamSession *mcp.ClientSession
}

// New builds a Bridge that will connect to the primary on mainPort once
// Run is called.
func New(impl *mcp.Implementation, mainPort int) *Bridge {
	return &Bridge{impl: impl, mainPort: mainPort, httpClient: &http.Client{}}
}

func (b *Bridge) connectUpstream(ctx context.Context) error {
	b.upstreamClient = mcp.NewClient(b.impl, nil)
	transport := &mcp.StreamableClientTransport{
		Endpoint:   fmt.Sprintf("http://127.0.0.1:%d/mcp", b.mainPort),
		HTTPClient: b.httpClient,
	}
	session, err := b.upstreamClient.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	b.upstreamSession = session
	return nil
}

// Close tears down the upstream client session, if connected.
func (b *Bridge) Close() error {
	if b.upstreamSession == nil {
		return nil
	}
	return b.upstreamSession.Close()
}

// proxyArgs is the generic input shape registered for every forwarded tool;
// arbitrary argument shapes are passed through as a JSON object.
type proxyArgs map[string]any

// proxyOutput is always empty: the actual CallToolResult returned to the
// framework is the upstream's result (or a synthesized error result), never
// derived from this type.
type proxyOutput struct{}

// Run connects upstream, mirrors its advertised tools onto a downstream
// stdio server, and blocks serving stdio frames until the session ends or
// ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.connectUpstream(ctx); err != nil {
		return fmt.Errorf("stdiobridge: connect upstream: %w", err)
	}

	listResult, err := b.upstreamSession.ListTools(ctx, nil)
	if err != nil {
		return fmt.Errorf("stdiobridge: list upstream tools: %w", err)
	}

	downstream := mcp.NewServer(b.impl, nil)
	for _, tool := range listResult.Tools {
		name := tool.Name
		mcp.AddTool(downstream, &mcp.Tool{
			Name:        name,
			Description: tool.Description,
		}, b.proxyHandlerFor(name))
	}

	return downstream.Run(ctx, &mcp.StdioTransport{})
}

// proxyHandlerFor builds the call-tool handler for one advertised tool name:
// forward {name, arguments} upstream and relay the result unchanged. A
// failed upstream call becomes an isError=true tool result with a
// "Proxy error: <message>" text content rather than failing the session.
func (b *Bridge) proxyHandlerFor(name string) mcp.ToolHandlerFor[proxyArgs, proxyOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input proxyArgs) (*mcp.CallToolResult, proxyOutput, error) {
		result, err := b.upstreamSession.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: map[string]any(input),
		})
		if err != nil {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("Proxy error: %v", err)},
				},
			}, proxyOutput{}, nil
		}
		return result, proxyOutput{}, nil
	}
}
