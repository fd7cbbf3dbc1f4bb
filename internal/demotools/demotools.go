// Package demotools is a deliberately small MCP tool set (echo,
// server_time, whoami) used to exercise the coordination core end to end.
// The MCP request/response handler is otherwise treated as an opaque
// external collaborator; this is the one concrete dispatcher the repository
// ships so the binary is runnable and testable without a real tool
// catalogue.
package demotools

import (
	"context"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register adds the demo tool set to server.
func Register(server *mcp.Server, version string) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Return the given text unchanged.",
	}, handleEcho)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "server_time",
		Description: "Return the server's current time in RFC3339.",
	}, handleServerTime)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "whoami",
		Description: "Return the PID, hostname, and version of the process answering this request.",
	}, handleWhoamiFor(version))
}

// EchoInput is the input to the echo tool.
type EchoInput struct {
	Text string `json:"text"`
}

// EchoOutput is the output of the echo tool.
type EchoOutput struct {
	Text string `json:"text"`
}

func handleEcho(_ context.Context, _ *mcp.CallToolRequest, input EchoInput) (*mcp.CallToolResult, EchoOutput, error) {
	return nil, EchoOutput{Text: input.Text}, nil
}

// ServerTimeOutput is the output of the server_time tool.
type ServerTimeOutput struct {
	Time string `json:"time"`
}

func handleServerTime(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, ServerTimeOutput, error) {
	return nil, ServerTimeOutput{Time: time.Now().UTC().Format(time.RFC3339)}, nil
}

// WhoamiOutput is the output of the whoami tool.
type WhoamiOutput struct {
	PID      int    `json:"pid"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
}

func handleWhoamiFor(version string) mcp.ToolHandlerFor[struct{}, WhoamiOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, WhoamiOutput, error) {
		hostname, _ := os.Hostname()
		return nil, WhoamiOutput{PID: os.Getpid(), Hostname: hostname, Version: version}, nil
	}
}
