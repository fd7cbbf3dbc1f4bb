// Package runtime answers the one question the coordination core consumes
// from the ambient environment: "are we in a host runtime with a writable
// filesystem and real TCP sockets?" as opposed to an ephemeral,
// request-scoped edge/serverless environment where a lock file and a bound
// port cannot outlive a single request. Built on a marker-file-then-env-var
// detection shape, generalized from "which AI assistant is active" to "can
// we coordinate locally at all".
package runtime

import (
	"net"
	"os"
)

// hostMarkerEnvVars are set by common host/container runtimes. Their
// presence is a strong signal of a persistent process, checked before the
// (slower) socket probe.
var hostMarkerEnvVars = []string{"HOME", "XDG_RUNTIME_DIR"}

// edgeMarkerEnvVars are set by common edge/serverless runtimes that forbid
// ambient filesystem and socket access outside the handler invocation.
var edgeMarkerEnvVars = []string{"CF_PAGES", "VERCEL", "AWS_LAMBDA_FUNCTION_NAME", "DENO_DEPLOYMENT_ID"}

// IsHostRuntime reports whether the current process can plausibly persist a
// lock file and bind a TCP port across requests. Edge markers take priority
// over host markers: a host-looking env on a platform that also sets an
// edge marker is still ephemeral.
func IsHostRuntime() bool {
	for _, envVar := range edgeMarkerEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	for _, envVar := range hostMarkerEnvVars {
		if os.Getenv(envVar) != "" {
			return canBindLoopback()
		}
	}

	return canBindLoopback()
}

// canBindLoopback confirms the process can actually open a TCP listener,
// the concrete capability the coordination core needs regardless of which
// environment variables are set.
func canBindLoopback() bool {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
