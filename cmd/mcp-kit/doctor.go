package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/instance"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/portmgr"
)

// doctorResult is the read-only Port Manager diagnosis `mcp-kit doctor`
// reports. doctor inspects, it never evicts: it calls IsPortInUse and
// Holders, the enumeration primitives the running process itself uses
// before freeing the port.
type doctorResult struct {
	Port    int
	InUse   bool
	Holders []int
	Stale   []int // holder PIDs that failed the liveness probe
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose whether the target port is free, held, or stuck",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := diagnosePort(flagPort)
			fmt.Fprint(cmd.OutOrStdout(), formatDoctor(result))
			return nil
		},
	}
}

func diagnosePort(port int) doctorResult {
	result := doctorResult{Port: port, InUse: portmgr.IsPortInUse(port), Holders: portmgr.Holders(port)}
	for _, pid := range result.Holders {
		if !instance.IsPidAlive(pid) {
			result.Stale = append(result.Stale, pid)
		}
	}
	return result
}

func formatDoctor(r doctorResult) string {
	if !r.InUse {
		return fmt.Sprintf("Port %d: free\n", r.Port)
	}

	out := fmt.Sprintf("Port %d: in use by %v\n", r.Port, r.Holders)
	if len(r.Stale) > 0 {
		out += fmt.Sprintf("Stale holders (PID not running, safe to reclaim): %v\n", r.Stale)
	}
	out += "Control plane: unauthenticated, bound to 127.0.0.1 only. Do not expose this port beyond loopback.\n"
	return out
}
