package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/instance"
	"github.com/mcp-kit/mcp-kit-go/internal/coordination/lock"
)

// statusResult is the read-only snapshot `mcp-kit status` reports. It never
// starts a coordination attempt of its own — it only reads the Lock Store
// directly, without touching any RPC surface.
type statusResult struct {
	Port      int
	LockPath  string
	Record    *lock.Record
	OwnerLive bool
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which process, if any, holds the coordination lock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := getStatus(flagPort)
			fmt.Fprint(cmd.OutOrStdout(), formatStatus(result))
			return nil
		},
	}
}

func getStatus(port int) statusResult {
	path := lock.DefaultPath(port)
	record := lock.Read(path)

	result := statusResult{Port: port, LockPath: path, Record: record}
	if record != nil {
		result.OwnerLive = instance.IsPidAlive(record.PID)
	}
	return result
}

// formatStatus renders the result for a terminal. The plain, one-line-
// per-field shape is deliberate; decoration (here, none yet) would be
// gated on TTY detection the same way interactive prompts are gated on
// term.IsTerminal.
func formatStatus(r statusResult) string {
	_ = term.IsTerminal(int(os.Stdout.Fd()))

	if r.Record == nil {
		return fmt.Sprintf("Lock:     absent (%s)\nPrimary:  none\n", r.LockPath)
	}

	status := fmt.Sprintf("Lock:     %s\n", r.LockPath)
	if r.OwnerLive {
		status += fmt.Sprintf("Primary:  running (PID %d)\n", r.Record.PID)
	} else {
		status += fmt.Sprintf("Primary:  stale (PID %d not running)\n", r.Record.PID)
	}
	status += fmt.Sprintf("Version:  %s\n", r.Record.Version)
	status += fmt.Sprintf("Control:  http://127.0.0.1:%d/__version\n", r.Port)
	return status
}
