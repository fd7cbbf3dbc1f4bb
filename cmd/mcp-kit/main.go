package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcp-kit/mcp-kit-go/internal/config"
)

// Version is set via ldflags at release build time.
var Version = "dev"

var (
	flagPort   int
	flagStdio  bool
	flagHTTP   bool
	flagSSE    bool
	flagLocal  bool
	flagNoKill bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcp-kit",
		Short: "Local Coordination Core for MCP servers",
		Long: `mcp-kit runs a Model Context Protocol server that can share a single
well-known port across independently launched processes: one instance
becomes primary and serves requests directly, the rest forward work to it
transparently over a reverse proxy or a stdio bridge.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", config.DefaultPort, "well-known shared port")
	rootCmd.PersistentFlags().BoolVar(&flagStdio, "stdio", false, "serve MCP over stdio instead of HTTP")
	rootCmd.PersistentFlags().BoolVar(&flagHTTP, "http", false, "serve MCP over HTTP (default)")
	rootCmd.PersistentFlags().BoolVar(&flagSSE, "sse", false, "legacy alias for --http")
	rootCmd.PersistentFlags().BoolVar(&flagLocal, "local", false, "enable the coordination core and control endpoints")
	rootCmd.PersistentFlags().BoolVar(&flagNoKill, "no-kill", false, "never terminate a process holding the target port")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("mcp-kit v{{.Version}}\n")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		msg := err.Error()
		for _, prefix := range []string{"unknown flag: ", "unknown shorthand flag: "} {
			if strings.HasPrefix(msg, prefix) {
				return fmt.Errorf("Unknown option: %s", strings.TrimPrefix(msg, prefix))
			}
		}
		return err
	})

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig turns the parsed flags and environment into the
// config.Config boundary record. The core itself never touches cobra or
// os.Getenv directly; this function is the one place that translates the
// external collaborator's output into the core's input; flag parsing
// itself stays external to the coordination core.
func resolveConfig() (config.Config, error) {
	if flagStdio && (flagHTTP || flagSSE) {
		return config.Config{}, fmt.Errorf("--stdio and --http/--sse are mutually exclusive")
	}

	mode := config.ModeHTTP
	if flagStdio {
		mode = config.ModeStdio
	}
	if os.Getenv(config.StdioModeEnvVar) == "1" {
		mode = config.ModeStdio
	}

	return config.Config{
		Port:    flagPort,
		Mode:    mode,
		Local:   flagLocal,
		NoKill:  flagNoKill,
		Version: Version,
	}, nil
}
