// Package main is the entry point for shol, the self-healing process
// monitor. The run command starts the monitor and heal loops; the other
// commands inspect or edit the state files the loops use.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KarmveerSingh18/prototype-4/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "shol",
		Short: "Self-healing process monitor",
		Long: `shol samples every process on the host, flags unresponsive or
resource-hungry ones and recovers them: first by lowering their priority,
then by terminating (and optionally relaunching) them.

Examples:
  shol run                          # start monitoring and healing
  shol run --monitor-only           # detect and log, never touch processes
  shol whitelist add notepad.exe    # exempt a process from healing
  shol ledger                       # show recent optimizations`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to YAML config file (default: auto-discover)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(flags),
		newWhitelistCommand(flags),
		newLedgerCommand(flags),
		newEventsCommand(flags),
		newConfigCommand(flags),
		newServiceCommand(flags),
		newVersionCommand(),
	)
	return root
}

// loadConfig applies the layered config with the given CLI overrides.
func loadConfig(flags *GlobalFlags, cli config.CLIOverrides) (*config.Config, error) {
	cli.LogLevel = flags.LogLevel

	var (
		cfg *config.Config
		err error
	)
	if flags.ConfigPath != "" {
		cfg, err = config.LoadLayered(cli, flags.ConfigPath)
	} else {
		cfg, err = config.LoadLayered(cli)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shol %s\n", version)
		},
	}
}
