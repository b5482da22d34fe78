package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KarmveerSingh18/prototype-4/internal/service"
)

func newServiceCommand(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Register shol with the Windows service manager",
		Long: `Install or remove the SholHealer Windows service. The service starts
automatically and runs "shol run" with the config file given by --config.
On Linux and macOS use a systemd unit or launchd job instead.

Examples:
  shol --config C:\ProgramData\shol\shol.yaml service install
  shol service uninstall`,
	}

	green := color.New(color.FgGreen).SprintFunc()

	cmd.AddCommand(
		&cobra.Command{
			Use:   "install",
			Short: "Install the monitor as an automatically started service",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("locating executable: %w", err)
				}
				runArgs, err := serviceArgs(global)
				if err != nil {
					return err
				}
				if err := service.Install(exe, runArgs...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s installed: %s %s\n",
					green("✓"), service.Name, exe, strings.Join(runArgs, " "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "Remove the service registration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := service.Uninstall(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s removed\n", green("✓"), service.Name)
				return nil
			},
		},
	)
	return cmd
}

// serviceArgs builds the arguments the service manager passes on start.
// The config path is made absolute because services start in a system
// directory.
func serviceArgs(global *GlobalFlags) ([]string, error) {
	args := []string{"run"}
	if global.ConfigPath != "" {
		abs, err := filepath.Abs(global.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	if global.LogLevel != "" {
		args = append(args, "--log-level", global.LogLevel)
	}
	return args, nil
}
