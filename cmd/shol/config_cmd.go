package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KarmveerSingh18/prototype-4/internal/config"
)

func newConfigCommand(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or generate configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init PATH",
			Short: "Write a config file with the default settings",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.WriteConfig(config.DefaultConfig(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Load and validate the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadConfig(global, config.CLIOverrides{}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
				return nil
			},
		},
	)
	return cmd
}
