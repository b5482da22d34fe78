package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/config"
	"github.com/KarmveerSingh18/prototype-4/internal/whitelist"
)

func newWhitelistCommand(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage processes exempt from healing",
		Long: `Edit the whitelist file. A running monitor picks up changes on its
next heal sweep. Names are matched case-insensitively.

Examples:
  shol whitelist add notepad.exe
  shol whitelist remove notepad.exe
  shol whitelist list`,
	}

	open := func() (*whitelist.Store, error) {
		cfg, err := loadConfig(global, config.CLIOverrides{})
		if err != nil {
			return nil, err
		}
		s := whitelist.New(cfg.Whitelist.File, zap.NewNop())
		if err := s.Refresh(); err != nil {
			return nil, err
		}
		return s, nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME",
			Short: "Exempt a process name from healing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				if err := s.Add(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s whitelisted\n", green("✓"), whitelist.Normalize(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove NAME",
			Short: "Allow a process name to be healed again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				removed, err := s.Remove(args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s was not whitelisted\n", yellow("ℹ"), whitelist.Normalize(args[0]))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s removed\n", green("✓"), whitelist.Normalize(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List whitelisted process names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := open()
				if err != nil {
					return err
				}
				names := s.List()
				if len(names) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s whitelist is empty (%s)\n", yellow("ℹ"), s.Path())
					return nil
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
	)
	return cmd
}
