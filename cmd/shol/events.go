package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KarmveerSingh18/prototype-4/internal/config"
	"github.com/KarmveerSingh18/prototype-4/internal/eventlog"
)

var errNoSQLite = errors.New("events.sqlite is not configured")

// EventsFlags holds flags for the events command.
type EventsFlags struct {
	Limit int
}

func newEventsCommand(global *GlobalFlags) *cobra.Command {
	flags := &EventsFlags{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent event log entries from the SQLite sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global, config.CLIOverrides{})
			if err != nil {
				return err
			}
			if cfg.Events.SQLite == "" {
				return errNoSQLite
			}
			sink, err := eventlog.NewSQLiteSink(cfg.Events.SQLite)
			if err != nil {
				return err
			}
			defer func() { _ = sink.Close() }()

			events, err := sink.Recent(cmd.Context(), flags.Limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPID\tNAME\tKIND\tACTION\tDETAIL")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
					e.Time.Local().Format(time.DateTime), e.PID, e.Name, e.Kind, e.Action, e.Detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 50, "number of entries to show, newest first")
	return cmd
}
