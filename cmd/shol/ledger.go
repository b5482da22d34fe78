package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/config"
	"github.com/KarmveerSingh18/prototype-4/internal/ledger"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// LedgerFlags holds flags for the ledger command.
type LedgerFlags struct {
	JSON bool
}

func newLedgerCommand(global *GlobalFlags) *cobra.Command {
	flags := &LedgerFlags{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recent optimizations, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global, config.CLIOverrides{})
			if err != nil {
				return err
			}
			l := ledger.New(cfg.Ledger.File, cfg.Ledger.Capacity, zap.NewNop())
			if err := l.Load(); err != nil {
				return err
			}
			if flags.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(l.Recent())
			}
			printLedger(cmd.OutOrStdout(), l.Recent(), l.Total())
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print raw JSON records")
	return cmd
}

func printLedger(w io.Writer, records []models.OptimizationRecord, total ledger.Totals) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No optimizations recorded yet")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPID\tPROCESS\tCAUSE\tOUTCOME\tCPU GAIN\tMEM GAIN\tSCORE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.PID, r.Process, r.Cause, outcomeColor(r.Outcome),
			r.CPUGain, r.MemGain, r.Score)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d records, total cpu %.2f, mem %.2f, score %.2f\n",
		len(records), total.CPUGain, total.MemGain, total.Score)
}

func outcomeColor(o models.Outcome) string {
	switch o {
	case models.OutcomeSoftSuccess:
		return color.GreenString(string(o))
	case models.OutcomeTerminated, models.OutcomeKilled:
		return color.YellowString(string(o))
	case models.OutcomeHardFailed:
		return color.RedString(string(o))
	default:
		return string(o)
	}
}
