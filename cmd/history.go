package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ftahirops/perfdiag/report"
	"github.com/ftahirops/perfdiag/storage"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		limit  int
		show   string
		format string
		store  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored reports, or print one with --show",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if store != "" {
				o := runOptions{store: store}
				if err := o.apply(&cfg); err != nil {
					return err
				}
			}
			if cfg.Storage.Driver == "" {
				return errors.New("no report store configured; set storage in the config or pass --store")
			}

			st, err := storage.Open(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN, log)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if show != "" {
				if format == "" {
					format = cfg.Format
				}
				f, err := report.ParseFormat(format)
				if err != nil {
					return err
				}
				rep, err := st.LoadReport(cmd.Context(), show)
				if err != nil {
					return err
				}
				text, err := report.Format(rep, f)
				if err != nil {
					return err
				}
				fmt.Fprint(out, text)
				return nil
			}

			records, err := st.ListReports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				printWarning(cmd.ErrOrStderr(), "No stored reports")
				return nil
			}
			printRecords(out, records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "Maximum reports to list")
	cmd.Flags().StringVar(&show, "show", "", "Print the full report for this session id")
	cmd.Flags().StringVarP(&format, "output", "o", "", "Output format for --show")
	cmd.Flags().StringVar(&store, "store", "", "Report store as DRIVER:DSN (default from config)")
	return cmd
}

func printRecords(w io.Writer, records []storage.ReportRecord) {
	fmt.Fprintf(w, "%-36s  %-14s  %6s  %-9s  %4s  %4s  %4s  %7s\n",
		"SESSION", "WHEN", "HEALTH", "LEVEL", "CRIT", "BOTT", "ANOM", "SAMPLES")
	for _, r := range records {
		when := humanize.Time(r.GeneratedAt)
		level := fmt.Sprintf("%-9s", r.Level)
		fmt.Fprintf(w, "%-36s  %-14s  %6d  %s  %4d  %4d  %4d  %7s",
			r.SessionID, when, r.HealthScore, levelColor(r.Level).Sprint(level),
			r.CriticalIssues, r.Bottlenecks, r.Anomalies, humanize.Comma(int64(r.Samples)))
		if r.Canceled {
			fmt.Fprint(w, "  (canceled)")
		}
		fmt.Fprintln(w)
	}
}
