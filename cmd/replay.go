package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/report"
)

func newReplayCmd(g *globals) *cobra.Command {
	var (
		format string
		detail string
		stored bool
	)
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Re-analyse sessions recorded with run --record",
		Long: `Replay reads a JSON lines recording ("-" for stdin) and analyses every
session again with the current thresholds and baselines. Each report is
compared with the one before it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if format != "" {
				cfg.Format = format
			}
			if detail != "" {
				cfg.DetailLevel = detail
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			f, err := report.ParseFormat(cfg.Format)
			if err != nil {
				return err
			}

			in, err := openInput(args[0])
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer in.Close()
			player, err := engine.NewPlayer(in)
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			if n := player.Skipped(); n > 0 {
				printWarning(errOut, fmt.Sprintf("Skipped %d malformed lines", n))
			}
			if player.Len() == 0 {
				return fmt.Errorf("no sessions in %s", args[0])
			}

			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			d, err := engine.New(nil, settings, engine.WithLogger(log))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := cfg.Options()
			for {
				sess, recorded, ok := player.Next()
				if !ok {
					break
				}
				res := d.Analyze(sess, opts)
				if stored && recorded != nil {
					res.Report = recorded
				}
				text, err := report.Format(res.Report, f)
				if err != nil {
					return err
				}
				fmt.Fprint(out, text)
				if f == report.FormatText {
					printComparison(out, res.Comparison)
					fmt.Fprintln(out)
				}
			}
			printSuccess(errOut, fmt.Sprintf("Replayed %d sessions", player.Len()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "", "Output format: text, markdown, json, yaml, html")
	cmd.Flags().StringVar(&detail, "detail", "", "Detail level: basic, standard, comprehensive")
	cmd.Flags().BoolVar(&stored, "stored", false, "Print the recorded report instead of re-analysing")
	return cmd
}
