package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ftahirops/perfdiag/config"
	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/model"
)

func newBaselineCmd(g *globals) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "baseline FILE",
		Short: "Learn anomaly baselines from a recording of healthy sessions",
		Long: `Baseline pools every session in a JSON lines recording, computes each
metric's mean and standard deviation and writes them as the baselines of the
config file. Metrics without spread are left out since any deviation from
them would be reported as critical.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			in, err := openInput(args[0])
			if err != nil {
				return fmt.Errorf("open recording: %w", err)
			}
			defer in.Close()
			player, err := engine.NewPlayer(in)
			if err != nil {
				return err
			}

			pooled := &model.Session{}
			for {
				sess, _, ok := player.Next()
				if !ok {
					break
				}
				pooled.Samples = append(pooled.Samples, sess.Samples...)
			}
			if pooled.Len() == 0 {
				return fmt.Errorf("no samples in %s", args[0])
			}

			errOut := cmd.ErrOrStderr()
			baselines, skipped := learnedBaselines(pooled)
			for _, m := range skipped {
				printWarning(errOut, fmt.Sprintf("%s has no spread, left out", m))
			}
			if len(baselines) == 0 {
				return fmt.Errorf("no usable baselines in %s", args[0])
			}
			cfg.Baselines = baselines
			if err := cfg.Validate(); err != nil {
				return err
			}

			if dryRun {
				data, err := yaml.Marshal(map[string]any{"baselines": cfg.Baselines})
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := config.Save(g.configPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			printSuccess(errOut, fmt.Sprintf("Learned %d baselines from %d samples", len(baselines), pooled.Len()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the learned baselines instead of saving them")
	return cmd
}

// learnedBaselines returns baselines sorted by metric, and the metrics
// dropped for zero spread.
func learnedBaselines(session *model.Session) ([]model.Baseline, []string) {
	var (
		out     []model.Baseline
		skipped []string
	)
	for name, b := range engine.LearnBaselines(session) {
		if b.StdDev == 0 {
			skipped = append(skipped, name)
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	sort.Strings(skipped)
	return out, skipped
}
