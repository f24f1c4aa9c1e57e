package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/config"
	"github.com/ftahirops/perfdiag/logging"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	devLog     bool
	noColor    bool
}

// NewRootCmd builds the perfdiag command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "perfdiag",
		Short: "Performance diagnostics for real-time applications",
		Long: `perfdiag samples frame rate, render time, memory and latency metrics,
finds threshold bottlenecks and statistical anomalies, correlates them into
likely root causes and prints a scored health report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				disableColor()
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default: "+config.Path()+")")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.BoolVar(&g.devLog, "dev-log", false, "Human-readable debug logging instead of JSON")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable coloured output")

	root.AddCommand(
		newRunCmd(g),
		newReplayCmd(g),
		newHistoryCmd(g),
		newBaselineCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "perfdiag version %s\n", Version)
		},
	}
}

// load reads the config file and builds the logger it names.
func (g *globals) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	var log *zap.Logger
	if g.devLog {
		log, err = logging.NewDevelopment()
	} else {
		log, err = logging.New(cfg.LogLevel)
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

// openInput opens path for reading; "-" is stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
