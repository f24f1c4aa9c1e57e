package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/collector"
	"github.com/ftahirops/perfdiag/config"
	"github.com/ftahirops/perfdiag/engine"
	"github.com/ftahirops/perfdiag/model"
	"github.com/ftahirops/perfdiag/report"
	"github.com/ftahirops/perfdiag/storage"
	"github.com/ftahirops/perfdiag/ui"
)

// defaultTelemetryFields are read from --telemetry-url when no fields are given.
var defaultTelemetryFields = []string{
	model.MetricFrameRate,
	model.MetricRenderTime,
	model.MetricNetworkLatency,
	model.MetricInputLag,
}

type runOptions struct {
	duration        time.Duration
	interval        time.Duration
	format          string
	detail          string
	focus           string
	tui             bool
	record          string
	store           string
	metricsAddr     string
	telemetryURL    string
	telemetryFields []string
	pid             int
	skipRootCause   bool
}

func newRunCmd(g *globals) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect a session and print its diagnostic report",
		Long: `Collect metrics for --duration, then analyse bottlenecks, anomalies and
root causes and print the report.

Examples:
  # 30 second diagnosis of this host's runtime metrics
  perfdiag run

  # Poll a game client's telemetry endpoint for 10s and print JSON
  perfdiag run --telemetry-url http://localhost:9000/stats --duration 10s -o json

  # Live view, stored in SQLite and exported to Prometheus
  perfdiag run --tui --store sqlite:/var/lib/perfdiag.db --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.DurationVarP(&o.duration, "duration", "d", 0, "Collection length (default from config)")
	f.DurationVarP(&o.interval, "interval", "i", 0, "Sampling interval (default from config)")
	f.StringVarP(&o.format, "output", "o", "", "Output format: text, markdown, json, yaml, html")
	f.StringVar(&o.detail, "detail", "", "Detail level: basic, standard, comprehensive")
	f.StringVar(&o.focus, "focus", "", "Only report bottlenecks and anomalies for this metric")
	f.BoolVar(&o.tui, "tui", false, "Show live collection in a terminal UI")
	f.StringVar(&o.record, "record", "", "Append the collected session to this JSON lines file")
	f.StringVar(&o.store, "store", "", "Report store as DRIVER:DSN (default from config)")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&o.telemetryURL, "telemetry-url", "", "HTTP endpoint returning a flat JSON object of metrics")
	f.StringSliceVar(&o.telemetryFields, "telemetry-fields", defaultTelemetryFields, "Fields read from --telemetry-url")
	f.IntVar(&o.pid, "pid", 0, "Process whose resident memory is sampled on Linux (default: self)")
	f.BoolVar(&o.skipRootCause, "no-root-cause", false, "Skip root cause correlation")
	return cmd
}

// apply overlays explicitly set flags onto cfg.
func (o *runOptions) apply(cfg *config.Config) error {
	if o.duration > 0 {
		cfg.Duration = o.duration
	}
	if o.interval > 0 {
		cfg.Interval = o.interval
	}
	if o.format != "" {
		cfg.Format = o.format
	}
	if o.detail != "" {
		cfg.DetailLevel = o.detail
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.telemetryURL != "" {
		cfg.TelemetryURL = o.telemetryURL
	}
	if o.store != "" {
		driver, dsn, ok := strings.Cut(o.store, ":")
		if !ok {
			return fmt.Errorf("--store must be DRIVER:DSN, got %q", o.store)
		}
		cfg.Storage = config.StorageConfig{Driver: driver, DSN: dsn}
	}
	return cfg.Validate()
}

func runRun(cmd *cobra.Command, g *globals, o *runOptions) error {
	cfg, log, err := g.load()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	if err := o.apply(&cfg); err != nil {
		return err
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := buildRegistry(cfg, o, log)
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(engine.NewMetrics(promReg)),
	}

	if cfg.Storage.Driver != "" {
		st, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		engineOpts = append(engineOpts, engine.WithStore(st))
	}

	if o.record != "" {
		f, err := os.OpenFile(o.record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		engineOpts = append(engineOpts, engine.WithRecorder(engine.NewRecorder(f)))
	}

	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, promReg, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	d, err := engine.New(reg, settings, engineOpts...)
	if err != nil {
		return err
	}

	runOpts := o.engineOptions(cmd, cfg.Options())

	var res *engine.Result
	if o.tui {
		res, err = ui.Run(ctx, d, runOpts)
	} else {
		res, err = collect(ctx, cmd, d, runOpts, reg.Len())
	}
	if err != nil {
		return err
	}

	out, err := report.Format(res.Report, format)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	if format == report.FormatText {
		printComparison(cmd.OutOrStdout(), res.Comparison)
	}
	return nil
}

// engineOptions overlays the stage flags the user set onto base.
func (o *runOptions) engineOptions(cmd *cobra.Command, base engine.Options) engine.Options {
	if o.focus != "" {
		base.FocusMetric = o.focus
	}
	if cmd.Flags().Changed("no-root-cause") {
		base.IncludeRootCause = !o.skipRootCause
	}
	return base
}

// collect runs d with a spinner on stderr.
func collect(ctx context.Context, cmd *cobra.Command, d *engine.Diagnostics, opts engine.Options, providers int) (*engine.Result, error) {
	errOut := cmd.ErrOrStderr()
	s := newSpinner(errOut, fmt.Sprintf("Collecting %d metrics for %s...", providers, opts.Duration))
	s.Start()

	samples := 0
	next := opts.OnSample
	opts.OnSample = func(sm model.Sample) {
		samples++
		s.Lock()
		s.Suffix = fmt.Sprintf(" Collecting %d metrics for %s... %d samples", providers, opts.Duration, samples)
		s.Unlock()
		if next != nil {
			next(sm)
		}
	}

	res, err := d.Run(ctx, opts)
	s.Stop()
	if err != nil {
		printError(errOut, err.Error())
		return nil, err
	}
	if res.Session.Canceled {
		printWarning(errOut, fmt.Sprintf("Collection interrupted after %d samples", res.Session.Len()))
	} else {
		printSuccess(errOut, fmt.Sprintf("Collected %d samples", res.Session.Len()))
	}
	return res, nil
}

// buildRegistry wires the host runtime, /proc and telemetry providers.
func buildRegistry(cfg config.Config, o *runOptions, log *zap.Logger) (*collector.Registry, error) {
	reg := collector.NewRegistry()
	var heap collector.Provider
	for _, p := range collector.RuntimeProviders() {
		if p.Name() == model.MetricMemoryUsage {
			heap = p
		}
		if err := reg.Add(p); err != nil {
			return nil, err
		}
	}

	growthOf := heap
	if runtime.GOOS == "linux" {
		rss := collector.NewProcStatusProvider(o.pid)
		if err := reg.Add(rss); err != nil {
			return nil, err
		}
		if o.pid > 0 {
			growthOf = rss
		}
	}
	if growthOf != nil {
		if err := reg.Add(collector.NewGrowthProvider(model.MetricMemoryGrowth, growthOf)); err != nil {
			return nil, err
		}
	}

	if cfg.TelemetryURL != "" {
		src := collector.NewTelemetrySource(cfg.TelemetryURL, cfg.Interval/2, log)
		for _, p := range src.Providers(o.telemetryFields...) {
			if err := reg.Add(p); err != nil {
				return nil, fmt.Errorf("telemetry field: %w", err)
			}
		}
	}
	return reg, nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", engine.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
