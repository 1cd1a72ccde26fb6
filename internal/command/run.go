package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cucumber/godog"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/config"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/logger"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/metrics"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/steps"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type RunCommand struct {
	cobraCmd    *cobra.Command
	log         *slog.Logger
	logOpts     logger.Options
	paths       []string
	tags        string
	format      string
	concurrency int
}

func NewRunCmd() *cobra.Command {
	cmd := RunCommand{}
	cobraCmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Short:   "Runs the feature files",
		Long:    "Runs the feature files against the configured landscape and tears provisioned SKRs down afterwards.",
		Example: `	skr-scenarios run                                  Runs every feature in ./features.
	skr-scenarios run -p features/skr.feature -t @oidc  Runs OIDC scenarios of one feature file.`,

		PreRunE: func(_ *cobra.Command, _ []string) error { return cmd.Validate() },
		RunE:    func(c *cobra.Command, _ []string) error { return cmd.Run(c.Context()) },
	}
	cmd.cobraCmd = cobraCmd

	cobraCmd.Flags().StringSliceVarP(&cmd.paths, "paths", "p", []string{"features"}, "Feature files or directories.")
	cobraCmd.Flags().StringVarP(&cmd.tags, "tags", "t", "", "Tag expression selecting scenarios, e.g. \"@oidc && ~@wip\".")
	cobraCmd.Flags().StringVarP(&cmd.format, "format", "f", "pretty", "godog output format.")
	cobraCmd.Flags().IntVarP(&cmd.concurrency, "concurrency", "c", 1, "Number of scenarios run at the same time.")
	cmd.logOpts.AddFlags(cobraCmd.Flags())

	return cobraCmd
}

func (cmd *RunCommand) Validate() error {
	if len(cmd.paths) == 0 {
		return fmt.Errorf("at least one feature path has to be specified")
	}
	if cmd.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", cmd.concurrency)
	}
	if cmd.concurrency > 1 && cmd.format == "pretty" {
		return fmt.Errorf("format pretty does not support concurrent execution, use progress")
	}
	return nil
}

func (cmd *RunCommand) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cmd.log = logger.New(os.Stdout, cmd.logOpts, logger.ParseLevel(cfg.LogLevel))
	config.LogConfiguration(cmd.log, cfg)

	collector := metrics.NewCollector(cmd.log)
	if cfg.MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		collector.MustRegister(reg)
		stopMetrics := serveMetrics(cfg.MetricsAddress, reg, cmd.log)
		defer stopMetrics()
	}

	env, teardown, err := newEnvironment(ctx, cfg, cmd.log)
	if err != nil {
		return fmt.Errorf("while creating collaborators: %w", err)
	}
	suite, err := newSuite(env, teardown, collector, cfg.StepTimeout, cmd.concurrency, cmd.log)
	if err != nil {
		return err
	}

	status := godog.TestSuite{
		Name:                 "skr-scenarios",
		TestSuiteInitializer: suite.InitializeTestSuite(ctx),
		ScenarioInitializer:  suite.InitializeScenario,
		Options: &godog.Options{
			Format:         cmd.format,
			Paths:          cmd.paths,
			Tags:           cmd.tags,
			Concurrency:    cmd.concurrency,
			Strict:         true,
			DefaultContext: ctx,
			Output:         os.Stdout,
		},
	}.Run()
	// godog runs AfterSuite only when scenarios ran; teardown is idempotent.
	suite.Teardown(ctx)

	return summarize(suite.Report(), status, os.Stderr)
}

func newSuite(env *steps.Env, teardown *steps.Teardown, collector *metrics.Collector, stepTimeout time.Duration, concurrency int, log *slog.Logger) (*scenario.Suite, error) {
	registry := scenario.NewRegistry(
		scenario.WithDefaultTimeout(stepTimeout),
		scenario.WithObserver(collector),
		scenario.WithLogger(log),
	)
	if err := steps.Register(registry, env); err != nil {
		return nil, fmt.Errorf("while registering steps: %w", err)
	}
	runner := scenario.NewRunner(registry, collector, log)
	suite := scenario.NewSuite(runner, log, scenario.WithConcurrency(concurrency))
	suite.AfterSuite(teardown.Hook())
	return suite, nil
}

// summarize writes the report and turns a failed run or teardown into an error.
func summarize(report *scenario.SuiteReport, status int, w io.Writer) error {
	if err := report.Write(w); err != nil {
		return fmt.Errorf("while writing report: %w", err)
	}
	var errs []error
	if status != 0 || !report.Passed() {
		errs = append(errs, fmt.Errorf("scenarios failed"))
	}
	if td := report.Teardown(); td.Status == scenario.TeardownFailed {
		errs = append(errs, fmt.Errorf("teardown failed: %s", td.Reason))
	}
	return errors.Join(errs...)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info(fmt.Sprintf("Serving metrics on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(fmt.Sprintf("metrics server failed: %v", err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
