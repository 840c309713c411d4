package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/synapse/internal/config"
	"github.com/FranksOps/synapse/internal/report"
	"github.com/FranksOps/synapse/internal/source"
)

// runOptions drive a comparison-only run defined by a config file.
type runOptions struct {
	configPath     string
	comparisonOnly bool
	seed           uint64
	runFlags

	namer report.Namer
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Synthesize URL pairs from a config file and compare them",
	Long: "Builds execution.iterations URLs from baseUrl and the configured parameters, derives each " +
		"second URL by swapping baseUrl for comparison.baseUrl2 and compares the pairs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOpts.run(cmd.Context(), cmd.Flags().Changed, cmd.OutOrStdout(), slog.Default())
	},
}

func init() {
	fs := runCmd.Flags()
	fs.StringVar(&runOpts.configPath, "config", "", "YAML or JSON run definition (required)")
	fs.BoolVar(&runOpts.comparisonOnly, "comparison-only", false, "Compare synthesized pairs without driving a load test")
	fs.Uint64Var(&runOpts.seed, "seed", 0, "Seed for parameter generation (0 = time based)")
	runOpts.register(fs)
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}

// run executes the batch. changed reports whether a flag was set explicitly;
// explicit flags override the config file.
func (o *runOptions) run(ctx context.Context, changed func(string) bool, out io.Writer, logger *slog.Logger) error {
	if !o.comparisonOnly {
		return errors.New("only --comparison-only runs are supported; use postprocess on the logs of an external load run")
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if !cfg.Comparison.Enabled {
		return fmt.Errorf("comparison is not enabled in %s", o.configPath)
	}
	logger.Info("loaded config", "name", cfg.Name, "iterations", cfg.Execution.Iterations, "type", cfg.Comparison.Type)

	flags := o.runFlags
	if !changed("concurrency") {
		flags.concurrency = cfg.Execution.Concurrent
	}
	if !changed("storage") {
		flags.storage = cfg.Storage.Backend
	}
	if !changed("dsn") {
		flags.dsn = cfg.Storage.DSN
	}
	if !changed("metrics-port") {
		flags.metricsPort = cfg.Metrics.Port
	}

	seed := o.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	src := &source.Synth{
		Iterations: cfg.Execution.Iterations,
		Builder: &source.ParamURLBuilder{
			BaseURL:   cfg.BaseURL,
			Params:    cfg.Parameters,
			Generator: source.NewGenerator(seed),
		},
		BaseURL:  cfg.BaseURL,
		BaseURL2: cfg.Comparison.BaseURL2,
	}

	runner, err := flags.newRunner(ctx, cfg.CompareConfig(), logger)
	if err != nil {
		return err
	}
	defer runner.Close(context.WithoutCancel(ctx))

	batch, runErr := runner.Run(ctx, src)
	if batch == nil {
		return runErr
	}

	summary, paths, err := writeBatchReports(flags.output, o.namer, batch)
	if err != nil {
		return err
	}
	if err := report.WriteText(out, summary); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReports written to %s: %s\n", flags.output, strings.Join(relPaths(flags.output, paths), ", "))
	return runErr
}
