package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/report"
	"github.com/FranksOps/synapse/internal/source"
)

// compareOptions drive a batch read from a CSV of URL pairs.
type compareOptions struct {
	csvPath   string
	column1   string
	column2   string
	kind      string
	timeout   time.Duration
	threshold float64
	includeAA bool
	runFlags

	namer report.Namer
}

var compareOpts compareOptions

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare URL pairs listed in a CSV file",
	Long: "Reads URL pairs from two named columns of a CSV file, compares every pair and writes " +
		"<type>-comparison-<timestamp>.csv plus JSON, text and HTML summaries to the output directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return compareOpts.run(cmd.Context(), cmd.OutOrStdout(), slog.Default())
	},
}

func init() {
	fs := compareCmd.Flags()
	fs.StringVar(&compareOpts.csvPath, "csv", "", "CSV file with a header row and one URL pair per row (required)")
	fs.StringVar(&compareOpts.column1, "column1", source.DefaultColumn1, "Column holding the first URL")
	fs.StringVar(&compareOpts.column2, "column2", source.DefaultColumn2, "Column holding the second URL")
	fs.StringVarP(&compareOpts.kind, "type", "t", string(compare.KindImage), "Comparison type: image or text")
	fs.DurationVar(&compareOpts.timeout, "timeout", compare.DefaultTimeout, "Per-fetch timeout until response headers")
	fs.Float64Var(&compareOpts.threshold, "threshold", compare.DefaultThreshold, "Per-pixel color threshold (0-1)")
	fs.BoolVar(&compareOpts.includeAA, "include-aa", false, "Count anti-aliased pixels as differences")
	compareOpts.register(fs)
	_ = compareCmd.MarkFlagRequired("csv")

	rootCmd.AddCommand(compareCmd)
}

func (o *compareOptions) run(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	kind, err := compare.ParseKind(o.kind)
	if err != nil {
		return err
	}

	runner, err := o.newRunner(ctx, compare.Config{
		Kind:      kind,
		Timeout:   o.timeout,
		Threshold: &o.threshold,
		IncludeAA: o.includeAA,
	}, logger)
	if err != nil {
		return err
	}
	defer runner.Close(context.WithoutCancel(ctx))

	batch, runErr := runner.Run(ctx, &source.CSV{Path: o.csvPath, Column1: o.column1, Column2: o.column2})
	if batch == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn("batch interrupted, writing partial reports", "entries", len(batch.Entries), "error", runErr)
	}

	summary, paths, err := writeBatchReports(o.output, o.namer, batch)
	if err != nil {
		return err
	}

	if err := report.WriteText(out, summary); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReports written to %s: %s\n", o.output, strings.Join(relPaths(o.output, paths), ", "))
	return runErr
}
