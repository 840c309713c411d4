package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/report"
	"github.com/FranksOps/synapse/internal/source"
	"github.com/FranksOps/synapse/internal/storage"
)

// resultsFile holds the comparison records extracted from a load-test log.
const resultsFile = "comparison-results.json"

// postprocessOptions re-compare the pairs recorded by an external load run
// and merge the fresh results with what the run logged.
type postprocessOptions struct {
	logPath   string
	format    string
	kind      string
	timeout   time.Duration
	threshold float64
	includeAA bool
	runFlags

	namer report.Namer
}

var postprocessOpts postprocessOptions

var postprocessCmd = &cobra.Command{
	Use:   "postprocess",
	Short: "Re-compare the successful pairs of a load-test log",
	Long: "Extracts comparison records from a load-test console log or JSON results file, re-compares " +
		"every record whose two statuses were 2xx and writes basic, detailed and summary artifacts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return postprocessOpts.run(cmd.Context(), cmd.OutOrStdout(), slog.Default())
	},
}

func init() {
	fs := postprocessCmd.Flags()
	fs.StringVar(&postprocessOpts.logPath, "log", "", "Load-test console log or JSON array of records (required)")
	fs.StringVar(&postprocessOpts.format, "format", "", "Log format: json or console (default: detect)")
	fs.StringVarP(&postprocessOpts.kind, "type", "t", string(compare.KindImage), "Comparison type: image or text")
	fs.DurationVar(&postprocessOpts.timeout, "timeout", compare.DefaultTimeout, "Per-fetch timeout until response headers")
	fs.Float64Var(&postprocessOpts.threshold, "threshold", compare.DefaultThreshold, "Per-pixel color threshold (0-1)")
	fs.BoolVar(&postprocessOpts.includeAA, "include-aa", false, "Count anti-aliased pixels as differences")
	postprocessOpts.register(fs)
	_ = postprocessCmd.MarkFlagRequired("log")

	rootCmd.AddCommand(postprocessCmd)
}

func (o *postprocessOptions) run(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	kind, err := compare.ParseKind(o.kind)
	if err != nil {
		return err
	}

	logSrc := &source.Log{Path: o.logPath, Format: source.LogFormat(o.format)}
	records, err := logSrc.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no comparison records in %s", o.logPath)
	}
	logger.Info("loaded load-test records", "records", len(records))

	if err := os.MkdirAll(o.output, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	basicPath := o.namer.Path(o.output, "basic-comparison", "csv")
	if err := writeFile(basicPath, func(w io.Writer) error { return report.WriteBasicCSV(w, records) }); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(o.output, resultsFile), func(w io.Writer) error { return report.WriteJSON(w, records) }); err != nil {
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

	var entries []*storage.Entry
	batch, runErr := runner.Run(ctx, logSrc)
	switch {
	case errors.Is(runErr, source.ErrEmpty):
		logger.Warn("no successful records to compare")
		runErr = nil
	case batch == nil:
		return runErr
	case runErr != nil:
		logger.Warn("batch interrupted, writing partial reports", "entries", len(batch.Entries), "error", runErr)
	}
	if batch != nil {
		entries = batch.Entries
	}

	return o.writeMerged(out, records, entries, runErr)
}

func (o *postprocessOptions) writeMerged(out io.Writer, records []source.LogRecord, entries []*storage.Entry, runErr error) error {
	now := time.Now
	if o.namer.Now != nil {
		now = o.namer.Now
	}

	rows := report.Merge(records, entries)
	summary := report.SummarizeMerged(rows, now())

	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{o.namer.Path(o.output, "detailed-comparison", "csv"), func(w io.Writer) error { return report.WriteMergedCSV(w, rows) }},
		{o.namer.Path(o.output, "detailed-comparison", "json"), func(w io.Writer) error { return report.WriteMergedJSON(w, rows) }},
		{o.namer.Path(o.output, "comparison-summary", "json"), func(w io.Writer) error { return report.WriteJSON(w, summary) }},
	}
	for _, f := range outputs {
		if err := writeFile(f.path, f.write); err != nil {
			return err
		}
	}

	t := summary.Totals
	fmt.Fprintf(out, "Records: %d, compared successfully: %d, failed: %d, not compared: %d (%.2f%% success)\n",
		t.Total, t.Successful, t.Failed, t.NotCompared, t.SuccessRate)
	fmt.Fprintf(out, "Reports written to %s\n", o.output)
	return runErr
}
