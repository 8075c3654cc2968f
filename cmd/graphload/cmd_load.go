package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-graphload/internal/app"
	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/jobs/graphload"
)

type loadFlags struct {
	model     string
	query     string
	metrics   string
	failures  string
	textfile  string
	runID     string
	batchSize int
}

func newLoadCmd() *cobra.Command {
	var f loadFlags
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run one load of the named query into the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.model, "model", "", "Model document (YAML or JSON)")
	cmd.Flags().StringVar(&f.query, "query", "", "Query id from the model's queries section")
	cmd.Flags().StringVar(&f.metrics, "metrics", "", "Metrics report destination (path or gs://bucket/key)")
	cmd.Flags().StringVar(&f.failures, "failures", "", "Failure report destination (path or gs://bucket/key)")
	cmd.Flags().StringVar(&f.textfile, "textfile", "", "Prometheus textfile destination (env: METRICS_TEXTFILE)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run id recorded in the reports (default: random)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "Rows per batch (env: BATCH_SIZE)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runLoad(cmd *cobra.Command, f loadFlags) error {
	a, err := app.New(flagConfig)
	if err != nil {
		return err
	}
	defer a.Close()
	applyLoadFlags(cmd, f, &a.Cfg)

	model, err := graphmodel.Load(f.model, f.query)
	if err != nil {
		a.Log.Error("model rejected", "model", f.model, "query", f.query, "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.Load(ctx, model, a.Cfg.Reports.Metrics)
	if err != nil {
		a.Log.Error("load failed", "stage", res.Stage, "error", err)
		return err
	}
	printSummary(cmd, res)
	return nil
}

func applyLoadFlags(cmd *cobra.Command, f loadFlags, cfg *app.Config) {
	if cmd.Flags().Changed("metrics") {
		cfg.Reports.Metrics = f.metrics
	}
	if cmd.Flags().Changed("failures") {
		cfg.Reports.Failures = f.failures
	}
	if cmd.Flags().Changed("textfile") {
		cfg.Reports.Textfile = f.textfile
	}
	if cmd.Flags().Changed("run-id") {
		cfg.RunID = f.runID
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = f.batchSize
	}
}

func printSummary(cmd *cobra.Command, res graphload.Result) {
	out := cmd.OutOrStdout()
	m := res.Metrics
	fmt.Fprintf(out, "run %s %s in %s\n", m.Run.RunID, m.Run.Status, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "batches: %d completed, %d failed\n", m.BatchMetrics.CompletedBatches, m.BatchMetrics.FailedBatches)
	for _, label := range sortedKeys(m.LoadMetrics.NodesCreated) {
		fmt.Fprintf(out, "  %-20s nodes=%d\n", label, m.LoadMetrics.NodesCreated[label])
	}
	for _, rt := range sortedKeys(m.LoadMetrics.RelationshipsCreated) {
		fmt.Fprintf(out, "  %-20s relationships=%d\n", rt, m.LoadMetrics.RelationshipsCreated[rt])
	}
	fmt.Fprintf(out, "failures: %d (batch=%d record=%d node=%d relationship=%d constraint=%d)\n",
		res.Counts.Total(), res.Counts.Batch, res.Counts.Record, res.Counts.Node, res.Counts.Relationship, res.Counts.Constraint)
}
