package graphload

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/neurobridge-graphload/internal/data/graph"
	"github.com/yungbote/neurobridge-graphload/internal/domain/ingest"
	"github.com/yungbote/neurobridge-graphload/internal/ingestion/extractor"
	"github.com/yungbote/neurobridge-graphload/internal/observability"
	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
	"github.com/yungbote/neurobridge-graphload/internal/platform/ctxutil"
)

type run struct {
	*Runner
	state   *runmetrics.State
	tracker *failures.Tracker
	ext     *extractor.Extractor
	loader  *graph.Loader
	stage   Stage
}

func (r *run) enter(s Stage) {
	r.stage = s
	r.log.Debug("stage", "stage", s)
}

// Run executes the state machine once. Only setup errors are returned before
// the loop starts; afterwards every failure is tracked and the reports are
// written even when ctx is cancelled between batches.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: r.opts.RunID, Query: r.deps.Model.Query.Name})
	ctx, span := observability.StartSpan(ctx, "graphload.run")
	var runErr error
	defer func() { observability.EndSpan(span, runErr) }()

	rn := &run{
		Runner:  r,
		state:   runmetrics.NewState(r.opts.RunID, r.deps.Model.Query.Name),
		tracker: failures.NewTracker(r.log),
	}
	rn.enter(StageInit)
	rn.state.EnsureKeys(r.deps.Model)

	rn.ext, runErr = extractor.New(r.deps.Source, r.deps.Model.Query, r.opts.BatchSize, rn.tracker, rn.state, r.log)
	if runErr != nil {
		return Result{Stage: rn.stage}, fmt.Errorf("graphload: %w", runErr)
	}
	rn.loader, runErr = graph.NewLoader(r.deps.Store, r.deps.Model, rn.tracker, r.log)
	if runErr != nil {
		return Result{Stage: rn.stage}, fmt.Errorf("graphload: %w", runErr)
	}

	rn.snapshotBefore(ctx)
	interrupted := rn.batches(ctx)

	// Everything after the loop runs to completion regardless of cancellation.
	final := context.WithoutCancel(ctx)
	status := StatusCompleted
	if interrupted {
		status = StatusInterrupted
		rn.state.MarkInterrupted()
		r.log.Warn("stop signal received; finishing with reports")
	}
	rn.snapshotAfter(final)
	rn.adhoc(final)
	rn.state.Finish(status)

	rn.enter(StageWriteReports)
	res := Result{
		Metrics:  rn.state.Report(),
		Failures: rn.tracker.Snapshot(),
		Counts:   rn.tracker.Counts(),
	}
	runErr = rn.writeReports(final, res)
	rn.enter(StageDone)
	res.Stage = rn.stage
	res.Duration = time.Since(start)

	r.log.Info("graph load finished",
		"status", status,
		"records_pulled", res.Metrics.SourceMetrics.RecordsPulled,
		"completed_batches", res.Metrics.BatchMetrics.CompletedBatches,
		"failed_batches", res.Metrics.BatchMetrics.FailedBatches,
		"failures", res.Counts.Total(),
		"took", res.Duration.String(),
	)
	return res, runErr
}

func (r *run) snapshotBefore(ctx context.Context) {
	r.enter(StageSnapshotBefore)
	ctx, span := observability.StartSpan(ctx, "graphload.snapshot_before")
	defer span.End()

	snap, errs := runmetrics.TakeSnapshot(ctx, r.deps.Store, r.deps.Model)
	for _, err := range errs {
		r.state.AddIntegrityIssue("before snapshot: " + err.Error())
	}
	if err := r.state.SetBefore(snap); err != nil {
		r.log.Warn("before snapshot not stored", "error", err)
	}

	for _, err := range r.deps.Store.ApplySchema(ctx, r.deps.Model.Statements()) {
		r.log.Warn("schema statement failed (continuing)", "error", err)
	}
}

// batches pages the source until a short page, the end of the counted rows
// or a stop signal. It reports whether the loop was interrupted.
func (r *run) batches(ctx context.Context) bool {
	available, err := r.ext.Count(ctx)
	if err != nil {
		r.log.Warn("source count failed; paging until a short page", "error", err)
		available = -1
	} else {
		r.state.SetRecordsAvailable(available)
	}

	columnsChecked := false
	for batchNum := 0; ; batchNum++ {
		if ctx.Err() != nil {
			return true
		}
		r.enter(StageExtractBatch)
		page := r.ext.Fetch(ctx, batchNum)
		if page.Failed {
			r.state.BatchFailed()
			r.logResult(pageResult(page, r.deps.Model.Query.SortKey, ingest.BatchFailed), "error", page.Err)
			if ctx.Err() != nil {
				return true
			}
			if available < 0 || int64(page.Offset+page.Limit) >= available {
				return false
			}
			continue
		}
		if len(page.Records) == 0 {
			r.logResult(pageResult(page, r.deps.Model.Query.SortKey, ingest.BatchEmpty))
			return false
		}
		if !columnsChecked {
			r.checkColumns(page.Columns)
			columnsChecked = true
		}
		r.batch(ctx, page)
		if len(page.Records) < page.Limit {
			return false
		}
	}
}

func pageResult(page extractor.Page, sortKey string, outcome ingest.BatchOutcome) ingest.BatchResult {
	return ingest.BatchResult{
		BatchNum:  page.BatchNum,
		Offset:    page.Offset,
		Limit:     page.Limit,
		RecordIDs: page.RecordIDs(sortKey),
		Outcome:   outcome,
	}
}

func (r *run) logResult(res ingest.BatchResult, kv ...any) {
	fields := append([]any{
		"batch_num", res.BatchNum,
		"offset", res.Offset,
		"records", len(res.RecordIDs),
		"outcome", res.Outcome,
	}, kv...)
	switch res.Outcome {
	case ingest.BatchFailed:
		r.log.Warn("batch failed", fields...)
	case ingest.BatchEmpty:
		r.log.Debug("source exhausted", fields...)
	default:
		r.log.Info("batch loaded", fields...)
	}
}

// batch chunks, embeds and loads one page. It detaches from ctx so a batch
// in flight always completes.
func (r *run) batch(ctx context.Context, page extractor.Page) {
	bctx, span := observability.StartSpan(context.WithoutCancel(ctx), "graphload.batch",
		attribute.Int("batch_num", page.BatchNum),
		attribute.Int("records", len(page.Records)),
	)
	defer span.End()
	before := r.tracker.Counts().Total()

	var chunks []ingest.ChunkRecord
	var skipped int
	if ch := r.deps.Model.Chunking; ch != nil {
		r.enter(StageChunkEmbed)
		cctx, cspan := observability.StartSpan(bctx, "graphload.chunk_embed")
		res := r.deps.Chunker.Generate(cctx, page.Records, ch.TextFields, r.loader.ContentID)
		cspan.SetAttributes(attribute.Int("chunks", len(res.Chunks)), attribute.Int("embedded", res.Embedded))
		cspan.End()
		chunks, skipped = res.Chunks, res.Skipped
	}

	r.enter(StageLoadBatch)
	lctx, lspan := observability.StartSpan(bctx, "graphload.load_batch")
	delta := r.loader.LoadBatch(lctx, page.Records, chunks)
	lspan.End()
	delta.EmbeddingsSkipped += int64(skipped)
	r.state.MergeLoad(delta)
	r.state.BatchCompleted(int(delta.Records))

	result := pageResult(page, r.deps.Model.Query.SortKey, ingest.BatchCompleted)
	if r.tracker.Counts().Total() > before {
		result.Outcome = ingest.BatchPartial
	}
	r.logResult(result, "accepted", delta.Records, "chunks", len(chunks))
}

// checkColumns reports model columns the source query does not return.
func (r *run) checkColumns(columns []string) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	for _, c := range r.deps.Model.ReferencedColumns() {
		if !have[c] {
			issue := fmt.Sprintf("column %q referenced by the model is not returned by query %s", c, r.deps.Model.Query.Name)
			r.state.AddIntegrityIssue(issue)
			r.log.Warn("missing source column", "column", c)
		}
	}
}

func (r *run) snapshotAfter(ctx context.Context) {
	r.enter(StageSnapshotAfter)
	ctx, span := observability.StartSpan(ctx, "graphload.snapshot_after")
	defer span.End()
	snap, errs := runmetrics.TakeSnapshot(ctx, r.deps.Store, r.deps.Model)
	for _, err := range errs {
		r.state.AddIntegrityIssue("after snapshot: " + err.Error())
	}
	if err := r.state.SetAfter(snap); err != nil {
		r.log.Warn("after snapshot not stored", "error", err)
	}
}

func (r *run) adhoc(ctx context.Context) {
	r.enter(StageAdhocTests)
	ctx, span := observability.StartSpan(ctx, "graphload.adhoc_tests")
	defer span.End()
	rep := r.state.Report()
	expectEmbeddings := r.deps.Chunker != nil && r.deps.Model.EmbeddingDimension() > 0 && r.deps.Chunker.EmbeddingsEnabled()
	res, errs := graph.RunAdhocTests(ctx, r.deps.Store, r.deps.Model, graph.AdhocInput{
		Before: runmetrics.Snapshot{
			Nodes:         rep.BeforeMetrics.NodesExistingCount,
			Relationships: rep.BeforeMetrics.RelationshipsExistingCount,
		},
		After: runmetrics.Snapshot{
			Nodes:         rep.AfterMetrics.NodesCurrent,
			Relationships: rep.AfterMetrics.RelationshipsCurrent,
		},
		Load:               rep.LoadMetrics,
		EmbeddingsExpected: expectEmbeddings,
	})
	for _, err := range errs {
		r.log.Warn("integrity check failed to run", "error", err)
	}
	r.state.SetAdhoc(res)
}

func (r *run) writeReports(ctx context.Context, res Result) error {
	ctx, span := observability.StartSpan(ctx, "graphload.write_reports")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	err = r.deps.Reports.WriteReports(ctx, r.opts.MetricsPath, r.opts.FailuresPath, res.Metrics, res.Failures)
	if r.opts.TextfilePath != "" {
		counts := map[string]int{
			string(failures.KindBatch):        res.Counts.Batch,
			string(failures.KindRecord):       res.Counts.Record,
			string(failures.KindNode):         res.Counts.Node,
			string(failures.KindRelationship): res.Counts.Relationship,
			string(failures.KindConstraint):   res.Counts.Constraint,
		}
		if terr := runmetrics.WriteTextfile(r.opts.TextfilePath, res.Metrics, counts); terr != nil {
			r.log.Warn("prometheus textfile not written", "error", terr)
		}
	}
	if err != nil {
		return fmt.Errorf("graphload: %w", err)
	}
	return nil
}
