package graphload

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-graphload/internal/data/graph"
	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/ingestion/chunker"
	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
	"github.com/yungbote/neurobridge-graphload/internal/report"
)

type Stage string

const (
	StageInit           Stage = "init"
	StageSnapshotBefore Stage = "snapshot_before"
	StageExtractBatch   Stage = "extract_batch"
	StageChunkEmbed     Stage = "chunk_embed"
	StageLoadBatch      Stage = "load_batch"
	StageSnapshotAfter  Stage = "snapshot_after"
	StageAdhocTests     Stage = "adhoc_tests"
	StageWriteReports   Stage = "write_reports"
	StageDone           Stage = "done"
)

const (
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)

const DefaultBatchSize = 100

// Deps are the collaborators of one run. Chunker may be nil when the model
// has no chunking section.
type Deps struct {
	Model   *graphmodel.LoadModel
	Source  *gorm.DB
	Store   graph.Store
	Chunker *chunker.Generator
	Reports *report.Writer
}

type Options struct {
	RunID        string
	BatchSize    int
	MetricsPath  string
	FailuresPath string
	// TextfilePath, when set, receives the final report as Prometheus gauges.
	TextfilePath string
}

// Result is what a finished run reports back to the caller.
type Result struct {
	Metrics  runmetrics.Report
	Failures failures.Report
	Counts   failures.Counts
	Stage    Stage
	Duration time.Duration
}

// Runner drives one load: every page of the source query through chunking
// and graph writes, then the after snapshot, integrity checks and reports.
type Runner struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

func NewRunner(deps Deps, opts Options, baseLog *logger.Logger) (*Runner, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("graphload: model required")
	}
	if deps.Source == nil || deps.Store == nil {
		return nil, fmt.Errorf("graphload: source and store required")
	}
	if deps.Model.Chunking != nil && deps.Chunker == nil {
		return nil, fmt.Errorf("graphload: model declares chunking but no chunker was given")
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if deps.Reports == nil {
		deps.Reports = report.NewWriter(nil, baseLog)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{
		deps: deps,
		opts: opts,
		log:  baseLog.With("job", "graphload", "run_id", opts.RunID, "query", deps.Model.Query.Name),
	}, nil
}

func (r *Runner) RunID() string { return r.opts.RunID }
