package graphload

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-graphload/internal/data/graph"
	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/ingestion/chunker"
	"github.com/yungbote/neurobridge-graphload/internal/observability"
	"github.com/yungbote/neurobridge-graphload/internal/platform/embedding"
	"github.com/yungbote/neurobridge-graphload/internal/platform/gcp"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
	"github.com/yungbote/neurobridge-graphload/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-graphload/internal/platform/sourcedb"
	"github.com/yungbote/neurobridge-graphload/internal/report"
)

// Config is everything Load needs to open its own connections.
type Config struct {
	RunID        string
	BatchSize    int
	FailuresPath string
	TextfilePath string

	Source    sourcedb.Config
	Neo4j     neo4jdb.Config
	Embedding embedding.Config
	Chunking  chunker.Config
	Storage   gcp.StorageConfig
	Otel      observability.OtelConfig

	Log *logger.Logger
}

// Load opens the source, the graph store, the embedder and, for gs://
// destinations, object storage, then runs one load. Every resource is
// released before it returns.
func Load(ctx context.Context, cfg Config, model *graphmodel.LoadModel, metricsPath string) (Result, error) {
	if model == nil {
		return Result{}, fmt.Errorf("graphload: model required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	shutdown := observability.InitOTel(ctx, log, cfg.Otel)
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	db, err := sourcedb.Open(ctx, cfg.Source, log)
	if err != nil {
		return Result{Stage: StageInit}, err
	}
	defer func() {
		if err := sourcedb.Close(db); err != nil {
			log.Warn("source close failed", "error", err)
		}
	}()

	client, err := neo4jdb.New(ctx, cfg.Neo4j, log)
	if err != nil {
		return Result{Stage: StageInit}, err
	}
	store, err := graph.NewNeo4jStore(client, log)
	if err != nil {
		_ = client.Close(context.WithoutCancel(ctx))
		return Result{Stage: StageInit}, err
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("graph store close failed", "error", err)
		}
	}()

	var gen *chunker.Generator
	if model.Chunking != nil {
		embCfg := cfg.Embedding
		dim := model.EmbeddingDimension()
		if dim == 0 {
			embCfg.Provider = embedding.ProviderNone
		}
		if embCfg.Dimension == 0 {
			embCfg.Dimension = dim
		}
		emb, closeEmb, err := embedding.New(ctx, embCfg, log)
		if err != nil {
			return Result{Stage: StageInit}, err
		}
		defer closeEmb()

		chunkCfg := cfg.Chunking
		chunkCfg.Dimension = dim
		if gen, err = chunker.New(chunkCfg, emb, log); err != nil {
			return Result{Stage: StageInit}, err
		}
	}

	var objects report.ObjectPutter
	if gcp.IsObjectURI(metricsPath) || gcp.IsObjectURI(cfg.FailuresPath) {
		objs, err := gcp.NewObjectStore(ctx, cfg.Storage, log)
		if err != nil {
			return Result{Stage: StageInit}, err
		}
		defer objs.Close()
		objects = objs
	}

	runner, err := NewRunner(Deps{
		Model:   model,
		Source:  db,
		Store:   store,
		Chunker: gen,
		Reports: report.NewWriter(objects, log),
	}, Options{
		RunID:        cfg.RunID,
		BatchSize:    cfg.BatchSize,
		MetricsPath:  metricsPath,
		FailuresPath: cfg.FailuresPath,
		TextfilePath: cfg.TextfilePath,
	}, log)
	if err != nil {
		return Result{Stage: StageInit}, err
	}
	return runner.Run(ctx)
}
