package app

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/jobs/graphload"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

type App struct {
	Log *logger.Logger
	Cfg Config
}

// New loads configuration and builds the process logger.
func New(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Info("Configuration loaded",
		"config_file", configPath,
		"source_driver", cfg.Source.Driver,
		"neo4j_uri", cfg.Neo4j.URI,
		"embedding_provider", cfg.Embedding.Provider,
		"batch_size", cfg.BatchSize,
	)
	return &App{Log: log, Cfg: cfg}, nil
}

// Load runs one graph load with the app's configuration.
func (a *App) Load(ctx context.Context, model *graphmodel.LoadModel, metricsPath string) (graphload.Result, error) {
	jobCfg, err := a.Cfg.GraphLoad(a.Log)
	if err != nil {
		return graphload.Result{Stage: graphload.StageInit}, err
	}
	return graphload.Load(ctx, jobCfg, model, metricsPath)
}

func (a *App) Close() {
	if a == nil || a.Log == nil {
		return
	}
	a.Log.Sync()
}
