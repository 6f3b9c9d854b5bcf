package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/permitscope/permitscope/internal/pipeline"
	"github.com/permitscope/permitscope/internal/socrata"
	"github.com/permitscope/permitscope/internal/store"
)

// openPool creates the shared connection pool from configuration.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("permitscope: no store.database_url configured")
	}
	return store.Connect(ctx, cfg.Store)
}

// buildEngine wires the pipeline engine with a live source client.
func buildEngine(pool *pgxpool.Pool) *pipeline.Engine {
	return pipeline.NewEngine(pipeline.Deps{
		Pool:     pool,
		Source:   socrata.NewClient(cfg.Socrata),
		Socrata:  cfg.Socrata,
		Pipeline: cfg.Pipeline,
	})
}
