package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig describes one connection pool.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
	// Schema, when set, is searched before public for unqualified names.
	Schema string
	// ReadOnly turns on default_transaction_read_only for every session.
	// The API pool sets it; migrate and ingest need to write.
	ReadOnly bool
	// AppName shows up in pg_stat_activity.
	AppName string
}

func (pc PoolConfig) parse() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = pc.MaxConns
	cfg.MinConns = pc.MinConns

	params := cfg.ConnConfig.RuntimeParams
	if pc.Schema != "" {
		if !ValidSchema(pc.Schema) {
			return nil, fmt.Errorf("invalid schema name: %s", pc.Schema)
		}
		params["search_path"] = SearchPath(pc.Schema)
	}
	if pc.ReadOnly {
		params["default_transaction_read_only"] = "on"
	}
	if pc.AppName != "" {
		params["application_name"] = pc.AppName
	}
	return cfg, nil
}

// NewPool opens the pool and pings it once.
func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pc.parse()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
