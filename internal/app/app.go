package app

import (
	"context"
	"database/sql"
	"fmt"

	"syclopsui/internal/config"
	"syclopsui/internal/db"
	"syclopsui/internal/dispatch"
	"syclopsui/internal/engine"
	"syclopsui/internal/migrate"
)

// Runtime owns the job ledger connection behind an Engine.
type Runtime struct {
	Engine engine.Engine
	conn   *sql.DB
}

// Open validates cfg, opens and migrates the job ledger and wires an Engine.
func Open(ctx context.Context, cfg *config.Config, opts ...dispatch.Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{DSN: cfg.Jobs.DSN})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	e, err := engine.New(conn, cfg, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Runtime{Engine: e, conn: conn}, nil
}

// Close releases the ledger. Jobs recorded in memory are gone afterwards.
func (r *Runtime) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
