package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool section of the /health/db body.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	st := pool.Stat()
	return PoolStats{
		TotalConns:    st.TotalConns(),
		IdleConns:     st.IdleConns(),
		AcquiredConns: st.AcquiredConns(),
		MaxConns:      st.MaxConns(),
	}
}

// schemaVersion returns the highest applied migration, 0 when none ran.
func schemaVersion(ctx context.Context, pool *pgxpool.Pool, schema string) (int, error) {
	if !ValidSchema(schema) {
		return 0, fmt.Errorf("invalid schema name: %s", schema)
	}
	var v int
	err := pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) FROM %s.schema_migrations`, schema),
	).Scan(&v)
	return v, err
}

const healthTimeout = 5 * time.Second

type healthCheck struct {
	schema  string
	ping    func(context.Context) error
	version func(context.Context) (int, error)
	stats   func() PoolStats
}

// HealthHandler reports 200 when the database answers and the ED tables
// have been migrated into schema, 503 otherwise.
func HealthHandler(pool *pgxpool.Pool, schema string) echo.HandlerFunc {
	return healthCheck{
		schema: schema,
		ping:   pool.Ping,
		version: func(ctx context.Context) (int, error) {
			return schemaVersion(ctx, pool, schema)
		},
		stats: func() PoolStats { return poolStats(pool) },
	}.handle
}

func (h healthCheck) handle(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	body := map[string]interface{}{
		"schema": h.schema,
		"pool":   h.stats(),
	}
	unhealthy := func(reason string) error {
		body["status"] = "unhealthy"
		body["error"] = reason
		return c.JSON(http.StatusServiceUnavailable, body)
	}

	if err := h.ping(ctx); err != nil {
		return unhealthy(err.Error())
	}
	v, err := h.version(ctx)
	if err != nil {
		return unhealthy("read migration ledger: " + err.Error())
	}
	if v == 0 {
		return unhealthy("no migrations applied; run `ed-server migrate up`")
	}

	body["status"] = "healthy"
	body["schema_version"] = v
	return c.JSON(http.StatusOK, body)
}
