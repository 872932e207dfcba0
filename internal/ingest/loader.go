// Package ingest loads the MIMIC-IV-ED demo export (six csv.gz files) into
// Postgres. It replaces the full contents of every table in one transaction.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/db"
)

type Loader struct {
	db     db.TxBeginner
	logger zerolog.Logger
	tables []Table
}

func NewLoader(conn db.TxBeginner, logger zerolog.Logger) *Loader {
	return &Loader{
		db:     conn,
		logger: logger.With().Str("component", "ingest").Logger(),
		tables: Tables,
	}
}

// CheckDir verifies every source file is present before any data is touched.
func (l *Loader) CheckDir(dir string) error {
	var missing []string
	for _, t := range l.tables {
		info, err := os.Stat(filepath.Join(dir, t.File))
		if err != nil || info.IsDir() {
			missing = append(missing, t.File)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing source files in %s: %s", dir, strings.Join(missing, ", "))
	}
	return nil
}

// Load truncates the ED tables and copies every file from dir into them.
// Row counts are returned per table. Nothing is committed if any file fails.
func (l *Loader) Load(ctx context.Context, dir string) (map[string]int64, error) {
	if err := l.CheckDir(dir); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(l.tables))
	start := time.Now()

	err := db.WithTx(ctx, l.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, truncateSQL(l.tables)); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		for _, t := range l.tables {
			n, err := l.copyTable(ctx, tx, filepath.Join(dir, t.File), t)
			if err != nil {
				return err
			}
			counts[t.Name] = n
			l.logger.Info().Str("table", t.Name).Int64("rows", n).Msg("table loaded")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().Dur("elapsed", time.Since(start)).Msg("ingest complete")
	return counts, nil
}

func (l *Loader) copyTable(ctx context.Context, tx pgx.Tx, path string, t Table) (int64, error) {
	src, err := openSource(path, t)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	n, err := tx.CopyFrom(ctx, pgx.Identifier{t.Name}, t.Columns, src)
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", t.Name, err)
	}
	return n, nil
}

// truncateSQL lists children before parents; CASCADE covers any table added
// later with a foreign key to edstays.
func truncateSQL(tables []Table) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[len(tables)-1-i] = pgx.Identifier{t.Name}.Sanitize()
	}
	return "TRUNCATE " + strings.Join(names, ", ") + " RESTART IDENTITY CASCADE"
}
