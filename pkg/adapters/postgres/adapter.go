// Package postgres provides the PostgreSQL data-access layer: connection
// sources, the COPY bulk loader and the upsert planner.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// Adapter is a single PostgreSQL session plus the bulk operations that need
// the native driver.
type Adapter struct {
	adapter.BaseSQLAdapter

	// copyFrom streams a COPY payload. Replaced in tests.
	copyFrom copyFunc
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
		copyFrom:       pgCopyFrom,
	}
}

// Connect resolves src and opens one autocommit session. Server notices
// raised on the session are collected for ExecWithNotices.
func (a *Adapter) Connect(ctx context.Context, src Source) error {
	if a.IsConnected() {
		return core.Validationf("adapter is already connected; close it first")
	}

	connStr, err := src.ConnString()
	if err != nil {
		return err
	}
	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return &core.ConfigError{Path: src.ConfigFile, Section: configSection(src), Err: err}
	}
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		a.Logger.Debug("server notice", slog.String("severity", n.Severity), slog.String("message", n.Message))
		a.RecordNotice(n.Message)
	}

	a.Logger.Debug("connecting to postgres",
		slog.String("host", cfg.Host),
		slog.Int("port", int(cfg.Port)),
		slog.String("database", cfg.Database))

	db := stdlib.OpenDB(*cfg)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := a.Attach(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}

func configSection(src Source) string {
	if src.ConfigFile == "" {
		return ""
	}
	return src.section()
}

// TableColumns returns the column names of a table in ordinal order.
func (a *Adapter) TableColumns(ctx context.Context, table core.Table) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rs, err := a.FetchRows(ctx, query, adapter.Args{table.Schema, table.Name})
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, core.ErrNotFound)
	}

	columns := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		name, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected column name type %T", row[0])
		}
		columns = append(columns, name)
	}
	return columns, nil
}

// CreateStagingTable creates an empty table shaped like template.
func (a *Adapter) CreateStagingTable(ctx context.Context, staging, template core.Table) error {
	stmt := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS)", quoteTable(staging), quoteTable(template))
	return a.Exec(ctx, stmt, nil)
}

// DropTable drops a table if it exists.
func (a *Adapter) DropTable(ctx context.Context, table core.Table) error {
	return a.Exec(ctx, "DROP TABLE IF EXISTS "+quoteTable(table), nil)
}

func quoteTable(t core.Table) string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// Ensure Adapter implements the executor interface.
var _ adapter.Executor = (*Adapter)(nil)
