package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// Cursor is scoped access to the session for the duration of one
// WithCursor call. Rows opened through it are closed when it is released.
type Cursor struct {
	conn     *sql.Conn
	logger   *slog.Logger
	open     []*sql.Rows
	released bool
}

func (c *Cursor) check() error {
	if c.released {
		return fmt.Errorf("%w: cursor already released", core.ErrNotConnected)
	}
	return nil
}

// Exec runs a statement and returns the number of rows it affected.
func (c *Cursor) Exec(ctx context.Context, stmt string, params Binder) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	query, args, err := bind(stmt, params)
	if err != nil {
		return 0, err
	}

	c.logger.Debug("exec", slog.String("statement", query), slog.Int("args", len(args)))
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, Classify("exec", stmt, err)
	}
	// Some statements carry no row count; that is not a failure.
	n, _ := res.RowsAffected()
	return n, nil
}

// Query runs a query and returns its rows. The cursor closes them on
// release if the caller has not.
func (c *Cursor) Query(ctx context.Context, stmt string, params Binder) (*sql.Rows, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	query, args, err := bind(stmt, params)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("query", slog.String("statement", query), slog.Int("args", len(args)))
	//nolint:rowserrcheck // rows.Err() is checked by the caller or by Fetch
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify("query", stmt, err)
	}
	c.open = append(c.open, rows)
	return rows, nil
}

// Fetch runs a query and materializes every row.
func (c *Cursor) Fetch(ctx context.Context, stmt string, params Binder) (*core.ResultSet, error) {
	rows, err := c.Query(ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	rs, err := scanAll(rows)
	if err != nil {
		return nil, Classify("fetch", stmt, err)
	}
	return rs, nil
}

// Raw runs fn with the driver connection behind the session.
func (c *Cursor) Raw(fn func(driverConn any) error) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.conn.Raw(fn)
}

func (c *Cursor) release() {
	for _, rows := range c.open {
		if err := rows.Close(); err != nil {
			c.logger.Debug("closing rows on cursor release", slog.String("error", err.Error()))
		}
	}
	c.open = nil
	c.released = true
}

// scanAll reads every remaining row. Text values that the driver hands back
// as []byte are converted to string; bytea columns keep their bytes.
func scanAll(rows *sql.Rows) (*core.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	binary := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			binary[i] = strings.EqualFold(t.DatabaseTypeName(), "BYTEA")
		}
	}

	rs := &core.ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok && !binary[i] {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
