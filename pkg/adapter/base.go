package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// BaseSQLAdapter owns exactly one live session taken from a *sql.DB.
// Embed it in concrete adapters to get lifecycle, cursor scoping and the
// query executor.
//
// Statements run in autocommit mode: no transaction is ever opened, so each
// statement commits on its own. A BaseSQLAdapter is not safe for concurrent
// use.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Conn   *sql.Conn
	Logger *slog.Logger

	cursors atomic.Int64

	noticeMu sync.Mutex
	notices  []string
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Attach takes one session from db and holds it until Close. The adapter
// owns db afterwards and closes it on Close.
func (b *BaseSQLAdapter) Attach(ctx context.Context, db *sql.DB) error {
	if b.Conn != nil {
		return core.Validationf("adapter is already connected; close it first")
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return &core.ConnectionError{Op: "connect", Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return &core.ConnectionError{Op: "connect", Err: err}
	}

	b.DB = db
	b.Conn = conn
	return nil
}

// Close releases the session and the underlying pool. Calling Close on an
// unconnected or already closed adapter is a no-op.
func (b *BaseSQLAdapter) Close() error {
	if b.Conn == nil && b.DB == nil {
		return nil
	}
	b.logger().Debug("closing database connection")

	var errs []error
	if b.Conn != nil {
		if err := b.Conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.Conn = nil
	b.DB = nil
	return errors.Join(errs...)
}

// IsConnected returns true if a session is held.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.Conn != nil
}

// Session returns the live session or ErrNotConnected.
func (b *BaseSQLAdapter) Session() (*sql.Conn, error) {
	if b.Conn == nil {
		return nil, fmt.Errorf("%w: database connection not established", core.ErrNotConnected)
	}
	return b.Conn, nil
}

// OpenCursors returns the number of cursors currently lent out.
func (b *BaseSQLAdapter) OpenCursors() int {
	return int(b.cursors.Load())
}

// WithCursor acquires a cursor, hands it to fn and releases it on every exit
// path, closing any rows fn left open.
func (b *BaseSQLAdapter) WithCursor(ctx context.Context, fn func(*Cursor) error) error {
	conn, err := b.Session()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cur := &Cursor{conn: conn, logger: b.logger()}
	b.cursors.Add(1)
	defer func() {
		cur.release()
		b.cursors.Add(-1)
	}()

	return fn(cur)
}

// Exec executes a statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, stmt string, params Binder) error {
	return b.WithCursor(ctx, func(cur *Cursor) error {
		_, err := cur.Exec(ctx, stmt, params)
		return err
	})
}

// ExecWithNotices executes a statement and returns the notices the server
// sent while it ran. Adapters feed notices through RecordNotice.
func (b *BaseSQLAdapter) ExecWithNotices(ctx context.Context, stmt string, params Binder) ([]string, error) {
	b.drainNotices()
	err := b.Exec(ctx, stmt, params)
	return b.drainNotices(), err
}

// RecordNotice stores a server notice for the statement in flight.
func (b *BaseSQLAdapter) RecordNotice(msg string) {
	b.noticeMu.Lock()
	defer b.noticeMu.Unlock()
	b.notices = append(b.notices, msg)
}

func (b *BaseSQLAdapter) drainNotices() []string {
	b.noticeMu.Lock()
	defer b.noticeMu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		return []string{}
	}
	return out
}

// FetchRows executes a query and materializes every row.
func (b *BaseSQLAdapter) FetchRows(ctx context.Context, stmt string, params Binder) (*core.ResultSet, error) {
	var rs *core.ResultSet
	err := b.WithCursor(ctx, func(cur *Cursor) error {
		var err error
		rs, err = cur.Fetch(ctx, stmt, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Fetch executes a query and returns the rows in the requested shape:
// [][]any for ShapeRecord, []map[string]any for ShapeJSON and *core.Frame for
// ShapeDataFrame.
func (b *BaseSQLAdapter) Fetch(ctx context.Context, stmt string, params Binder, shape core.FetchShape) (any, error) {
	shape, err := core.ParseFetchShape(string(shape))
	if err != nil {
		return nil, err
	}
	rs, err := b.FetchRows(ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	return rs.As(shape)
}

// FetchOne returns the first row of a query, or nil if there is none.
func (b *BaseSQLAdapter) FetchOne(ctx context.Context, stmt string, params Binder) ([]any, error) {
	rs, err := b.FetchRows(ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 {
		return nil, nil
	}
	return rs.Rows[0], nil
}
