// Package adapter provides the database/sql half of the atlas data-access
// layer: a single-session connection handle, scoped cursors, and the query
// executor with its three fetch shapes.
//
// Dialect-specific pieces (connection sources, bulk copy, upsert planning)
// live in pkg/adapters/postgres, which embeds BaseSQLAdapter.
package adapter

import (
	"context"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// Executor is the query surface shared by every adapter.
type Executor interface {
	// Close releases the session. Safe to call more than once.
	Close() error

	// IsConnected reports whether a session is held.
	IsConnected() bool

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt string, params Binder) error

	// ExecWithNotices runs a statement and returns the server notices it raised.
	ExecWithNotices(ctx context.Context, stmt string, params Binder) ([]string, error)

	// Fetch runs a query and materializes every row into shape.
	Fetch(ctx context.Context, stmt string, params Binder, shape core.FetchShape) (any, error)

	// FetchRows runs a query and returns the materialized result set.
	FetchRows(ctx context.Context, stmt string, params Binder) (*core.ResultSet, error)

	// FetchOne returns the first row of a query, or nil when it has none.
	FetchOne(ctx context.Context, stmt string, params Binder) ([]any, error)

	// WithCursor lends a cursor on the session to fn and releases it afterwards.
	WithCursor(ctx context.Context, fn func(*Cursor) error) error
}

// Ensure BaseSQLAdapter implements Executor.
var _ Executor = (*BaseSQLAdapter)(nil)
