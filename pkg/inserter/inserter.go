// Package inserter is the facade callers use to reach the database: one
// connection, bulk inserts, fetches in any shape, raw statements and merges.
//
// An Inserter is not safe for concurrent use. Services that handle requests
// concurrently must serialize access or hold one Inserter per worker.
package inserter

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// Store is the data-access layer behind an Inserter. *postgres.Adapter
// implements it.
type Store interface {
	adapter.Executor

	Connect(ctx context.Context, src postgres.Source) error
	CopyToTable(ctx context.Context, req postgres.CopyRequest) (int64, error)
	Merge(ctx context.Context, req postgres.MergeRequest) error

	TableColumns(ctx context.Context, table core.Table) ([]string, error)
	CreateStagingTable(ctx context.Context, staging, template core.Table) error
	DropTable(ctx context.Context, table core.Table) error
}

var _ Store = (*postgres.Adapter)(nil)

// Inserter holds exactly one Store for its lifetime.
type Inserter struct {
	store  Store
	logger *slog.Logger
}

// New returns an Inserter backed by a PostgreSQL adapter.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Inserter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Inserter{store: postgres.New(logger), logger: logger}
}

// NewWithStore returns an Inserter over an existing store.
func NewWithStore(store Store, logger *slog.Logger) *Inserter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Inserter{store: store, logger: logger}
}

// Connect opens the session described by src.
func (i *Inserter) Connect(ctx context.Context, src postgres.Source) error {
	if err := i.store.Connect(ctx, src); err != nil {
		return err
	}
	i.logger.Info("connected to database")
	return nil
}

// Close releases the session. Safe to call more than once.
func (i *Inserter) Close() error {
	return i.store.Close()
}

// IsConnected reports whether the session is open.
func (i *Inserter) IsConnected() bool {
	return i.store.IsConnected()
}

// Insert bulk loads exactly one of req.Frame or req.CSV and returns the
// number of rows sent.
func (i *Inserter) Insert(ctx context.Context, req postgres.CopyRequest) (int64, error) {
	if (req.Frame == nil) == (req.CSV == "") {
		return 0, core.Validationf("insert requires exactly one of frame or csv")
	}
	n, err := i.store.CopyToTable(ctx, req)
	if err != nil {
		return 0, err
	}
	i.logger.Info("inserted rows", slog.String("table", req.Table), slog.Int64("rows", n))
	return n, nil
}

// Fetch runs query and returns its rows in shape.
func (i *Inserter) Fetch(ctx context.Context, query string, params adapter.Binder, shape core.FetchShape) (any, error) {
	return i.store.Fetch(ctx, query, params, shape)
}

// FetchOne returns the first row of query, or nil when there is none.
func (i *Inserter) FetchOne(ctx context.Context, query string, params adapter.Binder) ([]any, error) {
	return i.store.FetchOne(ctx, query, params)
}

// Execute runs a statement that returns no rows. Notices the server raised
// while running it are logged.
func (i *Inserter) Execute(ctx context.Context, stmt string, params adapter.Binder) error {
	notices, err := i.store.ExecWithNotices(ctx, stmt, params)
	for _, msg := range notices {
		i.logger.Info("server notice", slog.String("message", msg))
	}
	return err
}

// Cursor lends a scoped cursor on the session to fn.
func (i *Inserter) Cursor(ctx context.Context, fn func(*adapter.Cursor) error) error {
	return i.store.WithCursor(ctx, fn)
}

// Merge moves the rows of req.Source into req.Target under its conflict
// policy.
func (i *Inserter) Merge(ctx context.Context, req postgres.MergeRequest) error {
	if err := i.store.Merge(ctx, req); err != nil {
		return err
	}
	i.logger.Info("merged tables",
		slog.String("source", req.Source),
		slog.String("target", req.Target),
		slog.String("on_conflict", string(req.OnConflict)))
	return nil
}
