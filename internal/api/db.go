package api

import (
	"context"
	"sync"

	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/core"
	"github.com/leapstack-labs/atlas/pkg/inserter"
)

// DB is the part of the data layer the handlers use.
type DB interface {
	IsConnected() bool
	Fetch(ctx context.Context, query string, params adapter.Binder, shape core.FetchShape) (any, error)
	Execute(ctx context.Context, stmt string, params adapter.Binder) error
	Insert(ctx context.Context, req postgres.CopyRequest) (int64, error)
	Upsert(ctx context.Context, req inserter.UpsertRequest) (int64, error)
}

var _ DB = (*inserter.Inserter)(nil)

// serialized guards a DB that holds a single session. Requests queue on the
// mutex instead of interleaving statements on the connection.
type serialized struct {
	mu sync.Mutex
	db DB
}

func (s *serialized) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.IsConnected()
}

func (s *serialized) Fetch(ctx context.Context, query string, params adapter.Binder, shape core.FetchShape) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Fetch(ctx, query, params, shape)
}

func (s *serialized) Execute(ctx context.Context, stmt string, params adapter.Binder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Execute(ctx, stmt, params)
}

func (s *serialized) Insert(ctx context.Context, req postgres.CopyRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Insert(ctx, req)
}

func (s *serialized) Upsert(ctx context.Context, req inserter.UpsertRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Upsert(ctx, req)
}
