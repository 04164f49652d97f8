package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/atlas/internal/config"
	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/core"
	"github.com/leapstack-labs/atlas/pkg/inserter"
)

// Session is the data-layer surface the commands use. *inserter.Inserter
// implements it.
type Session interface {
	Close() error
	IsConnected() bool
	Fetch(ctx context.Context, query string, params adapter.Binder, shape core.FetchShape) (any, error)
	Execute(ctx context.Context, stmt string, params adapter.Binder) error
	Insert(ctx context.Context, req postgres.CopyRequest) (int64, error)
	Upsert(ctx context.Context, req inserter.UpsertRequest) (int64, error)
}

var _ Session = (*inserter.Inserter)(nil)

// Opener opens a connected Session for a command.
type Opener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Session, error)

// ConnectInserter opens an Inserter on the configured connection source.
func ConnectInserter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Session, error) {
	if !cfg.HasSource() {
		return nil, fmt.Errorf("no database configured: set --conninfo, --service or --db-config: %w", core.ErrConfiguration)
	}
	ins := inserter.New(logger)
	if err := ins.Connect(ctx, cfg.Source()); err != nil {
		return nil, err
	}
	return ins, nil
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext collects the config and logger stored on cmd's context
// by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &CommandContext{
		Cfg:    config.FromContext(ctx),
		Logger: config.GetLogger(ctx),
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
