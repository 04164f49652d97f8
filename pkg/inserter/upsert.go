package inserter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// DefaultStagingSchema holds the temporary tables Upsert loads into.
const DefaultStagingSchema = "staging"

// UpsertRequest loads a dataset into a fresh staging table and merges it
// into Load.Table.
type UpsertRequest struct {
	Load       postgres.CopyRequest
	OnConflict postgres.ConflictPolicy
	PKeys      []string

	// StagingSchema defaults to DefaultStagingSchema and must exist.
	StagingSchema string
}

// Upsert runs create-staging, copy, merge and drop as separate autocommit
// statements. A failure part way leaves the target as the last successful
// step left it; the staging table is dropped on every path.
func (i *Inserter) Upsert(ctx context.Context, req UpsertRequest) (int64, error) {
	if (req.Load.Frame == nil) == (req.Load.CSV == "") {
		return 0, core.Validationf("upsert requires exactly one of frame or csv")
	}
	if _, err := postgres.ParseConflictPolicy(string(req.OnConflict)); err != nil {
		return 0, err
	}

	schema := req.Load.Schema
	if schema == "" {
		schema = core.DefaultSchema
	}
	target, err := core.ParseTable(req.Load.Table, schema)
	if err != nil {
		return 0, err
	}

	stagingSchema := req.StagingSchema
	if stagingSchema == "" {
		stagingSchema = DefaultStagingSchema
	}
	staging := core.Table{Schema: stagingSchema, Name: stagingName(target.Name)}

	columns, err := i.store.TableColumns(ctx, target)
	if err != nil {
		return 0, err
	}
	// Fail before creating anything when the plan cannot be built.
	merge := postgres.MergeRequest{
		Source:     staging.String(),
		Target:     target.String(),
		OnConflict: req.OnConflict,
		Columns:    columns,
		PKeys:      req.PKeys,
	}
	if _, err := postgres.PlanMerge(merge); err != nil {
		return 0, err
	}

	if err := i.store.CreateStagingTable(ctx, staging, target); err != nil {
		return 0, err
	}
	defer func() {
		// The request context may already be done; the drop must still run.
		if err := i.store.DropTable(context.WithoutCancel(ctx), staging); err != nil {
			i.logger.Warn("failed to drop staging table",
				slog.String("table", staging.String()),
				slog.String("error", err.Error()))
		}
	}()

	load := req.Load
	load.Table = staging.String()
	load.Schema = ""
	n, err := i.store.CopyToTable(ctx, load)
	if err != nil {
		return 0, err
	}
	if err := i.store.Merge(ctx, merge); err != nil {
		return 0, err
	}

	i.logger.Info("upserted rows",
		slog.String("table", target.String()),
		slog.String("on_conflict", string(req.OnConflict)),
		slog.Int64("rows", n))
	return n, nil
}

// stagingName derives a unique staging table name, kept within the 63-byte
// identifier limit.
func stagingName(table string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if len(table) > 44 {
		table = table[:44]
	}
	return table + "_stage_" + suffix
}
