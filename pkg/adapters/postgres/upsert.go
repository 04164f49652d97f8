package postgres

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// ConflictPolicy decides what a merge does with rows whose key already
// exists in the target.
type ConflictPolicy string

// Conflict policies.
const (
	ConflictIgnore ConflictPolicy = "ignore"
	ConflictUpdate ConflictPolicy = "update"
)

// ParseConflictPolicy parses "ignore" or "update".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ConflictIgnore, ConflictUpdate:
		return p, nil
	default:
		return "", core.Validationf("on_conflict must be 'ignore' or 'update', got %q", s)
	}
}

// MergeRequest moves every row of Source into Target.
type MergeRequest struct {
	// Source and Target must be qualified as schema.table.
	Source string
	Target string

	OnConflict ConflictPolicy

	// Columns is the full column set. Required for update.
	Columns []string
	// PKeys is the conflict target. Required for update; optional for ignore.
	PKeys []string
}

// PlanMerge builds the INSERT ... SELECT ... ON CONFLICT statement for req.
// Under update every non-key column takes the incoming value; when all
// columns are keys there is nothing to update and the conflict is ignored.
func PlanMerge(req MergeRequest) (string, error) {
	policy, err := ParseConflictPolicy(string(req.OnConflict))
	if err != nil {
		return "", err
	}
	source, err := core.ParseTable(req.Source, "")
	if err != nil {
		return "", err
	}
	target, err := core.ParseTable(req.Target, "")
	if err != nil {
		return "", err
	}
	if err := checkNames("column", req.Columns); err != nil {
		return "", err
	}
	if err := checkNames("primary key", req.PKeys); err != nil {
		return "", err
	}

	if policy == ConflictUpdate {
		if len(req.PKeys) == 0 {
			return "", core.Validationf("update requires at least one primary key")
		}
		if len(req.Columns) == 0 {
			return "", core.Validationf("update requires the column list")
		}
	}
	if len(req.Columns) > 0 {
		cols := make(map[string]struct{}, len(req.Columns))
		for _, c := range req.Columns {
			cols[c] = struct{}{}
		}
		for _, k := range req.PKeys {
			if _, ok := cols[k]; !ok {
				return "", core.Validationf("primary key %q is not among the columns", k)
			}
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteTable(target))
	b.WriteString(" SELECT * FROM ")
	b.WriteString(quoteTable(source))
	b.WriteString(" ON CONFLICT")
	if len(req.PKeys) > 0 {
		b.WriteString(" (")
		b.WriteString(quoteList(req.PKeys))
		b.WriteByte(')')
	}

	updates := nonKeyColumns(req.Columns, req.PKeys)
	if policy == ConflictIgnore || len(updates) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String(), nil
	}

	b.WriteString(" DO UPDATE SET ")
	for i, c := range updates {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{c}.Sanitize()
		b.WriteString(q)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(q)
	}
	return b.String(), nil
}

// Merge plans req and runs the statement.
func (a *Adapter) Merge(ctx context.Context, req MergeRequest) error {
	stmt, err := PlanMerge(req)
	if err != nil {
		return err
	}
	a.Logger.Debug("merge",
		slog.String("source", req.Source),
		slog.String("target", req.Target),
		slog.String("on_conflict", string(req.OnConflict)))
	return a.Exec(ctx, stmt, nil)
}

func checkNames(kind string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return core.Validationf("%s name is empty", kind)
		}
		if _, dup := seen[n]; dup {
			return core.Validationf("duplicate %s %q", kind, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func nonKeyColumns(columns, pkeys []string) []string {
	keys := make(map[string]struct{}, len(pkeys))
	for _, k := range pkeys {
		keys[k] = struct{}{}
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := keys[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgx.Identifier{n}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
