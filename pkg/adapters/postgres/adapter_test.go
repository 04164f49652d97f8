package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/atlas/internal/testutil"
	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// newMockAdapter returns an adapter attached to a sqlmock database that
// matches statements verbatim.
func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	adp := New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Attach(context.Background(), db))
	t.Cleanup(func() { _ = adp.Close() })
	return adp, mock
}

func TestNew(t *testing.T) {
	adp := New(nil)

	assert.NotNil(t, adp, "New() should return non-nil adapter")
	assert.Nil(t, adp.DB, "DB should be nil before Connect")
	assert.False(t, adp.IsConnected(), "should not be connected initially")

	var _ adapter.Executor = adp
}

func TestAdapter_NotConnected(t *testing.T) {
	tests := []struct {
		name      string
		operation func(ctx context.Context, adp *Adapter) error
	}{
		{
			name: "exec without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				return adp.Exec(ctx, "SELECT 1", nil)
			},
		},
		{
			name: "fetch without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.Fetch(ctx, "SELECT 1", nil, core.ShapeRecord)
				return err
			},
		},
		{
			name: "table columns without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.TableColumns(ctx, core.Table{Schema: "public", Name: "asset"})
				return err
			},
		},
		{
			name: "copy without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.CopyToTable(ctx, CopyRequest{Table: "asset", CSV: "a\n"})
				return err
			},
		},
		{
			name: "merge without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				return adp.Merge(ctx, MergeRequest{
					Source: "staging.asset", Target: "public.asset",
					OnConflict: ConflictIgnore, PKeys: []string{"isin"},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adp := New(nil)

			err := tt.operation(ctx, adp)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrNotConnected)
			assert.Contains(t, err.Error(), "not established")
		})
	}
}

func TestAdapter_Connect_BadSource(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{name: "no source", src: Source{}},
		{name: "two sources", src: Source{ConnInfo: "host=localhost", Service: "atlas"}},
		{name: "unparsable conninfo", src: Source{ConnInfo: "host='unterminated"}},
		{name: "missing config file", src: Source{ConfigFile: "/does/not/exist.ini"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp := New(nil)
			err := adp.Connect(context.Background(), tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)
			assert.False(t, adp.IsConnected())
		})
	}
}

func TestAdapter_Connect_AlreadyConnected(t *testing.T) {
	adp, _ := newMockAdapter(t)

	err := adp.Connect(context.Background(), Source{ConnInfo: "host=localhost"})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.True(t, adp.IsConnected())
}

func TestAdapter_Close(t *testing.T) {
	// Close should not error even without connection
	adp := New(nil)
	assert.NoError(t, adp.Close())
	assert.NoError(t, adp.Close())
}

func TestAdapter_TableColumns(t *testing.T) {
	const query = `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	t.Run("found", func(t *testing.T) {
		adp, mock := newMockAdapter(t)
		mock.ExpectQuery(query).
			WithArgs("public", "asset").
			WillReturnRows(sqlmock.NewRows([]string{"column_name"}).
				AddRow("isin").AddRow("name").AddRow("asset_type_id"))

		cols, err := adp.TableColumns(context.Background(), core.Table{Schema: "public", Name: "asset"})
		require.NoError(t, err)
		assert.Equal(t, []string{"isin", "name", "asset_type_id"}, cols)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing table", func(t *testing.T) {
		adp, mock := newMockAdapter(t)
		mock.ExpectQuery(query).
			WithArgs("public", "nope").
			WillReturnRows(sqlmock.NewRows([]string{"column_name"}))

		_, err := adp.TableColumns(context.Background(), core.Table{Schema: "public", Name: "nope"})
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdapter_StagingTables(t *testing.T) {
	adp, mock := newMockAdapter(t)
	staging := core.Table{Schema: "staging", Name: "asset_1"}
	target := core.Table{Schema: "public", Name: "asset"}

	mock.ExpectExec(`CREATE TABLE "staging"."asset_1" (LIKE "public"."asset" INCLUDING DEFAULTS)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP TABLE IF EXISTS "staging"."asset_1"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adp.CreateStagingTable(context.Background(), staging, target))
	require.NoError(t, adp.DropTable(context.Background(), staging))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Merge(t *testing.T) {
	adp, mock := newMockAdapter(t)
	mock.ExpectExec(`INSERT INTO "public"."asset" SELECT * FROM "staging"."asset" ON CONFLICT ("isin") DO UPDATE SET "name" = EXCLUDED."name"`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := adp.Merge(context.Background(), MergeRequest{
		Source:     "staging.asset",
		Target:     "public.asset",
		OnConflict: ConflictUpdate,
		Columns:    []string{"isin", "name"},
		PKeys:      []string{"isin"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Merge_InvalidPlanRunsNothing(t *testing.T) {
	adp, mock := newMockAdapter(t)

	err := adp.Merge(context.Background(), MergeRequest{
		Source:     "staging.asset",
		Target:     "public.asset",
		OnConflict: ConflictUpdate,
		Columns:    []string{"isin", "name"},
	})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
