package postgres

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/atlas/internal/testutil"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// recordedCopy captures what the adapter handed to the COPY channel.
type recordedCopy struct {
	stmt    string
	payload string
	calls   int
}

func (r *recordedCopy) fn(result int64, err error) copyFunc {
	return func(_ context.Context, _ any, rd io.Reader, stmt string) (int64, error) {
		r.calls++
		r.stmt = stmt
		b, readErr := io.ReadAll(rd)
		if readErr != nil {
			return 0, readErr
		}
		r.payload = string(b)
		return result, err
	}
}

func mustFrame(t *testing.T, columns []string, records [][]any) *core.Frame {
	t.Helper()
	f, err := core.FrameFromRecords(columns, records)
	require.NoError(t, err)
	return f
}

func TestBuildCopyStatement(t *testing.T) {
	table := core.Table{Schema: "public", Name: "asset"}

	assert.Equal(t,
		"COPY \"public\".\"asset\"(\"isin\", \"name\") FROM STDIN WITH NULL AS '' DELIMITER '\t'",
		BuildCopyStatement(table, []string{"isin", "name"}, '\t'))
	assert.Equal(t,
		`COPY "public"."asset" FROM STDIN WITH NULL AS '' DELIMITER ','`,
		BuildCopyStatement(table, nil, ','))
	assert.Equal(t,
		`COPY "public"."asset"("we""ird") FROM STDIN WITH NULL AS '' DELIMITER '|'`,
		BuildCopyStatement(table, []string{`we"ird`}, '|'))
}

func TestCopyRequest_Validate(t *testing.T) {
	frame := mustFrame(t, []string{"isin"}, [][]any{{"US0378331005"}})
	empty, err := core.NewFrame()
	require.NoError(t, err)

	tests := []struct {
		name      string
		req       CopyRequest
		expectErr bool
	}{
		{name: "frame", req: CopyRequest{Table: "asset", Frame: frame}},
		{name: "csv", req: CopyRequest{Table: "asset", CSV: "a\tb\n", Columns: []string{"x", "y"}}},
		{name: "qualified table", req: CopyRequest{Table: "staging.asset", CSV: "a\n"}},
		{name: "qualified table with same schema", req: CopyRequest{Table: "staging.asset", Schema: "staging", CSV: "a\n"}},
		{name: "both", req: CopyRequest{Table: "asset", Frame: frame, CSV: "a\n"}, expectErr: true},
		{name: "neither", req: CopyRequest{Table: "asset"}, expectErr: true},
		{name: "frame with columns", req: CopyRequest{Table: "asset", Frame: frame, Columns: []string{"isin"}}, expectErr: true},
		{name: "frame without columns", req: CopyRequest{Table: "asset", Frame: empty}, expectErr: true},
		{name: "empty column name", req: CopyRequest{Table: "asset", CSV: "a\n", Columns: []string{""}}, expectErr: true},
		{name: "no table", req: CopyRequest{CSV: "a\n"}, expectErr: true},
		{name: "conflicting schema", req: CopyRequest{Table: "staging.asset", Schema: "public", CSV: "a\n"}, expectErr: true},
		{name: "multi-byte delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: "||"}, expectErr: true},
		{name: "backslash delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: `\`}, expectErr: true},
		{name: "quote delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: "'"}, expectErr: true},
		{name: "newline delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: "\n"}, expectErr: true},
		{name: "letter delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: "x"}, expectErr: true},
		{name: "non-ascii delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: "§"}, expectErr: true},
		{name: "comma delimiter", req: CopyRequest{Table: "asset", CSV: "a\n", Delimiter: ","}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.expectErr {
				assert.ErrorIs(t, err, core.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := mustFrame(t,
		[]string{"isin", "name", "price", "active", "listed", "raw"},
		[][]any{
			{"US0378331005", "Apple, Inc.", 189.5, true, at, []byte{0xde, 0xad}},
			{"DE0007164600", nil, nil, false, nil, nil},
			{"X1", "tab\there", int64(3), nil, nil, nil},
			{"X2", "line\nbreak\r", float32(0.5), nil, nil, nil},
			{"X3", `back\slash "quoted" 'single'`, 7, nil, nil, nil},
			{"X4", "", -1, nil, nil, nil},
		})

	payload, err := EncodeFrame(f, '\t')
	require.NoError(t, err)

	expected := "US0378331005\tApple, Inc.\t189.5\tt\t2024-03-01T09:30:00Z\t\\\\xdead\n" +
		"DE0007164600\t\t\tf\t\t\n" +
		"X1\ttab\\there\t3\t\t\t\n" +
		"X2\tline\\nbreak\\r\t0.5\t\t\t\n" +
		"X3\tback\\\\slash \"quoted\" 'single'\t7\t\t\t\n" +
		"X4\t\t-1\t\t\t\n"
	assert.Equal(t, expected, string(payload))
}

func TestEncodeFrame_CustomDelimiter(t *testing.T) {
	f := mustFrame(t, []string{"a", "b"}, [][]any{{"1,5", "x"}})

	payload, err := EncodeFrame(f, ',')
	require.NoError(t, err)
	assert.Equal(t, "1\\,5,x\n", string(payload))
}

func TestEncodeFrame_SpecialFloats(t *testing.T) {
	f := mustFrame(t, []string{"v"}, [][]any{{math.Inf(1)}, {math.Inf(-1)}, {math.NaN()}})

	payload, err := EncodeFrame(f, '\t')
	require.NoError(t, err)
	assert.Equal(t, "Infinity\n-Infinity\nNaN\n", string(payload))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, int64(0), CountLines(""))
	assert.Equal(t, int64(1), CountLines("a"))
	assert.Equal(t, int64(1), CountLines("a\n"))
	assert.Equal(t, int64(2), CountLines("a\nb"))
	assert.Equal(t, int64(2), CountLines("a\nb\n"))
	assert.Equal(t, int64(3), CountLines("a\n\nb\n"))
}

func TestAdapter_CopyToTable_Frame(t *testing.T) {
	adp, mock := newMockAdapter(t)
	rec := &recordedCopy{}
	adp.copyFrom = rec.fn(2, nil)

	f := mustFrame(t, []string{"isin", "name"}, [][]any{
		{"US0378331005", "Apple"},
		{"DE0007164600", nil},
	})

	n, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset", Frame: f})
	require.NoError(t, err)
	assert.Equal(t, int64(f.Len()), n)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "COPY \"public\".\"asset\"(\"isin\", \"name\") FROM STDIN WITH NULL AS '' DELIMITER '\t'", rec.stmt)
	assert.Equal(t, "US0378331005\tApple\nDE0007164600\t\n", rec.payload)
	assert.Equal(t, 0, adp.OpenCursors())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_CopyToTable_CSV(t *testing.T) {
	adp, _ := newMockAdapter(t)
	rec := &recordedCopy{}
	adp.copyFrom = rec.fn(3, nil)

	csv := "1,stock\n2,bond\n3,etf\n"
	n, err := adp.CopyToTable(context.Background(), CopyRequest{
		Table:     "asset_type",
		Schema:    "staging",
		CSV:       csv,
		Columns:   []string{"id", "name"},
		Delimiter: ",",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, `COPY "staging"."asset_type"("id", "name") FROM STDIN WITH NULL AS '' DELIMITER ','`, rec.stmt)
	assert.Equal(t, csv, rec.payload)
}

func TestAdapter_CopyToTable_WarnsOnCountMismatch(t *testing.T) {
	adp, _ := newMockAdapter(t)
	logger, logs := testutil.NewCaptureLogger(t)
	adp.Logger = logger
	rec := &recordedCopy{}
	adp.copyFrom = rec.fn(1, nil)

	// The server reports fewer rows than the payload holds.
	n, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset", CSV: "a\nb\n"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, logs.Contains("server row count differs from payload"))
	assert.True(t, logs.Contains("copied=1"))
}

func TestAdapter_CopyToTable_CSVWithoutColumns(t *testing.T) {
	adp, _ := newMockAdapter(t)
	rec := &recordedCopy{}
	adp.copyFrom = rec.fn(1, nil)

	_, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "staging.asset_type", CSV: "1\tstock"})
	require.NoError(t, err)
	assert.Equal(t, "COPY \"staging\".\"asset_type\" FROM STDIN WITH NULL AS '' DELIMITER '\t'", rec.stmt)
}

func TestAdapter_CopyToTable_Errors(t *testing.T) {
	f := mustFrame(t, []string{"isin"}, [][]any{{"US0378331005"}})

	t.Run("both frame and csv", func(t *testing.T) {
		adp, _ := newMockAdapter(t)
		rec := &recordedCopy{}
		adp.copyFrom = rec.fn(0, nil)

		_, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset", Frame: f, CSV: "x\n"})
		assert.ErrorIs(t, err, core.ErrValidation)
		assert.Equal(t, 0, rec.calls)
	})

	t.Run("neither frame nor csv", func(t *testing.T) {
		adp, _ := newMockAdapter(t)
		_, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("server rejects payload", func(t *testing.T) {
		adp, _ := newMockAdapter(t)
		rec := &recordedCopy{}
		adp.copyFrom = rec.fn(0, &pgconn.PgError{Code: "22P04", Message: "missing data for column \"name\""})

		_, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset", Frame: f})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrQuery)

		var qe *core.QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "22P04", qe.Code)
		assert.Contains(t, qe.Statement, `COPY "public"."asset"`)
		assert.Equal(t, 0, adp.OpenCursors())
	})

	t.Run("session lost mid stream", func(t *testing.T) {
		adp, _ := newMockAdapter(t)
		rec := &recordedCopy{}
		adp.copyFrom = rec.fn(0, io.ErrUnexpectedEOF)

		_, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset", Frame: f})
		assert.ErrorIs(t, err, core.ErrConnection)
		assert.Equal(t, 0, adp.OpenCursors())
	})

	t.Run("driver connection is not pgx", func(t *testing.T) {
		adp, _ := newMockAdapter(t)
		adp.copyFrom = pgCopyFrom

		_, err := adp.CopyToTable(context.Background(), CopyRequest{Table: "asset", Frame: f})
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrQuery))
		assert.Contains(t, err.Error(), "requires a pgx connection")
	})
}
