package postgres

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// DefaultDelimiter separates fields in COPY payloads unless a request sets
// its own. Tab keeps comma-bearing values unescaped.
const DefaultDelimiter = "\t"

// CopyRequest describes one bulk load. Exactly one of Frame and CSV must be
// set.
type CopyRequest struct {
	// Table is the target table, optionally qualified as schema.table.
	Table string
	// Schema is used when Table is unqualified. Defaults to public.
	Schema string

	// Frame is loaded column by column in frame order.
	Frame *core.Frame
	// CSV is a header-less payload already in COPY text format, sent as is.
	CSV string
	// Columns lists the target columns of a CSV payload. When empty the
	// table's own column order applies.
	Columns []string

	// Delimiter is a single byte. Defaults to DefaultDelimiter.
	Delimiter string
}

// Validate checks the request shape without touching the database.
func (r CopyRequest) Validate() error {
	hasFrame := r.Frame != nil
	hasCSV := r.CSV != ""
	if hasFrame == hasCSV {
		return core.Validationf("exactly one of frame or csv must be provided")
	}
	if hasFrame && len(r.Columns) > 0 {
		return core.Validationf("columns are derived from the frame and cannot be given with it")
	}
	if hasFrame && r.Frame.Width() == 0 {
		return core.Validationf("frame has no columns")
	}
	for _, c := range r.Columns {
		if c == "" {
			return core.Validationf("copy column name is empty")
		}
	}
	if _, err := r.delimiter(); err != nil {
		return err
	}
	_, err := r.target()
	return err
}

func (r CopyRequest) target() (core.Table, error) {
	schema := r.Schema
	if schema == "" {
		schema = core.DefaultSchema
	}
	t, err := core.ParseTable(r.Table, schema)
	if err != nil {
		return core.Table{}, err
	}
	if r.Schema != "" && t.Schema != r.Schema {
		return core.Table{}, core.Validationf("table %q conflicts with schema %q", r.Table, r.Schema)
	}
	return t, nil
}

// delimiter returns the request's delimiter byte. PostgreSQL's text format
// reserves backslash, newlines, lowercase letters, digits and the period;
// the single quote would break the statement literal.
func (r CopyRequest) delimiter() (byte, error) {
	d := r.Delimiter
	if d == "" {
		d = DefaultDelimiter
	}
	if len(d) != 1 || d[0] >= 0x80 {
		return 0, core.Validationf("delimiter %q must be a single one-byte character", d)
	}
	c := d[0]
	if strings.IndexByte("\\'\r\n.abcdefghijklmnopqrstuvwxyz0123456789", c) >= 0 {
		return 0, core.Validationf("delimiter %q is not allowed", d)
	}
	return c, nil
}

// BuildCopyStatement returns the COPY FROM STDIN statement for table. The
// column clause is omitted when columns is empty.
func BuildCopyStatement(table core.Table, columns []string, delimiter byte) string {
	var b strings.Builder
	b.WriteString("COPY ")
	b.WriteString(quoteTable(table))
	if len(columns) > 0 {
		b.WriteByte('(')
		b.WriteString(quoteList(columns))
		b.WriteByte(')')
	}
	b.WriteString(" FROM STDIN WITH NULL AS '' DELIMITER '")
	b.WriteByte(delimiter)
	b.WriteByte('\'')
	return b.String()
}

// copyFunc streams r into the server with stmt on the given driver
// connection and returns the server's row count.
type copyFunc func(ctx context.Context, driverConn any, r io.Reader, stmt string) (int64, error)

func pgCopyFrom(ctx context.Context, driverConn any, r io.Reader, stmt string) (int64, error) {
	conn, ok := driverConn.(*stdlib.Conn)
	if !ok {
		return 0, fmt.Errorf("copy requires a pgx connection, got %T", driverConn)
	}
	tag, err := conn.Conn().PgConn().CopyFrom(ctx, r, stmt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CopyToTable bulk loads req through COPY FROM STDIN and returns the number
// of data rows sent. The session is autocommit: a failed copy is not rolled
// back by the client.
func (a *Adapter) CopyToTable(ctx context.Context, req CopyRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	table, _ := req.target()
	delim, _ := req.delimiter()

	var (
		payload []byte
		columns []string
		rows    int64
	)
	if req.Frame != nil {
		var err error
		payload, err = EncodeFrame(req.Frame, delim)
		if err != nil {
			return 0, err
		}
		columns = req.Frame.Columns()
		rows = int64(req.Frame.Len())
	} else {
		payload = []byte(req.CSV)
		columns = req.Columns
		rows = CountLines(req.CSV)
	}

	stmt := BuildCopyStatement(table, columns, delim)
	a.Logger.Debug("copy to table",
		slog.String("table", table.String()),
		slog.Int("columns", len(columns)),
		slog.Int64("rows", rows),
		slog.Int("bytes", len(payload)))

	copyFrom := a.copyFrom
	if copyFrom == nil {
		copyFrom = pgCopyFrom
	}

	err := a.WithCursor(ctx, func(cur *adapter.Cursor) error {
		return cur.Raw(func(driverConn any) error {
			n, err := copyFrom(ctx, driverConn, bytes.NewReader(payload), stmt)
			if err != nil {
				return adapter.Classify("copy", stmt, err)
			}
			if n != rows {
				a.Logger.Warn("server row count differs from payload",
					slog.String("table", table.String()),
					slog.Int64("sent", rows),
					slog.Int64("copied", n))
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// CountLines counts newline-delimited lines, ignoring one trailing empty
// line.
func CountLines(s string) int64 {
	if s == "" {
		return 0
	}
	n := int64(strings.Count(s, "\n"))
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// EncodeFrame serializes f as a header-less COPY text payload. NULL and the
// empty string both become the empty field.
func EncodeFrame(f *core.Frame, delimiter byte) ([]byte, error) {
	var buf bytes.Buffer
	width := f.Width()
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		for j := 0; j < width; j++ {
			if j > 0 {
				buf.WriteByte(delimiter)
			}
			text, err := copyText(row[j])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, f.Columns()[j], err)
			}
			escapeCopyText(&buf, text, delimiter)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// copyText renders a scalar in the text form PostgreSQL accepts on input.
func copyText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return `\x` + hex.EncodeToString(x), nil
	case bool:
		if x {
			return "t", nil
		}
		return "f", nil
	case float64:
		return formatFloat(x, 64), nil
	case float32:
		return formatFloat(float64(x), 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case driver.Valuer:
		inner, err := x.Value()
		if err != nil {
			return "", err
		}
		if _, again := inner.(driver.Valuer); again {
			return "", fmt.Errorf("value %T resolves to another driver.Valuer", v)
		}
		return copyText(inner)
	case fmt.Stringer:
		return x.String(), nil
	default:
		return fmt.Sprint(x), nil
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// escapeCopyText writes s with COPY text-format escapes so that backslash,
// line breaks and the delimiter survive the trip.
func escapeCopyText(buf *bytes.Buffer, s string, delimiter byte) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case delimiter:
			if c == '\t' {
				buf.WriteString(`\t`)
			} else {
				buf.WriteByte('\\')
				buf.WriteByte(c)
			}
		default:
			buf.WriteByte(c)
		}
	}
}
