package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// Output formats.
const (
	FormatAuto  = "auto"
	FormatTable = "table"
	FormatJSON  = "json"
)

// resolveFormat turns auto into table on a terminal and JSON elsewhere.
func resolveFormat(format string, w io.Writer) string {
	if format == "" || format == FormatAuto {
		if isTerminal(w) {
			return FormatTable
		}
		return FormatJSON
	}
	return format
}

func renderFrame(w io.Writer, f *core.Frame, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, f)
	case FormatTable:
		return renderTable(w, f)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, f *core.Frame) error {
	if f.Len() == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, f.Width())
	for i, col := range f.Columns() {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, rec := range f.Records() {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", f.Len())
	return nil
}

// renderJSON writes one object per row, keyed by column name.
func renderJSON(w io.Writer, f *core.Frame) error {
	cols := f.Columns()
	rows := make([]map[string]any, 0, f.Len())
	for _, rec := range f.Records() {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := rec[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
