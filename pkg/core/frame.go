package core

import (
	"encoding/json"
	"reflect"
)

// Frame is an in-memory tabular dataset: ordered named columns, each an
// ordered sequence of scalar values. A nil value is SQL NULL.
//
// Data is stored column-major so that whole columns can be handed out
// without copying.
type Frame struct {
	columns []string
	data    [][]any
}

// NewFrame returns an empty frame with the given column names.
func NewFrame(columns ...string) (*Frame, error) {
	if err := checkColumnNames(columns); err != nil {
		return nil, err
	}
	f := &Frame{
		columns: append([]string(nil), columns...),
		data:    make([][]any, len(columns)),
	}
	for i := range f.data {
		f.data[i] = []any{}
	}
	return f, nil
}

// FrameFromColumns builds a frame from parallel column slices.
func FrameFromColumns(columns []string, data [][]any) (*Frame, error) {
	if err := checkColumnNames(columns); err != nil {
		return nil, err
	}
	if len(columns) != len(data) {
		return nil, Validationf("frame has %d column names but %d columns", len(columns), len(data))
	}
	for i, col := range data {
		if len(col) != len(data[0]) {
			return nil, Validationf("column %q has %d values, expected %d", columns[i], len(col), len(data[0]))
		}
	}

	f := &Frame{columns: append([]string(nil), columns...), data: make([][]any, len(data))}
	for i, col := range data {
		f.data[i] = append([]any{}, col...)
	}
	return f, nil
}

// FrameFromRecords builds a frame from row-major records.
func FrameFromRecords(columns []string, records [][]any) (*Frame, error) {
	f, err := NewFrame(columns...)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := f.AppendRow(rec...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// frameFromResult builds a frame from fetched rows. Column names come from
// the result descriptor as the server reported them, so they may repeat
// (SELECT p.id, t.id ...) and are not checked.
func frameFromResult(columns []string, records [][]any) (*Frame, error) {
	f := &Frame{columns: append([]string(nil), columns...), data: make([][]any, len(columns))}
	for i := range f.data {
		f.data[i] = make([]any, 0, len(records))
	}
	for _, rec := range records {
		if err := f.AppendRow(rec...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func checkColumnNames(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c == "" {
			return Validationf("frame column name is empty")
		}
		if _, dup := seen[c]; dup {
			return Validationf("duplicate frame column %q", c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// AppendRow adds one row; the value count must match the column count.
func (f *Frame) AppendRow(values ...any) error {
	if len(values) != len(f.columns) {
		return Validationf("row has %d values, frame has %d columns", len(values), len(f.columns))
	}
	for i, v := range values {
		f.data[i] = append(f.data[i], v)
	}
	return nil
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.data) == 0 {
		return 0
	}
	return len(f.data[0])
}

// Column returns the values of the named column. When a fetched frame
// repeats a name, the first column with that name is returned.
func (f *Frame) Column(name string) ([]any, bool) {
	for i, c := range f.columns {
		if c == name {
			return f.data[i], true
		}
	}
	return nil, false
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.columns))
	for j := range f.columns {
		row[j] = f.data[j][i]
	}
	return row
}

// Records returns the frame as row-major records.
func (f *Frame) Records() [][]any {
	out := make([][]any, f.Len())
	for i := range out {
		out[i] = f.Row(i)
	}
	return out
}

// Equal reports whether both frames have the same columns and values in the
// same order.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return reflect.DeepEqual(f.columns, other.columns) && reflect.DeepEqual(f.data, other.data)
}

// MarshalJSON encodes the frame as {"columns": [...], "data": [[row], ...]}.
func (f *Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Data    [][]any  `json:"data"`
	}{
		Columns: f.columns,
		Data:    f.Records(),
	})
}
