package core

import "strings"

// FetchShape selects the container a fetch materializes its rows into.
type FetchShape string

// Fetch shapes.
const (
	// ShapeRecord yields [][]any, one positional slice per row.
	ShapeRecord FetchShape = "record"
	// ShapeJSON yields []map[string]any keyed by column name.
	ShapeJSON FetchShape = "json"
	// ShapeDataFrame yields a *Frame.
	ShapeDataFrame FetchShape = "dataframe"
)

// ParseFetchShape parses a shape name. The empty string means ShapeRecord.
func ParseFetchShape(s string) (FetchShape, error) {
	switch FetchShape(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShapeRecord:
		return ShapeRecord, nil
	case ShapeJSON:
		return ShapeJSON, nil
	case ShapeDataFrame:
		return ShapeDataFrame, nil
	default:
		return "", Validationf("unknown fetch shape %q (want record, json or dataframe)", s)
	}
}

// ResultSet holds every row of a finished query. Column names come from the
// result descriptor.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Records returns the rows as positional slices. Never nil.
func (r *ResultSet) Records() [][]any {
	if r.Rows == nil {
		return [][]any{}
	}
	return r.Rows
}

// Maps returns one name-to-value map per row. Never nil.
func (r *ResultSet) Maps() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out
}

// Frame returns the rows as a frame, keeping the column names exactly as
// the result reported them, repeats included.
func (r *ResultSet) Frame() (*Frame, error) {
	return frameFromResult(r.Columns, r.Rows)
}

// As converts the result set into the requested shape.
func (r *ResultSet) As(shape FetchShape) (any, error) {
	switch shape {
	case "", ShapeRecord:
		return r.Records(), nil
	case ShapeJSON:
		return r.Maps(), nil
	case ShapeDataFrame:
		return r.Frame()
	default:
		return nil, Validationf("unknown fetch shape %q", shape)
	}
}
