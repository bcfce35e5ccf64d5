package domain

// ColumnType is the element type of a table column.
type ColumnType string

const (
	ColumnFloat  ColumnType = "float"
	ColumnInt    ColumnType = "int"
	ColumnString ColumnType = "string"
	ColumnBool   ColumnType = "bool"
)

// Column is one typed vector of a Table. Only the slice matching Type is populated.
type Column struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Floats  []float64  `json:"floats,omitempty"`
	Ints    []int64    `json:"ints,omitempty"`
	Strings []string   `json:"strings,omitempty"`
	Bools   []bool     `json:"bools,omitempty"`
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.Type {
	case ColumnFloat:
		return len(c.Floats)
	case ColumnInt:
		return len(c.Ints)
	case ColumnString:
		return len(c.Strings)
	case ColumnBool:
		return len(c.Bools)
	}
	return 0
}

// Float returns row i as a float64 for numeric columns.
func (c *Column) Float(i int) (float64, bool) {
	switch c.Type {
	case ColumnFloat:
		return c.Floats[i], true
	case ColumnInt:
		return float64(c.Ints[i]), true
	}
	return 0, false
}

// FloatColumn builds a float column.
func FloatColumn(name string, values []float64) Column {
	return Column{Name: name, Type: ColumnFloat, Floats: values}
}

// IntColumn builds an int column.
func IntColumn(name string, values []int64) Column {
	return Column{Name: name, Type: ColumnInt, Ints: values}
}

// StringColumn builds a string column.
func StringColumn(name string, values []string) Column {
	return Column{Name: name, Type: ColumnString, Strings: values}
}

// BoolColumn builds a bool column.
func BoolColumn(name string, values []bool) Column {
	return Column{Name: name, Type: ColumnBool, Bools: values}
}

// Table is a columnar tabular payload.
type Table struct {
	Columns []Column `json:"columns"`
}

// NewTable builds a table from columns.
func NewTable(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// NumRows returns the row count (the length of the first column).
func (t *Table) NumRows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames lists column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Take returns a new table holding only the given row indices.
func (t *Table) Take(rows []int) *Table {
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for ci, c := range t.Columns {
		nc := Column{Name: c.Name, Type: c.Type}
		for _, r := range rows {
			switch c.Type {
			case ColumnFloat:
				nc.Floats = append(nc.Floats, c.Floats[r])
			case ColumnInt:
				nc.Ints = append(nc.Ints, c.Ints[r])
			case ColumnString:
				nc.Strings = append(nc.Strings, c.Strings[r])
			case ColumnBool:
				nc.Bools = append(nc.Bools, c.Bools[r])
			}
		}
		out.Columns[ci] = nc
	}
	return out
}

// Series is a one-dimensional numeric series.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Array is a dense multi-dimensional array stored row-major.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Metrics is a mapping of metric names to scalar values.
type Metrics map[string]any

// Params is a free-form parameter bag.
type Params map[string]any

// Blob is an opaque payload (trained model handles, media) identified by a tag.
type Blob struct {
	Tag  string `json:"tag"`
	Data []byte `json:"data"`
}

// KindOf classifies a payload. It returns "" for values with no payload kind.
func KindOf(v any) PortKind {
	switch v.(type) {
	case *Table, Table:
		return PortTable
	case *Series, Series:
		return PortSeries
	case *Array, Array:
		return PortArray
	case *Blob, Blob:
		return PortModel
	case Metrics:
		return PortMetrics
	case Params:
		return PortParams
	case map[string]any:
		return PortParams
	}
	return ""
}

// PayloadMatches reports whether v may travel through a port of the given kind.
// A plain map[string]any satisfies both metrics and params ports.
func PayloadMatches(kind PortKind, v any) bool {
	if kind == PortAny {
		return true
	}
	if _, ok := v.(map[string]any); ok {
		return kind == PortMetrics || kind == PortParams
	}
	return KindOf(v) == kind
}
