package statement

import (
	"database/sql"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// Column describes one result column as reported by the driver. The Has*
// fields tell whether the driver supplied the matching value.
type Column struct {
	Name         string
	DatabaseType string

	Nullable    bool
	HasNullable bool

	Length    int64
	HasLength bool

	Precision      int64
	Scale          int64
	HasDecimalSize bool
}

// Snapshot is a fully materialized query result. It holds no reference to the
// connection, statement or cursor it was read from, so it stays readable after
// all of them are closed. A Snapshot is immutable and safe for concurrent reads.
type Snapshot struct {
	columns []Column
	rows    [][]any
}

// readSnapshot drains rows. It does not close rows.
func readSnapshot(rows *sql.Rows) (*Snapshot, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}

	columns := make([]Column, len(types))
	for i, ct := range types {
		col := Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
		col.Nullable, col.HasNullable = ct.Nullable()
		col.Length, col.HasLength = ct.Length()
		col.Precision, col.Scale, col.HasDecimalSize = ct.DecimalSize()
		columns[i] = col
	}

	snap := &Snapshot{columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		// Scanning into *any copies []byte values out of driver buffers.
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", len(snap.rows), err)
		}
		snap.rows = append(snap.rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return snap, nil
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	return len(s.rows)
}

// Columns returns a copy of the column metadata.
func (s *Snapshot) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// ColumnIndex returns the position of the named column, or -1. An exact match
// wins over a case-insensitive one.
func (s *Snapshot) ColumnIndex(name string) int {
	for i, c := range s.columns {
		if c.Name == name {
			return i
		}
	}
	for i, c := range s.columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Row returns a copy of row i. It panics if i is out of range.
func (s *Snapshot) Row(i int) []any {
	return append([]any(nil), s.rows[i]...)
}

// Value returns the value of the named column in row i. ok is false when the
// row or column does not exist.
func (s *Snapshot) Value(i int, column string) (value any, ok bool) {
	c := s.ColumnIndex(column)
	if c < 0 || i < 0 || i >= len(s.rows) {
		return nil, false
	}
	return s.rows[i][c], true
}

// Scan copies row i into dest, one destination per column, converting values
// the way database/sql does for the common destination types.
func (s *Snapshot) Scan(i int, dest ...any) error {
	if i < 0 || i >= len(s.rows) {
		return fmt.Errorf("row %d out of range [0,%d)", i, len(s.rows))
	}
	return scanRow(s.columns, s.rows[i], dest)
}

// All iterates over row positions and copies of the rows.
func (s *Snapshot) All() iter.Seq2[int, []any] {
	return func(yield func(int, []any) bool) {
		for i := range s.rows {
			if !yield(i, s.Row(i)) {
				return
			}
		}
	}
}

// Cursor returns a forward cursor positioned before the first row.
func (s *Snapshot) Cursor() *Cursor {
	return &Cursor{snap: s, pos: -1}
}

// Cursor walks a Snapshot row by row, in the manner of sql.Rows.
// It is not safe for concurrent use.
type Cursor struct {
	snap *Snapshot
	pos  int
}

// Next advances to the next row and reports whether there is one.
func (c *Cursor) Next() bool {
	if c.pos < len(c.snap.rows) {
		c.pos++
	}
	return c.pos < len(c.snap.rows)
}

// Scan copies the current row into dest.
func (c *Cursor) Scan(dest ...any) error {
	if c.pos < 0 || c.pos >= len(c.snap.rows) {
		return fmt.Errorf("cursor is not positioned on a row")
	}
	return scanRow(c.snap.columns, c.snap.rows[c.pos], dest)
}

// Value returns the named column of the current row.
func (c *Cursor) Value(column string) (any, bool) {
	return c.snap.Value(c.pos, column)
}

func scanRow(columns []Column, row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destination arguments in Scan, not %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := convertAssign(d, row[i]); err != nil {
			return fmt.Errorf("converting column %d (%q): %w", i, columns[i].Name, err)
		}
	}
	return nil
}

func convertAssign(dest, src any) error {
	if scanner, ok := dest.(sql.Scanner); ok {
		return scanner.Scan(src)
	}

	if d, ok := dest.(*any); ok {
		if b, isBytes := src.([]byte); isBytes {
			src = append([]byte(nil), b...)
		}
		*d = src
		return nil
	}

	if src == nil {
		return fmt.Errorf("cannot store NULL into %T", dest)
	}

	switch d := dest.(type) {
	case *string:
		switch v := src.(type) {
		case string:
			*d = v
		case []byte:
			*d = string(v)
		case time.Time:
			*d = v.Format(time.RFC3339Nano)
		default:
			*d = fmt.Sprint(v)
		}
		return nil

	case *[]byte:
		switch v := src.(type) {
		case []byte:
			*d = append([]byte(nil), v...)
		case string:
			*d = []byte(v)
		default:
			*d = []byte(fmt.Sprint(v))
		}
		return nil

	case *int64:
		n, err := asInt64(src)
		if err != nil {
			return err
		}
		*d = n
		return nil

	case *int:
		n, err := asInt64(src)
		if err != nil {
			return err
		}
		*d = int(n)
		return nil

	case *float64:
		switch v := src.(type) {
		case float64:
			*d = v
		case float32:
			*d = float64(v)
		case int64:
			*d = float64(v)
		default:
			f, err := strconv.ParseFloat(asString(src), 64)
			if err != nil {
				return fmt.Errorf("converting %T to float64: %w", src, err)
			}
			*d = f
		}
		return nil

	case *bool:
		switch v := src.(type) {
		case bool:
			*d = v
		case int64:
			*d = v != 0
		default:
			b, err := strconv.ParseBool(asString(src))
			if err != nil {
				return fmt.Errorf("converting %T to bool: %w", src, err)
			}
			*d = b
		}
		return nil

	case *time.Time:
		switch v := src.(type) {
		case time.Time:
			*d = v
		default:
			t, err := time.Parse(time.RFC3339Nano, asString(src))
			if err != nil {
				return fmt.Errorf("converting %T to time.Time: %w", src, err)
			}
			*d = t
		}
		return nil
	}

	return fmt.Errorf("unsupported Scan destination %T", dest)
}

func asInt64(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	n, err := strconv.ParseInt(asString(src), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("converting %T to int64: %w", src, err)
	}
	return n, nil
}

func asString(src any) string {
	switch v := src.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(src)
}
