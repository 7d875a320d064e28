package schema

import "database/sql"

// RecordSet holds all-text tabular data: an ordered column list and rows of
// nullable cells aligned to it. A null cell is distinct from an empty string.
type RecordSet struct {
	Columns []string
	Rows    [][]sql.NullString
}

// NewRecordSet creates an empty record set over the given columns.
func NewRecordSet(columns []string) *RecordSet {
	return &RecordSet{Columns: columns}
}

// Len returns the number of rows.
func (rs *RecordSet) Len() int {
	return len(rs.Rows)
}

// ColumnIndex returns the position of name in the column order, or -1.
func (rs *RecordSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AddColumn appends a column filled with the same cell on every row.
func (rs *RecordSet) AddColumn(name string, fill sql.NullString) {
	rs.Columns = append(rs.Columns, name)
	for i := range rs.Rows {
		rs.Rows[i] = append(rs.Rows[i], fill)
	}
}

// Text wraps s as a non-null cell.
func Text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// Null returns the absent cell.
func Null() sql.NullString {
	return sql.NullString{}
}
