// Package dates normalizes the date columns of a record set into a single
// canonical text form and derives the reference date used downstream.
package dates

import (
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/fatotools/wms-loader/internal/schema"
)

// Canonical is the storage form for every recognized date value.
const Canonical = "2006-01-02 15:04:05"

// missingTokens are the values treated as absent. Spreadsheet exports leak
// the literal text of their own null markers.
var missingTokens = map[string]struct{}{
	"":     {},
	"none": {},
	"nan":  {},
	"nat":  {},
	"null": {},
}

// dayFirstLayouts is the primary parse ladder, most specific first. The
// warehouse system emits Brazilian day-first forms; ISO forms show up when
// a file has already been through one normalization cycle.
var dayFirstLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/06 15:04:05",
	"02/01/06",
}

// IsMissing reports whether the cell carries no usable date text.
func IsMissing(cell sql.NullString) bool {
	if !cell.Valid {
		return true
	}
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(cell.String))]
	return ok
}

// Parse attempts to read value as a timestamp, trying the day-first ladder
// before falling back to permissive parsing that still resolves ambiguous
// numeric dates day-first.
func Parse(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseAny(v, dateparse.PreferMonthFirst(false)); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Normalizer applies the date passes to consolidated record sets.
type Normalizer struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// NormalizeColumns rewrites parseable values in the named columns into the
// canonical form. Missing tokens and unparseable text are left exactly as
// they arrived.
func (n *Normalizer) NormalizeColumns(rs *schema.RecordSet, columns []string) {
	for _, name := range columns {
		idx := rs.ColumnIndex(name)
		if idx < 0 {
			continue
		}
		rewritten := 0
		for _, row := range rs.Rows {
			cell := row[idx]
			if IsMissing(cell) {
				continue
			}
			if t, ok := Parse(cell.String); ok {
				row[idx] = schema.Text(t.Format(Canonical))
				rewritten++
			}
		}
		n.log.Debug("normalized date column", "column", name, "rewritten", rewritten)
	}
}

// CrossFill copies the start timestamp into a missing end timestamp and
// vice versa, row by row, when exactly one of the pair is absent. Returns
// how many cells were filled in each direction.
func (n *Normalizer) CrossFill(rs *schema.RecordSet, table string) (startFromEnd, endFromStart int) {
	si := rs.ColumnIndex(schema.CrossFillPair[0])
	ei := rs.ColumnIndex(schema.CrossFillPair[1])
	if si < 0 || ei < 0 {
		return 0, 0
	}
	for _, row := range rs.Rows {
		missStart := IsMissing(row[si])
		missEnd := IsMissing(row[ei])
		switch {
		case missStart && !missEnd:
			row[si] = row[ei]
			startFromEnd++
		case missEnd && !missStart:
			row[ei] = row[si]
			endFromStart++
		}
	}
	n.log.Info("date cross-fill",
		"table", table,
		"start_from_end", startFromEnd,
		"end_from_start", endFromStart)
	return startFromEnd, endFromStart
}

// RefStats summarizes a DeriveRef pass for observability.
type RefStats struct {
	Total   int
	Missing int
	Min     time.Time
	Max     time.Time
	PerYear map[int]int
}

// MissingRate returns the missing fraction, 0 for an empty set.
func (s RefStats) MissingRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Missing) / float64(s.Total)
}

// DeriveRef computes the dt_ref column: the first priority date column
// whose value parses, per row. Rows where no priority value parses get a
// null. The column is appended when absent and overwritten when present,
// so re-derivation after cross-fill is safe.
func (n *Normalizer) DeriveRef(rs *schema.RecordSet) RefStats {
	refIdx := rs.ColumnIndex(schema.ColRef)
	if refIdx < 0 {
		rs.AddColumn(schema.ColRef, schema.Null())
		refIdx = rs.ColumnIndex(schema.ColRef)
	}
	priority := make([]int, 0, len(schema.RefPriority))
	for _, name := range schema.RefPriority {
		if idx := rs.ColumnIndex(name); idx >= 0 {
			priority = append(priority, idx)
		}
	}

	stats := RefStats{Total: rs.Len(), PerYear: make(map[int]int)}
	for _, row := range rs.Rows {
		ref, ok := deriveRow(row, priority)
		if !ok {
			row[refIdx] = schema.Null()
			stats.Missing++
			continue
		}
		row[refIdx] = schema.Text(ref.Format(Canonical))
		stats.PerYear[ref.Year()]++
		if stats.Min.IsZero() || ref.Before(stats.Min) {
			stats.Min = ref
		}
		if ref.After(stats.Max) {
			stats.Max = ref
		}
	}
	return stats
}

func deriveRow(row []sql.NullString, priority []int) (time.Time, bool) {
	for _, idx := range priority {
		if idx >= len(row) {
			continue
		}
		cell := row[idx]
		if IsMissing(cell) {
			continue
		}
		if t, ok := Parse(cell.String); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
