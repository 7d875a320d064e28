// Package dedup removes duplicate rows from consolidated record sets.
package dedup

import (
	"log/slog"
	"strings"

	"github.com/fatotools/wms-loader/internal/schema"
)

// warnFraction is the duplicate ratio above which removal is suspicious
// enough to flag. Overlapping report exports commonly produce a handful of
// duplicates; more than this usually means the same file landed twice.
const warnFraction = 0.02

// Dedup removes rows that repeat an earlier row's business key, keeping
// the first occurrence. The key is the intersection of the business-key
// subset with the columns actually present; when none of the subset is
// present the whole row is the key. Returns the number of rows removed.
func Dedup(rs *schema.RecordSet, table string, log *slog.Logger) int {
	if rs.Len() == 0 {
		return 0
	}
	keyIdx := make([]int, 0, len(schema.DedupColumns))
	for _, name := range schema.DedupColumns {
		if idx := rs.ColumnIndex(name); idx >= 0 {
			keyIdx = append(keyIdx, idx)
		}
	}
	if len(keyIdx) == 0 {
		keyIdx = keyIdx[:0]
		for i := range rs.Columns {
			keyIdx = append(keyIdx, i)
		}
	}

	seen := make(map[string]struct{}, rs.Len())
	kept := rs.Rows[:0]
	var b strings.Builder
	for _, row := range rs.Rows {
		b.Reset()
		for _, idx := range keyIdx {
			cell := row[idx]
			if cell.Valid {
				b.WriteByte(1)
				b.WriteString(cell.String)
			} else {
				b.WriteByte(0)
			}
			b.WriteByte(0x1f)
		}
		key := b.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}

	removed := len(rs.Rows) - len(kept)
	rs.Rows = kept
	if removed == 0 {
		return 0
	}

	fraction := float64(removed) / float64(removed+len(kept))
	if fraction > warnFraction {
		log.Warn("unusually high duplicate ratio",
			"table", table,
			"removed", removed,
			"fraction", fraction)
	} else {
		log.Info("duplicates removed", "table", table, "removed", removed)
	}
	return removed
}
