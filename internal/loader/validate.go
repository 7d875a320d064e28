package loader

import (
	"fmt"
	"strings"

	"github.com/fatotools/wms-loader/internal/schema"
)

// ValidationResult is the outcome of the pre-write shape check.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	RowCount int
}

// ValidateRecordSet checks a consolidated record set against the fixed
// target schema before it is written: exact column order and uniform row
// width. Warnings do not block the write.
func ValidateRecordSet(rs *schema.RecordSet, withAudit bool) ValidationResult {
	res := ValidationResult{Passed: true, RowCount: rs.Len()}
	fail := func(format string, args ...any) {
		res.Passed = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	want := schema.TargetColumns(withAudit)
	if len(rs.Columns) != len(want) {
		fail("column count %d, want %d", len(rs.Columns), len(want))
	} else {
		for i, name := range want {
			if rs.Columns[i] != name {
				fail("column %d is %q, want %q", i, rs.Columns[i], name)
			}
		}
	}

	width := len(rs.Columns)
	for i, row := range rs.Rows {
		if len(row) != width {
			fail("row %d has %d cells, want %d", i, len(row), width)
			break
		}
	}

	if idx := rs.ColumnIndex(schema.RequiredColumn); idx >= 0 && rs.Len() > 0 {
		empty := 0
		for _, row := range rs.Rows {
			if !row[idx].Valid || strings.TrimSpace(row[idx].String) == "" {
				empty++
			}
		}
		if empty == rs.Len() {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("column %q is empty on every row", schema.RequiredColumn))
		}
	}

	return res
}
