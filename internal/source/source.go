// Package source discovers and reads tabular export files. It hides the
// format zoo (delimited text in assorted encodings, workbook sheets behind
// banner rows) behind one all-text record-set reader.
package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound reports a missing source folder.
var ErrNotFound = errors.New("folder not found")

// ReadError reports a file none of the encoding/format attempts could read.
// It is caught per file; sibling files keep loading.
type ReadError struct {
	File string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.File, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Extensions lists the supported input file types.
var Extensions = []string{".csv", ".xlsx", ".xlsm", ".xls"}

// lockPrefix marks transient lock artifacts left by spreadsheet tools.
const lockPrefix = "~$"

// IsDataFile reports whether path names a loadable export: a supported
// extension and not a spreadsheet lock artifact.
func IsDataFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, lockPrefix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}
