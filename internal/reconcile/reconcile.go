// Package reconcile maps the headers found in the wild onto the fixed
// warehouse schema.
package reconcile

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatotools/wms-loader/internal/schema"
)

// SchemaError reports a file whose surviving columns are missing the
// required task identifier. The file cannot be attributed to warehouse
// activity and must not reach the staging database.
type SchemaError struct {
	File    string
	Columns []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: required column %q not found (got: %s)",
		e.File, schema.RequiredColumn, strings.Join(e.Columns, ", "))
}

// Reconciler normalizes, filters and reorders raw record sets into the
// expected column layout.
type Reconciler struct {
	classifiers []Classifier
	log         *slog.Logger
}

// New builds a Reconciler around the given classifier chain.
func New(classifiers []Classifier, log *slog.Logger) *Reconciler {
	return &Reconciler{classifiers: classifiers, log: log}
}

type match struct {
	src  int
	name string
}

// Reconcile rewrites rs into the fixed schema:
//
//  1. Normalize every header label (BOM, surrounding and inner whitespace).
//  2. Drop labels flagged by the classifier chain.
//  3. Remap source-file aliases onto the technical source column.
//  4. Match the survivors against the expected schema, first occurrence wins.
//  5. Verify the required task column survived.
//  6. Pad absent expected columns with nulls and reorder.
//  7. Drop rows that are blank across every surviving column.
//
// The operation is idempotent: feeding the result back in returns it
// unchanged.
func (r *Reconciler) Reconcile(file string, rs *schema.RecordSet) (*schema.RecordSet, error) {
	var (
		kept    []match
		keptSet = make(map[string]struct{}, len(rs.Columns))
		dropped int
	)
	for i, raw := range rs.Columns {
		label := schema.NormalizeLabel(raw)
		if rule, junk := r.classify(label); junk {
			dropped++
			r.log.Debug("dropping junk column", "file", file, "label", label, "rule", rule)
			continue
		}
		canonical, ok := r.resolve(label)
		if !ok {
			dropped++
			r.log.Debug("dropping unmatched column", "file", file, "label", label)
			continue
		}
		if _, dup := keptSet[canonical]; dup {
			dropped++
			r.log.Debug("dropping duplicate column", "file", file, "label", label, "kept_as", canonical)
			continue
		}
		keptSet[canonical] = struct{}{}
		kept = append(kept, match{src: i, name: canonical})
	}

	if _, ok := keptSet[schema.RequiredColumn]; !ok {
		names := make([]string, 0, len(kept))
		for _, m := range kept {
			names = append(names, m.name)
		}
		return nil, &SchemaError{File: file, Columns: names}
	}

	srcFor := make(map[string]int, len(kept))
	for _, m := range kept {
		srcFor[m.name] = m.src
	}

	out := schema.NewRecordSet(schema.ReconciledColumns())
	blank := 0
	for _, row := range rs.Rows {
		if rowBlank(row, kept) {
			blank++
			continue
		}
		target := make([]sql.NullString, len(out.Columns))
		for j, name := range out.Columns {
			if src, ok := srcFor[name]; ok && src < len(row) {
				target[j] = row[src]
			} else {
				target[j] = schema.Null()
			}
		}
		out.Rows = append(out.Rows, target)
	}

	if dropped > 0 || blank > 0 {
		r.log.Debug("reconciled",
			"file", file,
			"columns_kept", len(kept),
			"columns_dropped", dropped,
			"rows_dropped", blank)
	}
	return out, nil
}

func (r *Reconciler) classify(label string) (string, bool) {
	for _, c := range r.classifiers {
		if c.Match(label) {
			return c.Name, true
		}
	}
	return "", false
}

// resolve maps a normalized label to its canonical column name. Aliases
// naming the originating file are folded onto the technical source column
// before the loose lookup.
func (r *Reconciler) resolve(label string) (string, bool) {
	if isSourceFileAlias(label) {
		return schema.ColSourceFile, true
	}
	return schema.Canonical(label)
}

// rowBlank reports whether every surviving cell is null or whitespace.
func rowBlank(row []sql.NullString, kept []match) bool {
	for _, m := range kept {
		if m.src >= len(row) {
			continue
		}
		cell := row[m.src]
		if cell.Valid && strings.TrimSpace(cell.String) != "" {
			return false
		}
	}
	return true
}

var (
	fileTokens   = []string{"arquivo", "ficheiro", "file"}
	sourceTokens = []string{"origem", "fonte", "source"}
)

// isSourceFileAlias reports whether the label names the file the row came
// from, e.g. "Arquivo de Origem" or "source file".
func isSourceFileAlias(label string) bool {
	key := schema.LooseKey(label)
	return containsAny(key, fileTokens) && containsAny(key, sourceTokens)
}

func containsAny(key string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(key, tok) {
			return true
		}
	}
	return false
}
