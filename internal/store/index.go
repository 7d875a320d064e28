package store

import (
	"context"
	"fmt"
)

// IndexSpec names one secondary index on a published table.
type IndexSpec struct {
	Name   string
	Table  string
	Column string
}

// DefaultIndexes covers the lookup paths the reporting layer hits: task
// drill-down on the outbound table and load/reference date filters.
var DefaultIndexes = []IndexSpec{
	{Name: "ix_fato_saida_tarefa", Table: "fato_saida", Column: "Tarefa"},
	{Name: "ix_fato_saida_dt", Table: "fato_saida", Column: "dt_carga"},
	{Name: "ix_fato_saida_dtref", Table: "fato_saida", Column: "dt_ref"},
	{Name: "ix_fato_picking_dt", Table: "fato_picking", Column: "dt_carga"},
}

// EnsureIndexes creates the index set. Individual failures are skipped; a
// run that loaded only some tables must still publish.
func (s *Store) EnsureIndexes(ctx context.Context, specs []IndexSpec) {
	created := 0
	for _, spec := range specs {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q (%q)",
			spec.Name, spec.Table, spec.Column)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.log.Debug("skipping index", "index", spec.Name, "error", err)
			continue
		}
		created++
	}
	s.log.Info("indexes ensured", "created", created, "requested", len(specs))
}
