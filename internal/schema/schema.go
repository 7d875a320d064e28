// Package schema defines the fixed target schema every consolidated table
// conforms to, and the loose-key matching used to map raw header labels
// onto it.
package schema

import (
	"strings"
	"unicode"
)

// BusinessColumns is the fixed ordered set of domain columns. Every persisted
// table carries exactly these, in this order, regardless of which columns a
// given source file actually contained.
var BusinessColumns = []string{
	"Tarefa",
	"Tipo",
	"Onda",
	"Data inicial",
	"Data final",
	"Item",
	"Origem",
	"Destino",
	"Qtd.",
	"Pedido",
	"Lote",
	"Almoxarifado",
	"Carga",
	"Unitizador",
	"Data tarefa",
}

// TechnicalColumns describe file provenance, appended after the business set.
var TechnicalColumns = []string{
	ColSourceFile,
	ColSourceSheet,
	ColSourceMtime,
	ColLoadedAt,
}

// AuditColumns are appended per run when audit stamping is enabled.
var AuditColumns = []string{
	ColArquivoOrigem,
	ColDtCarga,
	ColTabelaOrigem,
}

const (
	ColSourceFile  = "_source_file"
	ColSourceSheet = "_source_sheet"
	ColSourceMtime = "_source_mtime"
	ColLoadedAt    = "_loaded_at"

	ColArquivoOrigem = "arquivo_origem"
	ColDtCarga       = "dt_carga"
	ColTabelaOrigem  = "tabela_origem"

	// ColRef is the derived reference timestamp column.
	ColRef = "dt_ref"

	// RequiredColumn must survive reconciliation or the file is rejected.
	RequiredColumn = "Tarefa"
)

// DateColumns are the date-bearing business columns normalized in the
// consolidated batch pass.
var DateColumns = []string{"Data inicial", "Data final", "Data tarefa"}

// CrossFillPair is the start/end pair subject to the one-sided copy rule.
var CrossFillPair = [2]string{"Data inicial", "Data final"}

// RefPriority lists the columns probed, in order, when deriving dt_ref.
// The order is a business decision and is deliberately asymmetric with the
// cross-fill rule; do not reorder.
var RefPriority = []string{"Data inicial", "Data final"}

// DedupColumns is the business-key subset used for duplicate removal. It
// excludes order/batch identifiers and all technical, audit and derived
// columns.
var DedupColumns = []string{
	"Tarefa",
	"Tipo",
	"Onda",
	"Data inicial",
	"Data final",
	"Item",
	"Origem",
	"Destino",
	"Qtd.",
	"Almoxarifado",
	"Carga",
	"Unitizador",
}

// looseIndex maps LooseKey(name) -> canonical name for the expected and
// technical sets.
var looseIndex = func() map[string]string {
	m := make(map[string]string, len(BusinessColumns)+len(TechnicalColumns))
	for _, c := range BusinessColumns {
		m[LooseKey(c)] = c
	}
	for _, c := range TechnicalColumns {
		m[LooseKey(c)] = c
	}
	return m
}()

// NormalizeLabel cleans a raw header label: strips byte-order-mark
// artifacts, trims, and collapses internal whitespace runs to single spaces.
func NormalizeLabel(label string) string {
	label = strings.TrimPrefix(label, "\uFEFF")
	label = strings.TrimPrefix(label, "ï»¿")
	return strings.Join(strings.Fields(label), " ")
}

// LooseKey reduces a label to a case/punctuation-insensitive comparison key:
// lower-cased with everything except letters and digits stripped.
func LooseKey(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Canonical resolves a normalized label to its canonical expected or
// technical column name. ok is false for labels outside the fixed schema.
func Canonical(label string) (string, bool) {
	name, ok := looseIndex[LooseKey(label)]
	return name, ok
}

// TargetColumns returns the full persisted column order: business, then
// technical, then (when enabled) audit columns, then dt_ref.
func TargetColumns(withAudit bool) []string {
	out := make([]string, 0, len(BusinessColumns)+len(TechnicalColumns)+len(AuditColumns)+1)
	out = append(out, BusinessColumns...)
	out = append(out, TechnicalColumns...)
	if withAudit {
		out = append(out, AuditColumns...)
	}
	out = append(out, ColRef)
	return out
}

// ReconciledColumns is the expected-then-technical order the reconciler
// produces, before audit stamping and dt_ref derivation.
func ReconciledColumns() []string {
	out := make([]string, 0, len(BusinessColumns)+len(TechnicalColumns))
	out = append(out, BusinessColumns...)
	out = append(out, TechnicalColumns...)
	return out
}
