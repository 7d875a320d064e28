package source

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fatotools/wms-loader/internal/schema"
)

// SniffResult carries the per-file read parameters the sniffer settled on.
// Zero values mean "unknown": Delimiter 0 for workbooks, Sheet "" for
// delimited text or unopenable workbooks.
type SniffResult struct {
	HeaderRow int    // 0 or 1
	Delimiter rune   // delimited text only
	Sheet     string // workbooks only
}

// sniffSampleBytes bounds how much of a delimited file the sniffer reads.
const sniffSampleBytes = 64 * 1024

// Sniffer detects encoding-dependent header offsets, delimiters and target
// sheets. It is best-effort by contract: Sniff never returns an error, only
// defaults.
type Sniffer struct {
	signatures []string
	delimiters []rune
	log        *slog.Logger
}

// NewSniffer builds a sniffer from banner signature strings and delimiter
// candidates in probe order.
func NewSniffer(signatures, delimiters []string, log *slog.Logger) *Sniffer {
	s := &Sniffer{log: log}
	for _, sig := range signatures {
		norm := strings.ToLower(schema.NormalizeLabel(sig))
		if norm != "" {
			s.signatures = append(s.signatures, norm)
		}
	}
	for _, d := range delimiters {
		if d != "" {
			s.delimiters = append(s.delimiters, []rune(d)[0])
		}
	}
	if len(s.delimiters) == 0 {
		s.delimiters = []rune{';', ',', '\t'}
	}
	return s
}

// Sniff inspects path and returns the best-effort read parameters.
func (s *Sniffer) Sniff(path string) SniffResult {
	if isWorkbook(path) {
		return s.sniffWorkbook(path)
	}
	return s.sniffDelimited(path)
}

func (s *Sniffer) sniffDelimited(path string) SniffResult {
	res := SniffResult{Delimiter: s.delimiters[0]}

	f, err := os.Open(path)
	if err != nil {
		return res
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, sniffSampleBytes))
	if err != nil || len(raw) == 0 {
		return res
	}

	var text string
	for _, enc := range EncodingLadder {
		if decoded, err := decodeAs(raw, enc); err == nil {
			text = decoded
			break
		}
	}

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}

	if len(lines) > 0 && s.IsBanner(lines[0]) {
		res.HeaderRow = 1
	}

	if res.HeaderRow < len(lines) {
		res.Delimiter = s.probeDelimiter(lines[res.HeaderRow])
	}

	return res
}

// probeDelimiter attempts a one-row parse per candidate; the first candidate
// splitting the line into more than one field wins. Probe failures are
// signal, not errors, and the leading candidate is the fallback.
func (s *Sniffer) probeDelimiter(line string) rune {
	for _, cand := range s.delimiters {
		cr := csv.NewReader(strings.NewReader(line))
		cr.Comma = cand
		cr.LazyQuotes = true
		fields, err := cr.Read()
		if err != nil {
			continue
		}
		if len(fields) > 1 {
			return cand
		}
	}
	return s.delimiters[0]
}

func (s *Sniffer) sniffWorkbook(path string) SniffResult {
	f, err := excelize.OpenFile(path)
	if err != nil {
		s.log.Debug("workbook sniff failed", "file", filepath.Base(path), "error", err)
		return SniffResult{}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return SniffResult{}
	}

	res := SniffResult{Sheet: sheets[0]}
	if a1, err := f.GetCellValue(sheets[0], "A1"); err == nil && s.IsBanner(a1) {
		res.HeaderRow = 1
	}
	return res
}

// IsBanner reports whether a line or cell value matches one of the known
// export-tool banner signatures.
func (s *Sniffer) IsBanner(value string) bool {
	norm := strings.ToLower(schema.NormalizeLabel(value))
	if norm == "" {
		return false
	}
	for _, sig := range s.signatures {
		if strings.HasPrefix(norm, sig) {
			return true
		}
	}
	return false
}
