package source

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fatotools/wms-loader/internal/schema"
)

// Reader materializes files as all-text record sets. Values are never
// coerced; empty cells stay empty text and cells absent from short rows
// become nulls.
type Reader struct {
	log *slog.Logger
}

func NewReader(log *slog.Logger) *Reader {
	return &Reader{log: log}
}

// Read loads path using the sniffed parameters. The error, when non-nil, is
// always a *ReadError.
func (r *Reader) Read(path string, sn SniffResult) (*schema.RecordSet, error) {
	if isWorkbook(path) {
		return r.readWorkbook(path, sn)
	}
	return r.readDelimited(path, sn)
}

// readDelimited walks the encoding ladder until one attempt parses. A file
// readable under an earlier encoding is never retried under a later one.
func (r *Reader) readDelimited(path string, sn SniffResult) (*schema.RecordSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{File: path, Err: err}
	}

	var lastErr error
	for _, enc := range EncodingLadder {
		text, err := decodeAs(raw, enc)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", enc, err)
			continue
		}
		rs, err := r.parseDelimited(path, text, sn)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", enc, err)
			continue
		}
		return rs, nil
	}
	return nil, &ReadError{File: path, Err: lastErr}
}

func (r *Reader) parseDelimited(path, text string, sn SniffResult) (*schema.RecordSet, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = sn.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	// Consume banner lines ahead of the header.
	for i := 0; i < sn.HeaderRow; i++ {
		if _, err := cr.Read(); errors.Is(err, io.EOF) {
			return schema.NewRecordSet(nil), nil
		}
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return schema.NewRecordSet(nil), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	rs := schema.NewRecordSet(header)
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		rs.Rows = append(rs.Rows, padRow(rec, len(header)))
	}

	if skipped > 0 {
		r.log.Warn("skipped malformed lines",
			"file", filepath.Base(path),
			"count", skipped,
		)
	}
	return rs, nil
}

// readWorkbook reads the detected sheet (or the workbook's first) as text.
// Legacy binary formats the workbook library cannot open surface here as a
// read failure and fall into the per-file isolation path.
func (r *Reader) readWorkbook(path string, sn SniffResult) (*schema.RecordSet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ReadError{File: path, Err: err}
	}
	defer f.Close()

	sheet := sn.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &ReadError{File: path, Err: fmt.Errorf("workbook has no sheets")}
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ReadError{File: path, Err: fmt.Errorf("read sheet %s: %w", sheet, err)}
	}

	if sn.HeaderRow >= len(rows) {
		return schema.NewRecordSet(nil), nil
	}
	rows = rows[sn.HeaderRow:]

	header := rows[0]
	rs := schema.NewRecordSet(header)
	for _, rec := range rows[1:] {
		rs.Rows = append(rs.Rows, padRow(rec, len(header)))
	}
	return rs, nil
}

// padRow aligns a raw row to the header width: short rows pad with nulls,
// long rows truncate.
func padRow(rec []string, width int) []sql.NullString {
	row := make([]sql.NullString, width)
	for i := 0; i < width; i++ {
		if i < len(rec) {
			row[i] = schema.Text(rec[i])
		} else {
			row[i] = schema.Null()
		}
	}
	return row
}
