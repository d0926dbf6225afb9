// Package bulk turns an uploaded tabular file into an ordered batch of
// generation candidates and drives their per-row validation and dispatch.
// Parsing never dispatches anything; submission is a separate, explicit step.
package bulk

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"bargen/internal/validate"
)

// Parse failure categories. Each yields an error and no partial batch.
var (
	ErrEmptyFile         = errors.New("bulk: file contains no rows")
	ErrMissingDataColumn = errors.New("bulk: required column \"data\" not found")
)

// Row is one parsed line of an upload. Line is 1-based and counts the header.
// Invalid is set during validation; invalid rows stay in the batch so the
// caller can report partial success.
type Row struct {
	Line     int
	Data     string
	Filename string
	Invalid  *validate.Error
}

// Batch is the ordered result of parsing one upload. It is immutable once
// parsed: re-uploading produces a new batch, never an append. Order is
// preserved so bulk export filenames match input order.
type Batch struct {
	Rows []Row
}

// Valid counts rows that passed validation (or have not been validated yet).
func (b *Batch) Valid() int {
	n := 0
	for _, row := range b.Rows {
		if row.Invalid == nil {
			n++
		}
	}
	return n
}

// Validate runs every row through the request validator for the given
// symbology and format. Rows that fail are marked in place rather than
// dropped. It returns the number of valid rows.
func (b *Batch) Validate(symbology, format string, opts validate.Options) int {
	for i := range b.Rows {
		_, verr := validate.Validate(symbology, b.Rows[i].Data, format, opts)
		b.Rows[i].Invalid = verr
	}
	return b.Valid()
}

// Parse reads a delimited text or spreadsheet file into a batch. The format
// is chosen by filename extension, falling back to content sniffing for
// XLSX. The header row must contain a "data" column (case-insensitive);
// a "filename" column is optional and any other columns are ignored.
func Parse(r io.Reader, filename string) (*Batch, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bulk: read upload: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyFile
	}

	var records [][]string
	if isSpreadsheet(raw, filename) {
		records, err = readSheet(raw)
	} else {
		records, err = readDelimited(raw, filename)
	}
	if err != nil {
		return nil, err
	}
	return buildBatch(records)
}

func isSpreadsheet(raw []byte, filename string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return true
	}
	// XLSX files are zip archives.
	return bytes.HasPrefix(raw, []byte("PK\x03\x04"))
}

func readSheet(raw []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("bulk: open spreadsheet: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("bulk: read spreadsheet rows: %w", err)
	}
	return rows, nil
}

func readDelimited(raw []byte, filename string) ([][]string, error) {
	// Normalize UTF-16 and BOM-prefixed uploads before the CSV reader sees
	// them; spreadsheet exports on Windows commonly carry both.
	decoded, err := io.ReadAll(transform.NewReader(
		bytes.NewReader(raw),
		unicode.BOMOverride(unicode.UTF8.NewDecoder()),
	))
	if err != nil {
		return nil, fmt.Errorf("bulk: decode upload: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = detectDelimiter(decoded, filename)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = false

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("bulk: parse delimited file: %w", err)
	}
	return records, nil
}

// detectDelimiter picks the separator from the extension, otherwise from
// whichever of tab, semicolon, or comma appears first in the header line.
func detectDelimiter(raw []byte, filename string) rune {
	if strings.EqualFold(filepath.Ext(filename), ".tsv") {
		return '\t'
	}
	header := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		header = raw[:i]
	}
	if bytes.ContainsRune(header, '\t') {
		return '\t'
	}
	if bytes.ContainsRune(header, ';') && !bytes.ContainsRune(header, ',') {
		return ';'
	}
	return ','
}

func buildBatch(records [][]string) (*Batch, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	dataCol, filenameCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "data":
			if dataCol < 0 {
				dataCol = i
			}
		case "filename":
			if filenameCol < 0 {
				filenameCol = i
			}
		}
	}
	if dataCol < 0 {
		return nil, ErrMissingDataColumn
	}

	batch := &Batch{}
	for i, record := range records[1:] {
		row := Row{Line: i + 2}
		if dataCol < len(record) {
			row.Data = record[dataCol]
		}
		if filenameCol >= 0 && filenameCol < len(record) {
			row.Filename = strings.TrimSpace(record[filenameCol])
		}
		if row.Data == "" && row.Filename == "" && blankRecord(record) {
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	if len(batch.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return batch, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
