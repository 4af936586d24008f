// Package normalizer turns uploaded customer files into validated,
// deduplicated customer rows. It has no side effects.
package normalizer

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/foxzi/reviewflow/internal/models"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyFile           = errors.New("file is empty")
	ErrMissingHeader       = errors.New("header row not found")
)

// DefaultCustomerName is used when a row has no name cell
const DefaultCustomerName = "Customer"

// Kind identifies the decoder used for a file
type Kind string

const (
	KindDelimited   Kind = "delimited"
	KindSpreadsheet Kind = "spreadsheet"
)

// Result is the outcome of parsing one file
type Result struct {
	Kind             Kind                    `json:"kind"`
	Customers        []models.ParsedCustomer `json:"customers"`
	TotalRows        int                     `json:"total_rows"`
	ValidRows        int                     `json:"valid_rows"`
	InFileDuplicates int                     `json:"in_file_duplicates"`
	ParseErrors      []string                `json:"parse_errors,omitempty"`
}

// Row is a decoded data row. It is implemented by DelimitedRow and
// SpreadsheetRow only.
type Row interface {
	number() int
	values() map[string]string
}

// DelimitedRow is a data row read from CSV/TSV text
type DelimitedRow struct {
	Line   int
	Fields map[string]string
}

func (r DelimitedRow) number() int               { return r.Line }
func (r DelimitedRow) values() map[string]string { return r.Fields }

// SpreadsheetRow is a data row read from a workbook sheet
type SpreadsheetRow struct {
	Sheet string
	Index int
	Cells map[string]string
}

func (r SpreadsheetRow) number() int               { return r.Index }
func (r SpreadsheetRow) values() map[string]string { return r.Cells }

var delimitedExts = map[string]bool{".csv": true, ".tsv": true, ".txt": true}

var spreadsheetExts = map[string]bool{".xlsx": true, ".xlsm": true, ".xltx": true, ".xltm": true}

var delimitedMIMEs = map[string]bool{
	"text/csv":                  true,
	"application/csv":           true,
	"text/plain":                true,
	"text/tab-separated-values": true,
}

var spreadsheetMIMEs = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel.sheet.macroenabled.12":                    true,
	"application/vnd.ms-excel":                                          true,
}

// DetectKind picks a decoder from the file extension, falling back to the
// MIME hint. Legacy binary .xls workbooks are not supported.
func DetectKind(fileName, mimeHint string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case delimitedExts[ext]:
		return KindDelimited, nil
	case spreadsheetExts[ext]:
		return KindSpreadsheet, nil
	case ext == ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks must be saved as .xlsx or .csv", ErrUnsupportedFileType)
	}

	mt := strings.ToLower(mimeHint)
	if parsed, _, err := mime.ParseMediaType(mimeHint); err == nil {
		mt = strings.ToLower(parsed)
	}
	switch {
	case delimitedMIMEs[mt]:
		return KindDelimited, nil
	case spreadsheetMIMEs[mt]:
		return KindSpreadsheet, nil
	}

	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFileType, fileName, mimeHint)
}

// Parse decodes a customer file and returns validated, deduplicated rows.
// Rows without a valid email are dropped without being reported as errors.
func Parse(data []byte, fileName, mimeHint string) (*Result, error) {
	kind, err := DetectKind(fileName, mimeHint)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		rows      []Row
		rowErrors []string
	)
	switch kind {
	case KindDelimited:
		rows, rowErrors, err = decodeDelimited(data, fileName)
	case KindSpreadsheet:
		rows, rowErrors, err = decodeSpreadsheet(data)
	}
	if err != nil {
		return nil, err
	}

	result := normalize(rows)
	result.Kind = kind
	result.ParseErrors = rowErrors
	return result, nil
}

// normalize maps decoded rows to customers, validating and deduplicating
// emails case-insensitively. The first occurrence of an email wins.
func normalize(rows []Row) *Result {
	result := &Result{Customers: []models.ParsedCustomer{}}
	seen := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		result.TotalRows++

		customer, ok := toCustomer(row)
		if !ok {
			continue
		}

		if _, dup := seen[customer.Email]; dup {
			result.InFileDuplicates++
			continue
		}
		seen[customer.Email] = struct{}{}
		result.Customers = append(result.Customers, customer)
	}

	result.ValidRows = len(result.Customers)
	return result
}

func toCustomer(row Row) (models.ParsedCustomer, bool) {
	values := row.values()

	email := NormalizeEmail(resolve(values, FieldEmail))
	if !IsValidEmail(email) {
		return models.ParsedCustomer{}, false
	}

	name := resolve(values, FieldName)
	if name == "" {
		name = DefaultCustomerName
	}

	return models.ParsedCustomer{
		Name:      name,
		Email:     email,
		Phone:     resolve(values, FieldPhone),
		RowNumber: row.number(),
	}, true
}
