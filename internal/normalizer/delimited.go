package normalizer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeDelimited reads CSV/TSV text. The first record is the header and
// data rows carry the file line they start on, so the header is row 1.
func decodeDelimited(data []byte, fileName string) ([]Row, []string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data, fileName)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrMissingHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := headerIndex(header)

	var (
		rows      []Row
		rowErrors []string
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, nil, fmt.Errorf("failed to read data: %w", err)
			}
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", perr.StartLine, perr.Err))
			continue
		}
		if isBlank(record) {
			continue
		}
		// line the record starts on; blank lines and quoted newlines count
		line, _ := reader.FieldPos(0)
		rows = append(rows, DelimitedRow{Line: line, Fields: rowValues(idx, record)})
	}

	return rows, rowErrors, nil
}

// sniffDelimiter picks tab for .tsv files, otherwise the most frequent of
// comma, semicolon and tab on the header line.
func sniffDelimiter(data []byte, fileName string) rune {
	if strings.EqualFold(filepath.Ext(fileName), ".tsv") {
		return '\t'
	}

	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}

	best, bestCount := ',', bytes.Count(first, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(first, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
