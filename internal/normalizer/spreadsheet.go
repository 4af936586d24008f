package normalizer

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// decodeSpreadsheet reads the first sheet of an OOXML workbook. The first
// non-empty row is the header; rows keep their sheet row numbers.
func decodeSpreadsheet(data []byte) ([]Row, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrMissingHeader
	}
	sheet := sheets[0]

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	headerAt := -1
	for i, record := range records {
		if !isBlank(record) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, nil, ErrMissingHeader
	}
	idx := headerIndex(records[headerAt])

	var rows []Row
	for i := headerAt + 1; i < len(records); i++ {
		if isBlank(records[i]) {
			continue
		}
		rows = append(rows, SpreadsheetRow{
			Sheet: sheet,
			Index: i + 1,
			Cells: rowValues(idx, records[i]),
		})
	}

	return rows, nil, nil
}
