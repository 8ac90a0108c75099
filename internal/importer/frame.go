// Package importer loads a spreadsheet export into the warehouse: it reads
// Excel or CSV, cleans and types the columns, creates the table, inserts the
// rows in batches and can publish a parquet snapshot for the embedded engine.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrNoHeader = errors.New("source has no header row")

// Frame is raw tabular input: a header and string cells, padded to the
// header width.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// ReadExcelFile opens a workbook from disk. An empty sheet reads the first
// sheet in the workbook.
func ReadExcelFile(path, sheet string) (Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadExcel(f, sheet)
}

func ReadExcel(r io.Reader, sheet string) (Frame, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return Frame{}, fmt.Errorf("read workbook: %w", err)
	}
	defer func() { _ = book.Close() }()

	if strings.TrimSpace(sheet) == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return Frame{}, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return Frame{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return newFrame(rows)
}

func ReadCSV(r io.Reader) (Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return newFrame(records)
}

func newFrame(records [][]string) (Frame, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return Frame{}, ErrNoHeader
	}
	frame := Frame{Columns: append([]string(nil), records[0]...)}
	width := len(frame.Columns)
	frame.Rows = make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]string, width)
		copy(row, record)
		frame.Rows = append(frame.Rows, row)
	}
	return frame, nil
}
