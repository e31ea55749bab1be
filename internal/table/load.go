package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Load reads a CSV, TSV or XLSX file chosen by extension. For workbooks the
// first sheet is used.
func Load(path string, opt Options) (*Table, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return LoadXLSX(path, "", 1, opt)
	}
	return LoadCSV(path, opt)
}

// LoadCSV reads a delimited text file.
func LoadCSV(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(path)
	}
	return Read(f, filepath.Base(path), opt)
}

// Read parses delimited text from r. name labels the table.
func Read(r io.Reader, name string, opt Options) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", name)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		if blank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return FromRecords(name, header, records, opt)
}

// LoadXLSX reads one worksheet. sheetName wins over the 1-based sheetIndex.
func LoadXLSX(path, sheetName string, sheetIndex int, opt Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := sheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", filepath.Base(path))
		}
		if sheetIndex < 1 || sheetIndex > len(sheets) {
			return nil, fmt.Errorf("sheet index %d out of range (1-%d)", sheetIndex, len(sheets))
		}
		sheet = sheets[sheetIndex-1]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	var records [][]string
	for _, r := range rows[1:] {
		if blank(r) {
			continue
		}
		records = append(records, r)
	}
	return FromRecords(fmt.Sprintf("%s (sheet: %s)", filepath.Base(path), sheet), rows[0], records, opt)
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
