package repository

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"timeclock/cmd/models"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const maxRosterRows = 100000

var ErrEmptyRoster = errors.New("roster is empty")

// RosterName is one person read from an imported roster.
type RosterName struct {
	FirstName string
	LastName  string
}

func (n RosterName) FullName() string {
	return strings.TrimSpace(n.FirstName + " " + n.LastName)
}

// ReadRoster reads names from the first sheet of a .xls or .xlsx roster.
func ReadRoster(reader io.Reader, filename string) ([]RosterName, error) {
	rows, err := readRowsFromSpreadsheet(reader, filename)
	if err != nil {
		return nil, fmt.Errorf("ReadRoster %s: %w", filename, err)
	}
	names := parseRosterRows(rows)
	if len(names) == 0 {
		return nil, fmt.Errorf("ReadRoster %s: %w", filename, ErrEmptyRoster)
	}
	return names, nil
}

func readRowsFromSpreadsheet(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		sheet := workbook.GetSheet(0)
		if sheet == nil {
			return nil, fmt.Errorf("no worksheet found")
		}
		return sheetRows(xlsSheet{sheet}, maxRosterRows), nil
	case ".xlsx", ".xlsm":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		// An employee workbook exported from this tool keeps its names on
		// EmployeeData rather than the first sheet.
		if idx, err := file.GetSheetIndex(models.EmployeeSheet); err == nil && idx != -1 {
			sheetName = models.EmployeeSheet
		}
		return file.GetRows(sheetName)
	default:
		return nil, fmt.Errorf("unsupported roster format %q", filepath.Ext(filename))
	}
}

// rowSource is a worksheet read one row at a time.
type rowSource interface {
	// LastRow is the index of the last stored row.
	LastRow() int
	// Cells returns the row's values, or false when the row is not stored.
	Cells(i int) ([]string, bool)
}

type xlsSheet struct {
	sheet *xls.WorkSheet
}

func (s xlsSheet) LastRow() int {
	return int(s.sheet.MaxRow)
}

func (s xlsSheet) Cells(i int) (cells []string, ok bool) {
	// Row dereferences a nil entry for rows the file never stored.
	defer func() {
		if recover() != nil {
			cells, ok = nil, false
		}
	}()
	row := s.sheet.Row(i)
	if row == nil {
		return nil, false
	}
	for col := 0; col <= row.LastCol(); col++ {
		cells = append(cells, strings.TrimSpace(row.Col(col)))
	}
	return cells, true
}

// sheetRows collects at most limit stored rows of a single sheet, skipping
// rows the file left out.
func sheetRows(src rowSource, limit int) [][]string {
	var rows [][]string
	for i := 0; i <= src.LastRow() && len(rows) < limit; i++ {
		cells, ok := src.Cells(i)
		if !ok {
			continue
		}
		rows = append(rows, cells)
	}
	return rows
}

func isRosterHeader(row []string) bool {
	switch strings.ToLower(cellValue(row, 0)) {
	case "first name", "firstname", "name", "full name", "employee name":
		return true
	}
	return false
}

// parseRosterRows accepts either First | Last columns or a single name
// column, where "Last, First" is also understood.
func parseRosterRows(rows [][]string) []RosterName {
	var names []RosterName
	seen := map[string]bool{}
	for i, row := range rows {
		if i == 0 && isRosterHeader(row) {
			continue
		}
		first := cellValue(row, 0)
		last := cellValue(row, 1)
		if first == "" {
			continue
		}
		if last == "" {
			if parts := strings.SplitN(first, ",", 2); len(parts) == 2 {
				first, last = strings.TrimSpace(parts[1]), strings.TrimSpace(parts[0])
			} else {
				first, last = models.SplitFullName(first)
			}
		}
		name := RosterName{FirstName: first, LastName: last}
		if seen[name.FullName()] {
			continue
		}
		seen[name.FullName()] = true
		names = append(names, name)
	}
	return names
}
