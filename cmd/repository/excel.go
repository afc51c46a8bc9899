package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// openWorkbook opens path, or starts a new workbook stamped with the current
// schema version when the file does not exist yet.
func openWorkbook(path string) (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("openWorkbook %s: %w", path, err)
	}
	f = excelize.NewFile()
	if err := StampWorkbookVersion(f, models.WorkbookVersion); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("openWorkbook %s: %w", path, err)
	}
	return f, true, nil
}

// openExistingWorkbook returns nil without error when path does not exist.
func openExistingWorkbook(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("openWorkbook %s: %w", path, err)
	}
	return f, nil
}

func saveWorkbook(f *excelize.File, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("saveWorkbook: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saveWorkbook %s: %w", path, err)
	}
	return nil
}

// ensureSheet creates sheet with its header row. A new workbook's blank
// default sheet is renamed rather than left behind.
func ensureSheet(f *excelize.File, sheet string, header []string) (bool, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return false, fmt.Errorf("ensureSheet %s: %w", sheet, err)
	}
	if idx != -1 {
		return false, nil
	}

	if list := f.GetSheetList(); len(list) == 1 && list[0] == defaultSheet && sheetIsBlank(f, defaultSheet) {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return false, fmt.Errorf("ensureSheet %s: %w", sheet, err)
		}
	} else if _, err := f.NewSheet(sheet); err != nil {
		return false, fmt.Errorf("ensureSheet %s: %w", sheet, err)
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return false, fmt.Errorf("ensureSheet %s: %w", sheet, err)
	}
	utils.PrintLog("Created sheet %s", sheet)
	return true, nil
}

func sheetIsBlank(f *excelize.File, sheet string) bool {
	rows, err := f.GetRows(sheet)
	return err == nil && len(rows) == 0
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ReadWorkbookVersion reads the schema version from the document properties.
// Workbooks written before versioning report 1.
func ReadWorkbookVersion(f *excelize.File) (int, error) {
	props, err := f.GetDocProps()
	if err != nil {
		return 0, fmt.Errorf("ReadWorkbookVersion: %w", err)
	}
	if props == nil || strings.TrimSpace(props.Version) == "" {
		return 1, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(props.Version))
	if err != nil || v < 1 {
		utils.PrintWarning("Unreadable workbook version %q, assuming 1", props.Version)
		return 1, nil
	}
	return v, nil
}

func StampWorkbookVersion(f *excelize.File, version int) error {
	props, err := f.GetDocProps()
	if err != nil {
		return fmt.Errorf("StampWorkbookVersion: %w", err)
	}
	if props == nil {
		props = &excelize.DocProperties{}
	}
	if props.Creator == "" {
		props.Creator = "timeclock"
	}
	props.Version = strconv.Itoa(version)
	if err := f.SetDocProps(props); err != nil {
		return fmt.Errorf("StampWorkbookVersion: %w", err)
	}
	return nil
}
