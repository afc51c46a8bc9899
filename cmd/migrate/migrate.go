package migrate

import (
	"errors"
	"fmt"
	"io/fs"

	"timeclock/cmd/models"
	"timeclock/cmd/repository"
	"timeclock/cmd/utils"

	"github.com/xuri/excelize/v2"
)

// step upgrades a workbook from version-1 to version and reports how many
// cells it changed.
type step func(f *excelize.File) (int, error)

var employeeSteps = map[int]step{
	2: addEmployeeFaceColumns,
}

var attendanceSteps = map[int]step{
	2: canonicaliseStamps,
}

// Workbooks brings the employee and attendance workbooks up to the current
// version. Missing files are skipped; they are created in the current
// layout on first write.
func Workbooks(attendancePath, employeePath string) error {
	if err := migrateWorkbook(employeePath, employeeSteps); err != nil {
		return err
	}
	return migrateWorkbook(attendancePath, attendanceSteps)
}

// Database records the current version in the config store. Documents
// have always held typed timestamps so there is nothing to rewrite.
func Database(repo repository.ConfigRepository) error {
	version, err := repo.LoadVersion()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if version.Version >= models.WorkbookVersion {
		return nil
	}
	utils.PrintLog("Migrating database from version %d to %d", version.Version, models.WorkbookVersion)
	version.Version = models.WorkbookVersion
	return repo.SaveVersion(*version)
}

func migrateWorkbook(path string, steps map[int]step) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	defer f.Close()

	version, err := repository.ReadWorkbookVersion(f)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	if version >= models.WorkbookVersion {
		return nil
	}

	for version < models.WorkbookVersion {
		next := version + 1
		if apply, ok := steps[next]; ok {
			changed, err := apply(f)
			if err != nil {
				return fmt.Errorf("migrate %s to version %d: %w", path, next, err)
			}
			utils.PrintLog("Migrated %s to version %d, %d cells changed", path, next, changed)
		}
		version = next
	}

	if err := repository.StampWorkbookVersion(f, version); err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	return nil
}

// addEmployeeFaceColumns completes the header of a names-only employee
// sheet, renaming the first sheet when it is the old unnamed roster.
func addEmployeeFaceColumns(f *excelize.File) (int, error) {
	idx, err := f.GetSheetIndex(models.EmployeeSheet)
	if err != nil {
		return 0, err
	}
	if idx == -1 {
		first := f.GetSheetName(0)
		a1, err := f.GetCellValue(first, "A1")
		if err != nil || a1 != models.EmployeeHeader[0] {
			return 0, fmt.Errorf("no %s sheet", models.EmployeeSheet)
		}
		if err := f.SetSheetName(first, models.EmployeeSheet); err != nil {
			return 0, err
		}
	}

	rows, err := f.GetRows(models.EmployeeSheet)
	if err != nil {
		return 0, err
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	changed := 0
	for i, name := range models.EmployeeHeader {
		if i < len(header) && header[i] == name {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(models.EmployeeSheet, cell, name); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// canonicaliseStamps rewrites every readable timestamp in the day sheets in
// the canonical layout. Cells that do not parse are left alone.
func canonicaliseStamps(f *excelize.File) (int, error) {
	changed := 0
	for _, sheet := range f.GetSheetList() {
		if _, ok := utils.ParseDay(sheet); !ok {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return changed, err
		}
		for r := 1; r < len(rows); r++ {
			for _, action := range models.GetAllClockActions() {
				col := action.Column() - 1
				if col >= len(rows[r]) || rows[r][col] == "" {
					continue
				}
				t, err := models.ParseStamp(rows[r][col])
				if err != nil {
					utils.PrintWarning("Leaving unreadable stamp %q in %s", rows[r][col], sheet)
					continue
				}
				canonical := models.FormatStamp(t)
				if canonical == rows[r][col] {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(action.Column(), r+1)
				if err := f.SetCellValue(sheet, cell, canonical); err != nil {
					return changed, err
				}
				changed++
			}
		}
	}
	return changed, nil
}
