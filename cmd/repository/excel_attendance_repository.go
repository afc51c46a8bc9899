package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"github.com/xuri/excelize/v2"
)

// ExcelAttendanceRepository implements AttendanceRepository on a single
// workbook with one sheet per day. Every call opens, modifies and saves
// the file under mu.
type ExcelAttendanceRepository struct {
	mu   sync.Mutex
	path string
}

func NewExcelAttendanceRepository(path string) *ExcelAttendanceRepository {
	return &ExcelAttendanceRepository{path: path}
}

func (repo *ExcelAttendanceRepository) Path() string {
	return repo.path
}

func (repo *ExcelAttendanceRepository) EnsureDay(date time.Time) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, isNew, err := openWorkbook(repo.path)
	if err != nil {
		return fmt.Errorf("EnsureDay: %w", err)
	}
	defer f.Close()

	created, err := ensureSheet(f, utils.DayName(date), models.AttendanceHeader)
	if err != nil {
		return fmt.Errorf("EnsureDay: %w", err)
	}
	if !created && !isNew {
		return nil
	}
	return saveWorkbook(f, repo.path)
}

func (repo *ExcelAttendanceRepository) RecordAction(name string, action models.ClockAction, stamp time.Time) (models.AttendanceRow, error) {
	if !action.Valid() {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: invalid action %d", action)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, _, err := openWorkbook(repo.path)
	if err != nil {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: %w", err)
	}
	defer f.Close()

	sheet := utils.DayName(stamp)
	if _, err := ensureSheet(f, sheet, models.AttendanceHeader); err != nil {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: %w", err)
	}
	rowNum, cells, err := findOrCreateRow(f, sheet, name)
	if err != nil {
		return models.AttendanceRow{}, fmt.Errorf("RecordAction: %w", err)
	}

	row := rowFromCells(stamp, cells)
	row.Name = name
	if cellValue(cells, action.Column()-1) != "" {
		return row, alreadyRecorded(name, action)
	}

	if err := f.SetCellValue(sheet, cellName(action.Column(), rowNum), models.FormatStamp(stamp)); err != nil {
		return row, fmt.Errorf("RecordAction: %w", err)
	}
	if err := saveWorkbook(f, repo.path); err != nil {
		return row, fmt.Errorf("RecordAction: %w", err)
	}
	row.Set(action, stamp)
	utils.PrintLog("Recorded %s for %s at %s", action, name, models.FormatStamp(stamp))
	return row, nil
}

func (repo *ExcelAttendanceRepository) SaveSchedule(date time.Time, name string, shiftStart time.Time, breakStart, breakEnd *time.Time, shiftEnd time.Time) (models.AttendanceRow, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, _, err := openWorkbook(repo.path)
	if err != nil {
		return models.AttendanceRow{}, fmt.Errorf("SaveSchedule: %w", err)
	}
	defer f.Close()

	sheet := utils.DayName(date)
	if _, err := ensureSheet(f, sheet, models.AttendanceHeader); err != nil {
		return models.AttendanceRow{}, fmt.Errorf("SaveSchedule: %w", err)
	}
	rowNum, cells, err := findOrCreateRow(f, sheet, name)
	if err != nil {
		return models.AttendanceRow{}, fmt.Errorf("SaveSchedule: %w", err)
	}

	row := rowFromCells(date, cells)
	row.Name = name
	stamps := map[models.ClockAction]*time.Time{
		models.ClockIn:    &shiftStart,
		models.BreakStart: breakStart,
		models.BreakEnd:   breakEnd,
		models.ShiftEnd:   &shiftEnd,
	}
	for _, action := range models.GetAllClockActions() {
		t := stamps[action]
		if t == nil {
			continue
		}
		if err := f.SetCellValue(sheet, cellName(action.Column(), rowNum), models.FormatStamp(*t)); err != nil {
			return row, fmt.Errorf("SaveSchedule: %w", err)
		}
		row.Set(action, *t)
	}
	if err := saveWorkbook(f, repo.path); err != nil {
		return row, fmt.Errorf("SaveSchedule: %w", err)
	}
	utils.PrintLog("Saved schedule for %s on %s", name, sheet)
	return row, nil
}

func (repo *ExcelAttendanceRepository) GetDay(date time.Time) ([]models.AttendanceRow, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := openExistingWorkbook(repo.path)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()
	return readDay(f, utils.DateOnly(date))
}

// AllDays reads every day sheet from a single open of the workbook.
func (repo *ExcelAttendanceRepository) AllDays() ([]DayRows, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := openExistingWorkbook(repo.path)
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()

	var out []DayRows
	for _, day := range listDays(f) {
		rows, err := readDay(f, day)
		if err != nil {
			return nil, fmt.Errorf("AllDays: %w", err)
		}
		out = append(out, DayRows{Date: day, Rows: rows})
	}
	return out, nil
}

// SaveSummaries rebuilds both summary sheets from scratch.
func (repo *ExcelAttendanceRepository) SaveSummaries(days []models.DaySummary, weeks []models.WeekSummary) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, _, err := openWorkbook(repo.path)
	if err != nil {
		return fmt.Errorf("SaveSummaries: %w", err)
	}
	defer f.Close()

	dailyRows := make([][]interface{}, len(days))
	for i, d := range days {
		dailyRows[i] = []interface{}{utils.DayName(d.Date), d.HoursWithBreaks, d.HoursWithoutBreaks}
	}
	weeklyRows := make([][]interface{}, len(weeks))
	for i, w := range weeks {
		weeklyRows[i] = []interface{}{w.Label(), w.HoursWithBreaks, w.HoursWithoutBreaks}
	}

	if err := rewriteSheet(f, models.DailySummarySheet, models.DailySummaryHeader, dailyRows); err != nil {
		return fmt.Errorf("SaveSummaries: %w", err)
	}
	if err := rewriteSheet(f, models.WeeklySummarySheet, models.WeeklySummaryHeader, weeklyRows); err != nil {
		return fmt.Errorf("SaveSummaries: %w", err)
	}
	return saveWorkbook(f, repo.path)
}

func rewriteSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil {
		return err
	} else if idx != -1 {
		if err := f.DeleteSheet(sheet); err != nil {
			return err
		}
	}
	if _, err := ensureSheet(f, sheet, header); err != nil {
		return err
	}
	for i := range rows {
		if err := f.SetSheetRow(sheet, cellName(1, i+2), &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// findOrCreateRow scans column A below the header for name, appending a new
// row after the last used one when it is missing.
func findOrCreateRow(f *excelize.File, sheet, name string) (int, []string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, nil, err
	}
	for i := 1; i < len(rows); i++ {
		if cellValue(rows[i], 0) == name {
			return i + 1, rows[i], nil
		}
	}
	rowNum := len(rows) + 1
	if rowNum < 2 {
		rowNum = 2
	}
	if err := f.SetCellValue(sheet, cellName(1, rowNum), name); err != nil {
		return 0, nil, err
	}
	return rowNum, []string{name}, nil
}

func rowFromCells(date time.Time, cells []string) models.AttendanceRow {
	row := models.NewAttendanceRow(date, cellValue(cells, 0))
	for _, action := range models.GetAllClockActions() {
		v := cellValue(cells, action.Column()-1)
		if v == "" {
			continue
		}
		t, err := models.ParseStamp(v)
		if err != nil {
			utils.PrintWarning("Skipping %s for %s on %s: %v", action, row.Name, utils.DayName(date), err)
			continue
		}
		row.Set(action, t)
	}
	return row
}

func readDay(f *excelize.File, date time.Time) ([]models.AttendanceRow, error) {
	sheet := utils.DayName(date)
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	if idx == -1 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	var out []models.AttendanceRow
	for i := 1; i < len(rows); i++ {
		if cellValue(rows[i], 0) == "" {
			continue
		}
		out = append(out, rowFromCells(date, rows[i]))
	}
	return out, nil
}

func listDays(f *excelize.File) []time.Time {
	var days []time.Time
	for _, sheet := range f.GetSheetList() {
		if day, ok := utils.ParseDay(sheet); ok {
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
