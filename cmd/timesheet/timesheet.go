package timesheet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"timeclock/cmd/models"
	"timeclock/cmd/utils"

	"github.com/google/uuid"
)

const DATA_DIR = "./data/timesheets/"

var dayNames = []string{"Mon", "Tues", "Wed", "Thurs", "Fri", "Sat", "Sun"}

// Week is every employee's clock rows for one ISO week.
type Week struct {
	ID                 uuid.UUID       `json:"id"`
	StartDate          time.Time       `json:"startDate"`
	Employees          []*EmployeeWeek `json:"employees"`
	HoursWithBreaks    float64         `json:"hoursWithBreaks"`
	HoursWithoutBreaks float64         `json:"hoursWithoutBreaks"`
}

type EmployeeWeek struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Days               []*Day    `json:"days"`
	HoursWithBreaks    float64   `json:"hoursWithBreaks"`
	HoursWithoutBreaks float64   `json:"hoursWithoutBreaks"`
}

type Day struct {
	DayName            string                `json:"dayName"`
	Offset             int                   `json:"offset"`
	Date               time.Time             `json:"date"`
	Row                *models.AttendanceRow `json:"row,omitempty"`
	HoursWithBreaks    float64               `json:"hoursWithBreaks"`
	HoursWithoutBreaks float64               `json:"hoursWithoutBreaks"`
}

func newWeek(startDate time.Time) *Week {
	return &Week{
		ID:        uuid.New(),
		StartDate: utils.GetWeekStart(startDate),
	}
}

func newEmployeeWeek(name string, startDate time.Time) *EmployeeWeek {
	var days []*Day
	for i, dayName := range dayNames {
		days = append(days, &Day{
			DayName: dayName,
			Offset:  i,
			Date:    startDate.AddDate(0, 0, i),
		})
	}
	return &EmployeeWeek{
		ID:   models.EmployeeID(name),
		Name: name,
		Days: days,
	}
}

// BuildWeek places rows into the week starting on the Monday of startDate.
// Rows outside that week are ignored. Employees are sorted by name.
func BuildWeek(startDate time.Time, rows []models.AttendanceRow) *Week {
	week := newWeek(startDate)
	weekEnd := week.StartDate.AddDate(0, 0, len(dayNames))
	byName := map[string]*EmployeeWeek{}

	for i := range rows {
		row := rows[i]
		date := utils.DateOnly(row.Date)
		if date.Before(week.StartDate) || !date.Before(weekEnd) {
			continue
		}
		ew, ok := byName[row.Name]
		if !ok {
			ew = newEmployeeWeek(row.Name, week.StartDate)
			byName[row.Name] = ew
			week.Employees = append(week.Employees, ew)
		}
		offset := int(date.Sub(week.StartDate).Hours()+12) / 24
		day := ew.Days[offset]
		day.Row = &row
		if net, gross, ok := row.WorkedDuration(); ok {
			day.HoursWithBreaks = models.RoundHours(net.Hours())
			day.HoursWithoutBreaks = models.RoundHours(gross.Hours())
		}
	}

	for _, ew := range week.Employees {
		for _, day := range ew.Days {
			ew.HoursWithBreaks += day.HoursWithBreaks
			ew.HoursWithoutBreaks += day.HoursWithoutBreaks
		}
		ew.HoursWithBreaks = models.RoundHours(ew.HoursWithBreaks)
		ew.HoursWithoutBreaks = models.RoundHours(ew.HoursWithoutBreaks)
		week.HoursWithBreaks += ew.HoursWithBreaks
		week.HoursWithoutBreaks += ew.HoursWithoutBreaks
	}
	week.HoursWithBreaks = models.RoundHours(week.HoursWithBreaks)
	week.HoursWithoutBreaks = models.RoundHours(week.HoursWithoutBreaks)
	sort.Slice(week.Employees, func(i, j int) bool {
		return week.Employees[i].Name < week.Employees[j].Name
	})
	return week
}

func SaveWeek(dir string, w *Week) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveWeek: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("SaveWeek: %w", err)
	}
	utils.PrintLog("Saving timesheet week %s", utils.DayName(w.StartDate))
	if err := os.WriteFile(GetWeekFilename(dir, w.StartDate), data, 0o666); err != nil {
		return fmt.Errorf("SaveWeek: %w", err)
	}
	return nil
}

func GetWeekFilename(dir string, startDate time.Time) string {
	return filepath.Join(dir, utils.DayName(utils.GetWeekStart(startDate))+".json")
}

// LoadWeek reads a saved week, or returns an empty one when none has been
// saved.
func LoadWeek(dir string, startDate time.Time) (*Week, error) {
	filename := GetWeekFilename(dir, startDate)
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return newWeek(startDate), nil
		}
		return nil, fmt.Errorf("LoadWeek: %w", err)
	}
	var w Week
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("LoadWeek: %w", err)
	}
	utils.PrintLog("Loaded timesheet week %s", utils.DayName(w.StartDate))
	return &w, nil
}
