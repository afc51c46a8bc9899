package repository

import (
	"errors"
	"sort"
	"time"

	"timeclock/cmd/face"
	"timeclock/cmd/models"
)

var (
	ErrAlreadyRecorded = errors.New("clock action already recorded")
	ErrEmployeeExists  = errors.New("employee already exists")
	ErrUnknownEmployee = errors.New("employee not registered")
)

// DuplicateActionError reads the way the kiosk has always reported a
// repeated punch. It matches ErrAlreadyRecorded with errors.Is.
type DuplicateActionError struct {
	Name   string
	Action models.ClockAction
}

func (e *DuplicateActionError) Error() string {
	return e.Action.DuplicateMessage(e.Name)
}

func (e *DuplicateActionError) Is(target error) bool {
	return target == ErrAlreadyRecorded
}

func alreadyRecorded(name string, action models.ClockAction) error {
	return &DuplicateActionError{Name: name, Action: action}
}

// EmployeeRepository defines persistence operations for registered staff.
type EmployeeRepository interface {
	LoadAllEmployees() ([]*models.Employee, error)
	GetEmployeeByName(name string) (*models.Employee, error)
	SaveEmployee(e models.Employee) error
	LoadFaceGallery() ([]face.Reference, error)
}

// AttendanceRepository defines persistence operations for day partitions.
type AttendanceRepository interface {
	EnsureDay(date time.Time) error
	RecordAction(name string, action models.ClockAction, stamp time.Time) (models.AttendanceRow, error)
	SaveSchedule(date time.Time, name string, shiftStart time.Time, breakStart, breakEnd *time.Time, shiftEnd time.Time) (models.AttendanceRow, error)
	GetDay(date time.Time) ([]models.AttendanceRow, error)
	AllDays() ([]DayRows, error)
	SaveSummaries(days []models.DaySummary, weeks []models.WeekSummary) error
}

// DayRows is one day partition with its rows.
type DayRows struct {
	Date time.Time
	Rows []models.AttendanceRow
}

// BulkEmployeeSaver is implemented by employee stores that can write many
// employees in one round trip.
type BulkEmployeeSaver interface {
	SaveEmployees(employees []*models.Employee) error
}

type Repositories struct {
	Employees  EmployeeRepository
	Attendance AttendanceRepository
	Config     ConfigRepository
}

func galleryFromEmployees(all []*models.Employee) []face.Reference {
	var gallery []face.Reference
	for _, e := range all {
		if !e.HasFace() {
			continue
		}
		gallery = append(gallery, face.Reference{Name: e.FullName(), Encoding: e.FaceEncoding})
	}
	return gallery
}

// SortAttendanceRows orders rows by shift start, unstarted rows last, then
// by name. The input is left untouched.
func SortAttendanceRows(rows []models.AttendanceRow) []models.AttendanceRow {
	copiedRows := make([]models.AttendanceRow, len(rows))
	copy(copiedRows, rows)
	sort.SliceStable(copiedRows, func(i, j int) bool {
		row1 := copiedRows[i]
		row2 := copiedRows[j]
		switch {
		case row1.ShiftStart == nil && row2.ShiftStart == nil:
			return row1.Name < row2.Name
		case row1.ShiftStart == nil:
			return false
		case row2.ShiftStart == nil:
			return true
		case row1.ShiftStart.Equal(*row2.ShiftStart):
			return row1.Name < row2.Name
		}
		return row1.ShiftStart.Before(*row2.ShiftStart)
	})
	return copiedRows
}
