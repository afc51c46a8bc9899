// Package attendance records clock events for registered employees, by
// name or by face, and keeps the hours summaries current.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"timeclock/cmd/face"
	"timeclock/cmd/models"
	"timeclock/cmd/repository"
	"timeclock/cmd/timesheet"
	"timeclock/cmd/utils"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNoMatch            = errors.New("no matching employee found")
	ErrNoRegisteredFaces  = errors.New("no registered faces")
	ErrEncoderUnavailable = errors.New("face recognition is not configured")
	ErrShiftComplete      = errors.New("shift already complete for today")
	ErrNoTimesheetDir     = errors.New("no timesheet directory configured")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

type Service struct {
	Employees    repository.EmployeeRepository
	Attendance   repository.AttendanceRepository
	Encoder      face.Encoder
	Matcher      *face.Matcher
	ImageDir     string
	TimesheetDir string
	Now          func() time.Time
}

// NewService wires a service. encoder may be nil, which disables the face
// operations.
func NewService(employees repository.EmployeeRepository, attendance repository.AttendanceRepository, encoder face.Encoder, tolerance float64) *Service {
	return &Service{
		Employees:  employees,
		Attendance: attendance,
		Encoder:    encoder,
		Matcher:    face.NewMatcher(tolerance),
		Now:        time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// OpenDay makes sure today's partition exists.
func (s *Service) OpenDay() error {
	return s.Attendance.EnsureDay(s.now())
}

func (s *Service) ListEmployees() ([]*models.Employee, error) {
	return s.Employees.LoadAllEmployees()
}

func (s *Service) lookup(name string) (*models.Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("please select an employee")
	}
	e, err := s.Employees.GetEmployeeByName(name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownEmployee, name)
	}
	return e, nil
}

func (s *Service) RegisterEmployee(fullName string) (*models.Employee, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, invalid("please enter a name")
	}
	e := models.NewEmployee(models.SplitFullName(fullName))
	existing, err := s.Employees.GetEmployeeByName(e.FullName())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrEmployeeExists, e.FullName())
	}
	e.CreatedAt = s.now()
	if err := s.Employees.SaveEmployee(e); err != nil {
		return nil, err
	}
	utils.PrintLog("Registered employee %s", e.FullName())
	return &e, nil
}

// RegisterFace stores the photo and the encoding of its first face. An
// employee with the same name is updated rather than duplicated.
func (s *Service) RegisterFace(ctx context.Context, firstName, lastName string, image []byte) (*models.Employee, error) {
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, invalid("please enter both first and last name")
	}
	if len(image) == 0 {
		return nil, invalid("no image provided")
	}
	if s.Encoder == nil {
		return nil, ErrEncoderUnavailable
	}

	encodings, err := s.Encoder.Encode(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(encodings) == 0 {
		return nil, face.ErrNoFace
	}

	e := models.NewEmployee(firstName, lastName)
	e.CreatedAt = s.now()
	existing, err := s.Employees.GetEmployeeByName(e.FullName())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		e = *existing
	}

	photo, err := face.NormalizeJPEG(image, 0)
	if err != nil {
		return nil, invalid(err.Error())
	}
	imagePath := filepath.Join(s.ImageDir, fmt.Sprintf("%s_%s_%s.jpg", fileNamePart(firstName), fileNamePart(lastName), s.now().Format("20060102150405")))
	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return nil, fmt.Errorf("RegisterFace: %w", err)
	}
	if err := os.WriteFile(imagePath, photo, 0o644); err != nil {
		return nil, fmt.Errorf("RegisterFace: %w", err)
	}

	e.ImagePath = imagePath
	e.FaceEncoding = encodings[0]
	if err := s.Employees.SaveEmployee(e); err != nil {
		return nil, err
	}
	utils.PrintLog("Registered face for %s", e.FullName())
	return &e, nil
}

// fileNamePart keeps letters, digits and dashes so a name cannot steer the
// photo outside ImageDir.
func fileNamePart(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// RecordAction stamps the current time in the action's column of the
// employee's row for today.
func (s *Service) RecordAction(name string, action models.ClockAction) (models.AttendanceRow, error) {
	if !action.Valid() {
		return models.AttendanceRow{}, invalid(fmt.Sprintf("unknown clock action %d", action))
	}
	e, err := s.lookup(name)
	if err != nil {
		return models.AttendanceRow{}, err
	}
	return s.recordAt(e.FullName(), action, s.now())
}

func (s *Service) recordAt(name string, action models.ClockAction, now time.Time) (models.AttendanceRow, error) {
	row, err := s.Attendance.RecordAction(name, action, now)
	if err != nil {
		return row, err
	}
	s.refreshAfterWrite()
	return row, nil
}

// ClockNext records the first action still missing from today's row. The
// row is read and written at the same instant so a punch at midnight
// cannot straddle two days.
func (s *Service) ClockNext(name string) (models.ClockAction, models.AttendanceRow, error) {
	e, err := s.lookup(name)
	if err != nil {
		return models.ClockIn, models.AttendanceRow{}, err
	}
	now := s.now()
	rows, err := s.Attendance.GetDay(now)
	if err != nil {
		return models.ClockIn, models.AttendanceRow{}, err
	}
	current := models.NewAttendanceRow(now, e.FullName())
	for _, row := range rows {
		if row.Name == e.FullName() {
			current = row
			break
		}
	}
	next, ok := current.NextAction()
	if !ok {
		return models.ShiftEnd, current, fmt.Errorf("%w: %s", ErrShiftComplete, e.FullName())
	}
	row, err := s.recordAt(e.FullName(), next, now)
	return next, row, err
}

type Identification struct {
	Name     string               `json:"name"`
	Distance float64              `json:"distance"`
	Action   models.ClockAction   `json:"action"`
	Row      models.AttendanceRow `json:"row"`
}

// IdentifyAndRecord matches the faces in image against the registered
// gallery and records action for the first one that matches.
func (s *Service) IdentifyAndRecord(ctx context.Context, image []byte, action models.ClockAction) (Identification, error) {
	if len(image) == 0 {
		return Identification{}, invalid("no image provided")
	}
	gallery, err := s.Employees.LoadFaceGallery()
	if err != nil {
		return Identification{}, err
	}
	if len(gallery) == 0 {
		return Identification{}, ErrNoRegisteredFaces
	}
	if s.Encoder == nil {
		return Identification{}, ErrEncoderUnavailable
	}

	encodings, err := s.Encoder.Encode(ctx, image)
	if err != nil {
		return Identification{}, err
	}
	match, ok := s.Matcher.Identify(encodings, gallery)
	if !ok {
		utils.PrintDebug("No face within tolerance %v", s.Matcher.Tolerance)
		return Identification{}, ErrNoMatch
	}
	utils.PrintLog("Identified %s at distance %.3f", match.Name, match.Distance)

	id := Identification{Name: match.Name, Distance: match.Distance, Action: action}
	id.Row, err = s.RecordAction(match.Name, action)
	return id, err
}

// PreviewSchedule checks the employee and the times of a hand-entered
// shift without recording anything. The returned schedule carries the
// registered spelling of the name.
func (s *Service) PreviewSchedule(sched models.ManualSchedule) (models.ManualSchedule, models.ScheduleResult, error) {
	e, err := s.lookup(sched.Name)
	if err != nil {
		return sched, models.ScheduleResult{}, err
	}
	sched.Name = e.FullName()
	res, err := sched.Compute()
	if err != nil {
		return sched, res, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return sched, res, nil
}

// SubmitSchedule writes a hand-entered shift for today and returns the
// computed minutes.
func (s *Service) SubmitSchedule(sched models.ManualSchedule) (models.ScheduleResult, models.AttendanceRow, error) {
	sched, res, err := s.PreviewSchedule(sched)
	if err != nil {
		return res, models.AttendanceRow{}, err
	}

	today := s.now()
	planned := sched.Row(today, res)
	row, err := s.Attendance.SaveSchedule(today, sched.Name, *planned.ShiftStart, planned.BreakStart, planned.BreakEnd, *planned.ShiftEnd)
	if err != nil {
		return res, row, err
	}
	utils.PrintLog("Scheduled %s for %d minutes", sched.Name, res.TotalMinutes)
	s.refreshAfterWrite()
	return res, row, nil
}

// Summaries computes daily and weekly hours from every day partition.
func (s *Service) Summaries() (models.SummaryReport, error) {
	days, err := s.Attendance.AllDays()
	if err != nil {
		return models.SummaryReport{}, err
	}
	var report models.SummaryReport
	for _, day := range days {
		report.Daily = append(report.Daily, models.SummariseDay(day.Date, day.Rows))
	}
	report.Weekly = models.SummariseWeeks(report.Daily)
	return report, nil
}

func (s *Service) RefreshSummaries() (models.SummaryReport, error) {
	report, err := s.Summaries()
	if err != nil {
		return report, err
	}
	if err := s.Attendance.SaveSummaries(report.Daily, report.Weekly); err != nil {
		return report, err
	}
	return report, nil
}

// The clock event is already stored, so a failed refresh is only logged.
func (s *Service) refreshAfterWrite() {
	if _, err := s.RefreshSummaries(); err != nil {
		utils.PrintError(err, "Failed to refresh summaries")
	}
}

// Timesheet builds the week containing weekStart and saves a copy when a
// timesheet directory is configured.
func (s *Service) Timesheet(weekStart time.Time) (*timesheet.Week, error) {
	start := utils.GetWeekStart(weekStart)
	var rows []models.AttendanceRow
	for i := 0; i < 7; i++ {
		dayRows, err := s.Attendance.GetDay(start.AddDate(0, 0, i))
		if err != nil {
			return nil, err
		}
		rows = append(rows, dayRows...)
	}
	week := timesheet.BuildWeek(start, rows)
	if s.TimesheetDir != "" {
		if err := timesheet.SaveWeek(s.TimesheetDir, week); err != nil {
			return week, err
		}
	}
	return week, nil
}

// SavedTimesheet returns the copy of a week written by an earlier
// Timesheet call, or an empty week when none was saved.
func (s *Service) SavedTimesheet(weekStart time.Time) (*timesheet.Week, error) {
	if s.TimesheetDir == "" {
		return nil, ErrNoTimesheetDir
	}
	return timesheet.LoadWeek(s.TimesheetDir, weekStart)
}

type ImportResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

// ImportEmployees registers every name on a roster that is not already
// registered. Stores that support it receive the new employees as one
// batch.
func (s *Service) ImportEmployees(reader io.Reader, filename string) (ImportResult, error) {
	var result ImportResult
	names, err := repository.ReadRoster(reader, filename)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	all, err := s.Employees.LoadAllEmployees()
	if err != nil {
		return result, err
	}

	var added []*models.Employee
	for _, n := range names {
		if models.GetEmployeeFromList(n.FullName(), all) != nil {
			result.Skipped = append(result.Skipped, n.FullName())
			continue
		}
		e := models.NewEmployee(n.FirstName, n.LastName)
		e.CreatedAt = s.now()
		added = append(added, &e)
		result.Added = append(result.Added, e.FullName())
	}

	if bulk, ok := s.Employees.(repository.BulkEmployeeSaver); ok {
		if err := bulk.SaveEmployees(added); err != nil {
			return ImportResult{}, err
		}
	} else {
		for _, e := range added {
			if err := s.Employees.SaveEmployee(*e); err != nil {
				return ImportResult{}, err
			}
		}
	}
	utils.PrintLog("Imported %d employees, skipped %d", len(result.Added), len(result.Skipped))
	return result, nil
}
