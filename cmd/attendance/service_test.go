package attendance

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"timeclock/cmd/face"
	"timeclock/cmd/models"
	"timeclock/cmd/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeEncoder struct {
	encodings []face.Encoding
	err       error
	calls     int
}

func (f *fakeEncoder) Encode(ctx context.Context, image []byte) ([]face.Encoding, error) {
	f.calls++
	return f.encodings, f.err
}

type fixture struct {
	svc     *Service
	encoder *fakeEncoder
	dir     string
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fx := &fixture{
		encoder: &fakeEncoder{},
		dir:     dir,
		now:     time.Date(2024, 5, 6, 9, 0, 0, 0, time.Local),
	}
	fx.svc = NewService(
		repository.NewExcelEmployeeRepository(filepath.Join(dir, "employee_data.xlsx")),
		repository.NewExcelAttendanceRepository(filepath.Join(dir, "attendance.xlsx")),
		fx.encoder,
		face.DefaultTolerance,
	)
	fx.svc.ImageDir = filepath.Join(dir, "employee_images")
	fx.svc.TimesheetDir = filepath.Join(dir, "timesheets")
	fx.svc.Now = func() time.Time { return fx.now }
	return fx
}

// countingAttendance counts the reads that reach the workbook.
type countingAttendance struct {
	*repository.ExcelAttendanceRepository
	getDay  int
	allDays int
}

func (c *countingAttendance) GetDay(date time.Time) ([]models.AttendanceRow, error) {
	c.getDay++
	return c.ExcelAttendanceRepository.GetDay(date)
}

func (c *countingAttendance) AllDays() ([]repository.DayRows, error) {
	c.allDays++
	return c.ExcelAttendanceRepository.AllDays()
}

func (fx *fixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRegisterEmployee(t *testing.T) {
	fx := newFixture(t)

	e, err := fx.svc.RegisterEmployee("  Mary Anne Smith ")
	require.NoError(t, err)
	assert.Equal(t, "Mary", e.FirstName)
	assert.Equal(t, "Anne Smith", e.LastName)

	_, err = fx.svc.RegisterEmployee("Mary Anne Smith")
	assert.ErrorIs(t, err, repository.ErrEmployeeExists)

	_, err = fx.svc.RegisterEmployee("   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	all, err := fx.svc.ListEmployees()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Mary Anne Smith", all[0].FullName())
}

func TestRecordAction(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	row, err := fx.svc.RecordAction("Jane Doe", models.ClockIn)
	require.NoError(t, err)
	require.NotNil(t, row.ShiftStart)
	assert.True(t, row.ShiftStart.Equal(fx.now))

	fx.advance(time.Minute)
	_, err = fx.svc.RecordAction("Jane Doe", models.ClockIn)
	require.ErrorIs(t, err, repository.ErrAlreadyRecorded)
	assert.EqualError(t, err, "Jane Doe has already clocked in today")

	_, err = fx.svc.RecordAction("Nobody", models.ClockIn)
	assert.ErrorIs(t, err, repository.ErrUnknownEmployee)

	_, err = fx.svc.RecordAction("", models.ClockIn)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.RecordAction("Jane Doe", models.ClockAction(9))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClockNextWalksTheShift(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	want := []models.ClockAction{models.ClockIn, models.BreakStart, models.BreakEnd, models.ShiftEnd}
	steps := []time.Duration{0, 3 * time.Hour, 30 * time.Minute, 4*time.Hour + 30*time.Minute}
	for i, action := range want {
		fx.advance(steps[i])
		got, _, err := fx.svc.ClockNext("Jane Doe")
		require.NoError(t, err)
		assert.Equal(t, action, got)
	}

	_, _, err = fx.svc.ClockNext("Jane Doe")
	assert.ErrorIs(t, err, ErrShiftComplete)

	// Summaries are refreshed after every write.
	report, err := fx.svc.Summaries()
	require.NoError(t, err)
	require.Len(t, report.Daily, 1)
	assert.Equal(t, 7.5, report.Daily[0].HoursWithBreaks)
	assert.Equal(t, 8.0, report.Daily[0].HoursWithoutBreaks)

	f, err := excelize.OpenFile(filepath.Join(fx.dir, "attendance.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	daily, err := f.GetRows(models.DailySummarySheet)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, []string{"2024-05-06", "7.5", "8"}, daily[1])
}

func TestClockNextAtMidnight(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)
	_, err = fx.svc.RecordAction("Jane Doe", models.ClockIn)
	require.NoError(t, err)

	// The clock ticks past midnight between any two reads.
	before := time.Date(2024, 5, 6, 23, 59, 59, 0, time.Local)
	calls := 0
	fx.svc.Now = func() time.Time {
		calls++
		if calls == 1 {
			return before
		}
		return before.Add(2 * time.Second)
	}

	action, row, err := fx.svc.ClockNext("Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, models.BreakStart, action)
	assert.Equal(t, 6, row.Date.Day())
	require.NotNil(t, row.BreakStart)
	assert.True(t, row.BreakStart.Equal(before))

	next, err := fx.svc.Attendance.GetDay(before.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestSummariesReadEveryDayOnce(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	counting := &countingAttendance{ExcelAttendanceRepository: repository.NewExcelAttendanceRepository(filepath.Join(fx.dir, "attendance.xlsx"))}
	fx.svc.Attendance = counting
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	for i := 0; i < 40; i++ {
		_, err := counting.ExcelAttendanceRepository.RecordAction("Jane Doe", models.ClockIn, start.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	_, err = fx.svc.RecordAction("Jane Doe", models.ClockIn)
	require.NoError(t, err)
	assert.Equal(t, 0, counting.getDay)
	assert.Equal(t, 1, counting.allDays)

	report, err := fx.svc.Summaries()
	require.NoError(t, err)
	assert.Len(t, report.Daily, 41)
	assert.Equal(t, 2, counting.allDays)
}

func TestPreviewSchedule(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	sched := models.ManualSchedule{
		Name:  " Jane Doe ",
		Start: models.ClockTime{Hour: 9, Minute: 0, Period: models.AM},
		End:   models.ClockTime{Hour: 1, Minute: 0, Period: models.PM},
	}
	got, res, err := fx.svc.PreviewSchedule(sched)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)
	assert.Equal(t, 240, res.TotalMinutes)

	rows, err := fx.svc.Attendance.GetDay(fx.now)
	require.NoError(t, err)
	assert.Empty(t, rows, "a preview must not record anything")

	sched.Name = "Nobody"
	_, _, err = fx.svc.PreviewSchedule(sched)
	assert.ErrorIs(t, err, repository.ErrUnknownEmployee)
}

func TestSubmitSchedule(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	sched := models.ManualSchedule{
		Name:      "Jane Doe",
		Start:     models.ClockTime{Hour: 9, Minute: 0, Period: models.AM},
		End:       models.ClockTime{Hour: 5, Minute: 0, Period: models.PM},
		TakeBreak: true,
	}
	res, row, err := fx.svc.SubmitSchedule(sched)
	require.NoError(t, err)
	assert.Equal(t, 450, res.TotalMinutes)
	require.NotNil(t, row.BreakStart)
	assert.Equal(t, "2024-05-06 11:00:00", models.FormatStamp(*row.BreakStart))

	sched.End = models.ClockTime{Hour: 8, Minute: 0, Period: models.AM}
	_, _, err = fx.svc.SubmitSchedule(sched)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, models.ErrEndBeforeStart)

	sched.Name = "Nobody"
	_, _, err = fx.svc.SubmitSchedule(sched)
	assert.ErrorIs(t, err, repository.ErrUnknownEmployee)
}

func TestRegisterFaceAndIdentify(t *testing.T) {
	fx := newFixture(t)
	photo := testJPEG(t)

	_, err := fx.svc.IdentifyAndRecord(context.Background(), photo, models.ClockIn)
	assert.ErrorIs(t, err, ErrNoRegisteredFaces)

	fx.encoder.encodings = []face.Encoding{{0.1, 0.2, 0.3}}
	e, err := fx.svc.RegisterFace(context.Background(), "Jane", "Doe", photo)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.dir, "employee_images", "Jane_Doe_20240506090000.jpg"), e.ImagePath)
	_, err = os.Stat(e.ImagePath)
	assert.NoError(t, err)

	// Registering again updates the same employee.
	fx.encoder.encodings = []face.Encoding{{0.1, 0.2, 0.35}}
	_, err = fx.svc.RegisterFace(context.Background(), "Jane", "Doe", photo)
	require.NoError(t, err)
	all, err := fx.svc.ListEmployees()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, face.Encoding{0.1, 0.2, 0.35}, all[0].FaceEncoding)

	// First face in the frame is a stranger, the second is Jane.
	fx.encoder.encodings = []face.Encoding{{5, 5, 5}, {0.1, 0.2, 0.3}}
	id, err := fx.svc.IdentifyAndRecord(context.Background(), photo, models.ClockIn)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", id.Name)
	assert.InDelta(t, 0.05, id.Distance, 1e-9)
	require.NotNil(t, id.Row.ShiftStart)

	fx.encoder.encodings = []face.Encoding{{5, 5, 5}}
	_, err = fx.svc.IdentifyAndRecord(context.Background(), photo, models.BreakStart)
	assert.ErrorIs(t, err, ErrNoMatch)

	fx.encoder.encodings, fx.encoder.err = nil, face.ErrNoFace
	_, err = fx.svc.IdentifyAndRecord(context.Background(), photo, models.BreakStart)
	assert.ErrorIs(t, err, face.ErrNoFace)
}

func TestRegisterFaceValidation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterFace(context.Background(), "Jane", "", testJPEG(t))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.RegisterFace(context.Background(), "Jane", "Doe", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	fx.svc.Encoder = nil
	_, err = fx.svc.RegisterFace(context.Background(), "Jane", "Doe", testJPEG(t))
	assert.ErrorIs(t, err, ErrEncoderUnavailable)
}

func TestRegisterFaceKeepsPhotoInImageDir(t *testing.T) {
	fx := newFixture(t)
	fx.encoder.encodings = []face.Encoding{{0.1, 0.2, 0.3}}

	names := [][2]string{
		{"../../escaped", "Doe"},
		{"Jane", "../../../etc/passwd"},
		{"Jane/Mary", `Doe\Smith`},
		{"..", ".."},
	}
	for _, n := range names {
		e, err := fx.svc.RegisterFace(context.Background(), n[0], n[1], testJPEG(t))
		require.NoError(t, err, n)
		rel, err := filepath.Rel(fx.svc.ImageDir, e.ImagePath)
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(rel, ".."), "%v saved at %s", n, e.ImagePath)
		assert.Equal(t, fx.svc.ImageDir, filepath.Dir(e.ImagePath), n)
		_, err = os.Stat(e.ImagePath)
		assert.NoError(t, err)
	}
	assert.Equal(t, "______escaped", fileNamePart("../../escaped"))
	assert.Equal(t, "José-Luis", fileNamePart("José-Luis"))
}

func TestSummariesGroupWeeks(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	// Monday and Tuesday of one week, Monday of the next.
	for _, day := range []int{6, 7, 13} {
		fx.now = time.Date(2024, 5, day, 9, 0, 0, 0, time.Local)
		_, err := fx.svc.RecordAction("Jane Doe", models.ClockIn)
		require.NoError(t, err)
		fx.advance(4 * time.Hour)
		_, err = fx.svc.RecordAction("Jane Doe", models.ShiftEnd)
		require.NoError(t, err)
	}

	report, err := fx.svc.RefreshSummaries()
	require.NoError(t, err)
	require.Len(t, report.Daily, 3)
	require.Len(t, report.Weekly, 2)
	assert.Equal(t, "2024-W19", report.Weekly[0].Label())
	assert.Equal(t, 8.0, report.Weekly[0].HoursWithoutBreaks)
	assert.Equal(t, 4.0, report.Weekly[1].HoursWithBreaks)

	week, err := fx.svc.Timesheet(time.Date(2024, 5, 8, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.Len(t, week.Employees, 1)
	assert.Equal(t, 8.0, week.HoursWithoutBreaks)
	_, err = os.Stat(filepath.Join(fx.dir, "timesheets", "2024-05-06.json"))
	assert.NoError(t, err)

	saved, err := fx.svc.SavedTimesheet(time.Date(2024, 5, 9, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Equal(t, week.ID, saved.ID)
	assert.Equal(t, 8.0, saved.HoursWithoutBreaks)

	fx.svc.TimesheetDir = ""
	_, err = fx.svc.SavedTimesheet(week.StartDate)
	assert.ErrorIs(t, err, ErrNoTimesheetDir)
}

func TestImportEmployees(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.RegisterEmployee("Jane Doe")
	require.NoError(t, err)

	f := excelize.NewFile()
	rows := [][]interface{}{{"First Name", "Last Name"}, {"Jane", "Doe"}, {"John", "Smith"}}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &rows[i]))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	result, err := fx.svc.ImportEmployees(&buf, "roster.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith"}, result.Added)
	assert.Equal(t, []string{"Jane Doe"}, result.Skipped)

	all, err := fx.svc.ListEmployees()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "John Smith", all[1].FullName())
	assert.Implements(t, (*repository.BulkEmployeeSaver)(nil), fx.svc.Employees)

	_, err = fx.svc.ImportEmployees(bytes.NewReader(nil), "roster.txt")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
