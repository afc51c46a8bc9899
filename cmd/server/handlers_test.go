package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"timeclock/cmd/attendance"
	"timeclock/cmd/config"
	"timeclock/cmd/face"
	"timeclock/cmd/models"
	"timeclock/cmd/repository"

	"github.com/google/uuid"
)

type fakeEncoder struct {
	encodings []face.Encoding
	err       error
}

func (f *fakeEncoder) Encode(ctx context.Context, image []byte) ([]face.Encoding, error) {
	return f.encodings, f.err
}

func newTestServer(t *testing.T) (*Server, *fakeEncoder) {
	t.Helper()
	dir := t.TempDir()
	encoder := &fakeEncoder{}
	svc := attendance.NewService(
		repository.NewExcelEmployeeRepository(filepath.Join(dir, "employee_data.xlsx")),
		repository.NewExcelAttendanceRepository(filepath.Join(dir, "attendance.xlsx")),
		encoder,
		face.DefaultTolerance,
	)
	svc.ImageDir = filepath.Join(dir, "employee_images")
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.Local)
	svc.Now = func() time.Time { return now }
	return New(svc, &config.Config{}), encoder
}

func doJSON(t *testing.T, s *Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func doUpload(t *testing.T, s *Server, path, field, filename string, data []byte, fields map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func sessionCookie(s *Server, isAdmin bool) *http.Cookie {
	token := s.Sessions.Create("boss@example.com", isAdmin)
	return &http.Cookie{Name: SESSION_COOKIE, Value: token.String()}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleClock(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPost, "/clock", `{"name":"Jane Doe","action":"clock in"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ClockResponse
	decode(t, rec, &resp)
	if resp.Action != "Clock In" || resp.Name != "Jane Doe" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Row.ShiftStart == nil {
		t.Error("expected shift start in row")
	}

	rec = doJSON(t, s, http.MethodPost, "/clock", `{"name":"Jane Doe","action":"Clock In"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Error != "Jane Doe has already clocked in today" {
		t.Errorf("unexpected error message %q", body.Error)
	}
}

func TestHandleClockRejects(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown employee", `{"name":"Nobody","action":"clock in"}`, http.StatusNotFound},
		{"unknown action", `{"name":"Jane Doe","action":"lunch"}`, http.StatusBadRequest},
		{"no name", `{"name":"","action":"clock in"}`, http.StatusBadRequest},
		{"bad json", `{"name":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/clock", tc.body)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestHandleClockNext(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Clock In", "Break Start", "Break End", "Shift End"} {
		rec := doJSON(t, s, http.MethodPost, "/clock/next", `{"name":"Jane Doe"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp ClockResponse
		decode(t, rec, &resp)
		if resp.Action != want {
			t.Errorf("expected %s, got %s", want, resp.Action)
		}
	}
	rec := doJSON(t, s, http.MethodPost, "/clock/next", `{"name":"Jane Doe"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 once the shift is complete, got %d", rec.Code)
	}
}

const scheduleBody = `{"name":"Jane Doe","start":{"hour":9,"minute":0,"period":"AM"},"end":{"hour":5,"minute":0,"period":"PM"},"takeBreak":true%s}`

func TestHandleScheduleNeedsConfirm(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPost, "/schedule", fmt.Sprintf(scheduleBody, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var preview ScheduleResponse
	decode(t, rec, &preview)
	if preview.Confirmed || preview.Row != nil {
		t.Errorf("preview should not record, got %+v", preview)
	}
	if preview.Result.TotalMinutes != 450 {
		t.Errorf("expected 450 minutes, got %d", preview.Result.TotalMinutes)
	}
	if !strings.HasPrefix(preview.Confirmation, "CLOCK IN FOR: Jane Doe") {
		t.Errorf("unexpected confirmation %q", preview.Confirmation)
	}
	rows, err := s.Service.Attendance.GetDay(s.Service.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows after preview, got %d", len(rows))
	}

	rec = doJSON(t, s, http.MethodPost, "/schedule", fmt.Sprintf(scheduleBody, `,"confirm":true`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var done ScheduleResponse
	decode(t, rec, &done)
	if !done.Confirmed || done.Row == nil || done.Row.ShiftEnd == nil {
		t.Errorf("expected recorded row, got %+v", done)
	}
}

func TestHandleScheduleRejectsBadTimes(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}
	body := `{"name":"Jane Doe","start":{"hour":5,"minute":0,"period":"PM"},"end":{"hour":9,"minute":0,"period":"AM"}}`
	rec := doJSON(t, s, http.MethodPost, "/schedule", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorBody
	decode(t, rec, &resp)
	if !strings.Contains(resp.Error, models.ErrEndBeforeStart.Error()) {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestAdminRoutesNeedSession(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"name":"Jane Doe"}`

	if rec := doJSON(t, s, http.MethodPost, "/employees", body); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", rec.Code)
	}
	stale := &http.Cookie{Name: SESSION_COOKIE, Value: uuid.NewString()}
	if rec := doJSON(t, s, http.MethodPost, "/employees", body, stale); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with an unknown session, got %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodPost, "/employees", body, sessionCookie(s, false)); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a non-admin, got %d", rec.Code)
	}

	admin := sessionCookie(s, true)
	rec := doJSON(t, s, http.MethodPost, "/employees", body, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created EmployeeResponse
	decode(t, rec, &created)
	if created.FullName != "Jane Doe" || created.HasFace {
		t.Errorf("unexpected employee %+v", created)
	}
	if rec := doJSON(t, s, http.MethodPost, "/employees", body, admin); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate, got %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/employees", "")
	var list []EmployeeResponse
	decode(t, rec, &list)
	if len(list) != 1 || list[0].FullName != "Jane Doe" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestFaceRoutes(t *testing.T) {
	s, encoder := newTestServer(t)
	photo := testJPEG(t)

	rec := doUpload(t, s, "/clock/face", "image", "frame.jpg", photo, map[string]string{"action": "clock in"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 with no registered faces, got %d", rec.Code)
	}

	encoder.encodings = []face.Encoding{{0.1, 0.2, 0.3}}
	fields := map[string]string{"firstName": "Jane", "lastName": "Doe"}
	rec = doUpload(t, s, "/employees/face", "image", "jane.jpg", photo, fields, sessionCookie(s, true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doUpload(t, s, "/clock/face", "image", "frame.jpg", photo, map[string]string{"action": "clock in"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ClockResponse
	decode(t, rec, &resp)
	if resp.Name != "Jane Doe" || resp.Distance == nil || *resp.Distance != 0 {
		t.Errorf("unexpected response %+v", resp)
	}

	encoder.encodings = []face.Encoding{{9, 9, 9}}
	rec = doUpload(t, s, "/clock/face", "image", "frame.jpg", photo, map[string]string{"action": "break start"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a stranger, got %d", rec.Code)
	}

	s.Service.Encoder = nil
	rec = doUpload(t, s, "/clock/face", "image", "frame.jpg", photo, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an encoder, got %d", rec.Code)
	}
}

func TestHandleImport(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doUpload(t, s, "/import", "file", "roster.csv", []byte("a,b"), nil, sessionCookie(s, true))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unsupported file, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/import", "", sessionCookie(s, true))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without an upload, got %d", rec.Code)
	}
}

func TestHandleSchedulePreviewUnknownEmployee(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"name":"nobody","start":{"hour":9,"minute":0,"period":"AM"},"end":{"hour":5,"minute":0,"period":"PM"}}`
	rec := doJSON(t, s, http.MethodPost, "/schedule", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorBody
	decode(t, rec, &resp)
	if !strings.Contains(resp.Error, "nobody") {
		t.Errorf("unexpected error %q", resp.Error)
	}
}

func TestSummaryAndTimesheet(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}
	if rec := doJSON(t, s, http.MethodPost, "/schedule", fmt.Sprintf(scheduleBody, `,"confirm":true`)); rec.Code != http.StatusOK {
		t.Fatalf("schedule failed: %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/summary", "")
	var report models.SummaryReport
	decode(t, rec, &report)
	if len(report.Daily) != 1 || report.Daily[0].HoursWithBreaks != 7.5 {
		t.Errorf("unexpected report %+v", report)
	}

	rec = doJSON(t, s, http.MethodGet, "/timesheet?week=2024-05-08", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var week struct {
		StartDate          time.Time `json:"startDate"`
		HoursWithoutBreaks float64   `json:"hoursWithoutBreaks"`
	}
	decode(t, rec, &week)
	if week.StartDate.Day() != 6 || week.HoursWithoutBreaks != 8 {
		t.Errorf("unexpected week %+v", week)
	}

	if rec := doJSON(t, s, http.MethodGet, "/timesheet?week=last-week", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad week, got %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/timesheet/saved", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a timesheet directory, got %d", rec.Code)
	}
}

func TestSavedTimesheet(t *testing.T) {
	s, _ := newTestServer(t)
	s.Service.TimesheetDir = filepath.Join(t.TempDir(), "timesheets")
	if _, err := s.Service.RegisterEmployee("Jane Doe"); err != nil {
		t.Fatal(err)
	}
	if rec := doJSON(t, s, http.MethodPost, "/schedule", fmt.Sprintf(scheduleBody, `,"confirm":true`)); rec.Code != http.StatusOK {
		t.Fatalf("schedule failed: %d", rec.Code)
	}

	type weekBody struct {
		ID                 uuid.UUID `json:"id"`
		HoursWithoutBreaks float64   `json:"hoursWithoutBreaks"`
	}
	rec := doJSON(t, s, http.MethodGet, "/timesheet/saved", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var empty weekBody
	decode(t, rec, &empty)
	if empty.HoursWithoutBreaks != 0 {
		t.Errorf("expected an empty week before saving, got %+v", empty)
	}

	rec = doJSON(t, s, http.MethodGet, "/timesheet", "")
	var built weekBody
	decode(t, rec, &built)

	rec = doJSON(t, s, http.MethodGet, "/timesheet/saved?week=2024-05-10", "")
	var saved weekBody
	decode(t, rec, &saved)
	if saved.ID != built.ID || saved.HoursWithoutBreaks != 8 {
		t.Errorf("saved week %+v, want %+v", saved, built)
	}

	if rec := doJSON(t, s, http.MethodGet, "/timesheet/saved?week=soon", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad week, got %d", rec.Code)
	}
}

func TestDevModeLoginAndLogout(t *testing.T) {
	s, _ := newTestServer(t)
	s.Config.DevMode = true

	rec := doJSON(t, s, http.MethodGet, "/login", "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SESSION_COOKIE {
			session = c
		}
	}
	if session == nil {
		t.Fatal("expected a session cookie")
	}
	token, err := uuid.Parse(session.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Sessions.Get(token); !ok || !got.IsAdmin {
		t.Errorf("expected an admin session, got %+v", got)
	}

	rec = doJSON(t, s, http.MethodPost, "/logout", "", session)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if _, ok := s.Sessions.Get(token); ok {
		t.Error("expected session to be removed on logout")
	}
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/auth/callback?state=abc&code=xyz", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	store := NewSessionStore()
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	token := store.Create("boss@example.com", true)
	if _, ok := store.Get(token); !ok {
		t.Fatal("expected fresh session")
	}
	now = now.Add(sessionLifetime + time.Minute)
	if _, ok := store.Get(token); ok {
		t.Error("expected expired session")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: blank", attendance.ErrInvalidInput), http.StatusBadRequest},
		{repository.ErrUnknownEmployee, http.StatusNotFound},
		{attendance.ErrNoTimesheetDir, http.StatusNotFound},
		{&repository.DuplicateActionError{Name: "Jane Doe", Action: models.ClockIn}, http.StatusConflict},
		{repository.ErrEmployeeExists, http.StatusConflict},
		{attendance.ErrShiftComplete, http.StatusConflict},
		{attendance.ErrNoMatch, http.StatusUnprocessableEntity},
		{face.ErrNoFace, http.StatusUnprocessableEntity},
		{attendance.ErrEncoderUnavailable, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
