package server

import (
	"fmt"
	"io"
	"net/http"

	"timeclock/cmd/attendance"
	"timeclock/cmd/models"
)

type ClockBody struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

type ClockResponse struct {
	Name     string               `json:"name"`
	Action   string               `json:"action"`
	Message  string               `json:"message"`
	Distance *float64             `json:"distance,omitempty"`
	Row      models.AttendanceRow `json:"row"`
}

func clockMessage(name string, action models.ClockAction) string {
	return fmt.Sprintf("%s recorded for %s", action, name)
}

func (s *Server) HandleClock(w http.ResponseWriter, r *http.Request) {
	var reqBody ClockBody
	if err := ReadAndUnmarshal(w, r, &reqBody); err != nil {
		return
	}
	action, err := models.ParseClockAction(reqBody.Action)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", attendance.ErrInvalidInput, err))
		return
	}
	row, err := s.Service.RecordAction(reqBody.Name, action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClockResponse{
		Name:    row.Name,
		Action:  action.String(),
		Message: clockMessage(row.Name, action),
		Row:     row,
	})
}

func (s *Server) HandleClockNext(w http.ResponseWriter, r *http.Request) {
	var reqBody ClockBody
	if err := ReadAndUnmarshal(w, r, &reqBody); err != nil {
		return
	}
	action, row, err := s.Service.ClockNext(reqBody.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClockResponse{
		Name:    row.Name,
		Action:  action.String(),
		Message: clockMessage(row.Name, action),
		Row:     row,
	})
}

// HandleClockFace takes a multipart form with the camera frame in "image"
// and the clock action in "action".
func (s *Server) HandleClockFace(w http.ResponseWriter, r *http.Request) {
	image, ok := readUpload(w, r, "image")
	if !ok {
		return
	}
	action := models.ClockIn
	if v := r.FormValue("action"); v != "" {
		parsed, err := models.ParseClockAction(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", attendance.ErrInvalidInput, err))
			return
		}
		action = parsed
	}

	id, err := s.Service.IdentifyAndRecord(r.Context(), image, action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClockResponse{
		Name:     id.Name,
		Action:   action.String(),
		Message:  clockMessage(id.Name, action),
		Distance: &id.Distance,
		Row:      id.Row,
	})
}

type ScheduleBody struct {
	models.ManualSchedule
	Confirm bool `json:"confirm"`
}

type ScheduleResponse struct {
	Confirmation string                `json:"confirmation"`
	Confirmed    bool                  `json:"confirmed"`
	Result       models.ScheduleResult `json:"result"`
	Row          *models.AttendanceRow `json:"row,omitempty"`
}

// HandleSchedule previews a hand-entered shift, and records it only once
// the request carries confirm.
func (s *Server) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var reqBody ScheduleBody
	if err := ReadAndUnmarshal(w, r, &reqBody); err != nil {
		return
	}
	sched := reqBody.ManualSchedule

	if !reqBody.Confirm {
		sched, res, err := s.Service.PreviewSchedule(sched)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{
			Confirmation: sched.ConfirmationMessage(),
			Result:       res,
		})
		return
	}

	res, row, err := s.Service.SubmitSchedule(sched)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{
		Confirmation: sched.ConfirmationMessage(),
		Confirmed:    true,
		Result:       res,
		Row:          &row,
	})
}

// readUpload parses a multipart form and returns the named file's bytes.
func readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	data, _, ok := readUploadFile(w, r, field)
	return data, ok
}

func readUploadFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, fmt.Errorf("%w: %w", attendance.ErrInvalidInput, err))
		return nil, "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing %s upload", attendance.ErrInvalidInput, field))
		return nil, "", false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", attendance.ErrInvalidInput, err))
		return nil, "", false
	}
	return data, header.Filename, true
}
