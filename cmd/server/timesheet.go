package server

import (
	"fmt"
	"net/http"
	"time"

	"timeclock/cmd/attendance"
	"timeclock/cmd/utils"
)

// HandleSummary recomputes the daily and weekly hours and returns them.
func (s *Server) HandleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := s.Service.RefreshSummaries()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// weekParam reads ?week=YYYY-MM-DD, defaulting to the current week.
func (s *Server) weekParam(r *http.Request) (time.Time, error) {
	weekStart := time.Now()
	if s.Service.Now != nil {
		weekStart = s.Service.Now()
	}
	if v := r.URL.Query().Get("week"); v != "" {
		parsed, ok := utils.ParseDay(v)
		if !ok {
			return weekStart, fmt.Errorf("%w: week must look like %s", attendance.ErrInvalidInput, utils.DayLayout)
		}
		weekStart = parsed
	}
	return weekStart, nil
}

// HandleTimesheet rebuilds the requested week from attendance and returns
// it.
func (s *Server) HandleTimesheet(w http.ResponseWriter, r *http.Request) {
	weekStart, err := s.weekParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	week, err := s.Service.Timesheet(weekStart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

// HandleSavedTimesheet returns the week as it was last saved, without
// touching attendance.
func (s *Server) HandleSavedTimesheet(w http.ResponseWriter, r *http.Request) {
	weekStart, err := s.weekParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	week, err := s.Service.SavedTimesheet(weekStart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}
