package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"timeclock/cmd/utils"
)

const (
	// MinuteStep is the resolution of the minute picker.
	MinuteStep = 15
	// BreakLength is deducted when the employee takes the scheduled break.
	BreakLength = 30
	// BreakAfter is the minimum shift length for a break, and when it starts.
	BreakAfter = 120
)

var (
	ErrPeriodRequired   = errors.New("please select AM or PM for both start and end times")
	ErrEndBeforeStart   = errors.New("end time must be after start time")
	ErrInvalidClockTime = errors.New("invalid clock time")
)

type Period string

const (
	AM Period = "AM"
	PM Period = "PM"
)

// ClockTime is a 12-hour clock-picker value.
type ClockTime struct {
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Period Period `json:"period"`
}

func (c ClockTime) Validate() error {
	if c.Period != AM && c.Period != PM {
		return ErrPeriodRequired
	}
	if c.Hour < 1 || c.Hour > 12 {
		return fmt.Errorf("%w: hour %d outside 1-12", ErrInvalidClockTime, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 || c.Minute%MinuteStep != 0 {
		return fmt.Errorf("%w: minute %d is not one of 00, 15, 30, 45", ErrInvalidClockTime, c.Minute)
	}
	return nil
}

// Minutes since midnight.
func (c ClockTime) Minutes() int {
	hour := c.Hour % 12
	if c.Period == PM {
		hour += 12
	}
	return hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%d:%02d %s", c.Hour, c.Minute, c.Period)
}

// On returns the time on date's calendar day.
func (c ClockTime) On(date time.Time) time.Time {
	return AtMinutes(date, c.Minutes())
}

// AtMinutes returns local midnight of date plus minutes.
func AtMinutes(date time.Time, minutes int) time.Time {
	day := utils.DateOnly(date)
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, time.Local)
}

var clockTimePattern = regexp.MustCompile(`(?i)^\s*(\d{1,2}):(\d{2})\s*([ap]\.?m\.?)?\s*$`)

// ParseClockTime reads "9:00AM", "9:00 pm" or "12:15 PM". A missing period
// is left empty and rejected by Validate.
func ParseClockTime(s string) (ClockTime, error) {
	m := clockTimePattern.FindStringSubmatch(s)
	if m == nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	c := ClockTime{Hour: hour, Minute: minute}
	switch strings.ToUpper(strings.ReplaceAll(m[3], ".", "")) {
	case "AM":
		c.Period = AM
	case "PM":
		c.Period = PM
	}
	return c, nil
}

// ManualSchedule is a shift entered by hand instead of punched in real time.
type ManualSchedule struct {
	Name      string    `json:"name"`
	Start     ClockTime `json:"start"`
	End       ClockTime `json:"end"`
	TakeBreak bool      `json:"takeBreak"`
}

type ScheduleResult struct {
	StartMinutes      int  `json:"startMinutes"`
	EndMinutes        int  `json:"endMinutes"`
	TotalMinutes      int  `json:"totalMinutes"`
	HasBreak          bool `json:"hasBreak"`
	BreakStartMinutes int  `json:"breakStartMinutes,omitempty"`
	BreakEndMinutes   int  `json:"breakEndMinutes,omitempty"`
}

// Compute validates the schedule and works out the paid minutes. A break is
// only taken on shifts longer than two hours and starts two hours in.
func (s ManualSchedule) Compute() (ScheduleResult, error) {
	if s.Start.Period == "" || s.End.Period == "" {
		return ScheduleResult{}, ErrPeriodRequired
	}
	if err := s.Start.Validate(); err != nil {
		return ScheduleResult{}, err
	}
	if err := s.End.Validate(); err != nil {
		return ScheduleResult{}, err
	}

	res := ScheduleResult{
		StartMinutes: s.Start.Minutes(),
		EndMinutes:   s.End.Minutes(),
	}
	if res.EndMinutes <= res.StartMinutes {
		return ScheduleResult{}, ErrEndBeforeStart
	}
	res.TotalMinutes = res.EndMinutes - res.StartMinutes

	if s.TakeBreak && res.TotalMinutes > BreakAfter {
		res.TotalMinutes -= BreakLength
		res.HasBreak = true
		res.BreakStartMinutes = res.StartMinutes + BreakAfter
		res.BreakEndMinutes = res.BreakStartMinutes + BreakLength
	}
	return res, nil
}

func (s ManualSchedule) ConfirmationMessage() string {
	return fmt.Sprintf("CLOCK IN FOR: %s\nAT TIMES: %s - %s?", s.Name, s.Start, s.End)
}

// Row lays the schedule out as clock events on date.
func (s ManualSchedule) Row(date time.Time, res ScheduleResult) AttendanceRow {
	row := NewAttendanceRow(date, s.Name)
	row.Set(ClockIn, AtMinutes(date, res.StartMinutes))
	row.Set(ShiftEnd, AtMinutes(date, res.EndMinutes))
	if res.HasBreak {
		row.Set(BreakStart, AtMinutes(date, res.BreakStartMinutes))
		row.Set(BreakEnd, AtMinutes(date, res.BreakEndMinutes))
	}
	return row
}
