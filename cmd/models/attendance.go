package models

import (
	"time"

	"timeclock/cmd/utils"

	"go.mongodb.org/mongo-driver/bson"
)

// AttendanceHeader is the first row of every day partition.
var AttendanceHeader = []string{"Employee Name", "Shift Start", "Break Start", "Break End", "Shift End"}

// AttendanceRow is one employee's clock events for one day.
type AttendanceRow struct {
	Date       time.Time  `bson:"date" json:"date"`
	Name       string     `bson:"name" json:"name"`
	ShiftStart *time.Time `bson:"shiftStart" json:"shiftStart,omitempty"`
	BreakStart *time.Time `bson:"breakStart" json:"breakStart,omitempty"`
	BreakEnd   *time.Time `bson:"breakEnd" json:"breakEnd,omitempty"`
	ShiftEnd   *time.Time `bson:"shiftEnd" json:"shiftEnd,omitempty"`
}

func NewAttendanceRow(date time.Time, name string) AttendanceRow {
	return AttendanceRow{Date: utils.DateOnly(date), Name: name}
}

func (r *AttendanceRow) slot(a ClockAction) **time.Time {
	switch a {
	case ClockIn:
		return &r.ShiftStart
	case BreakStart:
		return &r.BreakStart
	case BreakEnd:
		return &r.BreakEnd
	case ShiftEnd:
		return &r.ShiftEnd
	}
	return nil
}

func (r AttendanceRow) Get(a ClockAction) *time.Time {
	if p := r.slot(a); p != nil {
		return *p
	}
	return nil
}

func (r AttendanceRow) IsSet(a ClockAction) bool {
	return r.Get(a) != nil
}

func (r *AttendanceRow) Set(a ClockAction, t time.Time) {
	if p := r.slot(a); p != nil {
		*p = &t
	}
}

// NextAction is the first clock event not yet recorded. The bool is false
// once all four are set.
func (r AttendanceRow) NextAction() (ClockAction, bool) {
	for _, a := range GetAllClockActions() {
		if !r.IsSet(a) {
			return a, true
		}
	}
	return ShiftEnd, false
}

// WorkedDuration returns the shift length with the break deducted (net) and
// without (gross). ok is false when the row has no complete shift.
func (r AttendanceRow) WorkedDuration() (net time.Duration, gross time.Duration, ok bool) {
	if r.ShiftStart == nil || r.ShiftEnd == nil {
		return 0, 0, false
	}
	gross = r.ShiftEnd.Sub(*r.ShiftStart)
	if gross < 0 {
		return 0, 0, false
	}
	net = gross
	if r.BreakStart != nil && r.BreakEnd != nil {
		if brk := r.BreakEnd.Sub(*r.BreakStart); brk > 0 {
			net -= brk
		}
	}
	return net, gross, true
}

func (r AttendanceRow) MarshalBSON() ([]byte, error) {
	// Store as UTC. r is a copy, Set swaps pointers without touching
	// the caller's times.
	r.Date = utils.DateOnly(r.Date).UTC()
	for _, a := range GetAllClockActions() {
		if t := r.Get(a); t != nil {
			r.Set(a, t.UTC())
		}
	}

	type Alias AttendanceRow
	aux := &struct {
		*Alias `bson:",inline"`
	}{
		Alias: (*Alias)(&r),
	}
	return bson.Marshal(aux)
}

func (r *AttendanceRow) UnmarshalBSON(data []byte) error {
	type Alias AttendanceRow
	aux := &struct {
		*Alias `bson:",inline"`
	}{
		Alias: (*Alias)(r),
	}
	if err := bson.Unmarshal(data, aux); err != nil {
		return err
	}

	r.Date = r.Date.In(time.Local)
	for _, a := range GetAllClockActions() {
		if t := r.Get(a); t != nil {
			r.Set(a, t.In(time.Local))
		}
	}
	return nil
}
