package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ClockAction is one of the four clock events. The order matches the
// timestamp columns of an attendance row.
type ClockAction int

const (
	ClockIn ClockAction = iota
	BreakStart
	BreakEnd
	ShiftEnd
)

func GetAllClockActions() []ClockAction {
	size := int(ShiftEnd-ClockIn) + 1
	actions := make([]ClockAction, size)
	for i := int(ClockIn); i < size; i++ {
		actions[i] = ClockAction(i)
	}
	return actions
}

func (a ClockAction) Int() int {
	return int(a)
}

func (a ClockAction) Valid() bool {
	return a >= ClockIn && a <= ShiftEnd
}

func (a ClockAction) String() string {
	if !a.Valid() {
		return fmt.Sprintf("ClockAction(%d)", int(a))
	}
	return [...]string{
		"Clock In",
		"Break Start",
		"Break End",
		"Shift End"}[a]
}

// Column is the 1-based workbook column holding this action's timestamp.
func (a ClockAction) Column() int {
	return int(a) + 2
}

// Field is the document field holding this action's timestamp.
func (a ClockAction) Field() string {
	return [...]string{
		"shiftStart",
		"breakStart",
		"breakEnd",
		"shiftEnd"}[a]
}

func (a ClockAction) DuplicateMessage(name string) string {
	switch a {
	case ClockIn:
		return fmt.Sprintf("%s has already clocked in today", name)
	case BreakStart:
		return fmt.Sprintf("%s has already started break today", name)
	case BreakEnd:
		return fmt.Sprintf("%s has already ended break today", name)
	default:
		return fmt.Sprintf("%s has already ended their shift today", name)
	}
}

// ParseClockAction accepts "Clock In", "clock-in", "clock_in", "clockin" or
// the numeric index.
func ParseClockAction(s string) (ClockAction, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if num, err := strconv.Atoi(key); err == nil {
		a := ClockAction(num)
		if !a.Valid() {
			return ClockIn, fmt.Errorf("unknown clock action %q", s)
		}
		return a, nil
	}
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch key {
	case "clockin", "in", "shiftstart":
		return ClockIn, nil
	case "breakstart":
		return BreakStart, nil
	case "breakend":
		return BreakEnd, nil
	case "shiftend", "clockout", "out":
		return ShiftEnd, nil
	}
	return ClockIn, fmt.Errorf("unknown clock action %q", s)
}
