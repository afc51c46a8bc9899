package models

import (
	"fmt"
	"strings"
	"time"
)

// StampLayout is how clock events are written to a day partition.
const StampLayout = "2006-01-02 15:04:05"

// Layouts written by earlier versions of the clock.
var legacyStampLayouts = []string{
	"2006-01-02 3:04 PM",
	"2006-01-02 03:04 PM",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
}

func FormatStamp(t time.Time) string {
	return t.In(time.Local).Format(StampLayout)
}

// ParseStamp reads a timestamp cell in the local zone.
func ParseStamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(StampLayout, s, time.Local); err == nil {
		return t, nil
	}
	for _, layout := range legacyStampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
