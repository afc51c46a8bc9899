package models

import (
	"math"
	"sort"
	"time"

	"timeclock/cmd/utils"
)

const (
	DailySummarySheet  = "Daily Summary"
	WeeklySummarySheet = "Weekly Summary"
)

// "With breaks" means breaks have been taken out of the hours.
var (
	DailySummaryHeader  = []string{"Date", "Total Hours Worked (with Breaks)", "Total Hours Worked (without Breaks)"}
	WeeklySummaryHeader = []string{"Week", "Total Hours Worked (with Breaks)", "Total Hours Worked (without Breaks)"}
)

type DaySummary struct {
	Date               time.Time `bson:"date" json:"date"`
	HoursWithBreaks    float64   `bson:"hoursWithBreaks" json:"hoursWithBreaks"`
	HoursWithoutBreaks float64   `bson:"hoursWithoutBreaks" json:"hoursWithoutBreaks"`
	Employees          int       `bson:"employees" json:"employees"`
}

type WeekSummary struct {
	Year               int     `bson:"year" json:"year"`
	Week               int     `bson:"week" json:"week"`
	HoursWithBreaks    float64 `bson:"hoursWithBreaks" json:"hoursWithBreaks"`
	HoursWithoutBreaks float64 `bson:"hoursWithoutBreaks" json:"hoursWithoutBreaks"`
	Days               int     `bson:"days" json:"days"`
}

func (w WeekSummary) Label() string {
	return utils.ISOWeekLabel(isoWeekMonday(w.Year, w.Week))
}

type SummaryReport struct {
	Daily  []DaySummary  `json:"daily"`
	Weekly []WeekSummary `json:"weekly"`
}

// RoundHours rounds to two decimal places.
func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// SummariseDay totals the complete shifts of one day partition.
func SummariseDay(date time.Time, rows []AttendanceRow) DaySummary {
	var net, gross time.Duration
	employees := 0
	for _, row := range rows {
		n, g, ok := row.WorkedDuration()
		if !ok {
			continue
		}
		net += n
		gross += g
		employees++
	}
	return DaySummary{
		Date:               utils.DateOnly(date),
		HoursWithBreaks:    RoundHours(net.Hours()),
		HoursWithoutBreaks: RoundHours(gross.Hours()),
		Employees:          employees,
	}
}

// SummariseWeeks groups day summaries by ISO week, oldest first.
func SummariseWeeks(days []DaySummary) []WeekSummary {
	byWeek := map[[2]int]*WeekSummary{}
	for _, d := range days {
		year, week := d.Date.ISOWeek()
		key := [2]int{year, week}
		ws, ok := byWeek[key]
		if !ok {
			ws = &WeekSummary{Year: year, Week: week}
			byWeek[key] = ws
		}
		ws.HoursWithBreaks += d.HoursWithBreaks
		ws.HoursWithoutBreaks += d.HoursWithoutBreaks
		ws.Days++
	}

	weeks := make([]WeekSummary, 0, len(byWeek))
	for _, ws := range byWeek {
		ws.HoursWithBreaks = RoundHours(ws.HoursWithBreaks)
		ws.HoursWithoutBreaks = RoundHours(ws.HoursWithoutBreaks)
		weeks = append(weeks, *ws)
	}
	sort.Slice(weeks, func(i, j int) bool {
		if weeks[i].Year != weeks[j].Year {
			return weeks[i].Year < weeks[j].Year
		}
		return weeks[i].Week < weeks[j].Week
	})
	return weeks
}

func isoWeekMonday(year, week int) time.Time {
	// January 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.Local)
	return utils.GetWeekStart(jan4).AddDate(0, 0, (week-1)*7)
}
