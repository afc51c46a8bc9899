package utils

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DayLayout names a day partition, e.g. "2024-05-06".
const DayLayout = "2006-01-02"

var (
	loggerMu sync.RWMutex
	logger   = newDefaultLogger()
)

func newDefaultLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// NewLogger builds the production zap logger, at debug level when level is "debug".
func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if level == "debug" {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l.Sugar()
}

func Logger() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func Sync() {
	_ = Logger().Sync()
}

func PrintLog(format string, args ...interface{}) {
	Logger().Info(fmt.Sprintf(format, args...))
}

func PrintDebug(format string, args ...interface{}) {
	Logger().Debug(fmt.Sprintf(format, args...))
}

func PrintWarning(format string, args ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, args...))
}

func PrintError(err error, msg string) {
	Logger().Errorw(msg, "error", err)
}

// DateOnly returns local midnight of t's calendar day.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.In(time.Local).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

func DayName(t time.Time) string {
	return t.In(time.Local).Format(DayLayout)
}

// ParseDay parses a day partition name. Anything else (summary sheets,
// the default "Sheet1") is reported as not a day.
func ParseDay(name string) (time.Time, bool) {
	t, err := time.ParseInLocation(DayLayout, name, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// GetWeekStart returns the Monday that starts t's ISO week.
func GetWeekStart(t time.Time) time.Time {
	date := DateOnly(t)
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}

func GetLastMonday() time.Time {
	return GetWeekStart(time.Now())
}

// ISOWeekLabel formats t's ISO week as "2024-W19".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
