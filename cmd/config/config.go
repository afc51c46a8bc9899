// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"timeclock/cmd/face"
	"timeclock/cmd/timesheet"

	"github.com/joho/godotenv"
)

const (
	BackendExcel = "excel"
	BackendMongo = "mongo"
)

type Config struct {
	AttendanceFile   string
	EmployeeDataFile string
	ImageDir         string
	FaceModelPath    string
	FaceTolerance    float64
	StorageBackend   string
	MongoURI         string
	MongoDB          string
	TimesheetDir     string
	ListenAddr       string
	Timezone         string
	LogLevel         string
	DevMode          bool

	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
	AdminEmails        []string
}

// Load reads envFile when it exists, then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		AttendanceFile:     getenv("ATTENDANCE_FILE", "attendance.xlsx"),
		EmployeeDataFile:   getenv("EMPLOYEE_DATA_FILE", "employee_data.xlsx"),
		ImageDir:           getenv("IMAGE_DIR", "employee_images"),
		FaceModelPath:      os.Getenv("FACE_MODEL_PATH"),
		FaceTolerance:      face.DefaultTolerance,
		StorageBackend:     strings.ToLower(getenv("STORAGE_BACKEND", BackendExcel)),
		MongoURI:           getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:            getenv("MONGO_DB", "timeclock"),
		TimesheetDir:       getenv("TIMESHEET_DIR", timesheet.DATA_DIR),
		ListenAddr:         getenv("LISTEN_ADDR", ":6969"),
		Timezone:           os.Getenv("TIMEZONE"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:        os.Getenv("REDIRECT_URL"),
		AdminEmails:        splitList(os.Getenv("ADMIN_EMAILS")),
	}

	if v := os.Getenv("FACE_TOLERANCE"); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("FACE_TOLERANCE: %w", err)
		}
		cfg.FaceTolerance = tol
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DEV_MODE: %w", err)
		}
		cfg.DevMode = dev
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.FaceTolerance <= 0 {
		return fmt.Errorf("FACE_TOLERANCE must be positive, got %v", c.FaceTolerance)
	}
	switch c.StorageBackend {
	case BackendExcel:
		if c.AttendanceFile == "" || c.EmployeeDataFile == "" {
			return errors.New("ATTENDANCE_FILE and EMPLOYEE_DATA_FILE are required")
		}
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDB == "" {
			return errors.New("MONGO_URI and MONGO_DB are required")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the zone clock events are recorded in, the host's when
// TIMEZONE is unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
