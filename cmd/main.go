package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"timeclock/cmd/attendance"
	"timeclock/cmd/config"
	"timeclock/cmd/db"
	"timeclock/cmd/face"
	"timeclock/cmd/face/dlib"
	"timeclock/cmd/migrate"
	"timeclock/cmd/repository"
	"timeclock/cmd/utils"

	"github.com/spf13/cobra"
)

var (
	envFile string

	cfg      *config.Config
	repos    repository.Repositories
	database *db.Database
	svc      *attendance.Service

	// cleanups run in reverse once the command returns, even on error.
	cleanups []func() error
)

var rootCmd = &cobra.Command{
	Use:   "timeclock",
	Short: "Employee time clock with face recognition",
	Long: `timeclock records clock-in, break and shift-end events for registered
employees, by name or by face, into an attendance workbook or MongoDB,
and keeps daily and weekly hour summaries current.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}

		logger, err := utils.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		utils.SetLogger(logger)

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		time.Local = loc

		repos, database, err = openRepositories(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if database != nil {
			onShutdown(database.Disconnect)
		}

		var encoder face.Encoder
		if cfg.FaceModelPath != "" {
			dlibEncoder, err := dlib.NewEncoder(cfg.FaceModelPath)
			if err != nil {
				return err
			}
			encoder = dlibEncoder
			onShutdown(func() error {
				dlibEncoder.Close()
				return nil
			})
		} else {
			utils.PrintWarning("FACE_MODEL_PATH not set, face recognition disabled")
		}

		svc = attendance.NewService(repos.Employees, repos.Attendance, encoder, cfg.FaceTolerance)
		svc.ImageDir = cfg.ImageDir
		svc.TimesheetDir = cfg.TimesheetDir
		return nil
	},
}

func onShutdown(fn func() error) {
	cleanups = append(cleanups, fn)
}

// shutdown releases what PersistentPreRunE opened. cobra skips post-run
// hooks when a command fails, so main calls this after Execute instead.
func shutdown() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			utils.PrintError(err, "Shutdown failed")
		}
	}
	cleanups = nil
	utils.Sync()
}

func openRepositories(ctx context.Context, cfg *config.Config) (repository.Repositories, *db.Database, error) {
	if cfg.StorageBackend == config.BackendMongo {
		database, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return repository.Repositories{}, nil, err
		}
		return repository.Repositories{
			Employees:  repository.NewMongoEmployeeRepository(ctx, database.DB),
			Attendance: repository.NewMongoAttendanceRepository(ctx, database.DB),
			Config:     repository.NewMongoConfigRepository(ctx, database.DB),
		}, database, nil
	}
	utils.PrintLog("Using workbooks %v and %v", cfg.AttendanceFile, cfg.EmployeeDataFile)
	return repository.Repositories{
		Employees:  repository.NewExcelEmployeeRepository(cfg.EmployeeDataFile),
		Attendance: repository.NewExcelAttendanceRepository(cfg.AttendanceFile),
		Config:     repository.NewWorkbookConfigRepository(cfg.AttendanceFile),
	}, nil, nil
}

// runMigrations brings stored data up to the current schema version.
func runMigrations() error {
	if cfg.StorageBackend == config.BackendExcel {
		if err := migrate.Workbooks(cfg.AttendanceFile, cfg.EmployeeDataFile); err != nil {
			return err
		}
	}
	return migrate.Database(repos.Config)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file to load before reading the environment")
	registerCommands(rootCmd)

	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		os.Exit(1)
	}
}
