package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"timeclock/cmd/models"
	"timeclock/cmd/server"
	"timeclock/cmd/timesheet"
	"timeclock/cmd/utils"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func registerCommands(root *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	registerCmd := &cobra.Command{
		Use:   "register <full name>",
		Short: "Register an employee by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := svc.RegisterEmployee(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", e.FullName())
			return nil
		},
	}

	registerFaceCmd := &cobra.Command{
		Use:   "register-face",
		Short: "Register or update an employee's face from a photo",
		Args:  cobra.NoArgs,
		RunE:  runRegisterFace,
	}
	registerFaceCmd.Flags().String("first", "", "First name")
	registerFaceCmd.Flags().String("last", "", "Last name")
	registerFaceCmd.Flags().String("image", "", "JPEG or PNG photo of the employee")
	registerFaceCmd.MarkFlagRequired("image")

	clockCmd := &cobra.Command{
		Use:   "clock <action> <full name>",
		Short: "Record a clock action (clock-in, break-start, break-end, shift-end)",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runClock,
	}
	clockNextCmd := &cobra.Command{
		Use:   "next <full name>",
		Short: "Record the next missing action in today's row",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, row, err := svc.ClockNext(strings.Join(args, " "))
			if err != nil {
				return err
			}
			printClocked(cmd.OutOrStdout(), row.Name, action, row)
			return nil
		},
	}
	clockCmd.AddCommand(clockNextCmd)

	identifyCmd := &cobra.Command{
		Use:   "identify <action>",
		Short: "Identify the employee in a photo and record the action",
		Args:  cobra.ExactArgs(1),
		RunE:  runIdentify,
	}
	identifyCmd.Flags().String("image", "", "Camera frame to identify")
	identifyCmd.MarkFlagRequired("image")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Enter today's shift by hand",
		Args:  cobra.NoArgs,
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().String("name", "", "Employee full name")
	scheduleCmd.Flags().String("start", "", "Start time, e.g. 9:00AM")
	scheduleCmd.Flags().String("end", "", "End time, e.g. 5:00PM")
	scheduleCmd.Flags().Bool("break", false, "Take the scheduled 30 minute break")
	scheduleCmd.Flags().Bool("yes", false, "Record without asking for confirmation")
	scheduleCmd.MarkFlagRequired("name")
	scheduleCmd.MarkFlagRequired("start")
	scheduleCmd.MarkFlagRequired("end")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Recompute and print daily and weekly hours",
		Args:  cobra.NoArgs,
		RunE:  runSummary,
	}

	timesheetCmd := &cobra.Command{
		Use:   "timesheet",
		Short: "Print and save the timesheet for one week",
		Args:  cobra.NoArgs,
		RunE:  runTimesheet,
	}
	timesheetCmd.Flags().String("week", "", "Any date in the week, YYYY-MM-DD (default this week)")
	timesheetCmd.Flags().Bool("saved", false, "Print the copy saved earlier instead of rebuilding it")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Register every employee on an .xlsx or .xls roster",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade stored data to the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrations(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Data is at version %d\n", models.WorkbookVersion)
			return nil
		},
	}

	root.AddCommand(serveCmd, registerCmd, registerFaceCmd, clockCmd, identifyCmd,
		scheduleCmd, summaryCmd, timesheetCmd, importCmd, migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := runMigrations(); err != nil {
		return err
	}
	if err := svc.OpenDay(); err != nil {
		return err
	}

	s := server.New(svc, cfg)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		utils.PrintLog("Listening on %v", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	utils.PrintLog("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runRegisterFace(cmd *cobra.Command, args []string) error {
	first, _ := cmd.Flags().GetString("first")
	last, _ := cmd.Flags().GetString("last")
	imagePath, _ := cmd.Flags().GetString("image")
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}
	e, err := svc.RegisterFace(cmd.Context(), first, last, image)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered face for %s (%s)\n", e.FullName(), e.ImagePath)
	return nil
}

func runClock(cmd *cobra.Command, args []string) error {
	action, err := models.ParseClockAction(args[0])
	if err != nil {
		return err
	}
	row, err := svc.RecordAction(strings.Join(args[1:], " "), action)
	if err != nil {
		return err
	}
	printClocked(cmd.OutOrStdout(), row.Name, action, row)
	return nil
}

func runIdentify(cmd *cobra.Command, args []string) error {
	action, err := models.ParseClockAction(args[0])
	if err != nil {
		return err
	}
	imagePath, _ := cmd.Flags().GetString("image")
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}
	id, err := svc.IdentifyAndRecord(cmd.Context(), image, action)
	if err != nil {
		return err
	}
	printClocked(cmd.OutOrStdout(), id.Name, action, id.Row)
	fmt.Fprintf(cmd.OutOrStdout(), "Match distance %.3f\n", id.Distance)
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	takeBreak, _ := cmd.Flags().GetBool("break")
	yes, _ := cmd.Flags().GetBool("yes")

	start, err := models.ParseClockTime(startFlag)
	if err != nil {
		return err
	}
	end, err := models.ParseClockTime(endFlag)
	if err != nil {
		return err
	}
	sched, _, err := svc.PreviewSchedule(models.ManualSchedule{Name: name, Start: start, End: end, TakeBreak: takeBreak})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !yes {
		fmt.Fprintln(out, sched.ConfirmationMessage())
		if !confirm(cmd.InOrStdin(), out) {
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}

	res, _, err := svc.SubmitSchedule(sched)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Clock-in successful for %s. Total work time: %d minutes\n", sched.Name, res.TotalMinutes)
	return nil
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Record this shift? [y/N] ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runSummary(cmd *cobra.Command, args []string) error {
	report, err := svc.RefreshSummaries()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(models.DailySummaryHeader, "\t"))
	for _, d := range report.Daily {
		fmt.Fprintf(w, "%s\t%v\t%v\n", utils.DayName(d.Date), d.HoursWithBreaks, d.HoursWithoutBreaks)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Join(models.WeeklySummaryHeader, "\t"))
	for _, wk := range report.Weekly {
		fmt.Fprintf(w, "%s\t%v\t%v\n", wk.Label(), wk.HoursWithBreaks, wk.HoursWithoutBreaks)
	}
	return w.Flush()
}

func runTimesheet(cmd *cobra.Command, args []string) error {
	weekFlag, _ := cmd.Flags().GetString("week")
	weekStart := utils.GetLastMonday()
	if weekFlag != "" {
		parsed, ok := utils.ParseDay(weekFlag)
		if !ok {
			return fmt.Errorf("--week must look like %s", utils.DayLayout)
		}
		weekStart = parsed
	}

	saved, _ := cmd.Flags().GetBool("saved")
	var week *timesheet.Week
	var err error
	if saved {
		week, err = svc.SavedTimesheet(weekStart)
	} else {
		week, err = svc.Timesheet(weekStart)
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Week of %s\n", utils.DayName(week.StartDate))
	fmt.Fprintln(w, "Employee\tHours (with Breaks)\tHours (without Breaks)")
	for _, e := range week.Employees {
		fmt.Fprintf(w, "%s\t%v\t%v\n", e.Name, e.HoursWithBreaks, e.HoursWithoutBreaks)
	}
	fmt.Fprintf(w, "Total\t%v\t%v\n", week.HoursWithBreaks, week.HoursWithoutBreaks)
	if err := w.Flush(); err != nil {
		return err
	}
	if cfg.TimesheetDir != "" && !saved {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", timesheet.GetWeekFilename(cfg.TimesheetDir, week.StartDate))
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	result, err := svc.ImportEmployees(f, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d employees, skipped %d already registered\n", len(result.Added), len(result.Skipped))
	return nil
}

func printClocked(out io.Writer, name string, action models.ClockAction, row models.AttendanceRow) {
	stamp := row.Get(action)
	if stamp == nil {
		fmt.Fprintf(out, "%s recorded for %s\n", action, name)
		return
	}
	fmt.Fprintf(out, "%s recorded for %s at %s\n", action, name, stamp.Format("3:04 PM"))
}
