package commands

import (
	"fmt"
	"log/slog"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/configutil"
	"lbsassist/lib/navigator"
	"lbsassist/lib/serviceutil"
	"lbsassist/lib/session"
	"lbsassist/lib/sqliteutil"
	"lbsassist/services/studygroup"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

type ReportConfig struct {
	// SessionDB is the sqlite file holding saved portal sessions.
	SessionDB string            `json:"session_db"`
	Portal    studygroup.Config `json:"portal"`
}

var reportDb *string

func init() {
	reportDb = reportCmd.Flags().String("db", "", "Override the session database path.")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reports this week's assignments, events and study group members.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[ReportConfig]("report.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *reportDb != "" {
			cfg.SessionDB = *reportDb
		}
		if cfg.SessionDB == "" {
			cfg.SessionDB = "sessions.db"
		}

		db, err := sqliteutil.OpenDB(session.Schema, cfg.SessionDB)
		if err != nil {
			serviceutil.Fatal("failed to open session db", err)
		}
		defer db.Close()

		br, err := browser.New(browser.Options{TracerName: "report/browser"})
		if err != nil {
			serviceutil.Fatal("failed to initialize browser", err)
		}

		svc := studygroup.New(br, session.NewStore(db), cfg.Portal)

		t1 := time.Now()
		report, err := svc.Run(cmd.Context(), printLoginProgress)
		if err != nil {
			serviceutil.Fatal("report run failed", err)
		}
		slog.Info("report generated", "seconds", time.Since(t1).Seconds())

		renderReport(report)
	},
}

func renderReport(report studygroup.Report) {
	fmt.Printf("\nUpcoming assignments (%d):\n", len(report.Assignments))
	t := newTable()
	t.AppendHeader(table.Row{"Due", "Course", "Title", "Kind"})
	for _, a := range report.Assignments {
		t.AppendRow(table.Row{a.Due.Format("Mon 2 Jan 15:04"), a.Course, a.Title, a.Kind})
	}
	t.Render()

	fmt.Printf("\nUpcoming events (%d):\n", len(report.Events))
	t = newTable()
	t.AppendHeader(table.Row{"Starts", "Course", "Title", "Location"})
	for _, e := range report.Events {
		t.AppendRow(table.Row{e.Due.Format("Mon 2 Jan 15:04"), e.Course, e.Title, e.Location})
	}
	t.Render()

	fmt.Printf("\n%s members (%d):\n", report.GroupName, len(report.Members))
	t = newTable()
	t.AppendHeader(table.Row{"Name", "Origin", "Education", "Previous occupation"})
	for _, m := range report.Members {
		t.AppendRow(table.Row{m.Name, m.Origin, m.Education, m.PreviousOccupation})
	}
	t.Render()
}

func printLoginProgress(p navigator.Progress) {
	fmt.Printf(
		"\rcomplete login and MFA in your browser... %s elapsed, %s remaining ",
		p.Elapsed.Round(time.Second), p.Remaining.Round(time.Second),
	)
}
