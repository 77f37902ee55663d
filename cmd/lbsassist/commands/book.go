package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"lbsassist/lib/browser"
	"lbsassist/lib/configutil"
	"lbsassist/lib/scrapers/rooms"
	"lbsassist/lib/serviceutil"
	"lbsassist/lib/session"
	"lbsassist/lib/sqliteutil"
	"lbsassist/services/roombooking"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

type BookConfig struct {
	// SessionDB is the sqlite file holding saved portal sessions.
	SessionDB string             `json:"session_db"`
	Portal    roombooking.Config `json:"portal"`
}

var bookDb *string

func init() {
	bookDb = bookCmd.Flags().String("db", "", "Override the session database path.")
	rootCmd.AddCommand(bookCmd)
}

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Books the first available study room for the configured slot.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[BookConfig]("booking.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *bookDb != "" {
			cfg.SessionDB = *bookDb
		}
		if cfg.SessionDB == "" {
			cfg.SessionDB = "sessions.db"
		}

		db, err := sqliteutil.OpenDB(session.Schema, cfg.SessionDB)
		if err != nil {
			serviceutil.Fatal("failed to open session db", err)
		}
		defer db.Close()

		br, err := browser.New(browser.Options{TracerName: "book/browser"})
		if err != nil {
			serviceutil.Fatal("failed to initialize browser", err)
		}

		svc := roombooking.New(br, session.NewStore(db), cfg.Portal)

		t1 := time.Now()
		result, err := svc.Run(cmd.Context(), printLoginProgress)
		if errors.Is(err, rooms.ErrNoRoomsFound) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if err != nil {
			serviceutil.Fatal("booking run failed", err)
		}
		slog.Info("booking confirmed", "seconds", time.Since(t1).Seconds())

		t := newTable()
		t.AppendHeader(table.Row{"Room", "Date", "Start", "Duration", "Title"})
		t.AppendRow(table.Row{
			result.RoomName,
			result.Date.Format("02/01/2006"),
			result.Start,
			fmt.Sprintf("%.1fh", result.DurationHours),
			result.Title,
		})
		t.Render()
	},
}
