package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marketcal/internal/calendar"
	"marketcal/internal/config"
	"marketcal/internal/store"
)

var flagViewDate string

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the latest generated calendar",
	Long:  "Render the most recent calendar for the user, or the calendar generated on a specific day with --date.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagUser != "" {
			cfg.Username = flagUser
		}

		archive, err := store.Open(config.ResultsPath())
		if err != nil {
			return fmt.Errorf("opening results store: %w", err)
		}
		defer archive.Close()

		userID, err := archive.LookupUser(cfg.Username)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("No results for user %q yet. Run marketcal first.\n", cfg.Username)
			return nil
		}
		if err != nil {
			return err
		}

		var cal *store.Calendar
		if flagViewDate != "" {
			day, err := time.ParseInLocation("2006-01-02", flagViewDate, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --date value %q (want YYYY-MM-DD)", flagViewDate)
			}
			cal, err = archive.CalendarByDate(userID, day)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("No calendar generated on %s.\n", flagViewDate)
				return nil
			}
			if err != nil {
				return err
			}
		} else {
			cal, err = archive.LatestCalendar(userID)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("No calendar for user %q yet. Run marketcal first.\n", cfg.Username)
				return nil
			}
			if err != nil {
				return err
			}
		}

		fmt.Printf("Generated %s\n\n", cal.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Println(calendar.Render(calendar.Parse(cal.Body)))
		return nil
	},
}

func init() {
	viewCmd.Flags().StringVar(&flagViewDate, "date", "", "show the calendar generated on this day (YYYY-MM-DD)")
}
