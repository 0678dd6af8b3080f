package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"marketcal/internal/cache"
	"marketcal/internal/config"
	"marketcal/internal/store"
)

var (
	flagHistoryKind  string
	flagHistoryType  string
	flagHistoryLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored summaries or calendars for the user",
	Long: `List the user's stored artifacts, newest first.

Choose the artifact with --kind (summary, calendar). Summaries can be
filtered further with --type (market, portfolio, analysis).`,
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
			fmt.Printf("No results for user %q yet.\n", cfg.Username)
			return nil
		}
		if err != nil {
			return err
		}

		switch flagHistoryKind {
		case "summary":
			return listSummaries(os.Stdout, archive, userID, flagHistoryType, flagHistoryLimit)
		case "calendar":
			if flagHistoryType != "" {
				return fmt.Errorf("--type only applies to --kind summary")
			}
			return listCalendars(os.Stdout, archive, userID, flagHistoryLimit)
		default:
			return fmt.Errorf("invalid --kind value %q (want summary or calendar)", flagHistoryKind)
		}
	},
}

func listSummaries(w io.Writer, archive *store.Store, userID int64, subtype string, limit int) error {
	summaries, err := archive.Summaries(userID, subtype)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No summaries stored.")
		return nil
	}

	shown := 0
	for _, s := range summaries {
		if limit > 0 && shown >= limit {
			break
		}
		fmt.Fprintf(w, "#%d  %s  [%s]  %s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.Subtype, s.Keyword)
		shown++
	}
	return nil
}

func listCalendars(w io.Writer, archive *store.Store, userID int64, limit int) error {
	calendars, err := archive.Calendars(userID)
	if err != nil {
		return err
	}
	if len(calendars) == 0 {
		fmt.Fprintln(w, "No calendars stored.")
		return nil
	}

	shown := 0
	for _, c := range calendars {
		if limit > 0 && shown >= limit {
			break
		}
		fmt.Fprintf(w, "#%d  %s  %s\n", c.ID, c.CreatedAt.Format("2006-01-02 15:04"), firstLine(c.Body))
		shown++
	}
	return nil
}

// firstLine trims a stored body down to a one-line listing label.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 60
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and result store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cachePath := config.CachePath()
		c, err := cache.Open(cachePath, cfg.ExpirationWindow())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer c.Close()

		count, size, err := c.Stats(cachePath)
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}

		resultsPath := config.ResultsPath()
		archive, err := store.Open(resultsPath)
		if err != nil {
			return fmt.Errorf("opening results store: %w", err)
		}
		defer archive.Close()

		summaries, calendars, resultsSize, err := archive.Stats(resultsPath)
		if err != nil {
			return fmt.Errorf("reading results stats: %w", err)
		}

		fmt.Printf("Cache: %s\n", cachePath)
		fmt.Printf("  Summaries: %d\n", count)
		fmt.Printf("  Size: %s\n", formatBytes(size))
		fmt.Printf("Results: %s\n", resultsPath)
		fmt.Printf("  Summaries: %d\n", summaries)
		fmt.Printf("  Calendars: %d\n", calendars)
		fmt.Printf("  Size: %s\n", formatBytes(resultsSize))
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&flagHistoryKind, "kind", "summary", "artifact kind to list (summary, calendar)")
	historyCmd.Flags().StringVar(&flagHistoryType, "type", "", "filter summaries by subtype (market, portfolio, analysis)")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum entries to show (0 = all)")
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
