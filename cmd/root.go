package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"marketcal/internal/cache"
	"marketcal/internal/calendar"
	"marketcal/internal/config"
	"marketcal/internal/gateway"
	"marketcal/internal/keyword"
	"marketcal/internal/pipeline"
	"marketcal/internal/store"
	"marketcal/internal/tools"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig    string
	flagPortfolio string
	flagUser      string
	flagForce     bool
)

var rootCmd = &cobra.Command{
	Use:   "marketcal",
	Short: "Market research calendar generator",
	Long: "marketcal researches market and portfolio keywords with an LLM,\n" +
		"consolidates the findings, and produces monthly, weekly, and daily\n" +
		"event calendars.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	},
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&flagPortfolio, "portfolio", "", "path to portfolio JSON file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "username (overrides config)")
	rootCmd.Flags().BoolVar(&flagForce, "force", false, "skip the summary cache and regenerate everything")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marketcal %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagUser != "" {
		cfg.Username = flagUser
	}
	if flagPortfolio != "" {
		cfg.PortfolioPath = flagPortfolio
	}

	apiKey := cfg.OpenAIKey()
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}

	archive, err := store.Open(config.ResultsPath())
	if err != nil {
		return fmt.Errorf("opening results store: %w", err)
	}
	defer archive.Close()

	userID, err := archive.EnsureUser(cfg.Username)
	if err != nil {
		return err
	}

	// The cache is an optimization; a broken cache never blocks a run.
	var summaryCache pipeline.SummaryCache
	if c, err := cache.Open(config.CachePath(), cfg.ExpirationWindow()); err != nil {
		slog.Warn("cache unavailable, running without it", "error", err)
	} else {
		defer c.Close()
		summaryCache = c
	}

	registry := gateway.NewRegistry()
	if key := cfg.FinnhubKey(); key != "" {
		registry.Register(tools.NewQuoteClient(key).Tool())
	}
	if cfg.HeadlinesFeed != "" {
		registry.Register(tools.NewHeadlineFetcher(cfg.HeadlinesFeed).Tool())
	}

	gw := gateway.New(
		gateway.NewOpenAIGenerator(apiKey),
		registry,
		cfg.MaxConcurrent(),
		cfg.Gateway.Model,
		int64(cfg.Gateway.MaxTokens),
		cfg.Gateway.Temperature,
	)

	now := time.Now()
	items := keyword.Dedupe(append(keyword.Static(), keyword.Portfolio(cfg.PortfolioPath, now)...))
	slog.Info("starting run", "user", cfg.Username, "keywords", len(items), "force", flagForce)

	p := pipeline.New(gw, summaryCache, archive, pipeline.Options{
		MaxToolIterations: cfg.MaxToolIterations(),
		CallTimeout:       cfg.CallTimeout(),
		AnalyzeTimeout:    cfg.AnalyzeTimeout(),
		CalendarTimeout:   cfg.CalendarTimeout(),
		Force:             flagForce,
	})

	outcome, err := p.Run(cmd.Context(), userID, items)
	if err != nil {
		return err
	}

	if outcome.Calendar == "" {
		fmt.Printf("No calendar produced: %s\n", outcome.Stats.SkipReason)
		return nil
	}
	fmt.Println(calendar.Render(calendar.Parse(outcome.Calendar)))
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
