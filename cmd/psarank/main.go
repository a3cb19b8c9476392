package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nlindqvist/psarank/internal/checkpoint"
	"github.com/nlindqvist/psarank/internal/config"
	"github.com/nlindqvist/psarank/internal/export"
	"github.com/nlindqvist/psarank/internal/fetcher"
	"github.com/nlindqvist/psarank/internal/metrics"
	"github.com/nlindqvist/psarank/internal/schema"
	"github.com/nlindqvist/psarank/internal/source"
	"github.com/nlindqvist/psarank/internal/transport"
	"github.com/nlindqvist/psarank/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	dataDir    string
	genderFlag string
	pageSize   int
	maxPages   int
	noResume   bool
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "psarank",
		Short: "psarank - PSA World Tour squash rankings fetcher",
		Long: `psarank downloads the PSA World Tour squash rankings page by page,
committing every completed page to a durable checkpoint so interrupted
runs resume where they left off. If the rankings API fails mid-session
it degrades once to scraping the public rankings website.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch rankings and export them to CSV",
		Long: `Fetch the current world rankings for one or both genders:
1. Page through the rankings API, validating every record
2. Commit each completed page to a checkpoint before fetching the next
3. Switch to scraping the rankings website if the API fails
4. Export the accumulated rankings to CSV`,
		RunE: runFetch,
	}

	fetchCmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file (default: ./"+config.DefaultConfigFile+" if present)")
	fetchCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	fetchCmd.Flags().StringVar(&dataDir, "data-dir", "", "Base directory for checkpoints, logs and output (default: $"+export.EnvDataDir+" or the working directory)")
	fetchCmd.Flags().StringVar(&genderFlag, "gender", config.GenderBoth, "Rankings to fetch: male, female or both")
	fetchCmd.Flags().IntVar(&pageSize, "page-size", config.DefaultPageSize, "Players requested per page")
	fetchCmd.Flags().IntVar(&maxPages, "max-pages", 0, "Stop after this many pages per gender (0 = no limit)")
	fetchCmd.Flags().BoolVar(&noResume, "no-resume", false, "Ignore existing checkpoints and start from page 1")
	fetchCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARNING or ERROR")

	// Checkpoint management commands
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
		Long:  "Manage the per-gender checkpoints left behind by interrupted fetch sessions",
	}
	checkpointCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Base directory for checkpoints, logs and output (default: $"+export.EnvDataDir+" or the working directory)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all checkpoints",
		Long:  "List every gender with an in-progress fetch session",
		RunE:  listCheckpoints,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <gender>",
		Short: "Inspect a checkpoint",
		Long:  "Display detailed information about one gender's checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectCheckpoint,
	}

	clearCmd := &cobra.Command{
		Use:   "clear <gender>",
		Short: "Delete a checkpoint",
		Long:  "Delete one gender's checkpoint so the next fetch starts over from page 1",
		Args:  cobra.ExactArgs(1),
		RunE:  clearCheckpoint,
	}

	checkpointCmd.AddCommand(listCmd)
	checkpointCmd.AddCommand(inspectCmd)
	checkpointCmd.AddCommand(clearCmd)

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(checkpointCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	// Load environment variables from file if it exists
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
			}
		} else if cmd.Flags().Changed("env-file") {
			fmt.Fprintf(os.Stderr, "Warning: env file not found: %s\n", envFile)
		}
	}

	// Load configuration, then let explicit flags win over the file
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("gender") {
		cfg.Fetch.Gender = genderFlag
	}
	if cmd.Flags().Changed("page-size") {
		cfg.Fetch.PageSize = pageSize
	}
	if cmd.Flags().Changed("max-pages") {
		cfg.Fetch.MaxPages = maxPages
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}

	dirs, err := export.ResolveDirs(dataDir)
	if err != nil {
		return fmt.Errorf("failed to prepare data directory: %w", err)
	}

	logger, logFile, err := export.SetupLogger(dirs, level)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		if logFile != nil {
			_ = logFile.Sync()
			_ = logFile.Close()
		}
	}()

	logger.Info("Starting psarank",
		"version", Version,
		"gender", cfg.Fetch.Gender,
		"page_size", cfg.Fetch.PageSize,
		"max_pages", cfg.Fetch.MaxPages,
		"resume", !noResume,
		"data_dir", dirs.Base)

	collector := metrics.NewCollector(logger)
	if cfg.Metrics.Enabled {
		stopMetrics := serveMetrics(logger, cfg.Metrics.ListenAddr)
		defer stopMetrics()
	}

	client := transport.NewClient(logger, collector, transport.Options{
		MaxRetries:        cfg.Transport.MaxRetries,
		BaseRetryDelay:    cfg.RetryDelay(),
		RequestsPerMinute: cfg.Transport.RequestsPerMinute,
		UserAgents:        cfg.Transport.UserAgents,
	})
	primary := source.NewAPISource(client, logger, cfg.API.BaseURL, cfg.APITimeout())
	fallback := source.NewHTMLSource(client, logger, cfg.HTML.BaseURL, cfg.HTMLTimeout())
	store := checkpoint.NewStore(dirs.Checkpoints, logger, collector)
	fetch := fetcher.New(primary, fallback, schema.NewValidator(logger), store, collector, logger)
	csvWriter := export.NewCSVWriter(dirs.Output, logger)

	// Fetch with signal-aware context so an interrupt stops at a page boundary
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	genders := cfg.Genders()
	var failures []error
	for _, gender := range genders {
		records, stats, err := fetch.Run(ctx, fetcher.Session{
			Gender:   gender,
			PageSize: cfg.Fetch.PageSize,
			MaxPages: cfg.Fetch.MaxPages,
			Resume:   !noResume,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("Fetch interrupted - completed pages are checkpointed",
					"gender", gender,
					"resume_command", "psarank fetch --gender "+string(gender))
				return fmt.Errorf("fetch interrupted (run again to resume from the last committed page)")
			}
			logger.Error("Fetch failed", "gender", gender, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", gender, err))
			continue
		}

		path, err := csvWriter.Write(gender, records)
		if err != nil {
			logger.Error("Export failed", "gender", gender, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", gender, err))
			continue
		}

		logger.Info("Fetch complete",
			"gender", gender,
			"records", records.Len(),
			"pages", stats.PagesFetched,
			"resumed_at_page", stats.ResumedAtPage,
			"source_switched", stats.SourceSwitched,
			"degraded", records.Degraded(),
			"duration", stats.Duration.Round(time.Millisecond),
			"output", path)
	}

	if len(failures) > 0 {
		return fmt.Errorf("fetch failed for %d of %d requested rankings: %w",
			len(failures), len(genders), errors.Join(failures...))
	}

	logger.Info("All done! 🎉")
	return nil
}

// serveMetrics exposes the Prometheus registry on addr until the returned
// stop function is called.
func serveMetrics(logger *slog.Logger, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (use DEBUG, INFO, WARNING or ERROR)", level)
	}
}

// openStore resolves the data directory and opens the checkpoint store for
// the read-only management commands.
func openStore() (*checkpoint.Store, error) {
	dirs, err := export.ResolveDirs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}
	logger := slog.Default()
	return checkpoint.NewStore(dirs.Checkpoints, logger, metrics.NewCollector(logger)), nil
}

func parseGenderArg(arg string) (models.Gender, error) {
	gender := models.Gender(strings.ToLower(arg))
	if !gender.Valid() {
		return "", fmt.Errorf("invalid gender %q (use male or female)", arg)
	}
	return gender, nil
}

// listCheckpoints prints a summary line for every stored checkpoint
func listCheckpoints(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	checkpoints, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(checkpoints) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	fmt.Println("In-progress fetch sessions:")
	fmt.Println()
	fmt.Printf("%-10s %-8s %-11s %-9s %-10s %s\n", "GENDER", "SOURCE", "LAST_PAGE", "RECORDS", "PAGE_SIZE", "UPDATED")
	fmt.Println(strings.Repeat("-", 70))

	for _, cp := range checkpoints {
		fmt.Printf("%-10s %-8s %-11d %-9d %-10d %s\n",
			cp.Gender,
			cp.Source,
			cp.LastCompletedPage,
			cp.Records.Len(),
			cp.PageSize,
			cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// inspectCheckpoint displays detailed information about one gender's checkpoint
func inspectCheckpoint(cmd *cobra.Command, args []string) error {
	gender, err := parseGenderArg(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	cp := store.Load(gender)
	if cp == nil {
		return fmt.Errorf("no checkpoint found for %s", gender)
	}

	fmt.Printf("Checkpoint for %s rankings\n", gender)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Session ID:           %s\n", cp.SessionID)
	fmt.Printf("Source:               %s\n", cp.Source)
	fmt.Printf("Degraded:             %t\n", cp.Records.Degraded())
	fmt.Printf("Page Size:            %d\n", cp.PageSize)
	fmt.Printf("Last Completed Page:  %d\n", cp.LastCompletedPage)
	fmt.Printf("Accumulated Records:  %d\n", cp.Records.Len())
	fmt.Printf("Updated At:           %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()
	fmt.Println("To resume this session, run:")
	fmt.Printf("  psarank fetch --gender %s --page-size %d\n", cp.Gender, cp.PageSize)

	return nil
}

// clearCheckpoint deletes one gender's checkpoint
func clearCheckpoint(cmd *cobra.Command, args []string) error {
	gender, err := parseGenderArg(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	if store.Load(gender) == nil {
		fmt.Printf("No checkpoint found for %s.\n", gender)
		return nil
	}
	if err := store.Clear(gender); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}

	fmt.Printf("Cleared checkpoint for %s. The next fetch will start from page 1.\n", gender)
	return nil
}
