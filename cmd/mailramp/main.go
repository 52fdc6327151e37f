package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lucasrosati/mailramp/internal/app"
	"github.com/lucasrosati/mailramp/internal/config"
	"github.com/lucasrosati/mailramp/internal/contacts"
	"github.com/lucasrosati/mailramp/internal/ledger"
	"github.com/lucasrosati/mailramp/internal/pacing"
	"github.com/lucasrosati/mailramp/internal/personalize"
	"github.com/lucasrosati/mailramp/internal/report"
	"github.com/lucasrosati/mailramp/internal/storage"
	"github.com/lucasrosati/mailramp/internal/tracking"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	// relay credentials may live in a local .env
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailramp",
	Short: "Mailramp - paced email campaign engine",
	Long:  `Mailramp sends personalized email campaigns through an SMTP relay with warmup pacing, durable resumption and open/click tracking.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the campaign",
	Long:  `Run the campaign: send to every pending contact, honoring the sending window, daily quota and pause flag. Interrupted runs resume where they left off.`,
	RunE:  runCampaign,
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Serve tracking callbacks without sending",
	Long:  `Serve the tracking callback endpoints (pixel, click, unsubscribe) as a standalone long-running process. Opens and clicks keep arriving long after the last send, so run this between and after campaign runs.`,
	RunE:  runTrack,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview personalized messages without sending",
	RunE:  runPreview,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print campaign stats and write the HTML dashboard",
	RunE:  runReport,
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause sending by creating the pause flag file",
	RunE:  runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume sending by removing the pause flag file",
	RunE:  runResume,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailramp version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

var (
	previewCount  int
	dashboardPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	previewCmd.Flags().IntVarP(&previewCount, "count", "n", 3, "number of contacts to preview")
	reportCmd.Flags().StringVarP(&dashboardPath, "dashboard", "d", "dashboard.html", "dashboard output path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(runCmd, trackCmd, previewCmd, reportCmd, pauseCmd, resumeCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	return config.Load(cfgFile)
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Tracking.Enabled {
		return fmt.Errorf("tracking is disabled in the configuration")
	}

	tracker, err := app.NewTracker(cfg)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}

	return tracker.Run(context.Background())
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	batch, err := contacts.LoadFile(cfg.Campaign.ContactsFile)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	tmpl, err := personalize.LoadTemplate(cfg.Campaign.TemplateFile)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	n := previewCount
	if n > len(batch) {
		n = len(batch)
	}

	for i := 0; i < n; i++ {
		rec := batch[i]
		addr, rank := contacts.SelectAddress(rec)

		fmt.Printf("--- %d/%d: %s ---\n", i+1, n, rec.Identity)
		if addr == "" {
			fmt.Println("  (no plausible address)")
			continue
		}
		fmt.Printf("To: %s (email %d)\n", addr, rank)

		content, err := personalize.Render(tmpl, rec)
		if err != nil {
			return fmt.Errorf("failed to personalize for %q: %w", rec.Identity, err)
		}
		fmt.Printf("Subject: %s\n\n%s\n\n", content.Subject, content.Text)
	}

	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer db.Close()

	led, err := ledger.NewBoltStore(db)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	trk, err := tracking.NewBoltStore(db)
	if err != nil {
		return fmt.Errorf("failed to open tracking store: %w", err)
	}

	stats, err := report.NewBuilder(led, trk).Aggregate()
	if err != nil {
		return fmt.Errorf("failed to aggregate stats: %w", err)
	}

	data, err := stats.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	fmt.Println(string(data))

	if dashboardPath != "" {
		if err := report.SaveDashboard(dashboardPath, stats); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "dashboard written to %s\n", dashboardPath)
	}

	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := pacing.Pause(cfg.Pacing.PauseFile); err != nil {
		return fmt.Errorf("failed to create pause flag: %w", err)
	}
	fmt.Printf("campaign paused (%s)\n", cfg.Pacing.PauseFile)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := pacing.Resume(cfg.Pacing.PauseFile); err != nil {
		return fmt.Errorf("failed to remove pause flag: %w", err)
	}
	fmt.Printf("campaign resumed (%s)\n", cfg.Pacing.PauseFile)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Campaign: %s\n", cfg.Campaign.Name)
	fmt.Printf("  Relay: %s:%d\n", cfg.SMTP.Host, cfg.SMTP.Port)
	fmt.Printf("  Window: %s-%s\n", cfg.Pacing.WindowStart, cfg.Pacing.WindowEnd)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)

	return nil
}
