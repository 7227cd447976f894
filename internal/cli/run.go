package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/karvy-labs/loyaltypulse/internal/batch"
	"github.com/karvy-labs/loyaltypulse/internal/dispatch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily batch once",
	Long: `Run the birthday, anniversary and tier-change passes for one date.
Sends are logged unless --live is given. The dedup guard still applies,
so re-running a date does not double-send.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("date", "", "Run date as YYYY-MM-DD (default: today)")
	runCmd.Flags().Bool("live", false, "Send real SMS via SNS instead of logging")
	runCmd.Flags().Int("workers", 0, "Override BATCH_WORKERS for this run")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	refDate := time.Now()
	if dateStr, _ := cmd.Flags().GetString("date"); dateStr != "" {
		refDate, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	live, _ := cmd.Flags().GetBool("live")
	workers, _ := cmd.Flags().GetInt("workers")
	if workers == 0 {
		workers = cfg.BatchWorkers
	}

	ctx := cmd.Context()

	repo, closeDB, err := initRepo(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	dedup, closeRedis := initDedup(ctx, cfg, logger)
	defer closeRedis()

	catalog, err := initCatalog(ctx, cfg, repo)
	if err != nil {
		return fmt.Errorf("load rule catalog: %w", err)
	}

	transport, err := initTransport(ctx, cfg, live, logger)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}

	dispatcher := dispatch.New(catalog, transport, repo, dedup, logger)
	runner := batch.New(repo, repo, dispatcher, repo, batch.Config{Workers: workers}, logger)

	summary := runner.Run(ctx, refDate)

	fmt.Printf("=== Batch run for %s ===\n", summary.Date.Format("2006-01-02"))
	printPass("Birthday", summary.Birthday)
	printPass("Anniversary", summary.Anniversary)
	printPass("Tier change", summary.TierChange)
	fmt.Printf("Upgrades:   %d\n", summary.Upgrades)
	fmt.Printf("Downgrades: %d\n", summary.Downgrades)

	return nil
}

func printPass(name string, pass batch.PassSummary) {
	fmt.Printf("%-12s %d candidates, %d sent, %d failed, %d skipped\n",
		name, pass.Candidates, pass.Sent, pass.Failed, pass.Skipped)
}
