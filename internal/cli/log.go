package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent notification records",
	RunE:  runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().Int("limit", 20, "Number of records to show")
}

func runLog(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	repo, closeDB, err := initRepo(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	limit, _ := cmd.Flags().GetInt("limit")

	records, err := repo.RecentRecords(ctx, limit)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no notification records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tCUSTOMER\tEVENT\tOUTCOME\tTIER\tMESSAGE\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.CustomerID,
			r.EventType,
			r.Outcome,
			r.LoyaltyTier,
			truncate(r.Message, 60),
		)
	}
	w.Flush()

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
