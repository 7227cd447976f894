package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karvy-labs/loyaltypulse/internal/loyalty"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a spend total against a program's tier ladder",
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().Float64("spend", 0, "Cumulative spend total to classify")
	classifyCmd.Flags().String("program", "", "Loyalty program ID (required)")
	_ = classifyCmd.MarkFlagRequired("program")
}

func runClassify(cmd *cobra.Command, _ []string) error {
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

	program, _ := cmd.Flags().GetString("program")
	spend, _ := cmd.Flags().GetFloat64("spend")

	thresholds, err := repo.ProgramThresholds(ctx, program)
	if err != nil {
		return fmt.Errorf("load thresholds for %s: %w", program, err)
	}

	tier, err := loyalty.Classify(spend, thresholds)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	fmt.Printf("program:  %s\n", program)
	fmt.Printf("spend:    %.2f\n", spend)
	fmt.Printf("tier:     %s\n", tier)
	fmt.Printf("ladder:\n")
	for _, t := range thresholds {
		fmt.Printf("  %-10s >= %.2f\n", t.TierName, t.MinSpent)
	}

	return nil
}
