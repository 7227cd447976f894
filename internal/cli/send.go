package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/dispatch"
)

var sendCmd = &cobra.Command{
	Use:   "send-test",
	Short: "Dispatch one notification to a customer",
	Long: `Resolve the rule for an event type and dispatch a single notification
to one customer. Sends are logged unless --live is given; the dedup
guard is bypassed so repeated test sends work.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("customer", "", "Customer ID (required)")
	sendCmd.Flags().String("event", "", "Event type, e.g. birthday (required)")
	sendCmd.Flags().String("tier", "", "Override the customer's cached tier")
	sendCmd.Flags().Bool("live", false, "Send a real SMS via SNS instead of logging")
	_ = sendCmd.MarkFlagRequired("customer")
	_ = sendCmd.MarkFlagRequired("event")
}

func runSend(cmd *cobra.Command, _ []string) error {
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

	catalog, err := initCatalog(ctx, cfg, repo)
	if err != nil {
		return fmt.Errorf("load rule catalog: %w", err)
	}

	live, _ := cmd.Flags().GetBool("live")
	transport, err := initTransport(ctx, cfg, live, logger)
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}

	customerID, _ := cmd.Flags().GetString("customer")
	event, _ := cmd.Flags().GetString("event")
	tier, _ := cmd.Flags().GetString("tier")

	customer, err := repo.GetCustomer(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load customer %s: %w", customerID, err)
	}

	// nil dedup: test sends must not reserve the day's slot.
	dispatcher := dispatch.New(catalog, transport, repo, nil, logger)
	rec := dispatcher.Dispatch(ctx, customer, event, tier)

	fmt.Printf("outcome: %s\n", rec.Outcome)
	fmt.Printf("message: %s\n", rec.Message)
	if rec.CouponRef != "" {
		fmt.Printf("coupon:  %s\n", rec.CouponRef)
	}

	if rec.Outcome != db.OutcomeSuccess {
		return fmt.Errorf("dispatch failed: %s", rec.Message)
	}
	return nil
}
