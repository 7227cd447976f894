// Package report emails the daily run summary to the operations inbox.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/batch"
)

type Mailer struct {
	client sesAPI
	from   string
	to     string
	logger *zap.Logger
}

// sesAPI is the slice of the SES client the mailer uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type Config struct {
	Region    string
	FromEmail string
	ToEmail   string
}

func NewMailer(ctx context.Context, cfg Config, logger *zap.Logger) (*Mailer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &Mailer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}, nil
}

// SendSummary emails one run's summary via AWS SES.
func (m *Mailer) SendSummary(ctx context.Context, summary *batch.Summary) error {
	if m.to == "" {
		return fmt.Errorf("report recipient not configured")
	}

	subject := fmt.Sprintf("Loyalty batch summary for %s", summary.Date.Format("2006-01-02"))
	body := FormatSummary(summary)

	input := &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{m.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	m.logger.Info("summary email sent via SES",
		zap.String("to", m.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// FormatSummary renders a run summary as the plain-text email body.
func FormatSummary(summary *batch.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Daily loyalty run for %s\n\n", summary.Date.Format("2006-01-02"))
	writePass(&b, "Birthday", summary.Birthday)
	writePass(&b, "Anniversary", summary.Anniversary)
	writePass(&b, "Tier change", summary.TierChange)
	fmt.Fprintf(&b, "Tier upgrades: %d\n", summary.Upgrades)
	fmt.Fprintf(&b, "Tier downgrades: %d\n", summary.Downgrades)

	return b.String()
}

func writePass(b *strings.Builder, name string, pass batch.PassSummary) {
	fmt.Fprintf(b, "%s: %d candidates, %d sent, %d failed, %d skipped\n",
		name, pass.Candidates, pass.Sent, pass.Failed, pass.Skipped)
}
