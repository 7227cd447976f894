package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSTransport sends SMS via AWS SNS.
type SNSTransport struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSTransport creates an SNS-backed SMS transport.
func NewSNSTransport(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSTransport, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSTransport{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Send publishes one SMS.
func (t *SNSTransport) Send(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return fmt.Errorf("missing recipient phone number")
	}
	if text == "" {
		return fmt.Errorf("missing message text")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(recipient),
		Message:     aws.String(text),
	}

	result, err := t.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	t.logger.Info("sms sent via SNS",
		zap.String("phone_number", recipient),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}
