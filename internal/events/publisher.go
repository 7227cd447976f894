// Package events publishes tier-change events to SQS for downstream
// consumers (wallet pass refresh, analytics).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// TierChangeEvent is the payload published when a customer's classified tier
// moves between two snapshots.
type TierChangeEvent struct {
	CustomerID       string  `json:"customer_id"`
	LoyaltyProgramID string  `json:"loyalty_program_id"`
	PreviousTier     string  `json:"previous_tier"`
	NewTier          string  `json:"new_tier"`
	Direction        string  `json:"direction"`
	PreviousTotal    float64 `json:"previous_total"`
	CurrentTotal     float64 `json:"current_total"`
	DetectedAt       int64   `json:"detected_at"`
}

// Publisher sends tier-change events to SQS.
type Publisher struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewPublisher creates a new SQS publisher.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs publisher initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Publisher{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// PublishTierChange sends one event to the queue. Returns the SQS message ID.
func (p *Publisher) PublishTierChange(ctx context.Context, ev TierChangeEvent) (string, error) {
	if ev.DetectedAt == 0 {
		ev.DetectedAt = time.Now().Unix()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to publish tier change event",
			zap.Error(err),
			zap.String("customer_id", ev.CustomerID),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Info("tier change event published",
		zap.String("customer_id", ev.CustomerID),
		zap.String("new_tier", ev.NewTier),
		zap.String("message_id", *result.MessageId),
	)

	return *result.MessageId, nil
}

// Close closes the publisher.
func (p *Publisher) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}
