package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/batch"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func sampleSummary() *batch.Summary {
	return &batch.Summary{
		Date:        time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC),
		Birthday:    batch.PassSummary{Candidates: 12, Sent: 10, Failed: 1, Skipped: 1},
		Anniversary: batch.PassSummary{Candidates: 3, Sent: 3},
		TierChange:  batch.PassSummary{Candidates: 40, Sent: 2, Skipped: 38},
		Upgrades:    2,
		Downgrades:  1,
	}
}

func TestSendSummary(t *testing.T) {
	client := &fakeSES{}
	m := &Mailer{client: client, from: "noreply@example.com", to: "ops@example.com", logger: zap.NewNop()}

	if err := m.SendSummary(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("SendSummary() error = %v", err)
	}
	if client.input == nil {
		t.Fatal("no email sent")
	}
	if got := aws.ToString(client.input.Source); got != "noreply@example.com" {
		t.Errorf("source = %q", got)
	}
	if got := client.input.Destination.ToAddresses; len(got) != 1 || got[0] != "ops@example.com" {
		t.Errorf("destination = %v", got)
	}
	subject := aws.ToString(client.input.Message.Subject.Data)
	if !strings.Contains(subject, "2026-08-31") {
		t.Errorf("subject = %q, want run date", subject)
	}
}

func TestSendSummaryNoRecipient(t *testing.T) {
	m := &Mailer{client: &fakeSES{}, from: "noreply@example.com", logger: zap.NewNop()}

	if err := m.SendSummary(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected error without a recipient")
	}
}

func TestSendSummarySESError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	m := &Mailer{client: client, from: "noreply@example.com", to: "ops@example.com", logger: zap.NewNop()}

	if err := m.SendSummary(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected error when SES fails")
	}
}

func TestFormatSummary(t *testing.T) {
	body := FormatSummary(sampleSummary())

	for _, want := range []string{
		"2026-08-31",
		"Birthday: 12 candidates, 10 sent, 1 failed, 1 skipped",
		"Anniversary: 3 candidates, 3 sent",
		"Tier change: 40 candidates, 2 sent, 0 failed, 38 skipped",
		"Tier upgrades: 2",
		"Tier downgrades: 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}
