package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// GatewayTransport delivers SMS through an HTTP gateway endpoint, for
// deployments that use a regional SMS provider instead of SNS. The gateway
// receives a JSON body {"to": ..., "message": ...} and any 2xx response
// counts as accepted.
type GatewayTransport struct {
	client  *http.Client
	url     string
	headers map[string]string
	logger  *zap.Logger
}

type GatewayConfig struct {
	URL     string
	Headers map[string]string // extra headers, e.g. an API key
	Timeout time.Duration
}

func NewGatewayTransport(cfg GatewayConfig, logger *zap.Logger) *GatewayTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &GatewayTransport{
		client:  &http.Client{Timeout: timeout},
		url:     cfg.URL,
		headers: cfg.Headers,
		logger:  logger,
	}
}

type gatewayRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send posts one SMS to the gateway.
func (t *GatewayTransport) Send(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return fmt.Errorf("recipient is empty")
	}
	if text == "" {
		return fmt.Errorf("message is empty")
	}

	body, err := json.Marshal(gatewayRequest{To: recipient, Message: text})
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "loyaltypulse/1.0")
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	t.logger.Info("sms delivered via gateway",
		zap.String("recipient", recipient),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}
