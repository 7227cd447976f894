package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestGatewayTransportSend(t *testing.T) {
	var got gatewayRequest
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewGatewayTransport(GatewayConfig{
		URL:     srv.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
	}, zap.NewNop())

	if err := transport.Send(context.Background(), "+911234567890", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.To != "+911234567890" || got.Message != "hello" {
		t.Errorf("gateway received %+v", got)
	}
	if gotHeader != "secret" {
		t.Errorf("X-Api-Key = %q, want secret", gotHeader)
	}
}

func TestGatewayTransportNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	transport := NewGatewayTransport(GatewayConfig{URL: srv.URL}, zap.NewNop())

	if err := transport.Send(context.Background(), "+911234567890", "hello"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestGatewayTransportValidation(t *testing.T) {
	transport := NewGatewayTransport(GatewayConfig{URL: "http://localhost:0"}, zap.NewNop())

	if err := transport.Send(context.Background(), "", "hello"); err == nil {
		t.Error("expected error for empty recipient")
	}
	if err := transport.Send(context.Background(), "+911234567890", ""); err == nil {
		t.Error("expected error for empty message")
	}
}
