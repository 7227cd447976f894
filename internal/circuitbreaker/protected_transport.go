package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Transport mirrors the dispatch.Transport interface to avoid a circular
// import between the two packages.
type Transport interface {
	Send(ctx context.Context, recipient, text string) error
}

// ProtectedTransport wraps a Transport with a CircuitBreaker. When the SMS
// gateway starts failing, the circuit opens and remaining sends in the batch
// fail fast instead of piling up against a dead endpoint.
type ProtectedTransport struct {
	transport Transport
	breaker   *CircuitBreaker
	logger    *zap.Logger
}

// NewProtectedTransport wraps a transport with circuit breaker protection.
func NewProtectedTransport(transport Transport, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedTransport {
	return &ProtectedTransport{
		transport: transport,
		breaker:   breaker,
		logger:    logger,
	}
}

// Send attempts a send through the circuit breaker. If the circuit is open
// it returns ErrCircuitOpen immediately; the dispatcher records the failure
// and the batch moves on.
func (p *ProtectedTransport) Send(ctx context.Context, recipient, text string) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s transport unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.transport.Send(ctx, recipient, text)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}
