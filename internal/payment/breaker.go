package payment

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker guards a Gateway with a circuit breaker and a per-call timeout.
// Declines are answers from a healthy gateway and do not count as failures.
type Breaker struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker[Receipt]
	timeout time.Duration
}

func NewBreaker(next Gateway, timeout time.Duration, logger *log.Logger) *Breaker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	settings := gobreaker.Settings{
		Name:        "payment",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &Breaker{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[Receipt](settings),
		timeout: timeout,
	}
}

func (b *Breaker) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	return b.cb.Execute(func() (Receipt, error) {
		ctx, cancel := b.withTimeout(ctx)
		defer cancel()
		return b.next.Charge(ctx, req)
	})
}

// Refund bypasses the breaker: compensation must be attempted even while
// new charges are being refused.
func (b *Breaker) Refund(ctx context.Context, paymentRef string) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.next.Refund(ctx, paymentRef)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}
