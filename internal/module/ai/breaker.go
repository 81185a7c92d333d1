package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nutricoach/server/internal/shared/config"
	"github.com/nutricoach/server/internal/utils/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ResilientClient wraps a Client with retry and a circuit breaker.
// Structural input errors are never retried and never trip the breaker.
type ResilientClient struct {
	inner      Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewResilientClient creates a client with retry and circuit breaking.
func NewResilientClient(inner Client, cfg *config.AIConfig, logger *zap.Logger, m *metrics.Metrics) *ResilientClient {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	circuitTimeout := cfg.CircuitTimeout
	if circuitTimeout == 0 {
		circuitTimeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "inference",
		Timeout: circuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Bad input is the caller's problem, not the service's health
			return err == nil || errors.Is(err, ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("inference circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &ResilientClient{
		inner:      inner,
		breaker:    gobreaker.NewCircuitBreaker[*Response](settings),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
		metrics:    m,
	}
}

// Infer calls the inner client through the breaker, retrying transient
// failures with a fixed delay.
func (c *ResilientClient) Infer(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		start := time.Now()
		resp, err := c.breaker.Execute(func() (*Response, error) {
			return c.inner.Infer(ctx, req)
		})
		if c.metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			c.metrics.ObserveAIRequest(string(req.Kind), status, time.Since(start))
		}
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		if !IsRecoverable(err) {
			return nil, err
		}

		c.logger.Warn("inference call failed, retrying",
			zap.String("kind", string(req.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return nil, lastErr
}
