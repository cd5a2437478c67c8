package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Chain tries providers in order, retrying transient failures on each
// before moving on. A "no plant" answer is final.
type Chain struct {
	providers   []Classifier
	maxAttempts int
	delay       func(attempt int) time.Duration
	logger      *slog.Logger
}

// NewChain creates a Chain. maxAttempts < 1 is treated as 1.
func NewChain(logger *slog.Logger, maxAttempts int, providers ...Classifier) *Chain {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers:   providers,
		maxAttempts: maxAttempts,
		delay:       NextRetryDelay,
		logger:      logger.With("component", "classifier"),
	}
}

// Name implements Classifier.
func (c *Chain) Name() string { return "chain" }

// Providers returns the provider names in try order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Classify implements Classifier.
func (c *Chain) Classify(ctx context.Context, img *Image) (*Result, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrAllProvidersFailed)
	}

	var errs []error
	for _, p := range c.providers {
		result, err := c.try(ctx, p, img)
		if err == nil {
			if result.Provider == "" {
				result.Provider = p.Name()
			}
			return result, nil
		}
		if errors.Is(err, ErrNoPlantDetected) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		c.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"error", err,
		)
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (c *Chain) try(ctx context.Context, p Classifier, img *Image) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.delay(attempt - 1)
			c.logger.Debug("retrying provider",
				"provider", p.Name(),
				"attempt", attempt+1,
				"delay", wait,
			)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := p.Classify(ctx, img)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
