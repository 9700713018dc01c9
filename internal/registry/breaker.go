package registry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/scrypster/reftrack/pkg/types"
)

var _ Registry = (*Breaker)(nil)

// BreakerConfig holds the configuration for the registry circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxRequests is the number of requests allowed through in the
	// half-open state.
	// Default: 1
	HalfOpenMaxRequests uint32
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         3,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker wraps a remote Registry so that a failing backend is not hammered
// by every status query of a session. Lookups that fail with ErrNotFound or
// ErrInvalidInput are answers, not backend failures, and do not count
// towards tripping the circuit.
type Breaker struct {
	next    Registry
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Registry, config BreakerConfig, logger zerolog.Logger) *Breaker {
	defaults := DefaultBreakerConfig()
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HalfOpenMaxRequests == 0 {
		config.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}

	log := logger.With().Str("component", "registry_breaker").Logger()
	settings := gobreaker.Settings{
		Name:        "RegistryCircuitBreaker",
		MaxRequests: config.HalfOpenMaxRequests,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("registry breaker state changed")
		},
	}

	return &Breaker{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the current state of the circuit: "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

func call[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrCircuitOpen
	}
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Path resolves a content item through the wrapped registry.
func (b *Breaker) Path(ctx context.Context, item types.ContentItem) (string, error) {
	return call(ctx, b, func() (string, error) { return b.next.Path(ctx, item) })
}

// FileID resolves a content item identifier through the wrapped registry.
func (b *Breaker) FileID(ctx context.Context, item types.ContentItem) (int, error) {
	return call(ctx, b, func() (int, error) { return b.next.FileID(ctx, item) })
}

// Item resolves a file identifier through the wrapped registry.
func (b *Breaker) Item(ctx context.Context, fileID int) (types.ContentItem, error) {
	return call(ctx, b, func() (types.ContentItem, error) { return b.next.Item(ctx, fileID) })
}

// Element retrieves an element through the wrapped registry.
func (b *Breaker) Element(ctx context.Context, id int) (types.Element, error) {
	return call(ctx, b, func() (types.Element, error) { return b.next.Element(ctx, id) })
}

// FindElement retrieves an element by name through the wrapped registry.
func (b *Breaker) FindElement(ctx context.Context, kind types.ElementKind, name string) (types.Element, error) {
	return call(ctx, b, func() (types.Element, error) { return b.next.FindElement(ctx, kind, name) })
}

// LinkedAssets lists linked assets through the wrapped registry.
func (b *Breaker) LinkedAssets(ctx context.Context, element types.Element) ([]types.Element, error) {
	return call(ctx, b, func() ([]types.Element, error) { return b.next.LinkedAssets(ctx, element) })
}

// Options lists content items through the wrapped registry.
func (b *Breaker) Options(ctx context.Context, element types.Element, releaseType, fileType string) ([]types.ContentItem, error) {
	return call(ctx, b, func() ([]types.ContentItem, error) {
		return b.next.Options(ctx, element, releaseType, fileType)
	})
}
