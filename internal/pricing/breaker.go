package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures circuit breaker behavior
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultBreakerSettings trips after 60% of at least five calls fail.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:  3,                // Allow 3 requests when half-open
	Interval:     60 * time.Second, // Reset counts every minute
	Timeout:      30 * time.Second, // Open circuit for 30 seconds
	MinRequests:  5,                // Minimum requests before tripping
	FailureRatio: 0.6,              // Trip if 60% failure rate
}

// BreakerFeed wraps a Feed with circuit breaker functionality
type BreakerFeed struct {
	feed    Feed
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerFeed wraps feed. A missing contract does not count as a failure.
func NewBreakerFeed(feed Feed, settings BreakerSettings, logger *logrus.Logger) *BreakerFeed {
	gbSettings := gobreaker.Settings{
		Name:        "PriceFeedCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrQuoteNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &BreakerFeed{
		feed:    feed,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	feed Feed,
	fn func(Feed) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(feed) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// OptionQuote wraps the underlying feed call with circuit breaker
func (b *BreakerFeed) OptionQuote(ctx context.Context, c Contract) (Quote, error) {
	return execCircuitBreaker(b.breaker, b.feed, func(f Feed) (Quote, error) { return f.OptionQuote(ctx, c) })
}

// State reports the breaker state for health output.
func (b *BreakerFeed) State() gobreaker.State {
	return b.breaker.State()
}
