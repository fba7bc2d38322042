package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFeed answers from a map keyed by Contract.String(); unknown contracts
// return err (or ErrQuoteNotFound when err is nil).
type stubFeed struct {
	mu     sync.Mutex
	quotes map[string]Quote
	err    error
	fails  map[string]int // remaining transient failures per contract
	calls  int
}

func (s *stubFeed) OptionQuote(_ context.Context, c Contract) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	key := c.String()
	if s.fails[key] > 0 {
		s.fails[key]--
		return Quote{}, errors.New("connection reset by peer")
	}
	if q, ok := s.quotes[key]; ok {
		return q, nil
	}
	if s.err != nil {
		return Quote{}, s.err
	}
	return Quote{}, ErrQuoteNotFound
}

func (s *stubFeed) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestBreakerFeed_TripsOnFailures(t *testing.T) {
	inner := &stubFeed{err: errors.New("server error")}
	feed := NewBreakerFeed(inner, BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := feed.OptionQuote(context.Background(), aaplPut("220"))
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, feed.State())

	_, err := feed.OptionQuote(context.Background(), aaplPut("220"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.callCount())
}

func TestBreakerFeed_MissingContractDoesNotTrip(t *testing.T) {
	inner := &stubFeed{}
	feed := NewBreakerFeed(inner, BreakerSettings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.5,
	}, quietLogger())

	for i := 0; i < 5; i++ {
		_, err := feed.OptionQuote(context.Background(), aaplPut("220"))
		assert.ErrorIs(t, err, ErrQuoteNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, feed.State())
}

func TestBreakerFeed_PassesQuotes(t *testing.T) {
	c := aaplPut("220")
	inner := &stubFeed{quotes: map[string]Quote{c.String(): {Bid: d("1"), Ask: d("2")}}}
	feed := NewBreakerFeed(inner, DefaultBreakerSettings, quietLogger())

	q, err := feed.OptionQuote(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, q.Mark().Equal(d("1.5")))
}
