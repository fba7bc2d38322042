// Package mock provides a simulated option price feed for development and
// sandbox use when no market data provider is configured.
package mock

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/pricing"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// Feed simulates option quotes around a drifting underlying price.
type Feed struct {
	mu       sync.Mutex
	spot     map[string]float64
	midIV    float64 // annualized volatility in percent
	calendar *market.Calendar
	clock    market.Clock
}

// NewFeed creates a feed. Nil calendar or clock use the New York calendar and
// the system clock.
func NewFeed(cal *market.Calendar, clock market.Clock) *Feed {
	if cal == nil {
		cal = market.DefaultCalendar()
	}
	if clock == nil {
		clock = market.SystemClock{}
	}
	return &Feed{
		spot:     make(map[string]float64),
		midIV:    12.0 + secureFloat64()*18, // MidIV between 12-30%
		calendar: cal,
		clock:    clock,
	}
}

// SetSpot pins the simulated underlying price of symbol.
func (f *Feed) SetSpot(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spot[symbol] = price.InexactFloat64()
}

// nextSpot moves symbol's price a small random step. Unknown symbols start at
// the requested strike.
func (f *Feed) nextSpot(symbol string, strike float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.spot[symbol]
	if !ok {
		s = strike
	}
	s += (secureFloat64() - 0.5) * 2 * s * 0.0005
	f.spot[symbol] = s
	return s
}

// OptionQuote implements pricing.Feed.
func (f *Feed) OptionQuote(ctx context.Context, c pricing.Contract) (pricing.Quote, error) {
	if err := ctx.Err(); err != nil {
		return pricing.Quote{}, err
	}
	strike := c.Strike.InexactFloat64()
	if strike <= 0 {
		return pricing.Quote{}, pricing.ErrQuoteNotFound
	}
	spot := f.nextSpot(c.Symbol, strike)

	intrinsic := math.Max(0, spot-strike)
	if c.Type == models.OptionPut {
		intrinsic = math.Max(0, strike-spot)
	}

	dte := market.DaysBetween(f.calendar.Today(f.clock.Now()), c.Expiration)
	if dte <= 0 {
		// Settled: no market, only intrinsic value.
		return pricing.Quote{Last: cents(intrinsic)}, nil
	}

	// Time value decays exponentially with distance from the money.
	distance := math.Abs(strike - spot)
	timeValue := f.midIV / 100 * math.Sqrt(float64(dte)/365.0) * spot * 0.4 * math.Exp(-distance*0.02)
	price := math.Max(0.01, intrinsic+timeValue)

	return pricing.Quote{
		Bid:  cents(math.Max(0, price-0.05)),
		Ask:  cents(price + 0.05),
		Last: cents(price),
	}, nil
}

func cents(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(2)
}
