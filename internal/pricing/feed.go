// Package pricing looks up live option prices and writes them onto open
// positions and spreads.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/util"
)

// ErrQuoteNotFound is returned when the chain has no contract at the strike.
var ErrQuoteNotFound = errors.New("no option quote found")

// Contract identifies a single listed option.
type Contract struct {
	Symbol     string
	Expiration time.Time
	Strike     decimal.Decimal
	Type       models.OptionType
}

func (c Contract) String() string {
	return fmt.Sprintf("%s %s %s%s", c.Symbol, c.Expiration.Format("2006-01-02"), c.Strike.String(), c.Type)
}

// Quote is the top of book for a contract.
type Quote struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Last decimal.Decimal
}

// Mark is the bid/ask midpoint, or the last trade when both sides are zero,
// rounded to the cent.
func (q Quote) Mark() decimal.Decimal {
	if q.Bid.IsZero() && q.Ask.IsZero() {
		return util.RoundToTick(q.Last, util.Cent)
	}
	return util.RoundToTick(util.Midpoint(q.Bid, q.Ask), util.Cent)
}

// Feed is a source of option quotes.
type Feed interface {
	OptionQuote(ctx context.Context, c Contract) (Quote, error)
}

// PositionContract returns the contract a wheel position is short.
func PositionContract(p *models.Position) Contract {
	return Contract{Symbol: p.Symbol, Expiration: p.Expiration, Strike: p.Strike, Type: p.Type}
}

// SpreadContracts returns the short and long legs of a spread.
func SpreadContracts(s *models.CreditSpread) (short, long Contract) {
	short = Contract{Symbol: s.Symbol, Expiration: s.Expiration, Strike: s.ShortStrike, Type: s.LegType()}
	long = Contract{Symbol: s.Symbol, Expiration: s.Expiration, Strike: s.LongStrike, Type: s.LegType()}
	return short, long
}
