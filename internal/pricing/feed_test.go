package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestQuoteMark(t *testing.T) {
	tests := []struct {
		name string
		q    Quote
		want string
	}{
		{"midpoint", Quote{Bid: d("1.00"), Ask: d("1.10"), Last: d("2")}, "1.05"},
		{"midpoint rounds half away from zero", Quote{Bid: d("1.00"), Ask: d("1.05")}, "1.03"},
		{"last when no market", Quote{Last: d("0.456")}, "0.46"},
		{"zero everywhere", Quote{}, "0"},
		{"one-sided market uses midpoint", Quote{Ask: d("0.10")}, "0.05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.q.Mark()
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestContracts(t *testing.T) {
	exp := market.Date(2025, time.March, 21)
	p := &models.Position{Symbol: "KO", Type: models.OptionCall, Strike: d("62.5"), Expiration: exp}
	c := PositionContract(p)
	assert.Equal(t, "KO 2025-03-21 62.5C", c.String())

	s := &models.CreditSpread{Symbol: "SPY", Type: models.BullPutSpread, ShortStrike: d("500"), LongStrike: d("495"), Expiration: exp}
	short, long := SpreadContracts(s)
	assert.Equal(t, models.OptionPut, short.Type)
	assert.True(t, short.Strike.Equal(d("500")))
	assert.True(t, long.Strike.Equal(d("495")))

	s.Type = models.BearCallSpread
	short, _ = SpreadContracts(s)
	assert.Equal(t, models.OptionCall, short.Type)
}
