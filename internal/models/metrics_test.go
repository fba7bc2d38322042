package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func datePtr(t time.Time) *time.Time { return &t }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func assertNear(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected a value, got absent")
	diff := got.Decimal.Sub(d(want)).Abs()
	assert.True(t, diff.LessThan(d("0.01")), "want ~%s, got %s", want, got.Decimal)
}

func sampleBullPut() *CreditSpread {
	return &CreditSpread{
		ID:           "bps-1",
		Symbol:       "AAPL",
		Type:         BullPutSpread,
		ShortStrike:  d("170"),
		ShortPremium: d("3.50"),
		LongStrike:   d("165"),
		LongPremium:  d("1.20"),
		NumContracts: 2,
		OpenFees:     d("1.30"),
		OpenDate:     market.Date(2025, time.March, 3),
		Expiration:   market.Date(2025, time.April, 4),
	}
}

func TestComputeSpreadMetrics_BullPutExample(t *testing.T) {
	today := market.Date(2025, time.March, 13)
	m := ComputeSpreadMetrics(sampleBullPut(), today)

	assertDecimal(t, "458.70", m.NetCredit)
	assertDecimal(t, "541.30", m.MaxRisk)
	assertDecimal(t, "458.70", m.MaxProfit)
	assertNear(t, "84.74", m.ROIPercentage)
	assert.False(t, m.ProfitLoss.Valid, "open spread must have no realized P/L")
	assert.False(t, m.AROfClosedTrade.Valid)
	assert.True(t, m.IsOpen)
	assert.Equal(t, 10, m.DaysInTrade)
	assert.Equal(t, 22, m.DaysToExpiration)
	assert.Equal(t, 32, m.OriginalDTE)

	// 365/32 * 458.70/541.30 * 100
	assertNear(t, "966.57", m.ARIfHeldToExpiration)
	// 170 - 458.70/2/100
	assertDecimal(t, "167.7065", m.BreakEvenPrice)
}

func TestComputeSpreadMetrics_BearCallBreakEven(t *testing.T) {
	s := sampleBullPut()
	s.Type = BearCallSpread
	s.ShortStrike, s.LongStrike = d("165"), d("170")

	m := ComputeSpreadMetrics(s, s.OpenDate)
	assertDecimal(t, "167.2935", m.BreakEvenPrice)
}

func TestComputeSpreadMetrics_ClosedProfitLoss(t *testing.T) {
	s := sampleBullPut()
	s.CloseDate = datePtr(market.Date(2025, time.March, 20))
	s.LongClosePremium = nd("0.40")
	s.ShortClosePremium = nd("1.10")
	s.CloseFees = nd("1.30")

	m := ComputeSpreadMetrics(s, market.Date(2025, time.June, 1))

	// ((3.50-1.20) + (0.40-1.10)) * 200 - 2.60
	require.True(t, m.ProfitLoss.Valid)
	assertDecimal(t, "317.40", m.ProfitLoss.Decimal)
	assert.False(t, m.IsOpen)
	assert.Equal(t, 17, m.DaysInTrade)
	assert.Equal(t, 0, m.DaysToExpiration)
	// 365/17 * 317.40/541.30 * 100
	assertNear(t, "1258.96", m.AROfClosedTrade)
	assert.False(t, m.CurrentProfitLoss.Valid)
}

func TestComputeSpreadMetrics_ClosedMissingLegsTreatedAsZero(t *testing.T) {
	s := sampleBullPut()
	s.CloseDate = datePtr(s.Expiration)

	m := ComputeSpreadMetrics(s, s.Expiration)
	require.True(t, m.ProfitLoss.Valid)
	assertDecimal(t, "458.70", m.ProfitLoss.Decimal)
}

func TestComputeSpreadMetrics_NonPositiveMaxRiskIsAbsent(t *testing.T) {
	s := sampleBullPut()
	// Credit wider than the strikes: max risk is negative.
	s.ShortPremium = d("6.00")
	s.LongPremium = d("0.00")
	s.OpenFees = decimal.Zero
	s.CloseDate = datePtr(market.Date(2025, time.March, 10))

	m := ComputeSpreadMetrics(s, s.OpenDate)
	assert.True(t, m.MaxRisk.IsNegative())
	assert.False(t, m.ROIPercentage.Valid)
	assert.False(t, m.ARIfHeldToExpiration.Valid)
	assert.False(t, m.AROfClosedTrade.Valid)
	assert.True(t, m.ProfitLoss.Valid)
}

func TestComputeSpreadMetrics_SameDayExpirationARAbsent(t *testing.T) {
	s := sampleBullPut()
	s.Expiration = s.OpenDate
	s.CloseDate = datePtr(s.OpenDate)

	m := ComputeSpreadMetrics(s, s.OpenDate)
	assert.False(t, m.ARIfHeldToExpiration.Valid)
	assert.False(t, m.AROfClosedTrade.Valid)
	assert.True(t, m.ROIPercentage.Valid)
}

func TestComputeSpreadMetrics_CurrentProfitLoss(t *testing.T) {
	s := sampleBullPut()
	s.CurrentLongPrice = nd("0.50")
	s.CurrentShortPrice = nd("1.40")

	m := ComputeSpreadMetrics(s, market.Date(2025, time.March, 20))
	// (2.30 + (0.50-1.40)) * 200 - 1.30 - 1.30
	require.True(t, m.CurrentProfitLoss.Valid)
	assertDecimal(t, "277.40", m.CurrentProfitLoss.Decimal)

	s.CurrentShortPrice = decimal.NullDecimal{}
	m = ComputeSpreadMetrics(s, market.Date(2025, time.March, 20))
	assert.False(t, m.CurrentProfitLoss.Valid)
}

func samplePut() *Position {
	return &Position{
		ID:           "put-1",
		Symbol:       "SPY",
		Type:         OptionPut,
		Strike:       d("370"),
		Premium:      d("5.80"),
		NumContracts: 3,
		OpenFees:     d("1.95"),
		Assigned:     AssignedNo,
		OpenDate:     market.Date(2025, time.January, 6),
		Expiration:   market.Date(2025, time.February, 5),
	}
}

func TestComputePositionMetrics_ClosedSameDayExample(t *testing.T) {
	p := samplePut()
	p.CloseDate = datePtr(p.OpenDate)
	p.PremiumPaidToClose = nd("0")
	p.CloseFees = nd("0")
	p.CloseReason = CloseReasonManual

	m := ComputePositionMetrics(p, market.Date(2025, time.March, 1))

	require.True(t, m.ProfitLoss.Valid)
	assertDecimal(t, "1738.05", m.ProfitLoss.Decimal)
	assert.Equal(t, 0, m.DaysInTrade)
	assert.False(t, m.AROfClosedTrade.Valid, "zero days in trade leaves AR undefined")
	assertDecimal(t, "111000", m.CollateralRequirement)
	// (111000 - 1738.05) / 300
	require.True(t, m.BreakEvenPricePuts.Valid)
	assertDecimal(t, "364.2065", m.BreakEvenPricePuts.Decimal)
}

func TestComputePositionMetrics_OpenPut(t *testing.T) {
	p := samplePut()
	p.CurrentOptionPrice = nd("2.00")
	today := market.Date(2025, time.January, 16)

	m := ComputePositionMetrics(p, today)

	assert.True(t, m.IsOpen)
	assert.Equal(t, 10, m.DaysInTrade)
	assert.Equal(t, 20, m.DaysToExpiration)
	assert.Equal(t, 30, m.DaysOpenToExpiration)
	assertDecimal(t, "1740", m.PremiumCollected)
	// 111000 - (1740 - 1.95)
	assertDecimal(t, "109261.95", m.RiskLessPremium)
	assert.False(t, m.ProfitLoss.Valid)
	assert.False(t, m.BreakEvenPricePuts.Valid)

	// 1740/111000*100
	assertNear(t, "1.5676", m.ROIPercentage)
	// 365/30 * 1740/111000 * 100
	assertNear(t, "19.07", m.ARIfHeldToExpiration)

	// realized = (5.80-2.00)*300 - 1.95 - 1.95 = 1136.10
	require.True(t, m.CurrentProfitLoss.Valid)
	assertDecimal(t, "1136.10", m.CurrentProfitLoss.Decimal)
	// 365 * 1136.10 / 109261.95 / 10 * 100
	assertNear(t, "37.95", m.AROnRealizedPremium)
	// 365 * 600 / 109261.95 / 20 * 100
	assertNear(t, "10.02", m.AROnRemainingPremium)
	// (5.80-2.00)/5.80*100
	assertNear(t, "65.52", m.PercentPremiumEarned)
}

func TestComputePositionMetrics_NoLivePriceLeavesLiveMetricsAbsent(t *testing.T) {
	m := ComputePositionMetrics(samplePut(), market.Date(2025, time.January, 16))
	assert.False(t, m.AROnRealizedPremium.Valid)
	assert.False(t, m.AROnRemainingPremium.Valid)
	assert.False(t, m.PercentPremiumEarned.Valid)
	assert.False(t, m.CurrentProfitLoss.Valid)
}

func TestComputePositionMetrics_LiveMetricsDayCountGuards(t *testing.T) {
	p := samplePut()
	p.CurrentOptionPrice = nd("1.00")

	// Opened today: realized AR has no elapsed days.
	m := ComputePositionMetrics(p, p.OpenDate)
	assert.False(t, m.AROnRealizedPremium.Valid)
	assert.True(t, m.AROnRemainingPremium.Valid)

	// Expiration day: no remaining days.
	m = ComputePositionMetrics(p, p.Expiration)
	assert.True(t, m.AROnRealizedPremium.Valid)
	assert.False(t, m.AROnRemainingPremium.Valid)
}

func TestComputePositionMetrics_CoveredCall(t *testing.T) {
	p := samplePut()
	p.Type = OptionCall
	p.Strike = d("380")
	p.CurrentOptionPrice = nd("1.00")
	p.CloseDate = datePtr(market.Date(2025, time.January, 26))
	p.PremiumPaidToClose = nd("0.50")
	p.CloseFees = nd("1.95")
	p.CloseReason = CloseReasonManual

	m := ComputePositionMetrics(p, market.Date(2025, time.March, 1))

	assert.True(t, m.CollateralRequirement.IsZero())
	assert.False(t, m.ROIPercentage.Valid, "zero collateral leaves ROI undefined")
	assert.False(t, m.BreakEvenPricePuts.Valid, "calls have no put break-even")
	// Annualized return uses share value 380*300 as basis.
	assertNear(t, "18.57", m.ARIfHeldToExpiration)
	// P/L = (5.80-0.50)*300 - 3.90 = 1586.10; 365/20 * 1586.10/114000 * 100
	require.True(t, m.ProfitLoss.Valid)
	assertDecimal(t, "1586.10", m.ProfitLoss.Decimal)
	assertNear(t, "25.39", m.AROfClosedTrade)
	// Risk less premium is negative for calls, so live AR is undefined.
	assert.True(t, m.RiskLessPremium.IsNegative())
	assert.False(t, m.AROnRealizedPremium.Valid)
	// Percent earned only needs a live price.
	assert.True(t, m.PercentPremiumEarned.Valid)
}

func TestComputePositionMetrics_ZeroPremiumPercentEarnedAbsent(t *testing.T) {
	p := samplePut()
	p.Premium = decimal.Zero
	p.CurrentOptionPrice = nd("0.10")
	m := ComputePositionMetrics(p, p.OpenDate)
	assert.False(t, m.PercentPremiumEarned.Valid)
}

func TestComputePositionMetrics_DaysToExpirationClampedAtZero(t *testing.T) {
	p := samplePut()
	m := ComputePositionMetrics(p, market.Date(2025, time.March, 1))
	assert.Equal(t, 0, m.DaysToExpiration)
	assert.Equal(t, 54, m.DaysInTrade)
}

func TestComputePositionMetrics_OpenedAfterTodayHasNoDaysInTrade(t *testing.T) {
	p := samplePut()
	p.CurrentOptionPrice = nd("4.00")

	m := ComputePositionMetrics(p, market.Date(2025, time.January, 3))
	assert.Equal(t, 0, m.DaysInTrade)
	assert.Equal(t, 33, m.DaysToExpiration)
	assert.False(t, m.AROnRealizedPremium.Valid, "no elapsed days means no realized AR")
	assert.True(t, m.AROnRemainingPremium.Valid)
	assert.True(t, m.CurrentProfitLoss.Valid)
}

func TestAnnualize_NonPositiveDaysAbsent(t *testing.T) {
	tests := []struct {
		name string
		days int
		want bool
	}{
		{"negative", -3, false},
		{"zero", 0, false},
		{"one", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := annualize(d("10"), d("1000"), tt.days)
			assert.Equal(t, tt.want, got.Valid)
		})
	}
}
