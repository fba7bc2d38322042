package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// SpreadMetrics holds the derived fields of a CreditSpread.
// Invalid NullDecimal values mean the metric is not yet meaningful.
type SpreadMetrics struct {
	IsOpen               bool                `json:"is_open"`
	DaysInTrade          int                 `json:"days_in_trade"`
	DaysToExpiration     int                 `json:"days_to_expiration"`
	OriginalDTE          int                 `json:"original_dte"`
	NetCredit            decimal.Decimal     `json:"net_credit"`
	MaxRisk              decimal.Decimal     `json:"max_risk"`
	MaxProfit            decimal.Decimal     `json:"max_profit"`
	ProfitLoss           decimal.NullDecimal `json:"profit_loss"`
	ROIPercentage        decimal.NullDecimal `json:"roi_percentage"`
	ARIfHeldToExpiration decimal.NullDecimal `json:"ar_if_held_to_expiration"`
	AROfClosedTrade      decimal.NullDecimal `json:"ar_of_closed_trade"`
	CurrentProfitLoss    decimal.NullDecimal `json:"current_profit_loss"`
	BreakEvenPrice       decimal.Decimal     `json:"break_even_price"`
}

// PositionMetrics holds the derived fields of a wheel Position.
type PositionMetrics struct {
	IsOpen                bool                `json:"is_open"`
	DaysInTrade           int                 `json:"days_in_trade"`
	DaysToExpiration      int                 `json:"days_to_expiration"`
	DaysOpenToExpiration  int                 `json:"days_open_to_expiration"`
	PremiumCollected      decimal.Decimal     `json:"premium_collected"`
	CollateralRequirement decimal.Decimal     `json:"collateral_requirement"`
	RiskLessPremium       decimal.Decimal     `json:"risk_less_premium"`
	ProfitLoss            decimal.NullDecimal `json:"profit_loss"`
	CurrentProfitLoss     decimal.NullDecimal `json:"current_profit_loss"`
	ARIfHeldToExpiration  decimal.NullDecimal `json:"ar_if_held_to_expiration"`
	AROfClosedTrade       decimal.NullDecimal `json:"ar_of_closed_trade"`
	AROnRealizedPremium   decimal.NullDecimal `json:"ar_on_realized_premium"`
	AROnRemainingPremium  decimal.NullDecimal `json:"ar_on_remaining_premium"`
	PercentPremiumEarned  decimal.NullDecimal `json:"percent_premium_earned"`
	BreakEvenPricePuts    decimal.NullDecimal `json:"break_even_price_puts"`
	ROIPercentage         decimal.NullDecimal `json:"roi_percentage"`
}

// ComputeSpreadMetrics derives every spread metric as of the exchange-local date today.
func ComputeSpreadMetrics(s *CreditSpread, today time.Time) SpreadMetrics {
	shares := shareCount(s.NumContracts)
	openingCredit := s.ShortPremium.Sub(s.LongPremium)

	m := SpreadMetrics{IsOpen: s.IsOpen()}
	m.DaysInTrade, m.DaysToExpiration = dayCounts(s.OpenDate, s.Expiration, s.CloseDate, today)
	m.OriginalDTE = market.DaysBetween(s.OpenDate, s.Expiration)

	m.NetCredit = openingCredit.Mul(shares).Sub(s.OpenFees)
	width := s.ShortStrike.Sub(s.LongStrike).Abs()
	m.MaxRisk = width.Mul(shares).Sub(m.NetCredit)
	m.MaxProfit = m.NetCredit

	if !m.IsOpen {
		closingCredit := orZero(s.LongClosePremium).Sub(orZero(s.ShortClosePremium))
		fees := s.OpenFees.Add(orZero(s.CloseFees))
		m.ProfitLoss = present(openingCredit.Add(closingCredit).Mul(shares).Sub(fees))
	}

	if m.MaxRisk.IsPositive() {
		m.ROIPercentage = present(m.NetCredit.Div(m.MaxRisk).Mul(hundred))
	}
	m.ARIfHeldToExpiration = annualize(m.NetCredit, m.MaxRisk, m.OriginalDTE)
	if m.ProfitLoss.Valid {
		m.AROfClosedTrade = annualize(m.ProfitLoss.Decimal, m.MaxRisk, m.DaysInTrade)
	}

	if m.IsOpen && s.CurrentLongPrice.Valid && s.CurrentShortPrice.Valid {
		currentCredit := s.CurrentLongPrice.Decimal.Sub(s.CurrentShortPrice.Decimal)
		estimatedCloseFees := s.OpenFees
		m.CurrentProfitLoss = present(openingCredit.Add(currentCredit).Mul(shares).
			Sub(s.OpenFees).Sub(estimatedCloseFees))
	}

	perContractCredit := m.NetCredit.Div(decimal.NewFromInt(int64(s.NumContracts))).Div(hundred)
	if s.Type == BearCallSpread {
		m.BreakEvenPrice = s.ShortStrike.Add(perContractCredit)
	} else {
		m.BreakEvenPrice = s.ShortStrike.Sub(perContractCredit)
	}
	return m
}

// ComputePositionMetrics derives every wheel-position metric as of the exchange-local date today.
func ComputePositionMetrics(p *Position, today time.Time) PositionMetrics {
	shares := shareCount(p.NumContracts)

	m := PositionMetrics{IsOpen: p.IsOpen()}
	m.DaysInTrade, m.DaysToExpiration = dayCounts(p.OpenDate, p.Expiration, p.CloseDate, today)
	m.DaysOpenToExpiration = market.DaysBetween(p.OpenDate, p.Expiration)

	m.PremiumCollected = p.Premium.Mul(shares)
	strikeValue := p.Strike.Mul(shares)
	// Covered calls need no cash; the shares are already owned.
	if p.Type == OptionPut {
		m.CollateralRequirement = strikeValue
	} else {
		m.CollateralRequirement = decimal.Zero
	}
	m.RiskLessPremium = m.CollateralRequirement.Sub(m.PremiumCollected.Sub(p.OpenFees))

	if !m.IsOpen {
		gross := p.Premium.Sub(orZero(p.PremiumPaidToClose)).Mul(shares)
		m.ProfitLoss = present(gross.Sub(p.OpenFees.Add(orZero(p.CloseFees))))
	}

	// Annualized returns on calls are measured against the value of the shares.
	returnBasis := m.CollateralRequirement
	if p.Type == OptionCall {
		returnBasis = strikeValue
	}
	m.ARIfHeldToExpiration = annualize(m.PremiumCollected, returnBasis, m.DaysOpenToExpiration)
	if m.ProfitLoss.Valid {
		m.AROfClosedTrade = annualize(m.ProfitLoss.Decimal, returnBasis, m.DaysInTrade)
	}

	if m.IsOpen && p.CurrentOptionPrice.Valid {
		current := p.CurrentOptionPrice.Decimal
		estimatedCloseFees := p.OpenFees
		realized := p.Premium.Sub(current).Mul(shares).Sub(p.OpenFees).Sub(estimatedCloseFees)
		m.CurrentProfitLoss = present(realized)
		m.AROnRealizedPremium = annualize(realized, m.RiskLessPremium, m.DaysInTrade)
		m.AROnRemainingPremium = annualize(current.Mul(shares), m.RiskLessPremium, m.DaysToExpiration)
	}

	if p.CurrentOptionPrice.Valid && !p.Premium.IsZero() {
		earned := p.Premium.Sub(p.CurrentOptionPrice.Decimal)
		m.PercentPremiumEarned = present(earned.Div(p.Premium).Mul(hundred))
	}

	if p.Type == OptionPut && m.ProfitLoss.Valid {
		m.BreakEvenPricePuts = present(strikeValue.Sub(m.ProfitLoss.Decimal).Div(shares))
	}

	if m.CollateralRequirement.IsPositive() {
		m.ROIPercentage = present(m.PremiumCollected.Div(m.CollateralRequirement).Mul(hundred))
	}
	return m
}

// dayCounts returns days in trade and days to expiration. Closed records
// count up to their close date and have no remaining days. A record opened
// after today has no days in trade.
func dayCounts(openDate, expiration time.Time, closeDate *time.Time, today time.Time) (inTrade, toExpiration int) {
	if closeDate != nil {
		return market.DaysBetween(openDate, *closeDate), 0
	}
	inTrade = market.DaysBetween(openDate, today)
	if inTrade < 0 {
		inTrade = 0
	}
	toExpiration = market.DaysBetween(today, expiration)
	if toExpiration < 0 {
		toExpiration = 0
	}
	return inTrade, toExpiration
}

// annualize scales amount/basis to a 365-day percentage over days.
func annualize(amount, basis decimal.Decimal, days int) decimal.NullDecimal {
	if days <= 0 || !basis.IsPositive() {
		return decimal.NullDecimal{}
	}
	perYear := daysPerYear.Div(decimal.NewFromInt(int64(days)))
	return present(perYear.Mul(amount.Div(basis)).Mul(hundred))
}

func shareCount(contracts int) decimal.Decimal {
	return decimal.NewFromInt(int64(contracts) * sharesPerContract)
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

func present(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
