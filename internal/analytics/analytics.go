// Package analytics folds per-record metrics into account-level summaries.
//
// Absent metrics are skipped, never counted as zero. Averages over an empty
// set and the win rate with no closed records are reported as zero.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Kind tells positions and spreads apart.
type Kind string

const (
	KindPosition Kind = "position"
	KindSpread   Kind = "spread"
)

// Entry is the slice of a record and its metrics that summaries need.
type Entry struct {
	ID                   string
	Kind                 Kind
	Symbol               string
	IsOpen               bool
	OpenDate             time.Time
	DaysInTrade          int
	Credit               decimal.Decimal // premium collected or spread net credit
	AtRisk               decimal.Decimal // collateral requirement or spread max risk
	ProfitLoss           decimal.NullDecimal
	UnrealizedProfitLoss decimal.NullDecimal
	ROI                  decimal.NullDecimal
	AnnualizedReturn     decimal.NullDecimal // annualized return of the closed trade
}

// FromPosition builds an Entry for a wheel position.
func FromPosition(p *models.Position, m models.PositionMetrics) Entry {
	return Entry{
		ID:                   p.ID,
		Kind:                 KindPosition,
		Symbol:               p.Symbol,
		IsOpen:               m.IsOpen,
		OpenDate:             p.OpenDate,
		DaysInTrade:          m.DaysInTrade,
		Credit:               m.PremiumCollected,
		AtRisk:               m.CollateralRequirement,
		ProfitLoss:           m.ProfitLoss,
		UnrealizedProfitLoss: m.CurrentProfitLoss,
		ROI:                  m.ROIPercentage,
		AnnualizedReturn:     m.AROfClosedTrade,
	}
}

// FromSpread builds an Entry for a credit spread.
func FromSpread(s *models.CreditSpread, m models.SpreadMetrics) Entry {
	return Entry{
		ID:                   s.ID,
		Kind:                 KindSpread,
		Symbol:               s.Symbol,
		IsOpen:               m.IsOpen,
		OpenDate:             s.OpenDate,
		DaysInTrade:          m.DaysInTrade,
		Credit:               m.NetCredit,
		AtRisk:               m.MaxRisk,
		ProfitLoss:           m.ProfitLoss,
		UnrealizedProfitLoss: m.CurrentProfitLoss,
		ROI:                  m.ROIPercentage,
		AnnualizedReturn:     m.AROfClosedTrade,
	}
}

// PositionEntries computes metrics for each position as of today.
func PositionEntries(ps []*models.Position, today time.Time) []Entry {
	out := make([]Entry, len(ps))
	for i, p := range ps {
		out[i] = FromPosition(p, models.ComputePositionMetrics(p, today))
	}
	return out
}

// SpreadEntries computes metrics for each spread as of today.
func SpreadEntries(ss []*models.CreditSpread, today time.Time) []Entry {
	out := make([]Entry, len(ss))
	for i, s := range ss {
		out[i] = FromSpread(s, models.ComputeSpreadMetrics(s, today))
	}
	return out
}

// Summary is the account-level roll-up of a set of entries.
type Summary struct {
	TotalCount              int             `json:"total_count"`
	OpenCount               int             `json:"open_count"`
	ClosedCount             int             `json:"closed_count"`
	TotalProfitLoss         decimal.Decimal `json:"total_profit_loss"`
	TotalPremiumCollected   decimal.Decimal `json:"total_premium_collected"`
	TotalOpenCredit         decimal.Decimal `json:"total_open_credit"`
	TotalAtRisk             decimal.Decimal `json:"total_at_risk"`
	UnrealizedProfitLoss    decimal.Decimal `json:"unrealized_profit_loss"`
	WinningTrades           int             `json:"winning_trades"`
	WinRate                 decimal.Decimal `json:"win_rate"`
	AverageDaysInTrade      decimal.Decimal `json:"average_days_in_trade"`
	AverageROI              decimal.Decimal `json:"average_roi"`
	AverageAnnualizedReturn decimal.Decimal `json:"average_annualized_return"`
	StocksTraded            []string        `json:"stocks_traded"`
}

// mean averages the valid values, returning zero for an empty set.
type mean struct {
	sum decimal.Decimal
	n   int64
}

func (m *mean) add(v decimal.NullDecimal) {
	if v.Valid {
		m.sum = m.sum.Add(v.Decimal)
		m.n++
	}
}

func (m *mean) value() decimal.Decimal {
	if m.n == 0 {
		return decimal.Zero
	}
	return m.sum.Div(decimal.NewFromInt(m.n))
}

// Aggregate folds entries into a Summary.
func Aggregate(entries []Entry) Summary {
	s := Summary{StocksTraded: []string{}}
	stocks := make(map[string]struct{})
	var days, roi, ar mean

	for _, e := range entries {
		s.TotalCount++
		s.TotalPremiumCollected = s.TotalPremiumCollected.Add(e.Credit)
		stocks[e.Symbol] = struct{}{}

		if e.IsOpen {
			s.OpenCount++
			s.TotalOpenCredit = s.TotalOpenCredit.Add(e.Credit)
			s.TotalAtRisk = s.TotalAtRisk.Add(e.AtRisk)
			if e.UnrealizedProfitLoss.Valid {
				s.UnrealizedProfitLoss = s.UnrealizedProfitLoss.Add(e.UnrealizedProfitLoss.Decimal)
			}
			continue
		}

		s.ClosedCount++
		if e.ProfitLoss.Valid {
			s.TotalProfitLoss = s.TotalProfitLoss.Add(e.ProfitLoss.Decimal)
			if e.ProfitLoss.Decimal.IsPositive() {
				s.WinningTrades++
			}
		}
		days.add(decimal.NewNullDecimal(decimal.NewFromInt(int64(e.DaysInTrade))))
		roi.add(e.ROI)
		ar.add(e.AnnualizedReturn)
	}

	if s.ClosedCount > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).
			Div(decimal.NewFromInt(int64(s.ClosedCount))).Mul(hundred)
	}
	s.AverageDaysInTrade = days.value()
	s.AverageROI = roi.value()
	s.AverageAnnualizedReturn = ar.value()

	for sym := range stocks {
		s.StocksTraded = append(s.StocksTraded, sym)
	}
	sort.Strings(s.StocksTraded)
	return s
}

// StockSummary is the per-ticker roll-up.
type StockSummary struct {
	Stock       string          `json:"stock"`
	Count       int             `json:"count"`
	OpenCount   int             `json:"open_count"`
	ClosedCount int             `json:"closed_count"`
	TotalCredit decimal.Decimal `json:"total_credit"` // over open records
	TotalPL     decimal.Decimal `json:"total_pl"`     // over closed records
}

// AggregateByStock partitions entries by symbol, sorted by symbol.
func AggregateByStock(entries []Entry) []StockSummary {
	bySymbol := make(map[string]*StockSummary)
	for _, e := range entries {
		ss, ok := bySymbol[e.Symbol]
		if !ok {
			ss = &StockSummary{Stock: e.Symbol}
			bySymbol[e.Symbol] = ss
		}
		ss.Count++
		if e.IsOpen {
			ss.OpenCount++
			ss.TotalCredit = ss.TotalCredit.Add(e.Credit)
			continue
		}
		ss.ClosedCount++
		if e.ProfitLoss.Valid {
			ss.TotalPL = ss.TotalPL.Add(e.ProfitLoss.Decimal)
		}
	}

	out := make([]StockSummary, 0, len(bySymbol))
	for _, ss := range bySymbol {
		out = append(out, *ss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out
}

// ROISummary is the realized return of closed records opened in a date range.
type ROISummary struct {
	Premium       decimal.Decimal     `json:"premium"`
	Collateral    decimal.Decimal     `json:"collateral"`
	ROIPercentage decimal.NullDecimal `json:"roi_percentage"`
	PositionCount int                 `json:"position_count"`
}

// SummarizeROI totals realized profit against collateral for closed entries
// whose open date falls in [start, end]. A zero bound is unbounded.
func SummarizeROI(entries []Entry, start, end time.Time) ROISummary {
	var r ROISummary
	for _, e := range entries {
		if e.IsOpen {
			continue
		}
		if !start.IsZero() && e.OpenDate.Before(start) {
			continue
		}
		if !end.IsZero() && e.OpenDate.After(end) {
			continue
		}
		if e.ProfitLoss.Valid {
			r.Premium = r.Premium.Add(e.ProfitLoss.Decimal)
		}
		r.Collateral = r.Collateral.Add(e.AtRisk)
		r.PositionCount++
	}
	if r.Collateral.IsPositive() {
		r.ROIPercentage = decimal.NewNullDecimal(r.Premium.Div(r.Collateral).Mul(hundred))
	}
	return r
}
