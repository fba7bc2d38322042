package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheel_ledger/internal/analytics"
	"github.com/eddiefleurent/wheel_ledger/internal/chain"
	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// PositionView is a position with its derived metrics and wheel cycle placement.
type PositionView struct {
	*models.Position
	Metrics          models.PositionMetrics `json:"metrics"`
	WheelCycleNumber int                    `json:"wheel_cycle_number"`
	IsWheelComplete  bool                   `json:"is_wheel_complete"`
}

// SpreadView is a spread with its derived metrics.
type SpreadView struct {
	*models.CreditSpread
	Metrics models.SpreadMetrics `json:"metrics"`
}

// CycleView is the wheel cycle containing a position.
type CycleView struct {
	Index     int               `json:"index"`
	Complete  bool              `json:"complete"`
	Positions []PositionView    `json:"positions"`
	Summary   analytics.Summary `json:"summary"`
}

func (s *Server) positionView(p *models.Position, idx *chain.Index, today time.Time) PositionView {
	v := PositionView{Position: p, Metrics: models.ComputePositionMetrics(p, today)}
	cycle, err := chain.Resolve(p, idx)
	if err != nil {
		s.logger.WithError(err).WithField("id", p.ID).Warn("Failed to resolve wheel cycle")
		return v
	}
	v.WheelCycleNumber = cycle.Index
	v.IsWheelComplete = cycle.Complete
	return v
}

func (s *Server) positionViews(ps []*models.Position, idx *chain.Index, today time.Time) []PositionView {
	views := make([]PositionView, 0, len(ps))
	for _, p := range ps {
		views = append(views, s.positionView(p, idx, today))
	}
	return views
}

func spreadView(sp *models.CreditSpread, today time.Time) SpreadView {
	return SpreadView{CreditSpread: sp, Metrics: models.ComputeSpreadMetrics(sp, today)}
}

// positionRequest is the writable subset of a position.
type positionRequest struct {
	Symbol             string              `json:"stock"`
	Type               models.OptionType   `json:"type"`
	Strike             decimal.Decimal     `json:"strike"`
	Premium            decimal.Decimal     `json:"premium"`
	NumContracts       int                 `json:"num_contracts"`
	OpenFees           decimal.Decimal     `json:"open_fees"`
	CloseFees          decimal.NullDecimal `json:"close_fees"`
	OpenDate           Date                `json:"open_date"`
	Expiration         Date                `json:"expiration"`
	CloseDate          *Date               `json:"close_date"`
	Assigned           models.Assignment   `json:"assigned"`
	PremiumPaidToClose decimal.NullDecimal `json:"premium_paid_to_close"`
	CurrentOptionPrice decimal.NullDecimal `json:"current_option_price"`
	EntryPrice         decimal.NullDecimal `json:"entry_price"`
	RelatedTo          string              `json:"related_to"`
	WheelCycleName     string              `json:"wheel_cycle_name"`
	Notes              string              `json:"notes"`
}

// applyTo overwrites p's editable fields. The close reason survives unless
// the close fields themselves change; edited closures count as manual.
func (req *positionRequest) applyTo(p *models.Position) {
	closeDate := req.CloseDate.ptr()
	if closeDate != nil {
		d := market.DateOf(*closeDate)
		closeDate = &d
	}
	closeChanged := !sameDate(p.CloseDate, closeDate) ||
		!sameNull(p.PremiumPaidToClose, req.PremiumPaidToClose) ||
		!sameNull(p.CloseFees, req.CloseFees)

	p.Symbol = req.Symbol
	p.Type = req.Type
	p.Strike = req.Strike
	p.Premium = req.Premium
	p.NumContracts = req.NumContracts
	p.OpenFees = req.OpenFees
	p.CloseFees = req.CloseFees
	p.OpenDate = req.OpenDate.Time
	p.Expiration = req.Expiration.Time
	p.CloseDate = closeDate
	p.Assigned = req.Assigned
	p.PremiumPaidToClose = req.PremiumPaidToClose
	p.CurrentOptionPrice = req.CurrentOptionPrice
	p.EntryPrice = req.EntryPrice
	p.RelatedTo = req.RelatedTo
	p.WheelCycleName = req.WheelCycleName
	p.Notes = req.Notes

	if closeChanged {
		p.CloseReason = models.CloseReasonNone
	}
}

// spreadRequest is the writable subset of a credit spread.
type spreadRequest struct {
	Symbol            string              `json:"stock"`
	Type              models.SpreadType   `json:"type"`
	ShortStrike       decimal.Decimal     `json:"short_strike"`
	LongStrike        decimal.Decimal     `json:"long_strike"`
	ShortPremium      decimal.Decimal     `json:"short_premium"`
	LongPremium       decimal.Decimal     `json:"long_premium"`
	NumContracts      int                 `json:"num_contracts"`
	OpenFees          decimal.Decimal     `json:"open_fees"`
	CloseFees         decimal.NullDecimal `json:"close_fees"`
	OpenDate          Date                `json:"open_date"`
	Expiration        Date                `json:"expiration"`
	CloseDate         *Date               `json:"close_date"`
	LongClosePremium  decimal.NullDecimal `json:"long_close_premium"`
	ShortClosePremium decimal.NullDecimal `json:"short_close_premium"`
	CurrentLongPrice  decimal.NullDecimal `json:"current_long_price"`
	CurrentShortPrice decimal.NullDecimal `json:"current_short_price"`
	Notes             string              `json:"notes"`
}

func (req *spreadRequest) applyTo(sp *models.CreditSpread) {
	sp.Symbol = req.Symbol
	sp.Type = req.Type
	sp.ShortStrike = req.ShortStrike
	sp.LongStrike = req.LongStrike
	sp.ShortPremium = req.ShortPremium
	sp.LongPremium = req.LongPremium
	sp.NumContracts = req.NumContracts
	sp.OpenFees = req.OpenFees
	sp.CloseFees = req.CloseFees
	sp.OpenDate = req.OpenDate.Time
	sp.Expiration = req.Expiration.Time
	sp.CloseDate = req.CloseDate.ptr()
	sp.LongClosePremium = req.LongClosePremium
	sp.ShortClosePremium = req.ShortClosePremium
	sp.CurrentLongPrice = req.CurrentLongPrice
	sp.CurrentShortPrice = req.CurrentShortPrice
	sp.Notes = req.Notes
}

// closeRequest closes a position by hand. A missing date means today.
type closeRequest struct {
	CloseDate          *Date             `json:"close_date"`
	PremiumPaidToClose decimal.Decimal   `json:"premium_paid_to_close"`
	CloseFees          decimal.Decimal   `json:"close_fees"`
	Assigned           models.Assignment `json:"assigned"`
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameNull(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}

func filterByStock[T any](items []T, stock string, symbol func(T) string) []T {
	if stock == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if symbol(it) == stock {
			out = append(out, it)
		}
	}
	return out
}

func logFields(owner, id string) logrus.Fields {
	return logrus.Fields{"owner": owner, "id": id}
}
