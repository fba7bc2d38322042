package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
)

// SpreadType identifies the vertical credit spread variant.
type SpreadType string

const (
	// BullPutSpread sells a put and buys a lower-strike put
	BullPutSpread SpreadType = "BPS"
	// BearCallSpread sells a call and buys a higher-strike call
	BearCallSpread SpreadType = "BCS"
)

// Valid returns true if the SpreadType is one of the defined constants
func (t SpreadType) Valid() bool {
	return t == BullPutSpread || t == BearCallSpread
}

// CreditSpread is a two-leg vertical spread opened for a net credit.
type CreditSpread struct {
	ID                string              `json:"id"`
	Owner             string              `json:"owner"`
	Symbol            string              `json:"stock"`
	Type              SpreadType          `json:"type"`
	ShortStrike       decimal.Decimal     `json:"short_strike"`
	LongStrike        decimal.Decimal     `json:"long_strike"`
	ShortPremium      decimal.Decimal     `json:"short_premium"`
	LongPremium       decimal.Decimal     `json:"long_premium"`
	NumContracts      int                 `json:"num_contracts"`
	OpenFees          decimal.Decimal     `json:"open_fees"`
	CloseFees         decimal.NullDecimal `json:"close_fees"`
	OpenDate          time.Time           `json:"open_date"`
	Expiration        time.Time           `json:"expiration"`
	CloseDate         *time.Time          `json:"close_date,omitempty"`
	LongClosePremium  decimal.NullDecimal `json:"long_close_premium"`
	ShortClosePremium decimal.NullDecimal `json:"short_close_premium"`
	CurrentLongPrice  decimal.NullDecimal `json:"current_long_price"`
	CurrentShortPrice decimal.NullDecimal `json:"current_short_price"`
	Notes             string              `json:"notes,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// IsOpen reports whether the spread has no close date.
func (s *CreditSpread) IsOpen() bool {
	return s.CloseDate == nil
}

// LegType returns the option right shared by both legs.
func (s *CreditSpread) LegType() OptionType {
	if s.Type == BearCallSpread {
		return OptionCall
	}
	return OptionPut
}

// Clone returns a copy that shares no mutable memory with s.
func (s *CreditSpread) Clone() *CreditSpread {
	c := *s
	if s.CloseDate != nil {
		d := *s.CloseDate
		c.CloseDate = &d
	}
	return &c
}

// Normalize canonicalizes free-form input fields before validation.
func (s *CreditSpread) Normalize() {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.OpenDate = market.DateOf(s.OpenDate)
	s.Expiration = market.DateOf(s.Expiration)
	if s.CloseDate != nil {
		d := market.DateOf(*s.CloseDate)
		s.CloseDate = &d
	}
}

// Validate checks strikes, premiums, counts and date ordering.
func (s *CreditSpread) Validate() error {
	if s.Symbol == "" {
		return invalid("stock", "ticker is required")
	}
	if !s.Type.Valid() {
		return invalid("type", "must be BPS or BCS (got %q)", s.Type)
	}
	if !s.ShortStrike.IsPositive() {
		return invalid("short_strike", "must be positive (got %s)", s.ShortStrike)
	}
	if !s.LongStrike.IsPositive() {
		return invalid("long_strike", "must be positive (got %s)", s.LongStrike)
	}
	if s.ShortStrike.Equal(s.LongStrike) {
		return invalid("long_strike", "must differ from short strike")
	}
	if s.ShortPremium.IsNegative() {
		return invalid("short_premium", "must not be negative")
	}
	if s.LongPremium.IsNegative() {
		return invalid("long_premium", "must not be negative")
	}
	if s.NumContracts < 1 {
		return invalid("num_contracts", "must be at least 1 (got %d)", s.NumContracts)
	}
	if s.OpenFees.IsNegative() {
		return invalid("open_fees", "must not be negative")
	}
	if s.OpenDate.IsZero() {
		return invalid("open_date", "is required")
	}
	if s.Expiration.Before(s.OpenDate) {
		return invalid("expiration", "must not be before open date")
	}
	if s.CloseDate != nil && s.CloseDate.Before(s.OpenDate) {
		return invalid("close_date", "must not be before open date")
	}
	if s.CloseFees.Valid && s.CloseFees.Decimal.IsNegative() {
		return invalid("close_fees", "must not be negative")
	}
	if s.LongClosePremium.Valid && s.LongClosePremium.Decimal.IsNegative() {
		return invalid("long_close_premium", "must not be negative")
	}
	if s.ShortClosePremium.Valid && s.ShortClosePremium.Decimal.IsNegative() {
		return invalid("short_close_premium", "must not be negative")
	}
	return nil
}
