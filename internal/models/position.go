package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
)

// sharesPerContract is the equity option multiplier.
const sharesPerContract = 100

// OptionType is the right of a single-leg wheel contract.
type OptionType string

const (
	// OptionPut is a cash-secured put
	OptionPut OptionType = "P"
	// OptionCall is a covered call
	OptionCall OptionType = "C"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == OptionPut || t == OptionCall
}

// Assignment records whether shares changed hands at expiration.
type Assignment string

const (
	AssignedYes Assignment = "Yes"
	AssignedNo  Assignment = "No"
)

// CloseReason distinguishes a trader closure from an automatic expiry.
// The numeric zero-cost close fields alone cannot tell them apart.
type CloseReason string

const (
	CloseReasonNone            CloseReason = ""
	CloseReasonManual          CloseReason = "manual"
	CloseReasonAutomaticExpiry CloseReason = "automatic_expiry"
)

// Position is a single-leg option sold as part of the wheel strategy.
type Position struct {
	ID                 string              `json:"id"`
	Owner              string              `json:"owner"`
	Symbol             string              `json:"stock"`
	Type               OptionType          `json:"type"`
	Strike             decimal.Decimal     `json:"strike"`
	Premium            decimal.Decimal     `json:"premium"`
	NumContracts       int                 `json:"num_contracts"`
	OpenFees           decimal.Decimal     `json:"open_fees"`
	CloseFees          decimal.NullDecimal `json:"close_fees"`
	OpenDate           time.Time           `json:"open_date"`
	Expiration         time.Time           `json:"expiration"`
	CloseDate          *time.Time          `json:"close_date,omitempty"`
	Assigned           Assignment          `json:"assigned"`
	PremiumPaidToClose decimal.NullDecimal `json:"premium_paid_to_close"`
	CloseReason        CloseReason         `json:"close_reason,omitempty"`
	CurrentOptionPrice decimal.NullDecimal `json:"current_option_price"`
	EntryPrice         decimal.NullDecimal `json:"entry_price"`
	RelatedTo          string              `json:"related_to,omitempty"`
	WheelCycleName     string              `json:"wheel_cycle_name,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// IsOpen reports whether the position has no close date.
func (p *Position) IsOpen() bool {
	return p.CloseDate == nil
}

// State returns the lifecycle state derived from the close date.
func (p *Position) State() PositionState {
	if p.IsOpen() {
		return StateOpen
	}
	return StateClosed
}

// IsAssigned reports whether the contract was assigned or called away.
func (p *Position) IsAssigned() bool {
	return p.Assigned == AssignedYes
}

// Clone returns a copy that shares no mutable memory with p.
func (p *Position) Clone() *Position {
	c := *p
	if p.CloseDate != nil {
		d := *p.CloseDate
		c.CloseDate = &d
	}
	return &c
}

func (p *Position) transition(to PositionState, condition string) error {
	if err := NewStateMachineFromState(p.State()).Transition(to, condition); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}
	return nil
}

// Close records a trader-initiated closure.
func (p *Position) Close(date time.Time, paidToClose, closeFees decimal.Decimal, assigned Assignment) error {
	if err := p.transition(StateClosed, ConditionManualClose); err != nil {
		return err
	}
	d := market.DateOf(date)
	if d.Before(market.DateOf(p.OpenDate)) {
		return invalid("close_date", "must not be before open date")
	}
	if assigned == "" {
		assigned = AssignedNo
	}
	p.CloseDate = &d
	p.PremiumPaidToClose = decimal.NewNullDecimal(paidToClose)
	p.CloseFees = decimal.NewNullDecimal(closeFees)
	p.Assigned = assigned
	p.CloseReason = CloseReasonManual
	return nil
}

// AutoClose closes an expired position at its expiration date with zero
// close cost and zero close fees.
func (p *Position) AutoClose() error {
	if err := p.transition(StateClosed, ConditionExpired); err != nil {
		return err
	}
	exp := market.DateOf(p.Expiration)
	p.CloseDate = &exp
	p.PremiumPaidToClose = decimal.NewNullDecimal(decimal.Zero)
	p.CloseFees = decimal.NewNullDecimal(decimal.Zero)
	p.CloseReason = CloseReasonAutomaticExpiry
	return nil
}

// IsAutoClosed reports whether the position carries the automatic-expiry
// closure tag together with the zero-cost close fields it was given.
func (p *Position) IsAutoClosed() bool {
	if p.IsOpen() || p.CloseReason != CloseReasonAutomaticExpiry {
		return false
	}
	return p.PremiumPaidToClose.Valid && p.PremiumPaidToClose.Decimal.IsZero() &&
		p.CloseFees.Valid && p.CloseFees.Decimal.IsZero()
}

// Reopen reverses an automatic expiry closure.
func (p *Position) Reopen() error {
	if err := p.transition(StateOpen, ConditionExpirationExtended); err != nil {
		return err
	}
	if !p.IsAutoClosed() {
		return fmt.Errorf("position %s: %w", p.ID, ErrNotAutoClosed)
	}
	p.CloseDate = nil
	p.PremiumPaidToClose = decimal.NullDecimal{}
	p.CloseFees = decimal.NullDecimal{}
	p.CloseReason = CloseReasonNone
	return nil
}

// Normalize canonicalizes free-form input fields before validation.
func (p *Position) Normalize() {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.OpenDate = market.DateOf(p.OpenDate)
	p.Expiration = market.DateOf(p.Expiration)
	if p.CloseDate != nil {
		d := market.DateOf(*p.CloseDate)
		p.CloseDate = &d
		if p.CloseReason == CloseReasonNone {
			p.CloseReason = CloseReasonManual
		}
	}
	if p.Assigned == "" {
		p.Assigned = AssignedNo
	}
}

// Validate checks the record's attribute ranges and lifecycle invariants.
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return invalid("stock", "ticker is required")
	}
	if !p.Type.Valid() {
		return invalid("type", "must be P or C (got %q)", p.Type)
	}
	if !p.Strike.IsPositive() {
		return invalid("strike", "must be positive (got %s)", p.Strike)
	}
	if p.Premium.IsNegative() {
		return invalid("premium", "must not be negative (got %s)", p.Premium)
	}
	if p.NumContracts < 1 {
		return invalid("num_contracts", "must be at least 1 (got %d)", p.NumContracts)
	}
	if p.OpenFees.IsNegative() {
		return invalid("open_fees", "must not be negative")
	}
	if p.Assigned != AssignedYes && p.Assigned != AssignedNo {
		return invalid("assigned", "must be Yes or No (got %q)", p.Assigned)
	}
	if p.OpenDate.IsZero() {
		return invalid("open_date", "is required")
	}
	if p.Expiration.Before(p.OpenDate) {
		return invalid("expiration", "must not be before open date")
	}
	if p.RelatedTo != "" && p.RelatedTo == p.ID {
		return invalid("related_to", "position cannot follow itself")
	}
	for field, v := range map[string]decimal.NullDecimal{
		"close_fees":            p.CloseFees,
		"premium_paid_to_close": p.PremiumPaidToClose,
		"current_option_price":  p.CurrentOptionPrice,
		"entry_price":           p.EntryPrice,
	} {
		if v.Valid && v.Decimal.IsNegative() {
			return invalid(field, "must not be negative")
		}
	}

	if p.IsOpen() {
		if p.PremiumPaidToClose.Valid || p.CloseFees.Valid || p.CloseReason != CloseReasonNone {
			return invalid("close_date", "close fields require a close date")
		}
		return nil
	}
	if p.CloseDate.Before(p.OpenDate) {
		return invalid("close_date", "must not be before open date")
	}
	if !p.PremiumPaidToClose.Valid {
		return invalid("premium_paid_to_close", "is required when close_date is provided")
	}
	if p.CloseReason != CloseReasonManual && p.CloseReason != CloseReasonAutomaticExpiry {
		return invalid("close_reason", "unknown reason %q", p.CloseReason)
	}
	return nil
}
