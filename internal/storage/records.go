package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/wheel_ledger/internal/chain"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// PreparePositionCreate assigns identity and timestamps to a new position and
// validates it. Backends call it before inserting.
func PreparePositionCreate(p *models.Position, now time.Time) *models.Position {
	c := p.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Normalize()
	return c
}

// PreparePositionUpdate carries the immutable fields of stored onto next.
func PreparePositionUpdate(stored, next *models.Position, now time.Time) *models.Position {
	c := next.Clone()
	c.ID = stored.ID
	c.Owner = stored.Owner
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = now
	c.Normalize()
	return c
}

// LinkChanged reports whether writing p over stored sets a new related_to
// link. stored is nil for creates.
func LinkChanged(stored, p *models.Position) bool {
	if p.RelatedTo == "" {
		return false
	}
	return stored == nil || stored.RelatedTo != p.RelatedTo
}

// CheckPosition validates p and, when the write sets a new related_to link,
// checks it against the other positions of the same account. An unchanged
// link is not rechecked, so records whose predecessor went missing can still
// be closed or repriced. lookup may be nil when LinkChanged is false.
func CheckPosition(p, stored *models.Position, lookup chain.Lookup) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !LinkChanged(stored, p) {
		return nil
	}
	if err := chain.ValidateLink(p.ID, p.RelatedTo, lookup); err != nil {
		return err
	}
	prev, _ := lookup.GetPosition(p.RelatedTo)
	if prev.Owner != p.Owner {
		return &models.ValidationError{
			Field:   "related_to",
			Message: fmt.Sprintf("position %s belongs to another account", p.RelatedTo),
		}
	}
	return nil
}

// PrepareSpreadCreate assigns identity and timestamps to a new spread.
func PrepareSpreadCreate(s *models.CreditSpread, now time.Time) *models.CreditSpread {
	c := s.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Normalize()
	return c
}

// PrepareSpreadUpdate carries the immutable fields of stored onto next.
func PrepareSpreadUpdate(stored, next *models.CreditSpread, now time.Time) *models.CreditSpread {
	c := next.Clone()
	c.ID = stored.ID
	c.Owner = stored.Owner
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = now
	c.Normalize()
	return c
}

// SortPositions orders positions newest open date first, then by creation.
func SortPositions(ps []*models.Position) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if !a.OpenDate.Equal(b.OpenDate) {
			return a.OpenDate.After(b.OpenDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortSpreads orders spreads newest open date first, then by creation.
func SortSpreads(ss []*models.CreditSpread) {
	sort.SliceStable(ss, func(i, j int) bool {
		a, b := ss[i], ss[j]
		if !a.OpenDate.Equal(b.OpenDate) {
			return a.OpenDate.After(b.OpenDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
