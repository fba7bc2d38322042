package storage

import (
	"context"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// UpdateFunc mutates a copy of a stored position. It reports whether the copy
// changed; unchanged copies are not written back.
type UpdateFunc func(p *models.Position) (changed bool, err error)

// Interface defines the contract for position and spread persistence.
//
// Implementations must be safe for concurrent use. Returned records are copies;
// mutating them does not affect stored state until written back.
type Interface interface {
	// Positions
	CreatePosition(ctx context.Context, p *models.Position) (*models.Position, error)
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	// ListPositions returns an owner's positions, newest open date first.
	// An empty owner lists every account.
	ListPositions(ctx context.Context, owner string) ([]*models.Position, error)
	// Successors returns positions whose RelatedTo is id.
	Successors(ctx context.Context, id string) ([]*models.Position, error)
	UpdatePosition(ctx context.Context, p *models.Position) (*models.Position, error)
	// UpdatePositionFunc applies fn to the current record and persists the
	// result without interleaving another write to the same record.
	UpdatePositionFunc(ctx context.Context, id string, fn UpdateFunc) (*models.Position, error)
	// DeletePosition fails with ErrPositionReferenced while successors exist.
	DeletePosition(ctx context.Context, id string) error

	// Credit spreads
	CreateSpread(ctx context.Context, s *models.CreditSpread) (*models.CreditSpread, error)
	GetSpread(ctx context.Context, id string) (*models.CreditSpread, error)
	ListSpreads(ctx context.Context, owner string) ([]*models.CreditSpread, error)
	UpdateSpread(ctx context.Context, s *models.CreditSpread) (*models.CreditSpread, error)
	DeleteSpread(ctx context.Context, id string) error
}

// NewStorage creates the file-backed implementation.
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
