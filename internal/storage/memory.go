package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/wheel_ledger/internal/chain"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// StorageData is the full record set held in memory and written to disk.
type StorageData struct {
	Positions   map[string]*models.Position     `json:"positions"`
	Spreads     map[string]*models.CreditSpread `json:"spreads"`
	LastUpdated time.Time                       `json:"last_updated"`
}

func newStorageData() *StorageData {
	return &StorageData{
		Positions: make(map[string]*models.Position),
		Spreads:   make(map[string]*models.CreditSpread),
	}
}

// memStore implements Interface over StorageData. After every mutation it
// calls persist with the lock held; a persist failure rolls the mutation back.
type memStore struct {
	mu      sync.RWMutex
	data    *StorageData
	now     func() time.Time
	persist func(id string) error
}

func newMemStore(persist func(id string) error) *memStore {
	return &memStore{
		data:    newStorageData(),
		now:     func() time.Time { return time.Now().UTC() },
		persist: persist,
	}
}

// ownerIndex must be called with the lock held.
func (m *memStore) ownerIndex(owner string) *chain.Index {
	var ps []*models.Position
	for _, p := range m.data.Positions {
		if p.Owner == owner {
			ps = append(ps, p)
		}
	}
	return chain.NewIndex(ps)
}

// commitPosition stores p (nil deletes id) and persists, restoring the
// previous record if persisting fails. Must be called with the lock held.
// checkPosition builds the owner index only when rec sets a new link.
func (m *memStore) checkPosition(rec, stored *models.Position) error {
	var lookup chain.Lookup
	if LinkChanged(stored, rec) {
		lookup = m.ownerIndex(rec.Owner)
	}
	return CheckPosition(rec, stored, lookup)
}

func (m *memStore) commitPosition(id string, p *models.Position) error {
	prev, existed := m.data.Positions[id]
	if p == nil {
		delete(m.data.Positions, id)
	} else {
		m.data.Positions[id] = p
	}
	if err := m.persist(id); err != nil {
		if existed {
			m.data.Positions[id] = prev
		} else {
			delete(m.data.Positions, id)
		}
		return err
	}
	return nil
}

func (m *memStore) commitSpread(id string, s *models.CreditSpread) error {
	prev, existed := m.data.Spreads[id]
	if s == nil {
		delete(m.data.Spreads, id)
	} else {
		m.data.Spreads[id] = s
	}
	if err := m.persist(id); err != nil {
		if existed {
			m.data.Spreads[id] = prev
		} else {
			delete(m.data.Spreads, id)
		}
		return err
	}
	return nil
}

func (m *memStore) CreatePosition(ctx context.Context, p *models.Position) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := PreparePositionCreate(p, m.now())
	if _, exists := m.data.Positions[rec.ID]; exists {
		return nil, fmt.Errorf("position %s already exists", rec.ID)
	}
	if err := m.checkPosition(rec, nil); err != nil {
		return nil, err
	}
	if err := m.commitPosition(rec.ID, rec); err != nil {
		return nil, fmt.Errorf("failed to save position %s: %w", rec.ID, err)
	}
	return rec.Clone(), nil
}

func (m *memStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.data.Positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *memStore) ListPositions(ctx context.Context, owner string) ([]*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Position, 0, len(m.data.Positions))
	for _, p := range m.data.Positions {
		if owner == "" || p.Owner == owner {
			out = append(out, p.Clone())
		}
	}
	SortPositions(out)
	return out, nil
}

func (m *memStore) Successors(ctx context.Context, id string) ([]*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Position
	for _, p := range m.data.Positions {
		if p.RelatedTo == id {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *memStore) UpdatePosition(ctx context.Context, p *models.Position) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.data.Positions[p.ID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", p.ID, ErrNotFound)
	}
	rec := PreparePositionUpdate(stored, p, m.now())
	if err := m.checkPosition(rec, stored); err != nil {
		return nil, err
	}
	if err := m.commitPosition(rec.ID, rec); err != nil {
		return nil, fmt.Errorf("failed to save position %s: %w", rec.ID, err)
	}
	return rec.Clone(), nil
}

func (m *memStore) UpdatePositionFunc(ctx context.Context, id string, fn UpdateFunc) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.data.Positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	work := stored.Clone()
	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if !changed {
		return stored.Clone(), nil
	}
	rec := PreparePositionUpdate(stored, work, m.now())
	if err := m.checkPosition(rec, stored); err != nil {
		return nil, err
	}
	if err := m.commitPosition(rec.ID, rec); err != nil {
		return nil, fmt.Errorf("failed to save position %s: %w", rec.ID, err)
	}
	return rec.Clone(), nil
}

func (m *memStore) DeletePosition(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.Positions[id]; !ok {
		return fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	for _, p := range m.data.Positions {
		if p.RelatedTo == id {
			return fmt.Errorf("position %s followed by %s: %w", id, p.ID, ErrPositionReferenced)
		}
	}
	if err := m.commitPosition(id, nil); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", id, err)
	}
	return nil
}

func (m *memStore) CreateSpread(ctx context.Context, s *models.CreditSpread) (*models.CreditSpread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := PrepareSpreadCreate(s, m.now())
	if _, exists := m.data.Spreads[rec.ID]; exists {
		return nil, fmt.Errorf("spread %s already exists", rec.ID)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := m.commitSpread(rec.ID, rec); err != nil {
		return nil, fmt.Errorf("failed to save spread %s: %w", rec.ID, err)
	}
	return rec.Clone(), nil
}

func (m *memStore) GetSpread(ctx context.Context, id string) (*models.CreditSpread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.data.Spreads[id]
	if !ok {
		return nil, fmt.Errorf("spread %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *memStore) ListSpreads(ctx context.Context, owner string) ([]*models.CreditSpread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.CreditSpread, 0, len(m.data.Spreads))
	for _, s := range m.data.Spreads {
		if owner == "" || s.Owner == owner {
			out = append(out, s.Clone())
		}
	}
	SortSpreads(out)
	return out, nil
}

func (m *memStore) UpdateSpread(ctx context.Context, s *models.CreditSpread) (*models.CreditSpread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.data.Spreads[s.ID]
	if !ok {
		return nil, fmt.Errorf("spread %s: %w", s.ID, ErrNotFound)
	}
	rec := PrepareSpreadUpdate(stored, s, m.now())
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := m.commitSpread(rec.ID, rec); err != nil {
		return nil, fmt.Errorf("failed to save spread %s: %w", rec.ID, err)
	}
	return rec.Clone(), nil
}

func (m *memStore) DeleteSpread(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data.Spreads[id]; !ok {
		return fmt.Errorf("spread %s: %w", id, ErrNotFound)
	}
	if err := m.commitSpread(id, nil); err != nil {
		return fmt.Errorf("failed to delete spread %s: %w", id, err)
	}
	return nil
}
