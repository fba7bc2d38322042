package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eddiefleurent/wheel_ledger/internal/chain"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

// foreignKeyViolation is the SQLSTATE raised when a referenced row is deleted.
const foreignKeyViolation = "23503"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Interface using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

var _ storage.Interface = (*Store)(nil)

const positionSelectCols = `id, owner, stock, type, strike, premium, num_contracts,
	open_fees, close_fees, open_date, expiration, close_date, assigned,
	premium_paid_to_close, close_reason, current_option_price, entry_price,
	COALESCE(related_to, ''), wheel_cycle_name, notes, created_at, updated_at`

func scanPosition(row pgx.Row) (*models.Position, error) {
	var p models.Position
	var typ, assigned, reason string
	err := row.Scan(
		&p.ID, &p.Owner, &p.Symbol, &typ, &p.Strike, &p.Premium, &p.NumContracts,
		&p.OpenFees, &p.CloseFees, &p.OpenDate, &p.Expiration, &p.CloseDate, &assigned,
		&p.PremiumPaidToClose, &reason, &p.CurrentOptionPrice, &p.EntryPrice,
		&p.RelatedTo, &p.WheelCycleName, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = models.OptionType(typ)
	p.Assigned = models.Assignment(assigned)
	p.CloseReason = models.CloseReason(reason)
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]*models.Position, error) {
	defer rows.Close()
	var out []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func positionArgs(p *models.Position) []any {
	return []any{
		p.ID, p.Owner, p.Symbol, string(p.Type), p.Strike, p.Premium, p.NumContracts,
		p.OpenFees, p.CloseFees, p.OpenDate, p.Expiration, p.CloseDate, string(p.Assigned),
		p.PremiumPaidToClose, string(p.CloseReason), p.CurrentOptionPrice, p.EntryPrice,
		p.RelatedTo, p.WheelCycleName, p.Notes, p.CreatedAt, p.UpdatedAt,
	}
}

func getPosition(ctx context.Context, q querier, id string, forUpdate bool) (*models.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPosition(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("position %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ownerIndex loads every position of owner for link validation.
func ownerIndex(ctx context.Context, q querier, owner string) (*chain.Index, error) {
	rows, err := q.Query(ctx, `SELECT `+positionSelectCols+` FROM positions WHERE owner = $1`, owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", owner, err)
	}
	ps, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", owner, err)
	}
	return chain.NewIndex(ps), nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// CreatePosition inserts a new position.
func (s *Store) CreatePosition(ctx context.Context, p *models.Position) (*models.Position, error) {
	rec := storage.PreparePositionCreate(p, s.now())
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := checkPosition(ctx, tx, rec, nil); err != nil {
			return err
		}
		const query = `
			INSERT INTO positions (
				id, owner, stock, type, strike, premium, num_contracts,
				open_fees, close_fees, open_date, expiration, close_date, assigned,
				premium_paid_to_close, close_reason, current_option_price, entry_price,
				related_to, wheel_cycle_name, notes, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7,
				$8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17,
				NULLIF($18, ''), $19, $20, $21, $22
			)`
		if _, err := tx.Exec(ctx, query, positionArgs(rec)...); err != nil {
			return fmt.Errorf("postgres: create position %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetPosition returns a single position.
func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return getPosition(ctx, s.pool, id, false)
}

// ListPositions returns owner's positions, or all positions when owner is empty.
func (s *Store) ListPositions(ctx context.Context, owner string) ([]*models.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions`
	var args []any
	if owner != "" {
		query += ` WHERE owner = $1`
		args = append(args, owner)
	}
	query += ` ORDER BY open_date DESC, created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	ps, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return ps, nil
}

// Successors returns the positions that follow id in a wheel cycle.
func (s *Store) Successors(ctx context.Context, id string) ([]*models.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE related_to = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: successors of %s: %w", id, err)
	}
	ps, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan successors of %s: %w", id, err)
	}
	return ps, nil
}

// checkPosition validates rec, loading the owner's positions only when the
// write sets a new related_to link.
func checkPosition(ctx context.Context, q querier, rec, stored *models.Position) error {
	var lookup chain.Lookup
	if storage.LinkChanged(stored, rec) {
		ix, err := ownerIndex(ctx, q, rec.Owner)
		if err != nil {
			return err
		}
		lookup = ix
	}
	return storage.CheckPosition(rec, stored, lookup)
}

func (s *Store) writePosition(ctx context.Context, tx pgx.Tx, stored, rec *models.Position) error {
	if err := checkPosition(ctx, tx, rec, stored); err != nil {
		return err
	}
	const query = `
		UPDATE positions SET
			stock                 = $3,
			type                  = $4,
			strike                = $5,
			premium               = $6,
			num_contracts         = $7,
			open_fees             = $8,
			close_fees            = $9,
			open_date             = $10,
			expiration            = $11,
			close_date            = $12,
			assigned              = $13,
			premium_paid_to_close = $14,
			close_reason          = $15,
			current_option_price  = $16,
			entry_price           = $17,
			related_to            = NULLIF($18, ''),
			wheel_cycle_name      = $19,
			notes                 = $20,
			updated_at            = $22
		WHERE id = $1 AND owner = $2 AND created_at = $21`
	tag, err := tx.Exec(ctx, query, positionArgs(rec)...)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", rec.ID, storage.ErrNotFound)
	}
	return nil
}

// UpdatePosition replaces every mutable field of a position.
func (s *Store) UpdatePosition(ctx context.Context, p *models.Position) (*models.Position, error) {
	var rec *models.Position
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		stored, err := getPosition(ctx, tx, p.ID, true)
		if err != nil {
			return err
		}
		rec = storage.PreparePositionUpdate(stored, p, s.now())
		return s.writePosition(ctx, tx, stored, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdatePositionFunc locks the row, applies fn and writes the result.
func (s *Store) UpdatePositionFunc(ctx context.Context, id string, fn storage.UpdateFunc) (*models.Position, error) {
	var rec *models.Position
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		stored, err := getPosition(ctx, tx, id, true)
		if err != nil {
			return err
		}
		work := stored.Clone()
		changed, err := fn(work)
		if err != nil {
			return err
		}
		if !changed {
			rec = stored
			return nil
		}
		rec = storage.PreparePositionUpdate(stored, work, s.now())
		return s.writePosition(ctx, tx, stored, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeletePosition removes a position no other position follows.
func (s *Store) DeletePosition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("position %s: %w", id, storage.ErrPositionReferenced)
		}
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
