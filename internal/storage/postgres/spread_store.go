package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

const spreadSelectCols = `id, owner, stock, type, short_strike, long_strike,
	short_premium, long_premium, num_contracts, open_fees, close_fees,
	open_date, expiration, close_date, long_close_premium, short_close_premium,
	current_long_price, current_short_price, notes, created_at, updated_at`

func scanSpread(row pgx.Row) (*models.CreditSpread, error) {
	var s models.CreditSpread
	var typ string
	err := row.Scan(
		&s.ID, &s.Owner, &s.Symbol, &typ, &s.ShortStrike, &s.LongStrike,
		&s.ShortPremium, &s.LongPremium, &s.NumContracts, &s.OpenFees, &s.CloseFees,
		&s.OpenDate, &s.Expiration, &s.CloseDate, &s.LongClosePremium, &s.ShortClosePremium,
		&s.CurrentLongPrice, &s.CurrentShortPrice, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Type = models.SpreadType(typ)
	return &s, nil
}

func spreadArgs(s *models.CreditSpread) []any {
	return []any{
		s.ID, s.Owner, s.Symbol, string(s.Type), s.ShortStrike, s.LongStrike,
		s.ShortPremium, s.LongPremium, s.NumContracts, s.OpenFees, s.CloseFees,
		s.OpenDate, s.Expiration, s.CloseDate, s.LongClosePremium, s.ShortClosePremium,
		s.CurrentLongPrice, s.CurrentShortPrice, s.Notes, s.CreatedAt, s.UpdatedAt,
	}
}

// CreateSpread inserts a new credit spread.
func (st *Store) CreateSpread(ctx context.Context, s *models.CreditSpread) (*models.CreditSpread, error) {
	rec := storage.PrepareSpreadCreate(s, st.now())
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	const query = `
		INSERT INTO credit_spreads (
			id, owner, stock, type, short_strike, long_strike,
			short_premium, long_premium, num_contracts, open_fees, close_fees,
			open_date, expiration, close_date, long_close_premium, short_close_premium,
			current_long_price, current_short_price, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)`
	if _, err := st.pool.Exec(ctx, query, spreadArgs(rec)...); err != nil {
		return nil, fmt.Errorf("postgres: create spread %s: %w", rec.ID, err)
	}
	return rec, nil
}

func getSpread(ctx context.Context, q querier, id string, forUpdate bool) (*models.CreditSpread, error) {
	query := `SELECT ` + spreadSelectCols + ` FROM credit_spreads WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSpread(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("spread %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get spread %s: %w", id, err)
	}
	return s, nil
}

// GetSpread returns a single credit spread.
func (st *Store) GetSpread(ctx context.Context, id string) (*models.CreditSpread, error) {
	return getSpread(ctx, st.pool, id, false)
}

// ListSpreads returns owner's spreads, or all spreads when owner is empty.
func (st *Store) ListSpreads(ctx context.Context, owner string) ([]*models.CreditSpread, error) {
	query := `SELECT ` + spreadSelectCols + ` FROM credit_spreads`
	var args []any
	if owner != "" {
		query += ` WHERE owner = $1`
		args = append(args, owner)
	}
	query += ` ORDER BY open_date DESC, created_at DESC, id`

	rows, err := st.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list spreads: %w", err)
	}
	defer rows.Close()

	var out []*models.CreditSpread
	for rows.Next() {
		s, err := scanSpread(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan spread: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateSpread replaces every mutable field of a spread.
func (st *Store) UpdateSpread(ctx context.Context, s *models.CreditSpread) (*models.CreditSpread, error) {
	var rec *models.CreditSpread
	err := st.inTx(ctx, func(tx pgx.Tx) error {
		stored, err := getSpread(ctx, tx, s.ID, true)
		if err != nil {
			return err
		}
		rec = storage.PrepareSpreadUpdate(stored, s, st.now())
		if err := rec.Validate(); err != nil {
			return err
		}
		const query = `
			UPDATE credit_spreads SET
				stock               = $3,
				type                = $4,
				short_strike        = $5,
				long_strike         = $6,
				short_premium       = $7,
				long_premium        = $8,
				num_contracts       = $9,
				open_fees           = $10,
				close_fees          = $11,
				open_date           = $12,
				expiration          = $13,
				close_date          = $14,
				long_close_premium  = $15,
				short_close_premium = $16,
				current_long_price  = $17,
				current_short_price = $18,
				notes               = $19,
				updated_at          = $21
			WHERE id = $1 AND owner = $2 AND created_at = $20`
		if _, err := tx.Exec(ctx, query, spreadArgs(rec)...); err != nil {
			return fmt.Errorf("postgres: update spread %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteSpread removes a credit spread.
func (st *Store) DeleteSpread(ctx context.Context, id string) error {
	tag, err := st.pool.Exec(ctx, `DELETE FROM credit_spreads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete spread %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("spread %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
