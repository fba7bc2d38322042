package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheel_ledger/internal/chain"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPut(owner string) *models.Position {
	return &models.Position{
		Owner:        owner,
		Symbol:       "msft",
		Type:         models.OptionPut,
		Strike:       dec("400"),
		Premium:      dec("4.10"),
		NumContracts: 1,
		OpenFees:     dec("0.65"),
		OpenDate:     time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Expiration:   time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
	}
}

func newSpread(owner string) *models.CreditSpread {
	return &models.CreditSpread{
		Owner:        owner,
		Symbol:       "qqq",
		Type:         models.BearCallSpread,
		ShortStrike:  dec("520"),
		LongStrike:   dec("525"),
		ShortPremium: dec("1.80"),
		LongPremium:  dec("0.90"),
		NumContracts: 2,
		OpenFees:     dec("2.60"),
		OpenDate:     time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Expiration:   time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC),
	}
}

// TestInterface runs the same contract against every implementation.
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("JSONStorage", func(t *testing.T) {
		s, err := NewJSONStorage(filepath.Join(t.TempDir(), "ledger.json"))
		require.NoError(t, err)
		testInterface(t, s)
	})
}

func testInterface(t *testing.T, store Interface) {
	ctx := context.Background()

	put, err := store.CreatePosition(ctx, newPut("alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, put.ID)
	assert.Equal(t, "MSFT", put.Symbol)
	assert.Equal(t, models.AssignedNo, put.Assigned)
	assert.False(t, put.CreatedAt.IsZero())

	// Returned records are copies.
	put.Notes = "mutated"
	got, err := store.GetPosition(ctx, put.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)

	call := newPut("alice")
	call.Type = models.OptionCall
	call.RelatedTo = put.ID
	call, err = store.CreatePosition(ctx, call)
	require.NoError(t, err)

	succ, err := store.Successors(ctx, put.ID)
	require.NoError(t, err)
	require.Len(t, succ, 1)
	assert.Equal(t, call.ID, succ[0].ID)

	_, err = store.CreatePosition(ctx, newPut("bob"))
	require.NoError(t, err)

	alice, err := store.ListPositions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2)
	all, err := store.ListPositions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Links must stay inside the account and acyclic.
	foreign := newPut("bob")
	foreign.RelatedTo = put.ID
	_, err = store.CreatePosition(ctx, foreign)
	assert.True(t, models.IsValidationError(err))

	loop, err := store.GetPosition(ctx, put.ID)
	require.NoError(t, err)
	loop.RelatedTo = call.ID
	_, err = store.UpdatePosition(ctx, loop)
	var cycErr *chain.CycleIntegrityError
	assert.ErrorAs(t, err, &cycErr)

	invalid := newPut("alice")
	invalid.Strike = decimal.Zero
	_, err = store.CreatePosition(ctx, invalid)
	assert.True(t, models.IsValidationError(err))

	// Updates keep identity fields.
	edit, err := store.GetPosition(ctx, call.ID)
	require.NoError(t, err)
	edit.Owner = "mallory"
	edit.Notes = "rolled up"
	updated, err := store.UpdatePosition(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Owner)
	assert.Equal(t, call.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "rolled up", updated.Notes)

	// Functional updates.
	closed, err := store.UpdatePositionFunc(ctx, put.ID, func(p *models.Position) (bool, error) {
		return true, p.AutoClose()
	})
	require.NoError(t, err)
	assert.True(t, closed.IsAutoClosed())

	unchanged, err := store.UpdatePositionFunc(ctx, put.ID, func(p *models.Position) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, closed.UpdatedAt, unchanged.UpdatedAt)

	boom := errors.New("boom")
	_, err = store.UpdatePositionFunc(ctx, put.ID, func(p *models.Position) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.UpdatePositionFunc(ctx, "missing", func(p *models.Position) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, ErrNotFound)

	// Referenced positions cannot be deleted.
	assert.ErrorIs(t, store.DeletePosition(ctx, put.ID), ErrPositionReferenced)
	require.NoError(t, store.DeletePosition(ctx, call.ID))
	require.NoError(t, store.DeletePosition(ctx, put.ID))
	_, err = store.GetPosition(ctx, put.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeletePosition(ctx, put.ID), ErrNotFound)

	// Spreads.
	spread, err := store.CreateSpread(ctx, newSpread("alice"))
	require.NoError(t, err)
	assert.Equal(t, "QQQ", spread.Symbol)

	spread.Notes = "hedge"
	spread, err = store.UpdateSpread(ctx, spread)
	require.NoError(t, err)
	assert.Equal(t, "hedge", spread.Notes)

	spreads, err := store.ListSpreads(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, spreads, 1)
	spreads, err = store.ListSpreads(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, spreads)

	bad := newSpread("alice")
	bad.LongStrike = bad.ShortStrike
	_, err = store.CreateSpread(ctx, bad)
	assert.True(t, models.IsValidationError(err))

	require.NoError(t, store.DeleteSpread(ctx, spread.ID))
	_, err = store.GetSpread(ctx, spread.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPositions_NewestOpenDateFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMockStorage()

	older := newPut("alice")
	older.OpenDate = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	newer := newPut("alice")
	newer.OpenDate = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	newer.Expiration = time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)

	o, err := store.CreatePosition(ctx, older)
	require.NoError(t, err)
	n, err := store.CreatePosition(ctx, newer)
	require.NoError(t, err)

	list, err := store.ListPositions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, n.ID, list[0].ID)
	assert.Equal(t, o.ID, list[1].ID)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockStorage().ListPositions(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
