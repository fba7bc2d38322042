package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

func TestJSONStorage_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")

	s, err := NewJSONStorage(path)
	require.NoError(t, err)

	p, err := s.CreatePosition(ctx, newPut("alice"))
	require.NoError(t, err)
	_, err = s.UpdatePositionFunc(ctx, p.ID, func(p *models.Position) (bool, error) {
		return true, p.AutoClose()
	})
	require.NoError(t, err)
	sp, err := s.CreateSpread(ctx, newSpread("alice"))
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	reloaded, err := NewJSONStorage(path)
	require.NoError(t, err)

	got, err := reloaded.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAutoClosed())
	assert.True(t, got.Strike.Equal(dec("400")))
	assert.True(t, p.OpenDate.Equal(got.OpenDate))

	gotSpread, err := reloaded.GetSpread(ctx, sp.ID)
	require.NoError(t, err)
	assert.True(t, gotSpread.ShortPremium.Equal(dec("1.80")))
	assert.False(t, gotSpread.CloseFees.Valid)
}

func TestJSONStorage_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewJSONStorage(path)
	assert.Error(t, err)
}

func TestJSONStorage_EmptyObjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"positions": null}`), 0o600))

	s, err := NewJSONStorage(path)
	require.NoError(t, err)
	_, err = s.CreatePosition(context.Background(), newPut("alice"))
	assert.NoError(t, err)
}

func TestMockStorage_SaveErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMockStorage()

	p, err := m.CreatePosition(ctx, newPut("alice"))
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	m.FailWritesFor(p.ID, diskFull)
	_, err = m.UpdatePositionFunc(ctx, p.ID, func(p *models.Position) (bool, error) {
		return true, p.AutoClose()
	})
	assert.ErrorIs(t, err, diskFull)

	got, err := m.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen(), "failed write must not change the stored record")

	m.FailWritesFor(p.ID, nil)
	m.SetSaveError(diskFull)
	_, err = m.CreatePosition(ctx, newPut("alice"))
	assert.ErrorIs(t, err, diskFull)
	all, err := m.ListPositions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Equal(t, 3, m.GetSaveCallCount())
}

func TestUnchangedBrokenLinkDoesNotBlockWrites(t *testing.T) {
	dangling := newPut("alice")
	dangling.ID = "call-1"
	dangling.Type = models.OptionCall
	dangling.Assigned = models.AssignedNo
	dangling.RelatedTo = "deleted-put"

	seeded := func(t *testing.T) Interface {
		m := NewMockStorage()
		m.Seed(dangling)
		return m
	}
	loaded := func(t *testing.T) Interface {
		data := newStorageData()
		data.Positions[dangling.ID] = dangling.Clone()
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "ledger.json")
		require.NoError(t, os.WriteFile(path, raw, 0o600))
		s, err := NewJSONStorage(path)
		require.NoError(t, err)
		return s
	}

	for name, open := range map[string]func(*testing.T) Interface{"mock": seeded, "json": loaded} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			closed, err := store.UpdatePositionFunc(ctx, "call-1", func(p *models.Position) (bool, error) {
				return true, p.AutoClose()
			})
			require.NoError(t, err)
			assert.True(t, closed.IsAutoClosed())
			assert.Equal(t, "deleted-put", closed.RelatedTo)

			edit, err := store.GetPosition(ctx, "call-1")
			require.NoError(t, err)
			edit.Notes = "legacy import"
			_, err = store.UpdatePosition(ctx, edit)
			require.NoError(t, err)

			// Pointing the link somewhere new is still checked.
			edit.RelatedTo = "also-missing"
			_, err = store.UpdatePosition(ctx, edit)
			assert.True(t, models.IsValidationError(err))
		})
	}
}

func TestLinkChanged(t *testing.T) {
	linked := func(to string) *models.Position { return &models.Position{ID: "p", RelatedTo: to} }
	tests := []struct {
		name   string
		stored *models.Position
		next   *models.Position
		want   bool
	}{
		{"create without link", nil, linked(""), false},
		{"create with link", nil, linked("a"), true},
		{"link kept", linked("a"), linked("a"), false},
		{"link moved", linked("a"), linked("b"), true},
		{"link added", linked(""), linked("a"), true},
		{"link removed", linked("a"), linked(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LinkChanged(tt.stored, tt.next))
		})
	}
}
