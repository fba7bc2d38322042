package chain

import (
	"sort"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// Index is an arena of positions addressed by slot. Successor links are slot
// numbers, so a whole account can be resolved without touching the repository
// again.
type Index struct {
	nodes    []*models.Position
	slot     map[string]int
	children [][]int // sorted by creation order
}

// NewIndex builds an Index over positions. Later duplicates of an ID replace
// earlier ones.
func NewIndex(positions []*models.Position) *Index {
	ix := &Index{slot: make(map[string]int, len(positions))}
	for _, p := range positions {
		if i, ok := ix.slot[p.ID]; ok {
			ix.nodes[i] = p
			continue
		}
		ix.slot[p.ID] = len(ix.nodes)
		ix.nodes = append(ix.nodes, p)
	}

	ix.children = make([][]int, len(ix.nodes))
	for i, p := range ix.nodes {
		if j, ok := ix.slot[p.RelatedTo]; ok && p.RelatedTo != "" {
			ix.children[j] = append(ix.children[j], i)
		}
	}
	for _, kids := range ix.children {
		sort.SliceStable(kids, func(a, b int) bool {
			return createdBefore(ix.nodes[kids[a]], ix.nodes[kids[b]])
		})
	}
	return ix
}

// Len returns the number of positions in the index.
func (ix *Index) Len() int { return len(ix.nodes) }

// GetPosition implements Lookup.
func (ix *Index) GetPosition(id string) (*models.Position, bool) {
	i, ok := ix.slot[id]
	if !ok {
		return nil, false
	}
	return ix.nodes[i], true
}

// Successors implements Lookup. The result is in creation order.
func (ix *Index) Successors(id string) []*models.Position {
	i, ok := ix.slot[id]
	if !ok {
		return nil
	}
	out := make([]*models.Position, len(ix.children[i]))
	for k, c := range ix.children[i] {
		out[k] = ix.nodes[c]
	}
	return out
}

// HasSuccessors reports whether any indexed position points at id.
func (ix *Index) HasSuccessors(id string) bool {
	i, ok := ix.slot[id]
	return ok && len(ix.children[i]) > 0
}
