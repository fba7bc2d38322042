// Package chain reconstructs wheel cycles from the related_to links between
// positions: a put that was assigned, the covered calls sold against the
// shares, and so on until the shares are called away.
package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
)

// Lookup is the read capability the resolver needs from a repository.
type Lookup interface {
	// GetPosition returns the position with the given ID.
	GetPosition(id string) (*models.Position, bool)
	// Successors returns every position whose RelatedTo is id, in any order.
	Successors(id string) []*models.Position
}

// CycleIntegrityError reports a related_to graph that loops back on itself.
type CycleIntegrityError struct {
	ID   string   // position reached twice
	Path []string // IDs visited before the repeat
}

func (e *CycleIntegrityError) Error() string {
	return fmt.Sprintf("related_to cycle detected at position %s (path %s)", e.ID, strings.Join(e.Path, " -> "))
}

// Cycle is the primary chain of positions containing a given record.
type Cycle struct {
	Positions []*models.Position // root first
	Index     int                // 1-based position of the requested record
	Complete  bool               // holds an assigned put and an assigned call
}

// IDs returns the position IDs of the chain in order.
func (c *Cycle) IDs() []string {
	ids := make([]string, len(c.Positions))
	for i, p := range c.Positions {
		ids[i] = p.ID
	}
	return ids
}

// Resolve walks p's predecessors back to the root, then follows the
// earliest-created successor forward from p. A RelatedTo that names a missing
// position ends the chain there.
func Resolve(p *models.Position, lookup Lookup) (*Cycle, error) {
	seen := map[string]bool{p.ID: true}
	path := []string{p.ID}

	backward := []*models.Position{p}
	for cur := p; cur.RelatedTo != ""; {
		prev, ok := lookup.GetPosition(cur.RelatedTo)
		if !ok {
			break
		}
		if seen[prev.ID] {
			return nil, &CycleIntegrityError{ID: prev.ID, Path: path}
		}
		seen[prev.ID] = true
		path = append(path, prev.ID)
		backward = append(backward, prev)
		cur = prev
	}

	positions := make([]*models.Position, 0, len(backward))
	for i := len(backward) - 1; i >= 0; i-- {
		positions = append(positions, backward[i])
	}
	index := len(positions)

	for cur := p; ; {
		next := primarySuccessor(lookup.Successors(cur.ID))
		if next == nil {
			break
		}
		if seen[next.ID] {
			return nil, &CycleIntegrityError{ID: next.ID, Path: path}
		}
		seen[next.ID] = true
		path = append(path, next.ID)
		positions = append(positions, next)
		cur = next
	}

	return &Cycle{
		Positions: positions,
		Index:     index,
		Complete:  isComplete(positions),
	}, nil
}

// CyclePositionIndex returns p's 1-based place in its wheel cycle.
func CyclePositionIndex(p *models.Position, lookup Lookup) (int, error) {
	c, err := Resolve(p, lookup)
	if err != nil {
		return 0, err
	}
	return c.Index, nil
}

// IsCycleComplete reports whether p's cycle has both an assigned put and an
// assigned call.
func IsCycleComplete(p *models.Position, lookup Lookup) (bool, error) {
	c, err := Resolve(p, lookup)
	if err != nil {
		return false, err
	}
	return c.Complete, nil
}

// ValidateLink checks that setting id's RelatedTo to relatedTo keeps the
// graph acyclic. The predecessor must exist.
func ValidateLink(id, relatedTo string, lookup Lookup) error {
	if relatedTo == "" {
		return nil
	}
	if relatedTo == id {
		return &models.ValidationError{Field: "related_to", Message: "position cannot follow itself"}
	}
	if _, ok := lookup.GetPosition(relatedTo); !ok {
		return &models.ValidationError{Field: "related_to", Message: fmt.Sprintf("position %s not found", relatedTo)}
	}

	seen := map[string]bool{}
	path := []string{id}
	for cur := relatedTo; cur != ""; {
		if cur == id || seen[cur] {
			return &CycleIntegrityError{ID: cur, Path: path}
		}
		seen[cur] = true
		path = append(path, cur)
		prev, ok := lookup.GetPosition(cur)
		if !ok {
			return nil
		}
		cur = prev.RelatedTo
	}
	return nil
}

func primarySuccessor(candidates []*models.Position) *models.Position {
	if len(candidates) == 0 {
		return nil
	}
	sorted := append([]*models.Position(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return createdBefore(sorted[i], sorted[j]) })
	return sorted[0]
}

// createdBefore orders positions by creation time, then by ID.
func createdBefore(a, b *models.Position) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func isComplete(positions []*models.Position) bool {
	var put, call bool
	for _, p := range positions {
		if !p.IsAssigned() {
			continue
		}
		switch p.Type {
		case models.OptionPut:
			put = true
		case models.OptionCall:
			call = true
		}
	}
	return put && call
}
