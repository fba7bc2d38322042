package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheel_ledger/internal/chain"
)

// Finding is one integrity problem in stored records.
type Finding struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // position | spread
	Owner   string `json:"owner"`
	Symbol  string `json:"stock"`
	Problem string `json:"problem"`
}

// AuditReport summarizes an integrity check of stored records.
type AuditReport struct {
	PositionsChecked int       `json:"positions_checked"`
	SpreadsChecked   int       `json:"spreads_checked"`
	PendingClose     []string  `json:"pending_close"`
	PendingReopen    []string  `json:"pending_reopen"`
	Findings         []Finding `json:"findings"`
}

// OK reports whether the audit found no integrity problems.
func (r AuditReport) OK() bool { return len(r.Findings) == 0 }

// Audit checks owner's records ("" for all) without modifying them: attribute
// validation, wheel-chain links and positions the next sweep would transition.
func (r *Reconciler) Audit(ctx context.Context, owner string) (AuditReport, error) {
	report := AuditReport{PendingClose: []string{}, PendingReopen: []string{}, Findings: []Finding{}}

	positions, err := r.storage.ListPositions(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("failed to list positions: %w", err)
	}
	spreads, err := r.storage.ListSpreads(ctx, owner)
	if err != nil {
		return report, fmt.Errorf("failed to list spreads: %w", err)
	}

	idx := chain.NewIndex(positions)
	now := r.clock.Now()
	for _, p := range positions {
		report.PositionsChecked++
		finding := func(format string, args ...any) {
			report.Findings = append(report.Findings, Finding{
				ID: p.ID, Kind: "position", Owner: p.Owner, Symbol: p.Symbol,
				Problem: fmt.Sprintf(format, args...),
			})
		}

		if err := p.Validate(); err != nil {
			finding("%v", err)
		}
		if p.RelatedTo != "" {
			prev, ok := idx.GetPosition(p.RelatedTo)
			switch {
			case !ok:
				finding("related_to %s not found", p.RelatedTo)
			case prev.Owner != p.Owner:
				finding("related_to %s belongs to account %s", p.RelatedTo, prev.Owner)
			}
		}
		if _, err := chain.Resolve(p, idx); err != nil {
			var cycleErr *chain.CycleIntegrityError
			if errors.As(err, &cycleErr) {
				finding("wheel chain loops: %v", cycleErr.Path)
			} else {
				finding("%v", err)
			}
		}

		switch Plan(p, r.calendar, now) {
		case ActionClose:
			report.PendingClose = append(report.PendingClose, p.ID)
		case ActionReopen:
			report.PendingReopen = append(report.PendingReopen, p.ID)
		}
	}

	for _, s := range spreads {
		report.SpreadsChecked++
		if err := s.Validate(); err != nil {
			report.Findings = append(report.Findings, Finding{
				ID: s.ID, Kind: "spread", Owner: s.Owner, Symbol: s.Symbol, Problem: err.Error(),
			})
		}
	}

	r.logger.WithFields(logrus.Fields{
		"owner":          owner,
		"positions":      report.PositionsChecked,
		"spreads":        report.SpreadsChecked,
		"findings":       len(report.Findings),
		"pending_close":  len(report.PendingClose),
		"pending_reopen": len(report.PendingReopen),
	}).Info("Audit complete")
	return report, nil
}
