// Package lifecycle keeps stored positions in step with the calendar: it
// closes positions that expired at the market-close cutoff and reopens
// expiry closures whose expiration was later pushed out.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

// Result counts the transitions made by one sweep.
type Result struct {
	Closed   int `json:"closed"`
	Reopened int `json:"reopened"`
}

// Changed reports whether the sweep transitioned anything.
func (r Result) Changed() bool { return r.Closed+r.Reopened > 0 }

// Action is the transition a position needs at a given instant.
type Action int

const (
	// ActionNone leaves the position alone
	ActionNone Action = iota
	// ActionClose auto-closes an expired open position
	ActionClose
	// ActionReopen reverses an automatic expiry closure
	ActionReopen
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionReopen:
		return "reopen"
	default:
		return "none"
	}
}

// Plan decides what p needs at now. Manual closures are never reopened.
func Plan(p *models.Position, cal *market.Calendar, now time.Time) Action {
	expired := cal.HasExpired(p.Expiration, now)
	switch {
	case p.IsOpen() && expired:
		return ActionClose
	case p.IsAutoClosed() && !expired:
		return ActionReopen
	default:
		return ActionNone
	}
}

// Apply performs action on p in place.
func Apply(p *models.Position, action Action) error {
	switch action {
	case ActionClose:
		return p.AutoClose()
	case ActionReopen:
		return p.Reopen()
	default:
		return nil
	}
}

// Reconciler sweeps stored positions and applies the expiry rules.
type Reconciler struct {
	storage  storage.Interface
	calendar *market.Calendar
	clock    market.Clock
	logger   *logrus.Entry
}

// NewReconciler creates a reconciler. A nil clock uses the system clock.
func NewReconciler(store storage.Interface, cal *market.Calendar, clock market.Clock, logger *logrus.Logger) *Reconciler {
	if clock == nil {
		clock = market.SystemClock{}
	}
	if cal == nil {
		cal = market.DefaultCalendar()
	}
	return &Reconciler{
		storage:  store,
		calendar: cal,
		clock:    clock,
		logger:   logger.WithField("component", "reconciler"),
	}
}

// Reconcile sweeps owner's positions (every account when owner is empty).
// Each record is updated atomically and re-planned against its stored state,
// so overlapping sweeps do not double-apply. A failed write does not stop the
// sweep; the failures are joined into the returned error and the record is
// picked up again next time.
func (r *Reconciler) Reconcile(ctx context.Context, owner string) (Result, error) {
	var res Result

	positions, err := r.storage.ListPositions(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("listing positions for reconciliation: %w", err)
	}

	now := r.clock.Now()
	var errs []error
	for _, p := range positions {
		if Plan(p, r.calendar, now) == ActionNone {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		var applied Action
		_, err := r.storage.UpdatePositionFunc(ctx, p.ID, func(cur *models.Position) (bool, error) {
			applied = Plan(cur, r.calendar, now)
			if applied == ActionNone {
				return false, nil
			}
			return true, Apply(cur, applied)
		})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			r.logger.WithError(err).WithField("position_id", p.ID).Warn("Failed to persist lifecycle transition")
			errs = append(errs, fmt.Errorf("position %s: %w", p.ID, err))
			continue
		}

		switch applied {
		case ActionClose:
			res.Closed++
		case ActionReopen:
			res.Reopened++
		}
		if applied != ActionNone {
			r.logger.WithFields(logrus.Fields{
				"position_id": p.ID,
				"stock":       p.Symbol,
				"expiration":  p.Expiration.Format("2006-01-02"),
				"action":      applied.String(),
			}).Info("Lifecycle transition applied")
		}
	}

	if res.Changed() {
		r.logger.WithFields(logrus.Fields{
			"owner":    owner,
			"closed":   res.Closed,
			"reopened": res.Reopened,
		}).Info("Reconciliation sweep complete")
	}
	return res, errors.Join(errs...)
}
