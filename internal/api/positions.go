package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eddiefleurent/wheel_ledger/internal/analytics"
	"github.com/eddiefleurent/wheel_ledger/internal/chain"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

// ownedPosition loads id and hides records of other accounts.
func (s *Server) ownedPosition(ctx context.Context, id string) (*models.Position, error) {
	p, err := s.storage.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Owner != ownerFrom(ctx) {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

// ownerPositions lists the account's positions and indexes them for cycle lookups.
func (s *Server) ownerPositions(ctx context.Context) ([]*models.Position, *chain.Index, error) {
	ps, err := s.storage.ListPositions(ctx, ownerFrom(ctx))
	if err != nil {
		return nil, nil, err
	}
	return ps, chain.NewIndex(ps), nil
}

func (s *Server) respondPosition(w http.ResponseWriter, r *http.Request, status int, p *models.Position) {
	_, idx, err := s.ownerPositions(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, status, s.positionView(p, idx, s.today()))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.reconcile(ctx, ownerFrom(ctx))

	ps, idx, err := s.ownerPositions(ctx)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	q := r.URL.Query()
	ps = filterByStock(ps, strings.ToUpper(q.Get("stock")), func(p *models.Position) string { return p.Symbol })
	switch q.Get("status") {
	case "":
	case "open", "closed":
		wantOpen := q.Get("status") == "open"
		kept := ps[:0:0]
		for _, p := range ps {
			if p.IsOpen() == wantOpen {
				kept = append(kept, p)
			}
		}
		ps = kept
	default:
		s.writeError(w, http.StatusBadRequest, "status must be open or closed")
		return
	}

	s.writeJSON(w, http.StatusOK, s.positionViews(ps, idx, s.today()))
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, err)
		return
	}

	p := &models.Position{Owner: ownerFrom(r.Context())}
	req.applyTo(p)
	created, err := s.storage.CreatePosition(r.Context(), p)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(created.Owner, created.ID)).Info("Position created")
	s.respondPosition(w, r, http.StatusCreated, created)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.reconcile(ctx, ownerFrom(ctx))

	p, err := s.ownedPosition(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.respondPosition(w, r, http.StatusOK, p)
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, err)
		return
	}

	ctx := r.Context()
	owner := ownerFrom(ctx)
	updated, err := s.storage.UpdatePositionFunc(ctx, chi.URLParam(r, "id"), func(p *models.Position) (bool, error) {
		if p.Owner != owner {
			return false, storage.ErrNotFound
		}
		req.applyTo(p)
		return true, nil
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(owner, updated.ID)).Info("Position updated")
	s.respondPosition(w, r, http.StatusOK, updated)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.ownedPosition(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.storage.DeletePosition(ctx, p.ID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(p.Owner, p.ID)).Info("Position deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.reconcile(ctx, ownerFrom(ctx))

	p, err := s.ownedPosition(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	_, idx, err := s.ownerPositions(ctx)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	cycle, err := chain.Resolve(p, idx)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	today := s.today()
	s.writeJSON(w, http.StatusOK, CycleView{
		Index:     cycle.Index,
		Complete:  cycle.Complete,
		Positions: s.positionViews(cycle.Positions, idx, today),
		Summary:   analytics.Aggregate(analytics.PositionEntries(cycle.Positions, today)),
	})
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, err)
		return
	}
	closeDate := s.today()
	if req.CloseDate != nil {
		closeDate = req.CloseDate.Time
	}

	ctx := r.Context()
	owner := ownerFrom(ctx)
	closed, err := s.storage.UpdatePositionFunc(ctx, chi.URLParam(r, "id"), func(p *models.Position) (bool, error) {
		if p.Owner != owner {
			return false, storage.ErrNotFound
		}
		if err := p.Close(closeDate, req.PremiumPaidToClose, req.CloseFees, req.Assigned); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(owner, closed.ID)).Info("Position closed")
	s.respondPosition(w, r, http.StatusOK, closed)
}

func (s *Server) handleRefreshPrice(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "price feed is not configured")
		return
	}
	ctx := r.Context()
	p, err := s.ownedPosition(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	refreshed, err := s.refresher.RefreshPosition(ctx, p.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeStoreError(w, err)
			return
		}
		s.logger.WithError(err).WithFields(logFields(p.Owner, p.ID)).Warn("Price refresh failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondPosition(w, r, http.StatusOK, refreshed)
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "price feed is not configured")
		return
	}
	report, err := s.refresher.RefreshOpen(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) positionEntries(w http.ResponseWriter, r *http.Request) ([]analytics.Entry, bool) {
	ctx := r.Context()
	s.reconcile(ctx, ownerFrom(ctx))
	ps, err := s.storage.ListPositions(ctx, ownerFrom(ctx))
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return analytics.PositionEntries(ps, s.today()), true
}

func (s *Server) handlePositionSummary(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.positionEntries(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, analytics.Aggregate(entries))
}

func (s *Server) handlePositionsByStock(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.positionEntries(w, r)
	if !ok {
		return
	}
	stock := strings.ToUpper(r.URL.Query().Get("stock"))
	s.writeJSON(w, http.StatusOK, filterByStock(analytics.AggregateByStock(entries), stock,
		func(ss analytics.StockSummary) string { return ss.Stock }))
}

func (s *Server) handleROISummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var bounds [2]Date
	for i, name := range []string{"start_date", "end_date"} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: name})
			return
		}
		bounds[i] = Date{t}
	}

	entries, ok := s.positionEntries(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, analytics.SummarizeROI(entries, bounds[0].Time, bounds[1].Time))
}
