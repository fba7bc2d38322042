package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eddiefleurent/wheel_ledger/internal/analytics"
	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

func (s *Server) ownedSpread(ctx context.Context, id string) (*models.CreditSpread, error) {
	sp, err := s.storage.GetSpread(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Owner != ownerFrom(ctx) {
		return nil, storage.ErrNotFound
	}
	return sp, nil
}

func (s *Server) handleListSpreads(w http.ResponseWriter, r *http.Request) {
	ss, err := s.storage.ListSpreads(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	ss = filterByStock(ss, strings.ToUpper(r.URL.Query().Get("stock")),
		func(sp *models.CreditSpread) string { return sp.Symbol })

	today := s.today()
	views := make([]SpreadView, 0, len(ss))
	for _, sp := range ss {
		views = append(views, spreadView(sp, today))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateSpread(w http.ResponseWriter, r *http.Request) {
	var req spreadRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, err)
		return
	}

	sp := &models.CreditSpread{Owner: ownerFrom(r.Context())}
	req.applyTo(sp)
	created, err := s.storage.CreateSpread(r.Context(), sp)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(created.Owner, created.ID)).Info("Spread created")
	s.writeJSON(w, http.StatusCreated, spreadView(created, s.today()))
}

func (s *Server) handleGetSpread(w http.ResponseWriter, r *http.Request) {
	sp, err := s.ownedSpread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, spreadView(sp, s.today()))
}

func (s *Server) handleUpdateSpread(w http.ResponseWriter, r *http.Request) {
	var req spreadRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeStoreError(w, err)
		return
	}

	sp, err := s.ownedSpread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	req.applyTo(sp)
	updated, err := s.storage.UpdateSpread(r.Context(), sp)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(updated.Owner, updated.ID)).Info("Spread updated")
	s.writeJSON(w, http.StatusOK, spreadView(updated, s.today()))
}

func (s *Server) handleDeleteSpread(w http.ResponseWriter, r *http.Request) {
	sp, err := s.ownedSpread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.storage.DeleteSpread(r.Context(), sp.ID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.WithFields(logFields(sp.Owner, sp.ID)).Info("Spread deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) spreadEntries(w http.ResponseWriter, r *http.Request) ([]analytics.Entry, bool) {
	ss, err := s.storage.ListSpreads(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return analytics.SpreadEntries(ss, s.today()), true
}

func (s *Server) handleSpreadSummary(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.spreadEntries(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, analytics.Aggregate(entries))
}

func (s *Server) handleSpreadsByStock(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.spreadEntries(w, r)
	if !ok {
		return
	}
	stock := strings.ToUpper(r.URL.Query().Get("stock"))
	s.writeJSON(w, http.StatusOK, filterByStock(analytics.AggregateByStock(entries), stock,
		func(ss analytics.StockSummary) string { return ss.Stock }))
}
