package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/wheel_ledger/internal/models"
	"github.com/eddiefleurent/wheel_ledger/internal/retry"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
)

// DefaultMaxConcurrency bounds concurrent quote lookups.
const DefaultMaxConcurrency = 4

// RecordError reports a single record that could not be refreshed.
type RecordError struct {
	ID     string `json:"id"`
	Symbol string `json:"stock"`
	Error  string `json:"error"`
}

// Report summarizes a refresh run.
type Report struct {
	Updated int           `json:"updated"`
	Total   int           `json:"total"`
	Errors  []RecordError `json:"errors"`
}

// Refresher writes current option marks onto open positions and spreads.
type Refresher struct {
	feed           Feed
	storage        storage.Interface
	retry          retry.Config
	maxConcurrency int
	logger         *logrus.Entry
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithRetry overrides the retry policy for quote lookups.
func WithRetry(cfg retry.Config) RefresherOption {
	return func(r *Refresher) { r.retry = cfg }
}

// WithMaxConcurrency bounds the number of concurrent lookups.
func WithMaxConcurrency(n int) RefresherOption {
	return func(r *Refresher) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// NewRefresher creates a refresher over feed and store.
func NewRefresher(feed Feed, store storage.Interface, logger *logrus.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		feed:           feed,
		storage:        store,
		retry:          retry.DefaultConfig,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         logger.WithField("component", "refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// mark fetches the rounded mark for c, retrying transient failures.
func (r *Refresher) mark(ctx context.Context, c Contract) (decimal.Decimal, error) {
	q, err := retry.Do(ctx, r.retry, r.logger.WithField("contract", c.String()), "option quote",
		func(ctx context.Context) (Quote, error) {
			q, err := r.feed.OptionQuote(ctx, c)
			if err != nil && isPermanent(err) {
				return q, retry.Permanent(err)
			}
			return q, err
		})
	if err != nil {
		return decimal.Zero, err
	}
	return q.Mark(), nil
}

func isPermanent(err error) bool {
	if errors.Is(err, ErrQuoteNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsPermanent()
}

// RefreshPosition stores the current mark of position id. Closed positions
// are returned unchanged without a lookup.
func (r *Refresher) RefreshPosition(ctx context.Context, id string) (*models.Position, error) {
	p, err := r.storage.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsOpen() {
		return p, nil
	}

	price, err := r.mark(ctx, PositionContract(p))
	if err != nil {
		return nil, err
	}

	return r.storage.UpdatePositionFunc(ctx, id, func(p *models.Position) (bool, error) {
		// Closed while the quote was in flight.
		if !p.IsOpen() {
			return false, nil
		}
		if p.CurrentOptionPrice.Valid && p.CurrentOptionPrice.Decimal.Equal(price) {
			return false, nil
		}
		p.CurrentOptionPrice = decimal.NewNullDecimal(price)
		return true, nil
	})
}

// RefreshSpread stores the current marks of both legs of spread id.
func (r *Refresher) RefreshSpread(ctx context.Context, id string) (*models.CreditSpread, error) {
	s, err := r.storage.GetSpread(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsOpen() {
		return s, nil
	}

	shortLeg, longLeg := SpreadContracts(s)
	shortPrice, err := r.mark(ctx, shortLeg)
	if err != nil {
		return nil, fmt.Errorf("short leg: %w", err)
	}
	longPrice, err := r.mark(ctx, longLeg)
	if err != nil {
		return nil, fmt.Errorf("long leg: %w", err)
	}

	s.CurrentShortPrice = decimal.NewNullDecimal(shortPrice)
	s.CurrentLongPrice = decimal.NewNullDecimal(longPrice)
	return r.storage.UpdateSpread(ctx, s)
}

// RefreshOpen refreshes every open position and spread of owner ("" for all
// accounts). Individual failures are collected in the report; only a failure
// to list records is returned as an error.
func (r *Refresher) RefreshOpen(ctx context.Context, owner string) (Report, error) {
	positions, err := r.storage.ListPositions(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list positions: %w", err)
	}
	spreads, err := r.storage.ListSpreads(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list spreads: %w", err)
	}

	type job struct {
		id     string
		symbol string
		run    func(context.Context, string) error
	}
	var jobs []job
	for _, p := range positions {
		if p.IsOpen() {
			jobs = append(jobs, job{id: p.ID, symbol: p.Symbol, run: func(ctx context.Context, id string) error {
				_, err := r.RefreshPosition(ctx, id)
				return err
			}})
		}
	}
	for _, s := range spreads {
		if s.IsOpen() {
			jobs = append(jobs, job{id: s.ID, symbol: s.Symbol, run: func(ctx context.Context, id string) error {
				_, err := r.RefreshSpread(ctx, id)
				return err
			}})
		}
	}

	results := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			results[i] = j.run(gctx, j.id)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Total: len(jobs), Errors: []RecordError{}}
	for i, err := range results {
		if err == nil {
			report.Updated++
			continue
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"id":     jobs[i].id,
			"symbol": jobs[i].symbol,
		}).Warn("Failed to refresh price")
		report.Errors = append(report.Errors, RecordError{ID: jobs[i].id, Symbol: jobs[i].symbol, Error: err.Error()})
	}

	r.logger.WithFields(logrus.Fields{
		"owner":   owner,
		"updated": report.Updated,
		"total":   report.Total,
		"failed":  len(report.Errors),
	}).Info("Price refresh complete")
	return report, nil
}
