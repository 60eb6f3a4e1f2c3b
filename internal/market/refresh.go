package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/service"
)

// DefaultWorkers is the default refresh concurrency.
const DefaultWorkers = 4

// ErrNoQuery is recorded for cards with nothing to search for.
var ErrNoQuery = errors.New("card has no searchable fields")

// Searcher finds sold listings.
type Searcher interface {
	Search(ctx context.Context, query string) ([]ItemSummary, error)
}

// RefreshResult is the outcome for one card.
type RefreshResult struct {
	Err       error
	Query     string
	Valuation model.Valuation
	CardID    int64
}

// Refresher values cards concurrently and stores the results.
type Refresher struct {
	search  Searcher
	store   service.CardStore
	logger  *slog.Logger
	now     func() time.Time
	workers int
}

// NewRefresher creates a refresher. workers <= 0 uses DefaultWorkers.
func NewRefresher(search Searcher, store service.CardStore, workers int, logger *slog.Logger) *Refresher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Refresher{
		search:  search,
		store:   store,
		workers: workers,
		logger:  common.ComponentLogger(logger, "market"),
		now:     time.Now,
	}
}

// Refresh values a single card and stores the estimate.
func (r *Refresher) Refresh(ctx context.Context, card *model.Card) RefreshResult {
	result := RefreshResult{CardID: card.ID, Query: BuildQuery(card)}
	if result.Query == "" {
		result.Err = ErrNoQuery
		return result
	}

	items, err := r.search.Search(ctx, result.Query)
	if err != nil {
		result.Err = fmt.Errorf("search failed: %w", err)
		return result
	}

	result.Valuation = Estimate(FilterComps(items, Graded(card)), r.now())
	if err := r.store.UpdateMarketValue(ctx, card.ID, result.Valuation); err != nil {
		result.Err = fmt.Errorf("failed to store valuation: %w", err)
	}
	return result
}

// RefreshAll values every card with a bounded pool of workers. Results are
// returned in input order; a failed card never stops the batch. onProgress,
// if set, is called once per finished card from a single goroutine.
func (r *Refresher) RefreshAll(ctx context.Context, cards []model.Card, onProgress func(RefreshResult)) []RefreshResult {
	results := make([]RefreshResult, len(cards))
	done := make(chan int, len(cards))
	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i := range cards {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { done <- idx }()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = RefreshResult{CardID: cards[idx].ID, Err: ctx.Err()}
				return
			}
			if err := ctx.Err(); err != nil {
				results[idx] = RefreshResult{CardID: cards[idx].ID, Err: err}
				return
			}

			results[idx] = r.Refresh(ctx, &cards[idx])
		}(i)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	failed := 0
	for idx := range done {
		res := results[idx]
		if res.Err != nil {
			failed++
			r.logger.Warn("Market refresh failed", "card_id", res.CardID, "error", res.Err)
		}
		if onProgress != nil {
			onProgress(res)
		}
	}

	r.logger.Info("Market refresh complete", "cards", len(cards), "failed", failed)
	return results
}
