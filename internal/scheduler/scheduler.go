// Package scheduler periodically runs saved queries and refreshes stale
// listing data. Both passes share one shape: a short transaction to
// snapshot work, network and LLM work with no transaction open, then a
// short transaction for all writes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/offers"
	"github.com/lokum-app/lokum/internal/scraping"
	"github.com/lokum-app/lokum/internal/util"
)

// maxStoredErrorLen bounds the error text stamped onto a failing query.
const maxStoredErrorLen = 2000

// Tx is the transactional surface the scheduler works through. It is
// satisfied by *storage.Tx.
type Tx interface {
	offers.ResolverStore
	offers.PersisterStore

	PendingQueries(ctx context.Context, now time.Time) ([]*models.Query, error)
	LinkedSourceIDs(ctx context.Context, queryID uuid.UUID, sourceIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	InsertQueryResult(ctx context.Context, qr *models.QueryResult) error
	MarkQueryRun(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkQueryError(ctx context.Context, id uuid.UUID, msg string, at time.Time) error
	StaleSourceRefs(ctx context.Context, cutoff time.Time) ([]*models.OfferSource, error)

	Commit() error
	Rollback() error
}

// BeginFunc opens a new transaction.
type BeginFunc func(ctx context.Context) (Tx, error)

// Adapters builds the per-run site adapters and the enrichment engine.
// Satisfied by *registry.Registry.
type Adapters interface {
	NewSearcher(engine models.EngineType) (scraping.Searcher, error)
	NewScraper(sourceType models.SourceType) (scraping.Scraper, error)
	NewEnricher(ctx context.Context) (scraping.Enricher, error)
}

type Scheduler struct {
	begin     BeginFunc
	adapters  Adapters
	interval  time.Duration
	staleness time.Duration
}

func New(begin BeginFunc, adapters Adapters, interval, staleness time.Duration) *Scheduler {
	return &Scheduler{
		begin:     begin,
		adapters:  adapters,
		interval:  interval,
		staleness: staleness,
	}
}

// Run executes both passes on every tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunPendingQueries(ctx); err != nil {
				slog.Error("Query pass failed", "error", err)
			}
			if err := s.RunPendingScrapes(ctx); err != nil {
				slog.Error("Scrape pass failed", "error", err)
			}
		}
	}
}

// pendingQuery carries what a search needs, detached from any transaction.
type pendingQuery struct {
	id          uuid.UUID
	searchQuery string
	location    string
	engine      models.EngineType
	maxPages    int
}

type searchOutcome struct {
	pq      pendingQuery
	results []scraping.SearchResult
}

type searchFailure struct {
	pq      pendingQuery
	message string
}

// RunPendingQueries executes every due query. Search failures are
// recorded on the query and never abort the pass; only write failures do.
func (s *Scheduler) RunPendingQueries(ctx context.Context) error {
	pending, err := s.snapshotPendingQueries(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	var succeeded []searchOutcome
	var failed []searchFailure
	for _, pq := range pending {
		results, err := s.search(ctx, pq)
		if err != nil {
			slog.Error("Query search failed", "query_id", pq.id, "error", err)
			failed = append(failed, searchFailure{pq: pq, message: util.Truncate(err.Error(), maxStoredErrorLen)})
			continue
		}
		succeeded = append(succeeded, searchOutcome{pq: pq, results: results})
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	for _, out := range succeeded {
		if err := s.recordQueryRun(ctx, tx, out, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, f := range failed {
		if err := tx.MarkQueryError(ctx, f.pq.id, f.message, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Scheduler) snapshotPendingQueries(ctx context.Context) ([]pendingQuery, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	queries, err := tx.PendingQueries(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	pending := make([]pendingQuery, 0, len(queries))
	for _, q := range queries {
		pending = append(pending, pendingQuery{
			id:          q.ID,
			searchQuery: q.SearchQuery,
			location:    q.Location,
			engine:      q.SearchEngine,
			maxPages:    q.MaxPages,
		})
	}
	return pending, nil
}

func (s *Scheduler) search(ctx context.Context, pq pendingQuery) ([]scraping.SearchResult, error) {
	searcher, err := s.adapters.NewSearcher(pq.engine)
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, scraping.SearchParams{
		Query:    pq.searchQuery,
		Location: pq.location,
		Engine:   pq.engine,
		MaxPages: pq.maxPages,
	})
}

// recordQueryRun resolves one query's search results and links any
// sources the query has not surfaced before.
func (s *Scheduler) recordQueryRun(ctx context.Context, tx Tx, out searchOutcome, now time.Time) error {
	resolved, err := offers.ResolveOffers(ctx, tx, out.results, now)
	if err != nil {
		return err
	}

	// Duplicate URLs resolve to the same listing instance, so collect
	// the distinct sources before linking.
	var sourceIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, offer := range resolved {
		for _, src := range offer.Sources {
			if !seen[src.ID] {
				seen[src.ID] = true
				sourceIDs = append(sourceIDs, src.ID)
			}
		}
	}

	linked, err := tx.LinkedSourceIDs(ctx, out.pq.id, sourceIDs)
	if err != nil {
		return err
	}

	newCount := 0
	for _, id := range sourceIDs {
		if linked[id] {
			continue
		}
		qr := &models.QueryResult{QueryID: out.pq.id, OfferSourceID: id, FoundAt: now}
		if err := tx.InsertQueryResult(ctx, qr); err != nil {
			return err
		}
		newCount++
	}

	if err := tx.MarkQueryRun(ctx, out.pq.id, now); err != nil {
		return err
	}
	slog.Info("Query executed", "query_id", out.pq.id, "new_results", newCount)
	return nil
}

// pendingScrape addresses one source needing a fresh scrape.
type pendingScrape struct {
	sourceID   uuid.UUID
	url        string
	sourceType models.SourceType
}

// RunPendingScrapes refreshes every source whose raw info is missing or
// older than the staleness window, then persists and consolidates in a
// single transaction.
func (s *Scheduler) RunPendingScrapes(ctx context.Context) error {
	pending, err := s.snapshotStaleSources(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	slog.Info("Found sources needing scraping", "count", len(pending))

	grouped := make(map[models.SourceType][]scraping.Item)
	var order []models.SourceType
	for _, ps := range pending {
		if _, ok := grouped[ps.sourceType]; !ok {
			order = append(order, ps.sourceType)
		}
		grouped[ps.sourceType] = append(grouped[ps.sourceType], scraping.Item{
			OfferSourceID: ps.sourceID,
			URL:           ps.url,
			SourceType:    ps.sourceType,
		})
	}

	enricher, err := s.adapters.NewEnricher(ctx)
	if err != nil {
		return err
	}

	var processed []scraping.Item
	for _, sourceType := range order {
		scraper, err := s.adapters.NewScraper(sourceType)
		if err != nil {
			slog.Error("No scraper for source type, leaving its sources stale", "source_type", sourceType, "error", err)
			continue
		}
		processed = append(processed, scraping.RunPipeline(ctx, grouped[sourceType], scraper, enricher)...)
	}
	if len(processed) == 0 {
		return nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	touched, err := offers.PersistResults(ctx, tx, processed, now)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to persist pipeline results: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("Scraping pipeline completed", "items", len(processed), "offers_updated", len(touched))
	return nil
}

func (s *Scheduler) snapshotStaleSources(ctx context.Context) ([]pendingScrape, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cutoff := time.Now().UTC().Add(-s.staleness)
	sources, err := tx.StaleSourceRefs(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	pending := make([]pendingScrape, 0, len(sources))
	for _, src := range sources {
		pending = append(pending, pendingScrape{
			sourceID:   src.ID,
			url:        src.URL,
			sourceType: src.SourceType,
		})
	}
	return pending, nil
}
