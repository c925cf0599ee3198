package offers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/price"
	"github.com/lokum-app/lokum/internal/scraping"
)

// SearcherFactory builds a fresh search adapter for an engine.
type SearcherFactory func(engine models.EngineType) (scraping.Searcher, error)

// ResolveOffers matches search results to the catalog by URL. A result
// whose URL is already known updates that source and its offer's identity
// fields; an unseen URL creates a new offer with one source. The returned
// slice holds one offer per input result, in input order, with repeated
// URLs collapsed onto the same offer instance.
func ResolveOffers(ctx context.Context, store ResolverStore, results []scraping.SearchResult, now time.Time) ([]*models.Offer, error) {
	if len(results) == 0 {
		return nil, nil
	}

	urls := make([]string, 0, len(results))
	urlSeen := make(map[string]bool, len(results))
	for _, r := range results {
		if !urlSeen[r.URL] {
			urlSeen[r.URL] = true
			urls = append(urls, r.URL)
		}
	}
	existing, err := store.SourcesByURLs(ctx, urls)
	if err != nil {
		return nil, err
	}
	byURL := make(map[string]*models.OfferSource, len(existing))
	for _, s := range existing {
		byURL[s.URL] = s
	}

	resolved := make([]*models.Offer, 0, len(results))
	batch := make(map[string]*models.Offer, len(urls))
	for _, r := range results {
		if offer, ok := batch[r.URL]; ok {
			resolved = append(resolved, offer)
			continue
		}

		var parsed *price.ParsedPrice
		if r.Price != nil {
			p := price.Parse(*r.Price)
			parsed = &p
		}

		if src, ok := byURL[r.URL]; ok {
			src.RawPrice = parsed
			src.ScrapedAt = now
			if err := store.UpdateSourceObservation(ctx, src); err != nil {
				return nil, err
			}

			offer := src.Offer
			offer.Title = r.Title
			offer.Location = r.Location
			offer.Rent = nil
			if parsed != nil {
				offer.Rent = parsed.Amount
			}
			if err := store.UpdateOfferIdentity(ctx, offer); err != nil {
				return nil, err
			}
			batch[r.URL] = offer
			resolved = append(resolved, offer)
			continue
		}

		offer := &models.Offer{
			Title:    r.Title,
			Location: r.Location,
		}
		if parsed != nil {
			offer.Rent = parsed.Amount
		}
		src := &models.OfferSource{
			SourceType: r.SourceType,
			URL:        r.URL,
			RawPrice:   parsed,
			ScrapedAt:  now,
			Offer:      offer,
		}
		offer.Sources = []*models.OfferSource{src}
		if err := store.InsertOffer(ctx, offer); err != nil {
			return nil, err
		}
		batch[r.URL] = offer
		resolved = append(resolved, offer)
	}
	return resolved, nil
}

// SearchAndResolve runs every search and resolves the combined results in
// one batch. Searches are grouped by engine; distinct engines run
// concurrently while each engine works through its own params in order.
func SearchAndResolve(ctx context.Context, store ResolverStore, newSearcher SearcherFactory, paramsList []scraping.SearchParams, now time.Time) ([]*models.Offer, error) {
	if len(paramsList) == 0 {
		return nil, nil
	}

	type engineGroup struct {
		engine models.EngineType
		params []scraping.SearchParams
	}
	var groups []*engineGroup
	byEngine := make(map[models.EngineType]*engineGroup)
	for _, p := range paramsList {
		g, ok := byEngine[p.Engine]
		if !ok {
			g = &engineGroup{engine: p.Engine}
			byEngine[p.Engine] = g
			groups = append(groups, g)
		}
		g.params = append(g.params, p)
	}

	perGroup := make([][]scraping.SearchResult, len(groups))
	eg, gctx := errgroup.WithContext(ctx)
	for i, g := range groups {
		eg.Go(func() error {
			searcher, err := newSearcher(g.engine)
			if err != nil {
				return err
			}
			var results []scraping.SearchResult
			for _, p := range g.params {
				res, err := searcher.Search(gctx, p)
				if err != nil {
					return fmt.Errorf("failed to search %s: %w", g.engine, err)
				}
				results = append(results, res...)
			}
			perGroup[i] = results
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var combined []scraping.SearchResult
	for _, results := range perGroup {
		combined = append(combined, results...)
	}
	return ResolveOffers(ctx, store, combined, now)
}
