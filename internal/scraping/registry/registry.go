// Package registry constructs the site adapters and the enrichment
// engine from configuration. Adapters get a fresh fetch client per
// instance; the shared rate limiter keeps the combined request rate
// within bounds.
package registry

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/lokum-app/lokum/internal/config"
	"github.com/lokum-app/lokum/internal/enrich"
	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/scraping"
	"github.com/lokum-app/lokum/internal/scraping/fetch"
	"github.com/lokum-app/lokum/internal/scraping/olx"
)

type Registry struct {
	cfg     *config.Config
	limiter *rate.Limiter
}

func New(cfg *config.Config) *Registry {
	var limiter *rate.Limiter
	if cfg.FetchRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.FetchRatePerMinute)), cfg.FetchRatePerMinute)
	}
	return &Registry{cfg: cfg, limiter: limiter}
}

func (r *Registry) NewSearcher(engine models.EngineType) (scraping.Searcher, error) {
	switch engine {
	case models.EngineOLX:
		return olx.NewSearchEngine(r.newFetcher(), r.cfg.OLXBaseURL), nil
	}
	return nil, fmt.Errorf("unknown search engine %q", engine)
}

func (r *Registry) NewScraper(sourceType models.SourceType) (scraping.Scraper, error) {
	switch sourceType {
	case models.SourceTypeOLX:
		return olx.NewOfferScraper(r.newFetcher()), nil
	}
	return nil, fmt.Errorf("unknown offer source type %q", sourceType)
}

func (r *Registry) NewEnricher(ctx context.Context) (scraping.Enricher, error) {
	return enrich.NewEngine(ctx, r.cfg.GeminiAPIKey, r.cfg.GeminiModel)
}

func (r *Registry) newFetcher() fetch.Fetcher {
	if r.cfg.FetchMode == config.FetchModeBrowser {
		return fetch.NewBrowserClient()
	}
	return fetch.NewClient(r.limiter)
}
