package scraping

import (
	"context"
	"log/slog"
)

// RunPipeline drives scrape then enrich for each item. Enrichment only
// runs when the scrape produced a description. Failures are isolated per
// item: the item is emitted with whatever results it obtained and its
// siblings keep processing. The returned slice has the same length and
// order as the input.
func RunPipeline(ctx context.Context, items []Item, scraper Scraper, enricher Enricher) []Item {
	results := make([]Item, 0, len(items))

	for _, item := range items {
		scraped, err := scraper.Scrape(ctx, Request{URL: item.URL, SourceType: item.SourceType})
		if err != nil {
			slog.Error("Pipeline failed", "url", item.URL, "stage", "scrape", "error", err)
			results = append(results, item)
			continue
		}
		item.Scrape = scraped

		if scraped.Description != "" {
			enriched, err := enricher.Enrich(ctx, scraped)
			if err != nil {
				slog.Error("Pipeline failed", "url", item.URL, "stage", "enrich", "error", err)
				results = append(results, item)
				continue
			}
			item.Enrich = enriched
		} else {
			slog.Warn("Skipping enrichment, no description", "url", item.URL)
		}

		results = append(results, item)
	}

	return results
}
