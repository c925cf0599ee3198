package offers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/scraping"
)

// PersistResults writes pipeline output into each source's raw info, then
// re-consolidates every touched offer from its full observation history.
// Items whose source has disappeared are skipped. Returns the distinct
// touched offers.
func PersistResults(ctx context.Context, store PersisterStore, items []scraping.Item, now time.Time) ([]*models.Offer, error) {
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.OfferSourceID)
	}
	sources, err := store.SourcesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.OfferSource, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	var touched []*models.Offer
	seen := make(map[uuid.UUID]bool)
	for _, item := range items {
		src, ok := byID[item.OfferSourceID]
		if !ok {
			slog.Warn("Skipping pipeline item, source no longer exists", "url", item.URL)
			continue
		}

		info, err := store.RawInfoBySourceID(ctx, src.ID)
		if err != nil {
			return nil, err
		}
		created := false
		if info == nil {
			info = &models.OfferRawInfo{OfferSourceID: src.ID}
			created = true
		}

		if item.Scrape != nil {
			applyScrape(info, item.Scrape, now)
		}
		if item.Enrich != nil {
			if err := applyEnrich(info, item.Enrich, now); err != nil {
				return nil, err
			}
		}

		if created {
			err = store.InsertRawInfo(ctx, info)
		} else {
			err = store.UpdateRawInfo(ctx, info)
		}
		if err != nil {
			return nil, err
		}

		if !seen[src.OfferID] {
			seen[src.OfferID] = true
			touched = append(touched, src.Offer)
		}
	}

	// Consolidation always works from the full history, not just the rows
	// this batch wrote.
	for _, offer := range touched {
		infos, err := store.RawInfosByOfferID(ctx, offer.ID)
		if err != nil {
			return nil, err
		}
		Consolidate(offer, infos)
		if err := store.UpdateOfferConsolidated(ctx, offer); err != nil {
			return nil, err
		}
	}
	return touched, nil
}

func applyScrape(info *models.OfferRawInfo, scraped *scraping.ScrapeResult, now time.Time) {
	title := scraped.Title
	desc := scraped.Description
	at := now

	info.Title = &title
	info.Description = &desc
	info.Price = scraped.Price
	info.PriceCurrency = scraped.PriceCurrency
	info.AdminRent = scraped.AdminRent
	info.AdminRentCurrency = scraped.AdminRentCurrency
	info.Area = scraped.Area
	info.Rooms = scraped.Rooms
	info.Address = scraped.Address
	info.PhotoURLs = scraped.PhotoURLs
	info.ExternalID = scraped.ExternalID
	info.Floor = scraped.Floor
	info.Furnished = scraped.Furnished
	info.PetsAllowed = scraped.PetsAllowed
	info.Elevator = scraped.Elevator
	info.Parking = scraped.Parking
	info.BuildingType = scraped.BuildingType
	info.ScrapedAt = &at
}

func applyEnrich(info *models.OfferRawInfo, enriched *scraping.EnrichResult, now time.Time) error {
	summary := enriched.Summary
	at := now

	info.Summary = &summary
	info.EnrichedAddress = enriched.Address
	info.EnrichedRent = enriched.Costs.Rent
	info.EnrichedRentCurrency = enriched.Costs.RentCurrency
	info.EnrichedAdminRent = enriched.Costs.AdminRent
	info.EnrichedAdminRentCurrency = enriched.Costs.AdminRentCurrency
	info.TotalMonthlyCost = enriched.Costs.TotalMonthly
	info.TotalMonthlyCostCurrency = enriched.Costs.TotalMonthlyCurrency
	info.EnrichedAt = &at

	info.Maintenance = nil
	if enriched.Notes != nil {
		var m models.MaintenanceData
		if err := json.Unmarshal([]byte(*enriched.Notes), &m); err != nil {
			return fmt.Errorf("failed to decode maintenance notes: %w", err)
		}
		info.Maintenance = &m
	}
	return nil
}
