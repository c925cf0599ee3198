package offers

import (
	"github.com/lokum-app/lokum/internal/models"
)

// Consolidate rewrites an offer's derived fields from its observation
// history. The most recently scraped observation wins; within it, enriched
// values take precedence over raw ones where both exist. Fields that only
// enrichment produces (summary, total cost, coordinates) are overwritten
// unconditionally, nulls included. No-op when infos is empty.
func Consolidate(offer *models.Offer, infos []*models.OfferRawInfo) {
	if len(infos) == 0 {
		return
	}

	best := infos[0]
	for _, ri := range infos[1:] {
		if scrapedAfter(ri, best) {
			best = ri
		}
	}

	offer.Summary = best.Summary

	if best.EnrichedAddress != nil {
		offer.StreetAddress = best.EnrichedAddress
	} else if best.Address != nil {
		offer.StreetAddress = best.Address
	}

	if best.Area != nil {
		offer.Area = best.Area
	}

	if best.EnrichedRent != nil {
		offer.Rent = best.EnrichedRent
	} else if best.Price != nil {
		offer.Rent = best.Price
	}

	if best.EnrichedAdminRent != nil {
		offer.AdminFee = best.EnrichedAdminRent
	} else if best.AdminRent != nil {
		offer.AdminFee = best.AdminRent
	}

	offer.TotalMonthlyCost = best.TotalMonthlyCost
	offer.TotalMonthlyCostCurrency = best.TotalMonthlyCostCurrency
	offer.Latitude = best.Latitude
	offer.Longitude = best.Longitude
}

// scrapedAfter reports whether a was scraped strictly later than b. A nil
// timestamp sorts before every non-nil one, so ties keep the earlier
// observation in input order.
func scrapedAfter(a, b *models.OfferRawInfo) bool {
	if a.ScrapedAt == nil {
		return false
	}
	if b.ScrapedAt == nil {
		return true
	}
	return a.ScrapedAt.After(*b.ScrapedAt)
}
