package scraping

import (
	"context"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/price"
)

// SearchParams describes one search-engine invocation.
type SearchParams struct {
	Query    string
	Location string
	Engine   models.EngineType
	MaxPages int
}

// SearchResult is one listing surfaced by a search, identified by its URL.
type SearchResult struct {
	URL        string
	Title      string
	SourceType models.SourceType
	Price      *string
	Location   *string
	Date       *string
}

// Request addresses one listing page for scraping.
type Request struct {
	URL        string
	SourceType models.SourceType
}

// ScrapeResult carries every field a listing page yields directly.
type ScrapeResult struct {
	URL         string
	Title       string
	Description string
	SourceType  models.SourceType

	Price             *float64
	PriceCurrency     *price.Currency
	AdminRent         *float64
	AdminRentCurrency *price.Currency
	Area              *float64
	Rooms             *int
	Address           *string
	PhotoURLs         []string
	ExternalID        *string
	Floor             *string
	Furnished         *bool
	PetsAllowed       *bool
	Elevator          *bool
	Parking           *bool
	BuildingType      *string
}

// CostBreakdown is the LLM's decomposition of a listing's costs.
type CostBreakdown struct {
	Rent                 *float64
	RentCurrency         *price.Currency
	AdminRent            *float64
	AdminRentCurrency    *price.Currency
	TotalMonthly         *float64
	TotalMonthlyCurrency *price.Currency
}

// EnrichResult is the structured output of the enrichment stage. Notes
// carries the serialized maintenance payload for traceability.
type EnrichResult struct {
	Summary string
	Address *string
	Costs   CostBreakdown
	Notes   *string
}

// Searcher runs a saved search against one engine. Implementations are
// stateless apart from their HTTP plumbing and safe to discard after use.
type Searcher interface {
	Search(ctx context.Context, params SearchParams) ([]SearchResult, error)
}

// Scraper fetches and parses a single listing page.
type Scraper interface {
	Scrape(ctx context.Context, req Request) (*ScrapeResult, error)
}

// Enricher extracts structured data from a scraped listing. Only called
// when the scrape produced a non-empty description.
type Enricher interface {
	Enrich(ctx context.Context, scraped *ScrapeResult) (*EnrichResult, error)
}

// Item is the unit of work carried through the scrape-enrich pipeline,
// one per offer source.
type Item struct {
	OfferSourceID uuid.UUID
	URL           string
	SourceType    models.SourceType

	Scrape *ScrapeResult
	Enrich *EnrichResult
}
