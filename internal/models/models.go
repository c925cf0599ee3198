package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/price"
)

// SourceType identifies the site a listing URL belongs to.
type SourceType string

const SourceTypeOLX SourceType = "olx"

// EngineType identifies a search engine implementation.
type EngineType string

const EngineOLX EngineType = "olx"

// Offer is the canonical, deduplicated view of one rental unit. Its
// identity fields (title, location, rent) follow the latest observation;
// the derived fields are re-derivable from the offer's raw infos at any
// time.
type Offer struct {
	ID       uuid.UUID
	Title    string
	Location *string

	Area                     *float64
	Rent                     *float64
	AdminFee                 *float64
	TotalMonthlyCost         *float64
	TotalMonthlyCostCurrency *price.Currency
	StreetAddress            *string
	Summary                  *string
	Latitude                 *float64
	Longitude                *float64

	Sources []*OfferSource

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// OfferSource is one external listing URL pointing at an Offer. The URL
// is globally unique and is the sole deduplication key.
type OfferSource struct {
	ID         uuid.UUID
	OfferID    uuid.UUID
	SourceType SourceType
	URL        string
	RawPrice   *price.ParsedPrice
	ScrapedAt  time.Time

	Offer *Offer

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// OfferRawInfo holds everything a single source yielded, raw scrape and
// LLM enrichment side by side. Exactly one exists per OfferSource, created
// the first time the pipeline processes the source and overwritten in
// place on every later run.
type OfferRawInfo struct {
	ID            uuid.UUID
	OfferSourceID uuid.UUID

	// Raw fields, filled by the scrape stage.
	Title             *string
	Description       *string
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
	ScrapedAt         *time.Time

	// Enriched fields, filled by the enrichment stage.
	Summary                   *string
	EnrichedAddress           *string
	EnrichedRent              *float64
	EnrichedRentCurrency      *price.Currency
	EnrichedAdminRent         *float64
	EnrichedAdminRentCurrency *price.Currency
	TotalMonthlyCost          *float64
	TotalMonthlyCostCurrency  *price.Currency
	EnrichedAt                *time.Time

	// Reserved for geocoding; consolidation copies these through.
	Latitude  *float64
	Longitude *float64

	Maintenance *MaintenanceData

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Query is a saved user search executed periodically.
type Query struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Name             string
	SearchQuery      string
	Location         string
	SearchEngine     EngineType
	MaxPages         int
	IsActive         bool
	RunIntervalHours int
	LastRunAt        *time.Time
	LastError        *string
	LastErrorAt      *time.Time

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// QueryResult links a Query to an OfferSource it surfaced. At most one
// link exists per (query, source) pair.
type QueryResult struct {
	ID            uuid.UUID
	QueryID       uuid.UUID
	OfferSourceID uuid.UUID
	FoundAt       time.Time

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// User owns queries. Identified by email.
type User struct {
	ID    uuid.UUID
	Name  string
	Email string

	CreatedAt time.Time
	UpdatedAt *time.Time
}
