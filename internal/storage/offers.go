package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lokum-app/lokum/internal/models"
)

const offerCols = `o.id, o.title, o.location, o.area, o.rent, o.admin_fee,
	o.total_monthly_cost, o.total_monthly_cost_currency, o.street_address,
	o.summary, o.latitude, o.longitude, o.created_at, o.updated_at`

const sourceCols = `s.id, s.offer_id, s.source_type, s.url, s.raw_price,
	s.scraped_at, s.created_at, s.updated_at`

const rawInfoCols = `ri.id, ri.offer_source_id, ri.title, ri.description,
	ri.price, ri.price_currency, ri.admin_rent, ri.admin_rent_currency,
	ri.area, ri.rooms, ri.address, ri.photo_urls, ri.external_id, ri.floor,
	ri.furnished, ri.pets_allowed, ri.elevator, ri.parking, ri.building_type,
	ri.scraped_at, ri.summary, ri.enriched_address, ri.enriched_rent,
	ri.enriched_rent_currency, ri.enriched_admin_rent,
	ri.enriched_admin_rent_currency, ri.total_monthly_cost,
	ri.total_monthly_cost_currency, ri.enriched_at, ri.latitude, ri.longitude,
	ri.maintenance, ri.created_at, ri.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(r rowScanner) (*models.Offer, error) {
	var (
		o                           models.Offer
		location, currency          sql.NullString
		street, summary             sql.NullString
		area, rent, adminFee, total sql.NullFloat64
		lat, lng                    sql.NullFloat64
		updated                     sql.NullTime
	)
	err := r.Scan(&o.ID, &o.Title, &location, &area, &rent, &adminFee,
		&total, &currency, &street, &summary, &lat, &lng, &o.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	o.Location = strPtr(location)
	o.Area = floatPtr(area)
	o.Rent = floatPtr(rent)
	o.AdminFee = floatPtr(adminFee)
	o.TotalMonthlyCost = floatPtr(total)
	o.TotalMonthlyCostCurrency = currencyPtr(currency)
	o.StreetAddress = strPtr(street)
	o.Summary = strPtr(summary)
	o.Latitude = floatPtr(lat)
	o.Longitude = floatPtr(lng)
	o.UpdatedAt = timePtr(updated)
	return &o, nil
}

func scanSource(r rowScanner) (*models.OfferSource, error) {
	var (
		s       models.OfferSource
		srcType string
		rawJSON []byte
		updated sql.NullTime
	)
	err := r.Scan(&s.ID, &s.OfferID, &srcType, &s.URL, &rawJSON,
		&s.ScrapedAt, &s.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	s.SourceType = models.SourceType(srcType)
	rp, err := scanRawPrice(rawJSON)
	if err != nil {
		return nil, err
	}
	s.RawPrice = rp
	s.UpdatedAt = timePtr(updated)
	return &s, nil
}

func scanRawInfo(r rowScanner) (*models.OfferRawInfo, error) {
	var (
		ri                                models.OfferRawInfo
		title, description, address       sql.NullString
		externalID, floor, buildingType   sql.NullString
		priceCur, adminCur, enrRentCur    sql.NullString
		enrAdminCur, totalCur             sql.NullString
		summary, enrichedAddress          sql.NullString
		priceVal, adminRent, area         sql.NullFloat64
		enrRent, enrAdminRent, total      sql.NullFloat64
		lat, lng                          sql.NullFloat64
		rooms                             sql.NullInt64
		furnished, pets, elevator, parked sql.NullBool
		scrapedAt, enrichedAt, updated    sql.NullTime
		photos                            pq.StringArray
		maintJSON                         []byte
	)
	err := r.Scan(&ri.ID, &ri.OfferSourceID, &title, &description,
		&priceVal, &priceCur, &adminRent, &adminCur,
		&area, &rooms, &address, &photos, &externalID, &floor,
		&furnished, &pets, &elevator, &parked, &buildingType,
		&scrapedAt, &summary, &enrichedAddress, &enrRent,
		&enrRentCur, &enrAdminRent,
		&enrAdminCur, &total,
		&totalCur, &enrichedAt, &lat, &lng,
		&maintJSON, &ri.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	ri.Title = strPtr(title)
	ri.Description = strPtr(description)
	ri.Price = floatPtr(priceVal)
	ri.PriceCurrency = currencyPtr(priceCur)
	ri.AdminRent = floatPtr(adminRent)
	ri.AdminRentCurrency = currencyPtr(adminCur)
	ri.Area = floatPtr(area)
	ri.Rooms = intPtr(rooms)
	ri.Address = strPtr(address)
	ri.PhotoURLs = []string(photos)
	ri.ExternalID = strPtr(externalID)
	ri.Floor = strPtr(floor)
	ri.Furnished = boolPtr(furnished)
	ri.PetsAllowed = boolPtr(pets)
	ri.Elevator = boolPtr(elevator)
	ri.Parking = boolPtr(parked)
	ri.BuildingType = strPtr(buildingType)
	ri.ScrapedAt = timePtr(scrapedAt)
	ri.Summary = strPtr(summary)
	ri.EnrichedAddress = strPtr(enrichedAddress)
	ri.EnrichedRent = floatPtr(enrRent)
	ri.EnrichedRentCurrency = currencyPtr(enrRentCur)
	ri.EnrichedAdminRent = floatPtr(enrAdminRent)
	ri.EnrichedAdminRentCurrency = currencyPtr(enrAdminCur)
	ri.TotalMonthlyCost = floatPtr(total)
	ri.TotalMonthlyCostCurrency = currencyPtr(totalCur)
	ri.EnrichedAt = timePtr(enrichedAt)
	ri.Latitude = floatPtr(lat)
	ri.Longitude = floatPtr(lng)
	maint, err := scanMaintenance(maintJSON)
	if err != nil {
		return nil, err
	}
	ri.Maintenance = maint
	ri.UpdatedAt = timePtr(updated)
	return &ri, nil
}

// SourcesByURLs returns the sources whose URL appears in urls. Each source
// carries its offer, and each offer carries its complete source list, so a
// matched source and its siblings share one Offer instance.
func (t *Tx) SourcesByURLs(ctx context.Context, urls []string) ([]*models.OfferSource, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT `+offerCols+`
		FROM offers o
		JOIN offer_sources s ON s.offer_id = o.id
		WHERE s.url = ANY($1)`, pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("failed to query offers by urls: %w", err)
	}
	defer rows.Close()

	offers := make(map[uuid.UUID]*models.Offer)
	offerIDs := make([]uuid.UUID, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers[o.ID] = o
		offerIDs = append(offerIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read offers: %w", err)
	}
	if len(offerIDs) == 0 {
		return nil, nil
	}

	sources, err := t.sourcesByOfferIDs(ctx, offerIDs)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(urls))
	for _, u := range urls {
		wanted[u] = true
	}
	var matched []*models.OfferSource
	for _, s := range sources {
		o := offers[s.OfferID]
		s.Offer = o
		o.Sources = append(o.Sources, s)
		if wanted[s.URL] {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

func (t *Tx) sourcesByOfferIDs(ctx context.Context, ids []uuid.UUID) ([]*models.OfferSource, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+sourceCols+`
		FROM offer_sources s
		WHERE s.offer_id = ANY($1)
		ORDER BY s.created_at, s.id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query sources by offer ids: %w", err)
	}
	defer rows.Close()

	var sources []*models.OfferSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sources: %w", err)
	}
	return sources, nil
}

// SourcesByIDs returns the sources with the given IDs, offers attached.
func (t *Tx) SourcesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.OfferSource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+sourceCols+`
		FROM offer_sources s
		WHERE s.id = ANY($1)
		ORDER BY s.created_at, s.id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query sources by ids: %w", err)
	}
	defer rows.Close()

	var sources []*models.OfferSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil
	}

	offerIDs := make([]uuid.UUID, 0, len(sources))
	seen := make(map[uuid.UUID]bool)
	for _, s := range sources {
		if !seen[s.OfferID] {
			seen[s.OfferID] = true
			offerIDs = append(offerIDs, s.OfferID)
		}
	}
	offers, err := t.offersByIDs(ctx, offerIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		s.Offer = offers[s.OfferID]
	}
	return sources, nil
}

func (t *Tx) offersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Offer, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+offerCols+`
		FROM offers o
		WHERE o.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query offers by ids: %w", err)
	}
	defer rows.Close()

	offers := make(map[uuid.UUID]*models.Offer, len(ids))
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read offers: %w", err)
	}
	return offers, nil
}

// InsertOffer inserts the offer and all of its sources, assigning IDs
// where unset.
func (t *Tx) InsertOffer(ctx context.Context, o *models.Offer) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO offers (id, title, location, area, rent, admin_fee,
			total_monthly_cost, total_monthly_cost_currency, street_address,
			summary, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.Title, o.Location, o.Area, o.Rent, o.AdminFee,
		o.TotalMonthlyCost, currencyArg(o.TotalMonthlyCostCurrency),
		o.StreetAddress, o.Summary, o.Latitude, o.Longitude)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	for _, s := range o.Sources {
		s.OfferID = o.ID
		if err := t.InsertSource(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// InsertSource inserts one offer source, assigning an ID where unset.
func (t *Tx) InsertSource(ctx context.Context, s *models.OfferSource) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	rawPrice, err := rawPriceArg(s.RawPrice)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO offer_sources (id, offer_id, source_type, url, raw_price, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.OfferID, string(s.SourceType), s.URL, rawPrice, s.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to insert offer source: %w", err)
	}
	return nil
}

// UpdateSourceObservation stores a fresh sighting of an existing source.
func (t *Tx) UpdateSourceObservation(ctx context.Context, s *models.OfferSource) error {
	rawPrice, err := rawPriceArg(s.RawPrice)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE offer_sources
		SET raw_price = $2, scraped_at = $3, updated_at = now()
		WHERE id = $1`,
		s.ID, rawPrice, s.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to update offer source: %w", err)
	}
	return nil
}

// UpdateOfferIdentity rewrites the identity fields a search result carries.
func (t *Tx) UpdateOfferIdentity(ctx context.Context, o *models.Offer) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE offers
		SET title = $2, location = $3, rent = $4, updated_at = now()
		WHERE id = $1`,
		o.ID, o.Title, o.Location, o.Rent)
	if err != nil {
		return fmt.Errorf("failed to update offer identity: %w", err)
	}
	return nil
}

// UpdateOfferConsolidated rewrites the derived fields after consolidation.
func (t *Tx) UpdateOfferConsolidated(ctx context.Context, o *models.Offer) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE offers
		SET area = $2, rent = $3, admin_fee = $4, total_monthly_cost = $5,
			total_monthly_cost_currency = $6, street_address = $7, summary = $8,
			latitude = $9, longitude = $10, updated_at = now()
		WHERE id = $1`,
		o.ID, o.Area, o.Rent, o.AdminFee, o.TotalMonthlyCost,
		currencyArg(o.TotalMonthlyCostCurrency), o.StreetAddress, o.Summary,
		o.Latitude, o.Longitude)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	return nil
}

// RawInfoBySourceID returns the raw info for a source, or nil if none exists.
func (t *Tx) RawInfoBySourceID(ctx context.Context, sourceID uuid.UUID) (*models.OfferRawInfo, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+rawInfoCols+`
		FROM offer_raw_infos ri
		WHERE ri.offer_source_id = $1`, sourceID)
	ri, err := scanRawInfo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query raw info: %w", err)
	}
	return ri, nil
}

// RawInfosByOfferID returns every raw info attached to an offer's sources,
// oldest first.
func (t *Tx) RawInfosByOfferID(ctx context.Context, offerID uuid.UUID) ([]*models.OfferRawInfo, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+rawInfoCols+`
		FROM offer_raw_infos ri
		JOIN offer_sources s ON s.id = ri.offer_source_id
		WHERE s.offer_id = $1
		ORDER BY ri.created_at, ri.id`, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw infos: %w", err)
	}
	defer rows.Close()

	var infos []*models.OfferRawInfo
	for rows.Next() {
		ri, err := scanRawInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw info: %w", err)
		}
		infos = append(infos, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw infos: %w", err)
	}
	return infos, nil
}

func rawInfoArgs(ri *models.OfferRawInfo) ([]any, error) {
	maint, err := maintenanceArg(ri.Maintenance)
	if err != nil {
		return nil, err
	}
	return []any{
		ri.Title, ri.Description, ri.Price, currencyArg(ri.PriceCurrency),
		ri.AdminRent, currencyArg(ri.AdminRentCurrency), ri.Area, ri.Rooms,
		ri.Address, pq.Array(ri.PhotoURLs), ri.ExternalID, ri.Floor,
		ri.Furnished, ri.PetsAllowed, ri.Elevator, ri.Parking,
		ri.BuildingType, ri.ScrapedAt, ri.Summary, ri.EnrichedAddress,
		ri.EnrichedRent, currencyArg(ri.EnrichedRentCurrency),
		ri.EnrichedAdminRent, currencyArg(ri.EnrichedAdminRentCurrency),
		ri.TotalMonthlyCost, currencyArg(ri.TotalMonthlyCostCurrency),
		ri.EnrichedAt, ri.Latitude, ri.Longitude, maint,
	}, nil
}

// InsertRawInfo inserts a raw info row, assigning an ID where unset.
func (t *Tx) InsertRawInfo(ctx context.Context, ri *models.OfferRawInfo) error {
	if ri.ID == uuid.Nil {
		ri.ID = uuid.New()
	}
	args, err := rawInfoArgs(ri)
	if err != nil {
		return err
	}
	args = append([]any{ri.ID, ri.OfferSourceID}, args...)
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO offer_raw_infos (id, offer_source_id, title, description,
			price, price_currency, admin_rent, admin_rent_currency, area, rooms,
			address, photo_urls, external_id, floor, furnished, pets_allowed,
			elevator, parking, building_type, scraped_at, summary,
			enriched_address, enriched_rent, enriched_rent_currency,
			enriched_admin_rent, enriched_admin_rent_currency,
			total_monthly_cost, total_monthly_cost_currency, enriched_at,
			latitude, longitude, maintenance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27,
			$28, $29, $30, $31, $32)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert raw info: %w", err)
	}
	return nil
}

// UpdateRawInfo overwrites every payload column of an existing raw info row.
func (t *Tx) UpdateRawInfo(ctx context.Context, ri *models.OfferRawInfo) error {
	args, err := rawInfoArgs(ri)
	if err != nil {
		return err
	}
	args = append([]any{ri.ID}, args...)
	_, err = t.tx.ExecContext(ctx, `
		UPDATE offer_raw_infos
		SET title = $2, description = $3, price = $4, price_currency = $5,
			admin_rent = $6, admin_rent_currency = $7, area = $8, rooms = $9,
			address = $10, photo_urls = $11, external_id = $12, floor = $13,
			furnished = $14, pets_allowed = $15, elevator = $16, parking = $17,
			building_type = $18, scraped_at = $19, summary = $20,
			enriched_address = $21, enriched_rent = $22,
			enriched_rent_currency = $23, enriched_admin_rent = $24,
			enriched_admin_rent_currency = $25, total_monthly_cost = $26,
			total_monthly_cost_currency = $27, enriched_at = $28,
			latitude = $29, longitude = $30, maintenance = $31,
			updated_at = now()
		WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("failed to update raw info: %w", err)
	}
	return nil
}

// StaleSourceRefs returns sources that have never been scraped in detail or
// whose raw info is older than cutoff.
func (t *Tx) StaleSourceRefs(ctx context.Context, cutoff time.Time) ([]*models.OfferSource, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+sourceCols+`
		FROM offer_sources s
		LEFT JOIN offer_raw_infos ri ON ri.offer_source_id = s.id
		WHERE ri.id IS NULL OR ri.scraped_at < $1
		ORDER BY s.created_at, s.id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.OfferSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stale sources: %w", err)
	}
	return sources, nil
}
