package offers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/scraping"
)

type mockResolverStore struct {
	sources        []*models.OfferSource
	lookupErr      error
	lookups        int
	inserted       []*models.Offer
	updatedSources []*models.OfferSource
	updatedOffers  []*models.Offer
}

func (m *mockResolverStore) SourcesByURLs(_ context.Context, urls []string) ([]*models.OfferSource, error) {
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	want := make(map[string]bool, len(urls))
	for _, u := range urls {
		want[u] = true
	}
	var out []*models.OfferSource
	for _, s := range m.sources {
		if want[s.URL] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockResolverStore) InsertOffer(_ context.Context, o *models.Offer) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for _, s := range o.Sources {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.OfferID = o.ID
	}
	m.inserted = append(m.inserted, o)
	return nil
}

func (m *mockResolverStore) UpdateSourceObservation(_ context.Context, s *models.OfferSource) error {
	m.updatedSources = append(m.updatedSources, s)
	return nil
}

func (m *mockResolverStore) UpdateOfferIdentity(_ context.Context, o *models.Offer) error {
	m.updatedOffers = append(m.updatedOffers, o)
	return nil
}

func existingSource(url string) *models.OfferSource {
	offer := &models.Offer{ID: uuid.New(), Title: "stored title", Rent: fp(1500)}
	src := &models.OfferSource{
		ID:         uuid.New(),
		OfferID:    offer.ID,
		SourceType: models.SourceTypeOLX,
		URL:        url,
		ScrapedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Offer:      offer,
	}
	offer.Sources = []*models.OfferSource{src}
	return src
}

func TestResolveOffers_EmptyInput(t *testing.T) {
	store := &mockResolverStore{}

	offers, err := ResolveOffers(context.Background(), store, nil, time.Now())
	if err != nil {
		t.Fatalf("ResolveOffers() error = %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("Expected no offers, got %d", len(offers))
	}
	if store.lookups != 0 {
		t.Errorf("Expected no store access on empty input, got %d lookups", store.lookups)
	}
}

func TestResolveOffers_CreatesOfferPerDistinctURL(t *testing.T) {
	store := &mockResolverStore{}
	now := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	results := []scraping.SearchResult{
		{URL: "https://www.olx.pl/d/oferta/a.html", Title: "Kawalerka A", SourceType: models.SourceTypeOLX, Price: sp("2 500 zł"), Location: sp("Warszawa")},
		{URL: "https://www.olx.pl/d/oferta/b.html", Title: "Kawalerka B", SourceType: models.SourceTypeOLX, Price: sp("1,234.56 USD")},
		{URL: "https://www.olx.pl/d/oferta/a.html", Title: "Kawalerka A again", SourceType: models.SourceTypeOLX, Price: sp("9 999 zł")},
	}

	offers, err := ResolveOffers(context.Background(), store, results, now)
	if err != nil {
		t.Fatalf("ResolveOffers() error = %v", err)
	}

	if len(offers) != 3 {
		t.Fatalf("Expected 3 offers (one per input), got %d", len(offers))
	}
	if offers[0] != offers[2] {
		t.Error("Expected repeated URL to resolve to the same offer instance")
	}
	if len(store.inserted) != 2 {
		t.Errorf("Expected 2 inserted offers, got %d", len(store.inserted))
	}

	first := offers[0]
	if first.Title != "Kawalerka A" {
		t.Errorf("Expected first occurrence to win, got title %q", first.Title)
	}
	if first.Rent == nil || *first.Rent != 2500 {
		t.Errorf("Expected rent 2500 from parsed price, got %v", first.Rent)
	}
	if len(first.Sources) != 1 {
		t.Fatalf("Expected 1 source on new offer, got %d", len(first.Sources))
	}
	src := first.Sources[0]
	if src.URL != results[0].URL || src.SourceType != models.SourceTypeOLX {
		t.Errorf("Unexpected source identity: %+v", src)
	}
	if src.RawPrice == nil || src.RawPrice.Amount == nil || *src.RawPrice.Amount != 2500 {
		t.Errorf("Expected raw price amount 2500, got %+v", src.RawPrice)
	}
	if !src.ScrapedAt.Equal(now) {
		t.Errorf("Expected scraped at %v, got %v", now, src.ScrapedAt)
	}
}

func TestResolveOffers_UpdatesExistingSource(t *testing.T) {
	src := existingSource("https://www.olx.pl/d/oferta/known.html")
	store := &mockResolverStore{sources: []*models.OfferSource{src}}
	now := time.Date(2025, 5, 11, 9, 0, 0, 0, time.UTC)

	offers, err := ResolveOffers(context.Background(), store, []scraping.SearchResult{
		{URL: src.URL, Title: "Fresh title", SourceType: models.SourceTypeOLX, Price: sp("1 800 zł"), Location: sp("Kraków")},
	}, now)
	if err != nil {
		t.Fatalf("ResolveOffers() error = %v", err)
	}

	if len(store.inserted) != 0 {
		t.Errorf("Expected no inserts for a known URL, got %d", len(store.inserted))
	}
	if len(offers) != 1 || offers[0] != src.Offer {
		t.Fatal("Expected the existing offer instance to be returned")
	}
	if len(store.updatedSources) != 1 {
		t.Fatalf("Expected 1 source update, got %d", len(store.updatedSources))
	}
	if src.RawPrice == nil || *src.RawPrice.Amount != 1800 {
		t.Errorf("Expected source raw price 1800, got %+v", src.RawPrice)
	}
	if !src.ScrapedAt.Equal(now) {
		t.Errorf("Expected scraped at refreshed to %v, got %v", now, src.ScrapedAt)
	}

	offer := offers[0]
	if offer.Title != "Fresh title" {
		t.Errorf("Expected observation to win on title, got %q", offer.Title)
	}
	if offer.Location == nil || *offer.Location != "Kraków" {
		t.Errorf("Expected location Kraków, got %v", offer.Location)
	}
	if offer.Rent == nil || *offer.Rent != 1800 {
		t.Errorf("Expected rent 1800, got %v", offer.Rent)
	}
	if len(store.updatedOffers) != 1 {
		t.Errorf("Expected 1 offer identity update, got %d", len(store.updatedOffers))
	}
}

func TestResolveOffers_MissingPriceClearsRent(t *testing.T) {
	src := existingSource("https://www.olx.pl/d/oferta/known.html")
	store := &mockResolverStore{sources: []*models.OfferSource{src}}

	offers, err := ResolveOffers(context.Background(), store, []scraping.SearchResult{
		{URL: src.URL, Title: "No price listed", SourceType: models.SourceTypeOLX},
	}, time.Now())
	if err != nil {
		t.Fatalf("ResolveOffers() error = %v", err)
	}

	if offers[0].Rent != nil {
		t.Errorf("Expected rent cleared when observation has no price, got %v", *offers[0].Rent)
	}
	if src.RawPrice != nil {
		t.Errorf("Expected raw price cleared, got %+v", src.RawPrice)
	}
}

func TestResolveOffers_RerunNeverDuplicatesSource(t *testing.T) {
	store := &mockResolverStore{}
	result := scraping.SearchResult{
		URL:        "https://www.olx.pl/d/oferta/c.html",
		Title:      "Dwupokojowe",
		SourceType: models.SourceTypeOLX,
		Price:      sp("2 100 zł"),
	}

	offers, err := ResolveOffers(context.Background(), store, []scraping.SearchResult{result}, time.Now())
	if err != nil {
		t.Fatalf("ResolveOffers() error = %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("Expected 1 insert on first run, got %d", len(store.inserted))
	}

	// Simulate the first run having been committed.
	store.sources = offers[0].Sources

	again, err := ResolveOffers(context.Background(), store, []scraping.SearchResult{result}, time.Now())
	if err != nil {
		t.Fatalf("ResolveOffers() error = %v", err)
	}
	if len(store.inserted) != 1 {
		t.Errorf("Expected no new inserts on rerun, got %d", len(store.inserted))
	}
	if len(store.updatedSources) != 1 {
		t.Errorf("Expected the existing source to be updated, got %d updates", len(store.updatedSources))
	}
	if again[0] != offers[0] {
		t.Error("Expected rerun to resolve to the same offer")
	}
}

func TestResolveOffers_LookupErrorPropagates(t *testing.T) {
	store := &mockResolverStore{lookupErr: errors.New("connection reset")}

	_, err := ResolveOffers(context.Background(), store, []scraping.SearchResult{
		{URL: "https://www.olx.pl/d/oferta/a.html", Title: "A", SourceType: models.SourceTypeOLX},
	}, time.Now())
	if err == nil {
		t.Fatal("Expected lookup error to propagate")
	}
}

type mockSearcher struct {
	results map[string][]scraping.SearchResult
	err     error
	queries []string
}

func (m *mockSearcher) Search(_ context.Context, params scraping.SearchParams) ([]scraping.SearchResult, error) {
	m.queries = append(m.queries, params.Query)
	if m.err != nil {
		return nil, m.err
	}
	return m.results[params.Query], nil
}

func searchResult(id string) scraping.SearchResult {
	return scraping.SearchResult{
		URL:        fmt.Sprintf("https://www.olx.pl/d/oferta/%s.html", id),
		Title:      id,
		SourceType: models.SourceTypeOLX,
	}
}

func TestSearchAndResolve_GroupsByEngine(t *testing.T) {
	olx := &mockSearcher{results: map[string][]scraping.SearchResult{
		"q1": {searchResult("q1")},
		"q3": {searchResult("q3")},
	}}
	other := &mockSearcher{results: map[string][]scraping.SearchResult{
		"q2": {searchResult("q2")},
	}}

	var mu sync.Mutex
	created := make(map[models.EngineType]int)
	factory := func(engine models.EngineType) (scraping.Searcher, error) {
		mu.Lock()
		created[engine]++
		mu.Unlock()
		if engine == models.EngineOLX {
			return olx, nil
		}
		return other, nil
	}

	store := &mockResolverStore{}
	offers, err := SearchAndResolve(context.Background(), store, factory, []scraping.SearchParams{
		{Query: "q1", Engine: models.EngineOLX, MaxPages: 1},
		{Query: "q2", Engine: models.EngineType("other"), MaxPages: 1},
		{Query: "q3", Engine: models.EngineOLX, MaxPages: 1},
	}, time.Now())
	if err != nil {
		t.Fatalf("SearchAndResolve() error = %v", err)
	}

	if len(offers) != 3 {
		t.Fatalf("Expected 3 offers, got %d", len(offers))
	}
	if created[models.EngineOLX] != 1 || created[models.EngineType("other")] != 1 {
		t.Errorf("Expected one searcher per distinct engine, got %v", created)
	}
	if len(olx.queries) != 2 || olx.queries[0] != "q1" || olx.queries[1] != "q3" {
		t.Errorf("Expected olx searcher to run q1 then q3, got %v", olx.queries)
	}

	q1Pos, q3Pos := -1, -1
	for i, o := range offers {
		switch o.Title {
		case "q1":
			q1Pos = i
		case "q3":
			q3Pos = i
		}
	}
	if q1Pos == -1 || q3Pos == -1 || q1Pos > q3Pos {
		t.Errorf("Expected per-engine result order preserved, got positions q1=%d q3=%d", q1Pos, q3Pos)
	}
}

func TestSearchAndResolve_SearchErrorPropagates(t *testing.T) {
	failing := &mockSearcher{err: errors.New("timeout")}
	factory := func(models.EngineType) (scraping.Searcher, error) {
		return failing, nil
	}

	store := &mockResolverStore{}
	_, err := SearchAndResolve(context.Background(), store, factory, []scraping.SearchParams{
		{Query: "q", Engine: models.EngineOLX, MaxPages: 1},
	}, time.Now())
	if err == nil {
		t.Fatal("Expected search error to propagate")
	}
	if store.lookups != 0 {
		t.Errorf("Expected no resolution after failed search, got %d lookups", store.lookups)
	}
}

func TestSearchAndResolve_EmptyParams(t *testing.T) {
	offers, err := SearchAndResolve(context.Background(), &mockResolverStore{}, nil, nil, time.Now())
	if err != nil {
		t.Fatalf("SearchAndResolve() error = %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("Expected no offers, got %d", len(offers))
	}
}
