package registry

import (
	"testing"

	"github.com/lokum-app/lokum/internal/config"
	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/scraping/fetch"
	"github.com/lokum-app/lokum/internal/scraping/olx"
)

func testConfig() *config.Config {
	return &config.Config{
		FetchMode:          config.FetchModeHTTP,
		FetchRatePerMinute: 30,
	}
}

func TestNewSearcher(t *testing.T) {
	r := New(testConfig())

	searcher, err := r.NewSearcher(models.EngineOLX)
	if err != nil {
		t.Fatalf("NewSearcher() error = %v", err)
	}
	if _, ok := searcher.(*olx.SearchEngine); !ok {
		t.Errorf("Expected an OLX search engine, got %T", searcher)
	}

	if _, err := r.NewSearcher(models.EngineType("allegro")); err == nil {
		t.Error("Expected an error for an unknown engine")
	}
}

func TestNewScraper(t *testing.T) {
	r := New(testConfig())

	scraper, err := r.NewScraper(models.SourceTypeOLX)
	if err != nil {
		t.Fatalf("NewScraper() error = %v", err)
	}
	if _, ok := scraper.(*olx.OfferScraper); !ok {
		t.Errorf("Expected an OLX offer scraper, got %T", scraper)
	}

	if _, err := r.NewScraper(models.SourceType("gumtree")); err == nil {
		t.Error("Expected an error for an unknown source type")
	}
}

func TestNewFetcher_BrowserMode(t *testing.T) {
	cfg := testConfig()
	cfg.FetchMode = config.FetchModeBrowser
	r := New(cfg)

	if _, ok := r.newFetcher().(*fetch.BrowserClient); !ok {
		t.Error("Expected a browser client in browser fetch mode")
	}

	cfg.FetchMode = config.FetchModeHTTP
	if _, ok := r.newFetcher().(*fetch.Client); !ok {
		t.Error("Expected a plain HTTP client in http fetch mode")
	}
}
