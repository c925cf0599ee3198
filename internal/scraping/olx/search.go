package olx

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/scraping"
	"github.com/lokum-app/lokum/internal/scraping/fetch"
)

// DefaultBaseURL is the production OLX host. Tests point it elsewhere.
const DefaultBaseURL = "https://www.olx.pl"

var areaPattern = regexp.MustCompile(`(\d+)\s*m²`)

// SearchEngine lists rental ads from OLX search result pages, newest first,
// walking pagination up to the query's page cap.
type SearchEngine struct {
	fetcher fetch.Fetcher
	baseURL string
}

func NewSearchEngine(fetcher fetch.Fetcher, baseURL string) *SearchEngine {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &SearchEngine{fetcher: fetcher, baseURL: baseURL}
}

func (e *SearchEngine) Search(ctx context.Context, params scraping.SearchParams) ([]scraping.SearchResult, error) {
	var results []scraping.SearchResult
	for page := 1; page <= params.MaxPages; page++ {
		pageURL := e.pageURL(params, page)
		html, err := e.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch search page %d: %w", page, err)
		}

		cards, hasNext, err := parseSearchPage(html)
		if err != nil {
			return nil, err
		}
		for _, card := range cards {
			results = append(results, card.toSearchResult(e.baseURL))
		}
		if !hasNext {
			break
		}
	}
	return results, nil
}

func (e *SearchEngine) pageURL(params scraping.SearchParams, page int) string {
	q := url.Values{}
	q.Set("search[order]", "created_at:desc")
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s/nieruchomosci/mieszkania/wynajem/%s/q-%s/?%s",
		e.baseURL, url.PathEscape(params.Location), url.PathEscape(params.Query), q.Encode())
}

// searchCard is one parsed listing card. It keeps fields the search result
// does not carry (area, promoted flag) for logging and future filtering.
type searchCard struct {
	Title    string
	Price    string
	Href     string
	Location string
	Date     string
	Area     *string
	Promoted bool
}

func (c searchCard) toSearchResult(baseURL string) scraping.SearchResult {
	price := c.Price
	location := c.Location
	date := c.Date
	return scraping.SearchResult{
		URL:        baseURL + c.Href,
		Title:      c.Title,
		SourceType: models.SourceTypeOLX,
		Price:      &price,
		Location:   &location,
		Date:       &date,
	}
}

// parseSearchPage extracts the listing cards and whether a further page
// exists. Cards missing any of title, price, link or location are skipped.
func parseSearchPage(html string) ([]searchCard, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse search page: %w", err)
	}

	var cards []searchCard
	doc.Find(`[data-testid="l-card"]`).Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h4").First().Text())

		priceSel := s.Find(`[data-testid="ad-price"]`).First().Clone()
		priceSel.Find("style").Remove()
		price := strings.TrimSpace(priceSel.Text())

		href, _ := s.Find(`a[href^="/d/oferta/"]`).First().Attr("href")
		locDate := strings.TrimSpace(s.Find(`[data-testid="location-date"]`).First().Text())

		if title == "" || price == "" || href == "" || locDate == "" {
			return
		}
		href = strings.SplitN(href, "?", 2)[0]
		location, date := splitLocationDate(locDate)

		var area *string
		if m := areaPattern.FindStringSubmatch(s.Text()); m != nil {
			a := m[1] + " m²"
			area = &a
		}

		cardHTML, _ := goquery.OuterHtml(s)
		cards = append(cards, searchCard{
			Title:    title,
			Price:    price,
			Href:     href,
			Location: location,
			Date:     date,
			Area:     area,
			Promoted: strings.Contains(cardHTML, "search%7Cpromoted"),
		})
	})

	hasNext := doc.Find(`[data-testid="pagination-forward"]`).Length() > 0
	return cards, hasNext, nil
}

// splitLocationDate splits the "location - date" line of a card. The first
// segment is the location; the date is the last segment when more than one
// is present.
func splitLocationDate(text string) (location, date string) {
	var parts []string
	for _, p := range strings.Split(text, " - ") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", ""
	}
	location = parts[0]
	if len(parts) > 1 {
		date = parts[len(parts)-1]
	}
	return location, date
}
