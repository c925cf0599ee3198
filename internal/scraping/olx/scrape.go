package olx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/price"
	"github.com/lokum-app/lokum/internal/scraping"
	"github.com/lokum-app/lokum/internal/scraping/fetch"
)

var (
	prerenderedStatePattern = regexp.MustCompile(`window\.__PRERENDERED_STATE__\s*=\s*"(.*?)"\s*;`)
	photoSizePattern        = regexp.MustCompile(`;s=\d+x\d+$`)
)

var roomsMap = map[string]int{
	"one":   1,
	"two":   2,
	"three": 3,
	"four":  4,
}

// OfferScraper reads a single OLX listing page. OLX embeds the complete ad
// as escaped JSON under window.__PRERENDERED_STATE__, so the page is parsed
// from that blob rather than the DOM.
type OfferScraper struct {
	fetcher fetch.Fetcher
}

func NewOfferScraper(fetcher fetch.Fetcher) *OfferScraper {
	return &OfferScraper{fetcher: fetcher}
}

func (s *OfferScraper) Scrape(ctx context.Context, req scraping.Request) (*scraping.ScrapeResult, error) {
	page, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offer page: %w", err)
	}
	ad, err := extractAdData(page)
	if err != nil {
		return nil, err
	}
	return parseAd(ad, req.URL), nil
}

type adData struct {
	ID          *int64     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Params      []adParam  `json:"params"`
	Photos      []string   `json:"photos"`
	Location    adLocation `json:"location"`
	Price       adPrice    `json:"price"`
}

type adParam struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	NormalizedValue string `json:"normalizedValue"`
}

type adLocation struct {
	DistrictName string `json:"districtName"`
	CityName     string `json:"cityName"`
	RegionName   string `json:"regionName"`
}

type adPrice struct {
	RegularPrice struct {
		Value        *float64 `json:"value"`
		CurrencyCode string   `json:"currencyCode"`
	} `json:"regularPrice"`
}

func extractAdData(page string) (*adData, error) {
	m := prerenderedStatePattern.FindStringSubmatch(page)
	if m == nil {
		return nil, errors.New("could not find __PRERENDERED_STATE__ in page")
	}

	jsonStr := strings.ReplaceAll(m[1], `\"`, `"`)
	jsonStr = strings.ReplaceAll(jsonStr, `\\`, `\`)

	var state struct {
		Ad struct {
			Ad *adData `json:"ad"`
		} `json:"ad"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &state); err != nil {
		return nil, fmt.Errorf("failed to decode __PRERENDERED_STATE__: %w", err)
	}
	if state.Ad.Ad == nil {
		return nil, errors.New("no ad data in __PRERENDERED_STATE__")
	}
	return state.Ad.Ad, nil
}

func parseAd(ad *adData, pageURL string) *scraping.ScrapeResult {
	res := &scraping.ScrapeResult{
		URL:           pageURL,
		Title:         ad.Title,
		Description:   stripTags(ad.Description),
		SourceType:    models.SourceTypeOLX,
		Price:         ad.Price.RegularPrice.Value,
		PriceCurrency: price.CurrencyFromCode(ad.Price.RegularPrice.CurrencyCode),
	}

	for _, p := range ad.Params {
		switch p.Key {
		case "m":
			res.Area = parseFloatString(p.NormalizedValue)
		case "rent":
			res.AdminRent = parseFloatString(p.NormalizedValue)
			res.AdminRentCurrency = price.MatchCurrency(p.Value)
		case "rooms":
			if n, ok := roomsMap[p.NormalizedValue]; ok {
				rooms := n
				res.Rooms = &rooms
			}
		case "floor_select":
			if p.Value != "" {
				floor := p.Value
				res.Floor = &floor
			}
		case "furniture":
			res.Furnished = parseBoolParam(p.NormalizedValue)
		case "pets":
			res.PetsAllowed = parseBoolParam(p.NormalizedValue)
		case "winda":
			res.Elevator = parseBoolParam(p.NormalizedValue)
		case "parking":
			res.Parking = parseBoolParam(p.NormalizedValue)
		case "builttype":
			if p.NormalizedValue != "" {
				bt := p.NormalizedValue
				res.BuildingType = &bt
			}
		}
	}

	var addrParts []string
	for _, part := range []string{ad.Location.DistrictName, ad.Location.CityName, ad.Location.RegionName} {
		if part != "" {
			addrParts = append(addrParts, part)
		}
	}
	if len(addrParts) > 0 {
		addr := strings.Join(addrParts, ", ")
		res.Address = &addr
	}

	for _, photo := range ad.Photos {
		res.PhotoURLs = append(res.PhotoURLs, photoSizePattern.ReplaceAllString(photo, ""))
	}

	if ad.ID != nil {
		id := strconv.FormatInt(*ad.ID, 10)
		res.ExternalID = &id
	}
	return res
}

func parseFloatString(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseBoolParam(normalized string) *bool {
	switch strings.ToLower(normalized) {
	case "yes", "tak":
		v := true
		return &v
	case "no", "nie":
		v := false
		return &v
	}
	return nil
}

// stripTags flattens description HTML to plain text, decoding entities.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
	return strings.TrimSpace(b.String())
}
