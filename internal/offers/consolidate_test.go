package offers

import (
	"testing"
	"time"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/price"
)

func fp(v float64) *float64 { return &v }

func ip(v int) *int { return &v }

func sp(s string) *string { return &s }

func tp(t time.Time) *time.Time { return &t }

func cp(c price.Currency) *price.Currency { return &c }

func TestConsolidate_EmptyInfosLeavesOfferUnchanged(t *testing.T) {
	offer := &models.Offer{
		Title:   "Mieszkanie",
		Rent:    fp(2000),
		Summary: sp("old summary"),
		Area:    fp(45),
	}

	Consolidate(offer, nil)

	if *offer.Rent != 2000 {
		t.Errorf("Expected rent 2000, got %v", *offer.Rent)
	}
	if *offer.Summary != "old summary" {
		t.Errorf("Expected summary unchanged, got %v", *offer.Summary)
	}
	if *offer.Area != 45 {
		t.Errorf("Expected area unchanged, got %v", *offer.Area)
	}
}

func TestConsolidate_LatestScrapeWinsRegardlessOfOrder(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	older := &models.OfferRawInfo{ScrapedAt: tp(t1), Summary: sp("older"), EnrichedRent: fp(1000)}
	newer := &models.OfferRawInfo{ScrapedAt: tp(t2), Summary: sp("newer"), EnrichedRent: fp(2000)}

	for name, infos := range map[string][]*models.OfferRawInfo{
		"older first": {older, newer},
		"newer first": {newer, older},
	} {
		t.Run(name, func(t *testing.T) {
			offer := &models.Offer{}
			Consolidate(offer, infos)
			if *offer.Summary != "newer" {
				t.Errorf("Expected summary from newest observation, got %q", *offer.Summary)
			}
			if *offer.Rent != 2000 {
				t.Errorf("Expected rent 2000, got %v", *offer.Rent)
			}
		})
	}
}

func TestConsolidate_MissingTimestampNeverWins(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stamped := &models.OfferRawInfo{ScrapedAt: tp(t1), Summary: sp("stamped")}
	unstamped := &models.OfferRawInfo{Summary: sp("unstamped")}

	for name, infos := range map[string][]*models.OfferRawInfo{
		"unstamped first": {unstamped, stamped},
		"unstamped last":  {stamped, unstamped},
	} {
		t.Run(name, func(t *testing.T) {
			offer := &models.Offer{}
			Consolidate(offer, infos)
			if *offer.Summary != "stamped" {
				t.Errorf("Expected stamped observation to win, got %q", *offer.Summary)
			}
		})
	}
}

func TestConsolidate_TimestampTieKeepsFirst(t *testing.T) {
	t1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &models.OfferRawInfo{ScrapedAt: tp(t1), Summary: sp("first")}
	second := &models.OfferRawInfo{ScrapedAt: tp(t1), Summary: sp("second")}

	offer := &models.Offer{}
	Consolidate(offer, []*models.OfferRawInfo{first, second})

	if *offer.Summary != "first" {
		t.Errorf("Expected tie to keep first observation, got %q", *offer.Summary)
	}
}

func TestConsolidate_RentPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		info     *models.OfferRawInfo
		prior    *float64
		wantRent *float64
	}{
		{
			name:     "enriched rent beats raw price",
			info:     &models.OfferRawInfo{EnrichedRent: fp(2000), Price: fp(1800)},
			wantRent: fp(2000),
		},
		{
			name:     "raw price fallback",
			info:     &models.OfferRawInfo{Price: fp(1800)},
			wantRent: fp(1800),
		},
		{
			name:     "neither leaves rent unchanged",
			info:     &models.OfferRawInfo{},
			prior:    fp(1500),
			wantRent: fp(1500),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offer := &models.Offer{Rent: tc.prior}
			Consolidate(offer, []*models.OfferRawInfo{tc.info})
			if offer.Rent == nil || *offer.Rent != *tc.wantRent {
				t.Errorf("Expected rent %v, got %v", *tc.wantRent, offer.Rent)
			}
		})
	}
}

func TestConsolidate_AdminFeePrecedence(t *testing.T) {
	offer := &models.Offer{}
	Consolidate(offer, []*models.OfferRawInfo{
		{EnrichedAdminRent: fp(450), AdminRent: fp(400)},
	})
	if *offer.AdminFee != 450 {
		t.Errorf("Expected admin fee 450, got %v", *offer.AdminFee)
	}

	offer = &models.Offer{}
	Consolidate(offer, []*models.OfferRawInfo{{AdminRent: fp(400)}})
	if *offer.AdminFee != 400 {
		t.Errorf("Expected admin fee 400, got %v", *offer.AdminFee)
	}
}

func TestConsolidate_StreetAddressPrecedence(t *testing.T) {
	offer := &models.Offer{StreetAddress: sp("stara 1")}
	Consolidate(offer, []*models.OfferRawInfo{
		{EnrichedAddress: sp("Nowa 5"), Address: sp("Nowa, Warszawa")},
	})
	if *offer.StreetAddress != "Nowa 5" {
		t.Errorf("Expected enriched address, got %q", *offer.StreetAddress)
	}

	offer = &models.Offer{}
	Consolidate(offer, []*models.OfferRawInfo{{Address: sp("Nowa, Warszawa")}})
	if *offer.StreetAddress != "Nowa, Warszawa" {
		t.Errorf("Expected raw address fallback, got %q", *offer.StreetAddress)
	}

	offer = &models.Offer{StreetAddress: sp("stara 1")}
	Consolidate(offer, []*models.OfferRawInfo{{}})
	if *offer.StreetAddress != "stara 1" {
		t.Errorf("Expected address unchanged, got %q", *offer.StreetAddress)
	}
}

func TestConsolidate_AreaKeptWhenMissing(t *testing.T) {
	offer := &models.Offer{Area: fp(50)}
	Consolidate(offer, []*models.OfferRawInfo{{Summary: sp("s")}})
	if *offer.Area != 50 {
		t.Errorf("Expected area unchanged, got %v", *offer.Area)
	}

	Consolidate(offer, []*models.OfferRawInfo{{Area: fp(62)}})
	if *offer.Area != 62 {
		t.Errorf("Expected area 62, got %v", *offer.Area)
	}
}

func TestConsolidate_UnconditionalFieldsOverwriteWithNil(t *testing.T) {
	t1 := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	offer := &models.Offer{
		Summary:                  sp("kept?"),
		TotalMonthlyCost:         fp(2600),
		TotalMonthlyCostCurrency: cp(price.PLN),
		Latitude:                 fp(52.23),
		Longitude:                fp(21.01),
	}

	Consolidate(offer, []*models.OfferRawInfo{{ScrapedAt: tp(t1)}})

	if offer.Summary != nil {
		t.Errorf("Expected summary overwritten with nil, got %q", *offer.Summary)
	}
	if offer.TotalMonthlyCost != nil {
		t.Errorf("Expected total cost overwritten with nil, got %v", *offer.TotalMonthlyCost)
	}
	if offer.TotalMonthlyCostCurrency != nil {
		t.Errorf("Expected total cost currency overwritten with nil, got %v", *offer.TotalMonthlyCostCurrency)
	}
	if offer.Latitude != nil || offer.Longitude != nil {
		t.Error("Expected coordinates overwritten with nil")
	}
}

func TestConsolidate_CopiesTotalCostAndCoordinates(t *testing.T) {
	offer := &models.Offer{}
	Consolidate(offer, []*models.OfferRawInfo{{
		TotalMonthlyCost:         fp(2850),
		TotalMonthlyCostCurrency: cp(price.PLN),
		Latitude:                 fp(50.06),
		Longitude:                fp(19.94),
	}})

	if *offer.TotalMonthlyCost != 2850 {
		t.Errorf("Expected total cost 2850, got %v", *offer.TotalMonthlyCost)
	}
	if *offer.TotalMonthlyCostCurrency != price.PLN {
		t.Errorf("Expected PLN, got %v", *offer.TotalMonthlyCostCurrency)
	}
	if *offer.Latitude != 50.06 || *offer.Longitude != 19.94 {
		t.Error("Expected coordinates copied from observation")
	}
}
