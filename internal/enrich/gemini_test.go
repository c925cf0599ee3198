package enrich

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/price"
)

func TestBuildUserPrompt(t *testing.T) {
	addr := "Warszawa, Śródmieście"
	prompt := buildUserPrompt("Kawalerka w centrum", &addr, "Przytulne mieszkanie przy metrze.")

	if !strings.Contains(prompt, "**Title:** Kawalerka w centrum") {
		t.Errorf("Prompt missing title: %q", prompt)
	}
	if !strings.Contains(prompt, "**Location:** Warszawa, Śródmieście") {
		t.Errorf("Prompt missing location: %q", prompt)
	}
	if !strings.Contains(prompt, "Przytulne mieszkanie przy metrze.") {
		t.Errorf("Prompt missing description: %q", prompt)
	}
}

func TestBuildUserPrompt_MissingAddress(t *testing.T) {
	prompt := buildUserPrompt("Pokój", nil, "Opis.")
	if !strings.Contains(prompt, "**Location:** Unknown") {
		t.Errorf("Expected missing address rendered as Unknown, got %q", prompt)
	}

	empty := ""
	prompt = buildUserPrompt("Pokój", &empty, "Opis.")
	if !strings.Contains(prompt, "**Location:** Unknown") {
		t.Errorf("Expected empty address rendered as Unknown, got %q", prompt)
	}
}

func TestParseResponse(t *testing.T) {
	text := `{
		"summary": "Jasna kawalerka blisko metra. Dostępna od zaraz.",
		"address": "ul. Marszałkowska 10, Warszawa",
		"costs": {
			"rent": 2500,
			"rent_currency": "PLN",
			"admin_rent": 450,
			"admin_rent_currency": "PLN",
			"total_monthly": 2950,
			"total_monthly_currency": "PLN"
		},
		"notes": "Kaucja wspomniana w opisie."
	}`

	res, err := parseResponse(text, "gemini-2.5-flash-lite", 1.25)
	if err != nil {
		t.Fatalf("parseResponse() error = %v", err)
	}

	if res.Summary != "Jasna kawalerka blisko metra. Dostępna od zaraz." {
		t.Errorf("Unexpected summary %q", res.Summary)
	}
	if res.Address == nil || *res.Address != "ul. Marszałkowska 10, Warszawa" {
		t.Errorf("Unexpected address %v", res.Address)
	}
	if res.Costs.Rent == nil || *res.Costs.Rent != 2500 {
		t.Errorf("Unexpected rent %v", res.Costs.Rent)
	}
	if res.Costs.RentCurrency == nil || *res.Costs.RentCurrency != price.PLN {
		t.Errorf("Unexpected rent currency %v", res.Costs.RentCurrency)
	}
	if res.Costs.TotalMonthly == nil || *res.Costs.TotalMonthly != 2950 {
		t.Errorf("Unexpected total %v", res.Costs.TotalMonthly)
	}

	if res.Notes == nil {
		t.Fatal("Expected maintenance notes to be attached")
	}
	var maintenance models.MaintenanceData
	if err := json.Unmarshal([]byte(*res.Notes), &maintenance); err != nil {
		t.Fatalf("Maintenance notes are not valid JSON: %v", err)
	}
	if maintenance.ModelName != "gemini-2.5-flash-lite" {
		t.Errorf("Unexpected model name %q", maintenance.ModelName)
	}
	if maintenance.Notes == nil || *maintenance.Notes != "Kaucja wspomniana w opisie." {
		t.Errorf("Unexpected model notes %v", maintenance.Notes)
	}
	if maintenance.DurationSeconds == nil || *maintenance.DurationSeconds != 1.25 {
		t.Errorf("Unexpected duration %v", maintenance.DurationSeconds)
	}
}

func TestParseResponse_MarkdownFences(t *testing.T) {
	text := "```json\n{\"summary\": \"Krótki opis.\", \"costs\": {}}\n```"
	res, err := parseResponse(text, DefaultModel, 0.5)
	if err != nil {
		t.Fatalf("parseResponse() error = %v", err)
	}
	if res.Summary != "Krótki opis." {
		t.Errorf("Unexpected summary %q", res.Summary)
	}
	if res.Address != nil {
		t.Errorf("Expected nil address, got %q", *res.Address)
	}
	if res.Costs.Rent != nil {
		t.Errorf("Expected nil rent, got %v", *res.Costs.Rent)
	}
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	if _, err := parseResponse("not json at all", DefaultModel, 0); err == nil {
		t.Error("Expected parse error for malformed response")
	}
}
