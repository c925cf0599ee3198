package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/price"
	"github.com/lokum-app/lokum/internal/scraping"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// llmOutput mirrors the response schema handed to the model.
type llmOutput struct {
	Summary string   `json:"summary"`
	Address *string  `json:"address"`
	Costs   llmCosts `json:"costs"`
	Notes   *string  `json:"notes"`
}

type llmCosts struct {
	Rent                 *float64        `json:"rent"`
	RentCurrency         *price.Currency `json:"rent_currency"`
	AdminRent            *float64        `json:"admin_rent"`
	AdminRentCurrency    *price.Currency `json:"admin_rent_currency"`
	TotalMonthly         *float64        `json:"total_monthly"`
	TotalMonthlyCurrency *price.Currency `json:"total_monthly_currency"`
}

func currencySchema() *genai.Schema {
	return &genai.Schema{
		Type:     genai.TypeString,
		Enum:     []string{"PLN", "EUR", "USD"},
		Nullable: genai.Ptr(true),
	}
}

func costFieldSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Nullable: genai.Ptr(true)}
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {
			Type:        genai.TypeString,
			Description: "Compact 2-3 sentence summary of the offer",
		},
		"address": {
			Type:        genai.TypeString,
			Description: "Best street-level address for geocoding (extracted from description)",
			Nullable:    genai.Ptr(true),
		},
		"costs": {
			Type:        genai.TypeObject,
			Description: "Price decomposition and total monthly estimate",
			Properties: map[string]*genai.Schema{
				"rent":                   costFieldSchema(),
				"rent_currency":          currencySchema(),
				"admin_rent":             costFieldSchema(),
				"admin_rent_currency":    currencySchema(),
				"total_monthly":          costFieldSchema(),
				"total_monthly_currency": currencySchema(),
			},
		},
		"notes": {
			Type:        genai.TypeString,
			Description: "Any observations or comments about the extraction (red flags, missing data, etc.)",
			Nullable:    genai.Ptr(true),
		},
	},
	Required: []string{"summary"},
}

// Engine extracts structured listing data from free-text descriptions
// with Gemini structured output.
type Engine struct {
	client *genai.Client
	model  string
}

func NewEngine(ctx context.Context, apiKey, model string) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("a Gemini API key is required for enrichment")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Engine{client: client, model: model}, nil
}

func (e *Engine) Enrich(ctx context.Context, scraped *scraping.ScrapeResult) (*scraping.EnrichResult, error) {
	prompt := buildUserPrompt(scraped.Title, scraped.Address, scraped.Description)

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	start := time.Now()
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	duration := time.Since(start).Seconds()

	return parseResponse(resp.Text(), e.model, duration)
}

// parseResponse decodes the model's JSON and attaches the maintenance
// payload that persists alongside the enrichment.
func parseResponse(text, modelName string, duration float64) (*scraping.EnrichResult, error) {
	jsonStr := strings.TrimSpace(text)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")

	var out llmOutput
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment response: %w", err)
	}

	maintenance := models.MaintenanceData{
		ModelName:       modelName,
		Notes:           out.Notes,
		DurationSeconds: &duration,
	}
	notesJSON, err := json.Marshal(maintenance)
	if err != nil {
		return nil, fmt.Errorf("failed to encode maintenance notes: %w", err)
	}
	notes := string(notesJSON)

	return &scraping.EnrichResult{
		Summary: out.Summary,
		Address: out.Address,
		Costs: scraping.CostBreakdown{
			Rent:                 out.Costs.Rent,
			RentCurrency:         out.Costs.RentCurrency,
			AdminRent:            out.Costs.AdminRent,
			AdminRentCurrency:    out.Costs.AdminRentCurrency,
			TotalMonthly:         out.Costs.TotalMonthly,
			TotalMonthlyCurrency: out.Costs.TotalMonthlyCurrency,
		},
		Notes: &notes,
	}, nil
}
