package models

// MaintenanceData is traceability metadata recorded alongside an
// enrichment run. Stored as JSONB on OfferRawInfo; never consulted by
// consolidation.
type MaintenanceData struct {
	ModelName       string   `json:"model_name"`
	Notes           *string  `json:"notes"`
	DurationSeconds *float64 `json:"duration_seconds"`
}
