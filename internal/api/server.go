// Package api exposes the saved-query HTTP interface. Every request runs
// in its own transaction; callers identify themselves with an X-User
// header and are created on first sight.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
	"github.com/lokum-app/lokum/internal/validator"
)

// Tx is the transactional surface the handlers work through. It is
// satisfied by *storage.Tx.
type Tx interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	InsertUser(ctx context.Context, u *models.User) error
	QueriesByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Query, error)
	QueryForUser(ctx context.Context, id, userID uuid.UUID) (*models.Query, error)
	InsertQuery(ctx context.Context, q *models.Query) error
	UpdateQuery(ctx context.Context, q *models.Query) error
	DeleteQuery(ctx context.Context, id uuid.UUID) error
	ResultsByQueryID(ctx context.Context, queryID uuid.UUID) ([]*models.QueryResult, error)

	Commit() error
	Rollback() error
}

// BeginFunc opens a new transaction.
type BeginFunc func(ctx context.Context) (Tx, error)

type Server struct {
	begin    BeginFunc
	validate *validator.Validator
}

func NewServer(begin BeginFunc) *Server {
	return &Server{begin: begin, validate: validator.New()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /queries", s.handleListQueries)
	mux.HandleFunc("POST /queries", s.handleCreateQuery)
	mux.HandleFunc("GET /queries/{id}", s.handleGetQuery)
	mux.HandleFunc("PATCH /queries/{id}", s.handleUpdateQuery)
	mux.HandleFunc("DELETE /queries/{id}", s.handleDeleteQuery)
	mux.HandleFunc("GET /queries/{id}/results", s.handleListQueryResults)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func internalError(w http.ResponseWriter, err error) {
	slog.Error("Request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

type queryResponse struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	SearchQuery      string            `json:"search_query"`
	Location         string            `json:"location"`
	SearchEngine     models.EngineType `json:"search_engine"`
	MaxPages         int               `json:"max_pages"`
	IsActive         bool              `json:"is_active"`
	RunIntervalHours int               `json:"run_interval_hours"`
	LastRunAt        *time.Time        `json:"last_run_at"`
	LastError        *string           `json:"last_error"`
	LastErrorAt      *time.Time        `json:"last_error_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        *time.Time        `json:"updated_at"`
}

func toQueryResponse(q *models.Query) queryResponse {
	return queryResponse{
		ID:               q.ID,
		Name:             q.Name,
		SearchQuery:      q.SearchQuery,
		Location:         q.Location,
		SearchEngine:     q.SearchEngine,
		MaxPages:         q.MaxPages,
		IsActive:         q.IsActive,
		RunIntervalHours: q.RunIntervalHours,
		LastRunAt:        q.LastRunAt,
		LastError:        q.LastError,
		LastErrorAt:      q.LastErrorAt,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}

type queryResultResponse struct {
	ID            uuid.UUID `json:"id"`
	OfferSourceID uuid.UUID `json:"offer_source_id"`
	FoundAt       time.Time `json:"found_at"`
}

func toQueryResultResponse(qr *models.QueryResult) queryResultResponse {
	return queryResultResponse{
		ID:            qr.ID,
		OfferSourceID: qr.OfferSourceID,
		FoundAt:       qr.FoundAt,
	}
}
