package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
)

type queryCreate struct {
	Name             string            `json:"name" validate:"required"`
	SearchQuery      string            `json:"search_query" validate:"required"`
	Location         string            `json:"location" validate:"required"`
	SearchEngine     models.EngineType `json:"search_engine" validate:"oneof=olx"`
	MaxPages         int               `json:"max_pages" validate:"min=1"`
	RunIntervalHours int               `json:"run_interval_hours" validate:"min=1"`
}

type queryUpdate struct {
	Name             *string            `json:"name" validate:"omitempty,min=1"`
	SearchQuery      *string            `json:"search_query" validate:"omitempty,min=1"`
	Location         *string            `json:"location" validate:"omitempty,min=1"`
	SearchEngine     *models.EngineType `json:"search_engine" validate:"omitempty,oneof=olx"`
	MaxPages         *int               `json:"max_pages" validate:"omitempty,min=1"`
	RunIntervalHours *int               `json:"run_interval_hours" validate:"omitempty,min=1"`
	IsActive         *bool              `json:"is_active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// authenticate resolves the X-User header to a user, creating one on
// first sight. On failure it writes the response and returns false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, tx Tx) (*models.User, bool) {
	header := r.Header.Get("X-User")
	name, email, found := strings.Cut(header, ":")
	if !found {
		writeError(w, http.StatusBadRequest, "X-User must be 'name:email'")
		return nil, false
	}
	if name == "" || email == "" {
		writeError(w, http.StatusBadRequest, "X-User name and email must not be empty")
		return nil, false
	}

	user, err := tx.UserByEmail(r.Context(), email)
	if err != nil {
		internalError(w, err)
		return nil, false
	}
	if user == nil {
		user = &models.User{Name: name, Email: email}
		if err := tx.InsertUser(r.Context(), user); err != nil {
			internalError(w, err)
			return nil, false
		}
	}
	return user, true
}

// getUserQuery loads the query addressed by the path, scoped to its
// owner. On failure it writes the response and returns false.
func (s *Server) getUserQuery(w http.ResponseWriter, r *http.Request, tx Tx, user *models.User) (*models.Query, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query id")
		return nil, false
	}
	query, err := tx.QueryForUser(r.Context(), id, user.ID)
	if err != nil {
		internalError(w, err)
		return nil, false
	}
	if query == nil {
		writeError(w, http.StatusNotFound, "Query not found")
		return nil, false
	}
	return query, true
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	tx, err := s.begin(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	defer tx.Rollback()

	user, ok := s.authenticate(w, r, tx)
	if !ok {
		return
	}
	queries, err := tx.QueriesByUserID(r.Context(), user.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(w, err)
		return
	}

	out := make([]queryResponse, 0, len(queries))
	for _, q := range queries {
		out = append(out, toQueryResponse(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var body queryCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SearchEngine == "" {
		body.SearchEngine = models.EngineOLX
	}
	if body.MaxPages == 0 {
		body.MaxPages = 1
	}
	if body.RunIntervalHours == 0 {
		body.RunIntervalHours = 24
	}
	if err := s.validate.ValidateStruct(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	tx, err := s.begin(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	defer tx.Rollback()

	user, ok := s.authenticate(w, r, tx)
	if !ok {
		return
	}
	query := &models.Query{
		UserID:           user.ID,
		Name:             body.Name,
		SearchQuery:      body.SearchQuery,
		Location:         body.Location,
		SearchEngine:     body.SearchEngine,
		MaxPages:         body.MaxPages,
		IsActive:         true,
		RunIntervalHours: body.RunIntervalHours,
	}
	if err := tx.InsertQuery(r.Context(), query); err != nil {
		internalError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQueryResponse(query))
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	tx, err := s.begin(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	defer tx.Rollback()

	user, ok := s.authenticate(w, r, tx)
	if !ok {
		return
	}
	query, ok := s.getUserQuery(w, r, tx, user)
	if !ok {
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueryResponse(query))
}

func (s *Server) handleUpdateQuery(w http.ResponseWriter, r *http.Request) {
	var body queryUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.ValidateStruct(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	tx, err := s.begin(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	defer tx.Rollback()

	user, ok := s.authenticate(w, r, tx)
	if !ok {
		return
	}
	query, ok := s.getUserQuery(w, r, tx, user)
	if !ok {
		return
	}

	if body.Name != nil {
		query.Name = *body.Name
	}
	if body.SearchQuery != nil {
		query.SearchQuery = *body.SearchQuery
	}
	if body.Location != nil {
		query.Location = *body.Location
	}
	if body.SearchEngine != nil {
		query.SearchEngine = *body.SearchEngine
	}
	if body.MaxPages != nil {
		query.MaxPages = *body.MaxPages
	}
	if body.RunIntervalHours != nil {
		query.RunIntervalHours = *body.RunIntervalHours
	}
	if body.IsActive != nil {
		query.IsActive = *body.IsActive
	}

	if err := tx.UpdateQuery(r.Context(), query); err != nil {
		internalError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueryResponse(query))
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	tx, err := s.begin(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	defer tx.Rollback()

	user, ok := s.authenticate(w, r, tx)
	if !ok {
		return
	}
	query, ok := s.getUserQuery(w, r, tx, user)
	if !ok {
		return
	}
	if err := tx.DeleteQuery(r.Context(), query.ID); err != nil {
		internalError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListQueryResults(w http.ResponseWriter, r *http.Request) {
	tx, err := s.begin(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	defer tx.Rollback()

	user, ok := s.authenticate(w, r, tx)
	if !ok {
		return
	}
	query, ok := s.getUserQuery(w, r, tx, user)
	if !ok {
		return
	}
	results, err := tx.ResultsByQueryID(r.Context(), query.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		internalError(w, err)
		return
	}

	out := make([]queryResultResponse, 0, len(results))
	for _, qr := range results {
		out = append(out, toQueryResultResponse(qr))
	}
	writeJSON(w, http.StatusOK, out)
}
