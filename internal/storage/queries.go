package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lokum-app/lokum/internal/models"
)

const queryCols = `q.id, q.user_id, q.name, q.search_query, q.location,
	q.search_engine, q.max_pages, q.is_active, q.run_interval_hours,
	q.last_run_at, q.last_error, q.last_error_at, q.created_at, q.updated_at`

const resultCols = `r.id, r.query_id, r.offer_source_id, r.found_at,
	r.created_at, r.updated_at`

func scanQuery(r rowScanner) (*models.Query, error) {
	var (
		q                    models.Query
		engine               string
		lastRunAt, lastErrAt sql.NullTime
		lastErr              sql.NullString
		updated              sql.NullTime
	)
	err := r.Scan(&q.ID, &q.UserID, &q.Name, &q.SearchQuery, &q.Location,
		&engine, &q.MaxPages, &q.IsActive, &q.RunIntervalHours,
		&lastRunAt, &lastErr, &lastErrAt, &q.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	q.SearchEngine = models.EngineType(engine)
	q.LastRunAt = timePtr(lastRunAt)
	q.LastError = strPtr(lastErr)
	q.LastErrorAt = timePtr(lastErrAt)
	q.UpdatedAt = timePtr(updated)
	return &q, nil
}

func scanQueryResult(r rowScanner) (*models.QueryResult, error) {
	var (
		qr      models.QueryResult
		updated sql.NullTime
	)
	err := r.Scan(&qr.ID, &qr.QueryID, &qr.OfferSourceID, &qr.FoundAt,
		&qr.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	qr.UpdatedAt = timePtr(updated)
	return &qr, nil
}

// PendingQueries returns active queries that have never run or whose run
// interval has elapsed as of now.
func (t *Tx) PendingQueries(ctx context.Context, now time.Time) ([]*models.Query, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+queryCols+`
		FROM queries q
		WHERE q.is_active
			AND (q.last_run_at IS NULL
				OR q.last_run_at + make_interval(hours => q.run_interval_hours) < $1)
		ORDER BY q.created_at, q.id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending queries: %w", err)
	}
	defer rows.Close()

	var queries []*models.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending queries: %w", err)
	}
	return queries, nil
}

// LinkedSourceIDs reports which of the given sources a query has already
// recorded a result for.
func (t *Tx) LinkedSourceIDs(ctx context.Context, queryID uuid.UUID, sourceIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	linked := make(map[uuid.UUID]bool)
	if len(sourceIDs) == 0 {
		return linked, nil
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT offer_source_id
		FROM query_results
		WHERE query_id = $1 AND offer_source_id = ANY($2)`,
		queryID, pq.Array(sourceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query linked sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan linked source id: %w", err)
		}
		linked[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read linked sources: %w", err)
	}
	return linked, nil
}

// InsertQueryResult records that a query surfaced a source, assigning an ID
// where unset.
func (t *Tx) InsertQueryResult(ctx context.Context, qr *models.QueryResult) error {
	if qr.ID == uuid.Nil {
		qr.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO query_results (id, query_id, offer_source_id, found_at)
		VALUES ($1, $2, $3, $4)`,
		qr.ID, qr.QueryID, qr.OfferSourceID, qr.FoundAt)
	if err != nil {
		return fmt.Errorf("failed to insert query result: %w", err)
	}
	return nil
}

// MarkQueryRun stamps a successful run and clears any previous error.
func (t *Tx) MarkQueryRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE queries
		SET last_run_at = $2, last_error = NULL, last_error_at = NULL,
			updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark query run: %w", err)
	}
	return nil
}

// MarkQueryError records a failed run. last_run_at is left untouched so the
// query is retried on the next tick.
func (t *Tx) MarkQueryError(ctx context.Context, id uuid.UUID, msg string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE queries
		SET last_error = $2, last_error_at = $3, updated_at = now()
		WHERE id = $1`, id, msg, at)
	if err != nil {
		return fmt.Errorf("failed to mark query error: %w", err)
	}
	return nil
}

// QueriesByUserID returns all queries owned by a user.
func (t *Tx) QueriesByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Query, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+queryCols+`
		FROM queries q
		WHERE q.user_id = $1
		ORDER BY q.created_at, q.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query queries: %w", err)
	}
	defer rows.Close()

	var queries []*models.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}

// QueryForUser returns a query by ID if the user owns it, or nil.
func (t *Tx) QueryForUser(ctx context.Context, id, userID uuid.UUID) (*models.Query, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+queryCols+`
		FROM queries q
		WHERE q.id = $1 AND q.user_id = $2`, id, userID)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query query by id: %w", err)
	}
	return q, nil
}

// InsertQuery inserts a query, assigning an ID where unset.
func (t *Tx) InsertQuery(ctx context.Context, q *models.Query) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO queries (id, user_id, name, search_query, location,
			search_engine, max_pages, is_active, run_interval_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		q.ID, q.UserID, q.Name, q.SearchQuery, q.Location,
		string(q.SearchEngine), q.MaxPages, q.IsActive, q.RunIntervalHours).
		Scan(&q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}
	return nil
}

// UpdateQuery rewrites the user-editable fields of a query.
func (t *Tx) UpdateQuery(ctx context.Context, q *models.Query) error {
	var updated sql.NullTime
	err := t.tx.QueryRowContext(ctx, `
		UPDATE queries
		SET name = $2, search_query = $3, location = $4, search_engine = $5,
			max_pages = $6, is_active = $7, run_interval_hours = $8,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		q.ID, q.Name, q.SearchQuery, q.Location, string(q.SearchEngine),
		q.MaxPages, q.IsActive, q.RunIntervalHours).
		Scan(&updated)
	if err != nil {
		return fmt.Errorf("failed to update query: %w", err)
	}
	q.UpdatedAt = timePtr(updated)
	return nil
}

// DeleteQuery removes a query and its results.
func (t *Tx) DeleteQuery(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM query_results WHERE query_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete query results: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM queries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}
	return nil
}

// ResultsByQueryID returns a query's results, newest first.
func (t *Tx) ResultsByQueryID(ctx context.Context, queryID uuid.UUID) ([]*models.QueryResult, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+resultCols+`
		FROM query_results r
		WHERE r.query_id = $1
		ORDER BY r.found_at DESC`, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*models.QueryResult
	for rows.Next() {
		qr, err := scanQueryResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query result: %w", err)
		}
		results = append(results, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query results: %w", err)
	}
	return results, nil
}

// UserByEmail returns the user with the given email, or nil.
func (t *Tx) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.created_at, u.updated_at
		FROM users u
		WHERE u.email = $1`, email)
	var (
		u       models.User
		updated sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	u.UpdatedAt = timePtr(updated)
	return &u, nil
}

// InsertUser inserts a user, assigning an ID where unset.
func (t *Tx) InsertUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		u.ID, u.Name, u.Email).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
