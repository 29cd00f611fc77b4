// Package requestlog keeps the audit trail of outbound gateway calls.
// Each row is keyed by the payment's idempotency key and resolved exactly
// once, either by the matching callback or by a transport failure.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/pkg/database"
)

// Store persists integration request rows in Postgres.
type Store struct {
	db database.Querier
}

// NewStore creates an integration request store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a view of the store whose statements run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Create records a new outbound call in Pending state. A row resolved
// Failed by an earlier attempt is re-armed to Pending, so a retried
// submission keeps its idempotency key. Completed rows are never
// touched; they guard against duplicate callbacks.
func (s *Store) Create(ctx context.Context, req *models.IntegrationRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disburser.integration_requests (request_key, service, payload, headers, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_key) DO UPDATE
		SET service = EXCLUDED.service, payload = EXCLUDED.payload,
		    headers = EXCLUDED.headers, status = EXCLUDED.status,
		    error = NULL, output = NULL, updated_at = NOW()
		WHERE integration_requests.status = $6`,
		req.RequestKey, req.Service, req.Payload, req.Headers, models.RequestPending,
		models.RequestFailed)
	if err != nil {
		return fmt.Errorf("failed to create integration request: %w", err)
	}
	return nil
}

// MarkFailed resolves a pending request as Failed with the error text.
func (s *Store) MarkFailed(ctx context.Context, requestKey, errorText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE disburser.integration_requests
		SET status = $1, error = $2, updated_at = NOW()
		WHERE request_key = $3 AND status = $4`,
		models.RequestFailed, errorText, requestKey, models.RequestPending)
	if err != nil {
		return fmt.Errorf("failed to mark integration request failed: %w", err)
	}
	return nil
}

// MarkCompleted resolves a pending request as Completed, recording the
// callback output. It reports whether this call performed the transition,
// so a duplicate callback observes false and stops.
func (s *Store) MarkCompleted(ctx context.Context, requestKey, output string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE disburser.integration_requests
		SET status = $1, output = $2, updated_at = NOW()
		WHERE request_key = $3 AND status = $4`,
		models.RequestCompleted, output, requestKey, models.RequestPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark integration request completed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows == 1, nil
}

// IsCompleted reports whether the request for a key has already resolved
// as Completed.
func (s *Store) IsCompleted(ctx context.Context, requestKey string) (bool, error) {
	var status models.IntegrationRequestStatus
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM disburser.integration_requests WHERE request_key = $1`,
		requestKey).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query integration request: %w", err)
	}

	return status == models.RequestCompleted, nil
}
