// Package token caches OAuth bearer tokens with expiry tracking. Token
// rows are insert-only: refreshing means authenticating anew and storing
// a fresh row, old rows stay behind as history.
package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/pkg/crypto"
	"github.com/navariltd/disburser/pkg/logging"
)

// Store persists access tokens in Postgres. Bearer values are encrypted
// at rest with the shared field encryptor.
type Store struct {
	db        *sql.DB
	encryptor *crypto.FieldEncryptor
	logger    logging.Logger
}

// NewStore creates a token store
func NewStore(db *sql.DB, encryptor *crypto.FieldEncryptor, logger logging.Logger) *Store {
	return &Store{
		db:        db,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Save persists a new token row. It fails with ErrInvalidTokenExpiry when
// the expiry does not come strictly after the fetch time.
func (s *Store) Save(ctx context.Context, token *models.AccessToken) error {
	if !token.ExpiresAt.After(token.FetchedAt) {
		return models.ErrInvalidTokenExpiry
	}

	if token.ID == "" {
		token.ID = uuid.New().String()
	}

	encrypted, err := s.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disburser.access_tokens (id, setting_name, access_token, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.SettingName, encrypted, token.FetchedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"setting":    token.SettingName,
		"expires_at": token.ExpiresAt,
	}).Info("Stored new access token")

	return nil
}

// GetValidToken returns the most recently created unexpired token for a
// setting, or ErrNoValidToken when none exists.
func (s *Store) GetValidToken(ctx context.Context, settingName string) (*models.AccessToken, error) {
	var token models.AccessToken
	var encrypted string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, setting_name, access_token, fetched_at, expires_at
		FROM disburser.access_tokens
		WHERE setting_name = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`,
		settingName, time.Now()).Scan(
		&token.ID, &token.SettingName, &encrypted, &token.FetchedAt, &token.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoValidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query access token: %w", err)
	}

	token.AccessToken, err = s.encryptor.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	return &token, nil
}
