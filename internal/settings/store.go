// Package settings manages the gateway configuration record. One record
// is active per environment; consumer secret and initiator password are
// encrypted at rest.
package settings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/validation"
	"github.com/navariltd/disburser/pkg/crypto"
)

// Store persists settings records in Postgres.
type Store struct {
	db        *sql.DB
	encryptor *crypto.FieldEncryptor
}

// NewStore creates a settings store
func NewStore(db *sql.DB, encryptor *crypto.FieldEncryptor) *Store {
	return &Store{
		db:        db,
		encryptor: encryptor,
	}
}

// GetActive returns the active settings record, with secrets decrypted
// for in-process use.
func (s *Store) GetActive(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	var consumerSecret, initiatorPassword string

	err := s.db.QueryRowContext(ctx, `
		SELECT name, consumer_key, consumer_secret, initiator_name, initiator_password,
		       organisation_shortcode, authorization_url, payment_url, results_url,
		       queue_timeout_url, certificate_file, is_active
		FROM disburser.b2c_settings
		WHERE is_active = true
		LIMIT 1`).Scan(
		&settings.Name, &settings.ConsumerKey, &consumerSecret,
		&settings.InitiatorName, &initiatorPassword,
		&settings.OrganisationShortcode, &settings.AuthorizationURL, &settings.PaymentURL,
		&settings.ResultsURL, &settings.QueueTimeoutURL,
		&settings.CertificateFile, &settings.IsActive)
	if err == sql.ErrNoRows {
		return nil, models.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	settings.ConsumerSecret, err = s.encryptor.Decrypt(consumerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt consumer secret: %w", err)
	}
	settings.InitiatorPassword, err = s.encryptor.Decrypt(initiatorPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt initiator password: %w", err)
	}

	return &settings, nil
}

// Save validates and upserts a settings record, encrypting secrets
// before they touch the database.
func (s *Store) Save(ctx context.Context, settings *models.Settings) error {
	if err := validation.ValidateSettings(settings); err != nil {
		return err
	}

	consumerSecret, err := s.encryptor.Encrypt(settings.ConsumerSecret)
	if err != nil {
		return fmt.Errorf("failed to encrypt consumer secret: %w", err)
	}
	initiatorPassword, err := s.encryptor.Encrypt(settings.InitiatorPassword)
	if err != nil {
		return fmt.Errorf("failed to encrypt initiator password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disburser.b2c_settings
			(name, consumer_key, consumer_secret, initiator_name, initiator_password,
			 organisation_shortcode, authorization_url, payment_url, results_url,
			 queue_timeout_url, certificate_file, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (name) DO UPDATE SET
			consumer_key = EXCLUDED.consumer_key,
			consumer_secret = EXCLUDED.consumer_secret,
			initiator_name = EXCLUDED.initiator_name,
			initiator_password = EXCLUDED.initiator_password,
			organisation_shortcode = EXCLUDED.organisation_shortcode,
			authorization_url = EXCLUDED.authorization_url,
			payment_url = EXCLUDED.payment_url,
			results_url = EXCLUDED.results_url,
			queue_timeout_url = EXCLUDED.queue_timeout_url,
			certificate_file = EXCLUDED.certificate_file,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`,
		settings.Name, settings.ConsumerKey, consumerSecret,
		settings.InitiatorName, initiatorPassword,
		settings.OrganisationShortcode, settings.AuthorizationURL, settings.PaymentURL,
		settings.ResultsURL, settings.QueueTimeoutURL,
		settings.CertificateFile, settings.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}
