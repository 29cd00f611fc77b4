// Package payments persists disbursement intents and their gateway
// transactions. Status transitions are applied with conditional updates
// so duplicate callbacks and racing submitters cannot double-apply.
package payments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/validation"
	"github.com/navariltd/disburser/pkg/database"
)

// Store persists payments in Postgres.
type Store struct {
	conn *sql.DB
	db   database.Querier
}

// NewStore creates a payment store
func NewStore(db *sql.DB) *Store {
	return &Store{conn: db, db: db}
}

// WithTx returns a view of the store whose statements run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// Create validates and persists a new payment in Not Initiated state,
// generating the idempotency key if absent. The key is generated exactly
// once and never regenerated.
func (s *Store) Create(ctx context.Context, payment *models.Payment) error {
	payment.PartyB = validation.SanitisePhoneNumber(payment.PartyB)
	if err := validation.ValidatePayment(payment); err != nil {
		return err
	}

	if payment.Name == "" {
		payment.Name = uuid.New().String()
	}
	if payment.OriginatorConversationID == "" {
		payment.OriginatorConversationID = uuid.New().String()
	}
	payment.Status = models.StatusNotInitiated

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disburser.b2c_payments
			(name, originator_conversation_id, setting_name, party_type, command_id,
			 amount, partyb, remarks, occassion, status,
			 account_paid_from, account_paid_to, party)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		payment.Name, payment.OriginatorConversationID, payment.SettingName,
		payment.PartyType, payment.CommandID,
		payment.Amount, payment.PartyB, payment.Remarks, payment.Occassion, payment.Status,
		payment.AccountPaidFrom, payment.AccountPaidTo, payment.Party)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// Get returns a payment by name.
func (s *Store) Get(ctx context.Context, name string) (*models.Payment, error) {
	return s.queryOne(ctx, "name = $1", name)
}

// GetByRequestKey returns a payment by its idempotency key.
func (s *Store) GetByRequestKey(ctx context.Context, requestKey string) (*models.Payment, error) {
	return s.queryOne(ctx, "originator_conversation_id = $1", requestKey)
}

func (s *Store) queryOne(ctx context.Context, where string, arg interface{}) (*models.Payment, error) {
	var p models.Payment
	var errorCode, errorDescription, conversationID sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT name, originator_conversation_id, setting_name, party_type, command_id,
		       amount, partyb, remarks, occassion, status,
		       error_code, error_description,
		       account_paid_from, account_paid_to, party, conversation_id
		FROM disburser.b2c_payments
		WHERE `+where, arg).Scan(
		&p.Name, &p.OriginatorConversationID, &p.SettingName, &p.PartyType, &p.CommandID,
		&p.Amount, &p.PartyB, &p.Remarks, &p.Occassion, &p.Status,
		&errorCode, &errorDescription,
		&p.AccountPaidFrom, &p.AccountPaidTo, &p.Party, &conversationID)
	if err == sql.ErrNoRows {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}

	p.ErrorCode = errorCode.String
	p.ErrorDescription = errorDescription.String
	p.ConversationID = conversationID.String

	return &p, nil
}

// TransitionStatus moves a payment from an expected status to a new one.
// The update only applies when the current status still matches, so a
// racing caller observes false and stops.
func (s *Store) TransitionStatus(ctx context.Context, name string, from, to models.PaymentStatus) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, models.ErrInvalidStateTransition
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE disburser.b2c_payments
		SET status = $1, updated_at = NOW()
		WHERE name = $2 AND status = $3`,
		to, name, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows == 1, nil
}

// MarkPending records a successful submission: status Pending plus the
// gateway's tracking identifier.
func (s *Store) MarkPending(ctx context.Context, name, conversationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE disburser.b2c_payments
		SET status = $1, conversation_id = $2, updated_at = NOW()
		WHERE name = $3 AND status = $4`,
		models.StatusPending, conversationID, name, models.StatusSubmitting)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment pending: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows == 1, nil
}

// MarkErrored records a business failure reported by the gateway.
func (s *Store) MarkErrored(ctx context.Context, name, errorCode, errorDescription string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE disburser.b2c_payments
		SET status = $1, error_code = $2, error_description = $3, updated_at = NOW()
		WHERE name = $4 AND status = $5`,
		models.StatusErrored, errorCode, errorDescription, name, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment errored: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows == 1, nil
}
