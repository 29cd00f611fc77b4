package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/validation"
)

// CreateTransaction records the gateway's settlement of a payment. The
// transaction amount must equal the payment amount exactly and the
// payment must already be Paid; anything else is rejected so the
// callback stays auditable for manual investigation.
func (s *Store) CreateTransaction(ctx context.Context, payment *models.Payment, txn *models.Transaction) error {
	if !txn.TransactionAmount.Equal(payment.Amount) {
		return models.ErrAmountMismatch
	}
	if payment.Status != models.StatusPaid {
		return models.ErrInvalidStateTransition
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disburser.b2c_transactions
			(transaction_id, payment_name, transaction_amount, receiver_public_name,
			 completed_at, recipient_registered,
			 charges_paid_available_funds, utility_account_available_funds,
			 working_account_available_funds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.TransactionID, txn.PaymentName, txn.TransactionAmount, txn.ReceiverPublicName,
		txn.CompletedAt, txn.RecipientRegistered,
		txn.ChargesPaidAvailableFunds, txn.UtilityAccountAvailableFunds,
		txn.WorkingAccountAvailableFunds)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// CreateItems persists the recipient lines of a multi-recipient payment.
// Each item amount must not exceed the parent record amount.
func (s *Store) CreateItems(ctx context.Context, items []models.PaymentItem) error {
	for _, item := range items {
		item.PartyB = validation.SanitisePhoneNumber(item.PartyB)
		if !validation.IsValidReceiver(item.PartyB) {
			return models.ErrInvalidReceiver
		}
		if item.Amount.GreaterThan(item.RecordAmount) {
			return models.ErrAmountMismatch
		}
		if item.OriginatorConversationID == "" {
			item.OriginatorConversationID = uuid.New().String()
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO disburser.b2c_payment_items
				(originator_conversation_id, parent_name, amount, partyb, record_amount)
			VALUES ($1, $2, $3, $4, $5)`,
			item.OriginatorConversationID, item.ParentName, item.Amount, item.PartyB, item.RecordAmount)
		if err != nil {
			return fmt.Errorf("failed to create payment item: %w", err)
		}
	}

	return nil
}

// CreateWithItems persists a payment and its recipient lines in one
// transaction. Item parentage and record amounts come from the payment,
// never the caller.
func (s *Store) CreateWithItems(ctx context.Context, payment *models.Payment, items []models.PaymentItem) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin payment creation: %w", err)
	}
	defer tx.Rollback()

	txStore := s.WithTx(tx)
	if err := txStore.Create(ctx, payment); err != nil {
		return err
	}

	for i := range items {
		items[i].ParentName = payment.Name
		items[i].RecordAmount = payment.Amount
	}
	if err := txStore.CreateItems(ctx, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment creation: %w", err)
	}

	return nil
}
