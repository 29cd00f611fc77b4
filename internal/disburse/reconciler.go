package disburse

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/navariltd/disburser/internal/daraja"
	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/payments"
	"github.com/navariltd/disburser/internal/requestlog"
	"github.com/navariltd/disburser/pkg/kafka"
	"github.com/navariltd/disburser/pkg/logging"
)

// Reconciler applies asynchronous gateway results to in-flight payments.
// Callbacks arrive at least once, possibly duplicated and out of order;
// each idempotency key is reconciled at most once.
type Reconciler struct {
	db         *sql.DB
	payments   *payments.Store
	requestLog *requestlog.Store
	journal    Journal
	events     EventPublisher
	metrics    *Metrics
	logger     logging.Logger
}

// NewReconciler creates a callback reconciler. events may be nil.
func NewReconciler(
	db *sql.DB,
	paymentStore *payments.Store,
	requestLog *requestlog.Store,
	journal Journal,
	events EventPublisher,
	logger logging.Logger,
) *Reconciler {
	return &Reconciler{
		db:         db,
		payments:   paymentStore,
		requestLog: requestLog,
		journal:    journal,
		events:     events,
		logger:     logger,
	}
}

// SetMetrics attaches pipeline counters.
func (r *Reconciler) SetMetrics(m *Metrics) {
	r.metrics = m
}

// HandleResult classifies and applies one result callback. Duplicates
// are logged and dropped; unknown keys are surfaced, never silently
// swallowed.
func (r *Reconciler) HandleResult(ctx context.Context, result *daraja.Result) error {
	key := result.OriginatorConversationID

	log := r.logger.WithFields(logging.Fields{
		"request_key":    key,
		"transaction_id": result.TransactionID,
		"result_type":    result.ResultType,
		"result_code":    result.ResultCode,
	})

	// The gateway flags resends with a nonzero result type.
	if result.ResultType != 0 {
		log.Info("Dropping resent gateway notification")
		r.metrics.countReconciliation("duplicate")
		return nil
	}

	completed, err := r.requestLog.IsCompleted(ctx, key)
	if err != nil {
		return err
	}
	if completed {
		log.Info("Dropping duplicate callback for completed request")
		r.metrics.countReconciliation("duplicate")
		return nil
	}

	payment, err := r.payments.GetByRequestKey(ctx, key)
	if err != nil {
		if err == models.ErrPaymentNotFound {
			log.Error("Callback references unknown payment")
			r.metrics.countReconciliation("unknown")
			return fmt.Errorf("%w: %s", models.ErrUnknownPaymentReference, key)
		}
		return err
	}

	// The whole apply is one transaction: the audit resolution, the
	// status transition and the resulting records commit together or not
	// at all, so a redelivery after a mid-flow failure can still apply.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reconciliation: %w", err)
	}
	defer tx.Rollback()

	// Resolve the audit row first. The conditional update decides which
	// of two racing deliveries applies the transition.
	applied, err := r.requestLog.WithTx(tx).MarkCompleted(ctx, key, result.ResultDesc)
	if err != nil {
		return err
	}
	if !applied {
		log.Info("Dropping duplicate callback, reconciliation already applied")
		r.metrics.countReconciliation("duplicate")
		return nil
	}

	var event *kafka.PaymentEvent
	outcome := "paid"
	if result.ResultCode != 0 {
		outcome = "errored"
		event, err = r.applyFailure(ctx, tx, payment, result, log)
	} else {
		event, err = r.applySuccess(ctx, tx, payment, result, log)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reconciliation: %w", err)
	}

	r.metrics.countReconciliation(outcome)
	r.publish(event)

	return nil
}

// applySuccess marks the payment Paid, records the transaction and posts
// exactly one accounting entry, all inside the caller's transaction.
func (r *Reconciler) applySuccess(ctx context.Context, tx *sql.Tx, payment *models.Payment, result *daraja.Result, log logging.Entry) (*kafka.PaymentEvent, error) {
	store := r.payments.WithTx(tx)

	transitioned, err := store.TransitionStatus(ctx, payment.Name, models.StatusPending, models.StatusPaid)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		log.WithField("status", payment.Status).Error("Payment not pending, cannot mark paid")
		return nil, models.ErrInvalidStateTransition
	}
	payment.Status = models.StatusPaid

	txn, err := r.buildTransaction(payment, result)
	if err != nil {
		log.WithError(err).Error("Failed to extract transaction from callback")
		return nil, err
	}

	if err := store.CreateTransaction(ctx, payment, txn); err != nil {
		log.WithError(err).Error("Transaction rejected")
		return nil, err
	}

	journal := r.journal
	if tj, ok := journal.(TxJournal); ok {
		journal = tj.WithTx(tx)
	}
	entry := &models.JournalEntry{
		TransactionID: txn.TransactionID,
		DebitAccount:  payment.AccountPaidFrom,
		CreditAccount: payment.AccountPaidTo,
		Amount:        txn.TransactionAmount,
		PartyType:     payment.PartyType,
		Party:         payment.Party,
	}
	if err := journal.Post(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to post journal entry")
		return nil, err
	}

	log.WithField("amount", txn.TransactionAmount.String()).Info("Payment reconciled as paid")

	return &kafka.PaymentEvent{
		EventType:     kafka.EventPaymentPaid,
		PaymentName:   payment.Name,
		RequestKey:    payment.OriginatorConversationID,
		TransactionID: txn.TransactionID,
		Amount:        txn.TransactionAmount.String(),
		Status:        string(models.StatusPaid),
		Timestamp:     time.Now(),
	}, nil
}

// applyFailure records a business failure reported by the gateway.
func (r *Reconciler) applyFailure(ctx context.Context, tx *sql.Tx, payment *models.Payment, result *daraja.Result, log logging.Entry) (*kafka.PaymentEvent, error) {
	errorCode := strconv.Itoa(result.ResultCode)

	applied, err := r.payments.WithTx(tx).MarkErrored(ctx, payment.Name, errorCode, result.ResultDesc)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.WithField("status", payment.Status).Error("Payment not pending, cannot mark errored")
		return nil, models.ErrInvalidStateTransition
	}

	log.WithField("result_desc", result.ResultDesc).Info("Payment reconciled as errored")

	return &kafka.PaymentEvent{
		EventType:   kafka.EventPaymentErrored,
		PaymentName: payment.Name,
		RequestKey:  payment.OriginatorConversationID,
		Status:      string(models.StatusErrored),
		ErrorCode:   errorCode,
		Timestamp:   time.Now(),
	}, nil
}

// HandleTimeout logs a queue timeout notification. The gateway defines
// no result semantics for this channel, so no state transition is
// applied.
func (r *Reconciler) HandleTimeout(ctx context.Context, requestKey string, payload []byte) {
	r.logger.WithFields(logging.Fields{
		"request_key": requestKey,
		"payload":     string(payload),
	}).Warn("Received queue timeout notification")
}

// buildTransaction extracts the settlement fields from the callback's
// flat parameter list.
func (r *Reconciler) buildTransaction(payment *models.Payment, result *daraja.Result) (*models.Transaction, error) {
	amount, err := result.DecimalParameter(daraja.ParamTransactionAmount)
	if err != nil {
		return nil, err
	}

	completedAt, err := result.TimeParameter(daraja.ParamTransactionCompletedDateTime)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		TransactionID:       result.TransactionID,
		PaymentName:         payment.Name,
		TransactionAmount:   amount,
		ReceiverPublicName:  result.StringParameter(daraja.ParamReceiverPartyPublicName),
		CompletedAt:         completedAt,
		RecipientRegistered: strings.EqualFold(result.StringParameter(daraja.ParamB2CRecipientIsRegistered), "Y"),
	}

	// Balance snapshots are informational; missing ones default to zero.
	if v, err := result.DecimalParameter(daraja.ParamB2CChargesPaidFunds); err == nil {
		txn.ChargesPaidAvailableFunds = v
	}
	if v, err := result.DecimalParameter(daraja.ParamB2CUtilityFunds); err == nil {
		txn.UtilityAccountAvailableFunds = v
	}
	if v, err := result.DecimalParameter(daraja.ParamB2CWorkingFunds); err == nil {
		txn.WorkingAccountAvailableFunds = v
	}

	return txn, nil
}

func (r *Reconciler) publish(event *kafka.PaymentEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishPaymentEvent(event); err != nil {
		r.logger.WithError(err).WithField("payment", event.PaymentName).Warn("Failed to publish payment event")
	}
}
