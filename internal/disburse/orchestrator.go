// Package disburse holds the two halves of the disbursement lifecycle:
// the orchestrator that submits payments to the gateway and the
// reconciler that applies asynchronous result callbacks.
package disburse

import (
	"context"
	"time"

	"github.com/navariltd/disburser/internal/credential"
	"github.com/navariltd/disburser/internal/daraja"
	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/payments"
	"github.com/navariltd/disburser/internal/settings"
	"github.com/navariltd/disburser/internal/validation"
	"github.com/navariltd/disburser/pkg/kafka"
	"github.com/navariltd/disburser/pkg/logging"
)

// Gateway submits disbursements to the payment network.
type Gateway interface {
	SubmitPayment(ctx context.Context, paymentURL, bearerToken string, payload *daraja.PaymentRequest) (*daraja.PaymentResponse, error)
}

// TokenSource resolves a valid bearer token for a setting.
type TokenSource interface {
	GetToken(ctx context.Context, settings *models.Settings) (string, error)
}

// CredentialSource produces the encrypted security credential.
type CredentialSource interface {
	SecurityCredential(initiatorPassword, certificateRef string) (string, error)
}

// EventPublisher publishes payment lifecycle events. Publishing is best
// effort; failures are logged and never fail the pipeline.
type EventPublisher interface {
	PublishPaymentEvent(event *kafka.PaymentEvent) error
}

// Orchestrator runs the submission pipeline for one payment at a time.
type Orchestrator struct {
	payments    *payments.Store
	settings    *settings.Store
	tokens      TokenSource
	credentials CredentialSource
	gateway     Gateway
	events      EventPublisher
	metrics     *Metrics
	logger      logging.Logger
}

// NewOrchestrator creates a disbursement orchestrator. events may be nil.
func NewOrchestrator(
	paymentStore *payments.Store,
	settingsStore *settings.Store,
	tokens TokenSource,
	credentials CredentialSource,
	gateway Gateway,
	events EventPublisher,
	logger logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		payments:    paymentStore,
		settings:    settingsStore,
		tokens:      tokens,
		credentials: credentials,
		gateway:     gateway,
		events:      events,
		logger:      logger,
	}
}

var _ CredentialSource = (*credential.Resolver)(nil)

// SetMetrics attaches pipeline counters.
func (o *Orchestrator) SetMetrics(m *Metrics) {
	o.metrics = m
}

// Initiate validates a payment, leases it for submission and posts it to
// the gateway. On success the payment moves to Pending with the
// gateway's tracking identifier; on any failure the lease is released so
// the caller can retry the whole call with the same idempotency key.
func (o *Orchestrator) Initiate(ctx context.Context, paymentName string) (*daraja.PaymentResponse, error) {
	payment, err := o.payments.Get(ctx, paymentName)
	if err != nil {
		return nil, err
	}

	// Reject before any state change; invalid payments never reach the
	// network layer.
	if err := validation.ValidatePayment(payment); err != nil {
		o.metrics.countSubmission("rejected")
		return nil, err
	}

	// Take the submission lease. A concurrent initiate for the same
	// payment loses the conditional update and stops here.
	leased, err := o.payments.TransitionStatus(ctx, payment.Name, models.StatusNotInitiated, models.StatusSubmitting)
	if err != nil {
		return nil, err
	}
	if !leased {
		return nil, models.ErrInvalidStateTransition
	}

	response, err := o.submit(ctx, payment)
	if err != nil {
		// Release the lease; the payment stays retryable under the
		// same idempotency key.
		if _, revertErr := o.payments.TransitionStatus(ctx, payment.Name, models.StatusSubmitting, models.StatusNotInitiated); revertErr != nil {
			o.logger.WithError(revertErr).WithField("payment", payment.Name).Error("Failed to release submission lease")
		}
		o.metrics.countSubmission("failed")
		return nil, err
	}

	// The gateway has accepted the disbursement at this point. If the
	// pending mark cannot be recorded the payment stays leased in
	// Submitting; never release the lease here, a retry would pay twice.
	// The stuck counter and log line are the operator's repair signal,
	// and the result callback remains applicable after a manual move to
	// Pending.
	marked, err := o.payments.MarkPending(ctx, payment.Name, response.ConversationID)
	if err != nil || !marked {
		o.logger.WithError(err).WithFields(logging.Fields{
			"payment":         payment.Name,
			"request_key":     payment.OriginatorConversationID,
			"conversation_id": response.ConversationID,
		}).Error("Payment accepted by gateway but not marked pending, manual repair required")
		o.metrics.countSubmission("stuck")
		return response, nil
	}

	o.logger.WithFields(logging.Fields{
		"payment":         payment.Name,
		"request_key":     payment.OriginatorConversationID,
		"conversation_id": response.ConversationID,
	}).Info("Payment pending gateway result")

	o.metrics.countSubmission("submitted")

	o.publish(&kafka.PaymentEvent{
		EventType:   kafka.EventPaymentSubmitted,
		PaymentName: payment.Name,
		RequestKey:  payment.OriginatorConversationID,
		Amount:      payment.Amount.String(),
		Status:      string(models.StatusPending),
		Timestamp:   time.Now(),
	})

	return response, nil
}

// submit resolves settings, token and security credential, then posts
// the payment. Callback URLs come from settings, never caller input.
func (o *Orchestrator) submit(ctx context.Context, payment *models.Payment) (*daraja.PaymentResponse, error) {
	cfg, err := o.settings.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	bearerToken, err := o.tokens.GetToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	securityCredential, err := o.credentials.SecurityCredential(cfg.InitiatorPassword, cfg.CertificateFile)
	if err != nil {
		return nil, err
	}

	payload := &daraja.PaymentRequest{
		OriginatorConversationID: payment.OriginatorConversationID,
		InitiatorName:            cfg.InitiatorName,
		SecurityCredential:       securityCredential,
		CommandID:                payment.CommandID,
		Amount:                   payment.Amount.String(),
		PartyA:                   cfg.OrganisationShortcode,
		PartyB:                   payment.PartyB,
		Remarks:                  payment.Remarks,
		QueueTimeOutURL:          cfg.QueueTimeoutURL,
		ResultURL:                cfg.ResultsURL,
		Occassion:                payment.Occassion,
	}

	started := time.Now()
	response, err := o.gateway.SubmitPayment(ctx, cfg.PaymentURL, bearerToken, payload)
	if err != nil {
		o.metrics.observeGateway("error", time.Since(started))
		return nil, err
	}
	o.metrics.observeGateway("ok", time.Since(started))

	return response, nil
}

func (o *Orchestrator) publish(event *kafka.PaymentEvent) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishPaymentEvent(event); err != nil {
		o.logger.WithError(err).WithField("payment", event.PaymentName).Warn("Failed to publish payment event")
	}
}
