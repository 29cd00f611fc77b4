// Package handlers exposes the HTTP surface: operator endpoints for
// creating and initiating payments, and the public webhook endpoints the
// gateway posts results to.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/navariltd/disburser/internal/daraja"
	"github.com/navariltd/disburser/internal/disburse"
	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/payments"
	"github.com/navariltd/disburser/internal/settings"
	"github.com/navariltd/disburser/pkg/logging"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	orchestrator *disburse.Orchestrator
	reconciler   *disburse.Reconciler
	payments     *payments.Store
	settings     *settings.Store
	logger       logging.Logger
}

// NewHandlers creates the HTTP handlers
func NewHandlers(orchestrator *disburse.Orchestrator, reconciler *disburse.Reconciler, paymentStore *payments.Store, settingsStore *settings.Store, logger logging.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		payments:     paymentStore,
		settings:     settingsStore,
		logger:       logger,
	}
}

// CreatePaymentRequest is the body of a payment creation call.
type CreatePaymentRequest struct {
	SettingName     string               `json:"setting_name"`
	PartyType       string               `json:"party_type" binding:"required"`
	CommandID       string               `json:"command_id" binding:"required"`
	Amount          decimal.Decimal      `json:"amount" binding:"required"`
	PartyB          string               `json:"partyb" binding:"required"`
	Remarks         string               `json:"remarks" binding:"required"`
	Occassion       string               `json:"occassion"`
	AccountPaidFrom string               `json:"account_paid_from"`
	AccountPaidTo   string               `json:"account_paid_to"`
	Party           string               `json:"party"`
	Items           []PaymentItemRequest `json:"items"`
}

// PaymentItemRequest is one recipient line of a multi-recipient payment.
type PaymentItemRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	PartyB string          `json:"partyb" binding:"required"`
}

// InitiatePaymentRequest identifies the payment to submit.
type InitiatePaymentRequest struct {
	Name string `json:"name" binding:"required"`
}

// SaveSettingsRequest is the body of a settings upsert. Secrets are
// accepted here and encrypted before storage; they are never echoed
// back in responses.
type SaveSettingsRequest struct {
	Name                  string `json:"name" binding:"required"`
	ConsumerKey           string `json:"consumer_key" binding:"required"`
	ConsumerSecret        string `json:"consumer_secret" binding:"required"`
	InitiatorName         string `json:"initiator_name" binding:"required"`
	InitiatorPassword     string `json:"initiator_password" binding:"required"`
	OrganisationShortcode string `json:"organisation_shortcode" binding:"required"`
	AuthorizationURL      string `json:"authorization_url"`
	PaymentURL            string `json:"payment_url"`
	ResultsURL            string `json:"results_url"`
	QueueTimeoutURL       string `json:"queue_timeout_url"`
	CertificateFile       string `json:"certificate_file"`
	IsActive              bool   `json:"is_active"`
}

// CreatePayment registers a new disbursement intent in Not Initiated
// state. The idempotency key is generated here, exactly once.
func (h *Handlers) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment := &models.Payment{
		SettingName:     req.SettingName,
		PartyType:       req.PartyType,
		CommandID:       req.CommandID,
		Amount:          req.Amount,
		PartyB:          req.PartyB,
		Remarks:         req.Remarks,
		Occassion:       req.Occassion,
		AccountPaidFrom: req.AccountPaidFrom,
		AccountPaidTo:   req.AccountPaidTo,
		Party:           req.Party,
	}

	items := make([]models.PaymentItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.PaymentItem{
			Amount: item.Amount,
			PartyB: item.PartyB,
		})
	}

	var err error
	if len(items) > 0 {
		err = h.payments.CreateWithItems(c.Request.Context(), payment, items)
	} else {
		err = h.payments.Create(c.Request.Context(), payment)
	}
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to create payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// GetPayment returns a payment by name.
func (h *Handlers) GetPayment(c *gin.Context) {
	payment, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to fetch payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

// InitiatePayment submits a previously created payment to the gateway.
func (h *Handlers) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	response, err := h.orchestrator.Initiate(c.Request.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case isValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "Payment already submitted"})
		case errors.Is(err, models.ErrAuthenticationFailed), errors.Is(err, models.ErrSubmissionFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).WithField("payment", req.Name).Error("Failed to initiate payment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "successful",
		"info": gin.H{
			"response":    response,
			"status_code": http.StatusOK,
		},
	})
}

// SaveSettings validates and upserts the gateway configuration.
func (h *Handlers) SaveSettings(c *gin.Context) {
	var req SaveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record := &models.Settings{
		Name:                  req.Name,
		ConsumerKey:           req.ConsumerKey,
		ConsumerSecret:        req.ConsumerSecret,
		InitiatorName:         req.InitiatorName,
		InitiatorPassword:     req.InitiatorPassword,
		OrganisationShortcode: req.OrganisationShortcode,
		AuthorizationURL:      req.AuthorizationURL,
		PaymentURL:            req.PaymentURL,
		ResultsURL:            req.ResultsURL,
		QueueTimeoutURL:       req.QueueTimeoutURL,
		CertificateFile:       req.CertificateFile,
		IsActive:              req.IsActive,
	}

	if err := h.settings.Save(c.Request.Context(), record); err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to save settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "saved"})
}

// GetSettings returns the active settings record. The model keeps its
// secrets out of JSON serialization.
func (h *Handlers) GetSettings(c *gin.Context) {
	record, err := h.settings.GetActive(c.Request.Context())
	if err != nil {
		if errors.Is(err, models.ErrSettingsNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active settings"})
			return
		}
		h.logger.WithError(err).Error("Failed to fetch settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// ResultsWebhook receives the gateway's asynchronous result callbacks.
// The gateway only cares that its POST was received, so the response is
// always 200; reconciliation failures are logged for investigation.
func (h *Handlers) ResultsWebhook(c *gin.Context) {
	var envelope daraja.ResultEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.logger.WithError(err).Error("Malformed result callback")
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	if err := h.reconciler.HandleResult(c.Request.Context(), &envelope.Result); err != nil {
		h.logger.WithError(err).WithField(
			"request_key", envelope.Result.OriginatorConversationID,
		).Error("Failed to reconcile result callback")
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// TimeoutWebhook receives queue timeout notifications. Logged only.
func (h *Handlers) TimeoutWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read timeout callback")
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	h.reconciler.HandleTimeout(c.Request.Context(), c.Query("request_key"), body)

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// isValidationError reports whether an error is one of the synchronous
// boundary validation failures.
func isValidationError(err error) bool {
	return errors.Is(err, models.ErrInvalidReceiver) ||
		errors.Is(err, models.ErrInformationMismatch) ||
		errors.Is(err, models.ErrInsufficientAmount) ||
		errors.Is(err, models.ErrAmountMismatch) ||
		errors.Is(err, models.ErrInvalidURL) ||
		errors.Is(err, models.ErrInvalidCertificate) ||
		errors.Is(err, models.ErrInvalidTokenExpiry)
}
