// Package daraja implements the HTTP client for the gateway's B2C API:
// token authentication and payment initiation.
package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/requestlog"
	"github.com/navariltd/disburser/pkg/clients"
	"github.com/navariltd/disburser/pkg/logging"
)

const (
	authTimeout    = 120 * time.Second
	paymentTimeout = 60 * time.Second

	serviceName = "Mpesa B2C"
)

// APIError represents an error response from the gateway
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway API error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to the gateway's auth and payment endpoints.
type Client struct {
	authClient    *http.Client
	paymentClient *http.Client
	authExecutor  failsafe.Executor[*http.Response]
	requestLog    *requestlog.Store
	logger        logging.Logger
}

// NewClient creates a gateway client. Auth calls retry with backoff; the
// payment POST never retries because the endpoint is not idempotent
// across attempts.
func NewClient(requestLog *requestlog.Store, logger logging.Logger) *Client {
	return &Client{
		authClient:    &http.Client{Timeout: authTimeout},
		paymentClient: &http.Client{Timeout: paymentTimeout},
		authExecutor:  clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		requestLog:    requestLog,
		logger:        logger,
	}
}

// Authenticate fetches a fresh bearer token using HTTP Basic auth against
// the setting's authorization endpoint. The error never carries the
// consumer secret, only the setting identifier.
func (c *Client) Authenticate(ctx context.Context, settings *models.Settings) (string, time.Duration, error) {
	resp, err := clients.ExecuteHTTP(ctx, c.authExecutor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, settings.AuthorizationURL, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(settings.ConsumerKey, settings.ConsumerSecret)
		return c.authClient.Do(req)
	})
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"setting": settings.Name,
			"error":   err.Error(),
		}).Error("Gateway authentication request failed")
		return "", 0, fmt.Errorf("%w for setting %s: %v", models.ErrAuthenticationFailed, settings.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("%w for setting %s: reading response: %v", models.ErrAuthenticationFailed, settings.Name, err)
	}

	if resp.StatusCode >= 400 {
		c.logger.WithFields(logging.Fields{
			"setting": settings.Name,
			"status":  resp.StatusCode,
		}).Error("Gateway rejected authentication")
		return "", 0, fmt.Errorf("%w for setting %s: %v", models.ErrAuthenticationFailed, settings.Name,
			&APIError{StatusCode: resp.StatusCode, Message: string(body)})
	}

	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", 0, fmt.Errorf("%w for setting %s: decoding response: %v", models.ErrAuthenticationFailed, settings.Name, err)
	}

	expiresIn, err := auth.ExpiresInDuration()
	if err != nil {
		return "", 0, fmt.Errorf("%w for setting %s: %v", models.ErrAuthenticationFailed, settings.Name, err)
	}

	return auth.AccessToken, expiresIn, nil
}

// SubmitPayment posts a disbursement to the gateway with Bearer auth. An
// integration request row is written before the call; transport or HTTP
// failures resolve it as Failed. Success leaves the row Pending until the
// asynchronous callback completes it.
func (c *Client) SubmitPayment(ctx context.Context, paymentURL, bearerToken string, payload *PaymentRequest) (*PaymentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment payload: %w", err)
	}

	headers, _ := json.Marshal(map[string]string{"Content-Type": "application/json"})
	if err := c.requestLog.Create(ctx, &models.IntegrationRequest{
		RequestKey: payload.OriginatorConversationID,
		Service:    serviceName,
		Payload:    body,
		Headers:    headers,
	}); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, paymentURL, bytes.NewReader(body))
	if err != nil {
		return nil, c.failSubmission(ctx, payload.OriginatorConversationID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.paymentClient.Do(req)
	if err != nil {
		return nil, c.failSubmission(ctx, payload.OriginatorConversationID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.failSubmission(ctx, payload.OriginatorConversationID, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		return nil, c.failSubmission(ctx, payload.OriginatorConversationID, apiErr)
	}

	var payment PaymentResponse
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, c.failSubmission(ctx, payload.OriginatorConversationID, err)
	}

	c.logger.WithFields(logging.Fields{
		"request_key":     payload.OriginatorConversationID,
		"conversation_id": payment.ConversationID,
	}).Info("Payment submitted to gateway")

	return &payment, nil
}

// failSubmission resolves the audit row as Failed and wraps the cause.
func (c *Client) failSubmission(ctx context.Context, requestKey string, cause error) error {
	c.logger.WithFields(logging.Fields{
		"request_key": requestKey,
		"error":       cause.Error(),
	}).Error("Payment submission failed")

	if err := c.requestLog.MarkFailed(ctx, requestKey, cause.Error()); err != nil {
		c.logger.WithError(err).Error("Failed to update integration request")
	}

	return fmt.Errorf("%w for key %s: %v", models.ErrSubmissionFailed, requestKey, cause)
}
