package disburse

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"github.com/navariltd/disburser/internal/daraja"
	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/payments"
	"github.com/navariltd/disburser/internal/settings"
	"github.com/navariltd/disburser/pkg/crypto"
)

type fakeGateway struct {
	calls    int
	response *daraja.PaymentResponse
	err      error
	lastReq  *daraja.PaymentRequest
}

func (f *fakeGateway) SubmitPayment(ctx context.Context, paymentURL, bearerToken string, payload *daraja.PaymentRequest) (*daraja.PaymentResponse, error) {
	f.calls++
	f.lastReq = payload
	return f.response, f.err
}

type fakeTokenSource struct{ token string }

func (f *fakeTokenSource) GetToken(ctx context.Context, settings *models.Settings) (string, error) {
	return f.token, nil
}

type fakeCredentialSource struct{ credential string }

func (f *fakeCredentialSource) SecurityCredential(initiatorPassword, certificateRef string) (string, error) {
	return f.credential, nil
}

func newTestOrchestrator(t *testing.T, gateway *fakeGateway) (*Orchestrator, sqlmock.Sqlmock, *crypto.FieldEncryptor) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	encryptor, err := crypto.DeriveFieldEncryptor([]byte("unit-test-secret"), "test")
	if err != nil {
		t.Fatalf("failed to derive encryptor: %v", err)
	}

	orchestrator := NewOrchestrator(
		payments.NewStore(db),
		settings.NewStore(db, encryptor),
		&fakeTokenSource{token: "bearer-abc"},
		&fakeCredentialSource{credential: "encrypted-credential"},
		gateway,
		nil,
		logrus.New(),
	)
	return orchestrator, mock, encryptor
}

func notInitiatedPaymentRow(partyB string) *sqlmock.Rows {
	return sqlmock.NewRows(paymentColumns()).AddRow(
		"PAY-0001", testRequestKey, "sandbox", "Employee", "SalaryPayment",
		"10", partyB, "November salary", "", string(models.StatusNotInitiated),
		nil, nil,
		"2110 - Salaries Payable", "5100 - Mpesa Disbursement", "John Doe", nil,
	)
}

func expectActiveSettings(mock sqlmock.Sqlmock, encryptor *crypto.FieldEncryptor, t *testing.T) {
	t.Helper()

	secret, err := encryptor.Encrypt("consumer-secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	password, err := encryptor.Encrypt("initiator-password")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	mock.ExpectQuery("SELECT name, consumer_key, consumer_secret").
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "consumer_key", "consumer_secret", "initiator_name", "initiator_password",
			"organisation_shortcode", "authorization_url", "payment_url", "results_url",
			"queue_timeout_url", "certificate_file", "is_active",
		}).AddRow(
			"sandbox", "consumer-key", secret, "initiator", password,
			"600999", "https://example.com/oauth", "https://example.com/b2c", "https://example.com/results",
			"https://example.com/timeout", "sandbox.cer", true,
		))
}

func TestInitiateSuccess(t *testing.T) {
	gateway := &fakeGateway{
		response: &daraja.PaymentResponse{
			ConversationID:           "AG_20231107_1010abcdef",
			OriginatorConversationID: testRequestKey,
			ResponseCode:             "0",
		},
	}
	orchestrator, mock, encryptor := newTestOrchestrator(t, gateway)

	mock.ExpectQuery("SELECT name, originator_conversation_id").
		WithArgs("PAY-0001").
		WillReturnRows(notInitiatedPaymentRow("254712345678"))
	// Take the submission lease
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WithArgs(string(models.StatusSubmitting), "PAY-0001", string(models.StatusNotInitiated)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectActiveSettings(mock, encryptor, t)
	// Record the gateway acknowledgment
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WithArgs(string(models.StatusPending), "AG_20231107_1010abcdef", "PAY-0001", string(models.StatusSubmitting)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	response, err := orchestrator.Initiate(context.Background(), "PAY-0001")
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	if response.ConversationID != "AG_20231107_1010abcdef" {
		t.Errorf("unexpected conversation id %q", response.ConversationID)
	}
	if gateway.calls != 1 {
		t.Errorf("expected 1 gateway call, got %d", gateway.calls)
	}

	// Payload fields come from settings and the stored payment, with the
	// callback URLs injected from settings
	req := gateway.lastReq
	if req.OriginatorConversationID != testRequestKey {
		t.Errorf("unexpected idempotency key %q", req.OriginatorConversationID)
	}
	if req.SecurityCredential != "encrypted-credential" {
		t.Errorf("unexpected security credential %q", req.SecurityCredential)
	}
	if req.ResultURL != "https://example.com/results" || req.QueueTimeOutURL != "https://example.com/timeout" {
		t.Errorf("callback URLs not taken from settings: %+v", req)
	}
	if req.PartyA != "600999" {
		t.Errorf("expected organisation shortcode as PartyA, got %q", req.PartyA)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInitiateInvalidPaymentNeverReachesGateway(t *testing.T) {
	gateway := &fakeGateway{}
	orchestrator, mock, _ := newTestOrchestrator(t, gateway)

	// Receiver is in national format, which fails validation
	mock.ExpectQuery("SELECT name, originator_conversation_id").
		WithArgs("PAY-0001").
		WillReturnRows(notInitiatedPaymentRow("0712345678"))

	_, err := orchestrator.Initiate(context.Background(), "PAY-0001")
	if !errors.Is(err, models.ErrInvalidReceiver) {
		t.Fatalf("expected ErrInvalidReceiver, got %v", err)
	}
	if gateway.calls != 0 {
		t.Errorf("gateway called %d times for invalid payment", gateway.calls)
	}

	// No status change either
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInitiateLeaseLostToConcurrentCaller(t *testing.T) {
	gateway := &fakeGateway{}
	orchestrator, mock, _ := newTestOrchestrator(t, gateway)

	mock.ExpectQuery("SELECT name, originator_conversation_id").
		WithArgs("PAY-0001").
		WillReturnRows(notInitiatedPaymentRow("254712345678"))
	// Conditional update loses to a concurrent initiate
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := orchestrator.Initiate(context.Background(), "PAY-0001")
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if gateway.calls != 0 {
		t.Errorf("gateway called %d times without the lease", gateway.calls)
	}
}

func TestInitiatePendingMarkFailureKeepsLease(t *testing.T) {
	gateway := &fakeGateway{
		response: &daraja.PaymentResponse{
			ConversationID:           "AG_20231107_1010abcdef",
			OriginatorConversationID: testRequestKey,
			ResponseCode:             "0",
		},
	}
	orchestrator, mock, encryptor := newTestOrchestrator(t, gateway)

	mock.ExpectQuery("SELECT name, originator_conversation_id").
		WithArgs("PAY-0001").
		WillReturnRows(notInitiatedPaymentRow("254712345678"))
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WithArgs(string(models.StatusSubmitting), "PAY-0001", string(models.StatusNotInitiated)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectActiveSettings(mock, encryptor, t)
	// The pending mark fails after the gateway has already accepted; the
	// lease must stay held so a retry cannot pay twice
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WithArgs(string(models.StatusPending), "AG_20231107_1010abcdef", "PAY-0001", string(models.StatusSubmitting)).
		WillReturnError(errors.New("connection reset"))

	response, err := orchestrator.Initiate(context.Background(), "PAY-0001")
	if err != nil {
		t.Fatalf("expected accepted submission to surface the response, got %v", err)
	}
	if response.ConversationID != "AG_20231107_1010abcdef" {
		t.Errorf("unexpected conversation id %q", response.ConversationID)
	}

	// No lease release back to Not Initiated
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInitiateSubmissionFailureReleasesLease(t *testing.T) {
	gateway := &fakeGateway{err: models.ErrSubmissionFailed}
	orchestrator, mock, encryptor := newTestOrchestrator(t, gateway)

	mock.ExpectQuery("SELECT name, originator_conversation_id").
		WithArgs("PAY-0001").
		WillReturnRows(notInitiatedPaymentRow("254712345678"))
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WithArgs(string(models.StatusSubmitting), "PAY-0001", string(models.StatusNotInitiated)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectActiveSettings(mock, encryptor, t)
	// The lease is released so the same idempotency key can be retried
	mock.ExpectExec("UPDATE disburser.b2c_payments").
		WithArgs(string(models.StatusNotInitiated), "PAY-0001", string(models.StatusSubmitting)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orchestrator.Initiate(context.Background(), "PAY-0001")
	if !errors.Is(err, models.ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
