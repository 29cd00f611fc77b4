package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/navariltd/disburser/internal/models"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewStore(db), mock
}

func validPayment() *models.Payment {
	return &models.Payment{
		SettingName: "sandbox",
		PartyType:   models.PartyTypeEmployee,
		CommandID:   models.CommandSalaryPayment,
		Amount:      decimal.NewFromInt(100),
		PartyB:      "254712345678",
		Remarks:     "November salary",
	}
}

func TestCreateSanitisesAndGeneratesKey(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO disburser.b2c_payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment := validPayment()
	payment.PartyB = "0712 345 678"

	if err := store.Create(context.Background(), payment); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if payment.PartyB != "254712345678" {
		t.Errorf("expected sanitised receiver, got %q", payment.PartyB)
	}
	if payment.OriginatorConversationID == "" {
		t.Error("expected idempotency key to be generated")
	}
	if payment.Status != models.StatusNotInitiated {
		t.Errorf("expected Not Initiated, got %s", payment.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePreservesExistingKey(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO disburser.b2c_payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment := validPayment()
	payment.OriginatorConversationID = "existing-key"

	if err := store.Create(context.Background(), payment); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if payment.OriginatorConversationID != "existing-key" {
		t.Errorf("idempotency key was regenerated: %q", payment.OriginatorConversationID)
	}
}

func TestCreateRejectsInvalidPayment(t *testing.T) {
	store, mock := newTestStore(t)

	cases := []struct {
		mutate func(*models.Payment)
		want   error
	}{
		{func(p *models.Payment) { p.PartyB = "12345" }, models.ErrInvalidReceiver},
		{func(p *models.Payment) { p.CommandID = models.CommandBusinessPayment }, models.ErrInformationMismatch},
		{func(p *models.Payment) { p.Amount = decimal.NewFromInt(5) }, models.ErrInsufficientAmount},
	}

	for _, tc := range cases {
		payment := validPayment()
		tc.mutate(payment)

		if err := store.Create(context.Background(), payment); !errors.Is(err, tc.want) {
			t.Errorf("Create = %v, want %v", err, tc.want)
		}
	}

	// Invalid payments never reach the database
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionStatusRejectsInvalidEdge(t *testing.T) {
	store, mock := newTestStore(t)

	_, err := store.TransitionStatus(context.Background(), "PAY-0001", models.StatusPaid, models.StatusPending)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateTransactionRejectsAmountMismatch(t *testing.T) {
	store, mock := newTestStore(t)

	payment := validPayment()
	payment.Name = "PAY-0001"
	payment.Status = models.StatusPaid

	txn := &models.Transaction{
		TransactionID:     "RK711T1GE4",
		PaymentName:       "PAY-0001",
		TransactionAmount: decimal.NewFromInt(99),
		CompletedAt:       time.Now(),
	}

	if err := store.CreateTransaction(context.Background(), payment, txn); !errors.Is(err, models.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	// Mismatch in the other direction is rejected too
	txn.TransactionAmount = decimal.NewFromInt(101)
	if err := store.CreateTransaction(context.Background(), payment, txn); !errors.Is(err, models.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateTransactionRequiresPaidPayment(t *testing.T) {
	store, mock := newTestStore(t)

	payment := validPayment()
	payment.Name = "PAY-0001"
	payment.Status = models.StatusErrored

	txn := &models.Transaction{
		TransactionID:     "RK711T1GE4",
		PaymentName:       "PAY-0001",
		TransactionAmount: payment.Amount,
		CompletedAt:       time.Now(),
	}

	if err := store.CreateTransaction(context.Background(), payment, txn); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateItemsRejectsOverParentAmount(t *testing.T) {
	store, mock := newTestStore(t)

	items := []models.PaymentItem{{
		ParentName:   "PAY-0001",
		Amount:       decimal.NewFromInt(150),
		PartyB:       "254712345678",
		RecordAmount: decimal.NewFromInt(100),
	}}

	if err := store.CreateItems(context.Background(), items); !errors.Is(err, models.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWithItemsIsAtomic(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO disburser.b2c_payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburser.b2c_payment_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburser.b2c_payment_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment := &models.Payment{
		PartyType: models.PartyTypeEmployee,
		CommandID: models.CommandSalaryPayment,
		Amount:    decimal.NewFromInt(100),
		PartyB:    "254712345678",
		Remarks:   "November payroll",
	}
	items := []models.PaymentItem{
		{Amount: decimal.NewFromInt(60), PartyB: "0712345678"},
		{Amount: decimal.NewFromInt(40), PartyB: "254110123456"},
	}

	if err := store.CreateWithItems(context.Background(), payment, items); err != nil {
		t.Fatalf("CreateWithItems failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWithItemsRollsBackOnBadItem(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO disburser.b2c_payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	payment := &models.Payment{
		PartyType: models.PartyTypeEmployee,
		CommandID: models.CommandSalaryPayment,
		Amount:    decimal.NewFromInt(100),
		PartyB:    "254712345678",
		Remarks:   "November payroll",
	}
	// Item receiver is not a valid msisdn; the parent insert rolls back
	items := []models.PaymentItem{
		{Amount: decimal.NewFromInt(60), PartyB: "12345"},
	}

	if err := store.CreateWithItems(context.Background(), payment, items); !errors.Is(err, models.ErrInvalidReceiver) {
		t.Fatalf("expected ErrInvalidReceiver, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
