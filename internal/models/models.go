package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Party types and their matching gateway command identifiers.
const (
	PartyTypeEmployee = "Employee"
	PartyTypeSupplier = "Supplier"

	CommandSalaryPayment   = "SalaryPayment"
	CommandBusinessPayment = "BusinessPayment"
)

// MinimumAmount is the smallest disbursement the gateway accepts, in KES.
var MinimumAmount = decimal.NewFromInt(10)

// Settings is the active gateway configuration. One record is active per
// environment; secrets are encrypted at rest and never logged.
type Settings struct {
	Name                  string    `json:"name"`
	ConsumerKey           string    `json:"consumer_key"`
	ConsumerSecret        string    `json:"-"`
	InitiatorName         string    `json:"initiator_name"`
	InitiatorPassword     string    `json:"-"`
	OrganisationShortcode string    `json:"organisation_shortcode"`
	AuthorizationURL      string    `json:"authorization_url"`
	PaymentURL            string    `json:"payment_url"`
	ResultsURL            string    `json:"results_url"`
	QueueTimeoutURL       string    `json:"queue_timeout_url"`
	CertificateFile       string    `json:"certificate_file"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// AccessToken is one cached OAuth bearer token. Rows are insert-only;
// newer tokens supersede older ones without deleting them.
type AccessToken struct {
	ID          string    `json:"id"`
	SettingName string    `json:"setting_name"`
	AccessToken string    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Valid reports whether the token is still usable at the given instant.
func (t *AccessToken) Valid(now time.Time) bool {
	return t.ExpiresAt.After(now)
}

// Payment is one disbursement intent. The originator conversation ID is
// the idempotency key: generated once at creation, never regenerated.
type Payment struct {
	Name                     string          `json:"name"`
	OriginatorConversationID string          `json:"originator_conversation_id"`
	SettingName              string          `json:"setting_name"`
	PartyType                string          `json:"party_type"`
	CommandID                string          `json:"command_id"`
	Amount                   decimal.Decimal `json:"amount"`
	PartyB                   string          `json:"partyb"`
	Remarks                  string          `json:"remarks"`
	Occassion                string          `json:"occassion"`
	Status                   PaymentStatus   `json:"status"`
	ErrorCode                string          `json:"error_code,omitempty"`
	ErrorDescription         string          `json:"error_description,omitempty"`
	AccountPaidFrom          string          `json:"account_paid_from"`
	AccountPaidTo            string          `json:"account_paid_to"`
	Party                    string          `json:"party"`
	ConversationID           string          `json:"conversation_id,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// PaymentItem is one recipient line of a multi-recipient payment. Each
// line carries its own idempotency key.
type PaymentItem struct {
	OriginatorConversationID string          `json:"originator_conversation_id"`
	ParentName               string          `json:"parent_name"`
	Amount                   decimal.Decimal `json:"amount"`
	PartyB                   string          `json:"partyb"`
	RecordAmount             decimal.Decimal `json:"record_amount"`
}

// Transaction is the reconciliation record created for one successful
// gateway result callback. Immutable once created.
type Transaction struct {
	TransactionID                 string          `json:"transaction_id"`
	PaymentName                   string          `json:"payment_name"`
	TransactionAmount             decimal.Decimal `json:"transaction_amount"`
	ReceiverPublicName            string          `json:"receiver_public_name"`
	CompletedAt                   time.Time       `json:"completed_at"`
	RecipientRegistered           bool            `json:"recipient_registered"`
	ChargesPaidAvailableFunds     decimal.Decimal `json:"charges_paid_available_funds"`
	UtilityAccountAvailableFunds  decimal.Decimal `json:"utility_account_available_funds"`
	WorkingAccountAvailableFunds  decimal.Decimal `json:"working_account_available_funds"`
	CreatedAt                     time.Time       `json:"created_at"`
}

// IntegrationRequestStatus tracks the resolution of one outbound gateway call.
type IntegrationRequestStatus string

const (
	RequestPending   IntegrationRequestStatus = "Pending"
	RequestCompleted IntegrationRequestStatus = "Completed"
	RequestFailed    IntegrationRequestStatus = "Failed"
)

// IntegrationRequest is the audit record of one outbound gateway call,
// keyed by the payment's idempotency key.
type IntegrationRequest struct {
	RequestKey string                   `json:"request_key"`
	Service    string                   `json:"service"`
	Payload    []byte                   `json:"payload"`
	Headers    []byte                   `json:"headers"`
	Status     IntegrationRequestStatus `json:"status"`
	Output     string                   `json:"output,omitempty"`
	Error      string                   `json:"error,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// JournalEntry is one accounting entry posted after a successful
// transaction: debit the source account, credit the destination.
type JournalEntry struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	PostingDate   time.Time       `json:"posting_date"`
	DebitAccount  string          `json:"debit_account"`
	CreditAccount string          `json:"credit_account"`
	Amount        decimal.Decimal `json:"amount"`
	PartyType     string          `json:"party_type"`
	Party         string          `json:"party"`
	CreatedAt     time.Time       `json:"created_at"`
}
