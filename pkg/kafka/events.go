package kafka

import "time"

// Payment lifecycle event types
const (
	EventPaymentSubmitted = "payment-submitted"
	EventPaymentPaid      = "payment-paid"
	EventPaymentErrored   = "payment-errored"
	EventPaymentTimedOut  = "payment-timed-out"
)

// PaymentEvent is the wire format of a payment lifecycle event
type PaymentEvent struct {
	EventType     string    `json:"event_type"`
	PaymentName   string    `json:"payment_name"`
	RequestKey    string    `json:"request_key,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
