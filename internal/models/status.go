package models

// PaymentStatus tracks a payment through the disbursement lifecycle.
type PaymentStatus string

const (
	StatusNotInitiated PaymentStatus = "Not Initiated"
	StatusSubmitting   PaymentStatus = "Submitting"
	StatusPending      PaymentStatus = "Pending"
	StatusPaid         PaymentStatus = "Paid"
	StatusErrored      PaymentStatus = "Errored"
	StatusTimedOut     PaymentStatus = "Timed-Out"
)

// paymentTransitions enumerates the allowed status edges. Submitting is a
// short-lived lease held while the gateway POST is in flight; a failed
// submission reverts to Not Initiated so the caller can retry with the
// same idempotency key.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	StatusNotInitiated: {StatusSubmitting},
	StatusSubmitting:   {StatusPending, StatusNotInitiated},
	StatusPending:      {StatusPaid, StatusErrored, StatusTimedOut},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}
