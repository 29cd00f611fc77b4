package models

import "errors"

// Typed failures raised at the pipeline boundaries. Handlers and callers
// branch on these with errors.Is.
var (
	// ErrInvalidTokenExpiry is returned when an access token's expiry
	// does not come strictly after its fetch time.
	ErrInvalidTokenExpiry = errors.New("token expiry must be strictly after fetch time")

	// ErrNoValidToken is returned when no unexpired token exists for a setting.
	ErrNoValidToken = errors.New("no valid access token")

	// ErrCertificateNotFound is returned when a settings record references
	// a certificate file that cannot be resolved.
	ErrCertificateNotFound = errors.New("certificate file not found")

	// ErrInvalidCertificate is returned when the referenced certificate
	// cannot be parsed or has an unsupported extension.
	ErrInvalidCertificate = errors.New("invalid certificate file")

	// ErrInvalidReceiver is returned when a receiver number fails the
	// Kenyan mobile number format check.
	ErrInvalidReceiver = errors.New("invalid receiver phone number")

	// ErrInformationMismatch is returned when a payment's party type and
	// command identifier do not agree.
	ErrInformationMismatch = errors.New("party type and command id mismatch")

	// ErrInvalidURL is returned when a settings URL fails the syntax check.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInsufficientAmount is returned when a payment amount is below
	// the gateway minimum.
	ErrInsufficientAmount = errors.New("amount below minimum disbursement")

	// ErrAmountMismatch is returned when a transaction amount differs
	// from the amount of the payment it references.
	ErrAmountMismatch = errors.New("transaction amount does not match payment amount")

	// ErrUnknownPaymentReference is returned when a callback references an
	// idempotency key no payment was submitted under.
	ErrUnknownPaymentReference = errors.New("unknown payment reference")

	// ErrInvalidStateTransition is returned when a status change is not
	// allowed from the payment's current status.
	ErrInvalidStateTransition = errors.New("invalid payment state transition")

	// ErrAuthenticationFailed is returned when the gateway rejects the
	// consumer credentials or the auth call fails in transport.
	ErrAuthenticationFailed = errors.New("gateway authentication failed")

	// ErrSubmissionFailed is returned when the payment POST fails. The
	// attempt is fatal; resubmission reuses the same idempotency key.
	ErrSubmissionFailed = errors.New("payment submission failed")

	// ErrSettingsNotFound is returned when no active settings record exists.
	ErrSettingsNotFound = errors.New("disbursement settings not found")

	// ErrPaymentNotFound is returned when a payment lookup by name misses.
	ErrPaymentNotFound = errors.New("payment not found")
)
