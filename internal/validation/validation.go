// Package validation holds the pure checks applied before a payment
// enters the disbursement pipeline. Everything here is deterministic and
// total over strings, with no store or network access.
package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/navariltd/disburser/internal/models"
)

// receiverPattern covers the Kenyan mobile number space: 2547XXXXXXXX
// and 254(10|11)XXXXXXX.
var receiverPattern = regexp.MustCompile(`^254((7\d{8})|((10|11)\d{7}))$`)

// SanitisePhoneNumber strips plus signs and spaces and rewrites a
// 10-digit national-format number (leading zero) to international
// format. Inputs that match neither shape pass through unchanged.
func SanitisePhoneNumber(phone string) string {
	cleaned := strings.ReplaceAll(phone, "+", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	if len(cleaned) == 10 && strings.HasPrefix(cleaned, "0") {
		return "254" + cleaned[1:]
	}

	return cleaned
}

// IsValidReceiver reports whether a sanitised number is a valid Kenyan
// mobile receiver.
func IsValidReceiver(phone string) bool {
	return receiverPattern.MatchString(phone)
}

// IsConsistent reports whether a party type agrees with its command
// identifier. Employee pays via SalaryPayment, Supplier via
// BusinessPayment; any other pairing is invalid.
func IsConsistent(partyType, commandID string) bool {
	switch partyType {
	case models.PartyTypeEmployee:
		return commandID == models.CommandSalaryPayment
	case models.PartyTypeSupplier:
		return commandID == models.CommandBusinessPayment
	default:
		return false
	}
}

// IsValidURL reports whether s parses as an absolute URL with a host.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// IsValidCertificateFile reports whether a certificate reference has an
// accepted extension.
func IsValidCertificateFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".cer") || strings.HasSuffix(lower, ".pem")
}

// ValidatePayment runs the cross-field checks guarding entry into the
// pipeline. It returns the first violated invariant.
func ValidatePayment(payment *models.Payment) error {
	if !IsValidReceiver(payment.PartyB) {
		return models.ErrInvalidReceiver
	}
	if !IsConsistent(payment.PartyType, payment.CommandID) {
		return models.ErrInformationMismatch
	}
	if payment.Amount.LessThan(models.MinimumAmount) {
		return models.ErrInsufficientAmount
	}
	return nil
}

// ValidateSettings checks URL syntax and the certificate reference of a
// settings record. URLs are only checked when all four are populated.
func ValidateSettings(settings *models.Settings) error {
	urls := []string{
		settings.AuthorizationURL,
		settings.PaymentURL,
		settings.ResultsURL,
		settings.QueueTimeoutURL,
	}

	populated := 0
	for _, u := range urls {
		if u != "" {
			populated++
		}
	}
	if populated == len(urls) {
		for _, u := range urls {
			if !IsValidURL(u) {
				return models.ErrInvalidURL
			}
		}
	}

	if settings.CertificateFile != "" && !IsValidCertificateFile(settings.CertificateFile) {
		return models.ErrInvalidCertificate
	}

	return nil
}
