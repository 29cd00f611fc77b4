// Package credential resolves the security credential the gateway
// requires on every disbursement request: the initiator password
// encrypted with the public key of the gateway's certificate.
package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/pkg/logging"
)

// envelopeHeader is the 8-byte framing prefix carried on the envelope
// output. The gateway expects the raw encrypted credential, so the
// header is stripped before encoding.
var envelopeHeader = []byte("Salted__")

// CertificateStore resolves a certificate reference to its PEM bytes.
type CertificateStore interface {
	Load(ref string) ([]byte, error)
}

// Resolver produces encrypted security credentials from settings.
type Resolver struct {
	certs  CertificateStore
	logger logging.Logger
}

// NewResolver creates a credential resolver
func NewResolver(certs CertificateStore, logger logging.Logger) *Resolver {
	return &Resolver{
		certs:  certs,
		logger: logger,
	}
}

// SecurityCredential encrypts the initiator password with the public key
// of the referenced certificate and returns the base64 wire form.
func (r *Resolver) SecurityCredential(initiatorPassword, certificateRef string) (string, error) {
	if certificateRef == "" {
		return "", models.ErrCertificateNotFound
	}

	pemBytes, err := r.certs.Load(certificateRef)
	if err != nil {
		return "", err
	}

	publicKey, err := parsePublicKey(pemBytes)
	if err != nil {
		return "", err
	}

	framed, err := envelopeEncrypt(publicKey, []byte(initiatorPassword))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt initiator password: %w", err)
	}

	// Strip the envelope framing, the gateway wants the bare ciphertext.
	ciphertext := framed[len(envelopeHeader):]

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// envelopeEncrypt performs PKCS#1 v1.5 public-key encryption and frames
// the ciphertext with the 8-byte envelope header.
func envelopeEncrypt(key *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, key, plaintext)
	if err != nil {
		return nil, err
	}

	framed := make([]byte, 0, len(envelopeHeader)+len(ciphertext))
	framed = append(framed, envelopeHeader...)
	framed = append(framed, ciphertext...)
	return framed, nil
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, models.ErrInvalidCertificate
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCertificate, err)
	}

	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate does not carry an RSA public key", models.ErrInvalidCertificate)
	}

	return publicKey, nil
}
