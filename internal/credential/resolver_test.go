package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navariltd/disburser/internal/models"
)

type memoryCertStore struct {
	certs map[string][]byte
}

func (s *memoryCertStore) Load(ref string) ([]byte, error) {
	data, ok := s.certs[ref]
	if !ok {
		return nil, models.ErrCertificateNotFound
	}
	return data, nil
}

func selfSignedCert(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test gateway"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	return key, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestSecurityCredentialRoundTrip(t *testing.T) {
	key, certPEM := selfSignedCert(t)

	resolver := NewResolver(&memoryCertStore{certs: map[string][]byte{"sandbox.cer": certPEM}}, logrus.New())

	credential, err := resolver.SecurityCredential("initiator-password", "sandbox.cer")
	if err != nil {
		t.Fatalf("SecurityCredential failed: %v", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		t.Fatalf("credential is not valid base64: %v", err)
	}

	// The framing header must have been stripped, leaving bare PKCS#1
	// v1.5 ciphertext the gateway can decrypt with its private key.
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, key, ciphertext)
	if err != nil {
		t.Fatalf("ciphertext does not decrypt: %v", err)
	}
	if string(plaintext) != "initiator-password" {
		t.Errorf("expected decrypted password, got %q", plaintext)
	}
}

func TestSecurityCredentialMissingCertificate(t *testing.T) {
	resolver := NewResolver(&memoryCertStore{certs: map[string][]byte{}}, logrus.New())

	if _, err := resolver.SecurityCredential("password", "missing.cer"); err != models.ErrCertificateNotFound {
		t.Fatalf("expected ErrCertificateNotFound, got %v", err)
	}

	if _, err := resolver.SecurityCredential("password", ""); err != models.ErrCertificateNotFound {
		t.Fatalf("expected ErrCertificateNotFound for empty reference, got %v", err)
	}
}

func TestSecurityCredentialInvalidCertificate(t *testing.T) {
	resolver := NewResolver(&memoryCertStore{certs: map[string][]byte{
		"garbage.pem": []byte("not a certificate"),
	}}, logrus.New())

	if _, err := resolver.SecurityCredential("password", "garbage.pem"); err != models.ErrInvalidCertificate {
		t.Fatalf("expected ErrInvalidCertificate, got %v", err)
	}
}
