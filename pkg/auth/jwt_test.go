package auth

import (
	"testing"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	secret := []byte("unit-test-jwt-secret")

	token, err := GenerateJWT("user-1", "ops@example.com", "operator", secret)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	claims, err := ValidateJWT(token, secret)
	if err != nil {
		t.Fatalf("ValidateJWT failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "operator" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("user-1", "ops@example.com", "operator", []byte("secret-a"))
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	if _, err := ValidateJWT(token, []byte("secret-b")); err != ErrInvalidJWT {
		t.Fatalf("expected ErrInvalidJWT, got %v", err)
	}
}

func TestValidateServiceToken(t *testing.T) {
	if err := ValidateServiceToken("", "expected"); err != ErrMissingServiceToken {
		t.Errorf("expected ErrMissingServiceToken, got %v", err)
	}
	if err := ValidateServiceToken("wrong", "expected"); err != ErrInvalidServiceToken {
		t.Errorf("expected ErrInvalidServiceToken, got %v", err)
	}
	if err := ValidateServiceToken("expected", "expected"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
