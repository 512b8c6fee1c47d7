package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-signing-secret"

func TestIssueAndValidate(t *testing.T) {
	svc := New([]byte(testSecret), time.Hour)

	raw, err := svc.Issue("alice@example.com", "$argon2id$hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := svc.Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "alice@example.com")
	}
	if claims.PasswordHash != "$argon2id$hash" {
		t.Errorf("PasswordHash = %q, want %q", claims.PasswordHash, "$argon2id$hash")
	}
}

func TestValidate_Expired(t *testing.T) {
	svc := New([]byte(testSecret), time.Minute)

	issued := time.Now()
	svc.now = func() time.Time { return issued }

	raw, err := svc.Issue("alice@example.com", "hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Still valid just before expiry.
	svc.now = func() time.Time { return issued.Add(59 * time.Second) }
	if _, err := svc.Validate(raw); err != nil {
		t.Fatalf("Validate() before expiry error = %v", err)
	}

	// Invalid after expiry.
	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := svc.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() after expiry error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	svc := New([]byte(testSecret), time.Hour)
	other := New([]byte("a different secret"), time.Hour)

	raw, err := svc.Issue("alice@example.com", "hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := other.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() with wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_Malformed(t *testing.T) {
	svc := New([]byte(testSecret), time.Hour)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Validate(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidToken", raw, err)
		}
	}
}

func TestValidate_TamperedPayload(t *testing.T) {
	svc := New([]byte(testSecret), time.Hour)

	raw, err := svc.Issue("alice@example.com", "hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("token should have 3 parts, got %d", len(parts))
	}
	tampered := parts[0] + ".eyJlbWFpbCI6Im1hbGxvcnlAZXhhbXBsZS5jb20ifQ." + parts[2]

	if _, err := svc.Validate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() of tampered token error = %v, want ErrInvalidToken", err)
	}
}

func TestSecretIsCopied(t *testing.T) {
	secret := []byte(testSecret)
	svc := New(secret, time.Hour)

	raw, err := svc.Issue("alice@example.com", "hash")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Mutating the caller's slice must not affect validation.
	secret[0] = 'X'
	if _, err := svc.Validate(raw); err != nil {
		t.Errorf("Validate() error = %v after caller mutated secret slice", err)
	}
}
