// Package middleware provides HTTP middleware for the Courier API.
package middleware

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Validation limits.
const (
	// MaxHandleLength is the maximum length for a user handle.
	MaxHandleLength = 64

	// MinHandleLength is the minimum length for a user handle.
	MinHandleLength = 2

	// MaxBioLength is the maximum length for a profile bio.
	MaxBioLength = 1000

	// MaxPublicKeyLength is the maximum length for a stored public key.
	MaxPublicKeyLength = 8192

	// MaxWebhookURLLength is the maximum length for webhook URLs.
	MaxWebhookURLLength = 1024
)

// Validation errors.
var (
	ErrHandleTooLong     = errors.New("handle exceeds maximum length")
	ErrHandleTooShort    = errors.New("handle is too short")
	ErrHandleInvalid     = errors.New("handle contains invalid characters")
	ErrHandleReserved    = errors.New("handle is reserved")
	ErrHandleConfusable  = errors.New("handle contains confusable characters")
	ErrBioTooLong        = errors.New("bio exceeds maximum length")
	ErrPublicKeyTooLong  = errors.New("public key exceeds maximum length")
	ErrWebhookURLTooLong = errors.New("webhook URL exceeds maximum length")
)

// ReservedHandles contains handles that cannot be claimed by users.
// These are reserved for system identities and common abuse targets.
var ReservedHandles = map[string]bool{
	// System identities
	"admin":     true,
	"root":      true,
	"system":    true,
	"support":   true,
	"moderator": true,

	// System routes
	"api":     true,
	"healthz": true,
	"readyz":  true,
	"metrics": true,

	// Brand protection
	"courier": true,

	// Common abuse targets
	"security":    true,
	"billing":     true,
	"noreply":     true,
	"postmaster":  true,
	"unsubscribe": true,
}

// validHandlePattern matches valid handle characters.
// Allowed: a-z, A-Z, 0-9, hyphen, underscore
var validHandlePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateHandle validates a user-chosen handle.
func ValidateHandle(handle string) error {
	if handle == "" {
		return nil // Empty is valid (derived from the email)
	}

	if len(handle) > MaxHandleLength {
		return ErrHandleTooLong
	}

	if len(handle) < MinHandleLength {
		return ErrHandleTooShort
	}

	// Confusables first: a homograph handle should read as confusable,
	// not merely invalid.
	if err := checkConfusables(handle); err != nil {
		return err
	}

	if !validHandlePattern.MatchString(handle) {
		return ErrHandleInvalid
	}

	// Check reserved handles (case-insensitive)
	if ReservedHandles[strings.ToLower(handle)] {
		return ErrHandleReserved
	}

	return nil
}

// ValidateBio validates a profile bio.
func ValidateBio(bio string) error {
	if len(bio) > MaxBioLength {
		return ErrBioTooLong
	}
	return nil
}

// ValidatePublicKey validates a stored public key blob.
func ValidatePublicKey(key string) error {
	if len(key) > MaxPublicKeyLength {
		return ErrPublicKeyTooLong
	}
	return nil
}

// ValidateWebhookURL validates a webhook target URL.
func ValidateWebhookURL(url string) error {
	if len(url) > MaxWebhookURLLength {
		return ErrWebhookURLTooLong
	}

	// Additional validation is done in webhook.ValidateTargetURL
	return nil
}

// checkConfusables rejects handles built to impersonate other users.
// Prevents homograph attacks using lookalike characters.
func checkConfusables(handle string) error {
	// Check for any non-ASCII characters
	for _, r := range handle {
		if r > unicode.MaxASCII {
			// Reject all non-ASCII to prevent homograph attacks.
			// Strict but safe; can be relaxed with proper normalization.
			return ErrHandleConfusable
		}
	}

	// Common substitutions in impersonation attempts
	confusables := map[rune]bool{
		'0': true, // Can look like 'O' or 'o'
		'1': true, // Can look like 'l' or 'I'
		'l': true, // Can look like '1' or 'I'
		'I': true, // Can look like '1' or 'l'
		'O': true, // Can look like '0'
	}

	confusableCount := 0
	for _, r := range handle {
		if confusables[r] {
			confusableCount++
		}
	}

	// If more than 50% of characters are confusable, reject
	if len(handle) > 3 && float64(confusableCount)/float64(len(handle)) > 0.5 {
		return ErrHandleConfusable
	}

	return nil
}
