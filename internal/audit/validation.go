package audit

import (
	"fmt"

	"github.com/courierchat/courier/internal/model"
)

const (
	maxEmailLength  = 320
	maxReasonLength = 200
)

// ValidateAuthEventPayload validates auth event payload fields.
func ValidateAuthEventPayload(payload AuthEventPayload) error {
	if payload.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if !model.IsValidAuthEventKind(model.AuthEventKind(payload.Kind)) {
		return fmt.Errorf("unknown kind %q", payload.Kind)
	}
	if payload.Email == "" {
		return fmt.Errorf("email is required")
	}
	if len(payload.Email) > maxEmailLength {
		return fmt.Errorf("email too long")
	}
	if len(payload.Reason) > maxReasonLength {
		return fmt.Errorf("reason too long")
	}
	if payload.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	return nil
}
