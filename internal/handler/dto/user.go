// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/courierchat/courier/internal/model"
)

// CreateUserRequest represents the registration request body.
type CreateUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Handle    string `json:"handle,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// LoginRequest represents the login request body. The email rides in the
// URL path.
type LoginRequest struct {
	Password string `json:"password"`
}

// UpdateUserRequest represents the partial-update request body. Absent
// fields are left unchanged.
type UpdateUserRequest struct {
	Password  *string `json:"password,omitempty"`
	Handle    *string `json:"handle,omitempty"`
	PublicKey *string `json:"public_key,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// UserResponse represents a user in API responses. The password hash is
// never included.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Handle    string    `json:"handle"`
	PublicKey string    `json:"public_key"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToUserResponse converts a model.User to its API representation.
func ToUserResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Handle:    user.Handle,
		PublicKey: user.PublicKey,
		Bio:       user.Bio,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
