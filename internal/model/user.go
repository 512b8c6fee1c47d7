// Package model defines domain entities for the application.
package model

import "time"

// User is an account in the directory. PasswordHash is the Argon2id PHC
// string and is never serialized into API responses.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Handle       string    `json:"handle"`
	PublicKey    string    `json:"public_key"`
	Bio          string    `json:"bio,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CachedUser is the flattened form stored in the Redis user cache.
// The password hash is deliberately excluded; credential checks always
// read the database.
type CachedUser struct {
	ID        string
	Handle    string
	PublicKey string
	Bio       string
	CreatedAt string
	UpdatedAt string
}

// ToCachedUser converts a User to its cache representation.
func (u *User) ToCachedUser() *CachedUser {
	return &CachedUser{
		ID:        u.ID,
		Handle:    u.Handle,
		PublicKey: u.PublicKey,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToUser rebuilds a User (without password hash) from the cache form.
func (c *CachedUser) ToUser(email string) *User {
	user := &User{
		ID:        c.ID,
		Email:     email,
		Handle:    c.Handle,
		PublicKey: c.PublicKey,
		Bio:       c.Bio,
	}
	if t, err := time.Parse(time.RFC3339Nano, c.CreatedAt); err == nil {
		user.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, c.UpdatedAt); err == nil {
		user.UpdatedAt = t
	}
	return user
}
