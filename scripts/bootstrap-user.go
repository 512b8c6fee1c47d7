package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/model"
	"github.com/courierchat/courier/internal/repository"
	"github.com/courierchat/courier/internal/token"
)

type output struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Handle string `json:"handle"`
	Token  string `json:"token"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		tokenSecret = flag.String("token-secret", os.Getenv("TOKEN_SECRET"), "Session token signing secret")
		tokenTTL    = flag.Duration("token-ttl", 24*time.Hour, "Session token lifetime")
		email       = flag.String("email", "system@courier.local", "User email")
		password    = flag.String("password", "", "User password (required)")
		handle      = flag.String("handle", "", "Display handle (defaults to the email local part)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *tokenSecret == "" {
		fmt.Fprintln(os.Stderr, "TOKEN_SECRET is required")
		os.Exit(1)
	}
	if *password == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	normalized := strings.ToLower(strings.TrimSpace(*email))

	user, err := ensureUser(ctx, repo, normalized, *password, *handle)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	tokens := token.New([]byte(*tokenSecret), *tokenTTL)
	raw, err := tokens.Issue(user.Email, user.PasswordHash)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}

	out := output{
		UserID: user.ID,
		Email:  user.Email,
		Handle: user.Handle,
		Token:  raw,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Token)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureUser returns the existing account for email, verifying the supplied
// password, or creates a fresh one.
func ensureUser(ctx context.Context, repo *repository.Repository, email, password, handle string) (*model.User, error) {
	hasher := auth.NewArgon2Hasher()

	existing, err := repo.GetUserByEmail(ctx, email)
	if err == nil {
		ok, verifyErr := hasher.Verify(password, existing.PasswordHash)
		if verifyErr != nil {
			return nil, fmt.Errorf("verify password: %w", verifyErr)
		}
		if !ok {
			return nil, fmt.Errorf("user %s exists with a different password", email)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if handle == "" {
		handle = strings.SplitN(email, "@", 2)[0]
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Handle:       handle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
