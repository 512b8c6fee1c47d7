// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/courierchat/courier/internal/audit"
	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/cache"
	"github.com/courierchat/courier/internal/metrics"
	"github.com/courierchat/courier/internal/middleware"
	"github.com/courierchat/courier/internal/model"
	"github.com/courierchat/courier/internal/repository"
	"github.com/courierchat/courier/internal/token"
	"github.com/courierchat/courier/internal/webhook"
)

// Service errors.
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordRequired = errors.New("password is required")
	ErrEmailTaken       = errors.New("email already registered")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("password is incorrect")
	ErrInvalidProfile   = errors.New("invalid profile")
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxEmailLength = 320

// UserStore is the persistence port for accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, email string) error
	ListEmails(ctx context.Context) ([]string, error)
}

var _ UserStore = (*repository.Repository)(nil)

// AccountService handles account business logic: registration, login,
// token-gated mutation and directory reads.
type AccountService struct {
	store    UserStore
	hasher   auth.Hasher
	tokens   *token.Service
	gate     *auth.Gate
	cache    *cache.Cache
	metrics  metrics.Recorder
	audit    *audit.Publisher
	webhooks *webhook.Publisher
	logger   *slog.Logger
}

// NewAccountService creates a new AccountService. The audit and webhook
// publishers are optional; pass nil to disable them.
func NewAccountService(
	store UserStore,
	hasher auth.Hasher,
	tokens *token.Service,
	gate *auth.Gate,
	userCache *cache.Cache,
	recorder metrics.Recorder,
	auditPub *audit.Publisher,
	hookPub *webhook.Publisher,
	logger *slog.Logger,
) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		gate:     gate,
		cache:    userCache,
		metrics:  recorder,
		audit:    auditPub,
		webhooks: hookPub,
		logger:   logger.With("component", "account"),
	}
}

// CreateAccountInput defines input for registration.
type CreateAccountInput struct {
	Email     string
	Password  string
	Handle    string
	PublicKey string
	Bio       string
}

// Create registers a new account.
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*model.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if input.Password == "" {
		return nil, ErrPasswordRequired
	}
	if err := validateProfile(strings.TrimSpace(input.Handle), input.PublicKey, input.Bio); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	handle := strings.TrimSpace(input.Handle)
	if handle == "" {
		handle = email[:strings.Index(email, "@")]
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Handle:       handle,
		PublicKey:    input.PublicKey,
		Bio:          input.Bio,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncUserCreated()
	s.warmCache(ctx, user)
	s.publishAudit(ctx, model.AuthEventUserCreated, email, "")
	s.publishAccountEvent(model.EventTypeUserCreated, user)

	return user, nil
}

// Login verifies credentials and issues a session token bound to the
// account's current password hash.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncLoginFailure("unknown_email")
			s.publishAudit(ctx, model.AuthEventLoginFailed, email, "unknown_email")
			return "", nil, ErrUserNotFound
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		s.metrics.IncLoginFailure("wrong_password")
		s.publishAudit(ctx, model.AuthEventLoginFailed, email, "wrong_password")
		return "", nil, ErrWrongPassword
	}

	raw, err := s.tokens.Issue(user.Email, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.IncLoginSuccess()
	s.metrics.IncTokenIssued()
	s.publishAudit(ctx, model.AuthEventLoginSucceeded, email, "")

	if s.cache != nil {
		if err := s.cache.SetCredentialFingerprint(ctx, email, user.PasswordHash); err != nil {
			s.logger.Warn("fingerprint cache write failed", "error", err)
		}
	}

	return raw, user, nil
}

// Get retrieves a public user record, cache-first.
func (s *AccountService) Get(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if s.cache != nil {
		cached, err := s.cache.GetUser(ctx, email)
		if err == nil {
			s.metrics.IncUserCacheHit()
			return cached.ToUser(email), nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncUserCacheMiss()
			if negative, _ := s.cache.IsNegativelyCached(ctx, email); negative {
				return nil, ErrUserNotFound
			}
		}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if s.cache != nil {
				_ = s.cache.SetNegativeCache(ctx, email)
			}
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	s.warmCache(ctx, user)

	return user, nil
}

// ListEmails returns every registered email, oldest account first.
func (s *AccountService) ListEmails(ctx context.Context) ([]string, error) {
	emails, err := s.store.ListEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

// UpdateAccountInput defines input for a token-gated profile update.
// Nil fields are left unchanged.
type UpdateAccountInput struct {
	Email     string
	Token     string
	Password  *string
	Handle    *string
	PublicKey *string
	Bio       *string
}

// Update applies a token-gated partial update. Supplying a new password
// rehashes the credential, which invalidates every outstanding token
// issued against the old hash.
func (s *AccountService) Update(ctx context.Context, input UpdateAccountInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if _, err := s.authorize(ctx, input.Token, email, user.PasswordHash); err != nil {
		return nil, err
	}

	var handle, publicKey, bio string
	if input.Handle != nil {
		handle = strings.TrimSpace(*input.Handle)
	}
	if input.PublicKey != nil {
		publicKey = *input.PublicKey
	}
	if input.Bio != nil {
		bio = *input.Bio
	}
	if err := validateProfile(handle, publicKey, bio); err != nil {
		return nil, err
	}

	passwordChanged := false
	if input.Password != nil {
		if *input.Password == "" {
			return nil, ErrPasswordRequired
		}
		hash, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
		passwordChanged = true
	}
	if input.Handle != nil {
		user.Handle = strings.TrimSpace(*input.Handle)
	}
	if input.PublicKey != nil {
		user.PublicKey = *input.PublicKey
	}
	if input.Bio != nil {
		user.Bio = *input.Bio
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.metrics.IncUserUpdated()
	s.invalidateCache(ctx, email, passwordChanged)
	s.publishAudit(ctx, model.AuthEventUserUpdated, email, "")
	s.publishAccountEvent(model.EventTypeUserUpdated, user)

	return user, nil
}

// Delete removes an account after full gate authorization. The account's
// webhook endpoints are removed before the deletion event fans out, so
// the departing account is not among the subscribers.
func (s *AccountService) Delete(ctx context.Context, email, rawToken string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	if _, err := s.authorize(ctx, rawToken, email, user.PasswordHash); err != nil {
		return err
	}

	if s.webhooks != nil {
		if err := s.webhooks.RemoveOwnerEndpoints(ctx, email); err != nil {
			s.logger.Warn("webhook endpoint cleanup failed", "email", email, "error", err)
		}
	}

	if err := s.store.DeleteUser(ctx, email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.metrics.IncUserDeleted()
	s.invalidateCache(ctx, email, true)
	s.publishAudit(ctx, model.AuthEventUserDeleted, email, "")
	s.publishAccountEvent(model.EventTypeUserDeleted, user)

	return nil
}

// authorize runs the full gate and records rejections.
func (s *AccountService) authorize(ctx context.Context, rawToken, email, currentHash string) (*token.Claims, error) {
	claims, err := s.gate.Authorize(rawToken, email, currentHash)
	if err != nil {
		reason := tokenRejectReason(err)
		s.metrics.IncTokenRejected(reason)
		s.publishAudit(ctx, model.AuthEventTokenRejected, email, reason)
		return nil, err
	}
	return claims, nil
}

func tokenRejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, auth.ErrStaleCredential):
		return "stale_credential"
	default:
		return "bad_token"
	}
}

func (s *AccountService) warmCache(ctx context.Context, user *model.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetUser(ctx, user); err != nil {
		s.logger.Warn("user cache write failed", "email", user.Email, "error", err)
	}
}

func (s *AccountService) invalidateCache(ctx context.Context, email string, credentialChanged bool) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteUser(ctx, email); err != nil {
		s.logger.Warn("user cache invalidation failed", "email", email, "error", err)
	}
	if credentialChanged {
		// Kills stale tokens at the session middleware immediately
		// instead of waiting out the fingerprint TTL.
		if err := s.cache.DeleteCredentialFingerprint(ctx, email); err != nil {
			s.logger.Warn("fingerprint invalidation failed", "email", email, "error", err)
		}
	}
}

func (s *AccountService) publishAudit(ctx context.Context, kind model.AuthEventKind, email, reason string) {
	if s.audit == nil {
		return
	}
	payload := audit.NewPayload(kind, email, reason,
		middleware.GetRequestID(ctx), middleware.GetRemoteAddr(ctx))
	s.audit.PublishAsync(payload)
}

// publishAccountEvent creates webhook deliveries off the request path.
func (s *AccountService) publishAccountEvent(eventType model.EventType, user *model.User) {
	if s.webhooks == nil {
		return
	}
	eventID := ulid.Make().String()
	data := model.AccountEventData{Email: user.Email, Handle: user.Handle}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.webhooks.PublishAccountEvent(ctx, eventType, eventID, data); err != nil {
			s.logger.Warn("account event publish failed",
				"event_type", eventType,
				"event_id", eventID,
				"error", err,
			)
		}
	}()
}

// validateProfile checks the user-editable profile fields. An empty handle
// passes; it is derived from the email at creation.
func validateProfile(handle, publicKey, bio string) error {
	if err := middleware.ValidateHandle(handle); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := middleware.ValidatePublicKey(publicKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := middleware.ValidateBio(bio); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}
