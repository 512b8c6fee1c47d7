package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/handler/dto"
	"github.com/courierchat/courier/internal/service"
)

// AccountHandler handles HTTP requests for account operations.
type AccountHandler struct {
	svc    *service.AccountService
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /create/user.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, StatusError, "invalid request body")
		return
	}

	user, err := h.svc.Create(r.Context(), service.CreateAccountInput{
		Email:     req.Email,
		Password:  req.Password,
		Handle:    req.Handle,
		PublicKey: req.PublicKey,
		Bio:       req.Bio,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			writeEnvelope(w, http.StatusConflict, StatusError,
				fmt.Sprintf("User with email: %s already exists", req.Email))
		case errors.Is(err, service.ErrInvalidEmail),
			errors.Is(err, service.ErrPasswordRequired),
			errors.Is(err, service.ErrInvalidProfile):
			writeEnvelope(w, http.StatusBadRequest, StatusError, err.Error())
		default:
			h.internalError(w, "create user", err)
		}
		return
	}

	h.logger.Info("user_created", "email", user.Email, "handle", user.Handle)

	writeEnvelope(w, http.StatusCreated, StatusSuccess, dto.ToUserResponse(user))
}

// Login handles POST /login/{email}. On success the data field carries the
// session token string.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, StatusError, "invalid request body")
		return
	}

	raw, user, err := h.svc.Login(r.Context(), email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			writeEnvelope(w, http.StatusNotFound, StatusFailure,
				fmt.Sprintf("No user with email: %s", email))
		case errors.Is(err, service.ErrWrongPassword):
			writeEnvelope(w, http.StatusUnauthorized, StatusFailure, "Password is incorrect")
		default:
			h.internalError(w, "login", err)
		}
		return
	}

	h.logger.Info("login_succeeded", "email", user.Email)

	writeEnvelope(w, http.StatusOK, StatusSuccess, raw)
}

// Delete handles DELETE /user/delete/{email}/{token}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	rawToken := chi.URLParam(r, "token")

	if err := h.svc.Delete(r.Context(), email, rawToken); err != nil {
		h.writeAccountError(w, email, err)
		return
	}

	h.logger.Info("user_deleted", "email", email)

	writeEnvelope(w, http.StatusOK, StatusSuccess, fmt.Sprintf("Successfully deleted %s", email))
}

// Update handles PUT /update/user/{email}/{token}.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	rawToken := chi.URLParam(r, "token")

	var req dto.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, StatusError, "invalid request body")
		return
	}

	user, err := h.svc.Update(r.Context(), service.UpdateAccountInput{
		Email:     email,
		Token:     rawToken,
		Password:  req.Password,
		Handle:    req.Handle,
		PublicKey: req.PublicKey,
		Bio:       req.Bio,
	})
	if err != nil {
		if errors.Is(err, service.ErrPasswordRequired) || errors.Is(err, service.ErrInvalidProfile) {
			writeEnvelope(w, http.StatusBadRequest, StatusError, err.Error())
			return
		}
		h.writeAccountError(w, email, err)
		return
	}

	h.logger.Info("user_updated", "email", user.Email)

	writeEnvelope(w, http.StatusOK, StatusSuccess, dto.ToUserResponse(user))
}

// Get handles GET /user/{email}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	user, err := h.svc.Get(r.Context(), email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeEnvelope(w, http.StatusNotFound, StatusFailure,
				fmt.Sprintf("No Users with email: %s", email))
			return
		}
		h.internalError(w, "get user", err)
		return
	}

	writeEnvelope(w, http.StatusOK, StatusSuccess, dto.ToUserResponse(user))
}

// List handles GET /list/users.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	emails, err := h.svc.ListEmails(r.Context())
	if err != nil {
		h.internalError(w, "list users", err)
		return
	}

	writeEnvelope(w, http.StatusOK, StatusSuccess, emails)
}

// writeAccountError maps the shared error set of the token-gated
// operations. Gate denials are Error; a missing user is Failure.
func (h *AccountHandler) writeAccountError(w http.ResponseWriter, email string, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		writeEnvelope(w, http.StatusNotFound, StatusFailure,
			fmt.Sprintf("No User with email: %s", email))
	case errors.Is(err, auth.ErrIdentityMismatch):
		writeEnvelope(w, http.StatusUnauthorized, StatusError, "Invalid token")
	case errors.Is(err, auth.ErrStaleCredential):
		writeEnvelope(w, http.StatusUnauthorized, StatusError, "Stale credential")
	case errors.Is(err, auth.ErrBadToken):
		writeEnvelope(w, http.StatusUnauthorized, StatusError, "Failed to validate token")
	default:
		h.internalError(w, "account operation", err)
	}
}

func (h *AccountHandler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	writeEnvelope(w, http.StatusInternalServerError, StatusError, "internal server error")
}
