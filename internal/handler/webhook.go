package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/handler/dto"
	"github.com/courierchat/courier/internal/middleware"
	"github.com/courierchat/courier/internal/model"
	"github.com/courierchat/courier/internal/webhook"
)

// WebhookHandler handles webhook management endpoints. The session
// middleware has already authenticated the caller; the identity email in
// the request context is the endpoint owner.
type WebhookHandler struct {
	repo          *webhook.Repository
	logger        *slog.Logger
	allowInsecure bool
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(repo *webhook.Repository, logger *slog.Logger, allowInsecure bool) *WebhookHandler {
	return &WebhookHandler{
		repo:          repo,
		logger:        logger.With("handler", "webhook"),
		allowInsecure: allowInsecure,
	}
}

// Create handles POST /api/v1/webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := auth.EmailFromContext(ctx)
	if owner == "" {
		h.unauthorized(w)
		return
	}

	var req model.WebhookEndpointCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := middleware.ValidateWebhookURL(req.TargetURL); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_URL",
		})
		return
	}
	if err := webhook.ValidateTargetURLWithOptions(req.TargetURL, webhook.ValidationOptions{AllowInsecure: h.allowInsecure}); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_URL",
		})
		return
	}

	eventTypes := req.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = model.ValidEventTypes
	}
	for _, et := range eventTypes {
		if !model.IsValidEventType(et) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error: "Invalid event type: " + string(et),
				Code:  "INVALID_EVENT_TYPE",
			})
			return
		}
	}

	secret, err := webhook.GenerateSecret()
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		h.internal(w, "Failed to create webhook")
		return
	}

	now := time.Now()
	endpoint := &model.WebhookEndpoint{
		ID:          ulid.Make().String(),
		OwnerEmail:  owner,
		TargetURL:   req.TargetURL,
		Secret:      secret,
		Enabled:     true,
		EventTypes:  eventTypes,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.CreateEndpoint(ctx, endpoint); err != nil {
		h.logger.Error("failed to create endpoint", "error", err)
		h.internal(w, "Failed to create webhook")
		return
	}

	h.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"owner", owner,
	)

	// Secret is only shown once.
	resp := model.WebhookEndpointCreateResponse{
		WebhookEndpointResponse: endpoint.ToResponse(),
		Secret:                  secret,
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := auth.EmailFromContext(ctx)
	if owner == "" {
		h.unauthorized(w)
		return
	}

	endpoints, err := h.repo.ListEndpointsByOwner(ctx, owner)
	if err != nil {
		h.logger.Error("failed to list endpoints", "error", err)
		h.internal(w, "Failed to list webhooks")
		return
	}

	resp := make([]model.WebhookEndpointResponse, len(endpoints))
	for i, ep := range endpoints {
		resp[i] = ep.ToResponse()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": resp,
	})
}

// Get handles GET /api/v1/webhooks/{id}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, endpoint.ToResponse())
}

// Update handles PATCH /api/v1/webhooks/{id}
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	var req model.WebhookEndpointUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if req.Name != nil {
		endpoint.Name = *req.Name
	}
	if req.Description != nil {
		endpoint.Description = *req.Description
	}
	if req.TargetURL != nil {
		if err := middleware.ValidateWebhookURL(*req.TargetURL); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_URL",
			})
			return
		}
		if err := webhook.ValidateTargetURLWithOptions(*req.TargetURL, webhook.ValidationOptions{AllowInsecure: h.allowInsecure}); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_URL",
			})
			return
		}
		endpoint.TargetURL = *req.TargetURL
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	if req.EventTypes != nil {
		for _, et := range *req.EventTypes {
			if !model.IsValidEventType(et) {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
					Error: "Invalid event type: " + string(et),
					Code:  "INVALID_EVENT_TYPE",
				})
				return
			}
		}
		endpoint.EventTypes = *req.EventTypes
	}

	if err := h.repo.UpdateEndpoint(ctx, endpoint); err != nil {
		h.logger.Error("failed to update endpoint", "error", err)
		h.internal(w, "Failed to update webhook")
		return
	}

	h.logger.Info("webhook endpoint updated",
		"endpoint_id", endpoint.ID,
		"owner", endpoint.OwnerEmail,
	)

	writeJSON(w, http.StatusOK, endpoint.ToResponse())
}

// Delete handles DELETE /api/v1/webhooks/{id}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteEndpoint(ctx, endpoint.ID); err != nil {
		h.logger.Error("failed to delete endpoint", "error", err)
		h.internal(w, "Failed to delete webhook")
		return
	}

	h.logger.Info("webhook endpoint deleted",
		"endpoint_id", endpoint.ID,
		"owner", endpoint.OwnerEmail,
	)

	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles POST /api/v1/webhooks/{id}/rotate-secret
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	newSecret, err := webhook.GenerateSecret()
	if err != nil {
		h.logger.Error("failed to generate secret", "error", err)
		h.internal(w, "Failed to rotate secret")
		return
	}

	if err := h.repo.UpdateEndpointSecret(ctx, endpoint.ID, newSecret); err != nil {
		h.logger.Error("failed to update secret", "error", err)
		h.internal(w, "Failed to rotate secret")
		return
	}

	h.logger.Info("webhook secret rotated",
		"endpoint_id", endpoint.ID,
		"owner", endpoint.OwnerEmail,
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"secret": newSecret,
	})
}

// ListDeliveries handles GET /api/v1/webhooks/{id}/deliveries
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	statuses := r.URL.Query()["status"]
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	deliveries, total, err := h.repo.ListDeliveriesByEndpoint(ctx, endpoint.ID, statuses, perPage, offset)
	if err != nil {
		h.logger.Error("failed to list deliveries", "error", err)
		h.internal(w, "Failed to list deliveries")
		return
	}

	resp := make([]model.WebhookDeliveryResponse, len(deliveries))
	for i, d := range deliveries {
		resp[i] = d.ToResponse()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": resp,
		"pagination": map[string]any{
			"total":    total,
			"page":     page,
			"per_page": perPage,
		},
	})
}

// RetryDelivery handles POST /api/v1/webhooks/{id}/deliveries/{delivery_id}/retry
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	endpoint, ok := h.ownedEndpoint(w, r)
	if !ok {
		return
	}

	deliveryID := chi.URLParam(r, "delivery_id")

	if err := h.repo.ResetDeliveryForRetry(ctx, deliveryID, endpoint.ID); err != nil {
		if errors.Is(err, webhook.ErrDeliveryNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{
				Error: "Delivery not found or not exhausted",
				Code:  "NOT_FOUND",
			})
			return
		}
		h.logger.Error("failed to retry delivery", "error", err)
		h.internal(w, "Failed to retry delivery")
		return
	}

	h.logger.Info("webhook delivery retry requested",
		"delivery_id", deliveryID,
		"endpoint_id", endpoint.ID,
		"owner", endpoint.OwnerEmail,
	)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "retry_scheduled",
	})
}

// ownedEndpoint authenticates the caller, loads the endpoint from the URL
// and enforces ownership. A foreign endpoint reads as not found.
func (h *WebhookHandler) ownedEndpoint(w http.ResponseWriter, r *http.Request) (*model.WebhookEndpoint, bool) {
	ctx := r.Context()
	owner := auth.EmailFromContext(ctx)
	if owner == "" {
		h.unauthorized(w)
		return nil, false
	}

	endpointID := chi.URLParam(r, "id")
	endpoint, err := h.repo.GetEndpoint(ctx, endpointID)
	if err != nil {
		if errors.Is(err, webhook.ErrEndpointNotFound) {
			h.notFound(w)
			return nil, false
		}
		h.logger.Error("failed to get endpoint", "endpoint_id", endpointID, "error", err)
		h.internal(w, "Failed to load webhook")
		return nil, false
	}

	if endpoint.OwnerEmail != owner {
		h.notFound(w)
		return nil, false
	}

	return endpoint, true
}

func (h *WebhookHandler) unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{
		Error: "Unauthorized",
		Code:  "UNAUTHORIZED",
	})
}

func (h *WebhookHandler) notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, dto.ErrorResponse{
		Error: "Webhook not found",
		Code:  "NOT_FOUND",
	})
}

func (h *WebhookHandler) internal(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
		Error: msg,
		Code:  "INTERNAL_ERROR",
	})
}
