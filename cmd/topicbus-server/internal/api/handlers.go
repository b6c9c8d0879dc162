// Package api provides HTTP handlers for the topicbus server REST API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/topicbus"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	backend     *topicbus.Backend
	coordinator *topicbus.DeliveryCoordinator
	logger      topicbus.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	backend *topicbus.Backend,
	coordinator *topicbus.DeliveryCoordinator,
	logger topicbus.Logger,
) *Handler {
	return &Handler{
		backend:     backend,
		coordinator: coordinator,
		logger:      logger,
	}
}

// PublishRequest represents a publish message request.
type PublishRequest struct {
	CID               string `json:"cid"`
	TopicName         string `json:"topic_name"`
	Username          string `json:"username"`
	Data              string `json:"data"`
	Priority          int    `json:"priority,omitempty"`
	ExpirationSeconds int    `json:"expiration,omitempty"`
	CorrelID          string `json:"correl_id,omitempty"`
	InReplyTo         string `json:"in_reply_to,omitempty"`
	ExtClientID       string `json:"ext_client_id,omitempty"`
}

// Validate checks request fields before they reach the backend.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required),
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Priority, validation.Min(0), validation.Max(9)),
		validation.Field(&r.ExpirationSeconds, validation.Min(0)),
	)
}

// SubscribeRequest represents a subscription creation request.
type SubscribeRequest struct {
	CID       string `json:"cid"`
	TopicName string `json:"topic_name"`
	Username  string `json:"username"`
	SecName   string `json:"sec_name,omitempty"`
}

// Validate checks request fields before they reach the backend.
func (r SubscribeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicName, validation.Required),
		validation.Field(&r.Username, validation.Required),
	)
}

// UnsubscribeRequest represents a subscription removal request. An empty
// topic name removes the user's subscription from whichever topic holds it.
type UnsubscribeRequest struct {
	CID       string `json:"cid"`
	TopicName string `json:"topic_name,omitempty"`
	Username  string `json:"username"`
}

// Validate checks request fields before they reach the backend.
func (r UnsubscribeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
	)
}

// MessagesRequest represents a lease request for queued messages.
type MessagesRequest struct {
	SubKey    string `json:"sub_key"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// Validate checks request fields before they reach the coordinator.
func (r MessagesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SubKey, validation.Required),
		validation.Field(&r.BatchSize, validation.Min(0)),
	)
}

// AckRequest represents an acknowledgement or discard request.
type AckRequest struct {
	SubKey string   `json:"sub_key"`
	MsgIDs []string `json:"msg_ids"`
}

// Validate checks request fields before they reach the coordinator.
func (r AckRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SubKey, validation.Required),
		validation.Field(&r.MsgIDs, validation.Required),
	)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePublish handles POST /api/v1/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.backend.Publish(r.Context(), topicbus.PublishRequest{
		CID:               req.CID,
		TopicName:         req.TopicName,
		Username:          req.Username,
		Data:              req.Data,
		Priority:          req.Priority,
		ExpirationSeconds: req.ExpirationSeconds,
		CorrelID:          req.CorrelID,
		InReplyTo:         req.InReplyTo,
		ExtClientID:       req.ExtClientID,
	})
	if err != nil {
		h.logger.Errorf("Failed to publish message: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to publish message", "PUBLISH_ERROR")
		return
	}
	if !result.IsOK {
		h.respondError(w, http.StatusForbidden, result.Reason, "ACCESS_DENIED")
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Message published successfully")
}

// HandleSubscribe handles POST /api/v1/subscribe
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.backend.RegisterSubscription(r.Context(), topicbus.RegisterSubscriptionRequest{
		CID:                  req.CID,
		TopicName:            req.TopicName,
		Username:             req.Username,
		SecName:              req.SecName,
		ShouldCreateBindings: true,
	})
	if err != nil {
		h.logger.Errorf("Failed to create subscription: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to create subscription", "SUBSCRIBE_ERROR")
		return
	}
	if !result.IsOK {
		h.respondError(w, http.StatusForbidden, result.Details, "ACCESS_DENIED")
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Subscription created successfully")
}

// HandleUnsubscribe handles POST /api/v1/unsubscribe
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.backend.UnregisterSubscription(r.Context(), req.CID, req.TopicName, req.Username)
	if err != nil {
		h.logger.Errorf("Failed to unsubscribe: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to unsubscribe", "UNSUBSCRIBE_ERROR")
		return
	}
	if !result.IsOK {
		h.respondError(w, http.StatusNotFound, result.Details, "NOT_FOUND")
		return
	}

	h.respondSuccess(w, http.StatusOK, result, "Unsubscribed successfully")
}

// HandleMessages handles POST /api/v1/messages - lease a batch for delivery.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	msgs, err := h.coordinator.Lease(r.Context(), req.SubKey, req.BatchSize)
	if err != nil {
		h.logger.Errorf("Failed to lease messages: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to lease messages", "LEASE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, msgs, "")
}

// HandleAck handles POST /api/v1/messages/ack - confirm delivered messages.
func (h *Handler) HandleAck(w http.ResponseWriter, r *http.Request) {
	h.handleConfirm(w, r, h.coordinator.Acknowledge, "Messages acknowledged")
}

// HandleDiscard handles POST /api/v1/messages/discard - drop leased messages.
func (h *Handler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	h.handleConfirm(w, r, h.coordinator.Discard, "Messages discarded")
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request,
	confirm func(ctx context.Context, subKey string, msgIDs []string) error, okMessage string) {

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := confirm(r.Context(), req.SubKey, req.MsgIDs); err != nil {
		h.logger.Errorf("Failed to confirm messages: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to confirm messages", "CONFIRM_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, okMessage)
}

// HandleDepth handles GET /api/v1/depth?sub_key=...
func (h *Handler) HandleDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	subKey := r.URL.Query().Get("sub_key")
	if subKey == "" {
		h.respondError(w, http.StatusBadRequest, "sub_key is required", "VALIDATION_ERROR")
		return
	}

	depth, err := h.coordinator.Depth(r.Context(), subKey)
	if err != nil {
		h.logger.Errorf("Failed to read queue depth: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to read queue depth", "DEPTH_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, map[string]int{"depth": depth}, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
