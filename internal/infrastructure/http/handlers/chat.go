// Package handlers provides HTTP handlers for the JSON API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	chatapp "github.com/pantrychat/v1/internal/application/chat"
	"github.com/pantrychat/v1/internal/infrastructure/http/middleware"
	apperrors "github.com/pantrychat/v1/pkg/errors"
)

// ChatHandlers handles the conversational API surface.
type ChatHandlers struct {
	service  *chatapp.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(service *chatapp.Service, logger *zap.Logger) *ChatHandlers {
	return &ChatHandlers{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type chatMessageRequest struct {
	Message   string         `json:"message" validate:"required_without=Images,max=20000"`
	Images    []string       `json:"images" validate:"omitempty,max=5,dive,required"`
	SessionID string         `json:"sessionId" validate:"omitempty,max=128"`
	Intent    string         `json:"intent" validate:"omitempty,oneof=recipe_extraction rag_search general_chat"`
	Context   map[string]any `json:"context"`
}

// HandleMessage handles POST /api/v1/chat/message.
func (h *ChatHandlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeAppError(w, apperrors.NewUnauthorizedError(""))
		return
	}

	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperrors.NewBadRequestError("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeAppError(w, apperrors.NewBadRequestError(validationMessage(err)))
		return
	}

	envelope, err := h.service.HandleMessage(r.Context(), chatapp.HandleMessageInput{
		UserID:       userID,
		UserEmail:    middleware.UserEmailFromContext(r.Context()),
		UserName:     middleware.UserNameFromContext(r.Context()),
		Message:      req.Message,
		Images:       req.Images,
		SessionID:    req.SessionID,
		ManualIntent: req.Intent,
		Context:      req.Context,
	})
	if err != nil {
		h.logger.Error("message handling failed", zap.Error(err))
		writeAppError(w, apperrors.Wrap(err, "failed to handle message"))
		return
	}

	writeJSON(w, http.StatusOK, envelope)
}

// GetHistory handles GET /api/v1/chat/history. Without a conversationId it
// returns the caller's conversation summaries; with one, that
// conversation's ordered messages.
func (h *ChatHandlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeAppError(w, apperrors.NewUnauthorizedError(""))
		return
	}

	conversationID, err := optionalUUID(r.URL.Query().Get("conversationId"))
	if err != nil {
		writeAppError(w, apperrors.NewBadRequestError("conversationId must be a UUID"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeAppError(w, apperrors.NewBadRequestError("limit must be a positive integer"))
			return
		}
	}

	messages, conversations, err := h.service.History(r.Context(), userID, conversationID, limit)
	if err != nil {
		writeAppError(w, apperrors.Wrap(err, "failed to load history"))
		return
	}

	if conversationID != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"conversationId": conversationID,
			"messages":       messages,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
	})
}

// DeleteHistory handles DELETE /api/v1/chat/history. Without a
// conversationId it deletes every conversation of the caller.
func (h *ChatHandlers) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeAppError(w, apperrors.NewUnauthorizedError(""))
		return
	}

	conversationID, err := optionalUUID(r.URL.Query().Get("conversationId"))
	if err != nil {
		writeAppError(w, apperrors.NewBadRequestError("conversationId must be a UUID"))
		return
	}

	if err := h.service.DeleteHistory(r.Context(), userID, conversationID); err != nil {
		writeAppError(w, apperrors.Wrap(err, "failed to delete history"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// validationMessage flattens the first field error into a readable line.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag() + " check"
	}
	return "invalid request"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAppError(w http.ResponseWriter, err *apperrors.AppError) {
	writeJSON(w, err.StatusCode(), apperrors.ToErrorResponse(err, ""))
}
