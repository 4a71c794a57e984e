package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/application/search"
	"github.com/pantrychat/v1/internal/infrastructure/http/middleware"
	apperrors "github.com/pantrychat/v1/pkg/errors"
)

// SearchHandlers exposes the retrieval engine to internal callers.
type SearchHandlers struct {
	engine   *search.Engine
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSearchHandlers creates a new search handlers instance.
func NewSearchHandlers(engine *search.Engine, logger *zap.Logger) *SearchHandlers {
	return &SearchHandlers{
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
	}
}

type searchRequest struct {
	Query      string `json:"query" validate:"required,max=1000"`
	UserID     string `json:"userId" validate:"omitempty,uuid"`
	Limit      int    `json:"limit" validate:"omitempty,min=1,max=100"`
	SearchType string `json:"searchType" validate:"omitempty,oneof=semantic text hybrid"`
}

// Search handles POST /api/v1/search. The body may name a user scope for
// internal service-to-service calls; it defaults to the caller.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeAppError(w, apperrors.NewUnauthorizedError(""))
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperrors.NewBadRequestError("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeAppError(w, apperrors.NewBadRequestError(validationMessage(err)))
		return
	}

	userID := callerID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			writeAppError(w, apperrors.NewBadRequestError("userId must be a UUID"))
			return
		}
		userID = parsed
	}

	searchType, err := search.ParseType(req.SearchType)
	if err != nil {
		writeAppError(w, apperrors.NewBadRequestError(err.Error()))
		return
	}

	results, err := h.engine.Search(r.Context(), userID, req.Query, req.Limit, searchType)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		writeAppError(w, apperrors.Wrap(err, "search failed"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":    results,
		"total":      len(results),
		"searchType": string(searchType),
		"query":      req.Query,
	})
}
