package versions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/promptforge/promptforge/internal/api"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// versionResponse is a Version plus the derived history label.
type versionResponse struct {
	Version
	FormattedTitle string `json:"formatted_title"`
}

func render(v Version) versionResponse {
	return versionResponse{Version: v, FormattedTitle: v.FormattedTitle()}
}

type saveVersionRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	Content       string `json:"content" validate:"required"`
	Type          string `json:"type" validate:"omitempty,oneof=save optimize"`
	VersionNumber string `json:"version_number"`
	Description   string `json:"description"`
	Topic         string `json:"topic"`
	FrameworkID   string `json:"framework_id"`
	FrameworkName string `json:"framework_name"`
	OriginalInput string `json:"original_input"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req saveVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	// When the caller names a topic but no number, continue that
	// topic's numbering.
	if req.VersionNumber == "" && req.Topic != "" {
		next, err := h.svc.NextVersionNumber(r.Context(), req.UserID, req.Topic)
		if err != nil {
			slog.Error("computing next version number", "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		req.VersionNumber = next
	}

	vtype := TypeSave
	if req.Type == string(TypeOptimize) {
		vtype = TypeOptimize
	}

	v, err := h.svc.Save(r.Context(), SaveParams{
		UserID:        req.UserID,
		Content:       req.Content,
		Type:          vtype,
		VersionNumber: req.VersionNumber,
		Description:   req.Description,
		Topic:         req.Topic,
		FrameworkID:   req.FrameworkID,
		FrameworkName: req.FrameworkName,
		OriginalInput: req.OriginalInput,
	})
	if err != nil {
		slog.Error("saving version", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, render(*v))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user_id is required"))
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	list, err := h.svc.List(r.Context(), userID, limit)
	if err != nil {
		slog.Error("listing versions", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	out := make([]versionResponse, len(list))
	for i, v := range list {
		out[i] = render(v)
	}
	api.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "versionID")

	v, err := h.svc.Get(r.Context(), id)
	if err != nil {
		slog.Error("getting version", "version_id", id, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if v == nil {
		api.HandleError(w, api.ErrVersionNotFound)
		return
	}

	api.JSON(w, http.StatusOK, render(*v))
}

func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user_id is required"))
		return
	}

	n, err := h.svc.Count(r.Context(), userID)
	if err != nil {
		slog.Error("counting versions", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "versionID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user_id is required"))
		return
	}

	deleted, err := h.svc.Delete(r.Context(), userID, id)
	if err != nil {
		slog.Error("deleting version", "version_id", id, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !deleted {
		api.HandleError(w, api.ErrVersionNotFound)
		return
	}

	api.JSONMessage(w, http.StatusOK, "version deleted")
}

type rollbackRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "versionID")

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	v, err := h.svc.Rollback(r.Context(), req.UserID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			api.HandleError(w, api.ErrVersionNotFound)
			return
		}
		slog.Error("rolling back version", "version_id", id, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, render(*v))
}
