package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/httpserver"
	"github.com/example/video-platform/internal/platform/validate"
	"github.com/example/video-platform/services/catalog/internal/store"
)

type createCategoryRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

type Categories struct {
	Store store.Categories
	Log   *zap.Logger
}

// List handles GET /v1/categories
func (h Categories) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Store.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, h.Log, "category", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": cats})
}

// Create handles POST /v1/categories (admin only).
func (h Categories) Create(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	var req createCategoryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.InvalidJSON(w, rid)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		writeError(w, r, h.Log, "category", err)
		return
	}
	c, err := h.Store.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, r, h.Log, "category", err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, c)
}
