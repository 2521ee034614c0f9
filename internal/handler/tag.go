package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/service"
)

// TagHandler owns the /api/tags surface.
type TagHandler struct {
	tags   *service.TagService
	logger *slog.Logger
}

func NewTagHandler(tags *service.TagService, logger *slog.Logger) *TagHandler {
	return &TagHandler{tags: tags, logger: logger}
}

type tagPayload struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (h *TagHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	items, total, err := h.tags.List(r.Context(), userID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *TagHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body tagPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	tag, err := h.tags.Create(r.Context(), userID, body.Name, body.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tag": tag})
}

func (h *TagHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	tag, err := h.tags.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag})
}

func (h *TagHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body tagPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	tag, err := h.tags.Update(r.Context(), userID, chi.URLParam(r, "id"), body.Name, body.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag})
}

func (h *TagHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.tags.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
