package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/service"
)

// UserHandler owns the public browse surface: the user directory and
// other users' catalogs, plus the tab counts.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) HandleDirectory(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Directory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.PublicProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleMovies serves another user's visible catalog with the usual
// filters.
func (h *UserHandler) HandleMovies(w http.ResponseWriter, r *http.Request) {
	q := parseListQuery(r)
	q.List = "" // public listing merges my and later

	items, total, err := h.users.PublicMovies(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *UserHandler) HandleMovie(w http.ResponseWriter, r *http.Request) {
	m, err := h.users.PublicMovie(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "movieId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": m})
}

func (h *UserHandler) HandleFilters(w http.ResponseWriter, r *http.Request) {
	f, err := h.users.PublicFilters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleTabCounts serves the navigation counters in one call.
func (h *UserHandler) HandleTabCounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	counts, err := h.users.TabCounts(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
