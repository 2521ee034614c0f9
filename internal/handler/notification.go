package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/service"
)

// NotificationHandler owns the /api/notifications feed and the follow
// edges under /api/users/{id}/follow.
type NotificationHandler struct {
	feed   *service.NotificationService
	logger *slog.Logger
}

func NewNotificationHandler(feed *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{feed: feed, logger: logger}
}

func (h *NotificationHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	opts := service.FeedOptions{
		Users:    splitCSVParam(q.Get("users")),
		Actions:  splitCSVParam(q.Get("actions")),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		opts.PageSize = v
	}

	items, total, err := h.feed.Feed(r.Context(), userID, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

// HandleStatus reports the unread event count for the navigation badge.
func (h *NotificationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	unread, err := h.feed.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": unread})
}

func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.feed.MarkRead(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleAuthors lists followed users with at least one event, for the
// feed's author filter.
func (h *NotificationHandler) HandleAuthors(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	authors, err := h.feed.ActiveAuthors(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": authors})
}

func (h *NotificationHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.feed.Follow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *NotificationHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.feed.Unfollow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *NotificationHandler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	ids, err := h.feed.Following(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userIds": ids})
}
