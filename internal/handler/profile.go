package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/service"
)

// ProfileHandler owns the caller's own profile and credentials.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body struct {
		Name       *string `json:"name"`
		About      *string `json:"about"`
		Gender     *string `json:"gender"`
		BirthDate  *string `json:"birthDate"`
		AvatarPath *string `json:"avatarUrl"`
		IsPublic   *bool   `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	user, err := h.profiles.Update(r.Context(), userID, service.ProfileChange{
		Name:       body.Name,
		About:      body.About,
		Gender:     body.Gender,
		BirthDate:  body.BirthDate,
		AvatarPath: body.AvatarPath,
		IsPublic:   body.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *ProfileHandler) HandleUpdateSecurity(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var body struct {
		CurrentPassword string  `json:"currentPassword"`
		Username        *string `json:"username"`
		Email           *string `json:"email"`
		NewPassword     *string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperror.BadRequest("request body must be a JSON object"))
		return
	}

	user, err := h.profiles.UpdateSecurity(r.Context(), userID, service.SecurityChange{
		CurrentPassword: body.CurrentPassword,
		Username:        body.Username,
		Email:           body.Email,
		NewPassword:     body.NewPassword,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
