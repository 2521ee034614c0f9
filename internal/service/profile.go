package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

const (
	MaxAboutLength  = 400
	birthDateLayout = "2006-01-02"
)

// ProfileService manages the caller's own profile and credentials.
// Credential changes go through UpdateSecurity, which re-checks the
// current password; plain profile fields do not.
type ProfileService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewProfileService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, passwords: passwords, logger: logger}
}

// ProfileChange is a partial profile update; nil fields stay unchanged.
type ProfileChange struct {
	Name       *string
	About      *string
	Gender     *string // "", "m" or "f"
	BirthDate  *string // YYYY-MM-DD or "" to clear
	AvatarPath *string
	IsPublic   *bool
}

// Update applies a partial change to the caller's profile.
func (s *ProfileService) Update(ctx context.Context, userID string, ch ProfileChange) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ch.Name != nil {
		user.Name = strings.TrimSpace(*ch.Name)
	}
	if ch.About != nil {
		if len(*ch.About) > MaxAboutLength {
			return nil, apperror.ValidationFailed("about",
				fmt.Sprintf("about must be %d characters or less", MaxAboutLength))
		}
		user.About = *ch.About
	}
	if ch.Gender != nil {
		if *ch.Gender != "" && *ch.Gender != "m" && *ch.Gender != "f" {
			return nil, apperror.ValidationFailed("gender", "gender must be m or f")
		}
		user.Gender = *ch.Gender
	}
	if ch.BirthDate != nil {
		if *ch.BirthDate != "" {
			if _, err := time.Parse(birthDateLayout, *ch.BirthDate); err != nil {
				return nil, apperror.ValidationFailed("birthDate", "birth date must be in YYYY-MM-DD format")
			}
		}
		user.BirthDate = *ch.BirthDate
	}
	if ch.AvatarPath != nil {
		user.AvatarPath = *ch.AvatarPath
	}
	if ch.IsPublic != nil {
		user.IsPublic = *ch.IsPublic
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return user, nil
}

// SecurityChange carries credential updates. CurrentPassword is always
// required; the other fields apply only when non-nil.
type SecurityChange struct {
	CurrentPassword string
	Username        *string
	Email           *string
	NewPassword     *string
}

// UpdateSecurity changes username, email or password after re-verifying
// the current password. A wrong current password is forbidden rather
// than a validation failure: the caller is authenticated but has not
// proven account ownership.
func (s *ProfileService) UpdateSecurity(ctx context.Context, userID string, ch SecurityChange) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.passwords.Verify(user.PasswordHash, ch.CurrentPassword); err != nil {
		return nil, apperror.Forbidden("current password is incorrect")
	}

	if ch.Username != nil {
		username := strings.TrimSpace(*ch.Username)
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		taken, err := s.users.UsernameTaken(ctx, username, userID)
		if err != nil {
			return nil, fmt.Errorf("checking username: %w", err)
		}
		if taken {
			return nil, apperror.Conflict("username is already taken")
		}
		user.Username = username
	}

	if ch.Email != nil {
		email := strings.TrimSpace(*ch.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		taken, err := s.users.EmailTaken(ctx, email, userID)
		if err != nil {
			return nil, fmt.Errorf("checking email: %w", err)
		}
		if taken {
			return nil, apperror.Conflict("email is already registered")
		}
		user.Email = email
	}

	if ch.NewPassword != nil {
		if err := validatePassword(*ch.NewPassword); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*ch.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating credentials: %w", err)
	}

	s.logger.Info("credentials updated", slog.String("id", userID))
	return user, nil
}
