package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 60
	MinPasswordLength = 6
)

// AuthService handles registration and login. Passwords are bcrypt
// hashes, sessions are stateless JWTs.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
	}
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// Register creates an account and logs it straight in. Taken usernames
// and emails are conflicts, not validation failures.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*model.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateUsername(username); err != nil {
		return nil, "", err
	}
	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if err := validatePassword(password); err != nil {
		return nil, "", err
	}

	taken, err := s.users.UsernameTaken(ctx, username, "")
	if err != nil {
		return nil, "", fmt.Errorf("checking username: %w", err)
	}
	if taken {
		return nil, "", apperror.Conflict("username is already taken")
	}
	taken, err = s.users.EmailTaken(ctx, email, "")
	if err != nil {
		return nil, "", fmt.Errorf("checking email: %w", err)
	}
	if taken {
		return nil, "", apperror.Conflict("email is already registered")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsPublic:     true,
		Status:       model.StatusActive,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("creating user: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("id", user.ID),
		slog.String("username", user.Username),
	)
	return user, token, nil
}

// Login verifies email+password and issues a token. Unknown email and
// wrong password produce the same error, so a login attempt cannot
// probe which addresses are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.users.GetActiveByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, "", apperror.Unauthorized("invalid email or password")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, "", apperror.Unauthorized("invalid email or password")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("id", user.ID))
	return user, token, nil
}

// Me returns the authenticated user's own record.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}
