package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

const (
	MaxTagNameLength   = 60
	DefaultTagPageSize = 10
	MaxTagPageSize     = 100
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// TagService manages a user's tag vocabulary. Deleting a tag detaches
// it from movies but never touches the movies themselves.
type TagService struct {
	repo   repository.TagRepository
	logger *slog.Logger
}

func NewTagService(repo repository.TagRepository, logger *slog.Logger) *TagService {
	return &TagService{repo: repo, logger: logger}
}

func validateTag(name, color string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "tag name is required")
	}
	if len(name) > MaxTagNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("tag name must be %d characters or less", MaxTagNameLength))
	}
	if color != "" && !hexColorPattern.MatchString(color) {
		return apperror.ValidationFailed("color", "color must be a #rrggbb hex value")
	}
	return nil
}

func (s *TagService) Create(ctx context.Context, userID, name, color string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if err := validateTag(name, color); err != nil {
		return nil, err
	}

	tag := &model.Tag{UserID: userID, Name: name, Color: color}
	if err := s.repo.CreateTag(ctx, tag); err != nil {
		return nil, fmt.Errorf("creating tag: %w", err)
	}

	s.logger.Info("tag created",
		slog.String("id", tag.ID),
		slog.String("user_id", userID),
	)
	return tag, nil
}

func (s *TagService) Get(ctx context.Context, userID, id string) (*model.Tag, error) {
	return s.repo.GetTagByID(ctx, userID, id)
}

// List returns one newest-first page of the caller's tags.
func (s *TagService) List(ctx context.Context, userID string, page, pageSize int) ([]model.Tag, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultTagPageSize
	}
	if pageSize > MaxTagPageSize {
		pageSize = MaxTagPageSize
	}
	return s.repo.ListTags(ctx, userID, page, pageSize)
}

func (s *TagService) Update(ctx context.Context, userID, id, name, color string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if err := validateTag(name, color); err != nil {
		return nil, err
	}

	tag, err := s.repo.GetTagByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	tag.Name = name
	tag.Color = color

	if err := s.repo.UpdateTag(ctx, tag); err != nil {
		return nil, fmt.Errorf("updating tag: %w", err)
	}
	return tag, nil
}

func (s *TagService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteTag(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("tag deleted",
		slog.String("id", id),
		slog.String("user_id", userID),
	)
	return nil
}
