package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

// UserService serves the public side of the catalog: the user
// directory, browsing another user's movies and the tab counts.
type UserService struct {
	users  repository.UserRepository
	movies repository.MovieRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, movies repository.MovieRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, movies: movies, logger: logger}
}

// Directory lists active public users ordered by username, optionally
// filtered by a username/name substring.
func (s *UserService) Directory(ctx context.Context, q string) ([]model.UserSummary, error) {
	return s.users.ListPublicUsers(ctx, strings.TrimSpace(q))
}

// PublicProfile fetches a public user's visible profile. Private and
// missing users are indistinguishable in the response.
func (s *UserService) PublicProfile(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetPublicUser(ctx, id)
}

// PublicMovies lists a public user's non-deleted movies with the usual
// filter and sort semantics. Deleted-list sorts are not available here.
func (s *UserService) PublicMovies(ctx context.Context, viewedUserID string, q repository.ListQuery) ([]model.Movie, int, error) {
	if _, err := s.users.GetPublicUser(ctx, viewedUserID); err != nil {
		return nil, 0, err
	}
	if q.Sort == "" {
		q.Sort = repository.SortAddedDesc
	}
	if !repository.ValidSort(q.Sort) ||
		q.Sort == repository.SortDeletedAtDesc || q.Sort == repository.SortDeletedAtAsc {
		return nil, 0, apperror.BadRequest("unknown sort")
	}
	return s.movies.ListPublic(ctx, viewedUserID, q)
}

// PublicMovie fetches one non-deleted movie from a public user's
// catalog.
func (s *UserService) PublicMovie(ctx context.Context, viewedUserID, movieID string) (*model.Movie, error) {
	if _, err := s.users.GetPublicUser(ctx, viewedUserID); err != nil {
		return nil, err
	}
	m, err := s.movies.GetByID(ctx, viewedUserID, movieID)
	if err != nil {
		return nil, err
	}
	if m.List == model.ListDeleted {
		return nil, apperror.NotFound("movie")
	}
	return m, nil
}

// PublicFilters aggregates the facet over a public user's visible
// lists.
func (s *UserService) PublicFilters(ctx context.Context, viewedUserID string) (*model.CatalogFilters, error) {
	if _, err := s.users.GetPublicUser(ctx, viewedUserID); err != nil {
		return nil, err
	}
	return s.movies.Filters(ctx, viewedUserID, []string{model.ListMy, model.ListLater})
}

// TabCounts returns the caller's per-list counts plus the public user
// directory size, one call for the navigation bar.
func (s *UserService) TabCounts(ctx context.Context, userID string) (*model.TabCounts, error) {
	my, later, deleted, err := s.movies.CountByList(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting movies: %w", err)
	}
	users, err := s.users.CountPublicUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting public users: %w", err)
	}
	return &model.TabCounts{My: my, Later: later, Deleted: deleted, Users: users}, nil
}
