// Package service contains the business logic layer.
//
// Services validate input, enforce the catalog's rules and orchestrate
// repositories; they know nothing about HTTP. Handlers translate
// requests into plain service calls and domain errors back into status
// codes, so the same logic could serve a CLI or a background job
// unchanged.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
	"github.com/nvoropaev/movielog/internal/storage"
)

const (
	MaxTitleLength = 255
	MinYear        = 1880
	MaxYear        = 2100
	MinRuntimeMin  = 1
	MaxRuntimeMin  = 600
	MinRating      = 1
	MaxRating      = 10

	watchedAtLayout = "2006-01-02"
)

// CatalogService is the engine behind a user's movie lists: creation,
// partial updates, the my/later/deleted transitions with duplicate
// detection, tag sync and notification emission.
type CatalogService struct {
	movies  repository.MovieRepository
	tags    repository.TagRepository
	notifs  repository.NotificationRepository
	users   repository.UserRepository
	posters storage.PosterStore
	logger  *slog.Logger
}

func NewCatalogService(
	movies repository.MovieRepository,
	tags repository.TagRepository,
	notifs repository.NotificationRepository,
	users repository.UserRepository,
	posters storage.PosterStore,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		movies:  movies,
		tags:    tags,
		notifs:  notifs,
		users:   users,
		posters: posters,
		logger:  logger,
	}
}

// MovieInput carries the full field set for create and import.
// TagIDsSet distinguishes an explicitly empty tag list from an absent
// one.
type MovieInput struct {
	List        string
	Title       string
	Year        *int
	RuntimeMin  *int
	GenresCsv   string
	Description string
	Notes       string
	Watched     bool
	Rating      *int
	WatchedAt   *string
	PosterPath  string
	URL         string
	TagIDs      []string
	TagIDsSet   bool
}

// MovieChange is a partial update. A nil pointer leaves the field
// unchanged; for fields that can be cleared to null, the companion Set
// flag marks the field as present so an explicit null can be told apart
// from an omitted key.
type MovieChange struct {
	Title        *string
	List         *string
	Year         *int
	YearSet      bool
	RuntimeMin   *int
	RuntimeSet   bool
	GenresCsv    *string
	Description  *string
	Notes        *string
	URL          *string
	PosterPath   *string
	Watched      *bool
	Rating       *int
	RatingSet    bool
	WatchedAt    *string
	WatchedAtSet bool
	TagIDs       []string
	TagIDsSet    bool
}

// validateMovie checks the fully-applied state of a movie before any
// write happens. The watched invariant is enforced by the callers
// (rating and watchedAt are force-cleared when watched is false), so
// here watchedAt presence is only required when watched is true.
func validateMovie(m *model.Movie) error {
	if m.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(m.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if m.Year != nil && (*m.Year < MinYear || *m.Year > MaxYear) {
		return apperror.ValidationFailed("year",
			fmt.Sprintf("year must be between %d and %d", MinYear, MaxYear))
	}
	if m.RuntimeMin != nil && (*m.RuntimeMin < MinRuntimeMin || *m.RuntimeMin > MaxRuntimeMin) {
		return apperror.ValidationFailed("runtimeMin",
			fmt.Sprintf("runtime must be between %d and %d minutes", MinRuntimeMin, MaxRuntimeMin))
	}
	if m.Rating != nil && (*m.Rating < MinRating || *m.Rating > MaxRating) {
		return apperror.ValidationFailed("rating",
			fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	if m.Watched {
		if m.WatchedAt == nil || *m.WatchedAt == "" {
			return apperror.ValidationFailed("watchedAt", "watch date is required for watched movies")
		}
		if _, err := time.Parse(watchedAtLayout, *m.WatchedAt); err != nil {
			return apperror.ValidationFailed("watchedAt", "watch date must be in YYYY-MM-DD format")
		}
	}
	return nil
}

// applyWatchedInvariant clears rating and watch date whenever the movie
// is not watched, regardless of what the caller sent.
func applyWatchedInvariant(m *model.Movie) {
	if !m.Watched {
		m.Rating = nil
		m.WatchedAt = nil
	}
}

// Create adds a new movie to the my or later list. Emits movie_added,
// plus movie_rated when the movie arrives already rated.
func (s *CatalogService) Create(ctx context.Context, userID string, in MovieInput) (*model.Movie, error) {
	m, err := s.buildMovie(userID, in)
	if err != nil {
		return nil, err
	}

	// Resolve the owned tag subset before writing anything, so a
	// storage error here leaves no partial state.
	var tagIDs []string
	if in.TagIDsSet {
		tagIDs, err = s.tags.FilterOwned(ctx, userID, in.TagIDs)
		if err != nil {
			return nil, fmt.Errorf("resolving tags: %w", err)
		}
	}

	if err := s.movies.Create(ctx, m); err != nil {
		s.logger.Error("failed to create movie",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating movie: %w", err)
	}

	if in.TagIDsSet && len(tagIDs) > 0 {
		if err := s.movies.ReplaceTags(ctx, m.ID, tagIDs); err != nil {
			return nil, fmt.Errorf("syncing tags: %w", err)
		}
	}

	s.notify(ctx, userID, m.ID, model.ActionMovieAdded, nil)
	if m.Rating != nil {
		s.notify(ctx, userID, m.ID, model.ActionMovieRated, m.Rating)
	}

	s.logger.Info("movie created",
		slog.String("id", m.ID),
		slog.String("user_id", userID),
		slog.String("list", m.List),
	)
	return s.movies.GetByID(ctx, userID, m.ID)
}

// buildMovie validates a MovieInput and produces the record to insert.
func (s *CatalogService) buildMovie(userID string, in MovieInput) (*model.Movie, error) {
	list := in.List
	if list == "" {
		list = model.ListMy
	}
	if list == model.ListDeleted {
		return nil, apperror.ValidationFailed("list", "movies cannot be created in the deleted list")
	}
	if !model.ValidActiveList(list) {
		return nil, apperror.ValidationFailed("list", "list must be my or later")
	}

	m := &model.Movie{
		UserID:      userID,
		List:        list,
		Title:       strings.TrimSpace(in.Title),
		Year:        in.Year,
		RuntimeMin:  in.RuntimeMin,
		GenresCsv:   strings.TrimSpace(in.GenresCsv),
		Description: in.Description,
		Notes:       in.Notes,
		Watched:     in.Watched,
		Rating:      in.Rating,
		WatchedAt:   in.WatchedAt,
		PosterPath:  in.PosterPath,
		URL:         in.URL,
	}
	applyWatchedInvariant(m)
	if err := validateMovie(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get fetches one of the caller's movies with tags attached.
func (s *CatalogService) Get(ctx context.Context, userID, id string) (*model.Movie, error) {
	return s.movies.GetByID(ctx, userID, id)
}

// List returns one page of the caller's catalog. The list and sort
// enums are rejected before any query runs.
func (s *CatalogService) List(ctx context.Context, userID string, q repository.ListQuery) ([]model.Movie, int, error) {
	if !model.ValidList(q.List) {
		return nil, 0, apperror.BadRequest("unknown list")
	}
	if q.Sort == "" {
		q.Sort = repository.SortAddedDesc
	}
	if !repository.ValidSort(q.Sort) {
		return nil, 0, apperror.BadRequest("unknown sort")
	}
	return s.movies.List(ctx, userID, q)
}

// Update applies a partial change to one movie. Fields absent from the
// change stay as they are; rating and watch date are force-cleared when
// the result is unwatched. Emits movie_rated when the saved rating is
// non-null and differs from the rating before the save, unless the
// movie sits in the deleted list.
func (s *CatalogService) Update(ctx context.Context, userID, id string, ch MovieChange) (*model.Movie, error) {
	m, err := s.movies.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	prevRating := m.Rating

	if ch.Title != nil {
		m.Title = strings.TrimSpace(*ch.Title)
	}
	if ch.List != nil {
		if !model.ValidActiveList(*ch.List) {
			return nil, apperror.ValidationFailed("list", "list must be my or later")
		}
		m.List = *ch.List
		m.DeletedFromList = nil
		m.DeletedAt = nil
	}
	if ch.YearSet {
		m.Year = ch.Year
	}
	if ch.RuntimeSet {
		m.RuntimeMin = ch.RuntimeMin
	}
	if ch.GenresCsv != nil {
		m.GenresCsv = strings.TrimSpace(*ch.GenresCsv)
	}
	if ch.Description != nil {
		m.Description = *ch.Description
	}
	if ch.Notes != nil {
		m.Notes = *ch.Notes
	}
	if ch.URL != nil {
		m.URL = *ch.URL
	}
	if ch.PosterPath != nil {
		m.PosterPath = *ch.PosterPath
	}
	if ch.Watched != nil {
		m.Watched = *ch.Watched
	}
	if ch.RatingSet {
		m.Rating = ch.Rating
	}
	if ch.WatchedAtSet {
		m.WatchedAt = ch.WatchedAt
	}

	applyWatchedInvariant(m)
	if err := validateMovie(m); err != nil {
		return nil, err
	}

	var tagIDs []string
	if ch.TagIDsSet {
		tagIDs, err = s.tags.FilterOwned(ctx, userID, ch.TagIDs)
		if err != nil {
			return nil, fmt.Errorf("resolving tags: %w", err)
		}
	}

	if err := s.movies.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("updating movie: %w", err)
	}

	if ch.TagIDsSet {
		if err := s.movies.ReplaceTags(ctx, m.ID, tagIDs); err != nil {
			return nil, fmt.Errorf("syncing tags: %w", err)
		}
	}

	if m.List != model.ListDeleted && m.Rating != nil &&
		(prevRating == nil || *prevRating != *m.Rating) {
		s.notify(ctx, userID, m.ID, model.ActionMovieRated, m.Rating)
	}

	return s.movies.GetByID(ctx, userID, m.ID)
}

// Move puts a movie on the my or later list, clearing any soft-delete
// bookkeeping.
func (s *CatalogService) Move(ctx context.Context, userID, id, toList string) (*model.Movie, error) {
	if !model.ValidActiveList(toList) {
		return nil, apperror.BadRequest("target list must be my or later")
	}

	m, err := s.movies.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	m.List = toList
	m.DeletedFromList = nil
	m.DeletedAt = nil

	if err := s.movies.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("moving movie: %w", err)
	}
	return m, nil
}

// SoftDelete moves a movie into the deleted list, remembering where it
// came from. Deleting an already-deleted movie is a no-op.
func (s *CatalogService) SoftDelete(ctx context.Context, userID, id string) (*model.Movie, error) {
	m, err := s.movies.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if m.List == model.ListDeleted {
		return m, nil
	}

	from := m.List
	now := time.Now().UTC()
	m.DeletedFromList = &from
	m.List = model.ListDeleted
	m.DeletedAt = &now

	if err := s.movies.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("soft-deleting movie: %w", err)
	}

	s.logger.Info("movie soft-deleted",
		slog.String("id", m.ID),
		slog.String("from", from),
	)
	return m, nil
}

// HardDelete permanently removes a movie, its poster file and its tag
// associations. Notifications that referenced the movie stay in the
// feed without it.
func (s *CatalogService) HardDelete(ctx context.Context, userID, id string) error {
	m, err := s.movies.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	if m.PosterPath != "" {
		if err := s.posters.Remove(m.PosterPath); err != nil {
			// An orphaned file is tolerable; the row removal is not
			// blocked on it.
			s.logger.Error("failed to remove poster",
				slog.String("movie_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.movies.HardDelete(ctx, userID, id); err != nil {
		return fmt.Errorf("hard-deleting movie: %w", err)
	}

	s.logger.Info("movie hard-deleted", slog.String("id", id))
	return nil
}

// Restore brings a deleted movie back to the list it was deleted from,
// defaulting to my. Active movies with the same title (and year, when
// the movie has one) block the restore with a conflict listing them.
// Restoring a movie that is not deleted is a no-op.
func (s *CatalogService) Restore(ctx context.Context, userID, id string) (*model.Movie, error) {
	m, err := s.movies.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if m.List != model.ListDeleted {
		return m, nil
	}

	dups, err := s.movies.FindDuplicatesLoose(ctx, userID, m.Title, m.Year, m.ID, true)
	if err != nil {
		return nil, fmt.Errorf("checking restore duplicates: %w", err)
	}
	if len(dups) > 0 {
		return nil, apperror.ConflictWith("a movie with this title already exists", dups)
	}

	target := model.ListMy
	if m.DeletedFromList != nil && model.ValidActiveList(*m.DeletedFromList) {
		target = *m.DeletedFromList
	}
	m.List = target
	m.DeletedFromList = nil
	m.DeletedAt = nil

	if err := s.movies.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("restoring movie: %w", err)
	}

	s.logger.Info("movie restored",
		slog.String("id", m.ID),
		slog.String("to", target),
	)
	return m, nil
}

// DuplicatesCheck is the loose pre-flight check clients run before
// creating: case-insensitive exact title, year narrowing only when
// supplied, optional self-exclusion. Deleted movies are included so the
// client can suggest a restore instead.
func (s *CatalogService) DuplicatesCheck(ctx context.Context, userID, title string, year *int, excludeID string) ([]model.DuplicateMovie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	return s.movies.FindDuplicatesLoose(ctx, userID, title, year, excludeID, false)
}

// DuplicatesCheckStrict requires both title and year and never matches
// deleted movies. Kept separate from the loose check so the two
// policies cannot drift into each other.
func (s *CatalogService) DuplicatesCheckStrict(ctx context.Context, userID, title string, year *int) ([]model.DuplicateMovie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if year == nil {
		return nil, apperror.ValidationFailed("year", "year is required")
	}
	return s.movies.FindDuplicatesStrict(ctx, userID, title, *year)
}

// Import creates a movie guarded by the loose duplicate check: an
// active movie with the same title (and year, when supplied) aborts
// with a conflict before anything is written.
func (s *CatalogService) Import(ctx context.Context, userID string, in MovieInput) (*model.Movie, error) {
	m, err := s.buildMovie(userID, in)
	if err != nil {
		return nil, err
	}

	dups, err := s.movies.FindDuplicatesLoose(ctx, userID, m.Title, m.Year, "", true)
	if err != nil {
		return nil, fmt.Errorf("checking import duplicates: %w", err)
	}
	if len(dups) > 0 {
		return nil, apperror.ConflictWith("a movie with this title already exists", dups)
	}

	return s.Create(ctx, userID, in)
}

// Copy clones a movie from another user's public catalog into the
// caller's. Only scalar fields travel: tags, notes and the
// watched/rating state stay behind, and the poster is not shared.
func (s *CatalogService) Copy(ctx context.Context, callerID, fromUserID, movieID, list string) (*model.Movie, error) {
	if list == "" {
		list = model.ListMy
	}
	if !model.ValidActiveList(list) {
		return nil, apperror.ValidationFailed("list", "list must be my or later")
	}

	if _, err := s.users.GetPublicUser(ctx, fromUserID); err != nil {
		return nil, err
	}
	src, err := s.movies.GetByID(ctx, fromUserID, movieID)
	if err != nil {
		return nil, err
	}
	if src.List == model.ListDeleted {
		return nil, apperror.NotFound("movie")
	}

	dups, err := s.movies.FindDuplicatesLoose(ctx, callerID, src.Title, src.Year, "", true)
	if err != nil {
		return nil, fmt.Errorf("checking copy duplicates: %w", err)
	}
	if len(dups) > 0 {
		return nil, apperror.ConflictWith("a movie with this title already exists", dups)
	}

	m := &model.Movie{
		UserID:      callerID,
		List:        list,
		Title:       src.Title,
		Year:        src.Year,
		RuntimeMin:  src.RuntimeMin,
		GenresCsv:   src.GenresCsv,
		Description: src.Description,
		URL:         src.URL,
	}
	if err := s.movies.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("copying movie: %w", err)
	}

	// The new movie belongs to the caller, so the event does too.
	s.notify(ctx, callerID, m.ID, model.ActionMovieAdded, nil)

	s.logger.Info("movie copied",
		slog.String("id", m.ID),
		slog.String("from_user", fromUserID),
		slog.String("source_id", movieID),
	)
	return m, nil
}

// Filters aggregates the facet for one of the caller's lists.
func (s *CatalogService) Filters(ctx context.Context, userID, list string) (*model.CatalogFilters, error) {
	if !model.ValidList(list) {
		return nil, apperror.BadRequest("unknown list")
	}
	return s.movies.Filters(ctx, userID, []string{list})
}

// notify records a feed event. Emission is best-effort: the catalog
// write already succeeded, so a failure here is logged rather than
// surfaced.
func (s *CatalogService) notify(ctx context.Context, userID, movieID, action string, rating *int) {
	n := &model.Notification{
		UserID:  userID,
		MovieID: movieID,
		Action:  action,
		Rating:  rating,
	}
	if err := s.notifs.CreateNotification(ctx, n); err != nil {
		s.logger.Error("failed to record notification",
			slog.String("movie_id", movieID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
