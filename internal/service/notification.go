package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

const (
	DefaultFeedPageSize = 10
	MaxFeedPageSize     = 100

	feedDateLayout = "2006-01-02"
)

// NotificationService serves the follower-facing activity feed: events
// from the users the reader follows, an unread watermark, and the
// follow edges themselves.
type NotificationService struct {
	notifs  repository.NotificationRepository
	users   repository.UserRepository
	follows repository.FollowRepository
	logger  *slog.Logger
}

func NewNotificationService(
	notifs repository.NotificationRepository,
	users repository.UserRepository,
	follows repository.FollowRepository,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifs:  notifs,
		users:   users,
		follows: follows,
		logger:  logger,
	}
}

// FeedOptions filters the feed. Users narrows to a subset of followed
// actors; ids of users the reader does not follow are dropped, never
// widened into.
type FeedOptions struct {
	Users    []string
	Actions  []string
	DateFrom string
	DateTo   string
	Page     int
	PageSize int
}

// Feed returns one page of events from the reader's followed users.
func (s *NotificationService) Feed(ctx context.Context, readerID string, opts FeedOptions) ([]model.FeedItem, int, error) {
	for _, a := range opts.Actions {
		if !model.ValidAction(a) {
			return nil, 0, apperror.BadRequest("unknown action")
		}
	}
	for _, d := range []string{opts.DateFrom, opts.DateTo} {
		if d != "" {
			if _, err := time.Parse(feedDateLayout, d); err != nil {
				return nil, 0, apperror.BadRequest("dates must be in YYYY-MM-DD format")
			}
		}
	}

	followed, err := s.follows.FolloweeIDs(ctx, readerID)
	if err != nil {
		return nil, 0, fmt.Errorf("loading followed users: %w", err)
	}

	actorIDs := followed
	if len(opts.Users) > 0 {
		actorIDs = intersect(opts.Users, followed)
	}
	if len(actorIDs) == 0 {
		return []model.FeedItem{}, 0, nil
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultFeedPageSize
	}
	if opts.PageSize > MaxFeedPageSize {
		opts.PageSize = MaxFeedPageSize
	}

	return s.notifs.Feed(ctx, repository.FeedQuery{
		ActorIDs: actorIDs,
		Actions:  opts.Actions,
		DateFrom: opts.DateFrom,
		DateTo:   opts.DateTo,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	})
}

// intersect keeps requested ids that appear in allowed, preserving the
// requested order.
func intersect(requested, allowed []string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		ok[id] = true
	}
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if ok[id] {
			out = append(out, id)
			ok[id] = false
		}
	}
	return out
}

// UnreadCount reports how many followed-user events arrived after the
// reader last marked the feed read. A reader who never marked it sees
// the full count.
func (s *NotificationService) UnreadCount(ctx context.Context, readerID string) (int, error) {
	reader, err := s.users.GetUserByID(ctx, readerID)
	if err != nil {
		return 0, err
	}
	followed, err := s.follows.FolloweeIDs(ctx, readerID)
	if err != nil {
		return 0, fmt.Errorf("loading followed users: %w", err)
	}
	return s.notifs.CountSince(ctx, followed, reader.NotificationsReadAt)
}

// MarkRead stamps the reader's watermark at now.
func (s *NotificationService) MarkRead(ctx context.Context, readerID string) error {
	reader, err := s.users.GetUserByID(ctx, readerID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	reader.NotificationsReadAt = &now

	if err := s.users.UpdateUser(ctx, reader); err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

// ActiveAuthors lists the followed users who have produced at least one
// event, for the feed's author filter.
func (s *NotificationService) ActiveAuthors(ctx context.Context, readerID string) ([]model.UserSummary, error) {
	followed, err := s.follows.FolloweeIDs(ctx, readerID)
	if err != nil {
		return nil, fmt.Errorf("loading followed users: %w", err)
	}
	active, err := s.notifs.ActiveActors(ctx, followed)
	if err != nil {
		return nil, fmt.Errorf("finding active authors: %w", err)
	}
	return s.users.Summaries(ctx, active)
}

// Follow subscribes the caller to a public user's events.
func (s *NotificationService) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return apperror.ValidationFailed("userId", "you cannot follow yourself")
	}
	if _, err := s.users.GetPublicUser(ctx, followeeID); err != nil {
		return err
	}
	if err := s.follows.Follow(ctx, followerID, followeeID); err != nil {
		return err
	}

	s.logger.Info("user followed",
		slog.String("follower", followerID),
		slog.String("followee", followeeID),
	)
	return nil
}

// Unfollow drops the subscription; dropping one that never existed is a
// no-op.
func (s *NotificationService) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return s.follows.Unfollow(ctx, followerID, followeeID)
}

// Following returns the ids the caller follows, for client-side state.
func (s *NotificationService) Following(ctx context.Context, readerID string) ([]string, error) {
	return s.follows.FolloweeIDs(ctx, readerID)
}
