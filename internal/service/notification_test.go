package service

import (
	"context"
	"errors"
	"testing"

	"github.com/nvoropaev/movielog/internal/apperror"
	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository/sqlite"
)

type feedEnv struct {
	catalog *CatalogService
	feed    *NotificationService
	db      *sqlite.DB
}

func newFeedEnv(t *testing.T) *feedEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := testLogger()
	return &feedEnv{
		catalog: NewCatalogService(db, db, db, db, &fakePosterStore{}, logger),
		feed:    NewNotificationService(db, db, db, logger),
		db:      db,
	}
}

func (e *feedEnv) createUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsPublic:     true,
		Status:       model.StatusActive,
	}
	if err := e.db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func TestFeed_FollowedOnly(t *testing.T) {
	env := newFeedEnv(t)
	reader := env.createUser(t, "reader")
	followed := env.createUser(t, "followed")
	stranger := env.createUser(t, "stranger")
	ctx := context.Background()

	if err := env.feed.Follow(ctx, reader.ID, followed.ID); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if _, err := env.catalog.Create(ctx, followed.ID, MovieInput{Title: "Theirs"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := env.catalog.Create(ctx, stranger.ID, MovieInput{Title: "Invisible"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	items, total, err := env.feed.Feed(ctx, reader.ID, FeedOptions{})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].User.Username != "followed" {
		t.Fatalf("feed = %+v / total %d, want one event from followed", items, total)
	}

	// Requesting an unfollowed author's events must not widen the feed.
	_, total, err = env.feed.Feed(ctx, reader.ID, FeedOptions{Users: []string{stranger.ID}})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if total != 0 {
		t.Errorf("stranger filter leaked %d events", total)
	}
}

func TestFeed_InvalidFilters(t *testing.T) {
	env := newFeedEnv(t)
	reader := env.createUser(t, "reader")

	_, _, err := env.feed.Feed(context.Background(), reader.ID, FeedOptions{Actions: []string{"movie_eaten"}})
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("unknown action error = %v, want ErrBadRequest", err)
	}
	_, _, err = env.feed.Feed(context.Background(), reader.ID, FeedOptions{DateFrom: "last tuesday"})
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("bad date error = %v, want ErrBadRequest", err)
	}
}

func TestUnreadCount_Watermark(t *testing.T) {
	env := newFeedEnv(t)
	reader := env.createUser(t, "reader")
	followed := env.createUser(t, "followed")
	ctx := context.Background()

	if err := env.feed.Follow(ctx, reader.ID, followed.ID); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if _, err := env.catalog.Create(ctx, followed.ID, MovieInput{Title: "One"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := env.feed.UnreadCount(ctx, reader.ID)
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("unread before mark = %d, want 1", n)
	}

	if err := env.feed.MarkRead(ctx, reader.ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	n, err = env.feed.UnreadCount(ctx, reader.ID)
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if n != 0 {
		t.Errorf("unread after mark = %d, want 0", n)
	}
}

func TestFollow_Rules(t *testing.T) {
	env := newFeedEnv(t)
	reader := env.createUser(t, "reader")
	private := env.createUser(t, "private")
	ctx := context.Background()

	if err := env.feed.Follow(ctx, reader.ID, reader.ID); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("self-follow error = %v, want validation failure", err)
	}

	private.IsPublic = false
	if err := env.db.UpdateUser(ctx, private); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if err := env.feed.Follow(ctx, reader.ID, private.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("private follow error = %v, want ErrNotFound", err)
	}
}

func TestActiveAuthors(t *testing.T) {
	env := newFeedEnv(t)
	reader := env.createUser(t, "reader")
	active := env.createUser(t, "active")
	quiet := env.createUser(t, "quiet")
	ctx := context.Background()

	for _, u := range []*model.User{active, quiet} {
		if err := env.feed.Follow(ctx, reader.ID, u.ID); err != nil {
			t.Fatalf("Follow() error = %v", err)
		}
	}
	if _, err := env.catalog.Create(ctx, active.ID, MovieInput{Title: "Something"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	authors, err := env.feed.ActiveAuthors(ctx, reader.ID)
	if err != nil {
		t.Fatalf("ActiveAuthors() error = %v", err)
	}
	if len(authors) != 1 || authors[0].Username != "active" {
		t.Errorf("ActiveAuthors() = %+v, want active only", authors)
	}
}
