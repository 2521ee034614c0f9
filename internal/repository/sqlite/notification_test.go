package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/nvoropaev/movielog/internal/model"
	"github.com/nvoropaev/movielog/internal/repository"
)

func createNotification(t *testing.T, db *DB, userID, movieID, action string, rating *int, at time.Time) *model.Notification {
	t.Helper()
	n := &model.Notification{UserID: userID, MovieID: movieID, Action: action, Rating: rating, CreatedAt: at}
	if err := db.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	return n
}

func TestFeed(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	m1 := createTestMovie(t, db, alice.ID, model.ListMy, "Arrival")
	m2 := createTestMovie(t, db, bob.ID, model.ListMy, "Heat")

	day1 := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)
	createNotification(t, db, alice.ID, m1.ID, model.ActionMovieAdded, nil, day1)
	createNotification(t, db, alice.ID, m1.ID, model.ActionMovieRated, intp(9), day2)
	createNotification(t, db, bob.ID, m2.ID, model.ActionMovieAdded, nil, day2)

	// Only followed actors appear; newest first.
	items, total, err := db.Feed(context.Background(), repository.FeedQuery{ActorIDs: []string{alice.ID}})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("Feed() = %d/%d, want 2/2", len(items), total)
	}
	if items[0].Action != model.ActionMovieRated || items[0].Rating == nil || *items[0].Rating != 9 {
		t.Errorf("first item = %+v, want the rating event", items[0])
	}
	if items[0].User == nil || items[0].User.Username != "alice" {
		t.Errorf("actor not hydrated: %+v", items[0].User)
	}
	if items[0].Movie == nil || items[0].Movie.Title != "Arrival" {
		t.Errorf("movie not hydrated: %+v", items[0].Movie)
	}

	// Action filter.
	_, total, err = db.Feed(context.Background(), repository.FeedQuery{
		ActorIDs: []string{alice.ID, bob.ID},
		Actions:  []string{model.ActionMovieRated},
	})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if total != 1 {
		t.Errorf("action-filtered total = %d, want 1", total)
	}

	// Inclusive whole-day date bounds.
	_, total, err = db.Feed(context.Background(), repository.FeedQuery{
		ActorIDs: []string{alice.ID, bob.ID},
		DateFrom: "2026-01-11",
		DateTo:   "2026-01-11",
	})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if total != 2 {
		t.Errorf("date-bounded total = %d, want 2", total)
	}
}

func TestFeed_NoActors(t *testing.T) {
	db := newTestDB(t)

	items, total, err := db.Feed(context.Background(), repository.FeedQuery{})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("empty-actor feed = %d/%d, want 0/0", len(items), total)
	}
}

func TestFeed_HardDeletedMovie(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	m := createTestMovie(t, db, alice.ID, model.ListMy, "Gone")
	createNotification(t, db, alice.ID, m.ID, model.ActionMovieAdded, nil, time.Now().UTC())

	if err := db.HardDelete(context.Background(), alice.ID, m.ID); err != nil {
		t.Fatalf("HardDelete() error = %v", err)
	}

	items, _, err := db.Feed(context.Background(), repository.FeedQuery{ActorIDs: []string{alice.ID}})
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	// The event stays in the feed with no movie attached.
	if len(items) != 1 || items[0].Movie != nil {
		t.Errorf("feed after hard delete = %+v, want one item with nil movie", items)
	}
}

func TestCountSince(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	m := createTestMovie(t, db, alice.ID, model.ListMy, "Arrival")

	before := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	after := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	createNotification(t, db, alice.ID, m.ID, model.ActionMovieAdded, nil, before)
	createNotification(t, db, alice.ID, m.ID, model.ActionMovieRated, intp(8), after)

	// Nil watermark counts everything.
	n, err := db.CountSince(context.Background(), []string{alice.ID}, nil)
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountSince(nil) = %d, want 2", n)
	}

	mark := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	n, err = db.CountSince(context.Background(), []string{alice.ID}, &mark)
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountSince(mark) = %d, want 1", n)
	}

	n, err = db.CountSince(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("CountSince() with no actors error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountSince(no actors) = %d, want 0", n)
	}
}

func TestActiveActors(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	m := createTestMovie(t, db, alice.ID, model.ListMy, "Arrival")
	createNotification(t, db, alice.ID, m.ID, model.ActionMovieAdded, nil, time.Now().UTC())

	got, err := db.ActiveActors(context.Background(), []string{bob.ID, alice.ID})
	if err != nil {
		t.Fatalf("ActiveActors() error = %v", err)
	}
	if len(got) != 1 || got[0] != alice.ID {
		t.Errorf("ActiveActors() = %v, want only alice", got)
	}
}
