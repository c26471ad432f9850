package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/projekt-software-engineering/ticket-backend/core/docstore"
)

func newTestDirectory(t *testing.T) (*StoreDirectory, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory(map[string][]string{UserCollection: UserFields})
	directory := NewStoreDirectory(store)

	err := store.Set(context.Background(), UserCollection, "u1", map[string]interface{}{
		"email":        "u1@example.com",
		"display_name": "User One",
		"claims":       map[string]interface{}{"requester": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return directory, store
}

func TestUserLookup(t *testing.T) {
	directory, _ := newTestDirectory(t)

	user, err := directory.User(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "u1" || user.Email != "u1@example.com" || user.DisplayName != "User One" {
		t.Fatal("unexpected user:", user)
	}
	if !user.Claims["requester"] || user.Claims["admin"] {
		t.Fatal("unexpected claims:", user.Claims)
	}

	_, err = directory.User(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatal("expected ErrUserNotFound, got:", err)
	}
}

func TestSetClaim(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()

	if err := directory.SetClaim(ctx, "u1", "editor", true); err != nil {
		t.Fatal(err)
	}
	user, err := directory.User(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !user.Claims["editor"] || !user.Claims["requester"] {
		t.Fatal("claim update lost existing claims:", user.Claims)
	}

	if err := directory.SetClaim(ctx, "u1", "superuser", true); !errors.Is(err, ErrInvalidClaim) {
		t.Fatal("unknown claim accepted:", err)
	}
	if err := directory.SetClaim(ctx, "missing", "editor", true); !errors.Is(err, ErrUserNotFound) {
		t.Fatal("claim set on unknown user:", err)
	}
}

func TestUpdateUser(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()

	name := "Renamed"
	if err := directory.UpdateUser(ctx, "u1", UserUpdate{DisplayName: &name}); err != nil {
		t.Fatal(err)
	}
	user, err := directory.User(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if user.DisplayName != "Renamed" || user.Email != "u1@example.com" {
		t.Fatal("partial update touched other fields:", user)
	}

	if err := directory.UpdateUser(ctx, "missing", UserUpdate{DisplayName: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Fatal("update on unknown user:", err)
	}

	// an empty update is a no-op, not an error
	if err := directory.UpdateUser(ctx, "u1", UserUpdate{}); err != nil {
		t.Fatal(err)
	}
}

func TestDisplayNameFallback(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()

	if got := DisplayName(ctx, directory, "u1"); got != "User One" {
		t.Fatal("unexpected display name:", got)
	}
	if got := DisplayName(ctx, directory, "missing"); got != "Unknown" {
		t.Fatal("missing user must yield Unknown:", got)
	}
	if got := DisplayName(ctx, directory, ""); got != "Unknown" {
		t.Fatal("empty id must yield Unknown:", got)
	}
	if got := DisplayName(ctx, nil, "u1"); got != "Unknown" {
		t.Fatal("nil directory must yield Unknown:", got)
	}
}
