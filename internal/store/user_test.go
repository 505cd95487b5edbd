package store

import (
	"context"
	"errors"
	"testing"
)

func TestUserStore_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	s := NewUserStore(db)
	ctx := context.Background()

	u := &User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Name: "Alice"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if u.ID == "" {
		t.Fatal("Create() must assign an id")
	}

	got, err := s.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected username alice, got %q", got.Username)
	}

	if _, err := s.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUserStore_Create_Duplicate(t *testing.T) {
	db := newTestDB(t)
	s := NewUserStore(db)
	ctx := context.Background()

	if err := s.Create(ctx, &User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Same email, different username.
	err := s.Create(ctx, &User{Username: "alice2", Email: "alice@example.com", PasswordHash: "x"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for email, got %v", err)
	}

	// Same username, different email.
	err = s.Create(ctx, &User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for username, got %v", err)
	}
}

func TestUserStore_ListExcept(t *testing.T) {
	db := newTestDB(t)
	s := NewUserStore(db)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob", "carol"} {
		if err := s.Create(ctx, &User{Username: name, Email: name + "@example.com", PasswordHash: "x"}); err != nil {
			t.Fatalf("Create(%s) error: %v", name, err)
		}
	}

	alice, _ := s.FindByEmail(ctx, "alice@example.com")
	users, err := s.ListExcept(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListExcept() error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	for _, u := range users {
		if u.ID == alice.ID {
			t.Error("caller must be excluded from the listing")
		}
	}
}

func TestUserStore_Search(t *testing.T) {
	db := newTestDB(t)
	s := NewUserStore(db)
	ctx := context.Background()

	users := []*User{
		{Username: "alice", Email: "a@example.com", PasswordHash: "x", Name: "Alice Smith"},
		{Username: "bob", Email: "b@example.com", PasswordHash: "x", Name: "Bob Smith"},
		{Username: "smithers", Email: "c@example.com", PasswordHash: "x", Name: "Waylon"},
	}
	for _, u := range users {
		if err := s.Create(ctx, u); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	// Case-insensitive, matches name or username, excludes the caller.
	got, err := s.Search(ctx, "SMITH", users[0].ID)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected bob and smithers, got %d results", len(got))
	}

	// Regex metacharacters in the query are literal, not patterns.
	got, err = s.Search(ctx, ".*", users[0].ID)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no match for literal %q, got %d", ".*", len(got))
	}
}
