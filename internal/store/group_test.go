package store

import (
	"context"
	"errors"
	"testing"
)

func TestGroupMembership(t *testing.T) {
	g := &Group{ID: "g1", Admin: "alice", Members: []string{"alice", "bob"}}

	if !g.IsMember("alice") || !g.IsMember("bob") {
		t.Error("expected alice and bob to be members")
	}
	if g.IsMember("carol") {
		t.Error("carol is not a member")
	}
	if !g.IsAdmin("alice") {
		t.Error("alice is the admin")
	}
	if g.IsAdmin("bob") {
		t.Error("bob is not the admin")
	}
}

func TestGroupStore_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	s := NewGroupStore(db)
	ctx := context.Background()

	g, err := s.Create(ctx, "backend team", "alice")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if g.Admin != "alice" {
		t.Errorf("expected admin alice, got %q", g.Admin)
	}
	// The creator is automatically the sole member.
	if len(g.Members) != 1 || g.Members[0] != "alice" {
		t.Errorf("expected members [alice], got %v", g.Members)
	}

	got, err := s.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "backend team" {
		t.Errorf("expected name round trip, got %q", got.Name)
	}
}

func TestGroupStore_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	s := NewGroupStore(db)

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupStore_AddMember(t *testing.T) {
	db := newTestDB(t)
	s := NewGroupStore(db)
	ctx := context.Background()

	g, err := s.Create(ctx, "team", "alice")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	updated, err := s.AddMember(ctx, g.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("AddMember() error: %v", err)
	}
	if !updated.IsMember("bob") {
		t.Error("expected bob to be a member after add")
	}

	// Duplicate add is a no-op.
	updated, err = s.AddMember(ctx, g.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("AddMember() duplicate error: %v", err)
	}
	if len(updated.Members) != 2 {
		t.Errorf("expected 2 members after duplicate add, got %v", updated.Members)
	}
}

func TestGroupStore_AddMember_NonAdminRejected(t *testing.T) {
	db := newTestDB(t)
	s := NewGroupStore(db)
	ctx := context.Background()

	g, err := s.Create(ctx, "team", "alice")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := s.AddMember(ctx, g.ID, "bob", "carol"); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("expected ErrNotAdmin, got %v", err)
	}

	// The group must be unchanged.
	got, _ := s.Get(ctx, g.ID)
	if got.IsMember("carol") {
		t.Error("carol must not have been added by a non-admin")
	}
}

func TestGroupStore_ListByMember(t *testing.T) {
	db := newTestDB(t)
	s := NewGroupStore(db)
	ctx := context.Background()

	g1, _ := s.Create(ctx, "one", "alice")
	if _, err := s.Create(ctx, "two", "bob"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := s.AddMember(ctx, g1.ID, "alice", "bob"); err != nil {
		t.Fatalf("AddMember() error: %v", err)
	}

	groups, err := s.ListByMember(ctx, "bob")
	if err != nil {
		t.Fatalf("ListByMember() error: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("expected bob in 2 groups, got %d", len(groups))
	}

	groups, err = s.ListByMember(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByMember() error: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("expected alice in 1 group, got %d", len(groups))
	}
}
