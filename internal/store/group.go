package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Group is a named chat group. The admin is fixed at creation and is always
// a member; only the admin may add members.
type Group struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Admin     string    `bson:"admin" json:"admin"`
	Members   []string  `bson:"members" json:"members"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// IsMember reports whether the principal belongs to the group.
func (g *Group) IsMember(principalID string) bool {
	for _, m := range g.Members {
		if m == principalID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal is the group's admin.
func (g *Group) IsAdmin(principalID string) bool {
	return g.Admin == principalID
}

// GroupStore persists groups in the groups collection.
type GroupStore struct {
	coll *mongo.Collection
}

// NewGroupStore creates a GroupStore on the given database.
func NewGroupStore(db *mongo.Database) *GroupStore {
	return &GroupStore{coll: db.Collection(groupsCollection)}
}

// Create inserts a new group with adminID as both admin and sole member.
func (s *GroupStore) Create(ctx context.Context, name, adminID string) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("store: group name is required")
	}

	g := &Group{
		ID:        uuid.NewString(),
		Name:      name,
		Admin:     adminID,
		Members:   []string{adminID},
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.coll.InsertOne(ctx, g); err != nil {
		return nil, fmt.Errorf("store: insert group: %w", err)
	}
	return g, nil
}

// Get returns the group with the given id, or ErrNotFound.
func (s *GroupStore) Get(ctx context.Context, groupID string) (*Group, error) {
	var g Group
	err := s.coll.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get group: %w", err)
	}
	return &g, nil
}

// AddMember adds memberID to the group. The actor must be the group's admin;
// anyone else gets ErrNotAdmin and the group is unchanged. Adding an existing
// member is a no-op. Returns the updated group.
func (s *GroupStore) AddMember(ctx context.Context, groupID, actorID, memberID string) (*Group, error) {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsAdmin(actorID) {
		return nil, ErrNotAdmin
	}

	// $addToSet keeps the member list a set even under concurrent adds.
	_, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$addToSet": bson.M{"members": memberID}},
	)
	if err != nil {
		return nil, fmt.Errorf("store: add member: %w", err)
	}

	return s.Get(ctx, groupID)
}

// ListByMember returns every group the principal belongs to.
func (s *GroupStore) ListByMember(ctx context.Context, principalID string) ([]Group, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"members": principalID})
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []Group
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("store: decode groups: %w", err)
	}
	return groups, nil
}
