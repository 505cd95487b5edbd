package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// User is a registered account. PasswordHash is never serialized to JSON.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password" json:"-"`
	Name         string    `bson:"name,omitempty" json:"name,omitempty"`
	JobTitle     string    `bson:"job_title,omitempty" json:"jobTitle,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

// UserStore persists accounts in the users collection.
type UserStore struct {
	coll *mongo.Collection
}

// NewUserStore creates a UserStore on the given database.
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(usersCollection)}
}

// Create inserts a new user. Returns ErrDuplicate if the email or username
// is already taken.
func (s *UserStore) Create(ctx context.Context, u *User) error {
	existing := s.coll.FindOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": u.Email},
		bson.M{"username": u.Username},
	}})
	if err := existing.Err(); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("store: check existing user: %w", err)
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		// The unique index is the real guard against the race above.
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("store: insert user: %w", err)
	}
	return nil
}

// FindByEmail returns the user with the given email, or ErrNotFound.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByID returns the user with the given id, or ErrNotFound.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// ListExcept returns every user except the one with excludeID.
func (s *UserStore) ListExcept(ctx context.Context, excludeID string) ([]User, error) {
	return s.findAll(ctx, bson.M{"_id": bson.M{"$ne": excludeID}})
}

// Search returns users whose name or username matches the query
// case-insensitively, excluding the caller. The query is treated as a
// literal substring, not a user-supplied regex.
func (s *UserStore) Search(ctx context.Context, query, excludeID string) ([]User, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{
		"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"username": pattern},
		},
		"_id": bson.M{"$ne": excludeID},
	}
	return s.findAll(ctx, filter)
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	err := s.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) findAll(ctx context.Context, filter bson.M) ([]User, error) {
	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("store: decode users: %w", err)
	}
	return users, nil
}
