package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Message is a persisted chat message. Exactly one of Receiver and Group is
// set: Receiver for a direct message, Group for a group message. Messages
// are immutable after insertion except for the read flag.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	Sender    string    `bson:"sender" json:"sender"`
	Receiver  string    `bson:"receiver,omitempty" json:"receiver,omitempty"`
	Group     string    `bson:"group,omitempty" json:"group,omitempty"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Read      bool      `bson:"read" json:"read"`
}

// Validate checks the message invariants: non-empty content and exactly one
// of receiver and group set.
func (m *Message) Validate() error {
	if m.Sender == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if (m.Receiver == "") == (m.Group == "") {
		return fmt.Errorf("%w: exactly one of receiver and group must be set", ErrInvalidMessage)
	}
	return nil
}

// MessageStore persists messages in the messages collection.
type MessageStore struct {
	coll *mongo.Collection
}

// NewMessageStore creates a MessageStore on the given database.
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{coll: db.Collection(messagesCollection)}
}

// Insert validates the message, assigns an id and creation timestamp, and
// writes it to the collection. The message is mutated in place so the caller
// holds the persisted document on return.
func (s *MessageStore) Insert(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// FindBetween returns all direct messages exchanged between a and b, in
// either direction, ordered by timestamp ascending.
func (s *MessageStore) FindBetween(ctx context.Context, a, b string) ([]Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": a, "receiver": b},
		bson.M{"sender": b, "receiver": a},
	}}
	return s.find(ctx, filter)
}

// FindByGroup returns all messages posted to the group, ordered by timestamp
// ascending.
func (s *MessageStore) FindByGroup(ctx context.Context, groupID string) ([]Message, error) {
	return s.find(ctx, bson.M{"group": groupID})
}

// MarkRead flags every direct message from sender to reader as read. Used by
// the REST layer when a conversation is opened; the realtime core never
// touches the flag.
func (s *MessageStore) MarkRead(ctx context.Context, sender, reader string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"sender": sender, "receiver": reader, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("store: mark read: %w", err)
	}
	return nil
}

func (s *MessageStore) find(ctx context.Context, filter bson.M) ([]Message, error) {
	cursor, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("store: find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("store: decode messages: %w", err)
	}
	return messages, nil
}
