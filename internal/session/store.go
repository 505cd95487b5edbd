// Package session records WebSocket session metadata in Redis: which server
// a user is connected through, when they connected, and when they were last
// seen. The in-memory presence registry remains the sole authority for
// liveness; this store is advisory and feeds the REST user listing and
// operational diagnostics. Entries expire on their own if a server dies
// without cleaning up.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for session hashes.
	SessionPrefix = "session:"

	// LastSeenPrefix is the Redis key prefix for last-seen timestamps.
	LastSeenPrefix = "lastseen:"

	// SessionTTL bounds how long a stale session hash can outlive its server.
	SessionTTL = 1 * time.Hour

	// LastSeenTTL is how long a last-seen timestamp is retained.
	LastSeenTTL = 30 * 24 * time.Hour
)

// Session is the per-user connection metadata stored in Redis.
type Session struct {
	UserID      string `redis:"user_id"`
	ConnID      string `redis:"conn_id"`
	Server      string `redis:"server"`
	ConnectedAt int64  `redis:"connected_at"`
	LastActive  int64  `redis:"last_active"`
}

// Store manages session metadata in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore connects to Redis and returns a session store tagged with this
// server instance's name.
func NewStore(redisAddr, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create records a new session for userID with the given connection id.
func (s *Store) Create(ctx context.Context, userID, connID string) error {
	key := SessionPrefix + userID
	now := time.Now().Unix()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":      userID,
		"conn_id":      connID,
		"server":       s.serverName,
		"connected_at": now,
		"last_active":  now,
	})
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves the session for userID. Returns nil if none exists.
func (s *Store) Get(ctx context.Context, userID string) (*Session, error) {
	var sess Session
	if err := s.client.HGetAll(ctx, SessionPrefix+userID).Scan(&sess); err != nil {
		return nil, err
	}
	if sess.UserID == "" {
		return nil, nil
	}
	return &sess, nil
}

// Touch refreshes the session's activity timestamp and TTL.
func (s *Store) Touch(ctx context.Context, userID string) error {
	key := SessionPrefix + userID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes the session for userID and records the time as the user's
// last-seen timestamp.
func (s *Store) Delete(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, SessionPrefix+userID)
	pipe.Set(ctx, LastSeenPrefix+userID, time.Now().Unix(), LastSeenTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// LastSeen returns the user's recorded last-seen time. The second return is
// false if no timestamp is recorded.
func (s *Store) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	ts, err := s.client.Get(ctx, LastSeenPrefix+userID).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0), true, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages
// sharing the connection (e.g. the rate limiter).
func (s *Store) Client() *redis.Client {
	return s.client
}
