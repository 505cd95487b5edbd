// Package httpapi serves the REST surface of the chat server: account
// registration and login, user discovery, message history, and group
// management. The realtime path lives in the gateway; the API covers
// everything a client does outside an open WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/parley/chat-server/internal/auth"
	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/store"
)

// requestTimeout bounds each backend call made while serving a request.
const requestTimeout = 5 * time.Second

// Users is the account store surface the API needs.
type Users interface {
	Create(ctx context.Context, u *store.User) error
	FindByEmail(ctx context.Context, email string) (*store.User, error)
	FindByID(ctx context.Context, id string) (*store.User, error)
	ListExcept(ctx context.Context, excludeID string) ([]store.User, error)
	Search(ctx context.Context, query, excludeID string) ([]store.User, error)
}

// Messages is the message store surface the API needs.
type Messages interface {
	Insert(ctx context.Context, m *store.Message) error
	FindBetween(ctx context.Context, a, b string) ([]store.Message, error)
	FindByGroup(ctx context.Context, groupID string) ([]store.Message, error)
	MarkRead(ctx context.Context, sender, reader string) error
}

// Groups is the group store surface the API needs.
type Groups interface {
	Create(ctx context.Context, name, adminID string) (*store.Group, error)
	Get(ctx context.Context, groupID string) (*store.Group, error)
	AddMember(ctx context.Context, groupID, actorID, memberID string) (*store.Group, error)
	ListByMember(ctx context.Context, principalID string) ([]store.Group, error)
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(p auth.Principal) (string, error)
	Verify(token string) (*auth.Principal, error)
}

// PresenceView is a read-only view of who is online right now.
type PresenceView interface {
	Snapshot() []string
}

// LastSeen resolves when an offline user was last connected. The second
// return reports whether a record exists.
type LastSeen interface {
	LastSeen(ctx context.Context, userID string) (time.Time, bool, error)
}

// Server holds the REST API's collaborators and exposes them as an
// http.Handler.
type Server struct {
	users    Users
	messages Messages
	groups   Groups
	tokens   Tokens
	presence PresenceView
	lastSeen LastSeen // optional
}

// New creates the API server. lastSeen may be nil, in which case the user
// listing omits last-seen timestamps.
func New(users Users, messages Messages, groups Groups, tokens Tokens, pv PresenceView, lastSeen LastSeen) *Server {
	return &Server{
		users:    users,
		messages: messages,
		groups:   groups,
		tokens:   tokens,
		presence: pv,
		lastSeen: lastSeen,
	}
}

// Handler builds the route table. Auth endpoints are public; everything else
// requires a bearer token.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("GET /api/users", s.requireAuth(s.handleListUsers))
	mux.Handle("GET /api/users/search", s.requireAuth(s.handleSearchUsers))

	mux.Handle("POST /api/messages/{receiverID}", s.requireAuth(s.handleSendMessage))
	mux.Handle("GET /api/messages/{userID}", s.requireAuth(s.handleHistory))

	mux.Handle("POST /api/groups", s.requireAuth(s.handleCreateGroup))
	mux.Handle("GET /api/groups", s.requireAuth(s.handleListGroups))
	mux.Handle("POST /api/groups/{groupID}/members", s.requireAuth(s.handleAddMember))
	mux.Handle("GET /api/groups/{groupID}/messages", s.requireAuth(s.handleGroupHistory))

	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// writeJSON serializes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: response encode failed: %v", err)
	}
}

// writeError sends the JSON error envelope used by every endpoint.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// reqCtx derives a bounded context for backend calls.
func reqCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
