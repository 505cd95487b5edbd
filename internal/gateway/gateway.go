// Package gateway implements the realtime message path: it registers
// authenticated connections with the presence registry, broadcasts the
// online roster, forwards typing indicators, and runs the
// persist-then-deliver pipeline for chat messages.
package gateway

import (
	"context"
	"log"
	"time"

	"github.com/parley/chat-server/internal/messaging"
	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/presence"
	"github.com/parley/chat-server/internal/protocol"
	"github.com/parley/chat-server/internal/ratelimit"
	"github.com/parley/chat-server/internal/store"
)

// storeTimeout bounds each persistence call so a slow backend cannot wedge a
// read worker.
const storeTimeout = 5 * time.Second

// Peer is an authenticated live connection as the gateway sees it. The
// WebSocket layer's Connection satisfies it.
type Peer interface {
	presence.Conn
	Principal() string
}

// ConversationStore persists chat messages.
type ConversationStore interface {
	Insert(ctx context.Context, m *store.Message) error
}

// GroupDirectory resolves group membership for fan-out.
type GroupDirectory interface {
	Get(ctx context.Context, groupID string) (*store.Group, error)
}

// SessionStore records advisory session metadata (who is connected where,
// last-seen timestamps). The presence registry remains the sole authority on
// liveness; session failures are logged and ignored.
type SessionStore interface {
	Create(ctx context.Context, userID, connID string) error
	Delete(ctx context.Context, userID string) error
}

// EventPublisher emits messages.created events after persistence. The feed
// is observational: delivery never depends on it.
type EventPublisher interface {
	PublishMessageCreated(ev messaging.MessageEvent) error
}

// Limiter throttles per-principal message sends.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Gateway wires the presence registry, message store, and group directory
// into the realtime event handlers. Sessions, events, and limiter are
// optional collaborators; a nil value disables that concern.
type Gateway struct {
	presence *presence.Registry
	messages ConversationStore
	groups   GroupDirectory
	sessions SessionStore
	events   EventPublisher
	limiter  Limiter
}

// New creates a Gateway over the required collaborators.
func New(reg *presence.Registry, messages ConversationStore, groups GroupDirectory) *Gateway {
	return &Gateway{
		presence: reg,
		messages: messages,
		groups:   groups,
	}
}

// WithSessions attaches an advisory session store.
func (g *Gateway) WithSessions(s SessionStore) *Gateway {
	g.sessions = s
	return g
}

// WithEvents attaches the messages.created publisher.
func (g *Gateway) WithEvents(p EventPublisher) *Gateway {
	g.events = p
	return g
}

// WithLimiter attaches a per-principal send rate limiter.
func (g *Gateway) WithLimiter(l Limiter) *Gateway {
	g.limiter = l
	return g
}

// HandleConnect registers an authenticated connection with the presence
// registry. A previous connection for the same principal is superseded and
// closed, so each principal has at most one live delivery target. Every
// connection then receives a fresh roster.
func (g *Gateway) HandleConnect(p Peer, connID string) {
	prev := g.presence.Register(p.Principal(), p)
	if prev != nil && prev != presence.Conn(p) {
		log.Printf("gateway: superseding connection for user=%s", p.Principal())
		_ = prev.Close()
	}

	if g.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := g.sessions.Create(ctx, p.Principal(), connID); err != nil {
			log.Printf("gateway: session create failed user=%s: %v", p.Principal(), err)
		}
		cancel()
	}

	g.broadcastRoster()
}

// HandleDisconnect removes the connection from the presence registry and
// broadcasts the updated roster. The removal is conditional on the
// departing connection still being the registered one, so a stale
// disconnect from a superseded socket never evicts its replacement.
func (g *Gateway) HandleDisconnect(p Peer) {
	if !g.presence.Release(p.Principal(), p) {
		// A newer connection owns the entry; nothing to tear down.
		return
	}

	if g.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := g.sessions.Delete(ctx, p.Principal()); err != nil {
			log.Printf("gateway: session delete failed user=%s: %v", p.Principal(), err)
		}
		cancel()
	}

	g.broadcastRoster()
}

// broadcastRoster sends the current online roster to every live connection.
// Best effort: write failures are logged, never retried.
func (g *Gateway) broadcastRoster() {
	users := g.presence.Snapshot()

	data, err := protocol.NewServerMessage(protocol.TypeOnlineUsers, protocol.OnlineUsersMsg{
		Users: users,
	})
	if err != nil {
		log.Printf("gateway: failed to build roster message: %v", err)
		return
	}

	for _, c := range g.presence.Connections() {
		if err := c.WriteMessage(data); err != nil {
			log.Printf("gateway: roster write failed: %v", err)
		}
	}

	metrics.RosterBroadcasts.Inc()
	log.Printf("gateway: roster broadcast online=%d", len(users))
}

// HandleTyping forwards a typing indicator to the receiver if they are
// online. The sender identity is taken from the connection, never from the
// client payload. Offline receivers are a silent drop: indicators are
// ephemeral and never persisted or queued.
func (g *Gateway) HandleTyping(p Peer, msg protocol.TypingMsg) {
	target, ok := g.presence.Lookup(msg.Receiver)
	if !ok {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeTyping, protocol.ServerTypingMsg{
		Sender: p.Principal(),
	})
	if err != nil {
		log.Printf("gateway: failed to build typing message: %v", err)
		return
	}

	if err := target.WriteMessage(data); err != nil {
		log.Printf("gateway: typing write failed receiver=%s: %v", msg.Receiver, err)
	}
}

// HandleSendMessage runs the message pipeline: rate limit, validate, persist,
// then fan out. Persistence is strict — if the store write fails, the sender
// gets an error reply and no recipient sees the message. Fan-out is best
// effort to whoever is online.
func (g *Gateway) HandleSendMessage(p Peer, msg protocol.SendMessageMsg) {
	sender := p.Principal()

	if g.limiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		allowed, err := g.limiter.Allow(ctx, sender, ratelimit.RuleMessage)
		cancel()
		if err == nil && !allowed {
			g.sendError(p, "rate_limited", "too many messages, slow down")
			return
		}
	}

	m := &store.Message{
		Sender:  sender,
		Content: msg.Content,
	}
	if msg.IsGroup {
		m.Group = msg.GroupID
	} else {
		m.Receiver = msg.ReceiverID
	}

	if err := m.Validate(); err != nil {
		log.Printf("gateway: invalid message from user=%s: %v", sender, err)
		g.sendError(p, "invalid_message", "message failed validation")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	err := g.messages.Insert(ctx, m)
	cancel()
	if err != nil {
		// Persistence is the gate: no store write, no delivery to anyone.
		log.Printf("gateway: persist failed user=%s: %v", sender, err)
		g.sendError(p, "store_error", "message could not be stored")
		return
	}

	kind := "direct"
	if m.Group != "" {
		kind = "group"
	}
	metrics.MessagesPersisted.WithLabelValues(kind).Inc()

	if g.events != nil {
		ev := messaging.MessageEvent{
			ID:       m.ID,
			Sender:   m.Sender,
			Receiver: m.Receiver,
			Group:    m.Group,
			Content:  m.Content,
			Ts:       m.Timestamp.UnixMilli(),
		}
		if err := g.events.PublishMessageCreated(ev); err != nil {
			log.Printf("gateway: event publish failed id=%s: %v", m.ID, err)
		}
	}

	g.fanout(m)
}

// sendError sends a structured error reply to the peer. Best effort.
func (g *Gateway) sendError(p Peer, code, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("gateway: failed to build error message: %v", err)
		return
	}
	if err := p.WriteMessage(data); err != nil {
		log.Printf("gateway: error write failed user=%s: %v", p.Principal(), err)
	}
}
