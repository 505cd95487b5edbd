// Package messaging provides a NATS client wrapper for the chat server's
// event feed. After a message is durably persisted the gateway publishes a
// messages.created event; out-of-process consumers (the moderation service,
// analytics) subscribe to the feed. The feed is observational only: live
// delivery to recipients never flows through NATS.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the chat services.
const (
	SubjectMessageCreated = "messages.created"
	SubjectMessageFlagged = "messages.flagged"
)

// MessageEvent is the payload published to messages.created after a message
// has been persisted.
type MessageEvent struct {
	ID       string `json:"id"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver,omitempty"`
	Group    string `json:"group,omitempty"`
	Content  string `json:"content"`
	Ts       int64  `json:"ts"`
}

// FlaggedEvent is published to messages.flagged by the moderation service
// when a message trips the content filter.
type FlaggedEvent struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Reason    string `json:"reason"`
	Term      string `json:"term,omitempty"`
	Ts        int64  `json:"ts"`
}

// Client wraps the NATS connection with helper methods for the event feed.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "parley",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// PublishMessageCreated publishes a persisted-message event to the feed.
func (c *Client) PublishMessageCreated(ev MessageEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats marshal message event: %w", err)
	}
	return c.Publish(SubjectMessageCreated, data)
}

// SubscribeMessageCreated registers a handler for persisted-message events.
func (c *Client) SubscribeMessageCreated(handler func(ev MessageEvent)) error {
	return c.Subscribe(SubjectMessageCreated, func(data []byte) {
		var ev MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[nats] bad message event: %v", err)
			return
		}
		handler(ev)
	})
}

// PublishMessageFlagged publishes a moderation flag for a message.
func (c *Client) PublishMessageFlagged(ev FlaggedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats marshal flagged event: %w", err)
	}
	return c.Publish(SubjectMessageFlagged, data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
