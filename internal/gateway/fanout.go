package gateway

import (
	"context"
	"log"
	"time"

	"github.com/parley/chat-server/internal/metrics"
	"github.com/parley/chat-server/internal/protocol"
	"github.com/parley/chat-server/internal/store"
)

// fanout delivers a persisted message to its live recipients. Direct
// messages target exactly the receiver; group messages target every group
// member except the sender. Offline recipients are skipped without error —
// they will read the message from history. A write failure to one recipient
// never blocks delivery to the rest.
func (g *Gateway) fanout(m *store.Message) {
	start := time.Now()

	kind := "direct"
	recipients := []string{m.Receiver}
	if m.Group != "" {
		kind = "group"
		var err error
		recipients, err = g.groupRecipients(m)
		if err != nil {
			log.Printf("gateway: group lookup failed group=%s: %v", m.Group, err)
			return
		}
	}

	data, err := protocol.NewServerMessage(protocol.TypeReceiveMessage, m)
	if err != nil {
		log.Printf("gateway: failed to build delivery message id=%s: %v", m.ID, err)
		return
	}

	for _, id := range recipients {
		conn, ok := g.presence.Lookup(id)
		if !ok {
			metrics.MessagesSkipped.WithLabelValues("offline").Inc()
			continue
		}
		if err := conn.WriteMessage(data); err != nil {
			log.Printf("gateway: delivery write failed id=%s recipient=%s: %v", m.ID, id, err)
			metrics.MessagesSkipped.WithLabelValues("write_failed").Inc()
			continue
		}
		metrics.MessagesDelivered.WithLabelValues(kind).Inc()
	}

	metrics.FanoutLatency.Observe(time.Since(start).Seconds())
}

// groupRecipients resolves a group message's recipient set: the group's
// members minus the sender. The sender already has the message locally; an
// echo would duplicate it client-side.
func (g *Gateway) groupRecipients(m *store.Message) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	grp, err := g.groups.Get(ctx, m.Group)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(grp.Members))
	for _, member := range grp.Members {
		if member != m.Sender {
			recipients = append(recipients, member)
		}
	}
	return recipients, nil
}
