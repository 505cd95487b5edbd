package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parley/chat-server/internal/messaging"
	"github.com/parley/chat-server/internal/moderation"
)

// The moderation service consumes the messages.created feed and reports
// flagged content on messages.flagged. It runs out of process: message
// delivery is already done by the time a message reaches it.
func main() {
	log.Println("Starting Parley moderation service...")

	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "parley-moderator"

	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	var blocklist []string
	if v := os.Getenv("BLOCKLIST"); v != "" {
		blocklist = strings.Split(v, ",")
	}
	filter := moderation.NewFilter(blocklist)

	err = natsClient.SubscribeMessageCreated(func(ev messaging.MessageEvent) {
		result := filter.Check(ev.Content)
		if !result.Flagged {
			log.Printf("[moderator] CLEAN id=%s sender=%s", ev.ID, ev.Sender)
			return
		}

		log.Printf("[moderator] FLAGGED id=%s sender=%s reason=%s term=%q",
			ev.ID, ev.Sender, result.Reason, result.Term)

		flag := messaging.FlaggedEvent{
			MessageID: ev.ID,
			Sender:    ev.Sender,
			Reason:    result.Reason,
			Term:      result.Term,
			Ts:        time.Now().UnixMilli(),
		}
		if err := natsClient.PublishMessageFlagged(flag); err != nil {
			log.Printf("[moderator] failed to publish flag: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to message feed: %v", err)
	}

	log.Printf("Parley moderation service running")
	log.Printf("  nats_url:  %s", natsConfig.URL)
	log.Printf("  blocklist: %d terms", len(blocklist))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
}
