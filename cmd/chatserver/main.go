package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parley/chat-server/internal/auth"
	"github.com/parley/chat-server/internal/config"
	"github.com/parley/chat-server/internal/gateway"
	"github.com/parley/chat-server/internal/httpapi"
	"github.com/parley/chat-server/internal/messaging"
	"github.com/parley/chat-server/internal/presence"
	"github.com/parley/chat-server/internal/protocol"
	"github.com/parley/chat-server/internal/ratelimit"
	"github.com/parley/chat-server/internal/session"
	"github.com/parley/chat-server/internal/store"
	"github.com/parley/chat-server/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// --- MongoDB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		log.Printf("index creation failed: %v", err)
	}
	cancel()

	users := store.NewUserStore(db)
	messages := store.NewMessageStore(db)
	groups := store.NewGroupStore(db)

	// --- Redis ---
	sessionStore, err := session.NewStore(cfg.RedisAddr, cfg.ServerName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	limiter := ratelimit.NewLimiter(sessionStore.Client())

	// --- NATS (optional event feed) ---
	var natsClient *messaging.Client
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "parley-chatserver"
		natsClient, err = messaging.NewClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	// --- Realtime gateway ---
	registry := presence.NewRegistry()
	gw := gateway.New(registry, messages, groups).
		WithSessions(sessionStore).
		WithLimiter(limiter)
	if natsClient != nil {
		gw.WithEvents(natsClient)
	}

	serverConfig := ws.ServerConfig{
		ListenAddr:     cfg.WSListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	log.Printf("Parley chat server starting")
	log.Printf("  ws_listen_addr:  %s", serverConfig.ListenAddr)
	log.Printf("  api_listen_addr: %s", cfg.APIListenAddr)
	log.Printf("  worker_pool:     %d", serverConfig.WorkerPoolSize)
	log.Printf("  max_connections: %d", serverConfig.MaxConnections)
	log.Printf("  mongo_db:        %s", cfg.MongoDB)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)
	log.Printf("  nats_url:        %s", cfg.NATSURL)
	log.Printf("  server_name:     %s", cfg.ServerName)

	dispatcher := ws.NewMessageDispatcher(nil)

	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		gw.HandleTyping(conn, typingMsg)
	})

	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		sendMsg, ok := msg.(protocol.SendMessageMsg)
		if !ok {
			return
		}
		gw.HandleSendMessage(conn, sendMsg)
	})

	authenticate := func(r *http.Request) (string, string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		allowed, err := limiter.Allow(ctx, host, ratelimit.RuleConnect)
		cancel()
		if err == nil && !allowed {
			return "", "", errors.New("connection rate limit exceeded")
		}

		token := ws.BearerToken(r)
		if token == "" {
			return "", "", errors.New("missing token")
		}
		p, err := tokens.Verify(token)
		if err != nil {
			return "", "", err
		}
		return p.ID, p.Name, nil
	}

	server := ws.NewServer(serverConfig, authenticate, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	server.SetOnConnect(func(conn *ws.Connection) {
		gw.HandleConnect(conn, conn.ID)
	})
	server.SetOnDisconnect(func(conn *ws.Connection) {
		gw.HandleDisconnect(conn)
	})

	// --- REST API ---
	api := httpapi.New(users, messages, groups, tokens, registry, sessionStore)
	apiServer := &http.Server{
		Addr:    cfg.APIListenAddr,
		Handler: api.Handler(),
	}
	go func() {
		log.Printf("api: listening on %s", cfg.APIListenAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("api shutdown error: %v", err)
		}
		cancel()

		if err := server.Shutdown(); err != nil {
			log.Printf("ws shutdown error: %v", err)
		}
		if natsClient != nil {
			natsClient.Close()
		}
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
