package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/conversation"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/redis"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/realtime"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] EC Storefront")
	log.Println("[API] ========================================")
	log.Printf("[API] Store: %s", cfg.StoreBackend)

	docs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore.Close()

	// Kafka is optional; without it events are simply not published.
	// The nil interface matters: a typed nil producer would be called.
	var publisher command.EventPublisher
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		log.Printf("[API] Kafka: %v (topic %s)", cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		log.Println("[API] Kafka disabled, events are not published")
	}

	var resetTokens user.ResetTokenStore
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[API] Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		resetTokens = redis.NewTokenStore(client)
		log.Println("[API] Connected to Redis")
	} else {
		log.Println("[API] Redis disabled, password reset is unavailable")
	}

	// Domain services
	productSvc := product.NewService(docs)
	cartSvc := cart.NewService(docs, productSvc)
	orderSvc := order.NewService(docs)
	userSvc := user.NewService(docs, resetTokens, publisher, cfg.ResetTokenTTL)

	hub := realtime.NewHub()
	defer hub.Close()
	conversationSvc := conversation.NewService(docs, hub)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := auth.NewSessionManager(jwtService, docs)

	if cfg.AdminEmail != "" {
		admin, err := userSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			log.Fatalf("[API] Failed to ensure admin account: %v", err)
		}
		log.Printf("[API] Admin account: %s", admin.Email)
	}

	cmdHandler := command.NewHandler(productSvc, cartSvc, orderSvc, userSvc, publisher)
	queryHandler := query.NewHandler(productSvc, orderSvc, userSvc)

	router := api.NewRouter(api.RouterConfig{
		Handlers:             api.NewHandlers(cmdHandler, queryHandler, productSvc, cartSvc, orderSvc, userSvc),
		AuthHandlers:         api.NewAuthHandlers(userSvc, sessions, cfg.CookieSecure),
		ConversationHandlers: api.NewConversationHandlers(conversationSvc, userSvc, hub),
		JWTService:           jwtService,
		WebDir:               cfg.WebDir,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore builds the configured DocumentStore. The closer releases its
// connection, if it has one.
func openStore(ctx context.Context, cfg *config.Config) (store.DocumentStore, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Println("[API] Connected to PostgreSQL")
		return pg, db, nil

	case config.BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[API] Using DynamoDB table %s in %s", cfg.DynamoTable, cfg.AWSRegion)
		return store.NewDynamoStore(client, cfg.DynamoTable), nopCloser{}, nil

	case config.BackendMemory:
		return store.NewMemoryStore(), nopCloser{}, nil
	}
	return nil, nil, config.ErrUnknownStore
}
