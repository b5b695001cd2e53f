package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/commerce-marketing/internal/api"
	"github.com/ignite/commerce-marketing/internal/automation"
	"github.com/ignite/commerce-marketing/internal/auth"
	"github.com/ignite/commerce-marketing/internal/campaign"
	"github.com/ignite/commerce-marketing/internal/config"
	"github.com/ignite/commerce-marketing/internal/content"
	"github.com/ignite/commerce-marketing/internal/loyalty"
	"github.com/ignite/commerce-marketing/internal/messaging"
	"github.com/ignite/commerce-marketing/internal/segmentation"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("[Server] Commerce marketing engine starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Println("[Server] Database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("[Server] Redis unavailable, segment count cache disabled: %v", err)
			redisClient = nil
		}
	}

	var messenger messaging.Messenger = messaging.LogMessenger{}
	if cfg.Messaging.AMQPURL != "" {
		amqpMessenger, err := messaging.DialAMQP(cfg.Messaging.AMQPURL)
		if err != nil {
			log.Fatalf("Failed to connect to message broker: %v", err)
		}
		defer amqpMessenger.Close()
		messenger = amqpMessenger
		log.Println("[Server] Outbound queue connected")
	} else {
		log.Println("[Server] AMQP_URL not set, using log-only messenger")
	}

	renderer := content.NewRenderer()
	segments := segmentation.NewStore(db, redisClient)
	rules := automation.NewStore(db)
	ledger := loyalty.NewLedger(db)

	executor := automation.NewExecutor()
	automation.RegisterDefaultHandlers(executor, db, segments, ledger, messenger, renderer)
	dispatcher := automation.NewDispatcher(rules, executor)

	campaigns := campaign.NewStore(db)
	scheduler := campaign.NewScheduler(campaigns, segments, messenger, renderer)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.DevMode)

	server := api.NewServer(cfg.Server, dispatcher, rules, segments, campaigns, scheduler, verifier)

	addr := fmt.Sprintf("%s:%d", host, port)
	go func() {
		log.Printf("[Server] Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("[Server] HTTP server stopped: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("[Server] Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
}
