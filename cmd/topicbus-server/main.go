// Package main provides the topicbus server executable with HTTP API and
// background queue reaper.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/topicbus"
	adapter "github.com/coregx/topicbus/adapters/relica"
	"github.com/coregx/topicbus/cmd/topicbus-server/internal/api"
	"github.com/coregx/topicbus/cmd/topicbus-server/internal/config"
	"github.com/coregx/topicbus/model"
	"github.com/coregx/topicbus/retry"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SimpleLogger implements topicbus.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

func main() {
	log.Println("Starting topicbus server v0.1.0...")

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Cluster ID: %d", cfg.Bus.ClusterID)
	log.Printf("   Lease batch size: %d", cfg.Bus.BatchSize)
	log.Printf("   Sweep interval: %s", cfg.Bus.SweepInterval)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connection established")

	// Create logger
	logger := &SimpleLogger{}

	// Create storage layer
	var stores *adapter.Stores
	if cfg.Database.Prefix != "" {
		stores = adapter.NewStoresWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		stores = adapter.NewStores(db, cfg.Database.Driver)
	}
	log.Println("Storage layer initialized (Relica adapters)")

	// Create notification service
	var notificationService topicbus.NotificationService
	if cfg.Bus.EnableNotifications {
		notificationService = topicbus.NewLoggingNotificationService(logger)
	} else {
		notificationService = &topicbus.NoOpNotificationService{}
	}

	// Create backend service
	backend, err := topicbus.NewBackend(
		topicbus.WithBackendStores(stores.Queue, stores.Message, stores.Topic),
		topicbus.WithBackendLogger(logger),
		topicbus.WithBackendNotifications(notificationService),
		topicbus.WithBackendClusterID(cfg.Bus.ClusterID),
	)
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}
	log.Println("Backend service created")

	// Seed client permissions
	if cfg.Bus.PermissionsFile != "" {
		n, err := loadPermissions(backend.Matcher(), cfg.Bus.PermissionsFile)
		if err != nil {
			log.Fatalf("Failed to load permissions: %v", err)
		}
		log.Printf("Permissions loaded for %d clients", n)
	} else {
		log.Println("No permissions file configured; all requests will be denied until clients are registered")
	}

	// Create delivery coordinator
	policy := retry.Policy{
		RedeliveryTimeout: cfg.Bus.RedeliveryTimeout,
		SweepInterval:     cfg.Bus.SweepInterval,
		MaxDeliveryCount:  cfg.Bus.MaxDeliveryCount,
	}
	coordinator, err := topicbus.NewDeliveryCoordinator(
		topicbus.WithDeliveryQueueStore(stores.Queue),
		topicbus.WithDeliveryMessageRepository(stores.Message),
		topicbus.WithDeliveryLogger(logger),
		topicbus.WithDeliveryPolicy(policy),
		topicbus.WithDeliveryBatchSize(cfg.Bus.BatchSize),
		topicbus.WithDeliveryClusterID(cfg.Bus.ClusterID),
		topicbus.WithDeliveryNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create delivery coordinator: %v", err)
	}
	log.Println("Delivery coordinator created")

	// Start reaper in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("Starting queue reaper (interval: %s)...", policy.SweepInterval)
		coordinator.Run(ctx)
	}()

	// Create API handler
	handler := api.NewHandler(backend, coordinator, logger)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/publish", handler.HandlePublish)
	mux.HandleFunc("/api/v1/subscribe", handler.HandleSubscribe)
	mux.HandleFunc("/api/v1/unsubscribe", handler.HandleUnsubscribe)
	mux.HandleFunc("/api/v1/messages", handler.HandleMessages)
	mux.HandleFunc("/api/v1/messages/ack", handler.HandleAck)
	mux.HandleFunc("/api/v1/messages/discard", handler.HandleDiscard)
	mux.HandleFunc("/api/v1/depth", handler.HandleDepth)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		log.Println("API Endpoints:")
		log.Println("   POST   /api/v1/publish")
		log.Println("   POST   /api/v1/subscribe")
		log.Println("   POST   /api/v1/unsubscribe")
		log.Println("   POST   /api/v1/messages")
		log.Println("   POST   /api/v1/messages/ack")
		log.Println("   POST   /api/v1/messages/discard")
		log.Println("   GET    /api/v1/depth")
		log.Println("   GET    /api/v1/health")
		log.Println("topicbus server is ready")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop reaper
	log.Println("Server stopped gracefully")
}

// loadPermissions seeds the matcher from a JSON file mapping client IDs to
// permission lists:
//
//	{"alice": [{"pattern": "orders.**", "accessType": "publisher-subscriber", "isActive": true}]}
func loadPermissions(matcher *topicbus.PatternMatcher, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var clients map[string][]model.Permission
	if err := json.Unmarshal(data, &clients); err != nil {
		return 0, err
	}

	for clientID, perms := range clients {
		if err := matcher.AddClient(clientID, perms); err != nil {
			return 0, fmt.Errorf("client %q: %w", clientID, err)
		}
	}
	return len(clients), nil
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger topicbus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
