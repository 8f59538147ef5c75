/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Fluxo billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (file, environment, defaults)
  3. Initialize SQLite store
  4. Create API handler with dependencies
  5. Start the invoice closing scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file path (default: search ./config.yaml, ./config/)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the closing scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/fluxo.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  Every config key is overridable with the FLUXO_ prefix, e.g.
  FLUXO_SERVER_PORT=3000, FLUXO_DATABASE_PATH=/var/lib/fluxo.db.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxo/finance-engine/api"
	"github.com/fluxo/finance-engine/config"
	"github.com/fluxo/finance-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	// Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, nil)

	// Start the invoice closing scheduler
	scheduler := api.NewClosingScheduler(handler.Lifecycle)
	scheduler.Enabled = cfg.Scheduler.Enabled
	if cfg.Scheduler.CheckInterval > 0 {
		scheduler.CheckInterval = cfg.Scheduler.CheckInterval
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
