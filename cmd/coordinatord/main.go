// Coordinator server - tracks agents, routes messages, manages resources,
// and drives conflict resolution over an HTTP/WebSocket API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fugue-ai/rhema-coordinator/pkg/config"
	"github.com/fugue-ai/rhema-coordinator/pkg/consensus"
	"github.com/fugue-ai/rhema-coordinator/pkg/facade"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
	"github.com/fugue-ai/rhema-coordinator/pkg/persistence"
	"github.com/fugue-ai/rhema-coordinator/pkg/transport"
	"github.com/fugue-ai/rhema-coordinator/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	log.Printf("Starting %s", version.Full())
	log.Printf("Config Directory: %s", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	gateway, err := openGateway(ctx, cfg.Persistence)
	if err != nil {
		log.Fatalf("Failed to open persistence backend: %v", err)
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			log.Printf("Error closing persistence gateway: %v", err)
		}
	}()
	log.Printf("✓ Persistence backend ready (%s)", cfg.Persistence.Backend)

	var store consensus.Store = gateway
	coordinator := facade.New(cfg, store)
	coordinator.Start()
	defer coordinator.Stop()
	log.Println("✓ Coordination components started")

	server := transport.NewServer(cfg.Transport, coordinator)

	// Serve until interrupted, then drain connections.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Transport.ListenAddr)
	}()
	log.Printf("✓ Listening on %s", cfg.Transport.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}

// openGateway builds the configured PersistenceGateway.
func openGateway(ctx context.Context, cfg *config.PersistenceConfig) (persistence.Gateway, error) {
	switch cfg.Backend {
	case models.BackendFile:
		return persistence.NewFile(cfg.Dir)
	case models.BackendKV:
		return persistence.NewKV(ctx, persistence.KVConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case models.BackendDB:
		return persistence.NewDB(ctx, persistence.DBConfig{
			Host:            cfg.DBHost,
			Port:            cfg.DBPort,
			User:            cfg.DBUser,
			Password:        cfg.DBPassword,
			Database:        cfg.DBName,
			SSLMode:         cfg.DBSSLMode,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		})
	default:
		return persistence.NewMemory(), nil
	}
}
