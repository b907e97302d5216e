package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/facturaIA/einvoice-readiness-service/api"
	"github.com/facturaIA/einvoice-readiness-service/internal/db"
	"github.com/facturaIA/einvoice-readiness-service/internal/models"
	"github.com/facturaIA/einvoice-readiness-service/internal/schema"
	"github.com/facturaIA/einvoice-readiness-service/internal/services"
	"github.com/facturaIA/einvoice-readiness-service/internal/storage"
)

func main() {
	// Load configuration
	config, err := loadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load canonical schema
	registry, err := loadSchema(config.SchemaPath)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}
	log.Printf("Schema %s loaded (%d fields)", registry.Version(), registry.Len())

	// Initialize database connection pool
	var repo services.Repository
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running in analysis-only mode (no persistence)")
	} else {
		defer db.Close()
		repo = db.NewRepository()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	var raw services.RawStore
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Upload payloads will be kept in the database")
	} else {
		raw = storage.NewRawStore()
		log.Println("MinIO storage initialized")
	}

	service := services.NewReadinessService(services.NewAnalyzer(registry), repo, raw, config.Retention())
	if repo != nil {
		go purgeLoop(service, config.Reports.PurgeInterval)
	}

	// Create API handler
	handler := api.NewHandler(config, service)
	router := handler.SetupRoutes()

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting E-Invoice Readiness Service v%s on %s", api.Version, addr)
	log.Printf("Report retention: %d days", config.Reports.RetentionDays)
	log.Printf("Database: %v", db.Available())
	log.Printf("Storage: %v", storage.Available())
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/upload          - Upload CSV/JSON invoices", addr)
	log.Printf("  POST http://%s/api/analyze         - Analyze an upload and store the report", addr)
	log.Printf("  POST http://%s/api/analyze/inline  - Analyze a payload without storing it", addr)
	log.Printf("  GET  http://%s/api/report/{id}     - Get a report", addr)
	log.Printf("  GET  http://%s/api/reports         - List recent reports", addr)
	log.Printf("  GET  http://%s/api/schema          - Canonical field table", addr)
	log.Printf("  GET  http://%s/health              - Health check", addr)
	log.Printf("  GET  http://%s/metrics             - Prometheus metrics", addr)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// purgeLoop deletes expired reports every interval
func purgeLoop(service *services.ReadinessService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := service.PurgeExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("Warning: report purge failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("Purged %d expired reports", n)
		}
	}
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

func loadSchema(path string) (*schema.Registry, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}

func loadConfig(path string) (*models.Config, error) {
	var config models.Config

	// Read config file; a missing file leaves everything to env and defaults
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if path := os.Getenv("GETS_SCHEMA_PATH"); path != "" {
		config.SchemaPath = path
	}
	if days := os.Getenv("REPORT_RETENTION_DAYS"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil {
			return nil, fmt.Errorf("invalid REPORT_RETENTION_DAYS %q: %w", days, err)
		}
		config.Reports.RetentionDays = n
	}

	config.ApplyDefaults()
	return &config, nil
}
