package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/api"
	"github.com/yourusername/minecraft-server-manager/internal/backup"
	"github.com/yourusername/minecraft-server-manager/internal/config"
	"github.com/yourusername/minecraft-server-manager/internal/console"
	"github.com/yourusername/minecraft-server-manager/internal/database"
	"github.com/yourusername/minecraft-server-manager/internal/events"
	"github.com/yourusername/minecraft-server-manager/internal/instance"
	"github.com/yourusername/minecraft-server-manager/internal/logging"
	"github.com/yourusername/minecraft-server-manager/internal/metrics"
	"github.com/yourusername/minecraft-server-manager/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	// Check if running migrations
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations automatically
	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Initialize event history recorder
	recorder := database.NewRecorder(db)
	defer recorder.Close()

	// Initialize console scrollback store
	scrollback := console.NewStore(1000)

	// Initialize WebSocket hub
	log.Println("Initializing WebSocket hub...")
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Initialize offsite backup uploader if a destination is configured
	var uploader *backup.Uploader
	if cfg.Backup.Destination.Type != "" {
		dest, err := backup.NewDestination(&cfg.Backup.Destination)
		if err != nil {
			log.Fatalf("Failed to initialize backup destination: %v", err)
		}
		uploader = backup.NewUploader(dest)
		log.Printf("Offsite backups enabled (%s)", dest.Type())
	}

	// Initialize instance manager
	log.Println("Initializing instance manager...")
	manager, err := instance.NewManager(cfg.Storage.InstancesDir, instance.Options{
		RetainBackups: cfg.Backup.RetainPerInst,
	})
	if err != nil {
		log.Fatalf("Failed to initialize instance manager: %v", err)
	}

	manager.SetEventSink(func(instanceID string, e events.Event) {
		recorder.Record(instanceID, e)

		if e.Category == events.CategoryRawMessage {
			scrollback.Append(instanceID, e.Message)
			hub.BroadcastConsoleLine(instanceID, e.Message)
			return
		}
		hub.BroadcastInstanceEvent(instanceID, map[string]interface{}{
			"category": e.Category.String(),
			"player":   e.Player,
			"message":  e.Message,
		})
	})

	manager.SetBackupHook(func(instanceID, snapshotDir string) {
		recorder.RecordBackup(instanceID, filepath.Base(snapshotDir))

		if uploader == nil {
			return
		}
		in, ok := manager.Get(instanceID)
		if !ok {
			return
		}
		go func() {
			if err := uploader.UploadSnapshot(in.Name(), snapshotDir); err != nil {
				log.Printf("[Backup] offsite upload failed for %s: %v", in.Name(), err)
			}
		}()
	})

	// Restore persisted instances (auto-start honored)
	if err := manager.Restore(); err != nil {
		log.Fatalf("Failed to restore instances: %v", err)
	}

	// Start metrics collector
	collector := metrics.NewCollector(manager, 0)
	collector.Start()
	defer collector.Stop()

	// Start the fleet-wide backup sweeper if scheduled
	sweeper, err := backup.NewSweeper(cfg.Backup.Schedule, func() []backup.Target {
		instances := manager.List()
		targets := make([]backup.Target, 0, len(instances))
		for _, in := range instances {
			targets = append(targets, in)
		}
		return targets
	})
	if err != nil {
		log.Fatalf("Failed to initialize backup sweeper: %v", err)
	}
	if sweeper != nil {
		sweeper.Start(ctx)
	}

	log.Println("All server components initialized successfully")

	// Set up HTTP server
	router := api.SetupRouter(cfg, db, manager, recorder, hub, scrollback, collector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", server.Addr)

		if cfg.Server.TLS.Enabled {
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTPS server: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first so no new lifecycle requests arrive
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop every managed instance gracefully
	log.Println("Stopping instances...")
	manager.ShutdownAll()

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "server.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func runMigrations(cfg *config.Config) {
	log.Println("Running database migrations...")

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}
