package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netfabric/internal/adapter"
	"netfabric/internal/config"
	"netfabric/internal/eventlog/sqlite"
	"netfabric/internal/handler"
	"netfabric/internal/hub"
	"netfabric/internal/service"
)

func main() {
	// Command line flags override the config file
	addr := flag.String("addr", "", "HTTP listen address")
	dbPath := flag.String("db", "", "SQLite database path")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting netfabric server...")

	// Load configuration
	var (
		cfg    *config.Config
		loaded string
		err    error
	)
	if *configPath != "" {
		cfg, loaded, err = config.LoadFromPath(*configPath)
	} else {
		cfg, loaded, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if loaded != "" {
		log.Printf("Config loaded: %s", loaded)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Open the event store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("Event store opened: %s", cfg.Database.Path)

	// Event bus feeds the SSE hub
	eventBus := service.NewEventBus()
	sseHub := hub.New()
	go sseHub.Run()
	eventBus.Subscribe(sseHub.Feed())

	svc := service.NewNetworkService(store, eventBus)
	svc.SetAllowedParents(cfg.IPAM.Parents)

	// Optional nmap discovery
	discoveryCtx, discoveryCancel := context.WithCancel(context.Background())
	defer discoveryCancel()
	if cfg.Discovery.Enabled {
		disc := adapter.New(svc, cfg.Discovery)
		if err := disc.Start(discoveryCtx); err != nil {
			log.Printf("Warning: discovery disabled: %v", err)
		} else {
			go func() {
				if err := disc.Run(discoveryCtx); err != nil && err != context.Canceled {
					log.Printf("Discovery stopped: %v", err)
				}
				disc.Stop()
			}()
		}
	}

	api := handler.New(svc)

	// Setup routes
	mux := http.NewServeMux()

	// Device endpoints
	mux.HandleFunc("POST /api/devices", api.RegisterDevice)
	mux.HandleFunc("GET /api/devices/{id}", api.GetDevice)
	mux.HandleFunc("POST /api/devices/{id}/commands", api.DeviceCommand)
	mux.HandleFunc("GET /api/devices/{id}/events", api.GetDeviceEvents)

	// Network object endpoints
	mux.HandleFunc("POST /api/networks/vlans", api.CreateVlan)
	mux.HandleFunc("POST /api/networks/container-networks", api.CreateContainerNetwork)
	mux.HandleFunc("GET /api/networks/{id}", api.GetNetworkObject)
	mux.HandleFunc("GET /api/networks/{id}/events", api.GetNetworkObjectEvents)
	mux.HandleFunc("POST /api/networks/{id}/members", api.AddMember)
	mux.HandleFunc("DELETE /api/networks/{id}/members/{member}", api.RemoveMember)

	// Subnet endpoints
	mux.HandleFunc("POST /api/subnets", api.AllocateSubnet)
	mux.HandleFunc("POST /api/subnets/release", api.ReleaseSubnet)
	mux.HandleFunc("GET /api/subnets", api.ListAllocations)

	// Operation (correlation) endpoint
	mux.HandleFunc("GET /api/operations/{id}", api.GetOperation)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	discoveryCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
