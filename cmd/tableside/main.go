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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tableside/internal/api"
	"tableside/internal/config"
	"tableside/internal/hub"
	"tableside/internal/monitoring"
	"tableside/internal/orders"
	"tableside/internal/storage"
	"tableside/internal/transcribe"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Initialize context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *metricsPort != 0 {
		cfg.MetricsPort = *metricsPort
	}

	// Initialize storage
	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize monitor and hub
	monitor := monitoring.NewMonitor()
	eventHub := hub.New(hub.Config{
		HistorySize:       cfg.Hub.HistorySize,
		QueueDepth:        cfg.Hub.QueueDepth,
		HeartbeatInterval: cfg.Hub.HeartbeatInterval.Std(),
	}, monitor)
	go eventHub.Run(ctx)

	// Build the speech provider chain
	providers, err := buildProviders(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize speech providers: %v", err)
	}
	gateway := transcribe.NewGateway(providers,
		cfg.Transcription.Timeout.Std(), cfg.Transcription.ConfidenceThreshold)

	// Initialize order lifecycle manager and API server
	manager := orders.NewManager(store, eventHub, monitor)
	apiServer := api.NewServer(eventHub, manager, gateway, monitor, cfg.AuthSecret)

	// Start metrics server
	go startMetricsServer(cfg.MetricsPort)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: apiServer.Router(),
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down servers...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}

		cancel() // Cancel main context
	}()

	log.Printf("Starting API server on port %d", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("API server error: %v", err)
	}
}

func buildProviders(cfg *config.Config) ([]transcribe.Provider, error) {
	var providers []transcribe.Provider
	for _, pc := range cfg.Transcription.Providers {
		switch pc.Kind {
		case "openai":
			p, err := transcribe.NewOpenAIProvider(pc.BaseURL, pc.APIKey(), pc.Model)
			if err != nil {
				log.Printf("Skipping openai speech provider: %v", err)
				continue
			}
			providers = append(providers, p)
		case "deepgram":
			p, err := transcribe.NewDeepgramProvider(pc.BaseURL, pc.APIKey(), pc.Model)
			if err != nil {
				log.Printf("Skipping deepgram speech provider: %v", err)
				continue
			}
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no speech provider is configured; set OPENAI_API_KEY or DEEPGRAM_API_KEY")
	}
	return providers, nil
}

func startMetricsServer(port int) {
	metricsRouter := gin.Default()
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	log.Printf("Starting metrics server on port %d", port)
	if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("Metrics server error: %v", err)
	}
}
