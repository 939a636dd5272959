package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/semiotic-ai/network-topology/internal/adminapi"
	"github.com/semiotic-ai/network-topology/internal/blocklist"
	"github.com/semiotic-ai/network-topology/internal/blockliststore"
	"github.com/semiotic-ai/network-topology/internal/config"
	"github.com/semiotic-ai/network-topology/internal/costmodel"
	"github.com/semiotic-ai/network-topology/internal/db"
	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/indexerpipeline"
	"github.com/semiotic-ai/network-topology/internal/opsalert"
	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/registry"
	"github.com/semiotic-ai/network-topology/internal/snapshot"
	"github.com/semiotic-ai/network-topology/internal/snapshotfeed"
	"github.com/semiotic-ai/network-topology/internal/topology"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	ctx := context.Background()

	// Database (optional): only needed for operator-managed blocklists.
	var store *blockliststore.Store
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("WARNING: database connection failed: %v (continuing with static blocklists)", err)
		} else {
			defer database.Close()
			if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
				log.Printf("WARNING: migrations failed: %v", err)
			}
			store = blockliststore.New(database.Pool)
		}
	}

	// Registry auth: client-credentials flow when a token URL is set,
	// otherwise the static bearer token from config.
	var tokens registry.TokenSource
	if cfg.RegistryTokenURL != "" {
		tokens = registry.NewClientCredentialsSource(cfg.RegistryTokenURL, cfg.RegistryClientID, cfg.RegistryClientSecret)
	} else {
		tokens = registry.StaticToken(cfg.RegistryToken)
		registry.NewTokenInspector(72 * time.Hour).Inspect(cfg.RegistryToken)
	}

	registryClient := registry.New(registry.Config{
		BaseURL:   cfg.RegistryURL,
		Tokens:    tokens,
		PageSize:  cfg.RegistryPageSize,
		L2Enabled: cfg.L2Enabled,
	})

	probeClient := probe.NewClient(probe.Config{
		MaxIdleConns: cfg.HTTPMaxIdleConns,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		RPS:          cfg.ProbeRPS,
		Burst:        cfg.ProbeBurst,
	})

	// Snapshot feed: in-process WebSocket hub always, Kafka only when
	// brokers are configured.
	feedHub := snapshotfeed.NewHub()
	var kafkaPub *snapshotfeed.KafkaPublisher
	if cfg.KafkaBrokers != "" {
		var err error
		kafkaPub, err = snapshotfeed.NewKafkaPublisher(splitCSV(cfg.KafkaBrokers), cfg.KafkaTopic)
		if err != nil {
			log.Printf("WARNING: kafka publisher setup failed: %v (continuing without it)", err)
		} else {
			defer kafkaPub.Close() //nolint:errcheck // best-effort cleanup on shutdown
		}
	}

	slack := opsalert.NewSlackChannel(cfg.SlackWebhookURL)

	var blocklistSource topology.BlocklistSource
	if store != nil {
		blocklistSource = store
	}

	refresher, err := topology.New(ctx, topology.Config{
		Registry:         registryClient,
		ProbeClient:      probeClient,
		Compiler:         costmodel.SourceHashCompiler{},
		BlocklistSource:  blocklistSource,
		AddressBlocklist: blocklist.NewAddressSet(parseAddressCSV(cfg.AddressBlocklistCSV)),
		HostBlocklist:    blocklist.NewHostSet(splitCSV(cfg.HostBlocklistCIDRs)),
		POIBlocklist:     nil,
		RefreshInterval:  cfg.RefreshInterval,
		FetchTimeout:     cfg.FetchTimeout,
		MinAgentVersion:  cfg.MinAgentVersion,
		MinNodeVersion:   cfg.MinNodeVersion,
		Timeouts: indexerpipeline.Timeouts{
			AgentVersion: cfg.AgentVersionProbeTimeout,
			NodeVersion:  cfg.NodeVersionProbeTimeout,
			HostResolve:  cfg.HostResolveTimeout,
			POI:          cfg.POIProbeTimeout,
			Progress:     cfg.ProgressProbeTimeout,
			CostModel:    cfg.CostModelProbeTimeout,
		},
		Debug: cfg.Debug,
		OnPublish: func(snap *snapshot.Snapshot, stats topology.RefreshStats) {
			refreshID := uuid.New().String()
			feedHub.Broadcast(refreshID, stats)
			if kafkaPub != nil {
				kafkaPub.Publish(refreshID, stats)
			}
		},
		OnFailure: func(refreshErr error, stats topology.RefreshStats) {
			if err := slack.Notify(refreshErr, stats); err != nil {
				log.Printf("WARNING: slack alert failed: %v", err)
			}
		},
	})
	if err != nil {
		log.Fatalf("Initial refresh failed: %v", err)
	}
	defer refresher.Stop()

	// Admin HTTP surface.
	r := mux.NewRouter()
	handlers := adminapi.New(refresher, store, cfg.AdminRateRPS, cfg.AdminRateBurst)
	handlers.RegisterRoutes(r)
	r.HandleFunc("/feed", feedHub.ServeWS).Methods("GET")

	srv := &http.Server{
		Addr:           ":" + cfg.AdminPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   75 * time.Second, // POST /refresh can wait on a slow registry
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting admin server on :%s", cfg.AdminPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseAddressCSV(s string) []ids.IndexerAddr {
	var out []ids.IndexerAddr
	for _, raw := range splitCSV(s) {
		addr, err := ids.ParseIndexerAddr(raw)
		if err != nil {
			log.Printf("WARNING: skipping malformed blocklist address %q: %v", raw, err)
			continue
		}
		out = append(out, addr)
	}
	return out
}
