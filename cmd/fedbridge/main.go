package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/commonsocial/fedbridge/internal/federation"
	"github.com/commonsocial/fedbridge/internal/httpapi"
)

func main() {
	addr := os.Getenv("FEDBRIDGE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	baseURL := strings.TrimSpace(os.Getenv("FEDBRIDGE_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	logger := log.Default()

	stateBackend, err := buildStateBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}
	queue, err := buildDeliveryQueueFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize delivery queue: %v", err)
	}

	store := federation.NewMemoryStoreWithOptions(federation.MemoryStoreOptions{
		StateBackend: stateBackend,
		StateFile:    os.Getenv("FEDBRIDGE_STATE_FILE"),
		MaxEvents:    intEnv("FEDBRIDGE_MAX_EVENTS", 0),
		Logger:       logger,
	})
	defer store.Close()

	transport := federation.NewHTTPTransport(federation.HTTPTransportOptions{
		MaxRetries: intEnv("FEDBRIDGE_MAX_RETRIES", 0),
		BaseDelay:  durationEnv("FEDBRIDGE_RETRY_BASE_DELAY", 0),
		MaxDelay:   durationEnv("FEDBRIDGE_RETRY_MAX_DELAY", 0),
		CacheTTL:   durationEnv("FEDBRIDGE_CACHE_TTL", 0),
	})

	deliverer, err := federation.NewDeliverer(federation.DelivererOptions{
		Store:        store,
		Transport:    transport,
		Queue:        queue,
		LocalBaseURL: baseURL,
		Workers:      intEnv("FEDBRIDGE_DELIVERY_WORKERS", 0),
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to initialize deliverer: %v", err)
	}
	store.SetInboxEntryHook(deliverer.OnInboxEntry)

	syncer, err := federation.NewSyncer(federation.SyncerOptions{
		Transport:    transport,
		Store:        store,
		PageSize:     intEnv("FEDBRIDGE_PAGE_SIZE", 0),
		Workers:      intEnv("FEDBRIDGE_SYNC_WORKERS", 0),
		HostDeadline: durationEnv("FEDBRIDGE_HOST_DEADLINE", 0),
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to initialize syncer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go deliverer.Run(ctx)

	hostsFile := strings.TrimSpace(os.Getenv("FEDBRIDGE_HOSTS_FILE"))
	if hostsFile != "" {
		hosts, err := federation.LoadHostsFile(hostsFile)
		if err != nil {
			log.Fatalf("failed to load hosts file %s: %v", hostsFile, err)
		}
		if err := federation.ApplyHosts(store, hosts); err != nil {
			log.Fatalf("failed to apply hosts: %v", err)
		}
		stop, err := federation.WatchHostsFile(ctx, hostsFile, store, logger, nil)
		if err != nil {
			log.Printf("hosts file watch disabled: %v", err)
		} else {
			defer stop()
		}
	}

	syncInterval := durationEnv("FEDBRIDGE_SYNC_INTERVAL", 10*time.Minute)
	if syncInterval > 0 {
		go runPeriodicSync(ctx, syncer, store, syncInterval)
	}

	server := httpapi.NewServer(store, federation.NewDispatcher(store, logger), syncer, httpapi.ServerConfig{
		BaseURL:      baseURL,
		RequireAuth:  boolEnv("FEDBRIDGE_REQUIRE_AUTH", false),
		MaxBodyBytes: int64Env("FEDBRIDGE_MAX_BODY_BYTES", 0),
		MaxPageSize:  intEnv("FEDBRIDGE_MAX_PAGE_SIZE", 0),
	}, logger)

	log.Printf("fedbridge listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func runPeriodicSync(ctx context.Context, syncer *federation.Syncer, store *federation.MemoryStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		syncer.SyncAll(ctx, store.Hosts())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildStateBackendFromEnv() (federation.StateBackend, error) {
	dsn := strings.TrimSpace(os.Getenv("FEDBRIDGE_STATE_BACKEND_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("FEDBRIDGE_STATE_FILE"))
	}
	if dsn == "" {
		return nil, nil
	}
	return federation.BuildStateBackendFromDSN(dsn)
}

func buildDeliveryQueueFromEnv() (federation.DeliveryQueue, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FEDBRIDGE_QUEUE_BACKEND")))
	if backend == "" {
		backend = "memory"
	}
	dsn := strings.TrimSpace(os.Getenv("FEDBRIDGE_QUEUE_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("FEDBRIDGE_POSTGRES_DSN"))
	}
	return federation.NewDeliveryQueue(backend, dsn, intEnv("FEDBRIDGE_QUEUE_SIZE", 0))
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
