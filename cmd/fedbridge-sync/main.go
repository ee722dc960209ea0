package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/commonsocial/fedbridge/internal/federation"
)

// fedbridge-sync pulls every configured remote host once (or on an
// interval) and merges the results into a shared state snapshot. It is
// meant for cron-style operation next to a fedbridge server pointed at
// the same state backend.
func main() {
	hostsFile := flag.String("hosts", strings.TrimSpace(os.Getenv("FEDBRIDGE_HOSTS_FILE")), "hosts configuration file")
	stateDSN := flag.String("state", envOrDefault("FEDBRIDGE_STATE_BACKEND_DSN", ""), "state backend DSN (file path, memory:// or postgres://)")
	pageSize := flag.Int("page-size", intEnv("FEDBRIDGE_PAGE_SIZE", 0), "collection page size")
	workers := flag.Int("workers", intEnv("FEDBRIDGE_SYNC_WORKERS", 0), "concurrent host workers")
	deadline := flag.Duration("deadline", durationEnv("FEDBRIDGE_HOST_DEADLINE", 0), "per-host deadline")
	interval := flag.Duration("interval", durationEnv("FEDBRIDGE_SYNC_INTERVAL", 0), "repeat interval, 0 runs once")
	flag.Parse()

	if strings.TrimSpace(*hostsFile) == "" {
		log.Fatalf("hosts file is required (--hosts or FEDBRIDGE_HOSTS_FILE)")
	}

	var backend federation.StateBackend
	if strings.TrimSpace(*stateDSN) != "" {
		var err error
		backend, err = federation.BuildStateBackendFromDSN(*stateDSN)
		if err != nil {
			log.Fatalf("failed to initialize state backend: %v", err)
		}
	}

	store := federation.NewMemoryStoreWithOptions(federation.MemoryStoreOptions{
		StateBackend: backend,
		Logger:       log.Default(),
	})
	defer store.Close()

	hosts, err := federation.LoadHostsFile(*hostsFile)
	if err != nil {
		log.Fatalf("failed to load hosts file %s: %v", *hostsFile, err)
	}
	if err := federation.ApplyHosts(store, hosts); err != nil {
		log.Fatalf("failed to apply hosts: %v", err)
	}

	syncer, err := federation.NewSyncer(federation.SyncerOptions{
		Transport:    federation.NewHTTPTransport(federation.HTTPTransportOptions{}),
		Store:        store,
		PageSize:     *pageSize,
		Workers:      *workers,
		HostDeadline: *deadline,
		Logger:       log.Default(),
	})
	if err != nil {
		log.Fatalf("failed to initialize syncer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		started := time.Now()
		syncer.SyncAll(ctx, store.Hosts())
		log.Printf("synced %d hosts in %s", len(hosts), time.Since(started).Round(time.Millisecond))
		if *interval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}

func envOrDefault(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
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
