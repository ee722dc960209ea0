package federation

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeHostsFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write hosts file failed: %v", err)
	}
}

func TestLoadHostsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	writeHostsFile(t, path, `{
		"hosts": [
			{"url": "http://node-a/", "dialect": "internal", "nickname": "a", "username": "bridge", "password": "secret"},
			{"url": "http://node-b", "dialect": "ACTIVITY", "authB64": "cHJlc2V0"}
		]
	}`)

	hosts, err := LoadHostsFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(hosts))
	}
	if hosts[0].URL != "http://node-a" {
		t.Fatalf("url must be trimmed of trailing slash, got %q", hosts[0].URL)
	}
	wantAuth := base64.StdEncoding.EncodeToString([]byte("bridge:secret"))
	if hosts[0].AuthB64 != wantAuth {
		t.Fatalf("expected derived basic token, got %q", hosts[0].AuthB64)
	}
	if hosts[1].Dialect != DialectActivity {
		t.Fatalf("dialect tag must normalize, got %q", hosts[1].Dialect)
	}
	if hosts[1].AuthB64 != "cHJlc2V0" {
		t.Fatalf("preset token must win, got %q", hosts[1].AuthB64)
	}
}

func TestLoadHostsFileRejectsUnknownDialect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	writeHostsFile(t, path, `{"hosts": [{"url": "http://node", "dialect": "martian"}]}`)
	if _, err := LoadHostsFile(path); !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("expected unknown dialect error, got %v", err)
	}
}

func TestLoadHostsFileRejectsMissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	writeHostsFile(t, path, `{"hosts": [{"dialect": "internal"}]}`)
	if _, err := LoadHostsFile(path); err == nil {
		t.Fatalf("expected error for entry without url")
	}
}

func TestApplyHostsKeepsIDsStable(t *testing.T) {
	store := NewMemoryStore()
	hosts := []Host{{URL: "http://node", Dialect: DialectInternal}}
	if err := ApplyHosts(store, hosts); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	firstID := hosts[0].ID

	again := []Host{{URL: "http://node", Dialect: DialectCompat, Nickname: "renamed"}}
	if err := ApplyHosts(store, again); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	if again[0].ID != firstID {
		t.Fatalf("reload must keep host ids stable")
	}
}

func TestWatchHostsFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.json")
	writeHostsFile(t, path, `{"hosts": [{"url": "http://node", "dialect": "internal"}]}`)

	store := NewMemoryStore()
	hosts, err := LoadHostsFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := ApplyHosts(store, hosts); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan []Host, 1)
	stop, err := WatchHostsFile(ctx, path, store, nil, func(hosts []Host) {
		select {
		case reloaded <- hosts:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer stop()

	writeHostsFile(t, path, `{"hosts": [{"url": "http://node", "dialect": "internal", "nickname": "renamed"}]}`)

	select {
	case <-reloaded:
	case <-time.After(10 * time.Second):
		t.Fatalf("reload never observed")
	}
	host, ok := store.HostByURL("http://node")
	if !ok || host.Nickname != "renamed" {
		t.Fatalf("expected reloaded nickname, got %+v ok=%t", host, ok)
	}
}

func TestWatchHostsFileKeepsConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.json")
	writeHostsFile(t, path, `{"hosts": [{"url": "http://node", "dialect": "internal"}]}`)

	store := NewMemoryStore()
	hosts, _ := LoadHostsFile(path)
	if err := ApplyHosts(store, hosts); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := WatchHostsFile(ctx, path, store, nil, nil)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer stop()

	writeHostsFile(t, path, `{"hosts": [{"url": "http://node", "dialect": "martian"}]}`)

	time.Sleep(500 * time.Millisecond)
	host, ok := store.HostByURL("http://node")
	if !ok || host.Dialect != DialectInternal {
		t.Fatalf("bad reload must keep previous config, got %+v ok=%t", host, ok)
	}
}
