package federation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// HostConfig is one entry in the hosts file. Credentials can be given as a
// ready base64 basic-auth token or as a username/password pair.
type HostConfig struct {
	URL      string `json:"url"`
	Dialect  string `json:"dialect"`
	Nickname string `json:"nickname,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	AuthB64  string `json:"authB64,omitempty"`
}

type hostsFile struct {
	Hosts []HostConfig `json:"hosts"`
}

// LoadHostsFile reads and validates the hosts file. An unknown dialect tag
// is a configuration error and fails the whole load.
func LoadHostsFile(path string) ([]Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed hostsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("hosts file %s: %w", path, err)
	}
	hosts := make([]Host, 0, len(parsed.Hosts))
	for i, entry := range parsed.Hosts {
		if strings.TrimSpace(entry.URL) == "" {
			return nil, fmt.Errorf("hosts file %s: entry %d has no url", path, i)
		}
		tag := DialectTag(strings.ToLower(strings.TrimSpace(entry.Dialect)))
		if _, err := ForTag(tag); err != nil {
			return nil, fmt.Errorf("hosts file %s: entry %d: %w", path, i, err)
		}
		auth := strings.TrimSpace(entry.AuthB64)
		if auth == "" && entry.Username != "" {
			auth = base64.StdEncoding.EncodeToString([]byte(entry.Username + ":" + entry.Password))
		}
		hosts = append(hosts, Host{
			URL:      strings.TrimRight(strings.TrimSpace(entry.URL), "/"),
			Dialect:  tag,
			AuthB64:  auth,
			Nickname: strings.TrimSpace(entry.Nickname),
		})
	}
	return hosts, nil
}

// ApplyHosts upserts every configured host into the store, keeping existing
// host IDs stable across reloads.
func ApplyHosts(store Store, hosts []Host) error {
	for i := range hosts {
		host := hosts[i]
		if err := store.UpsertHost(&host); err != nil {
			return err
		}
		hosts[i] = host
	}
	return nil
}

// WatchHostsFile reloads the hosts file whenever it changes on disk and
// applies the result to the store. A reload that fails validation keeps the
// previous configuration. Editors that replace the file are handled by
// re-adding the watch after remove/rename events.
func WatchHostsFile(ctx context.Context, path string, store Store, logger Logger, onReload func([]Host)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				hosts, err := LoadHostsFile(path)
				if err != nil {
					logf(logger, "hosts reload failed, keeping previous config: %v", err)
					continue
				}
				if err := ApplyHosts(store, hosts); err != nil {
					logf(logger, "hosts reload failed to apply: %v", err)
					continue
				}
				logf(logger, "hosts file reloaded, %d hosts configured", len(hosts))
				if onReload != nil {
					onReload(hosts)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logf(logger, "hosts watcher error: %v", err)
			}
		}
	}()

	return watcher.Close, nil
}
