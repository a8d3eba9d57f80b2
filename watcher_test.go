package federation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[remotes]]
name = "shop"
entry = "memory://shop-v1.js"
`), 0o644))

	host := newTestHost(t, HostOptions{})
	require.NoError(t, host.ApplyFileConfig(ctx, mustLoadConfig(t, path), false))

	watcher := NewConfigWatcher(host, path)
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(`
[[remotes]]
name = "shop"
entry = "memory://shop-v2.js"

[[remotes]]
name = "checkout"
entry = "memory://checkout.js"
`), 0o644))

	require.Eventually(t, func() bool {
		d, ok := host.remotes.lookup("shop")
		return ok && d.Entry == "memory://shop-v2.js"
	}, 5*time.Second, 10*time.Millisecond, "watcher must re-apply the changed config")

	_, ok := host.remotes.lookup("checkout")
	assert.True(t, ok)
}

func TestConfigWatcherEmitsReloadEvent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remotes: []\n"), 0o644))

	host := newTestHost(t, HostOptions{})
	reloaded := make(chan struct{}, 1)
	require.NoError(t, host.RegisterObserver(NewFunctionalObserver("reload-audit", func(_ context.Context, _ CloudEvent) error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	}), EventTypeConfigReloaded))

	watcher := NewConfigWatcher(host, path)
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(`
remotes:
  - name: shop
    entry: memory://shop.js
`), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("config reload event not observed")
	}
}

func TestConfigWatcherBadReloadKeepsRunning(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(`name = "ok"`), 0o644))

	host := newTestHost(t, HostOptions{})
	watcher := NewConfigWatcher(host, path)
	require.NoError(t, watcher.Start(ctx))
	defer func() { require.NoError(t, watcher.Stop()) }()

	// A broken write is logged and skipped; a later good write still lands.
	require.NoError(t, os.WriteFile(path, []byte("name = [broken\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`
[[remotes]]
name = "shop"
entry = "memory://shop.js"
`), 0o644))

	require.Eventually(t, func() bool {
		_, ok := host.remotes.lookup("shop")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConfigWatcherLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(`name = "ok"`), 0o644))

	watcher := NewConfigWatcher(newTestHost(t, HostOptions{}), path)
	require.NoError(t, watcher.Start(ctx))
	require.ErrorIs(t, watcher.Start(ctx), ErrWatcherAlreadyRunning)
	require.NoError(t, watcher.Stop())
	require.NoError(t, watcher.Stop()) // idempotent
	require.NoError(t, watcher.Start(ctx))
	require.NoError(t, watcher.Stop())
}

func mustLoadConfig(t *testing.T, path string) *HostFileConfig {
	t.Helper()
	cfg, err := LoadHostFileConfig(path)
	require.NoError(t, err)
	return cfg
}
