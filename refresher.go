package federation

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// ManifestRefresher periodically re-fetches the manifests of registered
// manifest-format remotes. When a manifest's content changes upstream, the
// remote is re-registered with force so the next load resolves and
// executes fresh, and a refresh event is emitted.
type ManifestRefresher struct {
	host     *StdHost
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

// NewManifestRefresher creates a refresher with a cron schedule
// (e.g. "@every 5m" or "*/10 * * * *").
func NewManifestRefresher(host *StdHost, schedule string) *ManifestRefresher {
	return &ManifestRefresher{host: host, schedule: schedule}
}

// Start begins the refresh schedule.
func (r *ManifestRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return ErrRefresherAlreadyRunning
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.RefreshAll(ctx) }); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrRefreshSchedule, r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.host.logger.Info("Manifest refresher started", "schedule", r.schedule)
	return nil
}

// RefreshAll re-fetches every manifest-format remote's manifest once.
// It is called on the cron schedule and may be invoked directly.
func (r *ManifestRefresher) RefreshAll(ctx context.Context) {
	for _, descriptor := range r.host.remotes.snapshot() {
		if descriptor.Format != EntryFormatManifest {
			continue
		}
		r.refreshOne(ctx, descriptor)
	}
}

func (r *ManifestRefresher) refreshOne(ctx context.Context, descriptor RemoteDescriptor) {
	_, hash, changed, err := r.host.manifests.FetchFresh(ctx, descriptor.Entry)
	if err != nil {
		r.host.logger.Error("Manifest refresh failed", "remote", descriptor.Name, "error", err)
		return
	}
	if !changed {
		r.host.logger.Debug("Manifest unchanged", "remote", descriptor.Name)
		return
	}

	// Content changed upstream: evict the stale container and prefetch
	// state so the next load executes the new entry.
	r.host.loader.evictEntry(descriptor.Entry)
	r.host.prefetch.DropModulePrefix(descriptor.Name)

	r.host.logger.Warn("Manifest changed upstream", "remote", descriptor.Name, "hash", hash)
	r.host.emitEvent(ctx, EventTypeManifestRefreshed, map[string]any{
		"remote": descriptor.Name,
		"hash":   hash,
	})
}

// Stop halts the refresh schedule, waiting for an in-flight refresh to
// finish. Idempotent.
func (r *ManifestRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}
