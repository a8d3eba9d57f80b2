// Package federation provides the federation host: the explicit,
// explicitly-initialized instance that owns the remote registry, shared
// scope, hook pipelines, and prefetch cache. Multiple hosts in one process
// share no state.
package federation

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
)

// Host is the public surface of a federation instance.
type Host interface {
	Subject

	// Name returns the host's configured name.
	Name() string

	// InstanceID returns the unique identifier of this host instance.
	InstanceID() string

	// Logger returns the host's structured logger.
	Logger() Logger

	// Hooks exposes the host's hook pipelines for direct registration.
	Hooks() *HostHooks

	// RegisterRemotes adds or (with force) replaces remote descriptors.
	RegisterRemotes(ctx context.Context, remotes []RemoteDescriptor, force bool) error

	// RegisterPlugins wires plugin handlers into the hook pipelines.
	RegisterPlugins(plugins ...*Plugin) error

	// RegisterEntryGlobal registers a container factory under an entry
	// global name, fulfilling the bootstrap contract in-process.
	RegisterEntryGlobal(name string, factory ContainerFactory)

	// Resolve maps a remote identifier to a concrete entry descriptor.
	Resolve(ctx context.Context, id string) (*ResolvedRemote, error)

	// LoadRemote loads an exposed module from a remote.
	LoadRemote(ctx context.Context, id string) (any, error)

	// LoadShare negotiates and materializes a shared dependency.
	LoadShare(ctx context.Context, pkg string, opts *LoadShareOptions) (SharedGetter, error)

	// PreloadRemote computes asset closures and issues early fetches.
	PreloadRemote(ctx context.Context, requests []PreloadRemoteArgs) error

	// SharedScope returns the host's shared dependency table.
	SharedScope() *SharedScope

	// Prefetch returns the host's data prefetch cache.
	Prefetch() *PrefetchCache
}

// HostOptions configures a new host.
type HostOptions struct {
	// Name identifies the host in events and logs.
	Name string

	// Logger receives the host's structured logs. Defaults to slog.
	Logger Logger

	// Remotes are registered during construction.
	Remotes []RemoteDescriptor

	// Shared records are registered into the host's scope during
	// construction.
	Shared []*SharedRecord

	// Plugins are registered during construction.
	Plugins []*Plugin

	// HTTPClient performs manifest and asset fetches. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// EntryExecutor turns script requests into containers. Defaults to
	// the entry-global table executor.
	EntryExecutor EntryExecutor

	// ShareStrategy is the default shared-version selection strategy.
	// Defaults to StrategyVersionFirst.
	ShareStrategy ShareStrategy
}

// StdHost is the standard Host implementation. All registries it owns are
// instance state; the only sanctioned external eviction path is
// RegisterRemotes with force.
type StdHost struct {
	name       string
	instanceID string
	logger     Logger

	hooks     *HostHooks
	remotes   *remoteRegistry
	manifests *manifestClient
	loader    *remoteLoader
	shared    *SharedScope
	prefetch  *PrefetchCache
	globals   *entryGlobals
	executor  EntryExecutor

	shareStrategy ShareStrategy

	observers *observerRegistry
}

// NewStdHost creates a federation host and applies the options: remotes
// and shares are registered, plugins wired, before the host is returned.
func NewStdHost(ctx context.Context, opts HostOptions) (*StdHost, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	h := &StdHost{
		name:          opts.Name,
		instanceID:    uuid.NewString(),
		logger:        logger,
		hooks:         &HostHooks{},
		remotes:       newRemoteRegistry(),
		shared:        NewSharedScope(),
		globals:       newEntryGlobals(),
		shareStrategy: opts.ShareStrategy,
		observers:     newObserverRegistry(logger),
	}
	if h.name == "" {
		h.name = "federation-host"
	}
	if h.shareStrategy == "" {
		h.shareStrategy = StrategyVersionFirst
	}
	h.manifests = newManifestClient(opts.HTTPClient, logger)
	h.loader = newRemoteLoader(h)
	h.prefetch = newPrefetchCache(h)
	h.executor = opts.EntryExecutor
	if h.executor == nil {
		h.executor = &globalEntryExecutor{host: h}
	}

	if err := h.RegisterPlugins(opts.Plugins...); err != nil {
		return nil, err
	}
	for _, record := range opts.Shared {
		record.From = h.name
		if err := h.shared.Register(record); err != nil {
			return nil, err
		}
		h.emitEvent(ctx, EventTypeShareRegistered, map[string]any{
			"package": record.Package,
			"version": record.Version,
		})
	}
	if err := h.RegisterRemotes(ctx, opts.Remotes, false); err != nil {
		return nil, err
	}

	h.logger.Info("Federation host created", "host", h.name, "remotes", len(opts.Remotes), "instance", h.instanceID)
	return h, nil
}

// Name returns the host's configured name.
func (h *StdHost) Name() string { return h.name }

// InstanceID returns the unique identifier of this host instance.
func (h *StdHost) InstanceID() string { return h.instanceID }

// Logger returns the host's structured logger.
func (h *StdHost) Logger() Logger { return h.logger }

// Hooks exposes the host's hook pipelines.
func (h *StdHost) Hooks() *HostHooks { return h.hooks }

// SharedScope returns the host's shared dependency table.
func (h *StdHost) SharedScope() *SharedScope { return h.shared }

// Prefetch returns the host's data prefetch cache.
func (h *StdHost) Prefetch() *PrefetchCache { return h.prefetch }

// RegisterShared adds a shared record to the host's scope.
func (h *StdHost) RegisterShared(ctx context.Context, records ...*SharedRecord) error {
	for _, record := range records {
		if record.From == "" {
			record.From = h.name
		}
		if err := h.shared.Register(record); err != nil {
			return err
		}
		h.emitEvent(ctx, EventTypeShareRegistered, map[string]any{
			"package": record.Package,
			"version": record.Version,
			"from":    record.From,
		})
	}
	return nil
}

// emitEvent publishes a runtime CloudEvent to the host's observers.
func (h *StdHost) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	if h.observers.empty() {
		return
	}
	event := NewCloudEvent(eventType, "federation/"+h.name, data, nil)
	_ = h.observers.notify(ctx, event)
}
