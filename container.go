package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ModuleFactory produces an exposed module's exports. Factories come from
// a Container and are executed by the loader after the container has been
// initialized with the host's shared scope.
type ModuleFactory func() (any, error)

// Container is the executed form of a remote's bootstrap asset. It owns a
// factory capable of producing exposed modules and receives the host's
// shared scope for its own internal dependency resolution.
//
// A container is created once per resolved entry URL per host and never
// mutated afterwards; forced re-registration replaces it wholesale.
type Container interface {
	// Init hands the container the host's shared scope so the remote's
	// own shared imports resolve through the scope instead of bundling
	// private copies. Init is called exactly once, before the first Get.
	Init(ctx context.Context, scope *SharedScope) error

	// Get returns the factory for an exposed module.
	Get(ctx context.Context, exposedPath string) (ModuleFactory, error)
}

// ContainerFactory constructs a remote's container. Remote units register
// a factory under their entry global name; the default entry executor
// resolves the name against the host's entry-global table after fetching
// the entry asset.
type ContainerFactory func(ctx context.Context, req *ScriptRequest) (Container, error)

// ScriptRequest is the payload of the CreateScript hook: the injectable
// description of a bootstrap asset fetch. Plugins may rewrite the URL,
// attach attributes (integrity hashes, crossorigin markers), or disable
// the network fetch entirely.
type ScriptRequest struct {
	// URL is the entry asset location.
	URL string

	// GlobalName is the entry global the executed asset registers its
	// container factory under.
	GlobalName string

	// Attrs carries transport attributes for executor implementations.
	Attrs map[string]string

	// Fetch controls whether the executor retrieves the asset bytes. It
	// defaults to true for http and https URLs.
	Fetch bool
}

// EntryExecutor turns a script request into a live container. The default
// executor consults the host's entry-global table; plugins may install an
// executor that synthesizes containers from the fetched bytes instead.
type EntryExecutor interface {
	Execute(ctx context.Context, req *ScriptRequest) (Container, error)
}

// entryGlobals is the host's table of container factories keyed by entry
// global name, the in-process analog of the bootstrap contract's global.
type entryGlobals struct {
	mu        sync.RWMutex
	factories map[string]ContainerFactory
}

func newEntryGlobals() *entryGlobals {
	return &entryGlobals{factories: make(map[string]ContainerFactory)}
}

func (g *entryGlobals) set(name string, factory ContainerFactory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.factories[name] = factory
}

func (g *entryGlobals) get(name string) (ContainerFactory, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.factories[name]
	return f, ok
}

// RegisterEntryGlobal registers a container factory under an entry global
// name. This is how remote units plugged into the process fulfil the
// bootstrap contract: after their entry asset is fetched, the default
// executor resolves the global name against this table.
func (h *StdHost) RegisterEntryGlobal(name string, factory ContainerFactory) {
	h.globals.set(name, factory)
	h.logger.Debug("Registered entry global", "global", name)
}

// globalEntryExecutor is the default EntryExecutor. It fetches the entry
// asset when requested (observing availability and warming caches), then
// resolves the entry global name against the host's factory table.
type globalEntryExecutor struct {
	host *StdHost
}

func (e *globalEntryExecutor) Execute(ctx context.Context, req *ScriptRequest) (Container, error) {
	if req.Fetch {
		if _, err := e.host.manifests.FetchAsset(ctx, req.URL); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrScriptExecution, req.URL, err)
		}
	}

	factory, ok := e.host.globals.get(req.GlobalName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryGlobalMissing, req.GlobalName)
	}
	container, err := factory(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptExecution, req.GlobalName, err)
	}
	return container, nil
}

// fetchableURL reports whether a URL points at a network transport the
// executor should actually fetch.
func fetchableURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// MapContainer is a Container backed by a map of module factories. It is
// the simplest way for an in-process remote unit to fulfil the bootstrap
// contract, and the shape test fixtures use.
type MapContainer struct {
	// OnInit, when set, receives the shared scope during Init. Remote
	// units use it to register their shares and resolve their own
	// dependencies through the host scope.
	OnInit func(ctx context.Context, scope *SharedScope) error

	// Modules maps normalized expose keys to factories.
	Modules map[string]ModuleFactory
}

// Init implements Container.
func (c *MapContainer) Init(ctx context.Context, scope *SharedScope) error {
	if c.OnInit == nil {
		return nil
	}
	if err := c.OnInit(ctx, scope); err != nil {
		return fmt.Errorf("%w: %w", ErrContainerInit, err)
	}
	return nil
}

// Get implements Container.
func (c *MapContainer) Get(_ context.Context, exposedPath string) (ModuleFactory, error) {
	factory, ok := c.Modules[exposeKey(exposedPath)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExposeNotFound, exposedPath)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleFactoryNil, exposedPath)
	}
	return factory, nil
}
