package federation

import (
	"context"
	"fmt"
	"sync"
)

// LoadError is the payload of the ErrorLoadRemote bail hook. The first
// plugin returning a handled fallback value becomes the resolved value of
// LoadRemote itself.
type LoadError struct {
	// ID is the identifier the caller passed to LoadRemote.
	ID string

	// Error is the failure that converged on the hook.
	Error error

	// From distinguishes build-time declared remotes from runtime
	// registrations.
	From string
}

// LoadedModule is the payload of the OnLoad observation hook.
type LoadedModule struct {
	ID       string
	Resolved *ResolvedRemote
	Module   any
}

// containerEntry memoizes container acquisition for one resolved entry
// URL. The future covers fetch, execution, and Init, so every caller
// observes a fully initialized container.
type containerEntry struct {
	sourceEntry string
	future      *future[Container]
}

// remoteLoader owns the container cache. Script injection and execution
// happen at most once per resolved entry URL; concurrent LoadRemote calls
// for the same entry await the same in-flight acquisition.
type remoteLoader struct {
	host *StdHost

	mu         sync.Mutex
	containers map[string]*containerEntry // keyed by resolved entry URL
}

func newRemoteLoader(host *StdHost) *remoteLoader {
	return &remoteLoader{host: host, containers: make(map[string]*containerEntry)}
}

// acquire returns the container for a resolved entry, creating it exactly
// once.
func (l *remoteLoader) acquire(ctx context.Context, resolved *ResolvedRemote) (Container, error) {
	l.mu.Lock()
	entry, ok := l.containers[resolved.EntryURL]
	if ok {
		l.mu.Unlock()
		return entry.future.wait(ctx)
	}
	entry = &containerEntry{
		sourceEntry: resolved.Descriptor.Entry,
		future:      newFuture[Container](),
	}
	l.containers[resolved.EntryURL] = entry
	l.mu.Unlock()

	container, err := l.create(ctx, resolved)
	if err != nil {
		// Failed acquisitions are evicted so a later call can retry; the
		// waiting callers still observe this failure.
		l.mu.Lock()
		if l.containers[resolved.EntryURL] == entry {
			delete(l.containers, resolved.EntryURL)
		}
		l.mu.Unlock()
	}
	entry.future.complete(container, err)
	return container, err
}

func (l *remoteLoader) create(ctx context.Context, resolved *ResolvedRemote) (Container, error) {
	stop := debugTimer(l.host.logger, "Container acquisition", "entry", resolved.EntryURL)
	defer stop()

	script := l.host.hooks.CreateScript.Run(&ScriptRequest{
		URL:        resolved.EntryURL,
		GlobalName: resolved.EntryGlobalName,
		Attrs:      map[string]string{},
		Fetch:      fetchableURL(resolved.EntryURL),
	})

	container, err := l.host.executor.Execute(ctx, script)
	if err != nil {
		return nil, err
	}
	if err := container.Init(ctx, l.host.shared); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrContainerInit, resolved.EntryURL, err)
	}

	l.host.emitEvent(ctx, EventTypeContainerCreated, map[string]any{
		"entry":  resolved.EntryURL,
		"remote": resolved.Descriptor.Name,
	})
	return container, nil
}

// evictEntry drops cached containers created from a descriptor entry
// reference, matching either the cache key (resolved entry URL) or the
// descriptor entry the container was resolved from.
func (l *remoteLoader) evictEntry(entryRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.containers {
		if key == entryRef || entry.sourceEntry == entryRef {
			delete(l.containers, key)
		}
	}
}

// LoadRemote resolves a remote identifier, ensures the remote's container
// exists (fetching and executing its entry asset at most once), retrieves
// the requested exposed module from the container, and returns its
// exports. Any failure along the way converges on the ErrorLoadRemote
// bail hook; the first plugin supplying a fallback wins, otherwise the
// original error propagates.
func (h *StdHost) LoadRemote(ctx context.Context, id string) (any, error) {
	module, err := h.loadRemote(ctx, id)
	if err == nil {
		return module, nil
	}

	h.logger.Error("Remote load failed", "id", id, "error", err)
	h.emitEvent(ctx, EventTypeRemoteLoadFailed, map[string]any{"id": id, "error": err.Error()})

	fallback, handled, hookErr := h.hooks.ErrorLoadRemote.Run(ctx, &LoadError{ID: id, Error: err, From: "runtime"})
	if hookErr != nil {
		return nil, hookErr
	}
	if handled {
		h.logger.Warn("Remote load recovered by plugin fallback", "id", id)
		return fallback, nil
	}
	return nil, err
}

func (h *StdHost) loadRemote(ctx context.Context, id string) (any, error) {
	resolved, err := h.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	container, err := h.loader.acquire(ctx, resolved)
	if err != nil {
		return nil, err
	}

	factory, err := container.Get(ctx, resolved.ExposedPath)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleFactoryNil, id)
	}
	module, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptExecution, id, err)
	}

	// Data prefetch starts the moment the expose's code is loaded,
	// independent of when a consumer asks for the result.
	h.kickPrefetch(ctx, resolved)

	if err := h.hooks.OnLoad.Run(ctx, &LoadedModule{ID: id, Resolved: resolved, Module: module}); err != nil {
		return nil, err
	}

	h.emitEvent(ctx, EventTypeRemoteLoaded, map[string]any{
		"id":     id,
		"remote": resolved.Descriptor.Name,
		"expose": resolved.ExposedPath,
	})
	return module, nil
}

// kickPrefetch starts the prefetch functions the manifest lists for the
// loaded expose. Prefetch failures stay inside the cache entry; they never
// affect the code load.
func (h *StdHost) kickPrefetch(ctx context.Context, resolved *ResolvedRemote) {
	if len(resolved.Expose.Prefetch) == 0 {
		return
	}
	moduleID := resolved.Descriptor.Name + "/" + resolved.ExposedPath
	for _, functionID := range resolved.Expose.Prefetch {
		if !h.prefetch.HasProducer(moduleID, functionID) {
			h.logger.Debug("No prefetch producer registered", "module", moduleID, "function", functionID)
			continue
		}
		h.prefetch.Kick(ctx, moduleID, functionID, nil)
	}
}
