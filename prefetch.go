package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultFunctionID names the prefetch function an expose registers when
// the build emitted a single unnamed producer.
const DefaultFunctionID = "default"

// PrefetchStatus describes the state of a cache entry's result.
type PrefetchStatus string

const (
	PrefetchPending  PrefetchStatus = "pending"
	PrefetchResolved PrefetchStatus = "resolved"
	PrefetchRejected PrefetchStatus = "rejected"
)

// PrefetchFunc produces a prefetched value. Producers start executing the
// instant the owning expose's code is loaded, decoupled from when a
// consumer reads the result.
type PrefetchFunc func(ctx context.Context, params any) (any, error)

// PrefetchProducer is the registered, build-time-tagged shape of a
// prefetch function: either a single immediate value or a keyed bundle of
// independently resolving deferred values. The tag is explicit; the
// runtime never probes return values for markers.
type PrefetchProducer struct {
	// Immediate produces one value the whole consumer blocks on.
	Immediate PrefetchFunc

	// Deferred produces a keyed bundle; each key resolves independently
	// and a consumer can select one without waiting on its siblings.
	Deferred map[string]PrefetchFunc
}

// prefetchKey identifies a cache entry.
type prefetchKey struct {
	module   string
	function string
	deferKey string
}

func (k prefetchKey) String() string {
	if k.deferKey == "" {
		return k.module + "#" + k.function
	}
	return k.module + "#" + k.function + "#" + k.deferKey
}

// PrefetchEntry associates a prefetch key with an in-flight or settled
// result. Version increments on every refetch so stale resolutions can be
// discarded by the consumer regardless of arrival order.
type PrefetchEntry struct {
	// ModuleID, FunctionID, and DeferID identify the producing function.
	ModuleID   string
	FunctionID string
	DeferID    string

	// Params are the arguments the producer ran with.
	Params any

	// Version is strictly increasing per key across refetches.
	Version int

	result *future[any]
}

// Result blocks until the entry settles, returning the produced value or
// the producer's error. The returned future reference is stable: two reads
// of the same entry observe the same in-flight result.
func (e *PrefetchEntry) Result(ctx context.Context) (any, error) {
	value, err := e.result.wait(ctx)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Status reports the entry's settlement state without blocking.
func (e *PrefetchEntry) Status() PrefetchStatus {
	if !e.result.resolved() {
		return PrefetchPending
	}
	if e.result.err != nil {
		return PrefetchRejected
	}
	return PrefetchResolved
}

// PrefetchCache associates prefetch keys with in-flight or resolved
// results. Entries are created on first use, replaced (with an incremented
// version) on refetch, and dropped only by the external invalidation
// paths: a consumer unmount signal or a forced remote re-registration. The
// cache never expires entries on a timer.
type PrefetchCache struct {
	host *StdHost

	mu        sync.Mutex
	producers map[string]map[string]*PrefetchProducer // module -> function
	entries   map[prefetchKey]*PrefetchEntry
	versions  map[prefetchKey]int
}

func newPrefetchCache(host *StdHost) *PrefetchCache {
	return &PrefetchCache{
		host:      host,
		producers: make(map[string]map[string]*PrefetchProducer),
		entries:   make(map[prefetchKey]*PrefetchEntry),
		versions:  make(map[prefetchKey]int),
	}
}

// RegisterProducer registers an expose's prefetch function under its
// build-emitted function ID. Remote units call this from their container
// factories; hosts may also register producers directly.
func (c *PrefetchCache) RegisterProducer(moduleID, functionID string, producer PrefetchProducer) {
	if functionID == "" {
		functionID = DefaultFunctionID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	functions, ok := c.producers[moduleID]
	if !ok {
		functions = make(map[string]*PrefetchProducer)
		c.producers[moduleID] = functions
	}
	functions[functionID] = &producer
}

// HasProducer reports whether a producer is registered for the key.
func (c *PrefetchCache) HasProducer(moduleID, functionID string) bool {
	if functionID == "" {
		functionID = DefaultFunctionID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.producers[moduleID][functionID]
	return ok
}

// Get returns the cache entry for an immediate producer, invoking the
// producer at most once per key until a refetch. Both the entry and its
// underlying result are reference-stable across calls.
func (c *PrefetchCache) Get(ctx context.Context, moduleID, functionID string, params any) (*PrefetchEntry, error) {
	entries, err := c.fetch(ctx, moduleID, functionID, params, false)
	if err != nil {
		return nil, err
	}
	return entries[""], nil
}

// GetDeferred returns one entry of a deferred producer's keyed bundle,
// selected by deferID, without waiting on its siblings.
func (c *PrefetchCache) GetDeferred(ctx context.Context, moduleID, functionID, deferID string, params any) (*PrefetchEntry, error) {
	entries, err := c.fetch(ctx, moduleID, functionID, params, false)
	if err != nil {
		return nil, err
	}
	entry, ok := entries[deferID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeferKeyNotFound, deferID)
	}
	return entry, nil
}

// Refetch discards the cached result for a key and invokes the producer
// again with new params. The replacement entries carry a strictly greater
// version; consumers holding a stale entry must prefer the higher version
// regardless of which resolution arrives first.
func (c *PrefetchCache) Refetch(ctx context.Context, moduleID, functionID string, params any) (*PrefetchEntry, error) {
	entries, err := c.fetch(ctx, moduleID, functionID, params, true)
	if err != nil {
		return nil, err
	}
	c.host.emitEvent(ctx, EventTypePrefetchRefetched, map[string]any{
		"module": moduleID, "function": functionID,
	})
	if e, ok := entries[""]; ok {
		return e, nil
	}
	// Deferred bundle: callers pick entries back up through GetDeferred.
	return nil, nil
}

// Kick starts a producer without waiting for its result. The loader calls
// this the moment an expose's code finishes loading.
func (c *PrefetchCache) Kick(ctx context.Context, moduleID, functionID string, params any) {
	if _, err := c.fetch(ctx, moduleID, functionID, params, false); err != nil {
		c.host.logger.Debug("Prefetch kick skipped", "module", moduleID, "function", functionID, "error", err)
	}
}

// fetch looks up or creates the entries for a key. Deferred producers
// yield one entry per defer key; immediate producers yield a single entry
// under the empty defer key.
func (c *PrefetchCache) fetch(ctx context.Context, moduleID, functionID string, params any, refetch bool) (map[string]*PrefetchEntry, error) {
	if functionID == "" {
		functionID = DefaultFunctionID
	}

	c.mu.Lock()
	producer, ok := c.producers[moduleID][functionID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s#%s", ErrPrefetchNotFound, moduleID, functionID)
	}

	deferIDs := []string{""}
	if producer.Deferred != nil {
		deferIDs = deferIDs[:0]
		for deferID := range producer.Deferred {
			deferIDs = append(deferIDs, deferID)
		}
	}

	out := make(map[string]*PrefetchEntry, len(deferIDs))
	var started []*PrefetchEntry
	for _, deferID := range deferIDs {
		key := prefetchKey{module: moduleID, function: functionID, deferKey: deferID}
		entry, exists := c.entries[key]
		if exists && !refetch {
			out[deferID] = entry
			continue
		}
		c.versions[key]++
		entry = &PrefetchEntry{
			ModuleID:   moduleID,
			FunctionID: functionID,
			DeferID:    deferID,
			Params:     params,
			Version:    c.versions[key],
			result:     newFuture[any](),
		}
		c.entries[key] = entry
		out[deferID] = entry
		started = append(started, entry)
	}
	c.mu.Unlock()

	for _, entry := range started {
		fn := producer.Immediate
		if producer.Deferred != nil {
			fn = producer.Deferred[entry.DeferID]
		}
		go c.run(ctx, entry, fn)
	}
	return out, nil
}

// run executes a producer and settles its entry. Producer errors reject
// only the cache entry; code loading is an independent failure domain.
func (c *PrefetchCache) run(ctx context.Context, entry *PrefetchEntry, fn PrefetchFunc) {
	stop := debugTimer(c.host.logger, "Prefetch", "module", entry.ModuleID, "function", entry.FunctionID)
	defer stop()

	c.host.emitEvent(ctx, EventTypePrefetchStarted, map[string]any{
		"module": entry.ModuleID, "function": entry.FunctionID, "defer": entry.DeferID, "version": entry.Version,
	})

	if fn == nil {
		entry.result.complete(nil, fmt.Errorf("%w: %s#%s", ErrPrefetchNotFound, entry.ModuleID, entry.FunctionID))
		return
	}
	value, err := fn(ctx, entry.Params)
	if err != nil {
		err = fmt.Errorf("%w: %s#%s: %w", ErrPrefetchFunction, entry.ModuleID, entry.FunctionID, err)
		entry.result.complete(nil, err)
		c.host.emitEvent(ctx, EventTypePrefetchRejected, map[string]any{
			"module": entry.ModuleID, "function": entry.FunctionID, "error": err.Error(),
		})
		return
	}
	entry.result.complete(value, nil)
	c.host.emitEvent(ctx, EventTypePrefetchResolved, map[string]any{
		"module": entry.ModuleID, "function": entry.FunctionID, "version": entry.Version,
	})
}

// Latest returns the current entry for a key without invoking anything.
// Consumers use it to discard stale resolutions by version comparison.
func (c *PrefetchCache) Latest(moduleID, functionID, deferID string) (*PrefetchEntry, bool) {
	if functionID == "" {
		functionID = DefaultFunctionID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[prefetchKey{module: moduleID, function: functionID, deferKey: deferID}]
	return entry, ok
}

// Drop removes all entries for a module. This is the consumer-unmount
// invalidation path; the cache holds no UI lifecycle knowledge of its own.
func (c *PrefetchCache) Drop(moduleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.module == moduleID {
			delete(c.entries, key)
		}
	}
}

// DropModulePrefix removes entries and producers for every module ID under
// a remote-name prefix. Forced re-registration uses it to purge prefetch
// state tied to a replaced descriptor.
func (c *PrefetchCache) DropModulePrefix(remoteName string) {
	prefix := remoteName + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.module == remoteName || strings.HasPrefix(key.module, prefix) {
			delete(c.entries, key)
		}
	}
	for moduleID := range c.producers {
		if moduleID == remoteName || strings.HasPrefix(moduleID, prefix) {
			delete(c.producers, moduleID)
		}
	}
}

// PrefetchHandle is the consumer-facing surface of one prefetch key: a
// settled-or-pending result plus a refetch trigger. UI bindings depend on
// nothing else from the cache.
type PrefetchHandle struct {
	cache      *PrefetchCache
	moduleID   string
	functionID string
	deferID    string
}

// Handle returns the consumer-facing handle for a prefetch key.
func (c *PrefetchCache) Handle(moduleID, functionID, deferID string) *PrefetchHandle {
	if functionID == "" {
		functionID = DefaultFunctionID
	}
	return &PrefetchHandle{cache: c, moduleID: moduleID, functionID: functionID, deferID: deferID}
}

// Result returns the current entry for the handle's key, invoking the
// producer if it has not run yet.
func (h *PrefetchHandle) Result(ctx context.Context, params any) (*PrefetchEntry, error) {
	if h.deferID != "" {
		return h.cache.GetDeferred(ctx, h.moduleID, h.functionID, h.deferID, params)
	}
	return h.cache.Get(ctx, h.moduleID, h.functionID, params)
}

// Refetch re-invokes the producer with new params, installing entries with
// a strictly greater version.
func (h *PrefetchHandle) Refetch(ctx context.Context, params any) {
	_, _ = h.cache.Refetch(ctx, h.moduleID, h.functionID, params)
}
