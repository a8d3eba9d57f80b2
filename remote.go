package federation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// EntryFormat describes how a remote's entry reference is interpreted.
type EntryFormat string

const (
	// EntryFormatManifest marks an entry as a manifest URL. The resolver
	// fetches and parses the manifest to obtain the concrete entry asset
	// and the exposed-module list.
	EntryFormatManifest EntryFormat = "manifest"

	// EntryFormatScript marks an entry as a direct entry-asset URL with no
	// manifest indirection.
	EntryFormatScript EntryFormat = "script"

	// EntryFormatAuto lets the registry infer the format from the entry
	// reference: URLs ending in a .json document are treated as manifests.
	EntryFormatAuto EntryFormat = ""
)

// DefaultShareScope is the shared-dependency scope a remote participates
// in when its descriptor does not name one.
const DefaultShareScope = "default"

// RemoteDescriptor declares an independently built and deployed unit the
// host can load. Identity key is Name; Alias is a secondary lookup key.
type RemoteDescriptor struct {
	// Name uniquely identifies the remote within the host.
	Name string

	// Alias is an optional secondary lookup key. It must not collide with
	// any registered name or alias.
	Alias string

	// Entry is the manifest URL or direct entry-asset URL for the remote.
	Entry string

	// ShareScope names the shared-dependency scope the remote participates
	// in. Empty means DefaultShareScope.
	ShareScope string

	// Format tells the resolver how to interpret Entry.
	Format EntryFormat

	// EntryGlobalName is the name the remote's bootstrap asset registers
	// its container factory under. For manifest entries it is usually
	// supplied by the manifest and may be left empty here.
	EntryGlobalName string
}

// normalized returns a copy with defaults applied.
func (d RemoteDescriptor) normalized() RemoteDescriptor {
	if d.ShareScope == "" {
		d.ShareScope = DefaultShareScope
	}
	if d.Format == EntryFormatAuto {
		if strings.HasSuffix(d.Entry, ".json") {
			d.Format = EntryFormatManifest
		} else {
			d.Format = EntryFormatScript
		}
	}
	return d
}

func (d RemoteDescriptor) validate() error {
	if d.Name == "" {
		return ErrRemoteNameEmpty
	}
	if d.Entry == "" {
		return fmt.Errorf("%w: %s", ErrRemoteEntryEmpty, d.Name)
	}
	return nil
}

// remoteRegistry maps remote names (and aliases) to descriptors. It is
// owned by a single host; all mutation goes through RegisterRemotes.
type remoteRegistry struct {
	mu      sync.RWMutex
	remotes map[string]RemoteDescriptor // keyed by name
	aliases map[string]string           // alias -> name
}

func newRemoteRegistry() *remoteRegistry {
	return &remoteRegistry{
		remotes: make(map[string]RemoteDescriptor),
		aliases: make(map[string]string),
	}
}

// lookup finds a descriptor by name or alias.
func (r *remoteRegistry) lookup(nameOrAlias string) (RemoteDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.remotes[nameOrAlias]; ok {
		return d, true
	}
	if name, ok := r.aliases[nameOrAlias]; ok {
		d, ok := r.remotes[name]
		return d, ok
	}
	return RemoteDescriptor{}, false
}

// snapshot returns all registered descriptors.
func (r *remoteRegistry) snapshot() []RemoteDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RemoteDescriptor, 0, len(r.remotes))
	for _, d := range r.remotes {
		out = append(out, d)
	}
	return out
}

// register adds or replaces a descriptor. Without force a name or alias
// collision fails with ErrRemoteConflict and leaves the registry
// untouched. With force the descriptor is swapped atomically; the caller
// is responsible for evicting dependent caches before new resolution
// proceeds. The returned descriptor is the previous registration, if any.
func (r *remoteRegistry) register(d RemoteDescriptor, force bool) (RemoteDescriptor, bool, error) {
	if err := d.validate(); err != nil {
		return RemoteDescriptor{}, false, err
	}
	d = d.normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.remotes[d.Name]
	if existed && !force {
		return RemoteDescriptor{}, false, fmt.Errorf("%w: %s", ErrRemoteConflict, d.Name)
	}
	if name, ok := r.aliases[d.Name]; ok && name != d.Name {
		return RemoteDescriptor{}, false, fmt.Errorf("%w: %s", ErrAliasCollidesName, d.Name)
	}
	if d.Alias != "" {
		if _, ok := r.remotes[d.Alias]; ok && d.Alias != d.Name {
			return RemoteDescriptor{}, false, fmt.Errorf("%w: %s", ErrAliasCollidesName, d.Alias)
		}
		if owner, ok := r.aliases[d.Alias]; ok && owner != d.Name && !force {
			return RemoteDescriptor{}, false, fmt.Errorf("%w: alias %s", ErrRemoteConflict, d.Alias)
		}
	}

	if existed && prev.Alias != "" && prev.Alias != d.Alias {
		delete(r.aliases, prev.Alias)
	}
	r.remotes[d.Name] = d
	if d.Alias != "" {
		r.aliases[d.Alias] = d.Name
	}
	return prev, existed, nil
}

// RegisterRemotes adds remote descriptors to the host. Registering a name
// or alias that already exists fails with ErrRemoteConflict unless force
// is set; forced registration swaps the descriptor and evicts any cached
// container, manifest, and prefetch entries keyed to the old descriptor
// before the next resolution proceeds.
func (h *StdHost) RegisterRemotes(ctx context.Context, remotes []RemoteDescriptor, force bool) error {
	for _, d := range remotes {
		prev, replaced, err := h.remotes.register(d, force)
		if err != nil {
			return err
		}
		d = d.normalized()

		if replaced {
			h.evictRemote(prev)
			h.logger.Warn("Replaced remote registration", "remote", d.Name, "entry", d.Entry)
			h.emitEvent(ctx, EventTypeRemoteReplaced, map[string]any{
				"name":  d.Name,
				"entry": d.Entry,
			})
		} else {
			h.logger.Debug("Registered remote", "remote", d.Name, "entry", d.Entry, "format", string(d.Format))
			h.emitEvent(ctx, EventTypeRemoteRegistered, map[string]any{
				"name":  d.Name,
				"entry": d.Entry,
			})
		}
	}
	return nil
}

// evictRemote purges caches that depend on a replaced descriptor: the
// container for its entry, the cached manifest, and any prefetch entries
// keyed by the remote's name.
func (h *StdHost) evictRemote(prev RemoteDescriptor) {
	h.loader.evictEntry(prev.Entry)
	h.manifests.evict(prev.Entry)
	h.prefetch.DropModulePrefix(prev.Name)
}
