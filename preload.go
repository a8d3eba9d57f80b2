package federation

import (
	"context"
	"fmt"
)

// ResourceCategory selects which load-timing classes of assets a preload
// request covers.
type ResourceCategory string

const (
	// ResourceSync covers only the assets a remote needs synchronously.
	ResourceSync ResourceCategory = "sync"

	// ResourceAll covers synchronous and on-demand assets alike.
	ResourceAll ResourceCategory = "all"
)

// PreloadRemoteArgs is one preload request: which remote, which exposes,
// how deep, and which asset classes.
type PreloadRemoteArgs struct {
	// NameOrAlias selects the remote.
	NameOrAlias string

	// Exposes narrows the preload to specific exposed modules. Empty
	// preloads every expose the manifest declares.
	Exposes []string

	// ResourceCategory selects sync-only or all assets. Empty means sync.
	ResourceCategory ResourceCategory

	// DepsRemote recursively includes remotes the manifest declares as
	// dependencies.
	DepsRemote bool

	// Filter excludes asset URLs; returning false drops the URL.
	Filter func(assetURL string) bool

	// PrefetchInterface additionally kicks the data-prefetch functions the
	// manifest lists for the covered exposes.
	PrefetchInterface bool
}

// PreloadAssets is the payload of the GeneratePreloadAssets hook: the
// computed asset closure for one preload request. Plugins may rewrite the
// lists or substitute completely custom asset generation.
type PreloadAssets struct {
	Remote  *ResolvedRemote
	Scripts []string
	Links   []string
}

// LinkRequest is the payload of the CreateLink hook, mirroring
// CreateScript for non-script assets. The planner computes URLs only;
// element creation stays behind the hook.
type LinkRequest struct {
	URL   string
	Rel   string
	As    string
	Attrs map[string]string
}

// PreloadRemote computes the asset closure for each request and issues
// early fetches so later LoadRemote calls hit warm caches. Containers are
// not executed and exposed modules are not retrieved.
func (h *StdHost) PreloadRemote(ctx context.Context, requests []PreloadRemoteArgs) error {
	visited := make(map[string]bool)
	for i := range requests {
		if err := h.preloadOne(ctx, &requests[i], visited); err != nil {
			return err
		}
	}
	return nil
}

func (h *StdHost) preloadOne(ctx context.Context, args *PreloadRemoteArgs, visited map[string]bool) error {
	args, err := h.hooks.BeforePreloadRemote.Run(ctx, args)
	if err != nil {
		return err
	}
	if visited[args.NameOrAlias] {
		return nil
	}
	visited[args.NameOrAlias] = true

	resolved, err := h.resolveRequest(ctx, ResolveRequest{
		ID:         args.NameOrAlias,
		RemoteName: args.NameOrAlias,
	}, false)
	if err != nil {
		return err
	}

	assets := h.collectAssets(resolved, args)
	assets, err = h.hooks.GeneratePreloadAssets.Run(ctx, assets)
	if err != nil {
		return err
	}

	h.emitEvent(ctx, EventTypePreloadPlanned, map[string]any{
		"remote":  resolved.Descriptor.Name,
		"scripts": len(assets.Scripts),
		"links":   len(assets.Links),
	})

	for _, script := range assets.Scripts {
		req := h.hooks.CreateScript.Run(&ScriptRequest{URL: script, Attrs: map[string]string{}, Fetch: fetchableURL(script)})
		if req.Fetch {
			if err := h.manifests.WarmAsset(ctx, req.URL); err != nil {
				h.logger.Warn("Preload fetch failed", "url", req.URL, "error", err)
			}
		}
	}
	for _, link := range assets.Links {
		req := h.hooks.CreateLink.Run(&LinkRequest{URL: link, Rel: "preload", As: "style", Attrs: map[string]string{}})
		if fetchableURL(req.URL) {
			if err := h.manifests.WarmAsset(ctx, req.URL); err != nil {
				h.logger.Warn("Preload fetch failed", "url", req.URL, "error", err)
			}
		}
	}

	if args.PrefetchInterface && resolved.Manifest != nil {
		h.kickManifestPrefetch(ctx, resolved, args)
	}

	if args.DepsRemote && resolved.Manifest != nil {
		for _, dep := range resolved.Manifest.Remotes {
			depArgs := PreloadRemoteArgs{
				NameOrAlias:       dep.Name,
				ResourceCategory:  args.ResourceCategory,
				DepsRemote:        true,
				Filter:            args.Filter,
				PrefetchInterface: args.PrefetchInterface,
			}
			if err := h.preloadOne(ctx, &depArgs, visited); err != nil {
				// A dependent remote missing from the registry is not a
				// reason to abandon the primary preload.
				h.logger.Warn("Dependent remote preload skipped", "remote", dep.Name, "error", err)
			}
		}
	}
	return nil
}

// collectAssets computes the URL closure for a request: the entry asset
// plus per-expose js and css lists, filtered by category, expose
// selection, and the caller's predicate.
func (h *StdHost) collectAssets(resolved *ResolvedRemote, args *PreloadRemoteArgs) *PreloadAssets {
	assets := &PreloadAssets{Remote: resolved}
	keep := func(u string) bool { return args.Filter == nil || args.Filter(u) }

	if keep(resolved.EntryURL) {
		assets.Scripts = append(assets.Scripts, resolved.EntryURL)
	}
	if resolved.Manifest == nil {
		return assets
	}

	wanted := make(map[string]bool, len(args.Exposes))
	for _, e := range args.Exposes {
		wanted[exposeKey(e)] = true
	}

	manifestURL := resolved.Descriptor.Entry
	for _, expose := range resolved.Manifest.Exposes {
		if len(wanted) > 0 && !wanted[exposeKey(expose.Path)] {
			continue
		}
		groups := [][]string{expose.Assets.JS.Sync}
		linkGroups := [][]string{expose.Assets.CSS.Sync}
		if args.ResourceCategory == ResourceAll {
			groups = append(groups, expose.Assets.JS.Async)
			linkGroups = append(linkGroups, expose.Assets.CSS.Async)
		}
		for _, group := range groups {
			for _, asset := range group {
				if u := resolved.Manifest.AssetURL(manifestURL, asset); keep(u) {
					assets.Scripts = append(assets.Scripts, u)
				}
			}
		}
		for _, group := range linkGroups {
			for _, asset := range group {
				if u := resolved.Manifest.AssetURL(manifestURL, asset); keep(u) {
					assets.Links = append(assets.Links, u)
				}
			}
		}
	}
	return assets
}

// kickManifestPrefetch starts the prefetch functions declared for the
// covered exposes, when their producers are already registered.
func (h *StdHost) kickManifestPrefetch(ctx context.Context, resolved *ResolvedRemote, args *PreloadRemoteArgs) {
	wanted := make(map[string]bool, len(args.Exposes))
	for _, e := range args.Exposes {
		wanted[exposeKey(e)] = true
	}
	for _, expose := range resolved.Manifest.Exposes {
		if len(wanted) > 0 && !wanted[exposeKey(expose.Path)] {
			continue
		}
		moduleID := fmt.Sprintf("%s/%s", resolved.Descriptor.Name, exposeKey(expose.Path))
		for _, functionID := range expose.Prefetch {
			if h.prefetch.HasProducer(moduleID, functionID) {
				h.prefetch.Kick(ctx, moduleID, functionID, nil)
			}
		}
	}
}
