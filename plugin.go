package federation

import (
	"context"
	"fmt"
)

// Plugin is a named bundle of hook handlers. Every field is optional;
// RegisterPlugins wires each non-nil handler into the matching hook in
// plugin order. The set of hook names and payload shapes here is the
// plugin ABI.
type Plugin struct {
	// Name identifies the plugin in logs and diagnostics.
	Name string

	// BeforeRequest rewrites resolve requests before registry lookup.
	BeforeRequest func(ctx context.Context, req *ResolveRequest) (*ResolveRequest, error)

	// AfterResolve rewrites the resolved remote, e.g. enriching it from
	// an external source.
	AfterResolve func(ctx context.Context, resolved *ResolvedRemote) (*ResolvedRemote, error)

	// BeforeLoadShare rewrites shared-scope load requests.
	BeforeLoadShare func(ctx context.Context, req *LoadShareRequest) (*LoadShareRequest, error)

	// ResolveShare may substitute the share resolver before
	// materialization.
	ResolveShare func(resolution *ShareResolution) *ShareResolution

	// CreateScript rewrites the injectable script descriptor for an entry
	// asset.
	CreateScript func(req *ScriptRequest) *ScriptRequest

	// CreateLink rewrites preload link descriptors.
	CreateLink func(req *LinkRequest) *LinkRequest

	// OnLoad observes successfully loaded modules. It cannot alter the
	// returned module.
	OnLoad func(ctx context.Context, loaded *LoadedModule) error

	// ErrorLoadRemote supplies a fallback for a failed load. The first
	// plugin reporting handled=true wins.
	ErrorLoadRemote func(ctx context.Context, loadErr *LoadError) (any, bool, error)

	// BeforePreloadRemote rewrites preload requests.
	BeforePreloadRemote func(ctx context.Context, args *PreloadRemoteArgs) (*PreloadRemoteArgs, error)

	// GeneratePreloadAssets rewrites or replaces the computed asset
	// closure for a preload request.
	GeneratePreloadAssets func(ctx context.Context, assets *PreloadAssets) (*PreloadAssets, error)
}

// RegisterPlugins appends each plugin's handlers to the host's hook
// pipelines. Registration is monotonic for the host's lifetime; there is
// no removal API.
func (h *StdHost) RegisterPlugins(plugins ...*Plugin) error {
	for _, p := range plugins {
		if p == nil {
			continue
		}
		if p.Name == "" {
			return ErrPluginNameEmpty
		}
		if p.BeforeRequest != nil {
			h.hooks.BeforeRequest.Register(p.BeforeRequest)
		}
		if p.AfterResolve != nil {
			h.hooks.AfterResolve.Register(p.AfterResolve)
		}
		if p.BeforeLoadShare != nil {
			h.hooks.BeforeLoadShare.Register(p.BeforeLoadShare)
		}
		if p.ResolveShare != nil {
			h.hooks.ResolveShare.Register(p.ResolveShare)
		}
		if p.CreateScript != nil {
			h.hooks.CreateScript.Register(p.CreateScript)
		}
		if p.CreateLink != nil {
			h.hooks.CreateLink.Register(p.CreateLink)
		}
		if p.OnLoad != nil {
			h.hooks.OnLoad.Register(p.OnLoad)
		}
		if p.ErrorLoadRemote != nil {
			h.hooks.ErrorLoadRemote.Register(p.ErrorLoadRemote)
		}
		if p.BeforePreloadRemote != nil {
			h.hooks.BeforePreloadRemote.Register(p.BeforePreloadRemote)
		}
		if p.GeneratePreloadAssets != nil {
			h.hooks.GeneratePreloadAssets.Register(p.GeneratePreloadAssets)
		}
		h.logger.Debug("Registered plugin", "plugin", p.Name)
	}
	return nil
}

// HostHooks is the host's named hook surface. Plugins usually register
// through RegisterPlugins; advanced integrations may register ordered
// handlers on individual hooks directly.
type HostHooks struct {
	BeforeRequest         AsyncWaterfallHook[*ResolveRequest]
	AfterResolve          AsyncWaterfallHook[*ResolvedRemote]
	BeforeLoadShare       AsyncWaterfallHook[*LoadShareRequest]
	ResolveShare          WaterfallHook[*ShareResolution]
	CreateScript          WaterfallHook[*ScriptRequest]
	CreateLink            WaterfallHook[*LinkRequest]
	OnLoad                AsyncHook[*LoadedModule]
	ErrorLoadRemote       AsyncBailHook[*LoadError, any]
	BeforePreloadRemote   AsyncWaterfallHook[*PreloadRemoteArgs]
	GeneratePreloadAssets AsyncWaterfallHook[*PreloadAssets]
}

func (hh *HostHooks) String() string {
	return fmt.Sprintf("hooks{beforeRequest:%d afterResolve:%d errorLoadRemote:%d}",
		hh.BeforeRequest.list.len(), hh.AfterResolve.list.len(), hh.ErrorLoadRemote.list.len())
}
