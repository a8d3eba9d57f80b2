package federation

import (
	"context"
	"fmt"
	"strings"
)

// ResolveRequest is the payload of the BeforeRequest hook. Plugins may
// rewrite the remote name or exposed path before the registry lookup runs.
type ResolveRequest struct {
	// ID is the caller's original identifier, e.g. "shop/Button".
	ID string

	// RemoteName is the first path segment: a registered name or alias.
	RemoteName string

	// ExposedPath is the remainder of the identifier, naming the exposed
	// module. Empty means the resolution targets the remote as a whole
	// (used by the preload planner).
	ExposedPath string
}

// ResolvedRemote is the concrete, loadable form of a remote identifier.
// It is the payload of the AfterResolve hook; plugins may rewrite it, for
// example to redirect the entry URL to a mirror.
type ResolvedRemote struct {
	// Descriptor is the registration the identifier resolved to.
	Descriptor RemoteDescriptor

	// EntryURL is the absolute URL of the remote's bootstrap asset.
	EntryURL string

	// EntryGlobalName is the name the bootstrap asset registers its
	// container factory under.
	EntryGlobalName string

	// ExposedPath is the normalized expose key requested, empty for
	// whole-remote resolutions.
	ExposedPath string

	// Expose carries the manifest's asset lists for the requested expose.
	// Zero for direct script entries.
	Expose ManifestExpose

	// Manifest is the parsed manifest, nil for direct script entries.
	Manifest *Manifest
}

// parseRemoteID splits an identifier into its remote name-or-alias segment
// and its exposed path.
func parseRemoteID(id string) (ResolveRequest, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ResolveRequest{}, fmt.Errorf("%w: empty", ErrInvalidRemoteID)
	}
	name, path, _ := strings.Cut(trimmed, "/")
	if name == "" {
		return ResolveRequest{}, fmt.Errorf("%w: %q", ErrInvalidRemoteID, id)
	}
	return ResolveRequest{ID: trimmed, RemoteName: name, ExposedPath: exposeKey(path)}, nil
}

// Resolve maps a remote identifier to a concrete entry descriptor. The
// identifier's first path segment selects a registered remote by name or
// alias; the remainder selects an exposed module. Manifest-format entries
// are fetched and parsed to obtain the concrete entry asset and expose
// assets. BeforeRequest runs before the lookup and AfterResolve after it,
// each allowing plugins to rewrite the result.
func (h *StdHost) Resolve(ctx context.Context, id string) (*ResolvedRemote, error) {
	req, err := parseRemoteID(id)
	if err != nil {
		return nil, err
	}
	return h.resolveRequest(ctx, req, true)
}

// resolveRequest runs the resolution pipeline. requireExpose distinguishes
// loader resolutions (the expose must exist) from planner resolutions
// (whole-remote, expose optional).
func (h *StdHost) resolveRequest(ctx context.Context, req ResolveRequest, requireExpose bool) (*ResolvedRemote, error) {
	reqPtr, err := h.hooks.BeforeRequest.Run(ctx, &req)
	if err != nil {
		return nil, err
	}
	req = *reqPtr

	descriptor, ok := h.remotes.lookup(req.RemoteName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRemoteNotFound, req.RemoteName)
	}

	resolved := &ResolvedRemote{
		Descriptor:      descriptor,
		EntryURL:        descriptor.Entry,
		EntryGlobalName: descriptor.EntryGlobalName,
		ExposedPath:     req.ExposedPath,
	}

	if descriptor.Format == EntryFormatManifest {
		manifest, err := h.manifests.Fetch(ctx, descriptor.Entry)
		if err != nil {
			return nil, err
		}
		resolved.Manifest = manifest
		resolved.EntryURL = manifest.EntryURL(descriptor.Entry)
		if manifest.MetaData.EntryGlobalName != "" {
			resolved.EntryGlobalName = manifest.MetaData.EntryGlobalName
		}
		if req.ExposedPath != "" {
			expose, ok := manifest.FindExpose(req.ExposedPath)
			if !ok && requireExpose {
				return nil, fmt.Errorf("%w: %s/%s", ErrExposeNotFound, req.RemoteName, req.ExposedPath)
			}
			resolved.Expose = expose
		}
	}
	if resolved.EntryGlobalName == "" {
		resolved.EntryGlobalName = descriptor.Name
	}

	resolved, err = h.hooks.AfterResolve.Run(ctx, resolved)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Resolved remote", "id", req.ID, "entry", resolved.EntryURL, "expose", resolved.ExposedPath)
	h.emitEvent(ctx, EventTypeRemoteResolved, map[string]any{
		"id":    req.ID,
		"name":  descriptor.Name,
		"entry": resolved.EntryURL,
	})
	return resolved, nil
}
