package federation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// ShareStrategy selects how the scope manager picks among candidate
// versions of a shared package.
type ShareStrategy string

const (
	// StrategyVersionFirst picks the highest semantic version satisfying
	// the consumers' required-version constraints.
	StrategyVersionFirst ShareStrategy = "version-first"

	// StrategyLoadedFirst prefers a candidate that has already been
	// materialized, falling back to version comparison among the rest.
	StrategyLoadedFirst ShareStrategy = "loaded-first"
)

// ShareConfig carries the negotiation constraints a participant declares
// for a shared package.
type ShareConfig struct {
	// Singleton requires exactly one active instance of the package
	// within the scope, regardless of how many versions are registered.
	Singleton bool

	// RequiredVersion is a semver constraint ("^1.2.0", "~2.1", ">=1, <3")
	// the chosen version must satisfy. Empty accepts any version.
	RequiredVersion string

	// Strategy overrides the scope manager's default selection strategy.
	Strategy ShareStrategy
}

// SharedGetter materializes a shared package's module. Getters run at most
// once per record; the scope manager memoizes the result.
type SharedGetter func() (any, error)

// SharedRecord is one registered version of a shared package within a
// scope. At most one record exists per (scope, package, version).
type SharedRecord struct {
	// Scope is the share scope the record belongs to.
	Scope string

	// Package is the shared package name.
	Package string

	// Version is the concrete version this record provides.
	Version string

	// Lib materializes the module. It is executed at most once.
	Lib SharedGetter

	// ShareConfig carries the registrant's negotiation constraints.
	ShareConfig ShareConfig

	// From names the registrant (host or remote), for diagnostics.
	From string

	// loading memoizes materialization. Nil until the record wins a
	// resolution; concurrent loads converge on the same future.
	loading *future[any]
}

// Loaded reports whether the record's module has been materialized.
func (r *SharedRecord) Loaded() bool {
	return r.loading != nil && r.loading.resolvedOK()
}

// ShareResolver picks the winning record from a candidate set, overriding
// the configured strategy entirely. Returning nil falls back to the
// strategy.
type ShareResolver func(candidates []*SharedRecord) *SharedRecord

// LoadShareRequest is the payload of the BeforeLoadShare hook. Plugins may
// rewrite the package name, scope, or constraint before lookup.
type LoadShareRequest struct {
	Package string
	Scope   string

	// ShareConfig optionally overrides the consumer-side constraints.
	ShareConfig *ShareConfig

	// Resolver optionally overrides strategy selection outright.
	Resolver ShareResolver
}

// ShareResolution is the payload of the ResolveShare hook, running after
// strategy selection and before materialization. Plugins may substitute
// the resolver to force a particular instance.
type ShareResolution struct {
	Package    string
	Scope      string
	Candidates []*SharedRecord
	Resolver   ShareResolver
}

// LoadShareOptions configures a single LoadShare call.
type LoadShareOptions struct {
	// Scope selects the share scope, defaulting to DefaultShareScope.
	Scope string

	// CustomShareInfo overrides the consumer-side constraints.
	CustomShareInfo *ShareConfig

	// Resolver, when set, is used verbatim to pick the winning record.
	Resolver ShareResolver
}

// SharedScope is a host-wide table of shared dependency records keyed by
// scope, package name, and version. The only writers are Register (during
// host init and container init) and the materialization path in LoadShare.
type SharedScope struct {
	mu     sync.RWMutex
	scopes map[string]map[string]map[string]*SharedRecord
}

// NewSharedScope creates an empty shared scope table.
func NewSharedScope() *SharedScope {
	return &SharedScope{scopes: make(map[string]map[string]map[string]*SharedRecord)}
}

// Register adds a record to the scope table. Registering a version that
// already exists in the scope keeps the first registration; shares are
// never silently replaced.
func (s *SharedScope) Register(record *SharedRecord) error {
	if record.Package == "" {
		return ErrSharedPackageNotFound
	}
	if record.Lib == nil {
		return fmt.Errorf("%w: %s", ErrSharedGetterNil, record.Package)
	}
	if record.Scope == "" {
		record.Scope = DefaultShareScope
	}
	if _, err := semver.NewVersion(record.Version); err != nil {
		return fmt.Errorf("%w: %s@%s", ErrSharedVersionInvalid, record.Package, record.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	packages, ok := s.scopes[record.Scope]
	if !ok {
		packages = make(map[string]map[string]*SharedRecord)
		s.scopes[record.Scope] = packages
	}
	versions, ok := packages[record.Package]
	if !ok {
		versions = make(map[string]*SharedRecord)
		packages[record.Package] = versions
	}
	if _, exists := versions[record.Version]; exists {
		return nil
	}
	versions[record.Version] = record
	return nil
}

// Candidates returns all records for a package within a scope.
func (s *SharedScope) Candidates(scope, pkg string) []*SharedRecord {
	if scope == "" {
		scope = DefaultShareScope
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.scopes[scope][pkg]
	out := make([]*SharedRecord, 0, len(versions))
	for _, r := range versions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Reset drops every record. It exists for explicit force-reset only;
// normal operation never deletes records.
func (s *SharedScope) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = make(map[string]map[string]map[string]*SharedRecord)
}

// LoadShare negotiates which copy of a shared package the caller executes
// against and materializes it at most once. Concurrent calls for the same
// record converge on one in-flight materialization. Singleton conflicts
// across incompatible major versions are reported through the warn log and
// the observer bus but never abort the load.
func (h *StdHost) LoadShare(ctx context.Context, pkg string, opts *LoadShareOptions) (SharedGetter, error) {
	if opts == nil {
		opts = &LoadShareOptions{}
	}
	req := &LoadShareRequest{
		Package:     pkg,
		Scope:       opts.Scope,
		ShareConfig: opts.CustomShareInfo,
		Resolver:    opts.Resolver,
	}
	req, err := h.hooks.BeforeLoadShare.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Scope == "" {
		req.Scope = DefaultShareScope
	}

	candidates := h.shared.Candidates(req.Scope, req.Package)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s (scope %s)", ErrSharedPackageNotFound, req.Package, req.Scope)
	}

	resolution := h.hooks.ResolveShare.Run(&ShareResolution{
		Package:    req.Package,
		Scope:      req.Scope,
		Candidates: candidates,
		Resolver:   req.Resolver,
	})

	var winner *SharedRecord
	if resolution.Resolver != nil {
		winner = resolution.Resolver(resolution.Candidates)
	}
	if winner == nil {
		winner = h.pickShared(resolution.Candidates, req.ShareConfig)
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: %s (scope %s)", ErrSharedPackageNotFound, req.Package, req.Scope)
	}

	h.reportSingletonConflict(ctx, req, resolution.Candidates, winner)

	module, err := h.materializeShared(ctx, winner)
	if err != nil {
		return nil, err
	}

	h.emitEvent(ctx, EventTypeShareResolved, map[string]any{
		"package": winner.Package,
		"scope":   winner.Scope,
		"version": winner.Version,
		"from":    winner.From,
	})
	return func() (any, error) { return module, nil }, nil
}

// pickShared applies the configured strategy to the candidate set.
func (h *StdHost) pickShared(candidates []*SharedRecord, override *ShareConfig) *SharedRecord {
	strategy := h.shareStrategy
	if override != nil && override.Strategy != "" {
		strategy = override.Strategy
	}

	if strategy == StrategyLoadedFirst {
		var loaded *SharedRecord
		for _, c := range candidates {
			if !c.Loaded() {
				continue
			}
			if loaded == nil || semverLess(loaded.Version, c.Version) {
				loaded = c
			}
		}
		if loaded != nil {
			return loaded
		}
	}

	constraint := aggregateConstraint(candidates, override)
	var best *SharedRecord
	var bestAny *SharedRecord
	for _, c := range candidates {
		v, err := semver.NewVersion(c.Version)
		if err != nil {
			continue
		}
		if bestAny == nil || semverLess(bestAny.Version, c.Version) {
			bestAny = c
		}
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		if best == nil || semverLess(best.Version, c.Version) {
			best = c
		}
	}
	if best == nil {
		// No candidate satisfies the constraints; serve the highest
		// version rather than failing the load.
		if bestAny != nil {
			h.logger.Warn("No shared candidate satisfies required version, using highest",
				"package", bestAny.Package, "version", bestAny.Version)
		}
		return bestAny
	}
	return best
}

// aggregateConstraint merges the consumers' required-version constraints.
func aggregateConstraint(candidates []*SharedRecord, override *ShareConfig) *semver.Constraints {
	required := ""
	if override != nil && override.RequiredVersion != "" {
		required = override.RequiredVersion
	} else {
		for _, c := range candidates {
			if c.ShareConfig.RequiredVersion != "" {
				required = c.ShareConfig.RequiredVersion
				break
			}
		}
	}
	if required == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(required)
	if err != nil {
		return nil
	}
	return constraint
}

func semverLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}

// reportSingletonConflict surfaces the stale/conflicting singleton
// condition: a singleton participant alongside more than one incompatible
// major version. The load proceeds with the chosen record; the conflict is
// reported, never thrown.
func (h *StdHost) reportSingletonConflict(ctx context.Context, req *LoadShareRequest, candidates []*SharedRecord, winner *SharedRecord) {
	singleton := false
	majors := make(map[uint64]bool)
	for _, c := range candidates {
		if c.ShareConfig.Singleton {
			singleton = true
		}
		if v, err := semver.NewVersion(c.Version); err == nil {
			majors[v.Major()] = true
		}
	}
	if !singleton || len(majors) <= 1 {
		return
	}

	h.logger.Warn("Singleton shared package has incompatible major versions registered",
		"package", req.Package, "scope", req.Scope, "chosen", winner.Version, "majors", len(majors))
	h.emitEvent(ctx, EventTypeShareConflict, map[string]any{
		"package": req.Package,
		"scope":   req.Scope,
		"chosen":  winner.Version,
	})
}

// materializeShared executes the record's getter at most once per host
// lifetime, memoized by the record's loading future.
func (h *StdHost) materializeShared(ctx context.Context, record *SharedRecord) (any, error) {
	h.shared.mu.Lock()
	f := record.loading
	if f == nil {
		f = newFuture[any]()
		record.loading = f
		h.shared.mu.Unlock()

		module, err := record.Lib()
		f.complete(module, err)
		return module, err
	}
	h.shared.mu.Unlock()
	return f.wait(ctx)
}
