package federation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadUtilAdd(t *testing.T, host *StdHost, id string) func(...int) int {
	t.Helper()
	module, err := host.LoadRemote(context.Background(), id)
	require.NoError(t, err)
	util, ok := module.(map[string]func(...int) int)
	require.True(t, ok, "unexpected module shape %T", module)
	return util["add"]
}

func TestLoadRemoteFromManifest(t *testing.T) {
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	registerUtilContainer(host)

	add := loadUtilAdd(t, host, "remote/util")
	assert.Equal(t, 6, add(1, 2, 3))

	// The entry asset was fetched as part of container acquisition.
	assert.Equal(t, 1, ms.count("/remote-entry.js"))
}

func TestLoadRemoteConcurrentCallersShareOneExecution(t *testing.T) {
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	executions := registerUtilContainer(host)

	const callers = 16
	var wg sync.WaitGroup
	modules := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			modules[i], errs[i] = host.LoadRemote(context.Background(), "remote/util")
		}()
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, modules[i])
	}
	assert.Equal(t, 1, *executions, "script execution must happen at most once per entry")
	assert.Equal(t, 1, ms.count("/remote-entry.js"))
}

func TestLoadRemoteForceReRegistrationTriggersFreshExecution(t *testing.T) {
	ctx := context.Background()
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	executions := registerUtilContainer(host)

	loadUtilAdd(t, host, "remote/util")
	loadUtilAdd(t, host, "remote/util")
	assert.Equal(t, 1, *executions)

	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "remote", Entry: ms.url("/mf-manifest.json")},
	}, true))

	loadUtilAdd(t, host, "remote/util")
	assert.Equal(t, 2, *executions, "forced re-registration must evict the cached container")
}

func TestLoadRemoteErrorBailFallback(t *testing.T) {
	firstSaw := false
	host := newTestHost(t, HostOptions{
		Plugins: []*Plugin{
			{
				Name: "declines",
				ErrorLoadRemote: func(_ context.Context, _ *LoadError) (any, bool, error) {
					firstSaw = true
					return nil, false, nil
				},
			},
			{
				Name: "fallback",
				ErrorLoadRemote: func(_ context.Context, loadErr *LoadError) (any, bool, error) {
					if errors.Is(loadErr.Error, ErrRemoteNotFound) {
						return "fallback-module", true, nil
					}
					return nil, false, nil
				},
			},
		},
	})

	module, err := host.LoadRemote(context.Background(), "ghost/util")
	require.NoError(t, err)
	assert.True(t, firstSaw, "first plugin runs and declines")
	assert.Equal(t, "fallback-module", module)
}

func TestLoadRemoteErrorPropagatesWhenUnhandled(t *testing.T) {
	host := newTestHost(t, HostOptions{})
	_, err := host.LoadRemote(context.Background(), "ghost/util")
	require.ErrorIs(t, err, ErrRemoteNotFound)
}

func TestLoadRemoteMissingEntryGlobal(t *testing.T) {
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	// No factory registered for "remoteEntry".

	_, err := host.LoadRemote(context.Background(), "remote/util")
	require.ErrorIs(t, err, ErrEntryGlobalMissing)
}

func TestLoadRemoteFailedAcquisitionRetries(t *testing.T) {
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})

	attempts := 0
	host.RegisterEntryGlobal("remoteEntry", func(_ context.Context, _ *ScriptRequest) (Container, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("cold start")
		}
		return &MapContainer{Modules: map[string]ModuleFactory{
			"util": func() (any, error) { return map[string]func(...int) int{"add": func(...int) int { return 0 }}, nil },
		}}, nil
	})

	_, err := host.LoadRemote(context.Background(), "remote/util")
	require.ErrorIs(t, err, ErrScriptExecution)

	_, err = host.LoadRemote(context.Background(), "remote/util")
	require.NoError(t, err, "a failed acquisition must not poison the cache")
	assert.Equal(t, 2, attempts)
}

func TestLoadRemoteOnLoadObserves(t *testing.T) {
	ms := newManifestServer(t, testManifest)
	var observed []string
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
		Plugins: []*Plugin{{
			Name: "audit",
			OnLoad: func(_ context.Context, loaded *LoadedModule) error {
				observed = append(observed, loaded.ID)
				return nil
			},
		}},
	})
	registerUtilContainer(host)

	loadUtilAdd(t, host, "remote/util")
	assert.Equal(t, []string{"remote/util"}, observed)
}

func TestLoadRemoteCreateScriptRewrite(t *testing.T) {
	ms := newManifestServer(t, testManifest)
	var sawGlobal string
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
		Plugins: []*Plugin{{
			Name: "integrity",
			CreateScript: func(req *ScriptRequest) *ScriptRequest {
				sawGlobal = req.GlobalName
				req.Attrs["integrity"] = "sha384-demo"
				return req
			},
		}},
	})
	registerUtilContainer(host)

	loadUtilAdd(t, host, "remote/util")
	assert.Equal(t, "remoteEntry", sawGlobal)
}
