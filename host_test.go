package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostEndToEndLoad(t *testing.T) {
	ms := newManifestServer(t, testManifest)

	host := newTestHost(t, HostOptions{
		Name:    "storefront",
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	registerUtilContainer(host)

	add := loadUtilAdd(t, host, "remote/util")
	assert.Equal(t, 6, add(1, 2, 3))

	assert.Equal(t, "storefront", host.Name())
	assert.NotEmpty(t, host.InstanceID())
}

func TestHostDefaults(t *testing.T) {
	host := newTestHost(t, HostOptions{})
	assert.Equal(t, "federation-host", host.Name())
	assert.Equal(t, StrategyVersionFirst, host.shareStrategy)
}

func TestHostsShareNoState(t *testing.T) {
	ctx := context.Background()
	ms := newManifestServer(t, testManifest)

	first := newTestHost(t, HostOptions{
		Name:    "first",
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	second := newTestHost(t, HostOptions{Name: "second"})

	registerUtilContainer(first)
	registerUtilContainer(second)

	// The remote registered on the first host is invisible to the second.
	_, err := second.LoadRemote(ctx, "remote/util")
	require.ErrorIs(t, err, ErrRemoteNotFound)

	_, err = first.LoadRemote(ctx, "remote/util")
	require.NoError(t, err)

	assert.NotEqual(t, first.InstanceID(), second.InstanceID())
}

func TestHostEntryGlobalsArePerHost(t *testing.T) {
	ctx := context.Background()
	ms := newManifestServer(t, testManifest)

	first := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	second := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})
	registerUtilContainer(first)

	_, err := first.LoadRemote(ctx, "remote/util")
	require.NoError(t, err)

	_, err = second.LoadRemote(ctx, "remote/util")
	require.ErrorIs(t, err, ErrEntryGlobalMissing)
}

func TestRegisterPluginsValidation(t *testing.T) {
	host := newTestHost(t, HostOptions{})

	err := host.RegisterPlugins(&Plugin{})
	require.ErrorIs(t, err, ErrPluginNameEmpty)

	require.NoError(t, host.RegisterPlugins(nil, &Plugin{Name: "noop"}))
}

func TestObserverErrorsDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	require.NoError(t, host.RegisterObserver(NewFunctionalObserver("broken", func(_ context.Context, _ CloudEvent) error {
		return errors.New("observer exploded")
	})))

	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "shop", Entry: "memory://shop.js"},
	}, false))
}

func TestObserverEventFiltering(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	var seen []string
	require.NoError(t, host.RegisterObserver(NewFunctionalObserver("filtered", func(_ context.Context, e CloudEvent) error {
		seen = append(seen, e.Type())
		return nil
	}), EventTypeRemoteResolved))

	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "shop", Entry: "memory://shop.js"},
	}, false))
	_, err := host.Resolve(ctx, "shop/cart")
	require.NoError(t, err)

	assert.Equal(t, []string{EventTypeRemoteResolved}, seen)
}

func TestUnregisterObserverStopsDelivery(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	calls := 0
	obs := NewFunctionalObserver("counting", func(_ context.Context, _ CloudEvent) error {
		calls++
		return nil
	})
	require.NoError(t, host.RegisterObserver(obs))
	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "a", Entry: "memory://a.js"},
	}, false))
	require.Positive(t, calls)

	before := calls
	require.NoError(t, host.UnregisterObserver(obs))
	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "b", Entry: "memory://b.js"},
	}, false))
	assert.Equal(t, before, calls)
}
