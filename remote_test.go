package federation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRemotesConflictWithoutForce(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	original := RemoteDescriptor{Name: "shop", Entry: "memory://shop-entry.js"}
	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{original}, false))

	err := host.RegisterRemotes(ctx, []RemoteDescriptor{{Name: "shop", Entry: "memory://other.js"}}, false)
	require.ErrorIs(t, err, ErrRemoteConflict)

	// The existing descriptor is untouched.
	got, ok := host.remotes.lookup("shop")
	require.True(t, ok)
	assert.Equal(t, "memory://shop-entry.js", got.Entry)
}

func TestRegisterRemotesAliasLookup(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "shop", Alias: "store", Entry: "memory://shop-entry.js"},
	}, false))

	byName, ok := host.remotes.lookup("shop")
	require.True(t, ok)
	byAlias, ok := host.remotes.lookup("store")
	require.True(t, ok)
	assert.Equal(t, byName, byAlias)
}

func TestRegisterRemotesAliasCollidesWithName(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "shop", Entry: "memory://shop-entry.js"},
	}, false))

	err := host.RegisterRemotes(ctx, []RemoteDescriptor{
		{Name: "checkout", Alias: "shop", Entry: "memory://checkout.js"},
	}, false)
	require.ErrorIs(t, err, ErrAliasCollidesName)
}

func TestRegisterRemotesValidation(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	err := host.RegisterRemotes(ctx, []RemoteDescriptor{{Entry: "memory://x.js"}}, false)
	require.ErrorIs(t, err, ErrRemoteNameEmpty)

	err = host.RegisterRemotes(ctx, []RemoteDescriptor{{Name: "shop"}}, false)
	require.ErrorIs(t, err, ErrRemoteEntryEmpty)
}

func TestRegisterRemotesForceReplacesAndEmitsEvent(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{})

	var events []string
	require.NoError(t, host.RegisterObserver(NewFunctionalObserver("recorder", func(_ context.Context, e CloudEvent) error {
		events = append(events, e.Type())
		return nil
	}), EventTypeRemoteRegistered, EventTypeRemoteReplaced))

	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{{Name: "shop", Entry: "memory://v1.js"}}, false))
	require.NoError(t, host.RegisterRemotes(ctx, []RemoteDescriptor{{Name: "shop", Entry: "memory://v2.js"}}, true))

	got, ok := host.remotes.lookup("shop")
	require.True(t, ok)
	assert.Equal(t, "memory://v2.js", got.Entry)
	assert.Equal(t, []string{EventTypeRemoteRegistered, EventTypeRemoteReplaced}, events)
}

func TestEntryFormatInference(t *testing.T) {
	manifest := RemoteDescriptor{Name: "a", Entry: "https://cdn/x/mf-manifest.json"}.normalized()
	assert.Equal(t, EntryFormatManifest, manifest.Format)

	script := RemoteDescriptor{Name: "b", Entry: "https://cdn/x/remote-entry.js"}.normalized()
	assert.Equal(t, EntryFormatScript, script.Format)
	assert.Equal(t, DefaultShareScope, script.ShareScope)
}
