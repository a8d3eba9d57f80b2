package federation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteID(t *testing.T) {
	testcases := []struct {
		id      string
		remote  string
		expose  string
		wantErr bool
	}{
		{id: "shop/Button", remote: "shop", expose: "Button"},
		{id: "shop/components/Button", remote: "shop", expose: "components/Button"},
		{id: "shop", remote: "shop", expose: "."},
		{id: "shop/", remote: "shop", expose: "."},
		{id: "", wantErr: true},
		{id: "   ", wantErr: true},
		{id: "/Button", wantErr: true},
	}

	for _, tc := range testcases {
		req, err := parseRemoteID(tc.id)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidRemoteID, "id %q", tc.id)
			continue
		}
		require.NoError(t, err, "id %q", tc.id)
		assert.Equal(t, tc.remote, req.RemoteName, "id %q", tc.id)
		assert.Equal(t, tc.expose, req.ExposedPath, "id %q", tc.id)
	}
}

func TestResolveUnknownRemote(t *testing.T) {
	host := newTestHost(t, HostOptions{})
	_, err := host.Resolve(context.Background(), "ghost/Button")
	require.ErrorIs(t, err, ErrRemoteNotFound)
}

func TestResolveManifestEntry(t *testing.T) {
	ctx := context.Background()
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})

	resolved, err := host.Resolve(ctx, "remote/util")
	require.NoError(t, err)

	assert.Equal(t, "remoteEntry", resolved.EntryGlobalName)
	assert.True(t, strings.HasSuffix(resolved.EntryURL, "/remote-entry.js"), "entry URL %q", resolved.EntryURL)
	assert.Equal(t, "util", resolved.ExposedPath)
	require.NotNil(t, resolved.Manifest)
	assert.Equal(t, []string{"static/util.js"}, resolved.Expose.Assets.JS.Sync)
	assert.Equal(t, []string{"default"}, resolved.Expose.Prefetch)
}

func TestResolveManifestFetchedOnce(t *testing.T) {
	ctx := context.Background()
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})

	for i := 0; i < 5; i++ {
		_, err := host.Resolve(ctx, "remote/util")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ms.count("/mf-manifest.json"))
}

func TestResolveExposeNotFound(t *testing.T) {
	ctx := context.Background()
	ms := newManifestServer(t, testManifest)
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "remote", Entry: ms.url("/mf-manifest.json")}},
	})

	_, err := host.Resolve(ctx, "remote/missing")
	require.ErrorIs(t, err, ErrExposeNotFound)
}

func TestResolveDirectScriptEntry(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{
			Name:            "legacy",
			Entry:           "memory://legacy-entry.js",
			EntryGlobalName: "legacyEntry",
		}},
	})

	resolved, err := host.Resolve(ctx, "legacy/thing")
	require.NoError(t, err)
	assert.Equal(t, "memory://legacy-entry.js", resolved.EntryURL)
	assert.Equal(t, "legacyEntry", resolved.EntryGlobalName)
	assert.Nil(t, resolved.Manifest)
}

func TestResolveBeforeRequestRewrite(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "shop", Entry: "memory://shop.js"}},
		Plugins: []*Plugin{{
			Name: "legacy-name-bridge",
			BeforeRequest: func(_ context.Context, req *ResolveRequest) (*ResolveRequest, error) {
				if req.RemoteName == "old-shop" {
					req.RemoteName = "shop"
				}
				return req, nil
			},
		}},
	})

	resolved, err := host.Resolve(ctx, "old-shop/cart")
	require.NoError(t, err)
	assert.Equal(t, "shop", resolved.Descriptor.Name)
}

func TestResolveAfterResolveRewrite(t *testing.T) {
	ctx := context.Background()
	host := newTestHost(t, HostOptions{
		Remotes: []RemoteDescriptor{{Name: "shop", Entry: "memory://shop.js"}},
		Plugins: []*Plugin{{
			Name: "mirror",
			AfterResolve: func(_ context.Context, resolved *ResolvedRemote) (*ResolvedRemote, error) {
				resolved.EntryURL = "memory://mirror/shop.js"
				return resolved, nil
			},
		}},
	})

	resolved, err := host.Resolve(ctx, "shop/cart")
	require.NoError(t, err)
	assert.Equal(t, "memory://mirror/shop.js", resolved.EntryURL)
}

func TestManifestEntryURLResolution(t *testing.T) {
	m := &Manifest{MetaData: ManifestMeta{RemoteEntry: ManifestRemoteEntry{Name: "remote-entry.js"}}}
	assert.Equal(t, "https://cdn.example.com/app/remote-entry.js",
		m.EntryURL("https://cdn.example.com/app/mf-manifest.json"))

	withPublic := &Manifest{MetaData: ManifestMeta{
		PublicPath:  "https://assets.example.com/app/",
		RemoteEntry: ManifestRemoteEntry{Name: "remote-entry.js"},
	}}
	assert.Equal(t, "https://assets.example.com/app/remote-entry.js",
		withPublic.EntryURL("https://cdn.example.com/app/mf-manifest.json"))
}
