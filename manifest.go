package federation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Manifest is the JSON document an independently deployed remote publishes
// to describe itself: its concrete entry asset, the modules it exposes,
// the assets behind each expose, and the dependencies it shares.
type Manifest struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	MetaData ManifestMeta     `json:"metaData"`
	Exposes  []ManifestExpose `json:"exposes"`
	Shared   []ManifestShared `json:"shared"`
	Remotes  []ManifestRemote `json:"remotes"`
}

// ManifestMeta carries the remote's bootstrap information.
type ManifestMeta struct {
	EntryGlobalName string              `json:"entryGlobalName"`
	Type            string              `json:"type"`
	RemoteEntry     ManifestRemoteEntry `json:"remoteEntry"`
	PublicPath      string              `json:"publicPath"`
}

// ManifestRemoteEntry locates the remote's bootstrap asset relative to the
// manifest's public path.
type ManifestRemoteEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ManifestExpose describes one exposed module and the assets it needs.
// Prefetch lists the data-prefetch function IDs the build emitted for this
// expose; the runtime kicks those functions the moment the expose's code
// is loaded.
type ManifestExpose struct {
	Path     string        `json:"path"`
	Assets   ManifestAsset `json:"assets"`
	Prefetch []string      `json:"prefetch,omitempty"`
}

// ManifestAsset groups an expose's assets by kind and load timing.
type ManifestAsset struct {
	JS  ManifestAssetGroup `json:"js"`
	CSS ManifestAssetGroup `json:"css"`
}

// ManifestAssetGroup splits assets into those required synchronously and
// those loaded on demand.
type ManifestAssetGroup struct {
	Sync  []string `json:"sync"`
	Async []string `json:"async"`
}

// ManifestShared declares one shared dependency the remote participates in.
type ManifestShared struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Singleton       bool   `json:"singleton"`
	RequiredVersion string `json:"requiredVersion"`
}

// ManifestRemote declares a dependent remote, included in preload closures
// when the caller requests transitive preloading.
type ManifestRemote struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
	Entry string `json:"entry"`
}

// exposeKey normalizes an expose path for lookup: "./util", "util" and
// "." all reduce to a stable key.
func exposeKey(path string) string {
	key := strings.TrimPrefix(path, "./")
	if key == "" || key == "." {
		return "."
	}
	return key
}

// FindExpose locates an expose by its normalized path.
func (m *Manifest) FindExpose(path string) (ManifestExpose, bool) {
	want := exposeKey(path)
	for _, e := range m.Exposes {
		if exposeKey(e.Path) == want {
			return e, true
		}
	}
	return ManifestExpose{}, false
}

// EntryURL returns the absolute URL of the remote's bootstrap asset,
// resolved against the manifest's own URL when the manifest declares a
// relative path.
func (m *Manifest) EntryURL(manifestURL string) string {
	entry := m.MetaData.RemoteEntry.Name
	if m.MetaData.RemoteEntry.Path != "" {
		entry = strings.TrimSuffix(m.MetaData.RemoteEntry.Path, "/") + "/" + entry
	}
	if m.MetaData.PublicPath != "" {
		return strings.TrimSuffix(m.MetaData.PublicPath, "/") + "/" + entry
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return entry
	}
	ref, err := url.Parse(entry)
	if err != nil {
		return entry
	}
	return base.ResolveReference(ref).String()
}

// AssetURL resolves an expose asset path the way EntryURL resolves the
// bootstrap asset: absolute URLs pass through, otherwise the public path
// or the manifest's own URL provides the base.
func (m *Manifest) AssetURL(manifestURL, asset string) string {
	ref, err := url.Parse(asset)
	if err != nil {
		return asset
	}
	if ref.IsAbs() {
		return asset
	}
	if m.MetaData.PublicPath != "" {
		return strings.TrimSuffix(m.MetaData.PublicPath, "/") + "/" + strings.TrimPrefix(asset, "/")
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return asset
	}
	return base.ResolveReference(ref).String()
}

// cachedManifest pairs a fetched manifest with a content hash so the
// refresher can detect upstream changes without re-parsing.
type cachedManifest struct {
	manifest *Manifest
	hash     string
}

// manifestClient fetches and caches remote manifests. Fetches for the same
// URL are coalesced on one in-flight future; the cache is evicted on
// forced re-registration and by the manifest refresher.
type manifestClient struct {
	httpClient *http.Client
	logger     Logger

	mu    sync.Mutex
	cache map[string]*future[*cachedManifest]
}

func newManifestClient(httpClient *http.Client, logger Logger) *manifestClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &manifestClient{
		httpClient: httpClient,
		logger:     logger,
		cache:      make(map[string]*future[*cachedManifest]),
	}
}

// Fetch returns the manifest at the given URL, fetching it at most once
// until evicted.
func (c *manifestClient) Fetch(ctx context.Context, manifestURL string) (*Manifest, error) {
	cached, err := c.fetchCached(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	return cached.manifest, nil
}

func (c *manifestClient) fetchCached(ctx context.Context, manifestURL string) (*cachedManifest, error) {
	c.mu.Lock()
	f, ok := c.cache[manifestURL]
	if !ok {
		f = newFuture[*cachedManifest]()
		c.cache[manifestURL] = f
		c.mu.Unlock()

		cached, err := c.fetch(ctx, manifestURL)
		if err != nil {
			// Failed fetches are not cached; the next caller retries.
			c.mu.Lock()
			delete(c.cache, manifestURL)
			c.mu.Unlock()
		}
		f.complete(cached, err)
		return cached, err
	}
	c.mu.Unlock()
	return f.wait(ctx)
}

func (c *manifestClient) fetch(ctx context.Context, manifestURL string) (*cachedManifest, error) {
	stop := debugTimer(c.logger, "Manifest fetch", "url", manifestURL)
	defer stop()

	body, err := c.get(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestFetch, manifestURL, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestParse, manifestURL, err)
	}

	sum := sha256.Sum256(body)
	return &cachedManifest{manifest: &manifest, hash: hex.EncodeToString(sum[:])}, nil
}

// FetchFresh bypasses and replaces the cache entry for the URL. It returns
// the manifest, its content hash, and whether the content changed relative
// to the previously cached document.
func (c *manifestClient) FetchFresh(ctx context.Context, manifestURL string) (*Manifest, string, bool, error) {
	c.mu.Lock()
	prev, hadPrev := c.cache[manifestURL]
	c.mu.Unlock()

	cached, err := c.fetch(ctx, manifestURL)
	if err != nil {
		return nil, "", false, err
	}

	changed := true
	if hadPrev && prev.resolvedOK() && prev.value != nil {
		changed = prev.value.hash != cached.hash
	}

	f := newFuture[*cachedManifest]()
	f.complete(cached, nil)
	c.mu.Lock()
	c.cache[manifestURL] = f
	c.mu.Unlock()

	return cached.manifest, cached.hash, changed, nil
}

// WarmAsset issues an early fetch of an asset URL so later loads hit warm
// transport caches. The body is discarded.
func (c *manifestClient) WarmAsset(ctx context.Context, assetURL string) error {
	stop := debugTimer(c.logger, "Asset preload fetch", "url", assetURL)
	defer stop()

	_, err := c.get(ctx, assetURL)
	return err
}

// FetchAsset retrieves an asset's bytes, used by entry executors that
// need the bootstrap asset content.
func (c *manifestClient) FetchAsset(ctx context.Context, assetURL string) ([]byte, error) {
	stop := debugTimer(c.logger, "Script load", "url", assetURL)
	defer stop()

	return c.get(ctx, assetURL)
}

func (c *manifestClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}

// evict removes the cached manifest for a URL.
func (c *manifestClient) evict(manifestURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, manifestURL)
}
