package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// testLogger routes runtime logs to the test log so failures carry the
// runtime's view of events.
type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, args ...any)  { l.t.Log(append([]any{"INFO", msg}, args...)...) }
func (l *testLogger) Error(msg string, args ...any) { l.t.Log(append([]any{"ERROR", msg}, args...)...) }
func (l *testLogger) Warn(msg string, args ...any)  { l.t.Log(append([]any{"WARN", msg}, args...)...) }
func (l *testLogger) Debug(msg string, args ...any) { l.t.Log(append([]any{"DEBUG", msg}, args...)...) }

// newTestHost builds a host with a test logger and the given options.
func newTestHost(t *testing.T, opts HostOptions) *StdHost {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = &testLogger{t: t}
	}
	host, err := NewStdHost(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewStdHost: %v", err)
	}
	return host
}

const testManifest = `{
  "id": "remote",
  "name": "remote",
  "metaData": {
    "entryGlobalName": "remoteEntry",
    "type": "global",
    "remoteEntry": {"name": "remote-entry.js", "path": "", "type": "global"}
  },
  "exposes": [
    {
      "path": "./util",
      "assets": {
        "js": {"sync": ["static/util.js"], "async": ["static/util-lazy.js"]},
        "css": {"sync": ["static/util.css"], "async": []}
      },
      "prefetch": ["default"]
    },
    {
      "path": "./widget",
      "assets": {
        "js": {"sync": ["static/widget.js"], "async": []},
        "css": {"sync": [], "async": []}
      }
    }
  ],
  "shared": [
    {"name": "toolkit", "version": "2.0.0", "singleton": false, "requiredVersion": "^2.0.0"}
  ],
  "remotes": [
    {"name": "dep-remote", "entry": "unused"}
  ]
}`

// manifestServer serves a manifest plus entry and chunk assets, counting
// requests per path.
type manifestServer struct {
	server *httptest.Server

	mu       sync.Mutex
	manifest string
	counts   map[string]int
}

func newManifestServer(t *testing.T, manifest string) *manifestServer {
	t.Helper()
	ms := &manifestServer{manifest: manifest, counts: make(map[string]int)}
	ms.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.counts[r.URL.Path]++
		body := ms.manifest
		ms.mu.Unlock()
		switch r.URL.Path {
		case "/mf-manifest.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		default:
			_, _ = w.Write([]byte("// asset\n"))
		}
	}))
	t.Cleanup(ms.server.Close)
	return ms
}

// setManifest swaps the served manifest, simulating an upstream redeploy.
func (ms *manifestServer) setManifest(manifest string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.manifest = manifest
}

func (ms *manifestServer) url(path string) string {
	return ms.server.URL + path
}

func (ms *manifestServer) count(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.counts[path]
}

// registerUtilContainer registers the standard test container under the
// manifest's entry global: a util module with Add plus a widget module.
func registerUtilContainer(host *StdHost) *int {
	executions := 0
	host.RegisterEntryGlobal("remoteEntry", func(_ context.Context, _ *ScriptRequest) (Container, error) {
		executions++
		return &MapContainer{
			Modules: map[string]ModuleFactory{
				"util": func() (any, error) {
					return map[string]func(...int) int{
						"add": func(values ...int) int {
							sum := 0
							for _, v := range values {
								sum += v
							}
							return sum
						},
					}, nil
				},
				"widget": func() (any, error) { return "widget", nil },
			},
		}, nil
	})
	return &executions
}
