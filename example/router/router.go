// Package router serves a remote's manifest and entry asset for the demo
// host, standing in for the CDN a deployed remote would publish to.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ManifestJSON is the demo remote's manifest document.
const ManifestJSON = `{
  "id": "demo",
  "name": "demo",
  "metaData": {
    "entryGlobalName": "demoRemote",
    "type": "global",
    "remoteEntry": {"name": "remote-entry.js", "path": "", "type": "global"}
  },
  "exposes": [
    {
      "path": "./util",
      "assets": {
        "js": {"sync": ["static/util.js"], "async": []},
        "css": {"sync": [], "async": []}
      },
      "prefetch": ["default"]
    }
  ],
  "shared": [
    {"name": "runtime-core", "version": "1.2.0", "singleton": true, "requiredVersion": "^1.0.0"}
  ],
  "remotes": []
}`

// New builds the demo remote's HTTP router.
func New() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/mf-manifest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ManifestJSON))
	})
	r.Get("/remote-entry.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte("// demo remote entry\n"))
	})
	r.Get("/static/util.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte("// demo util chunk\n"))
	})
	return r
}
