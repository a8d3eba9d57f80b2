// The example program runs a demo remote behind a local HTTP server, then
// drives a federation host through the full flow: manifest resolution,
// container acquisition, shared-dependency negotiation, module load, and
// data prefetch.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http/httptest"
	"os"

	federation "github.com/GoCodeAlone/federation"
	"github.com/GoCodeAlone/federation/example/router"
)

// utilModule is the demo remote's exposed module.
type utilModule struct{}

func (utilModule) Add(values ...int) int {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return sum
}

func main() {
	server := httptest.NewServer(router.New())
	defer server.Close()

	ctx := context.Background()
	logger := federation.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	host, err := federation.NewStdHost(ctx, federation.HostOptions{
		Name:   "example-host",
		Logger: logger,
		Remotes: []federation.RemoteDescriptor{
			{Name: "demo", Entry: server.URL + "/mf-manifest.json"},
		},
		Shared: []*federation.SharedRecord{
			{
				Package: "runtime-core",
				Version: "1.2.0",
				Lib:     func() (any, error) { return map[string]string{"core": "host copy"}, nil },
				ShareConfig: federation.ShareConfig{
					Singleton:       true,
					RequiredVersion: "^1.0.0",
				},
			},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	// The remote unit fulfils the bootstrap contract by registering its
	// container factory under the manifest's entry global name.
	host.RegisterEntryGlobal("demoRemote", func(_ context.Context, _ *federation.ScriptRequest) (federation.Container, error) {
		return &federation.MapContainer{
			OnInit: func(_ context.Context, scope *federation.SharedScope) error {
				return scope.Register(&federation.SharedRecord{
					Package: "runtime-core",
					Version: "1.1.5",
					From:    "demo",
					Lib:     func() (any, error) { return map[string]string{"core": "remote copy"}, nil },
				})
			},
			Modules: map[string]federation.ModuleFactory{
				"util": func() (any, error) { return utilModule{}, nil },
			},
		}, nil
	})
	host.Prefetch().RegisterProducer("demo/util", "default", federation.PrefetchProducer{
		Immediate: func(_ context.Context, _ any) (any, error) {
			return map[string]int{"initial": 42}, nil
		},
	})

	if err := host.PreloadRemote(ctx, []federation.PreloadRemoteArgs{
		{NameOrAlias: "demo", ResourceCategory: federation.ResourceAll},
	}); err != nil {
		log.Fatal(err)
	}

	module, err := host.LoadRemote(ctx, "demo/util")
	if err != nil {
		log.Fatal(err)
	}
	util := module.(utilModule)
	fmt.Println("add(1,2,3) =", util.Add(1, 2, 3))

	getter, err := host.LoadShare(ctx, "runtime-core", nil)
	if err != nil {
		log.Fatal(err)
	}
	core, _ := getter()
	fmt.Println("shared runtime-core =", core)

	entry, err := host.Prefetch().Get(ctx, "demo/util", "default", nil)
	if err != nil {
		log.Fatal(err)
	}
	data, err := entry.Result(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("prefetched =", data, "version", entry.Version)
}
