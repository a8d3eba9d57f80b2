package federation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// HostFileConfig is the file-declared form of a host: the remotes it
// consumes, the dependencies it shares, and host-level settings. Files may
// be TOML or YAML, selected by extension; FEDERATION_* environment
// variables override scalar settings.
type HostFileConfig struct {
	// Name identifies the host.
	Name string `toml:"name" yaml:"name" env:"FEDERATION_NAME"`

	// ShareStrategy is the default shared-version selection strategy.
	ShareStrategy string `toml:"share_strategy" yaml:"shareStrategy" env:"FEDERATION_SHARE_STRATEGY"`

	// RefreshSchedule is a cron expression for periodic manifest
	// refresh. Empty disables the refresher.
	RefreshSchedule string `toml:"refresh_schedule" yaml:"refreshSchedule" env:"FEDERATION_REFRESH_SCHEDULE"`

	// Remotes declares the host's remotes.
	Remotes []RemoteFileConfig `toml:"remotes" yaml:"remotes"`

	// Shared declares the packages the host offers to the share scope.
	Shared []SharedFileConfig `toml:"shared" yaml:"shared"`
}

// RemoteFileConfig declares one remote in a host config file.
type RemoteFileConfig struct {
	Name            string `toml:"name" yaml:"name"`
	Alias           string `toml:"alias" yaml:"alias"`
	Entry           string `toml:"entry" yaml:"entry"`
	ShareScope      string `toml:"share_scope" yaml:"shareScope"`
	Format          string `toml:"format" yaml:"format"`
	EntryGlobalName string `toml:"entry_global_name" yaml:"entryGlobalName"`
}

// SharedFileConfig declares one shared package in a host config file. The
// getter itself cannot live in a file; hosts attach getters by package
// name through HostOptions.Shared or RegisterShared, and file entries
// carry the negotiation metadata.
type SharedFileConfig struct {
	Name            string `toml:"name" yaml:"name"`
	Version         string `toml:"version" yaml:"version"`
	Scope           string `toml:"scope" yaml:"scope"`
	Singleton       bool   `toml:"singleton" yaml:"singleton"`
	RequiredVersion string `toml:"required_version" yaml:"requiredVersion"`
	Strategy        string `toml:"strategy" yaml:"strategy"`
}

// Descriptors converts the file-declared remotes to registry descriptors.
func (c *HostFileConfig) Descriptors() []RemoteDescriptor {
	out := make([]RemoteDescriptor, 0, len(c.Remotes))
	for _, r := range c.Remotes {
		out = append(out, RemoteDescriptor{
			Name:            r.Name,
			Alias:           r.Alias,
			Entry:           r.Entry,
			ShareScope:      r.ShareScope,
			Format:          EntryFormat(r.Format),
			EntryGlobalName: r.EntryGlobalName,
		})
	}
	return out
}

// LoadHostFileConfig reads a host config file, picking the parser by
// extension (.toml, .yaml, .yml), then applies FEDERATION_* environment
// overrides to tagged scalar fields.
func LoadHostFileConfig(path string) (*HostFileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg := &HostFileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfigParse, path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfigParse, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrConfigFileUnsupported, path)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills fields tagged with env:"VAR" from the
// environment, casting string values to the field's type.
func applyEnvOverrides(cfg *HostFileConfig) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		envName := t.Field(i).Tag.Get("env")
		if envName == "" {
			continue
		}
		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		converted, err := cast.FromType(raw, t.Field(i).Type)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfigParse, envName, err)
		}
		v.Field(i).Set(reflect.ValueOf(converted))
	}
	return nil
}

// ApplyFileConfig registers a file config's remotes on a running host.
// force controls whether existing registrations are replaced; the config
// watcher reloads with force so changed entries take effect.
func (h *StdHost) ApplyFileConfig(ctx context.Context, cfg *HostFileConfig, force bool) error {
	if cfg.ShareStrategy != "" {
		h.shareStrategy = ShareStrategy(cfg.ShareStrategy)
	}
	return h.RegisterRemotes(ctx, cfg.Descriptors(), force)
}
