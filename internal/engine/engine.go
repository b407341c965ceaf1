// Package engine defines the boundary between the orchestrator and the build
// engine: the per-target configuration model, the plugin contract and the
// three entry points (one-shot build, watch-build, dev server).
//
// The orchestrator never bundles anything itself. It resolves which config
// file to load, decorates the engine invocation with plugins and reacts to the
// events the engine publishes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Command tells config files which entry point loaded them.
type Command string

const (
	CommandServe Command = "serve"
	CommandBuild Command = "build"
)

// ConfigEnv is passed to config-file functions and plugins.
type ConfigEnv struct {
	Command Command
	Mode    string
}

// Plugin adjusts a target's configuration after its config file was loaded.
type Plugin interface {
	Name() string
	Config(cfg *UserConfig, env ConfigEnv) error
}

type pluginFunc struct {
	name string
	fn   func(cfg *UserConfig, env ConfigEnv) error
}

func (p pluginFunc) Name() string { return p.name }

func (p pluginFunc) Config(cfg *UserConfig, env ConfigEnv) error { return p.fn(cfg, env) }

// NewPlugin wraps fn as a named Plugin.
func NewPlugin(name string, fn func(cfg *UserConfig, env ConfigEnv) error) Plugin {
	return pluginFunc{name: name, fn: fn}
}

// ApplyPlugins runs plugins in order against cfg.
func ApplyPlugins(cfg *UserConfig, env ConfigEnv, plugins []Plugin) error {
	for _, p := range plugins {
		if err := p.Config(cfg, env); err != nil {
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// InlineConfig describes one engine invocation.
type InlineConfig struct {
	// Target names the invocation in logs and published events.
	Target     string
	ConfigFile string
	Mode       string
	Plugins    []Plugin
	Logger     *slog.Logger
}

// Watcher is a running watch-build.
type Watcher interface {
	Close() error
}

// ServerURLs lists where a dev server can be reached.
type ServerURLs struct {
	Local   []string
	Network []string
}

// DevServer is a live HTTP server for the renderer with push-based reload.
type DevServer interface {
	// Listen performs the initial build and starts accepting connections.
	Listen(ctx context.Context) error
	URLs() ServerURLs
	PrintURLs()
	// SendFullReload asks every connected page to reload entirely.
	SendFullReload()
	Close(ctx context.Context) error
}

// Engine is the build engine the orchestrators drive.
type Engine interface {
	// Build runs a one-shot build and returns once output is written.
	Build(ctx context.Context, cfg InlineConfig) error
	// Watch performs the initial build and keeps rebuilding on change. Every
	// written bundle, the initial one included, is published as an event.
	Watch(ctx context.Context, cfg InlineConfig) (Watcher, error)
	// Serve creates a dev server; it is not listening until Listen is called.
	Serve(ctx context.Context, cfg InlineConfig) (DevServer, error)
	// ResolveConfig loads the config file and applies the plugins without
	// building anything.
	ResolveConfig(ctx context.Context, cfg InlineConfig, cmd Command) (*UserConfig, error)
}

// ConfigLoader reads a target config file into a UserConfig.
type ConfigLoader interface {
	Load(path string, env ConfigEnv) (*UserConfig, error)
}

// ResolveUserConfig loads ic.ConfigFile with loader, applies ic.Plugins and
// fills the fields every engine implementation relies on.
func ResolveUserConfig(loader ConfigLoader, ic InlineConfig, cmd Command) (*UserConfig, error) {
	env := ConfigEnv{Command: cmd, Mode: ic.Mode}

	cfg := &UserConfig{}
	if ic.ConfigFile != "" {
		loaded, err := loader.Load(ic.ConfigFile, env)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := ApplyPlugins(cfg, env, ic.Plugins); err != nil {
		return nil, err
	}

	if cfg.Root == "" {
		if ic.ConfigFile != "" {
			cfg.Root = filepath.Dir(ic.ConfigFile)
		} else if wd, err := os.Getwd(); err == nil {
			cfg.Root = wd
		}
	}
	if abs, err := filepath.Abs(cfg.Root); err == nil {
		cfg.Root = abs
	}
	if cfg.Mode == "" {
		cfg.Mode = ic.Mode
	}
	if cfg.Build.OutDir == "" {
		cfg.Build.OutDir = "dist"
	}
	if cfg.Base == "" {
		cfg.Base = "/"
	}
	return cfg, nil
}
