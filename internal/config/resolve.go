package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

// Resolved is the fully populated, immutable configuration of one CLI
// invocation. Resolve is its only constructor; accessors return copies.
type Resolved struct {
	root              string
	mode              string
	logLevel          LogLevel
	envDir            EnvDir
	envPrefix         []string
	configFiles       map[Target]string
	autoRestart       bool
	autoReloadPreload bool
	raw               RawConfig
}

// Resolve turns raw CLI input into a Resolved configuration.
//
// The only side effect is defaulting NODE_ENV when the process environment
// does not carry one yet. Filesystem errors other than "not found" from the
// conventional config file lookup are returned.
func Resolve(raw RawConfig, defaults Defaults) (*Resolved, error) {
	mode := raw.Mode
	if mode == "" {
		mode = defaults.Mode
	}

	if os.Getenv(NodeEnvVar) == "" && defaults.NodeEnv != "" {
		if err := os.Setenv(NodeEnvVar, defaults.NodeEnv); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "set "+NodeEnvVar).Build()
		}
	}

	level, err := ParseLogLevel(raw.LogLevel)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid log level").UserAction().Build()
	}

	root, err := resolveRoot(raw.Root)
	if err != nil {
		return nil, err
	}

	files := make(map[Target]string, 3)
	for _, t := range Targets() {
		path, err := resolveConfigFile(root, t, raw.ConfigFiles.For(t))
		if err != nil {
			return nil, err
		}
		if path != "" {
			files[t] = NormalizePath(path, false)
		}
	}

	return &Resolved{
		root:              root,
		mode:              mode,
		logLevel:          level,
		envDir:            raw.EnvDir,
		envPrefix:         slices.Clone(raw.EnvPrefix),
		configFiles:       files,
		autoRestart:       boolOr(raw.AutoRestart, true),
		autoReloadPreload: boolOr(raw.AutoReloadPreload, true),
		raw:               raw,
	}, nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "determine working directory").Fatal().Build()
		}
		return NormalizePath(wd, false), nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "resolve project root").
			WithContext("root", root).
			Fatal().
			Build()
	}
	return NormalizePath(abs, false), nil
}

// resolveConfigFile applies disable > explicit path > conventional lookup.
func resolveConfigFile(root string, t Target, ref FileRef) (string, error) {
	if ref.Disabled {
		return "", nil
	}
	if ref.Path != "" {
		abs, err := filepath.Abs(ref.Path)
		if err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryConfig, "resolve config file path").
				WithContext("target", string(t)).
				WithContext("config_file", ref.Path).
				Fatal().
				Build()
		}
		return abs, nil
	}
	return FindConfigFile(root, t.ConfigBaseName())
}

// FindConfigFile looks for name+ext in root for each of ConfigExtensions and
// returns the first existing file, or "" when none exists.
func FindConfigFile(root, name string) (string, error) {
	for _, ext := range ConfigExtensions {
		candidate := filepath.Join(root, name+ext)
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				continue
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", ferrors.WrapError(err, ferrors.CategoryConfig, "check config file").
				WithContext("config_file", candidate).
				Fatal().
				Build()
		}
	}
	return "", nil
}

// NormalizePath guarantees an explicit "/" or "./" prefix on relative paths
// and, for directories, a trailing slash.
func NormalizePath(p string, isDirectory bool) string {
	normalized := filepath.ToSlash(p)
	if !filepath.IsAbs(p) && !strings.HasPrefix(normalized, "/") && !strings.HasPrefix(normalized, ".") {
		normalized = "./" + normalized
	}
	if isDirectory && !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}
	return normalized
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Root is the absolute, normalized project directory.
func (r *Resolved) Root() string { return r.root }

// Mode is the environment mode (development, production or a custom one).
func (r *Resolved) Mode() string { return r.mode }

// LogLevel is the operator-facing verbosity.
func (r *Resolved) LogLevel() LogLevel { return r.logLevel }

// EnvDir is the env file directory setting.
func (r *Resolved) EnvDir() EnvDir { return r.envDir }

// EnvPrefix lists the env variable prefixes exposed to client code.
func (r *Resolved) EnvPrefix() []string { return slices.Clone(r.envPrefix) }

// ConfigFile returns the config file of t, or false when the target is
// disabled or has no config file.
func (r *Resolved) ConfigFile(t Target) (string, bool) {
	p, ok := r.configFiles[t]
	return p, ok
}

// AutoRestart reports whether main rebuilds restart the host process.
func (r *Resolved) AutoRestart() bool { return r.autoRestart }

// AutoReloadPreload reports whether preload rebuilds reload the renderer.
func (r *Resolved) AutoReloadPreload() bool { return r.autoReloadPreload }

// Raw returns the input Resolve was called with.
func (r *Resolved) Raw() RawConfig { return r.raw }

// Enabled returns the targets that have a config file, in build order.
func (r *Resolved) Enabled() []Target {
	var out []Target
	for _, t := range Targets() {
		if _, ok := r.configFiles[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
