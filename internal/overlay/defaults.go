// Package overlay contains the engine plugins that shape every target's
// configuration: computed defaults merged underneath the target's own config
// file, and the forced externalization of host-runtime modules.
package overlay

import (
	"maps"
	"reflect"
	"slices"

	"dario.cat/mergo"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

// DefaultsName is the plugin name used when Defaults is given an empty name.
const DefaultsName = "tachyon:default-config"

// Defaults returns a plugin that deep-merges defaults underneath the loaded
// config. Values set by the config file always win; empty fields are filled
// and nested sections are merged field by field. A disabled path or a
// declared external set is taken as a whole, never combined with the default.
// Resolve conditions, main fields and env prefixes are unions with the
// defaults listed first.
func Defaults(name string, defaults engine.UserConfig) engine.Plugin {
	if name == "" {
		name = DefaultsName
	}
	return engine.NewPlugin(name, func(cfg *engine.UserConfig, _ engine.ConfigEnv) error {
		return Merge(cfg, defaults)
	})
}

// Merge fills the unset fields of cfg from a private copy of defaults.
func Merge(cfg *engine.UserConfig, defaults engine.UserConfig) error {
	src := Clone(defaults)
	conditions, mainFields, envPrefix := cfg.Resolve.Conditions, cfg.Resolve.MainFields, cfg.EnvPrefix
	if err := mergo.Merge(cfg, src, mergo.WithTransformers(atomicValues{})); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "merge default config").Build()
	}
	cfg.Resolve.Conditions = union(src.Resolve.Conditions, conditions)
	cfg.Resolve.MainFields = union(src.Resolve.MainFields, mainFields)
	cfg.EnvPrefix = union(src.EnvPrefix, envPrefix)
	return nil
}

// union returns base followed by the entries of extra it lacks.
func union(base, extra []string) []string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, v := range slices.Concat(base, extra) {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// atomicValues keeps option types that encode "off" in more than one field
// from being merged piecemeal.
type atomicValues struct{}

var (
	pathOptionType = reflect.TypeFor[engine.PathOption]()
	externalType   = reflect.TypeFor[engine.External]()
)

func (atomicValues) Transformer(t reflect.Type) func(dst, src reflect.Value) error {
	switch t {
	case pathOptionType:
		return func(dst, src reflect.Value) error {
			if dst.CanSet() && dst.Interface().(engine.PathOption).IsZero() {
				dst.Set(src)
			}
			return nil
		}
	case externalType:
		return func(dst, src reflect.Value) error {
			if dst.CanSet() && dst.Interface().(engine.External).IsZero() {
				dst.Set(src)
			}
			return nil
		}
	}
	return nil
}

// Clone returns a deep copy of cfg. Merging shares slices, maps and pointers
// from the source, so defaults are always cloned first.
func Clone(cfg engine.UserConfig) engine.UserConfig {
	out := cfg
	out.EnvPrefix = slices.Clone(cfg.EnvPrefix)
	out.Define = maps.Clone(cfg.Define)
	out.Resolve.Conditions = slices.Clone(cfg.Resolve.Conditions)
	out.Resolve.MainFields = slices.Clone(cfg.Resolve.MainFields)
	out.Resolve.Alias = maps.Clone(cfg.Resolve.Alias)
	out.Build.Input = slices.Clone(cfg.Build.Input)
	out.Build.External.Patterns = slices.Clone(cfg.Build.External.Patterns)
	if cfg.Build.Watch != nil {
		w := *cfg.Build.Watch
		w.Exclude = slices.Clone(w.Exclude)
		out.Build.Watch = &w
	}
	if cfg.Build.Lib != nil {
		lib := *cfg.Build.Lib
		lib.Formats = slices.Clone(lib.Formats)
		out.Build.Lib = &lib
	}
	return out
}
