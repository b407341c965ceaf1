package overlay

import (
	"slices"

	"git.home.luguber.info/inful/tachyon/internal/engine"
)

// ExternalizeName is the plugin name reported by Externalize.
const ExternalizeName = "tachyon:externalize"

// ExternalModules returns the fixed set of specifiers kept out of main and
// preload bundles: the host runtime module and every "node:" built-in.
func ExternalModules() []string {
	out := make([]string, 0, len(nodeBuiltins)+1)
	out = append(out, "electron")
	for _, m := range nodeBuiltins {
		out = append(out, "node:"+m)
	}
	return out
}

// Externalize returns a plugin that forces ExternalModules to stay external
// while preserving whatever the config file already declared:
//
//   - a predicate is wrapped so the fixed set is checked first;
//   - a pattern list gets the fixed set prepended, without duplicates;
//   - an absent declaration becomes the fixed set.
//
// Applying the plugin more than once does not change the effective set.
func Externalize() engine.Plugin {
	fixed := ExternalModules()
	return engine.NewPlugin(ExternalizeName, func(cfg *engine.UserConfig, _ engine.ConfigEnv) error {
		cfg.Build.External = externalize(cfg.Build.External, fixed)
		return nil
	})
}

func externalize(ext engine.External, fixed []string) engine.External {
	if ext.Predicate != nil {
		orig := ext.Predicate
		return engine.External{Predicate: func(source, importer string, isResolved bool) bool {
			if slices.Contains(fixed, source) {
				return true
			}
			return orig(source, importer, isResolved)
		}}
	}

	merged := engine.ExternalList(fixed...)
	seen := make(map[string]struct{}, len(fixed)+len(ext.Patterns))
	for _, p := range merged.Patterns {
		seen[p.String()] = struct{}{}
	}
	for _, p := range ext.Patterns {
		key := p.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged.Patterns = append(merged.Patterns, p)
	}
	return merged
}
