package configfile

import (
	"github.com/evanw/esbuild/pkg/api"
)

const shimNamespace = "tachyon-shim"

// viteShim provides the helpers config files usually import from "vite".
const viteShim = `
function isPlainObject(v) {
  return v !== null && typeof v === "object" && !Array.isArray(v) && !(v instanceof RegExp);
}

export function defineConfig(config) {
  return config;
}

export function mergeConfig(defaults, overrides) {
  const merged = Object.assign({}, defaults);
  for (const key of Object.keys(overrides || {})) {
    const value = overrides[key];
    if (value === undefined || value === null) continue;
    const existing = merged[key];
    if (Array.isArray(existing) || Array.isArray(value)) {
      merged[key] = [].concat(existing === undefined ? [] : existing, value);
    } else if (isPlainObject(existing) && isPlainObject(value)) {
      merged[key] = mergeConfig(existing, value);
    } else {
      merged[key] = value;
    }
  }
  return merged;
}

export default { defineConfig, mergeConfig };
`

// shimPlugin resolves "vite" to viteShim and leaves every other bare import
// external so the runtime require can decide.
func shimPlugin() api.Plugin {
	return api.Plugin{
		Name: "tachyon:config-shims",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^vite$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: "vite", Namespace: shimNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: shimNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := viteShim
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
			build.OnResolve(api.OnResolveOptions{Filter: `^[^./]`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: args.Path, External: true}, nil
				})
		},
	}
}
