package esbuild

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/foundation/normalization"
)

var formats = normalization.NewNormalizer("output format", map[string]api.Format{
	"es":       api.FormatESModule,
	"esm":      api.FormatESModule,
	"module":   api.FormatESModule,
	"cjs":      api.FormatCommonJS,
	"commonjs": api.FormatCommonJS,
	"iife":     api.FormatIIFE,
	"umd":      api.FormatIIFE,
}, api.FormatDefault)

var esTargets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var engineNames = map[string]api.EngineName{
	"node":    api.EngineNode,
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
}

// plan is a resolved target configuration translated to esbuild options.
type plan struct {
	cfg    *engine.UserConfig
	opts   api.BuildOptions
	outDir string
	pages  []page
}

// newPlan maps cfg onto esbuild options. env holds the exposed env variables.
func newPlan(cfg *engine.UserConfig, cmd engine.Command, env map[string]string) (*plan, error) {
	root := cfg.Root
	outDir := resolveIn(root, cfg.Build.OutDir)

	p := &plan{cfg: cfg, outDir: outDir}
	production := cfg.Mode == "production"

	entries, pages, err := entryPoints(cfg, cmd)
	if err != nil {
		return nil, err
	}
	p.pages = pages

	format, err := outputFormat(cfg)
	if err != nil {
		return nil, err
	}

	platform := api.PlatformBrowser
	if slices.Contains(cfg.Resolve.Conditions, "node") {
		platform = api.PlatformNode
	}
	if format == api.FormatDefault {
		format = api.FormatESModule
		if platform == api.PlatformNode {
			format = api.FormatCommonJS
		}
	}

	p.opts = api.BuildOptions{
		EntryPointsAdvanced: entries,
		AbsWorkingDir:       root,
		Outdir:              outDir,
		Bundle:              true,
		Metafile:            true,
		Write:               cmd == engine.CommandBuild,
		Format:              format,
		Platform:            platform,
		EntryNames:          entryNames(cfg, len(pages) > 0),
		AssetNames:          "assets/[name]-[hash]",
		ChunkNames:          "assets/[name]-[hash]",
		Sourcemap:           sourcemap(cfg.Build.Sourcemap, cmd),
		Conditions:          cfg.Resolve.Conditions,
		MainFields:          cfg.Resolve.MainFields,
		Alias:               cfg.Resolve.Alias,
		Define:              defines(cfg, env, production),
		LogLevel:            api.LogLevelSilent,
	}

	if cfg.Build.Minify.Enabled(cmd == engine.CommandBuild && production) {
		p.opts.MinifyWhitespace = true
		p.opts.MinifyIdentifiers = true
		p.opts.MinifySyntax = true
	}
	if format == api.FormatESModule && cfg.Build.Output.InlineDynamicImports == engine.ToggleOff {
		p.opts.Splitting = true
	}
	if base := cfg.Base; strings.HasPrefix(base, "/") && base != "/" {
		p.opts.PublicPath = base
	}
	if err := applyTarget(&p.opts, cfg.Build.Target); err != nil {
		return nil, err
	}
	if !cfg.Build.External.IsZero() {
		p.opts.Plugins = append(p.opts.Plugins, externalPlugin(cfg.Build.External))
	}
	return p, nil
}

func resolveIn(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// entryPoints collects script entries from build.lib.entry or the build
// input. HTML inputs contribute their module scripts. Without any input a
// non-library target falls back to index.html in root.
func entryPoints(cfg *engine.UserConfig, cmd engine.Command) ([]api.EntryPoint, []page, error) {
	inputs := cfg.Build.Input
	if cfg.Build.Lib != nil && cfg.Build.Lib.Entry != "" {
		inputs = []string{cfg.Build.Lib.Entry}
	}
	if len(inputs) == 0 && cfg.Build.Lib == nil {
		inputs = []string{"index.html"}
	}

	var entries []api.EntryPoint
	var pages []page
	for _, in := range inputs {
		abs := resolveIn(cfg.Root, in)
		if strings.EqualFold(filepath.Ext(abs), ".html") {
			pg, err := loadPage(cfg.Root, abs)
			if err != nil {
				return nil, nil, err
			}
			pages = append(pages, pg)
			for _, s := range pg.scripts {
				entries = append(entries, api.EntryPoint{InputPath: s.entry})
			}
			continue
		}
		entries = append(entries, api.EntryPoint{InputPath: abs})
	}
	if len(entries) == 0 {
		return nil, nil, ferrors.ConfigError("no entry point configured").
			WithContext("hint", "set build.lib.entry or build.rollupOptions.input").
			WithContext("command", string(cmd)).
			Build()
	}
	return entries, pages, nil
}

func outputFormat(cfg *engine.UserConfig) (api.Format, error) {
	raw := cfg.Build.Output.Format
	if cfg.Build.Lib != nil && len(cfg.Build.Lib.Formats) > 0 {
		raw = cfg.Build.Lib.Formats[0]
	}
	f, err := formats.Parse(raw)
	if err != nil {
		return api.FormatDefault, ferrors.WrapError(err, ferrors.CategoryConfig, "unsupported output format").Build()
	}
	return f, nil
}

func entryNames(cfg *engine.UserConfig, fromHTML bool) string {
	name := cfg.Build.Output.EntryFileNames
	if cfg.Build.Lib != nil && cfg.Build.Lib.FileName != "" {
		name = cfg.Build.Lib.FileName
	}
	if name == "" {
		if fromHTML {
			return "assets/[name]"
		}
		return "[name]"
	}
	for _, ext := range []string{".js", ".cjs", ".mjs"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// sourcemap resolves the configured mode; the dev server defaults to inline
// maps, builds default to none.
func sourcemap(s engine.Sourcemap, cmd engine.Command) api.SourceMap {
	switch s {
	case engine.SourcemapLinked:
		return api.SourceMapLinked
	case engine.SourcemapInline:
		return api.SourceMapInline
	case engine.SourcemapHidden:
		return api.SourceMapExternal
	case engine.SourcemapOff:
		return api.SourceMapNone
	}
	if cmd == engine.CommandServe {
		return api.SourceMapInline
	}
	return api.SourceMapNone
}

func defines(cfg *engine.UserConfig, env map[string]string, production bool) map[string]string {
	meta := map[string]any{
		"MODE":     cfg.Mode,
		"DEV":      !production,
		"PROD":     production,
		"BASE_URL": cfg.Base,
	}
	for k, v := range env {
		if identifierRe.MatchString(k) {
			meta[k] = v
		}
	}

	out := make(map[string]string, len(meta)+len(cfg.Define)+1)
	for k, v := range meta {
		out["import.meta.env."+k] = jsonValue(v)
	}
	out["import.meta.env"] = jsonValue(meta)
	maps.Copy(out, cfg.Define)
	return out
}

func jsonValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(b)
}

// applyTarget understands "esnext", "es20XX" and "<engine><version>" lists
// separated by commas.
func applyTarget(opts *api.BuildOptions, target string) error {
	for _, t := range strings.Split(target, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || t == "modules" {
			continue
		}
		if es, ok := esTargets[t]; ok {
			opts.Target = es
			continue
		}
		idx := strings.IndexAny(t, "0123456789")
		if idx <= 0 {
			return ferrors.ConfigError(fmt.Sprintf("unsupported build target %q", t)).Build()
		}
		name, ok := engineNames[t[:idx]]
		if !ok {
			return ferrors.ConfigError(fmt.Sprintf("unsupported build target %q", t)).Build()
		}
		opts.Engines = append(opts.Engines, api.Engine{Name: name, Version: t[idx:]})
	}
	return nil
}

// externalPlugin keeps every import matched by ext out of the bundle.
func externalPlugin(ext engine.External) api.Plugin {
	return api.Plugin{
		Name: "tachyon:external",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					if ext.Matches(args.Path, args.Importer, false) {
						return api.OnResolveResult{Path: args.Path, External: true}, nil
					}
					return api.OnResolveResult{}, nil
				})
		},
	}
}
