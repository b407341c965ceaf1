package overlay

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tachyon/internal/engine"
)

func preloadDefaults() engine.UserConfig {
	return engine.UserConfig{
		Root:      "/project",
		Mode:      "development",
		PublicDir: engine.DisabledPath(),
		Build: engine.BuildOptions{
			OutDir:      "dist",
			EmptyOutDir: engine.ToggleOff,
			Sourcemap:   engine.SourcemapInline,
			Minify:      engine.ToggleOff,
			Watch:       &engine.WatchOptions{},
			Input:       []string{"src/preload.ts"},
			Output: engine.OutputOptions{
				Format:               "cjs",
				InlineDynamicImports: engine.ToggleOn,
				EntryFileNames:       "[name].js",
			},
		},
		Resolve: engine.ResolveOptions{
			Conditions: []string{"node"},
			MainFields: []string{"module", "jsnext:source", "jsnext:main"},
		},
	}
}

func TestDefaultsFileValuesWin(t *testing.T) {
	cfg := &engine.UserConfig{
		Build: engine.BuildOptions{
			Minify: engine.ToggleOn,
			Output: engine.OutputOptions{Format: "es"},
		},
		Define: map[string]string{"__A__": "1"},
	}
	p := Defaults("", preloadDefaults())
	assert.Equal(t, DefaultsName, p.Name())
	require.NoError(t, p.Config(cfg, engine.ConfigEnv{Command: engine.CommandBuild}))

	assert.Equal(t, engine.ToggleOn, cfg.Build.Minify, "explicit minify kept")
	assert.Equal(t, "es", cfg.Build.Output.Format, "explicit nested value kept")
	assert.Equal(t, "dist", cfg.Build.OutDir)
	assert.Equal(t, engine.SourcemapInline, cfg.Build.Sourcemap)
	assert.Equal(t, engine.ToggleOn, cfg.Build.Output.InlineDynamicImports)
	assert.Equal(t, "[name].js", cfg.Build.Output.EntryFileNames)
	assert.Equal(t, []string{"src/preload.ts"}, cfg.Build.Input)
	assert.NotNil(t, cfg.Build.Watch)
	assert.Equal(t, map[string]string{"__A__": "1"}, cfg.Define)
	assert.True(t, cfg.PublicDir.Disabled)
}

func TestDefaultsNeverOverwriteExplicitFalse(t *testing.T) {
	defaults := engine.UserConfig{Build: engine.BuildOptions{EmptyOutDir: engine.ToggleOn, Minify: engine.ToggleOn}}
	cfg := &engine.UserConfig{Build: engine.BuildOptions{EmptyOutDir: engine.ToggleOff}}

	require.NoError(t, Merge(cfg, defaults))
	assert.Equal(t, engine.ToggleOff, cfg.Build.EmptyOutDir)
	assert.Equal(t, engine.ToggleOn, cfg.Build.Minify)
}

func TestDefaultsKeepAtomicValuesWhole(t *testing.T) {
	defaults := engine.UserConfig{
		PublicDir: engine.PathOption{Path: "public"},
		EnvDir:    engine.DisabledPath(),
		Build:     engine.BuildOptions{External: engine.ExternalList("electron")},
	}
	cfg := &engine.UserConfig{
		PublicDir: engine.DisabledPath(),
		Build:     engine.BuildOptions{External: engine.External{Predicate: func(string, string, bool) bool { return false }}},
	}

	require.NoError(t, Merge(cfg, defaults))
	assert.Equal(t, engine.DisabledPath(), cfg.PublicDir, "disabled path not combined with default path")
	assert.Equal(t, engine.DisabledPath(), cfg.EnvDir, "unset path takes the default")
	assert.Empty(t, cfg.Build.External.Patterns, "declared predicate not combined with default list")
	assert.False(t, cfg.Build.External.Matches("electron", "", false))
}

func TestDefaultsDoNotShareState(t *testing.T) {
	defaults := preloadDefaults()
	p := Defaults("preload", defaults)

	first := &engine.UserConfig{}
	require.NoError(t, p.Config(first, engine.ConfigEnv{}))
	first.Build.Input[0] = "mutated.ts"
	first.Build.Watch.Exclude = append(first.Build.Watch.Exclude, "x")
	first.Resolve.Conditions[0] = "browser"

	second := &engine.UserConfig{}
	require.NoError(t, p.Config(second, engine.ConfigEnv{}))
	assert.Equal(t, []string{"src/preload.ts"}, second.Build.Input)
	assert.Empty(t, second.Build.Watch.Exclude)
	assert.Equal(t, []string{"node"}, second.Resolve.Conditions)
	assert.Equal(t, []string{"src/preload.ts"}, defaults.Build.Input)
}

func TestDefaultsMergeLibPointer(t *testing.T) {
	defaults := engine.UserConfig{Build: engine.BuildOptions{
		Lib: &engine.LibOptions{Entry: "src/main.ts", Formats: []string{"cjs"}, FileName: "[name]"},
	}}
	cfg := &engine.UserConfig{Build: engine.BuildOptions{Lib: &engine.LibOptions{Entry: "src/app.ts"}}}

	require.NoError(t, Merge(cfg, defaults))
	assert.Equal(t, "src/app.ts", cfg.Build.Lib.Entry)
	assert.Equal(t, []string{"cjs"}, cfg.Build.Lib.Formats)
	assert.Equal(t, "[name]", cfg.Build.Lib.FileName)
}

func TestExternalModules(t *testing.T) {
	mods := ExternalModules()
	assert.Equal(t, "electron", mods[0])
	assert.Contains(t, mods, "node:fs")
	assert.Contains(t, mods, "node:fs/promises")
	assert.Contains(t, mods, "node:worker_threads")
	assert.NotContains(t, mods, "fs")
}

func applyExternalize(t *testing.T, cfg *engine.UserConfig) {
	t.Helper()
	p := Externalize()
	assert.Equal(t, ExternalizeName, p.Name())
	require.NoError(t, p.Config(cfg, engine.ConfigEnv{}))
}

func TestExternalizeAbsent(t *testing.T) {
	cfg := &engine.UserConfig{}
	applyExternalize(t, cfg)

	require.Len(t, cfg.Build.External.Patterns, len(ExternalModules()))
	assert.True(t, cfg.Build.External.Matches("electron", "", false))
	assert.True(t, cfg.Build.External.Matches("node:path", "", false))
	assert.False(t, cfg.Build.External.Matches("lodash", "", false))
}

func TestExternalizePatternsIdempotent(t *testing.T) {
	cfg := &engine.UserConfig{Build: engine.BuildOptions{External: engine.External{Patterns: []engine.Pattern{
		engine.Literal("sqlite3"),
		engine.Literal("electron"),
		engine.MatchRegexp(regexp.MustCompile(`^@aws-sdk/`)),
	}}}}

	applyExternalize(t, cfg)
	once := cfg.Build.External.Patterns
	applyExternalize(t, cfg)
	twice := cfg.Build.External.Patterns

	assert.Len(t, once, len(ExternalModules())+2, "electron is not duplicated")
	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].String(), twice[i].String())
	}
	assert.Equal(t, "electron", once[0].String(), "fixed list comes first")
	assert.True(t, cfg.Build.External.Matches("sqlite3", "", false))
	assert.True(t, cfg.Build.External.Matches("@aws-sdk/client-s3", "", false))
}

func TestExternalizeWrapsPredicate(t *testing.T) {
	var calls []string
	cfg := &engine.UserConfig{Build: engine.BuildOptions{External: engine.External{
		Predicate: func(source, _ string, _ bool) bool {
			calls = append(calls, source)
			return source == "better-sqlite3"
		},
	}}}

	applyExternalize(t, cfg)
	applyExternalize(t, cfg)
	ext := cfg.Build.External

	assert.Empty(t, ext.Patterns)
	assert.True(t, ext.Matches("node:os", "/project/src/main.ts", false))
	assert.Empty(t, calls, "fixed list answers before the user predicate")
	assert.True(t, ext.Matches("better-sqlite3", "", false))
	assert.False(t, ext.Matches("./local", "", false))
	assert.Equal(t, []string{"better-sqlite3", "./local"}, calls)
}

func TestDefaultsUnionListOptions(t *testing.T) {
	defaults := preloadDefaults()
	defaults.EnvPrefix = []string{"VITE_"}
	cfg := &engine.UserConfig{
		EnvPrefix: []string{"APP_", "VITE_"},
		Resolve: engine.ResolveOptions{
			Conditions: []string{"electron", "node"},
			MainFields: []string{"main"},
		},
		Build: engine.BuildOptions{Input: []string{"src/bridge.ts"}},
	}

	require.NoError(t, Merge(cfg, defaults))
	assert.Equal(t, []string{"node", "electron"}, cfg.Resolve.Conditions)
	assert.Equal(t, []string{"module", "jsnext:source", "jsnext:main", "main"}, cfg.Resolve.MainFields)
	assert.Equal(t, []string{"VITE_", "APP_"}, cfg.EnvPrefix)
	assert.Equal(t, []string{"src/bridge.ts"}, cfg.Build.Input, "entries are replaced, not appended")
}

func TestDefaultsListOptionsWithoutDefaults(t *testing.T) {
	cfg := &engine.UserConfig{Resolve: engine.ResolveOptions{Conditions: []string{"electron"}}}
	require.NoError(t, Merge(cfg, engine.UserConfig{}))
	assert.Equal(t, []string{"electron"}, cfg.Resolve.Conditions)
	assert.Nil(t, cfg.Resolve.MainFields)
	assert.Nil(t, cfg.EnvPrefix)
}
