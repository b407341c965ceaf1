package esbuild

import (
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

func mainConfig(root string) *engine.UserConfig {
	return &engine.UserConfig{
		Root: root,
		Base: "/",
		Mode: "production",
		Build: engine.BuildOptions{
			OutDir:   "dist/main",
			Lib:      &engine.LibOptions{Entry: "src/main.ts", Formats: []string{"cjs"}, FileName: "main.js"},
			External: engine.ExternalList("electron"),
		},
		Resolve: engine.ResolveOptions{Conditions: []string{"node"}, MainFields: []string{"module", "main"}},
	}
}

func TestNewPlanLibraryTarget(t *testing.T) {
	root := t.TempDir()
	p, err := newPlan(mainConfig(root), engine.CommandBuild, map[string]string{"VITE_X": "1"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "dist/main"), p.outDir)
	assert.Equal(t, api.PlatformNode, p.opts.Platform)
	assert.Equal(t, api.FormatCommonJS, p.opts.Format)
	assert.Equal(t, "main", p.opts.EntryNames)
	assert.True(t, p.opts.MinifySyntax, "production builds minify by default")
	assert.Equal(t, api.SourceMapNone, p.opts.Sourcemap)
	assert.Equal(t, []string{"module", "main"}, p.opts.MainFields)
	require.Len(t, p.opts.EntryPointsAdvanced, 1)
	assert.Equal(t, filepath.Join(root, "src/main.ts"), p.opts.EntryPointsAdvanced[0].InputPath)
	require.Len(t, p.opts.Plugins, 1)
	assert.Equal(t, "tachyon:external", p.opts.Plugins[0].Name)
	assert.Equal(t, `"production"`, p.opts.Define["import.meta.env.MODE"])
	assert.Equal(t, `"1"`, p.opts.Define["import.meta.env.VITE_X"])
	assert.Equal(t, "false", p.opts.Define["import.meta.env.DEV"])
	assert.Empty(t, p.pages)
}

func TestNewPlanRespectsExplicitValues(t *testing.T) {
	cfg := mainConfig(t.TempDir())
	cfg.Build.Minify = engine.ToggleOff
	cfg.Build.Sourcemap = engine.SourcemapLinked
	cfg.Build.Target = "node18, es2020"
	cfg.Define = map[string]string{"__APP__": `"x"`}

	p, err := newPlan(cfg, engine.CommandBuild, nil)
	require.NoError(t, err)
	assert.False(t, p.opts.MinifySyntax)
	assert.Equal(t, api.SourceMapLinked, p.opts.Sourcemap)
	assert.Equal(t, api.ES2020, p.opts.Target)
	assert.Equal(t, []api.Engine{{Name: api.EngineNode, Version: "18"}}, p.opts.Engines)
	assert.Equal(t, `"x"`, p.opts.Define["__APP__"])
}

func TestNewPlanServeDefaults(t *testing.T) {
	root := rendererProject(t)
	cfg := &engine.UserConfig{Root: root, Base: "/", Mode: "development", Build: engine.BuildOptions{OutDir: "dist"}}

	p, err := newPlan(cfg, engine.CommandServe, nil)
	require.NoError(t, err)
	assert.Equal(t, api.PlatformBrowser, p.opts.Platform)
	assert.Equal(t, api.FormatESModule, p.opts.Format)
	assert.Equal(t, api.SourceMapInline, p.opts.Sourcemap)
	assert.False(t, p.opts.MinifySyntax)
	assert.False(t, p.opts.Write)
	assert.Equal(t, "assets/[name]", p.opts.EntryNames)
	require.Len(t, p.pages, 1)
	assert.Equal(t, "index.html", p.pages[0].rel)
	require.Len(t, p.opts.EntryPointsAdvanced, 1)
	assert.Equal(t, filepath.Join(root, "src", "main.ts"), p.opts.EntryPointsAdvanced[0].InputPath)
}

func TestNewPlanErrors(t *testing.T) {
	root := t.TempDir()

	noEntry := &engine.UserConfig{Root: root, Build: engine.BuildOptions{OutDir: "dist", Lib: &engine.LibOptions{}}}
	_, err := newPlan(noEntry, engine.CommandBuild, nil)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	badFormat := mainConfig(root)
	badFormat.Build.Lib.Formats = []string{"amd"}
	_, err = newPlan(badFormat, engine.CommandBuild, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")

	badTarget := mainConfig(root)
	badTarget.Build.Target = "netscape4"
	_, err = newPlan(badTarget, engine.CommandBuild, nil)
	require.Error(t, err)
}

func TestIgnoreFunc(t *testing.T) {
	root := filepath.FromSlash("/project")
	ignore := ignoreFunc(root, filepath.Join(root, "dist"), []string{"*.test.ts"})

	tests := []struct {
		path   string
		ignore bool
	}{
		{"src/main.ts", false},
		{"dist/main.js", true},
		{"node_modules/electron/index.js", true},
		{".git/HEAD", true},
		{"src/.main.ts.swp", true},
		{"src/main.ts~", true},
		{"src/main.test.ts", true},
		{"index.html", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ignore, ignore(filepath.Join(root, filepath.FromSlash(tt.path))), tt.path)
	}
}

func TestPageRender(t *testing.T) {
	root := rendererProject(t)
	pg, err := loadPage(root, filepath.Join(root, "index.html"))
	require.NoError(t, err)
	require.Len(t, pg.scripts, 1)

	outputs := map[string]entryOutput{
		filepath.Join(root, "src", "main.ts"): {js: "assets/main.js", css: "assets/main.css"},
	}
	html := pg.render("./", outputs, "<!--inject-->\n")
	assert.Contains(t, html, `src="./assets/main.js"`)
	assert.Contains(t, html, `<link rel="stylesheet" href="./assets/main.css">`)
	assert.Contains(t, html, "<!--inject-->\n</body>")
	assert.NotContains(t, html, "/src/main.ts")
}
