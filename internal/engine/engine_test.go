package engine

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type stubLoader struct {
	cfg  *UserConfig
	err  error
	seen []ConfigEnv
}

func (l *stubLoader) Load(_ string, env ConfigEnv) (*UserConfig, error) {
	l.seen = append(l.seen, env)
	if l.err != nil {
		return nil, l.err
	}
	return l.cfg, nil
}

func TestToggle(t *testing.T) {
	assert.True(t, ToggleUnset.Enabled(true))
	assert.False(t, ToggleUnset.Enabled(false))
	assert.True(t, Bool(true).Enabled(false))
	assert.False(t, Bool(false).Enabled(true))
	assert.False(t, ToggleUnset.IsSet())
	assert.True(t, ToggleOff.IsSet())
}

func TestExternalMatches(t *testing.T) {
	list := External{Patterns: []Pattern{Literal("electron"), MatchRegexp(regexp.MustCompile(`^node:`))}}
	assert.True(t, list.Matches("electron", "", false))
	assert.True(t, list.Matches("node:fs", "", false))
	assert.False(t, list.Matches("lodash", "", false))

	pred := External{Predicate: func(source, _ string, _ bool) bool { return source == "sqlite3" }}
	assert.True(t, pred.Matches("sqlite3", "", false))
	assert.False(t, pred.Matches("electron", "", false))

	assert.True(t, External{}.IsZero())
	assert.False(t, list.IsZero())
}

func TestUserConfigYAML(t *testing.T) {
	cfg := UserConfig{
		PublicDir: DisabledPath(),
		Build: BuildOptions{
			OutDir:      "dist/main",
			EmptyOutDir: ToggleOff,
			External:    ExternalList("electron"),
		},
	}
	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "publicDir: false")
	assert.Contains(t, text, "emptyOutDir: false")
	assert.Contains(t, text, "- electron")
	assert.NotContains(t, text, "minify")
	assert.NotContains(t, text, "server")
}

func TestResolveUserConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "vite.main.config.ts")
	loader := &stubLoader{cfg: &UserConfig{Build: BuildOptions{Minify: ToggleOff}}}

	var order []string
	plugins := []Plugin{
		NewPlugin("first", func(cfg *UserConfig, env ConfigEnv) error {
			order = append(order, "first")
			assert.Equal(t, CommandBuild, env.Command)
			cfg.Build.Sourcemap = SourcemapInline
			return nil
		}),
		NewPlugin("second", func(cfg *UserConfig, _ ConfigEnv) error {
			order = append(order, "second")
			assert.Equal(t, SourcemapInline, cfg.Build.Sourcemap)
			return nil
		}),
	}

	cfg, err := ResolveUserConfig(loader, InlineConfig{ConfigFile: file, Mode: "staging", Plugins: plugins}, CommandBuild)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "staging", cfg.Mode)
	assert.Equal(t, "dist", cfg.Build.OutDir)
	assert.Equal(t, "/", cfg.Base)
	assert.Equal(t, ToggleOff, cfg.Build.Minify)
	require.Len(t, loader.seen, 1)
	assert.Equal(t, ConfigEnv{Command: CommandBuild, Mode: "staging"}, loader.seen[0])
}

func TestResolveUserConfigPluginError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ResolveUserConfig(&stubLoader{cfg: &UserConfig{}}, InlineConfig{
		ConfigFile: "/tmp/vite.main.config.js",
		Plugins:    []Plugin{NewPlugin("broken", func(*UserConfig, ConfigEnv) error { return boom })},
	}, CommandServe)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "plugin broken")
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write(".env", "VITE_A=base\nVITE_B=base\nSECRET=hidden\n")
	write(".env.local", "VITE_B=local\n")
	write(".env.staging", "VITE_C=staging\n")
	t.Setenv("VITE_FROM_PROCESS", "proc")

	env, err := LoadEnv("staging", PathOption{}, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "base", env["VITE_A"])
	assert.Equal(t, "local", env["VITE_B"])
	assert.Equal(t, "staging", env["VITE_C"])
	assert.Equal(t, "proc", env["VITE_FROM_PROCESS"])
	assert.NotContains(t, env, "SECRET")

	env, err = LoadEnv("staging", DisabledPath(), dir, nil)
	require.NoError(t, err)
	assert.NotContains(t, env, "VITE_A")
	assert.Equal(t, "proc", env["VITE_FROM_PROCESS"])

	env, err = LoadEnv("staging", PathOption{}, dir, []string{"SEC"})
	require.NoError(t, err)
	assert.Equal(t, "hidden", env["SECRET"])

	_, err = LoadEnv("staging", PathOption{}, dir, []string{""})
	require.Error(t, err)
}
