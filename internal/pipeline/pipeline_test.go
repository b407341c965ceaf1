package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/events"
)

func TestBuilderStageOrder(t *testing.T) {
	noop := func(context.Context, events.BundleWritten) {}

	tests := []struct {
		name string
		p    *Pipeline
		want []StageName
	}{
		{
			name: "renderer",
			p:    NewBuilder(config.TargetRenderer).WithDefaults(engine.UserConfig{}).Build(),
			want: []StageName{StageDefaultOverlay},
		},
		{
			name: "preload dev",
			p: NewBuilder(config.TargetPreload).WithDefaults(engine.UserConfig{}).WithExternalize().
				WithReloadHook(noop).Build(),
			want: []StageName{StageDefaultOverlay, StageExternalize, StageReloadHook},
		},
		{
			name: "main dev without restart",
			p: NewBuilder(config.TargetMain).WithDefaults(engine.UserConfig{}).WithExternalize().
				WithRestartHook(nil).Build(),
			want: []StageName{StageDefaultOverlay, StageExternalize},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Stages())
		})
	}
}

func TestPipelineInlineAppliesPluginsInOrder(t *testing.T) {
	p := NewBuilder(config.TargetMain).
		WithDefaults(engine.UserConfig{Build: engine.BuildOptions{OutDir: "dist"}}).
		WithExternalize().
		Build()

	ic := p.Inline("/project/vite.main.config.ts", "development", nil)
	assert.Equal(t, "main", ic.Target)
	assert.Equal(t, "/project/vite.main.config.ts", ic.ConfigFile)
	require.Len(t, ic.Plugins, 2)

	cfg := &engine.UserConfig{}
	require.NoError(t, engine.ApplyPlugins(cfg, engine.ConfigEnv{}, ic.Plugins))
	assert.Equal(t, "dist", cfg.Build.OutDir)
	assert.True(t, cfg.Build.External.Matches("electron", "", false))
}

func TestBuildIsolatesPipelines(t *testing.T) {
	b := NewBuilder(config.TargetPreload).WithDefaults(engine.UserConfig{})
	first := b.Build()
	b.WithExternalize()
	assert.Len(t, first.Stages(), 1)
	assert.Len(t, b.Build().Stages(), 2)
}

func TestSubscribeRunsHooksForOwnTarget(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var (
		mu   sync.Mutex
		seen []string
	)
	got := make(chan struct{}, 4)
	record := func(name string) Hook {
		return func(_ context.Context, evt events.BundleWritten) {
			mu.Lock()
			seen = append(seen, name+":"+evt.Target)
			mu.Unlock()
			got <- struct{}{}
		}
	}

	p := NewBuilder(config.TargetMain).WithExternalize().
		WithReloadHook(record("reload")).
		WithRestartHook(record("restart")).
		Build()
	assert.True(t, p.HasHooks())

	stop := p.Subscribe(t.Context(), bus, nil)
	require.NoError(t, bus.Publish(t.Context(), events.BundleWritten{Target: "preload"}))
	require.NoError(t, bus.Publish(t.Context(), events.BundleWritten{Target: "main", Initial: true}))

	for range 2 {
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("hook not called")
		}
	}
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"reload:main", "restart:main"}, seen)
}

func TestSubscribeWithoutHooksIsNoop(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	p := NewBuilder(config.TargetRenderer).Build()
	stop := p.Subscribe(t.Context(), bus, nil)
	assert.Zero(t, events.SubscriberCount[events.BundleWritten](bus))
	stop()
}
