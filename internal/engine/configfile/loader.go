// Package configfile evaluates vite.<target>.config.* files.
//
// A config file is bundled with esbuild into a single IIFE (TypeScript and
// ES modules included) and executed in a goja runtime. The default export may
// be an object, a function receiving {command, mode}, or a promise of either.
// The resulting value is decoded into engine.UserConfig.
package configfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
)

const globalName = "__tachyon_config__"

// Loader implements engine.ConfigLoader.
type Loader struct {
	logger *slog.Logger
}

// NewLoader returns a Loader that routes console output of config files to
// logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load bundles, evaluates and decodes the config file at path.
func (l *Loader) Load(path string, env engine.ConfigEnv) (*engine.UserConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, loadError(err, path, "resolve config file path")
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, loadError(err, abs, "config file not found")
	}

	code, err := bundle(abs)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	logger := l.logger.With(logfields.ConfigFile(abs))
	if err := installGlobals(vm, abs, logger); err != nil {
		return nil, loadError(err, abs, "prepare config runtime")
	}

	if _, err := vm.RunScript(abs, code); err != nil {
		return nil, loadError(err, abs, "evaluate config file")
	}

	exported, err := defaultExport(vm)
	if err != nil {
		return nil, loadError(err, abs, "read config export")
	}
	value, err := settle(vm, exported, env)
	if err != nil {
		return nil, loadError(err, abs, "evaluate config export")
	}

	d := &decoder{vm: vm, mu: &sync.Mutex{}, logger: logger}
	cfg, err := d.userConfig(value)
	if err != nil {
		return nil, loadError(err, abs, "decode config")
	}
	return cfg, nil
}

func loadError(err error, path, msg string) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, msg).
		WithContext("config_file", path).
		UserAction().
		Build()
}

func bundle(path string) (string, error) {
	dir := filepath.Dir(path)
	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{path},
		AbsWorkingDir: dir,
		Bundle:        true,
		Write:         false,
		Format:        api.FormatIIFE,
		GlobalName:    globalName,
		Platform:      api.PlatformNode,
		Target:        api.ES2017,
		LogLevel:      api.LogLevelSilent,
		Define: map[string]string{
			"import.meta.url":      jsonString("file://" + filepath.ToSlash(path)),
			"import.meta.dirname":  jsonString(dir),
			"import.meta.filename": jsonString(path),
		},
		Plugins: []api.Plugin{shimPlugin()},
	})
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return "", ferrors.ConfigError("bundle config file").
			WithContext("config_file", path).
			WithCause(fmt.Errorf("%s", strings.Join(msgs, ""))).
			Build()
	}
	if len(result.OutputFiles) == 0 {
		return "", ferrors.InternalError("bundling the config file produced no output").
			WithContext("config_file", path).
			Build()
	}
	return string(result.OutputFiles[0].Contents), nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// defaultExport returns module.default, or the namespace itself for files
// that assign module.exports directly.
func defaultExport(vm *goja.Runtime) (goja.Value, error) {
	ns := vm.Get(globalName)
	if isNullish(ns) {
		return nil, fmt.Errorf("config file has no export")
	}
	obj := ns.ToObject(vm)
	if def := obj.Get("default"); !isNullish(def) {
		return def, nil
	}
	return ns, nil
}

// settle calls a function export and unwraps promises until a plain value
// remains.
func settle(vm *goja.Runtime, v goja.Value, env engine.ConfigEnv) (goja.Value, error) {
	for range 8 {
		if fn, ok := goja.AssertFunction(v); ok {
			arg := vm.NewObject()
			_ = arg.Set("command", string(env.Command))
			_ = arg.Set("mode", env.Mode)
			res, err := fn(goja.Undefined(), arg)
			if err != nil {
				return nil, err
			}
			v = res
			continue
		}
		if p, ok := v.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				v = p.Result()
				continue
			case goja.PromiseStateRejected:
				return nil, fmt.Errorf("config promise rejected: %s", p.Result().String())
			default:
				return nil, fmt.Errorf("config promise did not settle; asynchronous I/O is not available while loading config files")
			}
		}
		return v, nil
	}
	return nil, fmt.Errorf("config export nests too many functions or promises")
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func installGlobals(vm *goja.Runtime, file string, logger *slog.Logger) error {
	dir := filepath.Dir(file)

	env := vm.NewObject()
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			_ = env.Set(k, v)
		}
	}
	process := vm.NewObject()
	_ = process.Set("env", env)
	_ = process.Set("platform", nodePlatform())
	_ = process.Set("argv", []string{})
	_ = process.Set("cwd", func() string {
		wd, err := os.Getwd()
		if err != nil {
			return dir
		}
		return wd
	})

	console := vm.NewObject()
	logAt := func(level slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			logger.Log(context.Background(), level, strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logAt(slog.LevelInfo))
	_ = console.Set("info", logAt(slog.LevelInfo))
	_ = console.Set("debug", logAt(slog.LevelDebug))
	_ = console.Set("warn", logAt(slog.LevelWarn))
	_ = console.Set("error", logAt(slog.LevelError))

	modules := map[string]goja.Value{
		"path": vm.ToValue(pathModule()),
		"url":  vm.ToValue(urlModule()),
	}
	require := func(call goja.FunctionCall) goja.Value {
		name := strings.TrimPrefix(call.Argument(0).String(), "node:")
		if m, ok := modules[name]; ok {
			return m
		}
		panic(vm.NewTypeError("module %q is not available while evaluating config files", call.Argument(0).String()))
	}

	for name, value := range map[string]any{
		"process":    process,
		"console":    console,
		"require":    require,
		"__dirname":  dir,
		"__filename": file,
	} {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func nodePlatform() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}

func pathModule() map[string]any {
	return map[string]any{
		"sep":        string(filepath.Separator),
		"delimiter":  string(filepath.ListSeparator),
		"join":       filepath.Join,
		"normalize":  filepath.Clean,
		"dirname":    filepath.Dir,
		"extname":    filepath.Ext,
		"isAbsolute": filepath.IsAbs,
		"basename": func(p string, ext ...string) string {
			base := filepath.Base(p)
			if len(ext) > 0 {
				base = strings.TrimSuffix(base, ext[0])
			}
			return base
		},
		"relative": func(from, to string) string {
			rel, err := filepath.Rel(from, to)
			if err != nil {
				return to
			}
			return rel
		},
		"resolve": func(parts ...string) string {
			p, err := os.Getwd()
			if err != nil {
				p = string(filepath.Separator)
			}
			for _, s := range parts {
				switch {
				case s == "":
				case filepath.IsAbs(s):
					p = s
				default:
					p = filepath.Join(p, s)
				}
			}
			return filepath.Clean(p)
		},
	}
}

func urlModule() map[string]any {
	return map[string]any{
		"fileURLToPath": func(u string) string {
			return filepath.FromSlash(strings.TrimPrefix(u, "file://"))
		},
	}
}
