package configfile

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"github.com/dop251/goja"

	"git.home.luguber.info/inful/tachyon/internal/engine"
)

// decoder converts evaluated JavaScript values into engine.UserConfig. The
// runtime is not safe for concurrent use, so function values that outlive
// loading share mu.
type decoder struct {
	vm     *goja.Runtime
	mu     *sync.Mutex
	logger *slog.Logger
}

type kind int

const (
	kindNullish kind = iota
	kindString
	kindBool
	kindNumber
	kindArray
	kindFunction
	kindRegExp
	kindObject
)

func kindOf(v goja.Value) kind {
	if isNullish(v) {
		return kindNullish
	}
	if _, ok := goja.AssertFunction(v); ok {
		return kindFunction
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Array":
			return kindArray
		case "RegExp":
			return kindRegExp
		default:
			return kindObject
		}
	}
	switch v.Export().(type) {
	case string:
		return kindString
	case bool:
		return kindBool
	case int64, float64:
		return kindNumber
	}
	return kindObject
}

func (d *decoder) userConfig(v goja.Value) (*engine.UserConfig, error) {
	root, err := d.object(v, "config")
	if err != nil {
		return nil, err
	}
	cfg := &engine.UserConfig{}
	if root == nil {
		return cfg, nil
	}

	if cfg.Root, err = d.str(root, "root"); err != nil {
		return nil, err
	}
	if cfg.Base, err = d.str(root, "base"); err != nil {
		return nil, err
	}
	if cfg.Mode, err = d.str(root, "mode"); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = d.str(root, "logLevel"); err != nil {
		return nil, err
	}
	if cfg.PublicDir, err = d.pathOption(root, "publicDir"); err != nil {
		return nil, err
	}
	if cfg.EnvDir, err = d.pathOption(root, "envDir"); err != nil {
		return nil, err
	}
	if cfg.EnvPrefix, err = d.strList(root, "envPrefix"); err != nil {
		return nil, err
	}
	if cfg.Define, err = d.define(root.Get("define")); err != nil {
		return nil, err
	}
	if plugins := root.Get("plugins"); kindOf(plugins) == kindArray && plugins.ToObject(d.vm).Get("length").ToInteger() > 0 {
		d.logger.Warn("Config file plugins are not supported and will be ignored")
	}

	if err := d.build(root.Get("build"), &cfg.Build); err != nil {
		return nil, err
	}
	if err := d.resolve(root.Get("resolve"), &cfg.Resolve); err != nil {
		return nil, err
	}
	if err := d.server(root.Get("server"), &cfg.Server); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *decoder) build(v goja.Value, out *engine.BuildOptions) error {
	obj, err := d.object(v, "build")
	if err != nil || obj == nil {
		return err
	}
	if out.OutDir, err = d.str(obj, "outDir"); err != nil {
		return err
	}
	if out.Target, err = d.targetValue(obj.Get("target")); err != nil {
		return err
	}
	if out.EmptyOutDir, err = d.toggle(obj, "emptyOutDir"); err != nil {
		return err
	}
	if out.Sourcemap, err = d.sourcemap(obj.Get("sourcemap")); err != nil {
		return err
	}
	if out.Minify, err = d.minify(obj.Get("minify")); err != nil {
		return err
	}

	switch w := obj.Get("watch"); kindOf(w) {
	case kindNullish:
	case kindBool:
		if w.ToBoolean() {
			out.Watch = &engine.WatchOptions{}
		}
	case kindObject:
		wo := w.ToObject(d.vm)
		out.Watch = &engine.WatchOptions{}
		if out.Watch.Exclude, err = d.strList(wo, "exclude"); err != nil {
			return err
		}
		if n := wo.Get("buildDelay"); kindOf(n) == kindNumber {
			out.Watch.DebounceMS = int(n.ToInteger())
		}
	default:
		return fmt.Errorf("build.watch: expected object, boolean or null")
	}

	if lib := obj.Get("lib"); kindOf(lib) == kindObject {
		lo := lib.ToObject(d.vm)
		out.Lib = &engine.LibOptions{}
		entries, err := d.entries(lo.Get("entry"), "build.lib.entry")
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			out.Lib.Entry = entries[0]
		}
		if out.Lib.Formats, err = d.strList(lo, "formats"); err != nil {
			return err
		}
		if out.Lib.FileName, err = d.str(lo, "fileName"); err != nil {
			return fmt.Errorf("build.lib.fileName: only string values are supported")
		}
	}

	rollup, err := d.object(obj.Get("rollupOptions"), "build.rollupOptions")
	if err != nil || rollup == nil {
		return err
	}
	if out.Input, err = d.entries(rollup.Get("input"), "build.rollupOptions.input"); err != nil {
		return err
	}
	if out.External, err = d.external(rollup.Get("external")); err != nil {
		return err
	}
	output := rollup.Get("output")
	if kindOf(output) == kindArray {
		output = output.ToObject(d.vm).Get("0")
	}
	oo, err := d.object(output, "build.rollupOptions.output")
	if err != nil || oo == nil {
		return err
	}
	if out.Output.Format, err = d.str(oo, "format"); err != nil {
		return err
	}
	if out.Output.EntryFileNames, err = d.str(oo, "entryFileNames"); err != nil {
		return fmt.Errorf("build.rollupOptions.output.entryFileNames: only string values are supported")
	}
	if out.Output.InlineDynamicImports, err = d.toggle(oo, "inlineDynamicImports"); err != nil {
		return err
	}
	return nil
}

func (d *decoder) resolve(v goja.Value, out *engine.ResolveOptions) error {
	obj, err := d.object(v, "resolve")
	if err != nil || obj == nil {
		return err
	}
	if out.Conditions, err = d.strList(obj, "conditions"); err != nil {
		return err
	}
	if out.MainFields, err = d.strList(obj, "mainFields"); err != nil {
		return err
	}
	alias := obj.Get("alias")
	switch kindOf(alias) {
	case kindNullish:
	case kindObject:
		ao := alias.ToObject(d.vm)
		out.Alias = map[string]string{}
		for _, k := range ao.Keys() {
			target := ao.Get(k)
			if kindOf(target) != kindString {
				return fmt.Errorf("resolve.alias.%s: expected string", k)
			}
			out.Alias[k] = target.String()
		}
	case kindArray:
		ao := alias.ToObject(d.vm)
		out.Alias = map[string]string{}
		for i := range ao.Get("length").ToInteger() {
			entry, err := d.object(ao.Get(strconv.FormatInt(i, 10)), "resolve.alias entry")
			if err != nil || entry == nil {
				return err
			}
			find := entry.Get("find")
			if kindOf(find) != kindString {
				return fmt.Errorf("resolve.alias: only string find values are supported")
			}
			repl, err := d.str(entry, "replacement")
			if err != nil {
				return err
			}
			out.Alias[find.String()] = repl
		}
	default:
		return fmt.Errorf("resolve.alias: expected object or array")
	}
	return nil
}

func (d *decoder) server(v goja.Value, out *engine.ServerOptions) error {
	obj, err := d.object(v, "server")
	if err != nil || obj == nil {
		return err
	}
	switch h := obj.Get("host"); kindOf(h) {
	case kindNullish:
	case kindString:
		out.Host = h.String()
	case kindBool:
		if h.ToBoolean() {
			out.Host = "0.0.0.0"
		}
	default:
		return fmt.Errorf("server.host: expected string or boolean")
	}
	switch p := obj.Get("port"); kindOf(p) {
	case kindNullish:
	case kindNumber:
		out.Port = int(p.ToInteger())
	default:
		return fmt.Errorf("server.port: expected number")
	}
	out.StrictPort, err = d.toggle(obj, "strictPort")
	return err
}

func (d *decoder) object(v goja.Value, field string) (*goja.Object, error) {
	switch kindOf(v) {
	case kindNullish:
		return nil, nil
	case kindObject:
		return v.ToObject(d.vm), nil
	default:
		return nil, fmt.Errorf("%s: expected object", field)
	}
}

func (d *decoder) str(obj *goja.Object, key string) (string, error) {
	v := obj.Get(key)
	switch kindOf(v) {
	case kindNullish:
		return "", nil
	case kindString:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%s: expected string", key)
	}
}

func (d *decoder) strList(obj *goja.Object, key string) ([]string, error) {
	v := obj.Get(key)
	switch kindOf(v) {
	case kindNullish:
		return nil, nil
	case kindString:
		return []string{v.String()}, nil
	case kindArray:
		arr := v.ToObject(d.vm)
		n := arr.Get("length").ToInteger()
		out := make([]string, 0, n)
		for i := range n {
			item := arr.Get(strconv.FormatInt(i, 10))
			if kindOf(item) != kindString {
				return nil, fmt.Errorf("%s[%d]: expected string", key, i)
			}
			out = append(out, item.String())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected string or array of strings", key)
	}
}

func (d *decoder) toggle(obj *goja.Object, key string) (engine.Toggle, error) {
	v := obj.Get(key)
	switch kindOf(v) {
	case kindNullish:
		return engine.ToggleUnset, nil
	case kindBool:
		return engine.Bool(v.ToBoolean()), nil
	default:
		return engine.ToggleUnset, fmt.Errorf("%s: expected boolean", key)
	}
}

func (d *decoder) pathOption(obj *goja.Object, key string) (engine.PathOption, error) {
	v := obj.Get(key)
	switch kindOf(v) {
	case kindNullish:
		return engine.PathOption{}, nil
	case kindString:
		return engine.PathOption{Path: v.String()}, nil
	case kindBool:
		if v.ToBoolean() {
			return engine.PathOption{}, fmt.Errorf("%s: true is not a directory", key)
		}
		return engine.DisabledPath(), nil
	default:
		return engine.PathOption{}, fmt.Errorf("%s: expected string or false", key)
	}
}

func (d *decoder) sourcemap(v goja.Value) (engine.Sourcemap, error) {
	switch kindOf(v) {
	case kindNullish:
		return engine.SourcemapUnset, nil
	case kindBool:
		if v.ToBoolean() {
			return engine.SourcemapLinked, nil
		}
		return engine.SourcemapOff, nil
	case kindString:
		switch s := engine.Sourcemap(v.String()); s {
		case engine.SourcemapInline, engine.SourcemapHidden:
			return s, nil
		}
	}
	return engine.SourcemapUnset, fmt.Errorf("build.sourcemap: expected boolean, \"inline\" or \"hidden\"")
}

func (d *decoder) minify(v goja.Value) (engine.Toggle, error) {
	switch kindOf(v) {
	case kindNullish:
		return engine.ToggleUnset, nil
	case kindBool:
		return engine.Bool(v.ToBoolean()), nil
	case kindString:
		// "esbuild" and "terser" both mean minify.
		return engine.ToggleOn, nil
	default:
		return engine.ToggleUnset, fmt.Errorf("build.minify: expected boolean or string")
	}
}

func (d *decoder) targetValue(v goja.Value) (string, error) {
	switch kindOf(v) {
	case kindNullish:
		return "", nil
	case kindString:
		return v.String(), nil
	case kindArray:
		list, err := d.strList(d.wrap("target", v), "target")
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "", nil
		}
		return list[0], nil
	default:
		return "", fmt.Errorf("build.target: expected string or array")
	}
}

// entries accepts a string, an array of strings or an object of name→path.
// Object entries are ordered by name.
func (d *decoder) entries(v goja.Value, field string) ([]string, error) {
	switch kindOf(v) {
	case kindNullish:
		return nil, nil
	case kindString, kindArray:
		return d.strList(d.wrap(field, v), field)
	case kindObject:
		obj := v.ToObject(d.vm)
		keys := obj.Keys()
		slices.Sort(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			item := obj.Get(k)
			if kindOf(item) != kindString {
				return nil, fmt.Errorf("%s.%s: expected string", field, k)
			}
			out = append(out, item.String())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected string, array or object", field)
	}
}

func (d *decoder) define(v goja.Value) (map[string]string, error) {
	obj, err := d.object(v, "define")
	if err != nil || obj == nil {
		return nil, err
	}
	stringify, ok := goja.AssertFunction(d.vm.Get("JSON").ToObject(d.vm).Get("stringify"))
	if !ok {
		return nil, fmt.Errorf("JSON.stringify is not available")
	}
	out := map[string]string{}
	for _, k := range obj.Keys() {
		val := obj.Get(k)
		if kindOf(val) == kindString {
			out[k] = val.String()
			continue
		}
		encoded, err := stringify(goja.Undefined(), val)
		if err != nil {
			return nil, fmt.Errorf("define.%s: %w", k, err)
		}
		out[k] = encoded.String()
	}
	return out, nil
}

// external decodes build.rollupOptions.external. A function becomes a Go
// predicate that calls back into the runtime under d.mu.
func (d *decoder) external(v goja.Value) (engine.External, error) {
	switch kindOf(v) {
	case kindNullish:
		return engine.External{}, nil
	case kindFunction:
		fn, _ := goja.AssertFunction(v)
		return engine.External{Predicate: d.predicate(fn)}, nil
	case kindString, kindRegExp:
		p, err := d.pattern(v)
		if err != nil {
			return engine.External{}, err
		}
		return engine.External{Patterns: []engine.Pattern{p}}, nil
	case kindArray:
		arr := v.ToObject(d.vm)
		n := arr.Get("length").ToInteger()
		patterns := make([]engine.Pattern, 0, n)
		for i := range n {
			p, err := d.pattern(arr.Get(strconv.FormatInt(i, 10)))
			if err != nil {
				return engine.External{}, err
			}
			patterns = append(patterns, p)
		}
		return engine.External{Patterns: patterns}, nil
	default:
		return engine.External{}, fmt.Errorf("build.rollupOptions.external: expected function, string, RegExp or array")
	}
}

func (d *decoder) pattern(v goja.Value) (engine.Pattern, error) {
	switch kindOf(v) {
	case kindString:
		return engine.Literal(v.String()), nil
	case kindRegExp:
		source := v.ToObject(d.vm).Get("source").String()
		re, err := regexp.Compile(source)
		if err != nil {
			return engine.Pattern{}, fmt.Errorf("external pattern /%s/: %w", source, err)
		}
		return engine.MatchRegexp(re), nil
	default:
		return engine.Pattern{}, fmt.Errorf("external entries must be strings or regular expressions")
	}
}

func (d *decoder) predicate(fn goja.Callable) engine.ExternalFunc {
	return func(source, importer string, isResolved bool) bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		var imp goja.Value = goja.Undefined()
		if importer != "" {
			imp = d.vm.ToValue(importer)
		}
		res, err := fn(goja.Undefined(), d.vm.ToValue(source), imp, d.vm.ToValue(isResolved))
		if err != nil {
			d.logger.Warn("external predicate failed", slog.String("source", source), slog.Any("error", err))
			return false
		}
		return res.ToBoolean()
	}
}

// wrap places v under key on a fresh object so list helpers can read it.
func (d *decoder) wrap(key string, v goja.Value) *goja.Object {
	obj := d.vm.NewObject()
	_ = obj.Set(key, v)
	return obj
}
