package engine

import (
	"regexp"
	"slices"
)

// Toggle is a tri-state boolean. The zero value means "not configured", so a
// merge never confuses an explicit false with an absent field.
type Toggle uint8

const (
	ToggleUnset Toggle = iota
	ToggleOn
	ToggleOff
)

// Bool converts b to a set Toggle.
func Bool(b bool) Toggle {
	if b {
		return ToggleOn
	}
	return ToggleOff
}

// IsSet reports whether the toggle carries an explicit value.
func (t Toggle) IsSet() bool { return t != ToggleUnset }

// IsZero reports an unset toggle (used by yaml omitempty).
func (t Toggle) IsZero() bool { return t == ToggleUnset }

// Enabled resolves the toggle, falling back to def when unset.
func (t Toggle) Enabled(def bool) bool {
	switch t {
	case ToggleOn:
		return true
	case ToggleOff:
		return false
	default:
		return def
	}
}

func (t Toggle) MarshalYAML() (any, error) {
	switch t {
	case ToggleOn:
		return true, nil
	case ToggleOff:
		return false, nil
	default:
		return nil, nil
	}
}

// PathOption is a directory setting that can also be switched off
// (publicDir: false, envDir: false).
type PathOption struct {
	Path     string
	Disabled bool
}

// DisabledPath returns a switched-off PathOption.
func DisabledPath() PathOption { return PathOption{Disabled: true} }

// IsZero reports an unconfigured option.
func (p PathOption) IsZero() bool { return p.Path == "" && !p.Disabled }

func (p PathOption) MarshalYAML() (any, error) {
	if p.Disabled {
		return false, nil
	}
	return p.Path, nil
}

// Sourcemap selects how source maps are emitted.
type Sourcemap string

const (
	SourcemapUnset  Sourcemap = ""
	SourcemapOff    Sourcemap = "false"
	SourcemapLinked Sourcemap = "true"
	SourcemapInline Sourcemap = "inline"
	SourcemapHidden Sourcemap = "hidden"
)

// ExternalFunc decides whether an import specifier stays external.
type ExternalFunc func(source, importer string, isResolved bool) bool

// Pattern is one entry of a declared external list: a literal specifier or a
// regular expression.
type Pattern struct {
	Literal string
	Regexp  *regexp.Regexp
}

// Literal returns a Pattern matching exactly s.
func Literal(s string) Pattern { return Pattern{Literal: s} }

// MatchRegexp returns a Pattern matching re.
func MatchRegexp(re *regexp.Regexp) Pattern { return Pattern{Regexp: re} }

// Matches reports whether source matches the pattern.
func (p Pattern) Matches(source string) bool {
	if p.Regexp != nil {
		return p.Regexp.MatchString(source)
	}
	return p.Literal == source
}

func (p Pattern) String() string {
	if p.Regexp != nil {
		return "/" + p.Regexp.String() + "/"
	}
	return p.Literal
}

// External is the declared set of modules that must not be bundled. It has
// three shapes: a predicate, a pattern list, or absent (zero value).
type External struct {
	Predicate ExternalFunc
	Patterns  []Pattern
}

// ExternalList builds a pattern-list External from literal specifiers.
func ExternalList(specifiers ...string) External {
	patterns := make([]Pattern, 0, len(specifiers))
	for _, s := range specifiers {
		patterns = append(patterns, Literal(s))
	}
	return External{Patterns: patterns}
}

// IsZero reports the absent shape.
func (e External) IsZero() bool { return e.Predicate == nil && len(e.Patterns) == 0 }

// Matches reports whether source is external.
func (e External) Matches(source, importer string, isResolved bool) bool {
	if e.Predicate != nil {
		return e.Predicate(source, importer, isResolved)
	}
	return slices.ContainsFunc(e.Patterns, func(p Pattern) bool { return p.Matches(source) })
}

func (e External) MarshalYAML() (any, error) {
	if e.Predicate != nil {
		return "<function>", nil
	}
	out := make([]string, 0, len(e.Patterns))
	for _, p := range e.Patterns {
		out = append(out, p.String())
	}
	return out, nil
}

// UserConfig is the engine configuration of one target: what the target's
// config file declares, after plugins ran.
type UserConfig struct {
	Root      string            `yaml:"root,omitempty"`
	Base      string            `yaml:"base,omitempty"`
	Mode      string            `yaml:"mode,omitempty"`
	PublicDir PathOption        `yaml:"publicDir,omitempty"`
	EnvDir    PathOption        `yaml:"envDir,omitempty"`
	EnvPrefix []string          `yaml:"envPrefix,omitempty"`
	LogLevel  string            `yaml:"logLevel,omitempty"`
	Define    map[string]string `yaml:"define,omitempty"`
	Build     BuildOptions      `yaml:"build,omitempty"`
	Resolve   ResolveOptions    `yaml:"resolve,omitempty"`
	Server    ServerOptions     `yaml:"server,omitempty"`
}

// BuildOptions mirrors the build section of a config file. Input, Output and
// External correspond to build.rollupOptions.
type BuildOptions struct {
	OutDir      string        `yaml:"outDir,omitempty"`
	EmptyOutDir Toggle        `yaml:"emptyOutDir,omitempty"`
	Sourcemap   Sourcemap     `yaml:"sourcemap,omitempty"`
	Minify      Toggle        `yaml:"minify,omitempty"`
	Target      string        `yaml:"target,omitempty"`
	Watch       *WatchOptions `yaml:"watch,omitempty"`
	Lib         *LibOptions   `yaml:"lib,omitempty"`
	Input       []string      `yaml:"input,omitempty"`
	Output      OutputOptions `yaml:"output,omitempty"`
	External    External      `yaml:"external,omitempty"`
}

// WatchOptions enables watch mode when non-nil.
type WatchOptions struct {
	Exclude    []string `yaml:"exclude,omitempty"`
	DebounceMS int      `yaml:"debounceMs,omitempty"`
}

// LibOptions configures a library bundle (single entry).
type LibOptions struct {
	Entry    string   `yaml:"entry,omitempty"`
	Formats  []string `yaml:"formats,omitempty"`
	FileName string   `yaml:"fileName,omitempty"`
}

// OutputOptions mirrors build.rollupOptions.output.
type OutputOptions struct {
	Format               string `yaml:"format,omitempty"`
	InlineDynamicImports Toggle `yaml:"inlineDynamicImports,omitempty"`
	EntryFileNames       string `yaml:"entryFileNames,omitempty"`
}

// ResolveOptions mirrors the resolve section.
type ResolveOptions struct {
	Conditions []string          `yaml:"conditions,omitempty"`
	MainFields []string          `yaml:"mainFields,omitempty"`
	Alias      map[string]string `yaml:"alias,omitempty"`
}

// ServerOptions mirrors the server section used by the dev server.
type ServerOptions struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	StrictPort Toggle `yaml:"strictPort,omitempty"`
}
