package config

// Environment variables the orchestrator reads or publishes.
const (
	// NodeEnvVar is set to the command's default when it is not already present.
	NodeEnvVar = "NODE_ENV"
	// RendererServerURLVar carries the renderer dev-server URL to the preload and
	// main builds and to the host process.
	RendererServerURLVar = "RENDERER_SERVER_URL"
)

// FileRef is a per-target config file override. The zero value means "look up
// the conventional file".
type FileRef struct {
	Path     string
	Disabled bool
}

// Disable returns a FileRef that switches the target off.
func Disable() FileRef { return FileRef{Disabled: true} }

// File returns a FileRef pointing at an explicit config file.
func File(path string) FileRef { return FileRef{Path: path} }

// ConfigFiles groups the per-target overrides.
type ConfigFiles struct {
	Main     FileRef
	Preload  FileRef
	Renderer FileRef
}

// For returns the override for t.
func (c ConfigFiles) For(t Target) FileRef {
	switch t {
	case TargetMain:
		return c.Main
	case TargetPreload:
		return c.Preload
	case TargetRenderer:
		return c.Renderer
	}
	return FileRef{}
}

// EnvDir locates env files. The zero value lets the engine use the project root.
type EnvDir struct {
	Path     string
	Disabled bool
}

// RawConfig is the partial, unvalidated input collected from the CLI. It can
// only become a *Resolved through Resolve.
type RawConfig struct {
	Root        string
	Mode        string
	LogLevel    string
	EnvDir      EnvDir
	EnvPrefix   []string
	ConfigFiles ConfigFiles
	// AutoRestart and AutoReloadPreload default to true when nil.
	AutoRestart       *bool
	AutoReloadPreload *bool
}

// Defaults carries the command-specific fallbacks applied by Resolve.
type Defaults struct {
	Mode    string
	NodeEnv string
}

// DevDefaults are used by the dev command.
var DevDefaults = Defaults{Mode: "development", NodeEnv: "development"}

// BuildDefaults are used by the build command.
var BuildDefaults = Defaults{Mode: "production", NodeEnv: "production"}
