package config

import (
	"errors"

	"git.home.luguber.info/inful/tachyon/internal/foundation/normalization"
)

// Target is one of the three independently configured and built parts of the
// application.
type Target string

const (
	TargetRenderer Target = "renderer"
	TargetPreload  Target = "preload"
	TargetMain     Target = "main"
)

// Targets returns every target in build order. The renderer comes first
// because its dev-server URL is published for the other two.
func Targets() []Target {
	return []Target{TargetRenderer, TargetPreload, TargetMain}
}

func (t Target) String() string { return string(t) }

// ConfigBaseName is the conventional config file name, without extension,
// looked up in the project root.
func (t Target) ConfigBaseName() string {
	return "vite." + string(t) + ".config"
}

// ConfigExtensions lists the extensions tried, in order, during conventional
// config file lookup.
var ConfigExtensions = []string{".js", ".ts", ".mjs", ".cjs", ".mts", ".cts"}

var targetNormalizer = normalization.NewNormalizer("target", map[string]Target{
	"renderer": TargetRenderer,
	"preload":  TargetPreload,
	"main":     TargetMain,
}, "")

// ParseTarget parses a target name.
func ParseTarget(raw string) (Target, error) {
	t, err := targetNormalizer.Parse(raw)
	if err == nil && t == "" {
		return "", errors.New("target name is required")
	}
	return t, err
}
