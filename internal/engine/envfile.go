package engine

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

// DefaultEnvPrefix is exposed to bundled code when no prefix is configured.
const DefaultEnvPrefix = "VITE_"

// EnvFiles lists the env files read for mode, lowest precedence first.
func EnvFiles(mode string) []string {
	return []string{
		".env",
		".env.local",
		".env." + mode,
		".env." + mode + ".local",
	}
}

// LoadEnv reads the env files of mode from dir and returns the variables
// whose name starts with one of prefixes. Variables already present in the
// process environment win over file values. A disabled dir skips the files
// but still exposes matching process variables.
func LoadEnv(mode string, dir PathOption, root string, prefixes []string) (map[string]string, error) {
	if len(prefixes) == 0 {
		prefixes = []string{DefaultEnvPrefix}
	}
	if slices.Contains(prefixes, "") {
		return nil, ferrors.ConfigError("envPrefix must not contain an empty string, it would expose every environment variable").Build()
	}

	merged := map[string]string{}
	if !dir.Disabled {
		envDir := dir.Path
		if envDir == "" {
			envDir = root
		} else if !filepath.IsAbs(envDir) {
			envDir = filepath.Join(root, envDir)
		}
		for _, name := range EnvFiles(mode) {
			path := filepath.Join(envDir, name)
			values, err := godotenv.Read(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read env file").
					WithContext("path", path).
					Build()
			}
			maps.Copy(merged, values)
		}
	}

	out := map[string]string{}
	for k, v := range merged {
		if hasAnyPrefix(k, prefixes) {
			out[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && hasAnyPrefix(k, prefixes) {
			out[k] = v
		}
	}
	return out, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(s, p) })
}
