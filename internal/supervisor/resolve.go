package supervisor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

// OverrideDistPathVar points at a custom Electron distribution directory.
const OverrideDistPathVar = "ELECTRON_OVERRIDE_DIST_PATH"

// ResolveElectron finds the Electron executable reachable from root, the same
// way the electron package's own entry point does: the installed package
// records the executable's relative path in path.txt, and the binary lives
// under its dist directory unless ELECTRON_OVERRIDE_DIST_PATH is set.
func ResolveElectron(root string) (string, error) {
	pkgDir, err := findPackageDir(root, "electron")
	if err != nil {
		return "", err
	}

	var executable string
	data, err := os.ReadFile(filepath.Join(pkgDir, "path.txt"))
	switch {
	case err == nil:
		executable = strings.TrimSpace(string(data))
	case !errors.Is(err, fs.ErrNotExist):
		return "", ferrors.WrapError(err, ferrors.CategoryProcess, "read electron path file").
			WithContext("path", pkgDir).
			Build()
	}

	if override := os.Getenv(OverrideDistPathVar); override != "" {
		if executable == "" {
			executable = "electron"
		}
		return filepath.Join(override, executable), nil
	}
	if executable == "" {
		return "", ferrors.ProcessError("electron failed to install correctly, delete node_modules/electron and install it again").
			WithContext("path", pkgDir).
			UserAction().
			Build()
	}
	return filepath.Join(pkgDir, "dist", executable), nil
}

// findPackageDir walks from dir up to the filesystem root looking for
// node_modules/<name>.
func findPackageDir(dir, name string) (string, error) {
	start, err := filepath.Abs(dir)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryProcess, "resolve project root").Build()
	}
	for cur := start; ; {
		candidate := filepath.Join(cur, "node_modules", name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", ferrors.ProcessError("electron is not installed").
		WithContext("root", start).
		UserAction().
		Build()
}
