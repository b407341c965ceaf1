package esbuild

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
)

// copyDir recursively copies src into dst, keeping file modes.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(p, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// isWithin reports whether p is dir or below it.
func isWithin(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// prepareOutDir empties the output directory when configured to. Unset
// emptyOutDir means "empty it when it lives inside root". The root itself
// and its ancestors are never emptied.
func (p *plan) prepareOutDir(logger *slog.Logger) error {
	root := p.cfg.Root
	inside := isWithin(root, p.outDir) && p.outDir != root
	if !p.cfg.Build.EmptyOutDir.Enabled(inside) {
		if !inside && !p.cfg.Build.EmptyOutDir.IsSet() {
			logger.Warn("outDir is not inside the project root and will not be emptied",
				logfields.Path(p.outDir))
		}
		return nil
	}
	if isWithin(p.outDir, root) {
		logger.Warn("Refusing to empty an outDir that contains the project root", logfields.Path(p.outDir))
		return nil
	}

	entries, err := os.ReadDir(p.outDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read output directory").
			WithContext("path", p.outDir).
			Build()
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(p.outDir, e.Name())); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "empty output directory").
				WithContext("path", p.outDir).
				Build()
		}
	}
	return nil
}

// publicDir returns the absolute public directory, or "" when disabled or
// missing.
func (p *plan) publicDir() string {
	if p.cfg.PublicDir.Disabled {
		return ""
	}
	dir := p.cfg.PublicDir.Path
	if dir == "" {
		dir = "public"
	}
	dir = resolveIn(p.cfg.Root, dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}
