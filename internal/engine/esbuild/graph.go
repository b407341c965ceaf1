package esbuild

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
)

// moduleGraph is the set of files the last successful build read. Until a
// build succeeds every path counts as relevant, so a broken import recovers
// once the missing file appears.
type moduleGraph struct {
	root  string
	extra func(path string) bool

	mu    sync.RWMutex
	files map[string]struct{}
}

func newModuleGraph(root string, extra func(string) bool) *moduleGraph {
	return &moduleGraph{root: root, extra: extra}
}

// update replaces the graph with the inputs of an esbuild metafile.
func (g *moduleGraph) update(meta string) {
	files := make(map[string]struct{})
	for _, in := range metafileInputs(g.root, meta) {
		files[in] = struct{}{}
	}
	g.mu.Lock()
	g.files = files
	g.mu.Unlock()
}

// reset makes every path relevant until the next update.
func (g *moduleGraph) reset() {
	g.mu.Lock()
	g.files = nil
	g.mu.Unlock()
}

// Contains reports whether a change to path affects the build.
func (g *moduleGraph) Contains(path string) bool {
	if g.extra != nil && g.extra(path) {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.files == nil {
		return true
	}
	_, ok := g.files[filepath.Clean(path)]
	return ok
}

// metafileInputs returns the absolute paths of the files esbuild read.
// Namespaced virtual modules are skipped.
func metafileInputs(root, meta string) []string {
	if meta == "" {
		return nil
	}
	var mf struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(meta), &mf); err != nil {
		return nil
	}
	out := make([]string, 0, len(mf.Inputs))
	for in := range mf.Inputs {
		if i := strings.Index(in, ":"); i > 0 && !filepath.IsAbs(in) {
			continue
		}
		p := filepath.FromSlash(in)
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
