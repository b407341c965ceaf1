package esbuild

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

// page is an HTML entry. Its module scripts are bundled and the references
// rewritten to the emitted files.
type page struct {
	path    string
	rel     string
	html    string
	scripts []pageScript
}

type pageScript struct {
	src   string
	entry string
}

// entryOutput is what esbuild emitted for one entry point, relative to the
// output directory.
type entryOutput struct {
	js  string
	css string
}

func loadPage(root, file string) (page, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return page{}, ferrors.WrapError(err, ferrors.CategoryConfig, "read html entry").
			WithContext("path", file).
			Build()
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(file)
	}

	pg := page{path: file, rel: filepath.ToSlash(rel), html: string(data)}
	rewriteModuleScripts(pg.html, func(src string) string {
		var entry string
		if strings.HasPrefix(src, "/") {
			entry = filepath.Join(root, filepath.FromSlash(src))
		} else {
			entry = filepath.Join(filepath.Dir(file), filepath.FromSlash(src))
		}
		pg.scripts = append(pg.scripts, pageScript{src: src, entry: entry})
		return ""
	})
	return pg, nil
}

// rewriteModuleScripts re-emits doc token by token, calling fn with the src of
// every local module script. A non-empty return value replaces that src.
func rewriteModuleScripts(doc string, fn func(src string) string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var sb strings.Builder
	sb.Grow(len(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return sb.String()
		}
		// Raw is copied first; reading the token lowercases the buffer.
		raw := string(z.Raw())
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			if src, ok := moduleScriptSrc(z.Token()); ok {
				if repl := fn(src); repl != "" {
					raw = strings.Replace(raw, src, repl, 1)
				}
			}
		}
		sb.WriteString(raw)
	}
}

func moduleScriptSrc(t html.Token) (string, bool) {
	if t.Data != "script" {
		return "", false
	}
	var src string
	module := false
	for _, a := range t.Attr {
		switch a.Key {
		case "type":
			module = strings.EqualFold(strings.TrimSpace(a.Val), "module")
		case "src":
			src = strings.TrimSpace(a.Val)
		}
	}
	if !module || src == "" || isRemote(src) {
		return "", false
	}
	return src, true
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "//")
}

// render rewrites script references using outputs (keyed by absolute entry
// path), links emitted stylesheets and appends inject before </body>.
func (pg page) render(base string, outputs map[string]entryOutput, inject string) string {
	prefix := base
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	bySrc := make(map[string]entryOutput, len(pg.scripts))
	var styles []string
	for _, s := range pg.scripts {
		out, ok := outputs[filepath.Clean(s.entry)]
		if !ok {
			continue
		}
		bySrc[s.src] = out
		if out.css != "" {
			styles = append(styles, `<link rel="stylesheet" href="`+prefix+out.css+`">`)
		}
	}

	out := rewriteModuleScripts(pg.html, func(src string) string {
		if o, ok := bySrc[src]; ok && o.js != "" {
			return prefix + o.js
		}
		return ""
	})
	if len(styles) > 0 {
		out = insertBefore(out, "</head>", strings.Join(styles, "\n")+"\n")
	}
	if inject != "" {
		out = insertBefore(out, "</body>", inject)
	}
	return out
}

// insertBefore places snippet before the last closing tag, or appends it.
func insertBefore(doc, closing, snippet string) string {
	idx := strings.LastIndex(strings.ToLower(doc), closing)
	if idx < 0 {
		return doc + snippet
	}
	return doc[:idx] + snippet + doc[idx:]
}

type metafile struct {
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint"`
		CSSBundle  string `json:"cssBundle"`
	} `json:"outputs"`
}

// entryOutputs reads an esbuild metafile. Paths in the metafile are relative
// to the working directory root.
func entryOutputs(root, outDir, meta string) map[string]entryOutput {
	out := map[string]entryOutput{}
	if meta == "" {
		return out
	}
	var mf metafile
	if err := json.Unmarshal([]byte(meta), &mf); err != nil {
		return out
	}
	for file, info := range mf.Outputs {
		if info.EntryPoint == "" || strings.HasSuffix(file, ".map") {
			continue
		}
		entry := filepath.Clean(filepath.Join(root, filepath.FromSlash(info.EntryPoint)))
		eo := out[entry]
		eo.js = relSlash(outDir, filepath.Join(root, filepath.FromSlash(file)))
		if info.CSSBundle != "" {
			eo.css = relSlash(outDir, filepath.Join(root, filepath.FromSlash(info.CSSBundle)))
		}
		out[entry] = eo
	}
	return out
}

func relSlash(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return path.Base(filepath.ToSlash(target))
	}
	return filepath.ToSlash(rel)
}
