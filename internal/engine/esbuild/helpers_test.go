package esbuild

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tachyon/internal/engine"
)

// staticLoader hands out a copy of cfg for every config file.
type staticLoader struct {
	cfg engine.UserConfig
}

func (l staticLoader) Load(string, engine.ConfigEnv) (*engine.UserConfig, error) {
	c := l.cfg
	return &c, nil
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

const rendererHTML = `<!doctype html>
<html>
<head><title>app</title></head>
<body>
<div id="app"></div>
<script type="module" src="/src/main.ts"></script>
</body>
</html>
`

func rendererProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"index.html":        rendererHTML,
		"src/main.ts":       "import { greet } from \"./greet\";\nimport \"./style.css\";\ndocument.title = greet(import.meta.env.VITE_NAME);\n",
		"src/greet.ts":      "export const greet = (n: string): string => `hello ${n}`;\n",
		"src/style.css":     "body { color: red; }\n",
		"public/robots.txt": "User-agent: *\n",
		".env":              "VITE_NAME=tachyon-env\nSECRET=leak\n",
	})
}
