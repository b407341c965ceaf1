package esbuild

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tachyon/internal/engine"
)

func TestRenderURLBanner(t *testing.T) {
	out := renderURLBanner(engine.ServerURLs{
		Local:   []string{"http://localhost:5173/"},
		Network: []string{"http://192.168.1.10:5173/"},
	})
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Local:")
	assert.Contains(t, lines[0], "http://localhost:5173/")
	assert.Contains(t, lines[1], "Network:")
	assert.Contains(t, lines[1], "http://192.168.1.10:5173/")
}

func TestRenderURLBannerWithoutNetwork(t *testing.T) {
	out := renderURLBanner(engine.ServerURLs{Local: []string{"http://localhost:5173/"}})
	assert.Contains(t, out, "set server.host to expose")
}

func TestPrintURLsWritesBanner(t *testing.T) {
	var buf bytes.Buffer
	eng := New(nil, WithURLBanner(&buf))
	srv := &devServer{engine: eng, urls: engine.ServerURLs{Local: []string{"http://localhost:4000/"}}}
	srv.PrintURLs()
	assert.Contains(t, buf.String(), "http://localhost:4000/")
}
