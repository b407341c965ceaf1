package esbuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/events"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/metrics"
)

const maxPortAttempts = 20

// devServer serves the renderer from memory and pushes reloads to pages.
type devServer struct {
	engine *Engine
	target string
	plan   *plan
	bctx   api.BuildContext
	logger *slog.Logger
	hub    *LiveReloadHub
	base   string
	graph  *moduleGraph

	mu    sync.RWMutex
	files map[string][]byte
	pages map[string]string
	urls  engine.ServerURLs

	buildMu   sync.Mutex
	srv       *http.Server
	tree      *treeWatcher
	closeOnce sync.Once
}

// Serve implements engine.Engine. The returned server is idle until Listen.
func (e *Engine) Serve(ctx context.Context, ic engine.InlineConfig) (engine.DevServer, error) {
	logger := loggerFor(ic)
	p, err := e.prepare(ctx, ic, engine.CommandServe)
	if err != nil {
		return nil, err
	}
	p.opts.Write = false

	bctx, cerr := api.Context(p.opts)
	if cerr != nil {
		return nil, buildFailure(ic.Target, cerr.Errors)
	}

	base := p.cfg.Base
	if base == "" || base == "./" || !strings.HasPrefix(base, "/") {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	pages := make([]string, 0, len(p.pages))
	for _, pg := range p.pages {
		pages = append(pages, filepath.Clean(pg.path))
	}
	public := p.publicDir()
	// HTML entries and public files are served but never read by esbuild.
	graph := newModuleGraph(p.cfg.Root, func(file string) bool {
		return slices.Contains(pages, filepath.Clean(file)) || (public != "" && isWithin(public, file))
	})

	return &devServer{
		engine: e,
		target: ic.Target,
		plan:   p,
		bctx:   bctx,
		logger: logger,
		hub:    NewLiveReloadHub(e.recorder, logger),
		base:   base,
		files:  map[string][]byte{},
		pages:  map[string]string{},
		graph:  graph,
	}, nil
}

// Listen runs the initial build, binds the listener and starts watching.
func (s *devServer) Listen(ctx context.Context) error {
	if err := s.rebuild(ctx, true); err != nil {
		return err
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.urls = s.resolveURLs(ln.Addr())

	s.srv = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev server stopped", logfields.Error(err))
		}
	}()

	cfg := s.plan.cfg
	debounce := s.engine.debounce
	var exclude []string
	if w := cfg.Build.Watch; w != nil {
		exclude = w.Exclude
		if w.DebounceMS > 0 {
			debounce = time.Duration(w.DebounceMS) * time.Millisecond
		}
	}
	tree, err := watchTree(context.WithoutCancel(ctx), cfg.Root, ignoreFunc(cfg.Root, s.plan.outDir, exclude), s.graph.Contains, debounce, s.logger,
		func(ctx context.Context) {
			if err := s.rebuild(ctx, false); err == nil {
				s.SendFullReload()
			}
		})
	if err != nil {
		_ = s.srv.Close()
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch project root").
			WithContext("path", cfg.Root).
			Build()
	}
	s.tree = tree

	local := s.urls.Local[0]
	s.engine.publish(ctx, s.logger, events.ServerReady{Target: s.target, URL: local, At: time.Now()})
	return nil
}

func (s *devServer) listen() (net.Listener, error) {
	srv := s.plan.cfg.Server
	host := srv.Host
	if host == "" {
		host = defaultHost
	}
	port := srv.Port
	if port == 0 {
		port = defaultPort
	}
	strict := srv.StrictPort.Enabled(false)

	var lastErr error
	for range maxPortAttempts {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if strict || !errors.Is(err, syscall.EADDRINUSE) {
			break
		}
		s.logger.Info("Port is in use, trying another one", slog.Int("port", port))
		port++
	}
	return nil, ferrors.WrapError(lastErr, ferrors.CategoryRuntime, "start dev server").
		WithContext("host", host).
		WithContext("port", port).
		Build()
}

func (s *devServer) resolveURLs(addr net.Addr) engine.ServerURLs {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return engine.ServerURLs{Local: []string{"http://" + addr.String() + s.base}}
	}
	port := strconv.Itoa(tcp.Port)
	host := s.plan.cfg.Server.Host

	urls := engine.ServerURLs{}
	switch host {
	case "", "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		urls.Local = []string{"http://" + net.JoinHostPort("localhost", port) + s.base}
	default:
		urls.Local = []string{"http://" + net.JoinHostPort(host, port) + s.base}
	}
	if host == "0.0.0.0" || host == "::" {
		addrs, _ := net.InterfaceAddrs()
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			urls.Network = append(urls.Network, "http://"+net.JoinHostPort(ipnet.IP.String(), port)+s.base)
		}
	}
	return urls
}

// rebuild refreshes the in-memory output.
func (s *devServer) rebuild(ctx context.Context, initial bool) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	e := s.engine
	start := time.Now()
	result := s.bctx.Rebuild()
	elapsed := time.Since(start)
	e.recorder.ObserveBuildDuration(s.target, elapsed)
	if len(result.Errors) > 0 {
		s.graph.reset()
		err := buildFailure(s.target, result.Errors)
		e.recorder.IncBuildOutcome(s.target, metrics.OutcomeFailed)
		e.publish(ctx, s.logger, events.BuildFailed{Target: s.target, Err: err, At: time.Now()})
		if !initial {
			s.logger.Error("Rebuild failed", logfields.Error(err))
		}
		return err
	}
	logMessages(s.logger, result.Warnings)
	s.graph.update(result.Metafile)

	files := make(map[string][]byte, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		files[relSlash(s.plan.outDir, f.Path)] = f.Contents
	}
	outputs := entryOutputs(s.plan.cfg.Root, s.plan.outDir, result.Metafile)
	pages := make(map[string]string, len(s.plan.pages))
	for _, pg := range s.plan.pages {
		// Re-read so edits to the HTML itself are picked up.
		fresh, err := loadPage(s.plan.cfg.Root, pg.path)
		if err != nil {
			fresh = pg
		}
		pages[pg.rel] = fresh.render(s.base, outputs, liveReloadTag)
	}

	s.mu.Lock()
	s.files = files
	s.pages = pages
	s.mu.Unlock()

	e.recorder.IncBuildOutcome(s.target, metrics.OutcomeSuccess)
	e.publish(ctx, s.logger, events.BundleWritten{
		Target:   s.target,
		Initial:  initial,
		Outputs:  outputPaths(result.OutputFiles),
		Duration: elapsed,
		At:       time.Now(),
	})
	s.logger.Debug("Renderer bundle updated", logfields.DurationMS(float64(elapsed.Milliseconds())))
	return nil
}

func (s *devServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(livereloadPath, s.hub)
	mux.HandleFunc(clientPath, serveClientScript)
	if s.engine.metrics != nil {
		mux.Handle(metricsPath, s.engine.metrics)
	}
	mux.HandleFunc("/", s.serveAsset)
	return mux
}

func (s *devServer) serveAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqPath := r.URL.Path
	if reqPath+"/" == s.base {
		http.Redirect(w, r, s.base, http.StatusFound)
		return
	}
	if !strings.HasPrefix(reqPath, s.base) {
		http.NotFound(w, r)
		return
	}
	rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(reqPath, s.base)), "/")
	if rel == "" || strings.HasSuffix(reqPath, "/") {
		rel = path.Join(rel, "index.html")
	}

	s.mu.RLock()
	html, isPage := s.pages[rel]
	data, isFile := s.files[rel]
	s.mu.RUnlock()

	switch {
	case isPage:
		writeBody(w, r, "text/html; charset=utf-8", []byte(html))
		return
	case isFile:
		writeBody(w, r, contentType(rel), data)
		return
	}

	if pub := s.plan.publicDir(); pub != "" && s.serveFile(w, r, pub, rel) {
		return
	}
	if strings.HasSuffix(rel, ".html") {
		if raw, err := os.ReadFile(filepath.Join(s.plan.cfg.Root, filepath.FromSlash(rel))); err == nil {
			writeBody(w, r, "text/html; charset=utf-8", []byte(insertBefore(string(raw), "</body>", liveReloadTag)))
			return
		}
	}
	if s.serveFile(w, r, s.plan.cfg.Root, rel) {
		return
	}
	http.NotFound(w, r)
}

// serveFile serves dir/rel if it is a regular file.
func (s *devServer) serveFile(w http.ResponseWriter, r *http.Request, dir, rel string) bool {
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if !isWithin(dir, full) {
		return false
	}
	f, err := os.Open(full)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("open static file", logfields.Path(full), logfields.Error(err))
		}
		return false
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	switch path.Ext(name) {
	case ".js", ".mjs", ".cjs":
		return "text/javascript; charset=utf-8"
	case ".map":
		return "application/json"
	}
	return "application/octet-stream"
}

func writeBody(w http.ResponseWriter, r *http.Request, ctype string, body []byte) {
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

// URLs implements engine.DevServer.
func (s *devServer) URLs() engine.ServerURLs {
	return engine.ServerURLs{
		Local:   append([]string(nil), s.urls.Local...),
		Network: append([]string(nil), s.urls.Network...),
	}
}

// PrintURLs implements engine.DevServer.
func (s *devServer) PrintURLs() {
	if w := s.engine.banner; w != nil {
		_, _ = io.WriteString(w, renderURLBanner(s.URLs()))
		return
	}
	for _, u := range s.urls.Local {
		s.logger.Info(fmt.Sprintf("Local:   %s", u), logfields.URL(u))
	}
	for _, u := range s.urls.Network {
		s.logger.Info(fmt.Sprintf("Network: %s", u), logfields.URL(u))
	}
}

// SendFullReload implements engine.DevServer.
func (s *devServer) SendFullReload() {
	s.hub.Broadcast(FullReload)
}

// Close implements engine.DevServer.
func (s *devServer) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.tree != nil {
			_ = s.tree.Close()
		}
		s.hub.Shutdown()
		if s.srv != nil {
			err = s.srv.Shutdown(ctx)
		}
		s.buildMu.Lock()
		s.bctx.Dispose()
		s.buildMu.Unlock()
	})
	return err
}
