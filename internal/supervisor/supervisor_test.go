package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/metrics"
)

type fakeProcess struct {
	pid    int
	exit   chan int
	killed atomic.Bool
	once   sync.Once
}

func (p *fakeProcess) PID() int  { return p.pid }
func (p *fakeProcess) Wait() int { return <-p.exit }
func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.finish(137)
	return nil
}

func (p *fakeProcess) finish(code int) {
	p.once.Do(func() { p.exit <- code })
}

type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProcess
	args  [][]string
	err   error
}

func (s *fakeSpawner) Spawn(exe string, args []string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p := &fakeProcess{pid: 100 + len(s.procs), exit: make(chan int, 1)}
	s.procs = append(s.procs, p)
	s.args = append(s.args, append([]string{exe}, args...))
	return p, nil
}

func (s *fakeSpawner) proc(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

type countingRecorder struct {
	metrics.NoopRecorder
	restarts atomic.Int64
	exits    atomic.Int64
}

func (r *countingRecorder) IncHostRestart() { r.restarts.Add(1) }
func (r *countingRecorder) IncHostExit(int) { r.exits.Add(1) }

func newTestSupervisor(sp *fakeSpawner, rec metrics.Recorder, onExit func(int)) *Supervisor {
	return New(
		WithSpawner(sp),
		WithResolver(func(string) (string, error) { return "/bin/electron", nil }),
		WithRecorder(rec),
		WithExitHandler(onExit),
	)
}

func TestEnsureFreshInstanceReplacesPrevious(t *testing.T) {
	sp := &fakeSpawner{}
	rec := &countingRecorder{}
	var exits atomic.Int64
	s := newTestSupervisor(sp, rec, func(int) { exits.Add(1) })

	first, err := s.EnsureFreshInstance(t.Context(), "/project")
	require.NoError(t, err)
	second, err := s.EnsureFreshInstance(t.Context(), "/project")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, sp.proc(0).killed.Load(), "previous instance is killed")
	assert.True(t, first.Detached())
	assert.False(t, second.Detached())
	assert.Same(t, second, s.Current())
	assert.Equal(t, []string{"/bin/electron", "/project"}, sp.args[1])
	assert.EqualValues(t, 1, rec.restarts.Load())

	<-first.Done()
	assert.Zero(t, exits.Load(), "exit of a replaced instance is not propagated")

	s.Shutdown()
	s.Wait()
}

func TestLiveInstanceExitIsReported(t *testing.T) {
	sp := &fakeSpawner{}
	rec := &countingRecorder{}
	codes := make(chan int, 1)
	s := newTestSupervisor(sp, rec, func(code int) { codes <- code })

	inst, err := s.EnsureFreshInstance(t.Context(), "/project")
	require.NoError(t, err)
	sp.proc(0).finish(3)

	select {
	case code := <-codes:
		assert.Equal(t, 3, code)
	case <-time.After(5 * time.Second):
		t.Fatal("exit not reported")
	}
	assert.Equal(t, 3, inst.ExitCode())
	assert.Nil(t, s.Current())
	assert.EqualValues(t, 1, rec.exits.Load())
	assert.Equal(t, 3, <-s.Exited())
	s.Wait()
}

func TestRestartIsIdempotentUnderRepeatedCalls(t *testing.T) {
	sp := &fakeSpawner{}
	var exits atomic.Int64
	s := newTestSupervisor(sp, metrics.NoopRecorder{}, func(int) { exits.Add(1) })

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.EnsureFreshInstance(t.Context(), "/project")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	live := 0
	for i := range sp.procs {
		if !sp.proc(i).killed.Load() {
			live++
		}
	}
	assert.Equal(t, 1, live, "exactly one instance survives")

	s.Shutdown()
	s.Wait()
	assert.Zero(t, exits.Load())
	assert.Nil(t, s.Current())
}

func TestShutdownSuppressesExit(t *testing.T) {
	sp := &fakeSpawner{}
	var exits atomic.Int64
	s := newTestSupervisor(sp, metrics.NoopRecorder{}, func(int) { exits.Add(1) })

	inst, err := s.EnsureFreshInstance(t.Context(), "/project")
	require.NoError(t, err)
	s.Shutdown()
	s.Shutdown()
	<-inst.Done()
	s.Wait()

	assert.True(t, sp.proc(0).killed.Load())
	assert.Zero(t, exits.Load())
}

func TestEnsureFreshInstanceErrors(t *testing.T) {
	t.Run("unresolvable executable", func(t *testing.T) {
		s := New(WithSpawner(&fakeSpawner{}), WithResolver(func(string) (string, error) {
			return "", errors.New("not installed")
		}))
		_, err := s.EnsureFreshInstance(t.Context(), "/project")
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryProcess))
	})

	t.Run("spawn failure", func(t *testing.T) {
		s := newTestSupervisor(&fakeSpawner{err: errors.New("exec format error")}, metrics.NoopRecorder{}, nil)
		_, err := s.EnsureFreshInstance(t.Context(), "/project")
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryProcess))
		assert.Nil(t, s.Current())
	})
}

func writeElectronPackage(t *testing.T, dir, pathTxt string) string {
	t.Helper()
	pkg := filepath.Join(dir, "node_modules", "electron")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	if pathTxt != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pkg, "path.txt"), []byte(pathTxt), 0o644))
	}
	return pkg
}

func TestResolveElectron(t *testing.T) {
	t.Run("walks up from nested root", func(t *testing.T) {
		t.Setenv(OverrideDistPathVar, "")
		base := t.TempDir()
		pkg := writeElectronPackage(t, base, "electron\n")
		nested := filepath.Join(base, "apps", "desktop")
		require.NoError(t, os.MkdirAll(nested, 0o755))

		exe, err := ResolveElectron(nested)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(pkg, "dist", "electron"), exe)
	})

	t.Run("override dist path", func(t *testing.T) {
		base := t.TempDir()
		writeElectronPackage(t, base, "Electron.app/Contents/MacOS/Electron")
		t.Setenv(OverrideDistPathVar, "/opt/electron")

		exe, err := ResolveElectron(base)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/opt/electron", "Electron.app/Contents/MacOS/Electron"), exe)
	})

	t.Run("broken install", func(t *testing.T) {
		t.Setenv(OverrideDistPathVar, "")
		base := t.TempDir()
		writeElectronPackage(t, base, "")
		_, err := ResolveElectron(base)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "install")
	})

	t.Run("not installed", func(t *testing.T) {
		_, err := ResolveElectron(t.TempDir())
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryProcess))
	})
}

func TestExecSpawnerReportsExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	proc, err := ExecSpawner{}.Spawn(sh, []string{"-c", "exit 3"})
	require.NoError(t, err)
	assert.Positive(t, proc.PID())
	assert.Equal(t, 3, proc.Wait())

	proc, err = ExecSpawner{}.Spawn(sh, []string{"-c", "sleep 30"})
	require.NoError(t, err)
	require.NoError(t, proc.Kill())
	assert.Equal(t, 1, proc.Wait(), "signal death maps to 1")
}
