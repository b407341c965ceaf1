package supervisor

import (
	"errors"
	"os"
	"os/exec"
)

// Process is a started host process.
type Process interface {
	PID() int
	// Wait blocks until the process exits and returns its exit status.
	Wait() int
	// Kill terminates the process immediately.
	Kill() error
}

// Spawner starts host processes.
type Spawner interface {
	Spawn(exe string, args []string) (Process, error)
}

// ExecSpawner starts real OS processes. The child inherits the standard
// streams and the environment, which carries RENDERER_SERVER_URL.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(exe string, args []string) (Process, error) {
	cmd := exec.Command(exe, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

// Wait maps a signal death to status 1 so the session still fails.
func (p *execProcess) Wait() int {
	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
