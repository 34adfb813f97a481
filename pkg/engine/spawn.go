package engine

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Spawner abstracts engine process creation so tests can substitute an
// in-memory fake that speaks the protocol without a real interpreter.
type Spawner interface {
	Spawn(path string, args []string) (Process, error)
}

// Process abstracts a running engine subprocess.
type Process interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Interrupt() error
	Kill() error
	Wait() error
}

// ExecSpawner is the production Spawner built on os/exec. The engine's
// stderr is merged into stdout so warning output travels the same
// line-oriented channel the pipeline already reads.
type ExecSpawner struct{}

// Spawn starts the engine with its stdin/stdout connected to pipes.
func (ExecSpawner) Spawn(path string, args []string) (Process, error) {
	cmd := exec.Command(path, args...) //nolint:gosec // path comes from caller config
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	return &cmdProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// cmdProcess wraps *exec.Cmd to implement Process.
type cmdProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *cmdProcess) Stdin() io.Writer  { return p.stdin }
func (p *cmdProcess) Stdout() io.Reader { return p.stdout }

// Interrupt sends the POSIX interrupt signal, which the engine treats
// the same way a user's Ctrl-C at its own prompt would be.
func (p *cmdProcess) Interrupt() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("signal engine: %w", err)
	}
	return nil
}

func (p *cmdProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill engine: %w", err)
	}
	return nil
}

func (p *cmdProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("engine wait: %w", err)
	}
	return nil
}
