package media

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/pkg/errors"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

const (
	maxLineBytes = 32 * 1024 * 1024
	waitDelay    = 10 * time.Second
)

// Command describes one external invocation. Line handlers are never called concurrently.
type Command struct {
	Name     string
	Args     []string
	Dir      string
	OnStdout func(line string)
	OnStderr func(line string)
}

type ExitStatus struct {
	Code     int
	Signaled bool
}

func (s ExitStatus) Success() bool {
	return s.Code == 0 && !s.Signaled
}

type Process interface {
	// Wait blocks until the process exits and all output has been delivered.
	Wait() (ExitStatus, error)
	Terminate() error
	Pid() int
}

type Runner interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExecRunner spawns one OS process per call.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	// Own process group so termination also reaches helpers the tool spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = waitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "setup stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "setup stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(models.ErrEngineUnavailable, "start %s: %v", c.Name, err)
	}

	p := &execProcess{cmd: cmd}
	p.wg.Add(2)
	go p.read(stdoutPipe, c.OnStdout)
	go p.read(stderrPipe, c.OnStderr)
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	wg   sync.WaitGroup
	mu   sync.Mutex
	once sync.Once

	status ExitStatus
	err    error
}

func (p *execProcess) read(r io.Reader, handle func(string)) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		if handle == nil {
			continue
		}
		line := scanner.Text()
		p.mu.Lock()
		handle(line)
		p.mu.Unlock()
	}
	// Drain whatever the scanner refused so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func (p *execProcess) Wait() (ExitStatus, error) {
	p.once.Do(func() {
		p.wg.Wait()
		p.status, p.err = exitStatus(p.cmd.Wait())
	})
	return p.status, p.err
}

func (p *execProcess) Terminate() error {
	return terminate(p.cmd.Process)
}

func terminate(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	err := syscall.Kill(-proc.Pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		err = proc.Signal(syscall.SIGTERM)
	}
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func exitStatus(err error) (ExitStatus, error) {
	if err == nil {
		return ExitStatus{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Code: -1, Signaled: true}, nil
		}
		return ExitStatus{Code: exitErr.ExitCode()}, nil
	}
	return ExitStatus{Code: -1}, errors.Wrap(err, "wait")
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
