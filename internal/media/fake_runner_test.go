package media

import (
	"context"
	"sync"

	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
)

type fakeRun struct {
	stdout   []string
	stderr   []string
	code     int
	block    bool
	startErr error
	before   func(cmd Command)
}

type fakeRunner struct {
	mu    sync.Mutex
	runs  []fakeRun
	calls []Command
}

func (f *fakeRunner) Start(_ context.Context, cmd Command) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	var run fakeRun
	if len(f.runs) > 0 {
		run = f.runs[0]
		f.runs = f.runs[1:]
	}
	if run.startErr != nil {
		return nil, run.startErr
	}
	return &fakeProcess{cmd: cmd, run: run, terminated: make(chan struct{})}, nil
}

func (f *fakeRunner) lastCall() Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeProcess struct {
	cmd        Command
	run        fakeRun
	terminated chan struct{}
	once       sync.Once
}

func (p *fakeProcess) Wait() (ExitStatus, error) {
	if p.run.before != nil {
		p.run.before(p.cmd)
	}
	for _, line := range p.run.stdout {
		if p.cmd.OnStdout != nil {
			p.cmd.OnStdout(line)
		}
	}
	for _, line := range p.run.stderr {
		if p.cmd.OnStderr != nil {
			p.cmd.OnStderr(line)
		}
	}
	if p.run.block {
		<-p.terminated
		return ExitStatus{Code: -1, Signaled: true}, nil
	}
	return ExitStatus{Code: p.run.code}, nil
}

func (p *fakeProcess) Terminate() error {
	p.once.Do(func() { close(p.terminated) })
	return nil
}

func (p *fakeProcess) Pid() int {
	return 4242
}

func newTestEngine(workDir string, runs ...fakeRun) (*Engine, *fakeRunner) {
	cfg := &config.Config{Media: config.MediaConfig{
		ExtractorPath:  "yt-dlp",
		TranscoderPath: "ffmpeg",
		WorkDir:        workDir,
		AudioBitrate:   "192k",
		Fragments:      4,
	}}
	runner := &fakeRunner{runs: runs}
	return NewEngine(cfg, runner, logger.NewNopLogger()), runner
}
