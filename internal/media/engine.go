package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
	"github.com/pkg/errors"
)

// ProgressFunc receives a percentage in [0, 100].
type ProgressFunc func(percent float64)

var mediaExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true, ".m4a": true,
	".mp3": true, ".opus": true, ".ogg": true, ".aac": true, ".flv": true,
	".wav": true, ".m4v": true, ".3gp": true,
}

type Engine struct {
	cfg    config.MediaConfig
	runner Runner
	logger logger.Logger

	mu     sync.Mutex
	active map[string]*handle
}

type handle struct {
	proc      Process
	cancelled bool
}

func NewEngine(cfg *config.Config, runner Runner, logger logger.Logger) *Engine {
	return &Engine{
		cfg:    cfg.Media,
		runner: runner,
		logger: logger,
		active: make(map[string]*handle),
	}
}

// JobDir is the job's working directory under the configured root.
func (e *Engine) JobDir(jobID string) string {
	return filepath.Join(e.cfg.WorkDir, jobID)
}

type runResult struct {
	status    ExitStatus
	stdout    *tail
	stderr    *tail
	cancelled bool
}

// run executes cmd registered under jobID so Cancel can reach it. An empty jobID is not tracked.
func (e *Engine) run(ctx context.Context, jobID string, cmd Command) (*runResult, error) {
	res := &runResult{stdout: newTail(), stderr: newTail()}
	onOut, onErr := cmd.OnStdout, cmd.OnStderr
	cmd.OnStdout = func(line string) {
		res.stdout.add(line)
		if onOut != nil {
			onOut(line)
		}
	}
	cmd.OnStderr = func(line string) {
		res.stderr.add(line)
		if onErr != nil {
			onErr(line)
		}
	}

	proc, err := e.runner.Start(ctx, cmd)
	if err != nil {
		return nil, err
	}
	h := &handle{proc: proc}
	if jobID != "" {
		e.mu.Lock()
		e.active[jobID] = h
		e.mu.Unlock()
	}

	status, err := proc.Wait()
	if jobID != "" {
		res.cancelled = e.untrack(jobID, h)
	}
	if ctx.Err() != nil {
		res.cancelled = true
	}
	res.status = status
	if res.cancelled {
		return res, nil
	}
	return res, err
}

// untrack removes h and reports whether Cancel reached it first. Both happen under one
// lock so a Cancel after exit finds nothing.
func (e *Engine) untrack(jobID string, h *handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[jobID] == h {
		delete(e.active, jobID)
	}
	return h.cancelled
}

// Cancel terminates the process running for jobID and reports whether there was one.
func (e *Engine) Cancel(jobID string) bool {
	e.mu.Lock()
	h, ok := e.active[jobID]
	if ok {
		h.cancelled = true
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	if err := h.proc.Terminate(); err != nil {
		e.logger.Warnf("Cancel - terminate pid %d for job %s error: %v", h.proc.Pid(), jobID, err)
	}
	return true
}

func (e *Engine) IsRunning(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[jobID]
	return ok
}

// ProbeTools asks both tools for their version. Spawn failures wrap models.ErrEngineUnavailable.
func (e *Engine) ProbeTools(ctx context.Context) (models.ToolVersions, error) {
	var versions models.ToolVersions
	v, err := e.version(ctx, e.cfg.ExtractorPath, "--version")
	if err != nil {
		return versions, err
	}
	versions.Extractor = v
	v, err = e.version(ctx, e.cfg.TranscoderPath, "-version")
	if err != nil {
		return versions, err
	}
	versions.Transcoder = v
	return versions, nil
}

func (e *Engine) version(ctx context.Context, tool, flag string) (string, error) {
	res, err := e.run(ctx, "", Command{Name: tool, Args: []string{flag}})
	if err != nil {
		return "", err
	}
	if !res.status.Success() {
		return "", fmt.Errorf("%s %s exited with code %d: %s", tool, flag, res.status.Code, res.stderr.String())
	}
	return res.stdout.first(), nil
}

// FetchMetadata runs the extractor in metadata-only mode.
func (e *Engine) FetchMetadata(ctx context.Context, jobID, url string) (*models.Metadata, []models.Rendition, error) {
	var out strings.Builder
	res, err := e.run(ctx, jobID, Command{
		Name: e.cfg.ExtractorPath,
		Args: []string{"-J", "--no-warnings", "--skip-download", "--no-playlist", url},
		OnStdout: func(line string) {
			out.WriteString(line)
			out.WriteByte('\n')
		},
	})
	if err != nil {
		if errors.Is(err, models.ErrEngineUnavailable) {
			return nil, nil, err
		}
		return nil, nil, models.NewMetadataError("could not read video information", "", err)
	}
	if res.cancelled {
		return nil, nil, models.NewCancelledError("cancelled", nil)
	}
	if !res.status.Success() {
		return nil, nil, models.NewMetadataError("could not read video information", res.stderr.String(),
			fmt.Errorf("extractor exited with code %d", res.status.Code))
	}
	if strings.TrimSpace(out.String()) == "" {
		return nil, nil, models.NewMetadataError("could not read video information", res.stderr.String(), nil)
	}
	return ParseMetadata([]byte(out.String()))
}

// Download fetches the job's selected rendition into its working directory and returns the file path.
func (e *Engine) Download(ctx context.Context, job *models.Job, onProgress ProgressFunc) (string, error) {
	if job.SelectedRendition == nil {
		return "", models.NewDownloadError("no rendition selected", "", nil)
	}
	dir := e.JobDir(job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewDownloadError("could not prepare download", "", errors.Wrap(err, "create job dir"))
	}

	r := job.SelectedRendition
	selector := r.Selector
	if selector == "" {
		selector = r.ID
	}
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-mtime",
		"-N", strconv.Itoa(e.fragments()),
		"-f", selector,
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
	}
	if !r.IsAudio() {
		args = append(args, "--merge-output-format", "mp4")
	}
	args = append(args, job.SourceURL)

	var output string
	res, err := e.run(ctx, job.ID, Command{
		Name: e.cfg.ExtractorPath,
		Args: args,
		OnStdout: func(line string) {
			ev, ok := ParseDownloadLine(line)
			if !ok {
				return
			}
			if ev.Path != "" {
				output = ev.Path
			}
			if ev.HasPercent && onProgress != nil {
				onProgress(ev.Percent)
			}
		},
	})
	if err != nil {
		if errors.Is(err, models.ErrEngineUnavailable) {
			return "", err
		}
		return "", models.NewDownloadError("download failed", "", err)
	}
	if res.cancelled {
		return "", models.NewCancelledError("cancelled", nil)
	}
	if !res.status.Success() {
		return "", models.NewDownloadError("download failed", res.stderr.String(),
			fmt.Errorf("extractor exited with code %d", res.status.Code))
	}

	if output != "" {
		if !filepath.IsAbs(output) && !strings.HasPrefix(output, dir) {
			output = filepath.Join(dir, filepath.Base(output))
		}
		if fi, err := os.Stat(output); err == nil && !fi.IsDir() {
			return output, nil
		}
		e.logger.Warnf("Download - captured output %s for job %s is missing, scanning %s", output, job.ID, dir)
	}
	found, err := FindMediaFile(dir)
	if err != nil {
		return "", models.NewDownloadError("download produced no file", res.stdout.String(), err)
	}
	return found, nil
}

// FindMediaFile returns the largest file with a known media extension in dir.
func FindMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "read job dir")
	}
	var best string
	var bestSize int64 = -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, name), info.Size()
		}
	}
	if best == "" {
		return "", errors.Errorf("no media file in %s", dir)
	}
	return best, nil
}

// ExtractAudio re-encodes input to MP3 next to it and removes the source on success.
func (e *Engine) ExtractAudio(ctx context.Context, jobID, input string, duration float64, onProgress ProgressFunc) (string, error) {
	if strings.EqualFold(filepath.Ext(input), ".mp3") {
		return input, nil
	}
	output := strings.TrimSuffix(input, filepath.Ext(input)) + ".mp3"
	bitrate := e.cfg.AudioBitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", input,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", "44100",
		"-b:a", bitrate,
		output,
	}
	if err := e.transcode(ctx, jobID, args, duration, onProgress); err != nil {
		return "", err
	}
	e.removeSource(jobID, input)
	return output, nil
}

// ConvertVideo re-encodes input to H.264/AAC MP4, capping the height when maxHeight > 0.
func (e *Engine) ConvertVideo(ctx context.Context, jobID, input string, maxHeight int, duration float64, onProgress ProgressFunc) (string, error) {
	output := strings.TrimSuffix(input, filepath.Ext(input)) + ".mp4"
	if output == input {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + fmt.Sprintf("_%dp.mp4", maxHeight)
	}
	args := []string{"-y", "-hide_banner", "-nostdin", "-i", input}
	if maxHeight > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", maxHeight))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		output,
	)
	if err := e.transcode(ctx, jobID, args, duration, onProgress); err != nil {
		return "", err
	}
	e.removeSource(jobID, input)
	return output, nil
}

func (e *Engine) transcode(ctx context.Context, jobID string, args []string, duration float64, onProgress ProgressFunc) error {
	res, err := e.run(ctx, jobID, Command{
		Name: e.cfg.TranscoderPath,
		Args: args,
		OnStderr: func(line string) {
			if pct, ok := TranscodePercent(line, duration); ok && onProgress != nil {
				onProgress(pct)
			}
		},
	})
	if err != nil {
		if errors.Is(err, models.ErrEngineUnavailable) {
			return err
		}
		return models.NewTranscodeError("conversion failed", "", err)
	}
	if res.cancelled {
		return models.NewCancelledError("cancelled", nil)
	}
	if !res.status.Success() {
		return models.NewTranscodeError("conversion failed", res.stderr.String(),
			fmt.Errorf("transcoder exited with code %d", res.status.Code))
	}
	return nil
}

func (e *Engine) removeSource(jobID, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warnf("removeSource - job %s remove %s error: %v", jobID, path, err)
	}
}

func (e *Engine) fragments() int {
	if e.cfg.Fragments <= 0 {
		return 1
	}
	return e.cfg.Fragments
}

const maxTailBytes = 8192

// tail keeps the last maxTailBytes of a stream for diagnostics.
type tail struct {
	lines []string
	size  int
}

func newTail() *tail {
	return &tail{}
}

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	t.size += len(line) + 1
	for t.size > maxTailBytes && len(t.lines) > 1 {
		t.size -= len(t.lines[0]) + 1
		t.lines = t.lines[1:]
	}
}

func (t *tail) first() string {
	if len(t.lines) == 0 {
		return ""
	}
	return strings.TrimSpace(t.lines[0])
}

func (t *tail) String() string {
	return strings.TrimSpace(strings.Join(t.lines, "\n"))
}
