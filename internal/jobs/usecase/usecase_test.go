package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/jobs/repository"
	"github.com/amankumarsingh77/media-fetcher/internal/media"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
	"github.com/amankumarsingh77/media-fetcher/pkg/utils"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeEngine struct {
	root string

	mu       sync.Mutex
	metaErr  error
	dlErr    error
	probeErr error
	block    bool
	release  map[string]chan struct{}
	started  chan string
	extracts int
	converts int
	// onDownload runs once the download has started, outside mu.
	onDownload func(jobID string)
}

func newFakeEngine(root string) *fakeEngine {
	return &fakeEngine{root: root, release: map[string]chan struct{}{}, started: make(chan string, 8)}
}

func (f *fakeEngine) ProbeTools(context.Context) (models.ToolVersions, error) {
	if f.probeErr != nil {
		return models.ToolVersions{}, f.probeErr
	}
	return models.ToolVersions{Extractor: "2024.05.27", Transcoder: "ffmpeg version 6.1"}, nil
}

func (f *fakeEngine) FetchMetadata(ctx context.Context, jobID, url string) (*models.Metadata, []models.Rendition, error) {
	if f.metaErr != nil {
		return nil, nil, f.metaErr
	}
	md := &models.Metadata{ID: "dQw4w9WgXcQ", Title: "Never Gonna: Give/You Up", Duration: 212}
	renditions := []models.Rendition{
		{ID: "137", Label: "1080p", Kind: models.RenditionVideo, Ext: "mp4", Height: 1080},
		{ID: "248", Label: "1080p", Kind: models.RenditionVideo, Ext: "webm", Height: 1080},
		{ID: "251", Label: "Audio only", Kind: models.RenditionAudio, Ext: "webm"},
	}
	return md, renditions, nil
}

func (f *fakeEngine) Download(ctx context.Context, job *models.Job, onProgress media.ProgressFunc) (string, error) {
	f.mu.Lock()
	block := f.block
	var ch chan struct{}
	if block {
		ch = make(chan struct{})
		f.release[job.ID] = ch
	}
	f.mu.Unlock()

	onProgress(25)
	if f.onDownload != nil {
		f.onDownload(job.ID)
	}
	if block {
		f.started <- job.ID
		<-ch
		return "", models.NewCancelledError("cancelled", nil)
	}
	if f.dlErr != nil {
		return "", f.dlErr
	}
	onProgress(100)
	ext := job.SelectedRendition.Ext
	return f.write(job.ID, "source."+ext)
}

func (f *fakeEngine) ExtractAudio(ctx context.Context, jobID, input string, duration float64, onProgress media.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.extracts++
	f.mu.Unlock()
	onProgress(50)
	return f.write(jobID, "source.mp3")
}

func (f *fakeEngine) ConvertVideo(ctx context.Context, jobID, input string, maxHeight int, duration float64, onProgress media.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.converts++
	f.mu.Unlock()
	return f.write(jobID, "source.converted.mp4")
}

func (f *fakeEngine) Cancel(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.release[jobID]
	if !ok {
		return false
	}
	delete(f.release, jobID)
	close(ch)
	return true
}

func (f *fakeEngine) JobDir(jobID string) string {
	return filepath.Join(f.root, jobID)
}

func (f *fakeEngine) write(jobID, name string) (string, error) {
	dir := f.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, name)
	return p, os.WriteFile(p, []byte("media-bytes"), 0o644)
}

type fakeReclaimer struct {
	repo jobs.Repository
	mu   sync.Mutex
	ids  []string
}

func (r *fakeReclaimer) Reclaim(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	r.ids = append(r.ids, job.ID)
	r.mu.Unlock()
	return r.repo.Delete(job.ID)
}

type harness struct {
	uc        *jobsUC
	repo      jobs.Repository
	engine    *fakeEngine
	reclaimer *fakeReclaimer
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{AppVersion: "test"},
		Media:  config.MediaConfig{WorkDir: t.TempDir()},
		Jobs:   config.JobsConfig{MaxActivePerRequester: 0, RetentionMinutes: 30},
	}
	if mutate != nil {
		mutate(cfg)
	}
	repo := repository.NewMemoryRepo()
	engine := newFakeEngine(cfg.Media.WorkDir)
	reclaimer := &fakeReclaimer{repo: repo}
	uc := NewJobsUseCase(context.Background(), cfg, repo, engine, repository.NewNopPublisher(), nil, reclaimer, logger.NewNopLogger()).(*jobsUC)
	uc.cpuCheck = func(float64) (bool, float64) { return true, 12.5 }
	t.Cleanup(uc.Wait)
	return &harness{uc: uc, repo: repo, engine: engine, reclaimer: reclaimer}
}

func (h *harness) waitFor(t *testing.T, id string, status models.JobStatus) *models.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := h.uc.GetProgress(context.Background(), id)
		if err != nil {
			t.Fatalf("GetProgress: %v", err)
		}
		if snap.Status == status {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s (%s), want %s", id, snap.Status, snap.LastError, status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) readyJob(t *testing.T, requester string) string {
	t.Helper()
	snap, err := h.uc.CreateJob(context.Background(), &models.CreateJobInput{URL: testURL, RequesterKey: requester})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	h.waitFor(t, snap.ID, models.JobStatusReady)
	return snap.ID
}

func TestCreateJobReachesReady(t *testing.T) {
	h := newHarness(t, nil)
	snap, err := h.uc.CreateJob(context.Background(), &models.CreateJobInput{URL: "  " + testURL + " ", RequesterKey: "10.0.0.1"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if snap.Platform != "youtube" || snap.StageRecord[models.StageValidation].Status != models.StageStatusCompleted {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	ready := h.waitFor(t, snap.ID, models.JobStatusReady)
	if ready.ProgressPercent != 40 || ready.Stage != models.StageDownload {
		t.Fatalf("ready progress %d stage %s", ready.ProgressPercent, ready.Stage)
	}
	analysis, err := h.uc.GetAnalysis(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if analysis.Metadata.Title == "" || len(analysis.Renditions) != 3 {
		t.Fatalf("analysis = %+v", analysis)
	}
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	for _, raw := range []string{"", "not a url", "ftp://youtube.com/watch?v=dQw4w9WgXcQ", "https://example.com/video.mp4"} {
		_, err := h.uc.CreateJob(context.Background(), &models.CreateJobInput{URL: raw, RequesterKey: "k"})
		if !models.IsKind(err, models.KindValidation) {
			t.Errorf("CreateJob(%q) err = %v, want validation", raw, err)
		}
	}
	if n := len(h.repo.ListByRequester("k")); n != 0 {
		t.Fatalf("%d records created for rejected urls", n)
	}
}

func TestCreateJobQuota(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Jobs.MaxActivePerRequester = 1 })
	h.readyJob(t, "k")
	_, err := h.uc.CreateJob(context.Background(), &models.CreateJobInput{URL: testURL, RequesterKey: "k"})
	if !models.IsKind(err, models.KindQuota) {
		t.Fatalf("second CreateJob err = %v, want quota", err)
	}
	if _, err := h.uc.CreateJob(context.Background(), &models.CreateJobInput{URL: testURL, RequesterKey: "other"}); err != nil {
		t.Fatalf("other requester blocked: %v", err)
	}
}

func TestMetadataFailureIsRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.metaErr = models.NewMetadataError("could not read video information", "ERROR: [youtube] dQw4w9WgXcQ: Video unavailable", nil)
	snap, err := h.uc.CreateJob(context.Background(), &models.CreateJobInput{URL: testURL, RequesterKey: "k"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	failed := h.waitFor(t, snap.ID, models.JobStatusFailed)
	if failed.LastError != "could not read video information" {
		t.Fatalf("LastError = %q", failed.LastError)
	}
	if failed.StageRecord[models.StageMetadata].Status != models.StageStatusFailed {
		t.Fatalf("metadata stage = %s", failed.StageRecord[models.StageMetadata].Status)
	}
	job, _ := h.repo.Get(snap.ID)
	if job.ErrorDetail == "" {
		t.Fatal("tool detail was not kept on the record")
	}
	if _, err := h.uc.GetAnalysis(context.Background(), snap.ID); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("GetAnalysis err = %v", err)
	}
}

func TestProcessVideoToCompletion(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")

	if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); err != nil {
		t.Fatalf("SelectRenditionAndStart: %v", err)
	}
	done := h.waitFor(t, id, models.JobStatusCompleted)
	if done.ProgressPercent != 100 || done.ExpiresAt == nil {
		t.Fatalf("completed snapshot = %+v", done)
	}
	for _, s := range models.Stages {
		if done.StageRecord[s].Status != models.StageStatusCompleted {
			t.Fatalf("stage %s = %s", s, done.StageRecord[s].Status)
		}
	}
	if h.engine.converts != 0 || h.engine.extracts != 0 {
		t.Fatalf("mp4 download was post-processed: converts=%d extracts=%d", h.engine.converts, h.engine.extracts)
	}

	artifact, err := h.uc.FetchCompletedFile(context.Background(), id)
	if err != nil {
		t.Fatalf("FetchCompletedFile: %v", err)
	}
	defer artifact.Body.Close()
	body, _ := io.ReadAll(artifact.Body)
	if string(body) != "media-bytes" || artifact.Size != int64(len(body)) {
		t.Fatalf("artifact body %q size %d", body, artifact.Size)
	}
	if artifact.ContentType != "video/mp4" || filepath.Ext(artifact.Filename) != ".mp4" {
		t.Fatalf("artifact = %+v", artifact)
	}

	if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); !models.IsKind(err, models.KindValidation) {
		t.Fatalf("restart of completed job err = %v", err)
	}
}

func TestProcessConvertsAndExtracts(t *testing.T) {
	h := newHarness(t, nil)
	webm := h.readyJob(t, "k")
	audio := h.readyJob(t, "k")

	for id, rendition := range map[string]string{webm: "248", audio: "251"} {
		if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: rendition}); err != nil {
			t.Fatalf("SelectRenditionAndStart(%s): %v", rendition, err)
		}
	}
	h.waitFor(t, webm, models.JobStatusCompleted)
	h.waitFor(t, audio, models.JobStatusCompleted)

	if h.engine.converts != 1 || h.engine.extracts != 1 {
		t.Fatalf("converts=%d extracts=%d", h.engine.converts, h.engine.extracts)
	}
	job, _ := h.repo.Get(audio)
	if filepath.Ext(job.OutputPath) != ".mp3" {
		t.Fatalf("audio output = %s", job.OutputPath)
	}
}

func TestSelectRenditionRejections(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	ctx := context.Background()

	cases := []struct {
		name  string
		input *models.SelectRenditionInput
		kind  models.ErrorKind
	}{
		{"missing rendition", &models.SelectRenditionInput{JobID: id}, models.KindValidation},
		{"bad job id", &models.SelectRenditionInput{JobID: "nope", RenditionID: "137"}, models.KindValidation},
		{"unknown job", &models.SelectRenditionInput{JobID: "4f1c0c3e-8a8e-4c4f-9f3a-3c0f7d9b1e2a", RenditionID: "137"}, models.KindNotFound},
		{"unknown rendition", &models.SelectRenditionInput{JobID: id, RenditionID: "999"}, models.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.uc.SelectRenditionAndStart(ctx, tc.input); !models.IsKind(err, tc.kind) {
				t.Fatalf("err = %v, want %s", err, tc.kind)
			}
		})
	}

	h.uc.cpuCheck = func(float64) (bool, float64) { return false, 97 }
	if _, err := h.uc.SelectRenditionAndStart(ctx, &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); !models.IsKind(err, models.KindQuota) {
		t.Fatalf("busy cpu err = %v", err)
	}
	if snap, _ := h.uc.GetProgress(ctx, id); snap.Status != models.JobStatusReady {
		t.Fatalf("rejected start moved job to %s", snap.Status)
	}
}

func TestDownloadFailure(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	h.engine.dlErr = models.NewDownloadError("download failed", "ERROR: HTTP Error 403: Forbidden", nil)

	if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); err != nil {
		t.Fatal(err)
	}
	failed := h.waitFor(t, id, models.JobStatusFailed)
	if failed.LastError != "download failed" || failed.StageRecord[models.StageDownload].Status != models.StageStatusFailed {
		t.Fatalf("failed snapshot = %+v", failed)
	}
	if _, err := h.uc.FetchCompletedFile(context.Background(), id); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("FetchCompletedFile err = %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	h.engine.block = true

	if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); err != nil {
		t.Fatal(err)
	}
	<-h.engine.started

	cancelled, err := h.uc.CancelJob(context.Background(), id)
	if err != nil || !cancelled {
		t.Fatalf("CancelJob = %v, %v", cancelled, err)
	}
	snap := h.waitFor(t, id, models.JobStatusCancelled)
	if snap.LastError != "cancelled" || snap.ExpiresAt != nil {
		t.Fatalf("cancelled snapshot = %+v", snap)
	}
	if again, _ := h.uc.CancelJob(context.Background(), id); again {
		t.Fatal("second cancel reported a running process")
	}
	if _, err := h.uc.CancelJob(context.Background(), "missing"); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("CancelJob(missing) err = %v", err)
	}
}

func TestProcessSkipsJobCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	job, _ := h.repo.Get(id)
	rendition, _ := job.FindRendition("248")
	if _, err := h.repo.Transition(id, models.Event{Type: models.EventProcess, Rendition: &rendition}); err != nil {
		t.Fatalf("process transition: %v", err)
	}
	if _, err := h.repo.Transition(id, models.Event{Type: models.EventCancel}); err != nil {
		t.Fatalf("cancel transition: %v", err)
	}
	downloads := 0
	h.engine.onDownload = func(string) { downloads++ }

	if err := h.uc.process(context.Background(), id); !models.IsKind(err, models.KindCancelled) {
		t.Fatalf("process err = %v, want cancelled", err)
	}
	if err := h.repo.Delete(id); err != nil {
		t.Fatal(err)
	}
	if err := h.uc.process(context.Background(), id); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("process err = %v, want not found", err)
	}
	if downloads != 0 {
		t.Fatalf("download started %d times for an inactive job", downloads)
	}
}

func TestEnsureActive(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	if _, err := h.uc.ensureActive(id); !models.IsKind(err, models.KindCancelled) {
		t.Fatalf("ready job err = %v, want cancelled", err)
	}
	if _, err := h.uc.ensureActive("missing"); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("missing job err = %v, want not found", err)
	}
}

func TestCancelAndCleanup(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	h.engine.block = true
	if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); err != nil {
		t.Fatal(err)
	}
	<-h.engine.started

	if err := h.uc.CancelAndCleanup(context.Background(), id); err != nil {
		t.Fatalf("CancelAndCleanup: %v", err)
	}
	if len(h.reclaimer.ids) != 1 || h.reclaimer.ids[0] != id {
		t.Fatalf("reclaimed = %v", h.reclaimer.ids)
	}
	if _, err := h.uc.GetProgress(context.Background(), id); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("GetProgress after cleanup err = %v", err)
	}
	h.uc.Wait()
}

func TestFetchExpiredFile(t *testing.T) {
	h := newHarness(t, nil)
	id := h.readyJob(t, "k")
	if _, err := h.uc.SelectRenditionAndStart(context.Background(), &models.SelectRenditionInput{JobID: id, RenditionID: "137"}); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, id, models.JobStatusCompleted)

	h.uc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := h.uc.FetchCompletedFile(context.Background(), id); !models.IsKind(err, models.KindNotFound) {
		t.Fatalf("expired fetch err = %v", err)
	}
}

func TestListJobsPagination(t *testing.T) {
	h := newHarness(t, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, h.readyJob(t, "k"))
		time.Sleep(2 * time.Millisecond)
	}
	h.readyJob(t, "someone-else")

	first, err := h.uc.ListJobs(context.Background(), "k", &utils.Pagination{Page: 1, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	if first.TotalCount != 3 || first.TotalPages != 2 || !first.HasMore || len(first.Jobs) != 2 {
		t.Fatalf("first page = %+v", first)
	}
	if first.Jobs[0].ID != ids[2] {
		t.Fatalf("newest job not first: %s", first.Jobs[0].ID)
	}

	second, _ := h.uc.ListJobs(context.Background(), "k", &utils.Pagination{Page: 2, Size: 2})
	if len(second.Jobs) != 1 || second.HasMore || second.Jobs[0].ID != ids[0] {
		t.Fatalf("second page = %+v", second)
	}

	oldest, _ := h.uc.ListJobs(context.Background(), "k", &utils.Pagination{Page: 1, Size: 10, OrderBy: "created_at"})
	if oldest.Jobs[0].ID != ids[0] {
		t.Fatalf("created_at order starts with %s", oldest.Jobs[0].ID)
	}

	beyond, _ := h.uc.ListJobs(context.Background(), "k", &utils.Pagination{Page: 9, Size: 2})
	if len(beyond.Jobs) != 0 || beyond.HasMore {
		t.Fatalf("page past the end = %+v", beyond)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	report := h.uc.Health(context.Background())
	if report.Status != "ok" || report.Tools.Extractor == "" || report.CPUUsage != 12.5 {
		t.Fatalf("report = %+v", report)
	}

	h.engine.probeErr = models.ErrEngineUnavailable
	report = h.uc.Health(context.Background())
	if report.Status != "unavailable" || report.ToolError != "media engine unavailable" {
		t.Fatalf("report = %+v", report)
	}
}
