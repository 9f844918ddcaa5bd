package usecase

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/classifier"
	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
	"github.com/amankumarsingh77/media-fetcher/pkg/utils"
	"github.com/pkg/errors"
)

const publishTimeout = 2 * time.Second

type jobsUC struct {
	cfg       *config.Config
	repo      jobs.Repository
	engine    jobs.MediaEngine
	publisher jobs.SnapshotPublisher
	artifacts jobs.ArtifactStore
	reclaimer jobs.Reclaimer
	logger    logger.Logger

	baseCtx  context.Context
	wg       sync.WaitGroup
	now      func() time.Time
	cpuCheck func(maxUsage float64) (bool, float64)
}

// NewJobsUseCase builds the pipeline orchestrator. Background work runs under baseCtx, so
// cancelling it terminates every running tool. artifacts may be nil when offload is disabled.
func NewJobsUseCase(
	baseCtx context.Context,
	cfg *config.Config,
	repo jobs.Repository,
	engine jobs.MediaEngine,
	publisher jobs.SnapshotPublisher,
	artifacts jobs.ArtifactStore,
	reclaimer jobs.Reclaimer,
	logger logger.Logger,
) jobs.UseCase {
	return &jobsUC{
		cfg:       cfg,
		repo:      repo,
		engine:    engine,
		publisher: publisher,
		artifacts: artifacts,
		reclaimer: reclaimer,
		logger:    logger,
		baseCtx:   baseCtx,
		now:       time.Now,
		cpuCheck:  utils.CheckCPUUsage,
	}
}

func (u *jobsUC) CreateJob(ctx context.Context, input *models.CreateJobInput) (*models.JobSnapshot, error) {
	input.URL = strings.TrimSpace(input.URL)
	if err := utils.ValidateStruct(ctx, input); err != nil {
		return nil, models.NewValidationError("a valid http(s) url is required")
	}
	result := classifier.Classify(input.URL)
	if !result.IsValid {
		return nil, models.NewValidationError(result.Error)
	}

	job, err := u.repo.CreateWithinQuota(input.URL, result.Platform, input.RequesterKey, u.cfg.Jobs.MaxActivePerRequester)
	if err != nil {
		if !models.IsKind(err, models.KindQuota) {
			u.logger.Errorf("CreateJob - create job error: %v", err)
		}
		return nil, err
	}
	if job, err = u.repo.UpdateStage(job.ID, models.StageValidation, models.StageStatusCompleted, result.Platform); err != nil {
		return nil, err
	}
	if job, err = u.repo.Transition(job.ID, models.Event{Type: models.EventAnalyze}); err != nil {
		return nil, err
	}
	if job, err = u.repo.UpdateStage(job.ID, models.StageMetadata, models.StageStatusProcessing, ""); err != nil {
		return nil, err
	}
	u.publish(job)
	u.logger.Infof("CreateJob - job %s created for %s (%s)", job.ID, result.Platform, input.RequesterKey)

	jobID, url := job.ID, job.SourceURL
	u.spawn(jobID, func(ctx context.Context) error {
		return u.analyze(ctx, jobID, url)
	})
	return job.Snapshot(), nil
}

func (u *jobsUC) analyze(ctx context.Context, jobID, url string) error {
	md, renditions, err := u.engine.FetchMetadata(ctx, jobID, url)
	if err != nil {
		return err
	}
	if _, err := u.repo.UpdateStage(jobID, models.StageMetadata, models.StageStatusCompleted, md.Title); err != nil {
		return err
	}
	job, err := u.repo.Transition(jobID, models.Event{
		Type:       models.EventAnalyzed,
		Metadata:   md,
		Renditions: renditions,
	})
	if err != nil {
		return err
	}
	u.publish(job)
	u.logger.Infof("analyze - job %s ready with %d renditions", jobID, len(renditions))
	return nil
}

func (u *jobsUC) SelectRenditionAndStart(ctx context.Context, input *models.SelectRenditionInput) (*models.JobSnapshot, error) {
	if err := utils.ValidateStruct(ctx, input); err != nil {
		return nil, models.NewValidationError("job id and rendition id are required")
	}
	job, err := u.repo.Get(input.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusReady {
		return nil, models.NewValidationError(fmt.Sprintf("job is %s, not ready for processing", job.Status))
	}
	rendition, ok := job.FindRendition(input.RenditionID)
	if !ok {
		return nil, models.NewValidationError("unknown rendition")
	}
	if ok, usage := u.cpuCheck(u.cfg.Worker.MaxCPUUsage); !ok {
		u.logger.Warnf("SelectRenditionAndStart - job %s refused, cpu usage %.1f%%", job.ID, usage)
		return nil, models.NewQuotaError("server is busy, try again shortly")
	}

	if job, err = u.repo.Transition(job.ID, models.Event{Type: models.EventProcess, Rendition: &rendition}); err != nil {
		return nil, models.NewValidationError("job is no longer ready for processing")
	}
	if job, err = u.repo.UpdateStage(job.ID, models.StageDownload, models.StageStatusProcessing, rendition.Label); err != nil {
		return nil, err
	}
	u.publish(job)
	u.logger.Infof("SelectRenditionAndStart - job %s processing rendition %s (%s)", job.ID, rendition.ID, rendition.Label)

	jobID := job.ID
	u.spawn(jobID, func(ctx context.Context) error {
		return u.process(ctx, jobID)
	})
	return job.Snapshot(), nil
}

func (u *jobsUC) process(ctx context.Context, jobID string) error {
	job, err := u.ensureActive(jobID)
	if err != nil {
		return err
	}

	downloaded, err := u.engine.Download(ctx, job, u.progressFunc(jobID, models.StageDownload))
	if err != nil {
		return err
	}
	if _, err := u.repo.UpdateStage(jobID, models.StageDownload, models.StageStatusCompleted, filepath.Base(downloaded)); err != nil {
		return err
	}
	if _, err := u.repo.UpdateStage(jobID, models.StageProcessing, models.StageStatusProcessing, ""); err != nil {
		return err
	}

	output, err := u.postProcess(ctx, job, downloaded)
	if err != nil {
		return err
	}
	if _, err := u.repo.UpdateStage(jobID, models.StageProcessing, models.StageStatusCompleted, filepath.Base(output)); err != nil {
		return err
	}

	artifactKey := u.offload(ctx, jobID, output)
	done, err := u.repo.Transition(jobID, models.Event{
		Type:        models.EventComplete,
		OutputPath:  output,
		ArtifactKey: artifactKey,
		ExpiresAt:   u.now().Add(time.Duration(u.cfg.Jobs.RetentionMinutes) * time.Minute),
	})
	if err != nil {
		return err
	}
	u.publish(done)
	u.logger.Infof("process - job %s completed, output %s", jobID, output)
	return nil
}

// ensureActive re-reads the job before the download starts. A job deleted or cancelled
// since it was scheduled gets no subprocess.
func (u *jobsUC) ensureActive(jobID string) (*models.Job, error) {
	job, err := u.repo.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusProcessing {
		return nil, models.NewCancelledError(fmt.Sprintf("job is %s, not processing", job.Status), nil)
	}
	return job, nil
}

// postProcess turns the download into the final artifact: MP3 for audio, MP4 otherwise.
func (u *jobsUC) postProcess(ctx context.Context, job *models.Job, input string) (string, error) {
	r := job.SelectedRendition
	var duration float64
	if job.Metadata != nil {
		duration = job.Metadata.Duration
	}
	onProgress := u.progressFunc(job.ID, models.StageProcessing)
	if r != nil && r.IsAudio() {
		return u.engine.ExtractAudio(ctx, job.ID, input, duration, onProgress)
	}
	if strings.EqualFold(filepath.Ext(input), ".mp4") {
		return input, nil
	}
	height := 0
	if r != nil {
		height = r.Height
	}
	return u.engine.ConvertVideo(ctx, job.ID, input, height, duration, onProgress)
}

// offload uploads the artifact when an artifact store is configured. Failures keep the local copy.
func (u *jobsUC) offload(ctx context.Context, jobID, output string) string {
	if u.artifacts == nil {
		return ""
	}
	key := path.Join(u.cfg.S3.Prefix, jobID, filepath.Base(output))
	if err := u.artifacts.Upload(ctx, key, output, utils.ContentTypeFor(output)); err != nil {
		u.logger.Warnf("offload - job %s upload error: %v", jobID, err)
		return ""
	}
	return key
}

func (u *jobsUC) progressFunc(jobID string, stage models.Stage) func(float64) {
	last := -1
	return func(percent float64) {
		job, err := u.repo.SetStageProgress(jobID, stage, percent)
		if err != nil {
			return
		}
		if job.ProgressPercent != last {
			last = job.ProgressPercent
			u.publish(job)
		}
	}
}

// spawn runs fn on its own goroutine. Every failure, panics included, ends up on the job record.
func (u *jobsUC) spawn(jobID string, fn func(ctx context.Context) error) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				u.fail(jobID, errors.Errorf("panic: %v", r))
			}
		}()
		if err := fn(u.baseCtx); err != nil {
			u.fail(jobID, err)
		}
	}()
}

func (u *jobsUC) fail(jobID string, cause error) {
	job, err := u.repo.Get(jobID)
	if err != nil {
		u.logger.Warnf("fail - job %s gone before failure could be recorded: %v", jobID, cause)
		return
	}
	event := models.Event{Type: models.EventFail, Err: cause}
	if models.IsKind(cause, models.KindCancelled) && job.Status == models.JobStatusProcessing {
		event = models.Event{Type: models.EventCancel}
	}
	updated, err := u.repo.Transition(jobID, event)
	if err != nil {
		u.logger.Warnf("fail - job %s transition after %v error: %v", jobID, cause, err)
		return
	}
	u.publish(updated)
	u.logger.Errorf("fail - job %s %s: %s", jobID, updated.Status, models.DetailOf(cause))
}

func (u *jobsUC) GetProgress(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	job, err := u.repo.Get(jobID)
	if err != nil {
		return nil, err
	}
	return job.Snapshot(), nil
}

func (u *jobsUC) GetAnalysis(ctx context.Context, jobID string) (*models.AnalysisResult, error) {
	job, err := u.repo.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Metadata == nil {
		if job.Status == models.JobStatusFailed {
			return nil, models.NewNotFoundError("analysis failed: " + job.LastError)
		}
		return nil, models.NewNotFoundError("analysis not available yet")
	}
	return &models.AnalysisResult{JobID: job.ID, Metadata: job.Metadata, Renditions: job.Renditions}, nil
}

func (u *jobsUC) FetchCompletedFile(ctx context.Context, jobID string) (*models.Artifact, error) {
	job, err := u.repo.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted || job.OutputPath == "" {
		return nil, models.NewNotFoundError("file is not ready")
	}
	if job.ExpiresAt != nil && !u.now().Before(*job.ExpiresAt) {
		return nil, models.NewNotFoundError("file has expired")
	}
	var title string
	if job.Metadata != nil {
		title = job.Metadata.Title
	}
	filename := utils.SuggestedFilename(title, job.OutputPath)

	if job.ArtifactKey != "" && u.artifacts != nil {
		ttl := job.ExpiresAt.Sub(u.now())
		url, err := u.artifacts.PresignURL(ctx, job.ArtifactKey, filename, ttl)
		if err == nil {
			return &models.Artifact{URL: url, Filename: filename}, nil
		}
		u.logger.Warnf("FetchCompletedFile - job %s presign error, serving local copy: %v", jobID, err)
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewNotFoundError("file is no longer available")
		}
		u.logger.Errorf("FetchCompletedFile - job %s open error: %v", jobID, err)
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &models.Artifact{
		Body:        f,
		Filename:    filename,
		Size:        fi.Size(),
		ContentType: utils.ContentTypeFor(job.OutputPath),
	}, nil
}

func (u *jobsUC) ListJobs(ctx context.Context, requesterKey string, pagination *utils.Pagination) (*models.JobList, error) {
	all := u.repo.ListByRequester(requesterKey)
	if pagination.GetOrderBy() == "created_at" {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	start, end := pagination.Window(len(all))
	list := &models.JobList{
		Jobs:       make([]*models.JobSnapshot, 0, end-start),
		TotalCount: len(all),
		TotalPages: utils.GetTotalPages(len(all), pagination.GetSize()),
		Page:       pagination.GetPage(),
		PageSize:   pagination.GetSize(),
		HasMore:    end < len(all),
	}
	for _, job := range all[start:end] {
		list.Jobs = append(list.Jobs, job.Snapshot())
	}
	return list, nil
}

// CancelJob terminates the job's running tool, if any. The pipeline goroutine records the outcome.
func (u *jobsUC) CancelJob(ctx context.Context, jobID string) (bool, error) {
	job, err := u.repo.Get(jobID)
	if err != nil {
		return false, err
	}
	cancelled := u.engine.Cancel(jobID)
	u.logger.Infof("CancelJob - job %s (%s) cancelled=%v", jobID, job.Status, cancelled)
	return cancelled, nil
}

func (u *jobsUC) CancelAndCleanup(ctx context.Context, jobID string) error {
	job, err := u.repo.Get(jobID)
	if err != nil {
		return err
	}
	u.engine.Cancel(jobID)
	if job.Status == models.JobStatusProcessing {
		if cancelled, err := u.repo.Transition(jobID, models.Event{Type: models.EventCancel}); err == nil {
			job = cancelled
			u.publish(job)
		}
	}
	if err := u.reclaimer.Reclaim(ctx, job); err != nil {
		u.logger.Errorf("CancelAndCleanup - job %s reclaim error: %v", jobID, err)
		return err
	}
	u.logger.Infof("CancelAndCleanup - job %s removed", jobID)
	return nil
}

func (u *jobsUC) Health(ctx context.Context) *models.HealthReport {
	report := &models.HealthReport{Status: "ok", Version: u.cfg.Server.AppVersion}
	versions, err := u.engine.ProbeTools(ctx)
	report.Tools = versions
	if err != nil {
		report.Status = "degraded"
		report.ToolError = "tool check failed"
		if errors.Is(err, models.ErrEngineUnavailable) {
			report.Status = "unavailable"
			report.ToolError = "media engine unavailable"
		}
		u.logger.Warnf("Health - probe tools error: %v", err)
	}
	_, report.CPUUsage = u.cpuCheck(u.cfg.Worker.MaxCPUUsage)
	report.ActiveJobs = u.repo.CountActive()
	return report
}

// Wait blocks until every pipeline goroutine has returned.
func (u *jobsUC) Wait() {
	u.wg.Wait()
}

func (u *jobsUC) publish(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := u.publisher.Publish(ctx, job.Snapshot()); err != nil {
		u.logger.Warnf("publish - job %s snapshot error: %v", job.ID, err)
	}
}
