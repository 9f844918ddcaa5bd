package models

import (
	"io"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusAnalyzing  JobStatus = "analyzing"
	JobStatusReady      JobStatus = "ready"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are accepted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type Stage string

const (
	StageValidation Stage = "validation"
	StageMetadata   Stage = "metadata"
	StageDownload   Stage = "download"
	StageProcessing Stage = "processing"
	StageReady      Stage = "ready"
)

// Stages lists every stage in the order it must complete.
var Stages = []Stage{StageValidation, StageMetadata, StageDownload, StageProcessing, StageReady}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool {
	return s.index() >= 0
}

type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
)

type StageEntry struct {
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

type StageRecord map[Stage]StageEntry

func NewStageRecord() StageRecord {
	record := make(StageRecord, len(Stages))
	for _, s := range Stages {
		record[s] = StageEntry{Status: StageStatusPending}
	}
	return record
}

func (r StageRecord) clone() StageRecord {
	out := make(StageRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type RenditionKind string

const (
	RenditionVideo RenditionKind = "video"
	RenditionAudio RenditionKind = "audio"
)

type Rendition struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Badge     string        `json:"badge,omitempty"`
	Kind      RenditionKind `json:"kind"`
	Ext       string        `json:"ext"`
	Height    int           `json:"height,omitempty"`
	Width     int           `json:"width,omitempty"`
	FPS       float64       `json:"fps,omitempty"`
	VCodec    string        `json:"vcodec,omitempty"`
	ACodec    string        `json:"acodec,omitempty"`
	Filesize  int64         `json:"filesize,omitempty"`
	SizeLabel string        `json:"size_label"`
	// Selector is the format expression handed to the extractor.
	Selector string `json:"-"`
}

func (r Rendition) IsAudio() bool {
	return r.Kind == RenditionAudio
}

type TechnicalSpecs struct {
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
	Ext        string  `json:"ext,omitempty"`
	Extractor  string  `json:"extractor,omitempty"`
	UploadDate string  `json:"upload_date,omitempty"`
	ViewCount  int64   `json:"view_count,omitempty"`
	LikeCount  int64   `json:"like_count,omitempty"`
}

type Metadata struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Uploader      string         `json:"uploader,omitempty"`
	Duration      float64        `json:"duration"`
	DurationLabel string         `json:"duration_label"`
	Thumbnail     string         `json:"thumbnail,omitempty"`
	WebpageURL    string         `json:"webpage_url,omitempty"`
	Specs         TechnicalSpecs `json:"specs"`
	// Formats holds every normalized rendition; Renditions on the job holds the presets.
	Formats []Rendition `json:"formats,omitempty"`
}

type Job struct {
	ID                string      `json:"id"`
	SourceURL         string      `json:"source_url"`
	Platform          string      `json:"platform"`
	RequesterKey      string      `json:"-"`
	Status            JobStatus   `json:"status"`
	Stage             Stage       `json:"stage"`
	StageRecord       StageRecord `json:"stage_record"`
	ProgressPercent   int         `json:"progress_percent"`
	Metadata          *Metadata   `json:"metadata,omitempty"`
	Renditions        []Rendition `json:"renditions,omitempty"`
	SelectedRendition *Rendition  `json:"selected_rendition,omitempty"`
	OutputPath        string      `json:"-"`
	ArtifactKey       string      `json:"-"`
	LastError         string      `json:"last_error,omitempty"`
	ErrorDetail       string      `json:"-"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.StageRecord = j.StageRecord.clone()
	if j.Metadata != nil {
		md := *j.Metadata
		md.Formats = append([]Rendition(nil), j.Metadata.Formats...)
		out.Metadata = &md
	}
	out.Renditions = append([]Rendition(nil), j.Renditions...)
	if j.SelectedRendition != nil {
		r := *j.SelectedRendition
		out.SelectedRendition = &r
	}
	if j.ExpiresAt != nil {
		t := *j.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

func (j *Job) FindRendition(id string) (Rendition, bool) {
	for _, r := range j.Renditions {
		if r.ID == id {
			return r, true
		}
	}
	if j.Metadata != nil {
		for _, r := range j.Metadata.Formats {
			if r.ID == id {
				return r, true
			}
		}
	}
	return Rendition{}, false
}

type JobSnapshot struct {
	ID              string      `json:"id"`
	Status          JobStatus   `json:"status"`
	ProgressPercent int         `json:"progress_percent"`
	Stage           Stage       `json:"stage"`
	StageRecord     StageRecord `json:"stage_record"`
	LastError       string      `json:"last_error,omitempty"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty"`
	Platform        string      `json:"platform,omitempty"`
	Title           string      `json:"title,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (j *Job) Snapshot() *JobSnapshot {
	c := j.Clone()
	s := &JobSnapshot{
		ID:              c.ID,
		Status:          c.Status,
		ProgressPercent: c.ProgressPercent,
		Stage:           c.Stage,
		StageRecord:     c.StageRecord,
		LastError:       c.LastError,
		ExpiresAt:       c.ExpiresAt,
		Platform:        c.Platform,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.Metadata != nil {
		s.Title = c.Metadata.Title
	}
	return s
}

type AnalysisResult struct {
	JobID      string      `json:"job_id"`
	Metadata   *Metadata   `json:"metadata"`
	Renditions []Rendition `json:"renditions"`
}

// Artifact is a finished job output. Either Body is set, or URL points at an offloaded copy.
type Artifact struct {
	Body        io.ReadCloser
	Filename    string
	Size        int64
	ContentType string
	URL         string
}

type JobList struct {
	Jobs       []*JobSnapshot `json:"jobs"`
	TotalCount int            `json:"total_count"`
	TotalPages int            `json:"total_pages"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	HasMore    bool           `json:"has_more"`
}

type CreateJobInput struct {
	URL          string `json:"url" validate:"required,url,lte=2048"`
	RequesterKey string `json:"-"`
}

type SelectRenditionInput struct {
	JobID       string `json:"-" validate:"required,uuid"`
	RenditionID string `json:"rendition_id" validate:"required,lte=128"`
}

type ToolVersions struct {
	Extractor  string `json:"extractor,omitempty"`
	Transcoder string `json:"transcoder,omitempty"`
}

type HealthReport struct {
	Status     string       `json:"status"`
	Version    string       `json:"version,omitempty"`
	Tools      ToolVersions `json:"tools"`
	ToolError  string       `json:"tool_error,omitempty"`
	CPUUsage   float64      `json:"cpu_usage"`
	ActiveJobs int          `json:"active_jobs"`
}
