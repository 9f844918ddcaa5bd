package models

import (
	"fmt"
	"math"
	"time"
)

var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusAnalyzing},
	JobStatusAnalyzing:  {JobStatusReady, JobStatusFailed},
	JobStatusReady:      {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type EventType string

const (
	EventAnalyze  EventType = "analyze"
	EventAnalyzed EventType = "analyzed"
	EventProcess  EventType = "process"
	EventComplete EventType = "complete"
	EventFail     EventType = "fail"
	EventCancel   EventType = "cancel"
)

var eventTargets = map[EventType]JobStatus{
	EventAnalyze:  JobStatusAnalyzing,
	EventAnalyzed: JobStatusReady,
	EventProcess:  JobStatusProcessing,
	EventComplete: JobStatusCompleted,
	EventFail:     JobStatusFailed,
	EventCancel:   JobStatusCancelled,
}

type Event struct {
	Type        EventType
	Metadata    *Metadata
	Renditions  []Rendition
	Rendition   *Rendition
	OutputPath  string
	ArtifactKey string
	ExpiresAt   time.Time
	Err         error
	At          time.Time
}

// ApplyTransition returns the job that results from ev, leaving job untouched.
func ApplyTransition(job *Job, ev Event) (*Job, error) {
	target, ok := eventTargets[ev.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Type)
	}
	if !CanTransition(job.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, target)
	}

	next := job.Clone()
	switch ev.Type {
	case EventAnalyze:
		if next.StageRecord[StageValidation].Status != StageStatusCompleted {
			return nil, fmt.Errorf("%w: validation must complete before analysis", ErrStageOrder)
		}
	case EventAnalyzed:
		if ev.Metadata == nil || len(ev.Renditions) == 0 {
			return nil, fmt.Errorf("%w: analysis needs metadata and renditions", ErrInvalidTransition)
		}
		if next.StageRecord[StageMetadata].Status != StageStatusCompleted {
			return nil, fmt.Errorf("%w: metadata stage not completed", ErrStageOrder)
		}
		md := *ev.Metadata
		next.Metadata = &md
		next.Renditions = append([]Rendition(nil), ev.Renditions...)
	case EventProcess:
		if ev.Rendition == nil {
			return nil, fmt.Errorf("%w: no rendition selected", ErrInvalidTransition)
		}
		r := *ev.Rendition
		next.SelectedRendition = &r
	case EventComplete:
		if ev.OutputPath == "" {
			return nil, fmt.Errorf("%w: completion without output", ErrInvalidTransition)
		}
		for _, s := range Stages[:len(Stages)-1] {
			if next.StageRecord[s].Status != StageStatusCompleted {
				return nil, fmt.Errorf("%w: stage %s not completed", ErrStageOrder, s)
			}
		}
		next.StageRecord[StageReady] = StageEntry{Status: StageStatusCompleted}
		next.OutputPath = ev.OutputPath
		next.ArtifactKey = ev.ArtifactKey
		expires := ev.ExpiresAt
		next.ExpiresAt = &expires
	case EventFail, EventCancel:
		msg := "cancelled"
		if ev.Type == EventFail {
			msg = PublicMessage(ev.Err)
			next.ErrorDetail = DetailOf(ev.Err)
		}
		next.LastError = msg
		cur := CurrentStage(next.StageRecord)
		if next.StageRecord[cur].Status != StageStatusCompleted {
			next.StageRecord[cur] = StageEntry{Status: StageStatusFailed, Message: msg}
		}
	}

	next.Status = target
	if target != JobStatusCompleted {
		next.OutputPath = ""
		next.ArtifactKey = ""
		next.ExpiresAt = nil
	}
	next.Stage = CurrentStage(next.StageRecord)
	next.ProgressPercent = DeriveProgress(next, 0)
	if !ev.At.IsZero() {
		next.UpdatedAt = ev.At
	}
	return next, nil
}

// ApplyStageUpdate sets one stage entry, refusing to complete or start a stage before its predecessors.
func ApplyStageUpdate(job *Job, stage Stage, status StageStatus, message string) (*Job, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrStageOrder, stage)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
	}
	cur := job.StageRecord[stage]
	if cur.Status == StageStatusCompleted && status != StageStatusCompleted {
		return nil, fmt.Errorf("%w: stage %s already completed", ErrStageOrder, stage)
	}
	if status == StageStatusProcessing || status == StageStatusCompleted {
		for _, s := range Stages[:stage.index()] {
			if job.StageRecord[s].Status != StageStatusCompleted {
				return nil, fmt.Errorf("%w: %s before %s", ErrStageOrder, stage, s)
			}
		}
	}
	next := job.Clone()
	next.StageRecord[stage] = StageEntry{Status: status, Message: message}
	next.Stage = CurrentStage(next.StageRecord)
	next.ProgressPercent = DeriveProgress(next, 0)
	return next, nil
}

// ApplyStageProgress folds in-flight work on the current stage into the percentage.
// Updates for any stage that is not the one currently processing are ignored.
func ApplyStageProgress(job *Job, stage Stage, percent float64) *Job {
	next := job.Clone()
	if job.Status.IsTerminal() || CurrentStage(job.StageRecord) != stage ||
		job.StageRecord[stage].Status != StageStatusProcessing {
		return next
	}
	next.ProgressPercent = DeriveProgress(next, percent)
	return next
}

// CurrentStage is the first stage that has not completed, or the last stage once all have.
func CurrentStage(record StageRecord) Stage {
	idx := firstIncomplete(record)
	if idx == len(Stages) {
		return Stages[len(Stages)-1]
	}
	return Stages[idx]
}

func firstIncomplete(record StageRecord) int {
	for i, s := range Stages {
		if record[s].Status != StageStatusCompleted {
			return i
		}
	}
	return len(Stages)
}

// StagePercent is round(100 * firstIncompleteIndex / totalStages).
func StagePercent(record StageRecord) int {
	idx := firstIncomplete(record)
	return int(math.Round(100 * float64(idx) / float64(len(Stages))))
}

// DeriveProgress never returns less than the job's current percentage, and only
// reaches 100 once the job is completed.
func DeriveProgress(job *Job, inflight float64) int {
	if job.Status == JobStatusCompleted {
		return 100
	}
	p := StagePercent(job.StageRecord)
	if inflight > 0 && firstIncomplete(job.StageRecord) < len(Stages) {
		if inflight > 100 {
			inflight = 100
		}
		band := 100 / float64(len(Stages))
		p += int(math.Floor(inflight / 100 * band))
	}
	if p > 99 {
		p = 99
	}
	if p < job.ProgressPercent {
		p = job.ProgressPercent
	}
	return p
}
