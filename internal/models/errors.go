package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindMetadata   ErrorKind = "metadata"
	KindDownload   ErrorKind = "download"
	KindTranscode  ErrorKind = "transcode"
	KindNotFound   ErrorKind = "not_found"
	KindQuota      ErrorKind = "quota"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

var (
	// ErrEngineUnavailable marks a tool that could not be spawned at all.
	ErrEngineUnavailable = errors.New("media engine unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStageOrder        = errors.New("stage out of order")
	ErrJobNotFound       = errors.New("job not found")
)

const maxDetailBytes = 8192

// PipelineError carries a short caller-facing Message and the raw tool output in Detail.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(kind ErrorKind, msg, detail string, err error) *PipelineError {
	if len(detail) > maxDetailBytes {
		detail = detail[len(detail)-maxDetailBytes:]
	}
	return &PipelineError{Kind: kind, Message: msg, Detail: detail, Err: err}
}

func NewValidationError(msg string) error {
	return newPipelineError(KindValidation, msg, "", nil)
}

func NewMetadataError(msg, detail string, err error) error {
	return newPipelineError(KindMetadata, msg, detail, err)
}

func NewDownloadError(msg, detail string, err error) error {
	return newPipelineError(KindDownload, msg, detail, err)
}

func NewTranscodeError(msg, detail string, err error) error {
	return newPipelineError(KindTranscode, msg, detail, err)
}

func NewNotFoundError(msg string) error {
	return newPipelineError(KindNotFound, msg, "", ErrJobNotFound)
}

func NewQuotaError(msg string) error {
	return newPipelineError(KindQuota, msg, "", nil)
}

func NewCancelledError(msg string, err error) error {
	return newPipelineError(KindCancelled, msg, "", err)
}

// KindOf returns the pipeline kind of err, or KindInternal for anything untyped.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrJobNotFound) {
		return KindNotFound
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is what callers may see; tool diagnostics never leak through it.
func PublicMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	if errors.Is(err, ErrEngineUnavailable) {
		return "media engine unavailable"
	}
	return "internal error"
}

func DetailOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Detail != "" {
		return pe.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
