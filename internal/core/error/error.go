package errx

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller-facing tagged result. Every error
// that crosses the orchestrator boundary carries exactly one Kind.
type Kind string

const (
	KindUpload        Kind = "UploadError"
	KindThread        Kind = "ThreadError"
	KindSummarization Kind = "SummarizationError"
	KindRunTimeout    Kind = "RunTimeoutError"
	KindRunFailed     Kind = "RunFailedError"
	KindParse         Kind = "ParseError"
	KindValidation    Kind = "ValidationError"
	KindStore         Kind = "StoreError"
	KindUnknown       Kind = "UnknownError"
)

// Pipeline stage names used to tag where in the turn a failure occurred.
const (
	StageUpload    = "upload"
	StageThread    = "thread-create"
	StageSummarize = "summarize"
	StageRunSubmit = "run-submit"
	StagePoll      = "poll"
	StageParse     = "parse"
	StageStore     = "store"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing key in Redis.
	RedisNotFoundMessage = "redis key not found"
)

// AppError wraps an underlying error with its kind, the pipeline stage it
// occurred in, and a safe human-readable message.
type AppError struct {
	Err     error
	Kind    Kind
	Stage   string
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, kind Kind, stage, message string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kind,
		Stage:   stage,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(err error, kind Kind, stage, format string, args ...any) *AppError {
	return New(err, kind, stage, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind from an error chain, falling back to KindUnknown.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// StageOf extracts the stage tag from an error chain, if any.
func StageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Stage
	}
	return ""
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
