package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

type ErrorType int

const (
	ErrExtraction ErrorType = iota
	ErrFetch
	ErrParse
	ErrConfig
	ErrUnsupportedProvider
	ErrProcessing
	ErrValidation
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrExtraction:
		return "Extraction"
	case ErrFetch:
		return "Fetch"
	case ErrParse:
		return "Parse"
	case ErrConfig:
		return "Config"
	case ErrUnsupportedProvider:
		return "UnsupportedProvider"
	case ErrProcessing:
		return "Processing"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// Error is the typed error returned across package boundaries.
type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(errorType ErrorType, format string, args ...any) *Error {
	return New(errorType, fmt.Sprintf(format, args...))
}

func NewWithCause(errorType ErrorType, message string, cause error) *Error {
	e := New(errorType, message)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Type, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsErrorType reports whether any error in err's chain is an *Error of the
// given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the type of the first *Error in err's chain, or ErrUnknown.
func TypeOf(err error) ErrorType {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrUnknown
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewWithCause(errorType, message, err)
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *Error) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		log.Error("Unknown error: %v", err)
		return false
	}

	log.Error("Error detail: %v\n advice: %s", err, h.GetAdvice(appErr))
	return true
}

// GetAdvice returns a user-facing hint for the error type.
func (h *DefaultErrorHandler) GetAdvice(err *Error) string {
	switch err.Type {
	case ErrExtraction:
		return "The page did not contain readable player data; make sure the full watch page HTML was supplied"
	case ErrFetch:
		return "Check network connectivity; the subtitle URL may also have expired, so re-extract the tracks and retry"
	case ErrParse:
		return "The subtitle payload is not well-formed; verify the source format (timed-text XML, SRT or WebVTT)"
	case ErrConfig:
		return "Set an API key for the selected provider in the settings file or environment"
	case ErrUnsupportedProvider:
		return "Use one of the supported providers: openai, anthropic"
	case ErrProcessing:
		return "Some cues could not be processed; inspect the per-cue errors and retry with a smaller batch"
	case ErrValidation:
		return "Check the request parameters: language, format and operation must be valid"
	default:
		return "Review the detailed error message and the relevant configuration"
	}
}

// SafeExecute converts a panic inside fn into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = New(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
